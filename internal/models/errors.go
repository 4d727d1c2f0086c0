package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory is the external-facing class of a request failure.
type ErrorCategory string

const (
	CategoryServiceUnavailable ErrorCategory = "serviceUnavailable"
	CategoryTimeout            ErrorCategory = "timeout"
	CategoryInvalidEvidence    ErrorCategory = "invalidEvidence"
	CategoryInternal           ErrorCategory = "internalError"
)

var (
	ErrEmptyClaim     = errors.New("claim cannot be empty")
	ErrClaimTooLong   = errors.New("claim too long")
	ErrCorpusNotReady = errors.New("fact corpus not ready")
)

// CorpusError reports a missing, malformed or invalid corpus. FactIDs lists offending facts, if any.
type CorpusError struct {
	Path    string
	FactIDs []string
	Err     error
}

func (e *CorpusError) Error() string {
	var b strings.Builder
	b.WriteString("corpus")
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	if len(e.FactIDs) > 0 {
		fmt.Fprintf(&b, ": invalid facts [%s]", strings.Join(e.FactIDs, ", "))
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *CorpusError) Unwrap() error { return e.Err }

// ExtractionError wraps a failure of the entity extraction stage.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return "claim extraction: " + e.Err.Error() }
func (e *ExtractionError) Unwrap() error { return e.Err }

// RetrievalError wraps a failure of the evidence retrieval stage.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "evidence retrieval: " + e.Err.Error() }
func (e *RetrievalError) Unwrap() error { return e.Err }

// LLMError wraps a transport-level failure of the generative model call.
type LLMError struct {
	Err     error
	Timeout bool
}

func (e *LLMError) Error() string {
	if e.Timeout {
		return "llm call timed out: " + e.Err.Error()
	}
	return "llm call failed: " + e.Err.Error()
}

func (e *LLMError) Unwrap() error { return e.Err }

// ResponseParseError reports a model reply that did not match the expected JSON contract.
type ResponseParseError struct {
	Raw string
	Err error
}

func (e *ResponseParseError) Error() string { return "parse model response: " + e.Err.Error() }
func (e *ResponseParseError) Unwrap() error { return e.Err }

// PipelineError is a failed verification. Metadata holds the timings recorded before the failure.
type PipelineError struct {
	Stage    string
	Metadata Metadata
	Err      error
}

func (e *PipelineError) Error() string { return e.Stage + " stage failed: " + e.Err.Error() }
func (e *PipelineError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a deadline expiry or a timed-out model call.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var llmErr *LLMError
	return errors.As(err, &llmErr) && llmErr.Timeout
}

// CategoryOf maps an internal error onto its external category.
func CategoryOf(err error) ErrorCategory {
	var (
		llmErr    *LLMError
		corpusErr *CorpusError
		parseErr  *ResponseParseError
	)
	switch {
	case err == nil:
		return ""
	case IsTimeout(err):
		return CategoryTimeout
	case errors.As(err, &llmErr), errors.Is(err, ErrCorpusNotReady), errors.As(err, &corpusErr):
		return CategoryServiceUnavailable
	case errors.As(err, &parseErr):
		return CategoryInvalidEvidence
	default:
		return CategoryInternal
	}
}

// PublicMessage returns a caller-safe description for a category.
func (c ErrorCategory) PublicMessage() string {
	switch c {
	case CategoryTimeout:
		return "verification timed out; please retry"
	case CategoryServiceUnavailable:
		return "verification service is temporarily unavailable"
	case CategoryInvalidEvidence:
		return "evidence could not be evaluated"
	default:
		return "verification failed due to an internal error"
	}
}
