// Package pipeline runs the verification stages for one claim: entity extraction, evidence retrieval
// and model comparison, then assembles the response.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/pkg/utils"
)

// Version is reported in every response's metadata.
const Version = "1.0"

// Stage names used in logs, spans, metrics and PipelineError.Stage.
const (
	StageExtraction = "extraction"
	StageRetrieval  = "retrieval"
	StageComparison = "comparison"
)

// State is the progress of one verification.
type State string

const (
	StateStarted   State = "started"
	StateExtracted State = "extracted"
	StateRetrieved State = "retrieved"
	StateCompared  State = "compared"
	StateAssembled State = "assembled"
	StateFailed    State = "failed"
)

// ClaimExtractor turns raw input into an extracted claim.
type ClaimExtractor interface {
	Extract(ctx context.Context, text string) (*models.ExtractedClaim, error)
}

// EvidenceRetriever finds evidence for a claim.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, claimText string, topK int, threshold float64) ([]models.RetrievedEvidence, error)
	Size() int
}

// EvidenceComparator judges a claim against its evidence.
type EvidenceComparator interface {
	Compare(ctx context.Context, claimText string, evidence []models.RetrievedEvidence) (*models.ComparisonResult, error)
}

// Recorder receives per-stage and per-verification observations.
type Recorder interface {
	ObserveStage(stage string, d time.Duration, err error)
	ObserveVerification(verdict models.Verdict, confidence float64, evidence int, d time.Duration, err error)
}

// Options configures an Orchestrator. Zero timeouts leave a stage bounded only by the caller's context.
type Options struct {
	TopK              int
	Threshold         float64
	ExtractionTimeout time.Duration
	RetrievalTimeout  time.Duration
	ComparisonTimeout time.Duration
	// Components names the backend behind each stage, for Info.
	Components map[string]string
	Logger     *zap.Logger
	Tracer     trace.Tracer
	Recorder   Recorder
}

// Orchestrator sequences the stages of a verification.
type Orchestrator struct {
	extractor  ClaimExtractor
	retriever  EvidenceRetriever
	comparator EvidenceComparator
	opts       Options
	logger     *zap.Logger
	tracer     trace.Tracer
}

// Info describes the configured pipeline.
type Info struct {
	Version             string            `json:"version"`
	Components          map[string]string `json:"components"`
	TopK                int               `json:"topK"`
	SimilarityThreshold float64           `json:"similarityThreshold"`
	FactBaseSize        int               `json:"factBaseSize"`
	Timeouts            map[string]string `json:"timeouts"`
}

// New creates an Orchestrator. TopK and Threshold default to 5 and 0.3.
func New(extractor ClaimExtractor, retriever EvidenceRetriever, comparator EvidenceComparator, opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.3
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/hyperjump/kensho/internal/pipeline")
	}
	return &Orchestrator{
		extractor:  extractor,
		retriever:  retriever,
		comparator: comparator,
		opts:       opts,
		logger:     utils.OrNop(opts.Logger),
		tracer:     tracer,
	}
}

// Verify runs the full pipeline for input. Extraction and retrieval failures degrade the result and
// are reported in the metadata; a comparison failure fails the request with a *models.PipelineError
// carrying the timings recorded so far.
func (o *Orchestrator) Verify(ctx context.Context, input string) (*models.RagResponse, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "kensho.verify", trace.WithAttributes(attribute.Int("claim.length", len(input))))
	defer span.End()

	state := StateStarted
	md := models.Metadata{PipelineVersion: Version, FactBaseSize: o.retriever.Size()}

	claim, extractionTime, err := o.extract(ctx, input)
	md.ExtractionTime = seconds(extractionTime)
	if err != nil {
		md.ExtractionError = err.Error()
		o.logger.Warn("Claim extraction failed, using raw input", zap.Error(err))
	}
	state = o.advance(state, StateExtracted)

	evidence, retrievalTime, err := o.retrieve(ctx, claim.Text)
	md.RetrievalTime = seconds(retrievalTime)
	md.FactsRetrieved = len(evidence)
	if err != nil {
		md.RetrievalError = err.Error()
		o.logger.Warn("Evidence retrieval failed, continuing without evidence", zap.Error(err))
	}
	state = o.advance(state, StateRetrieved)

	result, comparisonTime, err := o.compare(ctx, claim.Text, evidence)
	md.ComparisonTime = seconds(comparisonTime)
	if err != nil {
		md.ComparisonError = err.Error()
		md.TotalTime = seconds(time.Since(start))
		o.advance(state, StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, StageComparison)
		o.logger.Error("Verification failed",
			zap.String("stage", StageComparison),
			zap.String("category", string(models.CategoryOf(err))),
			zap.Error(err))
		o.observe(nil, len(evidence), time.Since(start), err)
		return nil, &models.PipelineError{Stage: StageComparison, Metadata: md, Err: err}
	}
	state = o.advance(state, StateCompared)

	resp := assemble(input, claim, result, evidence, md)
	resp.Metadata.TotalTime = seconds(time.Since(start))
	o.advance(state, StateAssembled)

	span.SetAttributes(
		attribute.String("verdict", string(result.Verdict)),
		attribute.Float64("confidence", result.Confidence),
		attribute.Int("evidence.count", len(evidence)),
	)
	o.logger.Info("Claim verified",
		zap.String("verdict", string(result.Verdict)),
		zap.Float64("confidence", result.Confidence),
		zap.Int("evidence", len(evidence)),
		zap.Float64("total_time", resp.Metadata.TotalTime))
	o.observe(result, len(evidence), time.Since(start), nil)
	return resp, nil
}

func (o *Orchestrator) extract(ctx context.Context, input string) (*models.ExtractedClaim, time.Duration, error) {
	ctx, span := o.tracer.Start(ctx, "kensho.extract")
	defer span.End()
	ctx, cancel := withTimeout(ctx, o.opts.ExtractionTimeout)
	defer cancel()

	start := time.Now()
	claim, err := o.extractor.Extract(ctx, input)
	elapsed := time.Since(start)
	if err == nil && claim == nil {
		err = &models.ExtractionError{Err: errors.New("no claim returned")}
	}
	o.stageDone(span, StageExtraction, elapsed, err)
	if err != nil {
		return &models.ExtractedClaim{
			Text:       strings.TrimSpace(input),
			Entities:   map[string][]string{},
			Confidence: 0.5,
		}, elapsed, err
	}
	span.SetAttributes(attribute.Int("entities.count", claim.EntityCount()))
	return claim, elapsed, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, claimText string) ([]models.RetrievedEvidence, time.Duration, error) {
	ctx, span := o.tracer.Start(ctx, "kensho.retrieve")
	defer span.End()
	ctx, cancel := withTimeout(ctx, o.opts.RetrievalTimeout)
	defer cancel()

	start := time.Now()
	evidence, err := o.retriever.Retrieve(ctx, claimText, o.opts.TopK, o.opts.Threshold)
	elapsed := time.Since(start)
	o.stageDone(span, StageRetrieval, elapsed, err)
	if err != nil {
		return []models.RetrievedEvidence{}, elapsed, err
	}
	span.SetAttributes(attribute.Int("evidence.count", len(evidence)))
	return evidence, elapsed, nil
}

func (o *Orchestrator) compare(ctx context.Context, claimText string, evidence []models.RetrievedEvidence) (*models.ComparisonResult, time.Duration, error) {
	ctx, span := o.tracer.Start(ctx, "kensho.compare")
	defer span.End()
	ctx, cancel := withTimeout(ctx, o.opts.ComparisonTimeout)
	defer cancel()

	start := time.Now()
	result, err := o.comparator.Compare(ctx, claimText, evidence)
	elapsed := time.Since(start)
	o.stageDone(span, StageComparison, elapsed, err)
	return result, elapsed, err
}

func (o *Orchestrator) stageDone(span trace.Span, stage string, elapsed time.Duration, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
	}
	if o.opts.Recorder != nil {
		o.opts.Recorder.ObserveStage(stage, elapsed, err)
	}
	o.logger.Debug("Stage complete", zap.String("stage", stage), zap.Duration("elapsed", elapsed), zap.Bool("failed", err != nil))
}

func (o *Orchestrator) observe(result *models.ComparisonResult, evidence int, d time.Duration, err error) {
	if o.opts.Recorder == nil {
		return
	}
	if result == nil {
		o.opts.Recorder.ObserveVerification("", 0, evidence, d, err)
		return
	}
	o.opts.Recorder.ObserveVerification(result.Verdict, result.Confidence, evidence, d, nil)
}

func (o *Orchestrator) advance(from, to State) State {
	o.logger.Debug("Pipeline state", zap.String("from", string(from)), zap.String("to", string(to)))
	return to
}

// Info describes the pipeline configuration and the current corpus size.
func (o *Orchestrator) Info() Info {
	components := make(map[string]string, len(o.opts.Components))
	for k, v := range o.opts.Components {
		components[k] = v
	}
	return Info{
		Version:             Version,
		Components:          components,
		TopK:                o.opts.TopK,
		SimilarityThreshold: o.opts.Threshold,
		FactBaseSize:        o.retriever.Size(),
		Timeouts: map[string]string{
			StageExtraction: o.opts.ExtractionTimeout.String(),
			StageRetrieval:  o.opts.RetrievalTimeout.String(),
			StageComparison: o.opts.ComparisonTimeout.String(),
		},
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func seconds(d time.Duration) float64 {
	return utils.Round(d.Seconds(), 3)
}
