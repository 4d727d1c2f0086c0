package compare

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/hyperjump/kensho/internal/models"
)

var thinkTags = regexp.MustCompile(`(?s)<think>.*?</think>`)

// reply is the decoded model answer. Confidence stays raw so null, strings and absence can be told apart.
type reply struct {
	Verdict     *string         `json:"verdict"`
	Confidence  json.RawMessage `json:"confidence"`
	Explanation *string         `json:"explanation"`
	Reasoning   *string         `json:"reasoning"`
}

// parsed is a reply that passed the contract checks.
type parsed struct {
	verdict       models.Verdict
	knownVerdict  bool
	confidence    float64
	hasConfidence bool
	explanation   string
	reasoning     string
}

// extractJSON locates the JSON object in a model reply: a ```json fence, any ``` fence, or the first
// complete object carrying a "verdict" key. Prose braces around the object are skipped. When no object
// decodes, it returns the span from the first to the last brace for the repair pass, or "" when the
// reply holds no brace at all.
func extractJSON(response string) string {
	response = strings.TrimSpace(thinkTags.ReplaceAllString(response, ""))

	if start := strings.Index(response, "```json"); start != -1 {
		body := response[start+len("```json"):]
		if end := strings.Index(body, "```"); end != -1 {
			response = body[:end]
		}
	} else if start := strings.Index(response, "```"); start != -1 {
		body := response[start+3:]
		if end := strings.Index(body, "```"); end != -1 {
			response = body[:end]
		}
	}

	jsonStart := strings.Index(response, "{")
	if jsonStart == -1 {
		return ""
	}
	for i := jsonStart; i < len(response); i++ {
		if response[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(response[i:]))
		var obj map[string]json.RawMessage
		if err := dec.Decode(&obj); err != nil {
			continue
		}
		if _, ok := obj["verdict"]; ok {
			return response[i : i+int(dec.InputOffset())]
		}
	}
	jsonEnd := strings.LastIndex(response, "}")
	if jsonEnd < jsonStart {
		// Truncated reply; let the repair pass close it.
		return response[jsonStart:]
	}
	return response[jsonStart : jsonEnd+1]
}

// parseReply decodes and validates a model reply, repairing near-JSON (single quotes, trailing commas,
// missing braces) before giving up.
func parseReply(raw string) (p *parsed, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, &models.ResponseParseError{Raw: raw, Err: fmt.Errorf("repair panicked: %v", r)}
		}
	}()

	block := extractJSON(raw)
	if block == "" {
		return nil, &models.ResponseParseError{Raw: raw, Err: errors.New("no JSON object in response")}
	}

	var r reply
	if err := json.Unmarshal([]byte(block), &r); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(block)
		if repairErr != nil {
			return nil, &models.ResponseParseError{Raw: raw, Err: err}
		}
		r = reply{}
		if err := json.Unmarshal([]byte(repaired), &r); err != nil {
			return nil, &models.ResponseParseError{Raw: raw, Err: err}
		}
	}

	switch {
	case r.Verdict == nil:
		return nil, &models.ResponseParseError{Raw: raw, Err: errors.New("missing 'verdict' field")}
	case r.Explanation == nil || strings.TrimSpace(*r.Explanation) == "":
		return nil, &models.ResponseParseError{Raw: raw, Err: errors.New("missing 'explanation' field")}
	case r.Reasoning == nil || strings.TrimSpace(*r.Reasoning) == "":
		return nil, &models.ResponseParseError{Raw: raw, Err: errors.New("missing 'reasoning' field")}
	}

	p = &parsed{explanation: *r.Explanation, reasoning: *r.Reasoning}
	p.verdict, p.knownVerdict = models.ParseVerdict(*r.Verdict)
	if p.confidence, p.hasConfidence, err = decodeConfidence(r.Confidence); err != nil {
		return nil, &models.ResponseParseError{Raw: raw, Err: err}
	}
	return p, nil
}

// decodeConfidence accepts a number or a numeric string, optionally with a percent sign. A missing or
// null confidence is absent; any other value is an error.
func decodeConfidence(raw json.RawMessage) (float64, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		percent := strings.HasSuffix(s, "%")
		if v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64); err == nil {
			if percent {
				v /= 100
			}
			return v, true, nil
		}
	}
	return 0, false, fmt.Errorf("'confidence' is not a number: %s", raw)
}
