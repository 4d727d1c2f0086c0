package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kensho/internal/claim"
	"github.com/hyperjump/kensho/internal/compare"
	"github.com/hyperjump/kensho/internal/embedding"
	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/internal/ner"
	"github.com/hyperjump/kensho/internal/retrieval"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string) (*models.ExtractedClaim, error) {
	return nil, &models.ExtractionError{Err: errors.New("ner service down")}
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, string, int, float64) ([]models.RetrievedEvidence, error) {
	return nil, &models.RetrievalError{Err: errors.New("embedder down")}
}
func (failingRetriever) Size() int { return 7 }

type recorder struct {
	mu            sync.Mutex
	stages        []string
	verifications int
	lastErr       error
}

func (r *recorder) ObserveStage(stage string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recorder) ObserveVerification(_ models.Verdict, _ float64, _ int, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifications++
	r.lastErr = err
}

var testFacts = []*models.Fact{
	{ID: "pib-2024-001", Claim: "Maize production rose by 12 percent in 2023.", Category: "agriculture",
		Source: "https://example.gov/releases/1", PublicationDate: "2024-01-15"},
	{ID: "pib-2024-002", Claim: "The government built 300 new health centres last year.", Category: "health",
		Source: "https://example.gov/releases/2", PublicationDate: "2024-02-01"},
	{ID: "pib-2024-003", Claim: "Inflation fell to 5.1 percent in March.", Category: "economy",
		Source: "https://example.gov/releases/3", PublicationDate: "2024-04-02"},
}

func newIndex(t *testing.T, facts []*models.Fact) *retrieval.Index {
	t.Helper()
	emb := embedding.NewMockEmbedder(64)
	idx := retrieval.New(emb)
	if facts == nil {
		return idx
	}
	built := make([]*models.Fact, len(facts))
	for i, f := range facts {
		cp := *f
		v, err := emb.Embed(context.Background(), f.Claim)
		require.NoError(t, err)
		cp.Embedding = v
		built[i] = &cp
	}
	require.NoError(t, idx.Build(built))
	return idx
}

func newExtractor() *claim.Extractor {
	return claim.NewExtractor(ner.NewRulesRecognizer(), nil, nil)
}

const trueReply = "```json\n{\"verdict\": \"TRUE\", \"confidence\": 0.92, \"explanation\": \"Matches the release.\", \"reasoning\": \"Same figure and year.\"}\n```"

func TestVerify_supportedClaim(t *testing.T) {
	rec := &recorder{}
	calls := 0
	gen := generatorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		assert.Contains(t, prompt, "Maize production rose by 12 percent in 2023.")
		return trueReply, nil
	})
	o := New(newExtractor(), newIndex(t, testFacts), compare.NewComparator(gen, nil), Options{Recorder: rec})

	resp, err := o.Verify(context.Background(), "  Maize production rose by 12 percent in 2023.  ")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, "  Maize production rose by 12 percent in 2023.  ", resp.Claim)
	assert.Equal(t, "Maize production rose by 12 percent in 2023.", resp.ExtractedClaim.Text)
	assert.Equal(t, 1.0, resp.ExtractedClaim.Confidence)
	assert.Equal(t, models.VerdictTrue, resp.Verdict)
	assert.Equal(t, 0.92, resp.Confidence)
	require.NotEmpty(t, resp.Evidence)
	assert.Equal(t, testFacts[0].Claim, resp.Evidence[0].Claim)
	assert.InDelta(t, 1.0, resp.Evidence[0].Similarity, 1e-6)
	assert.Equal(t, "https://example.gov/releases/1", resp.Sources[0])

	md := resp.Metadata
	assert.Equal(t, Version, md.PipelineVersion)
	assert.Equal(t, 3, md.FactBaseSize)
	assert.Equal(t, len(resp.Evidence), md.FactsRetrieved)
	assert.GreaterOrEqual(t, md.TotalTime, md.ExtractionTime)
	assert.Empty(t, md.ExtractionError)
	assert.Empty(t, md.RetrievalError)

	assert.Equal(t, []string{StageExtraction, StageRetrieval, StageComparison}, rec.stages)
	assert.Equal(t, 1, rec.verifications)
	assert.NoError(t, rec.lastErr)
}

func TestVerify_emptyCorpus(t *testing.T) {
	gen := generatorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("must not be called")
	})
	o := New(newExtractor(), newIndex(t, nil), compare.NewComparator(gen, nil), Options{})

	resp, err := o.Verify(context.Background(), "Unemployment fell to 3 percent.")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictUnverifiable, resp.Verdict)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.Empty(t, resp.Evidence)
	assert.NotNil(t, resp.Sources)
	assert.Equal(t, 0, resp.Metadata.FactsRetrieved)
	assert.Equal(t, 0, resp.Metadata.FactBaseSize)
}

func TestVerify_extractionFallback(t *testing.T) {
	o := New(failingExtractor{}, newIndex(t, testFacts), compare.NewComparator(generatorFunc(
		func(context.Context, string) (string, error) { return trueReply, nil }), nil), Options{})

	resp, err := o.Verify(context.Background(), "\tInflation fell to 5.1 percent in March.\n")
	require.NoError(t, err)
	assert.Equal(t, "Inflation fell to 5.1 percent in March.", resp.ExtractedClaim.Text)
	assert.Empty(t, resp.ExtractedClaim.Entities)
	assert.Equal(t, 0.5, resp.ExtractedClaim.Confidence)
	assert.Contains(t, resp.Metadata.ExtractionError, "ner service down")
	assert.Equal(t, models.VerdictTrue, resp.Verdict)
}

func TestVerify_retrievalFallback(t *testing.T) {
	called := false
	gen := generatorFunc(func(context.Context, string) (string, error) {
		called = true
		return trueReply, nil
	})
	o := New(newExtractor(), failingRetriever{}, compare.NewComparator(gen, nil), Options{})

	resp, err := o.Verify(context.Background(), "Inflation fell to 5.1 percent in March.")
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, models.VerdictUnverifiable, resp.Verdict)
	assert.Contains(t, resp.Metadata.RetrievalError, "embedder down")
	assert.Equal(t, 7, resp.Metadata.FactBaseSize)
	assert.Empty(t, resp.Evidence)
}

func TestVerify_modelTimeout(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	rec := &recorder{}
	o := New(newExtractor(), newIndex(t, testFacts), compare.NewComparator(gen, nil), Options{
		ComparisonTimeout: 20 * time.Millisecond,
		Recorder:          rec,
	})

	resp, err := o.Verify(context.Background(), "Maize production rose by 12 percent in 2023.")
	require.Error(t, err)
	assert.Nil(t, resp)

	var pipeErr *models.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, StageComparison, pipeErr.Stage)
	assert.Equal(t, models.CategoryTimeout, models.CategoryOf(err))
	assert.GreaterOrEqual(t, pipeErr.Metadata.ComparisonTime, 0.02)
	assert.Positive(t, pipeErr.Metadata.FactsRetrieved)

	data, err := json.Marshal(pipeErr.Metadata)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Contains(t, fields, "extractionTime")
	assert.Contains(t, fields, "retrievalTime")
	assert.Error(t, rec.lastErr)
}

func TestVerify_callerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	o := New(newExtractor(), newIndex(t, testFacts), compare.NewComparator(gen, nil), Options{ComparisonTimeout: time.Minute})

	_, err := o.Verify(ctx, "Maize production rose by 12 percent in 2023.")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.CategoryServiceUnavailable, models.CategoryOf(err))
}

func TestAssemble_deduplicatesSources(t *testing.T) {
	shared := "https://example.gov/releases/shared"
	evidence := []models.RetrievedEvidence{
		{Fact: &models.Fact{Claim: "a", Source: shared}, Similarity: 0.9},
		{Fact: &models.Fact{Claim: "b", Source: "https://example.gov/other"}, Similarity: 0.8},
		{Fact: &models.Fact{Claim: "c", Source: shared}, Similarity: 0.7},
	}
	resp := assemble("x", &models.ExtractedClaim{Text: "x"},
		&models.ComparisonResult{Verdict: models.VerdictFalse, Confidence: 0.4}, evidence, models.Metadata{})
	assert.Equal(t, []string{shared, "https://example.gov/other"}, resp.Sources)
	assert.Len(t, resp.Evidence, 3)
	assert.Equal(t, 3, resp.Metadata.FactsRetrieved)
	assert.Equal(t, "c", resp.Evidence[2].Claim)
}

func TestInfo(t *testing.T) {
	o := New(newExtractor(), newIndex(t, testFacts), compare.NewComparator(nil, nil), Options{
		TopK:              3,
		Threshold:         0.4,
		ComparisonTimeout: 30 * time.Second,
		Components:        map[string]string{"llm": "openai/gpt-4o-mini"},
	})
	info := o.Info()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, 3, info.TopK)
	assert.Equal(t, 0.4, info.SimilarityThreshold)
	assert.Equal(t, 3, info.FactBaseSize)
	assert.Equal(t, "openai/gpt-4o-mini", info.Components["llm"])
	assert.Equal(t, "30s", info.Timeouts[StageComparison])
}
