package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kensho/internal/app"
	"github.com/hyperjump/kensho/internal/config"
	"github.com/hyperjump/kensho/internal/llm"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

const corpusJSON = `{
  "version": "1.0",
  "facts": [
    {"id": "pib-2024-001", "claim": "Maize production rose by 12 percent in 2023.", "category": "agriculture",
     "source": "https://example.gov/releases/1", "publication_date": "2024-01-15"},
    {"id": "pib-2024-002", "claim": "The government built 300 new health centres last year.", "category": "health",
     "source": "https://example.gov/releases/2", "publication_date": "2024-02-01"},
    {"id": "pib-2024-003", "claim": "Health spending rose to 9 percent of the budget.", "category": "health",
     "source": "https://example.gov/releases/3", "publication_date": "2024-03-01"}
  ]
}`

var trueReply = generatorFunc(func(context.Context, string) (string, error) {
	return `{"verdict":"true","confidence":0.85,"explanation":"Matches the release.","reasoning":"Same figure."}`, nil
})

func newTestServer(t *testing.T, gen generatorFunc, load bool, tweak func(*config.Config)) (*Server, *app.Components) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Corpus.Path = filepath.Join(dir, "fact_base.json")
	cfg.Storage.DatabasePath = filepath.Join(dir, "history.db")
	cfg.Embedding.Dimensions = 64
	cfg.Metrics.Enabled = true
	if tweak != nil {
		tweak(cfg)
	}
	require.NoError(t, os.WriteFile(cfg.Corpus.Path, []byte(corpusJSON), 0600))

	c, err := app.Initialize(cfg, nil, app.Options{Pipeline: true, History: true, Metrics: true, Generator: gen})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	if load {
		_, err := c.Reload(context.Background())
		require.NoError(t, err)
	}
	return NewServer(c, &cfg.Server, nil), c
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHandleVerify(t *testing.T) {
	srv, _ := newTestServer(t, trueReply, true, nil)
	h := srv.Router()

	w := do(t, h, http.MethodPost, "/api/v1/verify", `{"claim": "Maize production rose by 12 percent in 2023."}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Verification-ID"))

	body := decode(t, w)
	assert.Equal(t, "true", body["verdict"])
	assert.Equal(t, 0.85, body["confidence"])
	for _, key := range []string{"claim", "extractedClaim", "explanation", "reasoning", "evidence", "sources", "metadata"} {
		assert.Contains(t, body, key)
	}
	md := body["metadata"].(map[string]interface{})
	assert.Equal(t, "1.0", md["pipelineVersion"])
	assert.Equal(t, 3.0, md["factBaseSize"])
	evidence := body["evidence"].([]interface{})
	require.NotEmpty(t, evidence)
	first := evidence[0].(map[string]interface{})
	for _, key := range []string{"claim", "similarity", "sourceUrl", "publicationDate", "category"} {
		assert.Contains(t, first, key)
	}
}

func TestHandleVerify_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, trueReply, true, func(c *config.Config) { c.Server.MaxClaimLength = 30 })
	h := srv.Router()

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"claim":`},
		{"empty", `{"claim": ""}`},
		{"whitespace", `{"claim": "  \n\t"}`},
		{"too long", `{"claim": "` + strings.Repeat("x", 31) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/verify", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode(t, w), "error")
		})
	}
}

func TestHandleVerify_Failures(t *testing.T) {
	slow := generatorFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	down := generatorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	})

	tests := []struct {
		name     string
		gen      generatorFunc
		load     bool
		status   int
		category string
	}{
		{"corpus not loaded", trueReply, false, http.StatusServiceUnavailable, "serviceUnavailable"},
		{"model timeout", slow, true, http.StatusGatewayTimeout, "timeout"},
		{"model unavailable", down, true, http.StatusServiceUnavailable, "serviceUnavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.gen, tt.load, func(c *config.Config) { c.LLM.Timeout = 20 * time.Millisecond })
			w := do(t, srv.Router(), http.MethodPost, "/api/v1/verify", `{"claim": "Maize production rose by 12 percent in 2023."}`)
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.category, body["category"])
			assert.NotContains(t, body["error"], "connection refused")
		})
	}
}

func TestHandleFacts(t *testing.T) {
	srv, _ := newTestServer(t, trueReply, true, nil)
	h := srv.Router()

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"all", "", 3},
		{"category", "?category=Health", 2},
		{"limit", "?limit=1", 1},
		{"keyword", "?q=centres&mode=keyword", 1},
		{"keyword in category", "?q=health&category=agriculture&mode=keyword", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodGet, "/api/v1/facts"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code)
			body := decode(t, w)
			assert.Equal(t, float64(tt.want), body["total"])
			for _, f := range body["facts"].([]interface{}) {
				assert.NotContains(t, f.(map[string]interface{}), "embedding")
			}
		})
	}

	w := do(t, h, http.MethodGet, "/api/v1/facts?q=health+centres+built", "")
	require.Equal(t, http.StatusOK, w.Code)
	facts := decode(t, w)["facts"].([]interface{})
	require.NotEmpty(t, facts)
	assert.Equal(t, "pib-2024-002", facts[0].(map[string]interface{})["id"])

	w = do(t, h, http.MethodGet, "/api/v1/facts?q=maize&mode=fast", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/facts/pib-2024-002", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "health", decode(t, w)["category"])

	w = do(t, h, http.MethodGet, "/api/v1/facts/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleVerifications(t *testing.T) {
	srv, _ := newTestServer(t, trueReply, true, nil)
	h := srv.Router()

	w := do(t, h, http.MethodPost, "/api/v1/verify", `{"claim": "Maize production rose by 12 percent in 2023."}`)
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get("X-Verification-ID")

	w = do(t, h, http.MethodGet, "/api/v1/verifications?verdict=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["verifications"], 1)

	w = do(t, h, http.MethodGet, "/api/v1/verifications?verdict=false", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["verifications"], 0)

	w = do(t, h, http.MethodGet, "/api/v1/verifications?verdict=maybe", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/verifications/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["id"])

	w = do(t, h, http.MethodGet, "/api/v1/verifications/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleReloadAndStatus(t *testing.T) {
	srv, c := newTestServer(t, trueReply, false, nil)
	h := srv.Router()

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, "degraded", decode(t, w)["status"])

	w = do(t, h, http.MethodPost, "/api/v1/reload", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["reloaded"])

	w = do(t, h, http.MethodPost, "/api/v1/reload", "")
	assert.Equal(t, false, decode(t, w)["reloaded"])

	require.NoError(t, os.WriteFile(c.Config.Corpus.Path, []byte(`{"facts": "nope"}`), 0600))
	w = do(t, h, http.MethodPost, "/api/v1/reload", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 3.0, decode(t, w)["factBaseSize"])

	w = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = do(t, h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	for _, key := range []string{"pipeline", "corpus", "retrieval", "verifications", "diskUsageBytes"} {
		assert.Contains(t, body, key)
	}
	assert.Equal(t, 3.0, body["pipeline"].(map[string]interface{})["factBaseSize"])

	w = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kensho_corpus_reloads_total")
}

func TestHandleStatus_CircuitState(t *testing.T) {
	s, c := newTestServer(t, trueReply, true, nil)
	w := do(t, s.Router(), http.MethodGet, "/api/v1/status", "")
	assert.NotContains(t, decode(t, w), "llmCircuit")

	c.Generator = llm.NewBreakerGenerator(trueReply, config.BreakerConfig{Enabled: true, ReadyToTripRatio: 0.5}, "test", nil)
	w = do(t, s.Router(), http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, "closed", decode(t, w)["llmCircuit"])
}
