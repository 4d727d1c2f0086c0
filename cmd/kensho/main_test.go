package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/internal/storage"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after claim are moved first",
			args:     []string{"maize rose 12 percent", "-output", "json"},
			expected: []string{"-output", "json", "maize rose 12 percent"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "maize rose 12 percent"},
			expected: []string{"-output", "json", "maize rose 12 percent"},
		},
		{
			name:     "claim only returns unchanged",
			args:     []string{"maize rose 12 percent"},
			expected: []string{"maize rose 12 percent"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "stdin marker is not a flag",
			args:     []string{"-"},
			expected: []string{"-"},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "-limit", "5"},
			expected: []string{"-limit", "5", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJoinArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"maize"}, "maize"},
		{"multiple words", []string{"maize", "production"}, "maize production"},
		{"single quoted phrase", []string{"maize production"}, "maize production"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinArgs(tt.args); got != tt.expected {
				t.Errorf("joinArgs(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
corpus:
  path: "./data/fact_base.json"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
	if !filepath.IsAbs(cfg.Corpus.Path) || !strings.HasSuffix(cfg.Corpus.Path, filepath.Join("data", "fact_base.json")) {
		t.Errorf("corpus path = %q, want absolute path under the config dir", cfg.Corpus.Path)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestVerifyViaHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/verify" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req models.VerifyRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(req.Claim, "slow") {
			w.WriteHeader(http.StatusGatewayTimeout)
			_ = json.NewEncoder(w).Encode(apiError{Error: "verification timed out; please retry", Category: "timeout"})
			return
		}
		_ = json.NewEncoder(w).Encode(models.RagResponse{Claim: req.Claim, Verdict: models.VerdictFalse, Confidence: 0.7})
	}))
	defer ts.Close()

	resp, err := verifyViaHTTP(ts.URL+"/", "Maize production fell")
	if err != nil {
		t.Fatalf("verifyViaHTTP: %v", err)
	}
	if resp.Verdict != models.VerdictFalse || resp.Claim != "Maize production fell" {
		t.Errorf("response = %+v", resp)
	}

	_, err = verifyViaHTTP(ts.URL, "a slow claim")
	if err == nil || !strings.Contains(err.Error(), "504 (timeout)") {
		t.Errorf("error = %v, want 504 timeout", err)
	}
}

func TestHTTPHistory(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/verifications":
			gotQuery = r.URL.RawQuery
			_, _ = w.Write([]byte(`{"verifications":[{"id":"a","claim":"c","verdict":"true","confidence":0.9}]}`))
		case "/api/v1/verifications/a":
			_, _ = w.Write([]byte(`{"id":"a","claim":"c","verdict":"true","confidence":0.9}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"verification not found"}`))
		}
	}))
	defer ts.Close()

	h := httpHistory{baseURL: ts.URL}
	ctx := context.Background()

	recs, err := h.ListVerifications(ctx, storage.ListFilter{Verdict: models.VerdictTrue, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != "a" {
		t.Errorf("records = %+v", recs)
	}
	if !strings.Contains(gotQuery, "verdict=true") || !strings.Contains(gotQuery, "limit=5") {
		t.Errorf("query = %q", gotQuery)
	}

	rec, err := h.GetVerification(ctx, "a")
	if err != nil || rec.Verdict != models.VerdictTrue {
		t.Errorf("GetVerification = %+v, %v", rec, err)
	}
	if _, err := h.GetVerification(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing record error = %v, want ErrNotFound", err)
	}
}
