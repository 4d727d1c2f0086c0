package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensho/pkg/utils"
)

// GlinerClient calls a GLiNER entity extraction service over HTTP.
type GlinerClient struct {
	baseURL    string
	apiKey     string
	labels     []string
	threshold  float64
	httpClient *http.Client
	logger     *zap.Logger
}

type glinerRequest struct {
	Task      string   `json:"task"`
	Text      string   `json:"text"`
	Schema    []string `json:"schema"`
	Threshold float64  `json:"threshold,omitempty"`
}

type glinerEntity struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	Start      int     `json:"start,omitempty"`
	End        int     `json:"end,omitempty"`
}

type glinerResponse struct {
	Result struct {
		Entities map[string][]glinerEntity `json:"entities"`
	} `json:"result"`
}

// NewGlinerClient creates a client for the service at endpoint. labels are sent as the extraction schema.
func NewGlinerClient(endpoint, apiKey string, labels []string, threshold float64, timeout time.Duration, logger *zap.Logger) (*GlinerClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("extraction.endpoint is required for the gliner backend")
	}
	return &GlinerClient{
		baseURL:    strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		labels:     labels,
		threshold:  threshold,
		httpClient: &http.Client{Timeout: timeout},
		logger:     utils.OrNop(logger),
	}, nil
}

// Health checks that the service is up.
func (c *GlinerClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// Recognize posts text to the service and flattens the per-label entity lists.
func (c *GlinerClient) Recognize(ctx context.Context, text string) ([]Entity, error) {
	body, err := json.Marshal(glinerRequest{
		Task:      "extract_entities",
		Text:      text,
		Schema:    c.labels,
		Threshold: c.threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/gliner-2", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiError struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(respBody, &apiError)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, apiError.Detail)
	}

	var parsed glinerResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	labels := c.labels
	if len(labels) == 0 {
		for label := range parsed.Result.Entities {
			labels = append(labels, label)
		}
		sort.Strings(labels)
	}
	var entities []Entity
	for _, label := range labels {
		for _, e := range parsed.Result.Entities[label] {
			entities = append(entities, Entity{
				Text:  e.Text,
				Label: NormalizeLabel(label),
				Score: e.Confidence,
				Start: e.Start,
				End:   e.End,
			})
		}
	}
	c.logger.Debug("GLiNER entities", zap.Int("count", len(entities)))
	return entities, nil
}

func (c *GlinerClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Close releases idle connections.
func (c *GlinerClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
