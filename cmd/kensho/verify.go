package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/app"
	"github.com/hyperjump/kensho/internal/cli"
	"github.com/hyperjump/kensho/internal/models"
)

// apiError is the failure body returned by the HTTP API.
type apiError struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

func runVerify() {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run the pipeline in-process)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	debug := fs.Bool("debug", false, "enable debug logging (in-process mode)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	claim := joinArgs(fs.Args())
	if claim == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fail("Failed to read claim from stdin: %v", err)
		}
		claim = strings.TrimSpace(string(data))
	}
	if claim == "" {
		fail("Usage: kensho verify [flags] <claim>")
	}

	var resp *models.RagResponse
	if *serverURL != "" {
		resp, err = verifyViaHTTP(*serverURL, claim)
	} else {
		resp, err = verifyInProcess(*configPath, *debug, claim)
	}
	if err != nil {
		fail("Verification failed: %v", err)
	}
	if err := cli.WriteVerification(os.Stdout, resp, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func verifyInProcess(configPath string, debug bool, claim string) (*models.RagResponse, error) {
	cfg, _, logger := setup(configPath, debug)
	defer logger.Sync()

	components, err := app.Initialize(cfg, logger, app.Options{Pipeline: true, History: true})
	if err != nil {
		return nil, err
	}
	defer components.Close()

	ctx := context.Background()
	if _, err := components.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	resp, id, err := components.Verify(ctx, claim)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", models.CategoryOf(err), err)
	}
	logger.Debug("Verification recorded", zap.String("id", id))
	return resp, nil
}

var httpClient = &http.Client{Timeout: 2 * time.Minute}

func verifyViaHTTP(serverURL, claim string) (*models.RagResponse, error) {
	body, err := json.Marshal(models.VerifyRequest{Claim: claim})
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Post(strings.TrimRight(serverURL, "/")+"/api/v1/verify", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	var out models.RagResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// responseError turns a non-200 API response into an error carrying the server's message.
func responseError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var e apiError
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		if e.Category != "" {
			return fmt.Errorf("server returned %d (%s): %s", resp.StatusCode, e.Category, e.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}
