package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/hyperjump/kensho/internal/cli"
	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/internal/storage"
)

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the history database directly)")
	verdict := fs.String("verdict", "", "only verifications with this verdict: true, false or unverifiable")
	limit := fs.Int("limit", 20, "number of records")
	offset := fs.Int("offset", 0, "records to skip")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	filter := storage.ListFilter{Offset: *offset, Limit: *limit}
	if *verdict != "" {
		v, ok := models.ParseVerdict(*verdict)
		if !ok {
			fail("verdict must be true, false or unverifiable")
		}
		filter.Verdict = v
	}
	id := joinArgs(fs.Args())

	var src historySource
	if *serverURL != "" {
		src = httpHistory{baseURL: strings.TrimRight(*serverURL, "/")}
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		db, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			fail("Failed to open history: %v", err)
		}
		defer db.Close()
		src = db
	}

	ctx := context.Background()
	if id != "" {
		rec, err := src.GetVerification(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			fail("Verification %q not found", id)
		}
		if err != nil {
			fail("History failed: %v", err)
		}
		if rec.Response == nil {
			err = cli.WriteHistory(os.Stdout, []*models.VerificationRecord{rec}, format)
		} else {
			err = cli.WriteVerification(os.Stdout, rec.Response, format)
		}
		if err != nil {
			fail("Output failed: %v", err)
		}
		return
	}
	recs, err := src.ListVerifications(ctx, filter)
	if err != nil {
		fail("History failed: %v", err)
	}
	if err := cli.WriteHistory(os.Stdout, recs, format); err != nil {
		fail("Output failed: %v", err)
	}
}

// historySource is the read side of the verification history, local or remote.
type historySource interface {
	GetVerification(ctx context.Context, id string) (*models.VerificationRecord, error)
	ListVerifications(ctx context.Context, filter storage.ListFilter) ([]*models.VerificationRecord, error)
}

// httpHistory reads the history from a running server, avoiding a second writer on the database.
type httpHistory struct {
	baseURL string
}

func (h httpHistory) GetVerification(ctx context.Context, id string) (*models.VerificationRecord, error) {
	var rec models.VerificationRecord
	err := h.get(ctx, "/api/v1/verifications/"+url.PathEscape(id), &rec)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (h httpHistory) ListVerifications(ctx context.Context, filter storage.ListFilter) ([]*models.VerificationRecord, error) {
	q := url.Values{}
	if filter.Verdict != "" {
		q.Set("verdict", string(filter.Verdict))
	}
	q.Set("limit", strconv.Itoa(filter.Limit))
	q.Set("offset", strconv.Itoa(filter.Offset))
	var body struct {
		Verifications []*models.VerificationRecord `json:"verifications"`
	}
	if err := h.get(ctx, "/api/v1/verifications?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	return body.Verifications, nil
}

func (h httpHistory) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return storage.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
