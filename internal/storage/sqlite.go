package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kensho/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS verifications (
		id TEXT PRIMARY KEY,
		claim TEXT NOT NULL,
		verdict TEXT NOT NULL,
		confidence REAL NOT NULL,
		response TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_verifications_created_at ON verifications(created_at);
	CREATE INDEX IF NOT EXISTS idx_verifications_verdict ON verifications(verdict);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveVerification inserts a record, assigning an id and creation time when unset.
func (s *SQLiteStorage) SaveVerification(ctx context.Context, rec *models.VerificationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var responseJSON []byte
	if rec.Response != nil {
		var err error
		if responseJSON, err = json.Marshal(rec.Response); err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verifications (id, claim, verdict, confidence, response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Claim, string(rec.Verdict), rec.Confidence, string(responseJSON), rec.CreatedAt,
	)
	return err
}

// GetVerification returns a record by id.
func (s *SQLiteStorage) GetVerification(ctx context.Context, id string) (*models.VerificationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, claim, verdict, confidence, response, created_at
		 FROM verifications WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// ListVerifications returns records newest first. The stored responses are omitted.
func (s *SQLiteStorage) ListVerifications(ctx context.Context, filter ListFilter) ([]*models.VerificationRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, claim, verdict, confidence, '', created_at FROM verifications`
	args := []any{}
	if filter.Verdict != "" {
		query += ` WHERE verdict = ?`
		args = append(args, string(filter.Verdict))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.VerificationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteVerification removes a record by id.
func (s *SQLiteStorage) DeleteVerification(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM verifications WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// CountVerifications returns the number of stored records per verdict.
func (s *SQLiteStorage) CountVerifications(ctx context.Context) (map[models.Verdict]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT verdict, COUNT(*) FROM verifications GROUP BY verdict`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Verdict]int64)
	for rows.Next() {
		var verdict string
		var n int64
		if err := rows.Scan(&verdict, &n); err != nil {
			return nil, err
		}
		counts[models.Verdict(verdict)] = n
	}
	return counts, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.VerificationRecord, error) {
	var rec models.VerificationRecord
	var verdict, responseJSON string
	if err := row.Scan(&rec.ID, &rec.Claim, &verdict, &rec.Confidence, &responseJSON, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Verdict = models.Verdict(verdict)
	if responseJSON != "" {
		var resp models.RagResponse
		if err := json.Unmarshal([]byte(responseJSON), &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		rec.Response = &resp
	}
	return &rec, nil
}
