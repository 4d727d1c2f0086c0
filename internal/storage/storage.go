// Package storage persists the verification history.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kensho/internal/models"
)

// ErrNotFound is returned when a verification id is unknown.
var ErrNotFound = errors.New("verification not found")

// ListFilter narrows ListVerifications. A zero value lists everything, newest first.
type ListFilter struct {
	Verdict models.Verdict
	Offset  int
	Limit   int
}

// Storage defines verification history operations.
type Storage interface {
	SaveVerification(ctx context.Context, rec *models.VerificationRecord) error
	GetVerification(ctx context.Context, id string) (*models.VerificationRecord, error)
	ListVerifications(ctx context.Context, filter ListFilter) ([]*models.VerificationRecord, error)
	DeleteVerification(ctx context.Context, id string) error
	CountVerifications(ctx context.Context) (map[models.Verdict]int64, error)

	Close() error
}
