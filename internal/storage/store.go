package storage

import (
	"context"
	"errors"
	"time"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist for the given user
var ErrNotFound = errors.New("record not found")

// Store persists CVs, analyses and fetch history. Every read and delete is
// scoped to one user. Create methods assign an id and a timestamp when unset.
type Store interface {
	CreateCV(ctx context.Context, cv *models.CVRecord) error
	// ListCVs returns the user's CVs, newest first, without file bytes
	ListCVs(ctx context.Context, userID string) ([]models.CVRecord, error)
	GetCV(ctx context.Context, id, userID string) (*models.CVRecord, error)
	UpdateExtractedText(ctx context.Context, id, userID, text string) error
	// DeleteAllCVs removes the user's CVs together with their analyses
	DeleteAllCVs(ctx context.Context, userID string) error

	CreateAnalysis(ctx context.Context, a *models.AnalysisRecord) error
	ListAnalyses(ctx context.Context, userID string) ([]models.AnalysisRecord, error)
	DeleteAllAnalyses(ctx context.Context, userID string) error

	CreateFetchHistory(ctx context.Context, h *models.FetchHistory) error
	ListFetchHistory(ctx context.Context, userID string) ([]models.FetchHistory, error)
	LatestFetchBySource(ctx context.Context, source, userID string) (*models.FetchHistory, error)

	// DeleteUser removes everything stored for the user
	DeleteUser(ctx context.Context, userID string) error
	Close() error
}

func prepareCV(cv *models.CVRecord) {
	if cv.ID == "" {
		cv.ID = uuid.NewString()
	}
	if cv.DateReceived.IsZero() {
		cv.DateReceived = time.Now().UTC()
	}
}

func prepareAnalysis(a *models.AnalysisRecord) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now().UTC()
	}
}

func prepareFetchHistory(h *models.FetchHistory) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.FetchedAt.IsZero() {
		h.FetchedAt = time.Now().UTC()
	}
}
