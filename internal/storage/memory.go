package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
)

// Memory keeps everything in process memory. It is used when no database is
// configured and in tests.
type Memory struct {
	mu       sync.RWMutex
	cvs      []models.CVRecord
	analyses []models.AnalysisRecord
	history  []models.FetchHistory
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) CreateCV(_ context.Context, cv *models.CVRecord) error {
	prepareCV(cv)

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *cv
	stored.FileData = slices.Clone(cv.FileData)
	m.cvs = append(m.cvs, stored)
	return nil
}

func (m *Memory) ListCVs(_ context.Context, userID string) ([]models.CVRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.CVRecord
	for _, cv := range m.cvs {
		if cv.UserID == userID {
			cv.FileData = nil
			out = append(out, cv)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DateReceived.After(out[j].DateReceived)
	})
	return out, nil
}

func (m *Memory) GetCV(_ context.Context, id, userID string) (*models.CVRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cv := range m.cvs {
		if cv.ID == id && cv.UserID == userID {
			cv.FileData = slices.Clone(cv.FileData)
			return &cv, nil
		}
	}
	return nil, fmt.Errorf("cv %s: %w", id, ErrNotFound)
}

func (m *Memory) UpdateExtractedText(_ context.Context, id, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.cvs {
		if m.cvs[i].ID == id && m.cvs[i].UserID == userID {
			m.cvs[i].ExtractedText = text
			return nil
		}
	}
	return fmt.Errorf("cv %s: %w", id, ErrNotFound)
}

func (m *Memory) DeleteAllCVs(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make(map[string]struct{})
	m.cvs = slices.DeleteFunc(m.cvs, func(cv models.CVRecord) bool {
		if cv.UserID == userID {
			removed[cv.ID] = struct{}{}
			return true
		}
		return false
	})
	m.analyses = slices.DeleteFunc(m.analyses, func(a models.AnalysisRecord) bool {
		_, ok := removed[a.CVID]
		return ok
	})
	return nil
}

func (m *Memory) CreateAnalysis(_ context.Context, a *models.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, cv := range m.cvs {
		if cv.ID == a.CVID && cv.UserID == a.UserID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("cv %s: %w", a.CVID, ErrNotFound)
	}

	prepareAnalysis(a)
	stored := *a
	stored.Strengths = slices.Clone(a.Strengths)
	stored.Weaknesses = slices.Clone(a.Weaknesses)
	m.analyses = append(m.analyses, stored)
	return nil
}

func (m *Memory) ListAnalyses(_ context.Context, userID string) ([]models.AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.AnalysisRecord
	for _, a := range m.analyses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AnalyzedAt.After(out[j].AnalyzedAt)
	})
	return out, nil
}

func (m *Memory) DeleteAllAnalyses(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.analyses = slices.DeleteFunc(m.analyses, func(a models.AnalysisRecord) bool {
		return a.UserID == userID
	})
	return nil
}

func (m *Memory) CreateFetchHistory(_ context.Context, h *models.FetchHistory) error {
	prepareFetchHistory(h)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, *h)
	return nil
}

func (m *Memory) ListFetchHistory(_ context.Context, userID string) ([]models.FetchHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.FetchHistory
	for _, h := range m.history {
		if h.UserID == userID {
			out = append(out, h)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FetchedAt.After(out[j].FetchedAt)
	})
	return out, nil
}

func (m *Memory) LatestFetchBySource(ctx context.Context, source, userID string) (*models.FetchHistory, error) {
	all, err := m.ListFetchHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, h := range all {
		if h.Source == source {
			return &h, nil
		}
	}
	return nil, fmt.Errorf("fetch history for %s: %w", source, ErrNotFound)
}

func (m *Memory) DeleteUser(ctx context.Context, userID string) error {
	if err := m.DeleteAllCVs(ctx, userID); err != nil {
		return err
	}
	if err := m.DeleteAllAnalyses(ctx, userID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = slices.DeleteFunc(m.history, func(h models.FetchHistory) bool {
		return h.UserID == userID
	})
	return nil
}

func (m *Memory) Close() error {
	return nil
}
