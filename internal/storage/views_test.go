package storage

import (
	"testing"
	"time"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
)

func TestLatestAnalysisPerCV(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

	cvs := []models.CVRecord{
		{ID: "unscored-new", DateReceived: day(9)},
		{ID: "low", DateReceived: day(2)},
		{ID: "high", DateReceived: day(1)},
		{ID: "unscored-old", DateReceived: day(3)},
		{ID: "tie-new", DateReceived: day(8)},
	}
	analyses := []models.AnalysisRecord{
		{CVID: "high", Score: 40, AnalyzedAt: day(10)},
		{CVID: "high", Score: 90, AnalyzedAt: day(12)},
		{CVID: "low", Score: 95, AnalyzedAt: day(10)},
		{CVID: "low", Score: 30, AnalyzedAt: day(11)},
		{CVID: "tie-new", Score: 30, AnalyzedAt: day(11)},
	}

	got := LatestAnalysisPerCV(cvs, analyses)

	wantOrder := []string{"high", "tie-new", "low", "unscored-new", "unscored-old"}
	if len(got) != len(wantOrder) {
		t.Fatalf("Expected %d items, got %d", len(wantOrder), len(got))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("Position %d = %s, want %s", i, got[i].ID, id)
		}
	}

	if got[0].Analysis == nil || got[0].Analysis.Score != 90 {
		t.Errorf("Expected the latest analysis of high to be used, got %+v", got[0].Analysis)
	}
	if got[3].Analysis != nil {
		t.Error("Unscored CV should have no analysis")
	}
}

func TestStats(t *testing.T) {
	t.Run("No analyses", func(t *testing.T) {
		stats := Stats([]models.CVRecord{{ID: "a"}, {ID: "b"}}, nil)
		if stats.TotalCVs != 2 {
			t.Errorf("Expected 2 CVs, got %d", stats.TotalCVs)
		}
		if stats.LastAnalysisDate != nil || stats.HighestScore != nil || stats.AverageScore != nil {
			t.Errorf("Expected empty score stats, got %+v", stats)
		}
	})

	t.Run("Scores", func(t *testing.T) {
		last := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
		analyses := []models.AnalysisRecord{
			{Score: 70, AnalyzedAt: last.Add(-time.Hour)},
			{Score: 81, AnalyzedAt: last},
			{Score: 60, AnalyzedAt: last.Add(-2 * time.Hour)},
			{Score: 80, AnalyzedAt: last.Add(-3 * time.Hour)},
		}

		stats := Stats([]models.CVRecord{{ID: "a"}}, analyses)
		if *stats.HighestScore != 81 {
			t.Errorf("Expected highest 81, got %d", *stats.HighestScore)
		}
		// 291 / 4 = 72.75
		if *stats.AverageScore != 73 {
			t.Errorf("Expected average 73, got %d", *stats.AverageScore)
		}
		if !stats.LastAnalysisDate.Equal(last) {
			t.Errorf("Expected last analysis %v, got %v", last, *stats.LastAnalysisDate)
		}
	})
}
