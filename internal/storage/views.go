package storage

import (
	"math"
	"sort"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
)

// LatestAnalysisPerCV pairs each CV with its most recent analysis. The result
// is ordered by that analysis' score, highest first with unscored CVs last,
// then by received date, newest first.
func LatestAnalysisPerCV(cvs []models.CVRecord, analyses []models.AnalysisRecord) []models.CVWithAnalysis {
	latest := make(map[string]models.AnalysisRecord)
	for _, a := range analyses {
		existing, ok := latest[a.CVID]
		if !ok || a.AnalyzedAt.After(existing.AnalyzedAt) {
			latest[a.CVID] = a
		}
	}

	out := make([]models.CVWithAnalysis, 0, len(cvs))
	for _, cv := range cvs {
		item := models.CVWithAnalysis{CVRecord: cv}
		if a, ok := latest[cv.ID]; ok {
			item.Analysis = &a
		}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := scoreOf(out[i]), scoreOf(out[j])
		if si != sj {
			return si > sj
		}
		return out[i].DateReceived.After(out[j].DateReceived)
	})

	return out
}

func scoreOf(item models.CVWithAnalysis) int {
	if item.Analysis == nil {
		return -1
	}
	return item.Analysis.Score
}

// Stats summarises a user's CVs and analyses for the dashboard
func Stats(cvs []models.CVRecord, analyses []models.AnalysisRecord) models.DashboardStats {
	stats := models.DashboardStats{TotalCVs: len(cvs)}
	if len(analyses) == 0 {
		return stats
	}

	last := analyses[0].AnalyzedAt
	highest := analyses[0].Score
	total := 0
	for _, a := range analyses {
		if a.AnalyzedAt.After(last) {
			last = a.AnalyzedAt
		}
		highest = max(highest, a.Score)
		total += a.Score
	}

	average := int(math.Floor(float64(total)/float64(len(analyses)) + 0.5))
	stats.LastAnalysisDate = &last
	stats.HighestScore = &highest
	stats.AverageScore = &average
	return stats
}
