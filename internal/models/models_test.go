package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCVWithAnalysisJSON(t *testing.T) {
	item := CVWithAnalysis{
		CVRecord: CVRecord{
			ID:            "cv-1",
			CandidateName: "Jane Doe",
			FileType:      FileTypePDF,
			FileData:      []byte("%PDF-1.4 secret bytes"),
			DateReceived:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Analysis: &AnalysisRecord{CVID: "cv-1", Score: 81, Strengths: []string{"Go"}, Weaknesses: []string{"SQL"}},
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Failed to marshal CVWithAnalysis: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	// The CV fields are flattened next to the analysis.
	if decoded["candidateName"] != "Jane Doe" || decoded["fileType"] != "pdf" {
		t.Errorf("Expected flattened CV fields, got %s", data)
	}
	if decoded["dateReceived"] != "2025-01-02T03:04:05Z" {
		t.Errorf("Unexpected dateReceived %v", decoded["dateReceived"])
	}
	if strings.Contains(string(data), "secret") {
		t.Error("File bytes must not be serialized")
	}

	analysis, ok := decoded["analysis"].(map[string]any)
	if !ok || analysis["score"] != float64(81) {
		t.Errorf("Unexpected analysis %v", decoded["analysis"])
	}
}

func TestCVWithAnalysisJSON_Unscored(t *testing.T) {
	data, err := json.Marshal(CVWithAnalysis{CVRecord: CVRecord{ID: "cv-2"}})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if strings.Contains(string(data), `"analysis"`) {
		t.Errorf("Unscored CV should omit analysis, got %s", data)
	}
}

func TestDashboardStatsJSON(t *testing.T) {
	data, err := json.Marshal(DashboardStats{TotalCVs: 3})
	if err != nil {
		t.Fatalf("Failed to marshal DashboardStats: %v", err)
	}

	want := `{"totalCVs":3,"lastAnalysisDate":null,"highestScore":null,"averageScore":null}`
	if string(data) != want {
		t.Errorf("Got %s, want %s", data, want)
	}
}

func TestFetchRequestDecoding(t *testing.T) {
	var req FetchRequest
	body := `{"provider":"gmail","daysBack":14,"keywords":["golang","site reliability"]}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("Failed to decode FetchRequest: %v", err)
	}

	if req.Provider != "gmail" || req.DaysBack != 14 || len(req.Keywords) != 2 {
		t.Errorf("Unexpected request %+v", req)
	}
}
