package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
	"github.com/xuri/excelize/v2"
)

func sampleResults() []models.CVWithAnalysis {
	received := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return []models.CVWithAnalysis{
		{
			CVRecord: models.CVRecord{ID: "1", CandidateName: "Jane Doe", CandidateEmail: "jane@x.com",
				FileName: "jane.pdf", DateReceived: received, Source: "Gmail"},
			Analysis: &models.AnalysisRecord{CVID: "1", JobDescription: "Go developer", Score: 92,
				Strengths: []string{"Go", "SQL"}, Weaknesses: []string{"No Kubernetes"}},
		},
		{
			CVRecord: models.CVRecord{ID: "2", CandidateName: "John Smith", CandidateEmail: "john@x.com",
				FileName: "john.docx", DateReceived: received, Source: "Gmail"},
			Analysis: &models.AnalysisRecord{CVID: "2", JobDescription: "Go developer", Score: 45,
				Strengths: []string{"Python"}, Weaknesses: []string{"No Go"}},
		},
		{
			CVRecord: models.CVRecord{ID: "3", CandidateName: "Unknown", CandidateEmail: "x@x.com",
				FileName: "x.pdf", DateReceived: received, Source: "Gmail"},
		},
	}
}

func TestWriteExcel(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteExcel(&buf, sampleResults()); err != nil {
		t.Fatalf("WriteExcel() failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("Failed to read workbook back: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	want := []string{summarySheet, candidatesSheet, detailsSheet}
	if len(sheets) != len(want) {
		t.Fatalf("Expected sheets %v, got %v", want, sheets)
	}
	for i := range want {
		if sheets[i] != want[i] {
			t.Errorf("Sheet %d = %q, want %q", i, sheets[i], want[i])
		}
	}

	tests := []struct {
		sheet, cell, want string
	}{
		{candidatesSheet, "B2", "Jane Doe"},
		{candidatesSheet, "D2", "92"},
		{candidatesSheet, "B4", "Unknown"},
		{candidatesSheet, "D4", "Not scored"},
		{detailsSheet, "C2", "Strengths"},
		{detailsSheet, "D2", "- Go\n- SQL"},
		{detailsSheet, "C3", "Weaknesses"},
		{detailsSheet, "B4", "John Smith"},
	}
	for _, tt := range tests {
		t.Run(tt.sheet+"!"+tt.cell, func(t *testing.T) {
			got, err := f.GetCellValue(tt.sheet, tt.cell)
			if err != nil {
				t.Fatalf("GetCellValue() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBandOf(t *testing.T) {
	tests := []struct {
		score int
		want  int
	}{
		{100, 0}, {90, 0}, {89, 1}, {70, 1}, {69, 2}, {50, 2}, {49, 3}, {0, 3},
	}
	for _, tt := range tests {
		if got := bandOf(tt.score); got != tt.want {
			t.Errorf("bandOf(%d) = %d, want %d", tt.score, got, tt.want)
		}
	}
}

// TestExportToExcel_EnsuresXlsxExtension tests that .xlsx extension is added if missing
func TestExportToExcel_EnsuresXlsxExtension(t *testing.T) {
	tmpDir := t.TempDir()

	outputPath := filepath.Join(tmpDir, "test_report")
	written, err := ExportToExcel(sampleResults(), outputPath)
	if err != nil {
		t.Fatalf("ExportToExcel() failed: %v", err)
	}

	if written != outputPath+".xlsx" {
		t.Errorf("Expected %s.xlsx, got %s", outputPath, written)
	}
	if _, err := os.Stat(written); os.IsNotExist(err) {
		t.Errorf("Expected file at %s but it doesn't exist", written)
	}
}

// TestExportToExcel_HandlesExistingXlsxExtension tests that existing .xlsx extension is preserved
func TestExportToExcel_HandlesExistingXlsxExtension(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "test_report.XLSX")
	written, err := ExportToExcel(sampleResults(), outputPath)
	if err != nil {
		t.Fatalf("ExportToExcel() failed: %v", err)
	}
	if written != outputPath {
		t.Errorf("Expected %s, got %s", outputPath, written)
	}
}

// TestExportToExcel_EmptyResults tests export with empty results
func TestExportToExcel_EmptyResults(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "empty_report.xlsx")
	if _, err := ExportToExcel(nil, outputPath); err != nil {
		t.Fatalf("ExportToExcel() should handle empty results: %v", err)
	}

	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		t.Errorf("Expected file at %s but it doesn't exist", outputPath)
	}
}
