package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet    = "Summary"
	candidatesSheet = "Ranked Candidates"
	detailsSheet    = "Detailed Analysis"
)

// Score bands used for row colouring and the summary distribution
var bands = []struct {
	label string
	min   int
	color string
}{
	{"Excellent (90-100)", 90, "C6EFCE"},
	{"Good (70-89)", 70, "FFEB9C"},
	{"Fair (50-69)", 50, "FFC7CE"},
	{"Poor (<50)", 0, "FF9999"},
}

func bandOf(score int) int {
	for i, b := range bands {
		if score >= b.min {
			return i
		}
	}
	return len(bands) - 1
}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// ExportToExcel writes the results report to outputPath, adding the .xlsx
// extension when missing. It returns the path actually written.
func ExportToExcel(results []models.CVWithAnalysis, outputPath string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath = outputPath + ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	var buf bytes.Buffer
	if err := WriteExcel(&buf, results); err != nil {
		return "", err
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to save Excel file: %w", err)
	}
	return outputPath, nil
}

// WriteExcel renders the results report as an xlsx workbook to w. Results are
// expected in ranking order, as returned by storage.LatestAnalysisPerCV.
func WriteExcel(w io.Writer, results []models.CVWithAnalysis) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	for _, name := range []string{candidatesSheet, detailsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	if err := createSummarySheet(f, results); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := createRankedCandidatesSheet(f, results); err != nil {
		return fmt.Errorf("failed to create ranked candidates sheet: %w", err)
	}
	if err := createDetailedAnalysisSheet(f, results); err != nil {
		return fmt.Errorf("failed to create detailed analysis sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

func headerStyle(f *excelize.File, size float64) (int, error) {
	font := &excelize.Font{Bold: true, Color: "FFFFFF"}
	if size > 0 {
		font.Size = size
	}
	return f.NewStyle(&excelize.Style{
		Font:      font,
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func scored(results []models.CVWithAnalysis) []models.CVWithAnalysis {
	var out []models.CVWithAnalysis
	for _, r := range results {
		if r.Analysis != nil {
			out = append(out, r)
		}
	}
	return out
}

func createSummarySheet(f *excelize.File, results []models.CVWithAnalysis) error {
	sheet := summarySheet
	f.SetColWidth(sheet, "A", "A", 28)
	f.SetColWidth(sheet, "B", "B", 50)

	title, err := headerStyle(f, 14)
	if err != nil {
		return err
	}
	label, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	row := 1
	f.SetCellValue(sheet, cell("A", row), "CV Screening Report")
	f.SetCellStyle(sheet, cell("A", row), cell("B", row), title)
	f.MergeCell(sheet, cell("A", row), cell("B", row))
	row += 2

	put := func(name string, value any) {
		f.SetCellValue(sheet, cell("A", row), name)
		f.SetCellStyle(sheet, cell("A", row), cell("A", row), label)
		f.SetCellValue(sheet, cell("B", row), value)
		row++
	}

	rated := scored(results)
	put("Generated:", time.Now().Format("2006-01-02 15:04:05"))
	put("Total CVs:", len(results))
	put("CVs Scored:", len(rated))
	if len(rated) > 0 {
		put("Job Description:", rated[0].Analysis.JobDescription)
	}
	row++

	if len(rated) == 0 {
		return nil
	}

	f.SetCellValue(sheet, cell("A", row), "Statistics:")
	f.SetCellStyle(sheet, cell("A", row), cell("B", row), title)
	f.MergeCell(sheet, cell("A", row), cell("B", row))
	row++

	counts := make([]int, len(bands))
	total := 0
	lowest, highest := rated[0].Analysis.Score, rated[0].Analysis.Score
	for _, r := range rated {
		s := r.Analysis.Score
		counts[bandOf(s)]++
		total += s
		lowest = min(lowest, s)
		highest = max(highest, s)
	}
	for i, b := range bands {
		put(b.label+":", counts[i])
	}
	row++

	put("Average Score:", fmt.Sprintf("%.2f", float64(total)/float64(len(rated))))
	put("Highest Score:", highest)
	put("Lowest Score:", lowest)
	put("Score Range:", highest-lowest)

	return nil
}

func createRankedCandidatesSheet(f *excelize.File, results []models.CVWithAnalysis) error {
	sheet := candidatesSheet
	widths := map[string]float64{"A": 8, "B": 25, "C": 30, "D": 12, "E": 30, "F": 20, "G": 12}
	for col, w := range widths {
		f.SetColWidth(sheet, col, col, w)
	}

	header, err := headerStyle(f, 0)
	if err != nil {
		return err
	}

	rowStyles := make([]int, len(bands))
	for i, b := range bands {
		rowStyles[i], err = f.NewStyle(&excelize.Style{
			Fill:   excelize.Fill{Type: "pattern", Color: []string{b.color}, Pattern: 1},
			Border: thinBorder,
		})
		if err != nil {
			return err
		}
	}
	plain, err := f.NewStyle(&excelize.Style{Border: thinBorder})
	if err != nil {
		return err
	}

	headers := []string{"Rank", "Candidate", "Email", "Score", "File", "Received", "Source"}
	for col, h := range headers {
		c := fmt.Sprintf("%s1", string(rune('A'+col)))
		f.SetCellValue(sheet, c, h)
		f.SetCellStyle(sheet, c, c, header)
	}

	for i, r := range results {
		row := i + 2
		f.SetCellValue(sheet, cell("A", row), i+1)
		f.SetCellValue(sheet, cell("B", row), r.CandidateName)
		f.SetCellValue(sheet, cell("C", row), r.CandidateEmail)
		f.SetCellValue(sheet, cell("E", row), r.FileName)
		f.SetCellValue(sheet, cell("F", row), r.DateReceived.Format("2006-01-02 15:04"))
		f.SetCellValue(sheet, cell("G", row), r.Source)

		style := plain
		if r.Analysis != nil {
			f.SetCellValue(sheet, cell("D", row), r.Analysis.Score)
			style = rowStyles[bandOf(r.Analysis.Score)]
		} else {
			f.SetCellValue(sheet, cell("D", row), "Not scored")
		}
		f.SetCellStyle(sheet, cell("A", row), cell("G", row), style)
	}

	if len(results) > 0 {
		if err := f.AutoFilter(sheet, fmt.Sprintf("A1:G%d", len(results)+1), []excelize.AutoFilterOptions{}); err != nil {
			return err
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func createDetailedAnalysisSheet(f *excelize.File, results []models.CVWithAnalysis) error {
	sheet := detailsSheet
	f.SetColWidth(sheet, "A", "A", 8)
	f.SetColWidth(sheet, "B", "B", 25)
	f.SetColWidth(sheet, "C", "C", 14)
	f.SetColWidth(sheet, "D", "D", 60)

	header, err := headerStyle(f, 0)
	if err != nil {
		return err
	}
	wrap, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    thinBorder,
	})
	if err != nil {
		return err
	}

	headers := []string{"Rank", "Candidate", "Category", "Details"}
	for col, h := range headers {
		c := fmt.Sprintf("%s1", string(rune('A'+col)))
		f.SetCellValue(sheet, c, h)
		f.SetCellStyle(sheet, c, c, header)
	}

	row := 2
	for i, r := range results {
		if r.Analysis == nil {
			continue
		}
		for _, entry := range []struct {
			category string
			items    []string
		}{
			{"Strengths", r.Analysis.Strengths},
			{"Weaknesses", r.Analysis.Weaknesses},
		} {
			f.SetCellValue(sheet, cell("A", row), i+1)
			f.SetCellValue(sheet, cell("B", row), r.CandidateName)
			f.SetCellValue(sheet, cell("C", row), entry.category)
			f.SetCellValue(sheet, cell("D", row), "- "+strings.Join(entry.items, "\n- "))
			f.SetCellStyle(sheet, cell("A", row), cell("D", row), wrap)
			f.SetRowHeight(sheet, row, 15*float64(max(len(entry.items), 1)+1))
			row++
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
