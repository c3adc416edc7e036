package ingestion

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
)

// buildDocx assembles a minimal Word document around the given body XML
func buildDocx(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body + `</w:body></w:document>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Failed to create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}

	return buf.Bytes()
}

func TestExtract_DOCX(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Senior Engineer &amp; Mentor</w:t></w:r></w:p>`)

	doc, err := Extract(data, "docx")
	if err != nil {
		t.Fatalf("Extract() returned error: %v", err)
	}

	if doc.Format != models.FileTypeDOCX {
		t.Errorf("Expected format docx, got %q", doc.Format)
	}
	if doc.Status != models.ExtractionOK {
		t.Errorf("Expected status ok, got %q", doc.Status)
	}
	if doc.Text != "Jane Doe\nSenior Engineer & Mentor" {
		t.Errorf("Unexpected text %q", doc.Text)
	}
}

func TestExtract_DOCXWithoutText(t *testing.T) {
	doc, err := Extract(buildDocx(t, `<w:p></w:p>`), "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	if err != nil {
		t.Fatalf("Extract() returned error: %v", err)
	}
	if doc.Status != models.ExtractionEmpty {
		t.Errorf("Expected status empty, got %q", doc.Status)
	}
	if doc.Text != "" {
		t.Errorf("Expected empty text, got %q", doc.Text)
	}
}

func TestExtract_CorruptDOCX(t *testing.T) {
	_, err := Extract([]byte("definitely not a zip archive"), "docx")
	if !errors.Is(err, ErrDocxExtractionFailed) {
		t.Fatalf("Expected ErrDocxExtractionFailed, got %v", err)
	}
}

func TestExtract_CorruptPDF(t *testing.T) {
	doc, err := Extract([]byte("this is not a pdf"), "application/pdf")
	if err != nil {
		t.Fatalf("PDF failures should not return an error, got %v", err)
	}

	if doc.Status != models.ExtractionFailed {
		t.Errorf("Expected status failed, got %q", doc.Status)
	}
	if !strings.HasPrefix(doc.Text, "PDF extraction failed: ") {
		t.Errorf("Expected diagnostic text, got %q", doc.Text)
	}
	if !strings.HasSuffix(doc.Text, "The PDF might be password protected, corrupted, or image-based.") {
		t.Errorf("Expected diagnostic suffix, got %q", doc.Text)
	}
	if !IsPlaceholderText(doc.Text) {
		t.Error("PDF diagnostic should be treated as placeholder text")
	}
}

func TestPDFDocument_MinimumLength(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "Enough ASCII", text: "Jane Doe CV", want: models.ExtractionOK},
		{name: "Short ASCII", text: "  Jane Doe  ", want: models.ExtractionEmpty},
		{name: "Short CJK counted in characters", text: "履歴書山田太", want: models.ExtractionEmpty},
		{name: "Ten CJK characters", text: "履歴書山田太郎技術者", want: models.ExtractionOK},
		{name: "Blank", text: "\n\t ", want: models.ExtractionEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := pdfDocument(tt.text)
			if doc.Status != tt.want {
				t.Errorf("pdfDocument(%q) status = %q, want %q", tt.text, doc.Status, tt.want)
			}
			if tt.want == models.ExtractionEmpty && !IsPlaceholderText(doc.Text) {
				t.Errorf("Expected placeholder text, got %q", doc.Text)
			}
		})
	}
}

func TestExtract_UnsupportedType(t *testing.T) {
	tests := []string{"jpg", "image/png", "text/plain", ""}

	for _, declared := range tests {
		t.Run(declared, func(t *testing.T) {
			_, err := Extract([]byte("data"), declared)
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("Expected ErrUnsupportedFormat for %q, got %v", declared, err)
			}
		})
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		declared string
		want     string
	}{
		{"pdf", models.FileTypePDF},
		{"application/pdf", models.FileTypePDF},
		{" PDF ", models.FileTypePDF},
		{"docx", models.FileTypeDOCX},
		{"doc", models.FileTypeDOCX},
		{"application/msword", models.FileTypeDOCX},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", models.FileTypeDOCX},
		{"image/jpeg", ""},
	}

	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			if got := formatOf(tt.declared); got != tt.want {
				t.Errorf("formatOf(%q) = %q, want %q", tt.declared, got, tt.want)
			}
		})
	}
}

func TestDocumentXMLToText(t *testing.T) {
	xml := `<w:p><w:r><w:t>Skills</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Go</w:t><w:tab/><w:t>SQL</w:t><w:br/><w:t>Docker</w:t></w:r></w:p>`

	want := "Skills\nGo\tSQL\nDocker\n"
	if got := documentXMLToText(xml); got != want {
		t.Errorf("documentXMLToText() = %q, want %q", got, want)
	}
}

func TestIsPlaceholderText(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Text extraction failed: timeout", true},
		{"PDF extraction failed: bad xref. The PDF might be password protected, corrupted, or image-based.", true},
		{pdfEmptyText, true},
		{"Jane Doe\nSoftware Engineer", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsPlaceholderText(tt.text); got != tt.want {
			t.Errorf("IsPlaceholderText(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSniffFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "PDF header", content: "%PDF-1.7\n%%EOF", want: models.FileTypePDF},
		{name: "ZIP magic number", content: "PK\x03\x04\x14\x00", want: models.FileTypeDOCX},
		{name: "Plain text", content: "John Doe\nSoftware Engineer", want: ""},
		{name: "Empty", content: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffFormat([]byte(tt.content)); got != tt.want {
				t.Errorf("SniffFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}
