package ingestion

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	// MinExtractedTextLength is the minimum trimmed PDF text length accepted as real content
	MinExtractedTextLength = 10

	// ExtractionFailedPrefix starts the text of a degraded CV record
	ExtractionFailedPrefix = "Text extraction failed: "

	pdfFailedPrefix = "PDF extraction failed: "
	pdfEmptyText    = "PDF text extraction completed but content appears to be empty or very short. " +
		"This may be a scanned PDF or image-based document."
)

var (
	// ErrUnsupportedFormat is returned for declared types that are neither PDF nor Word
	ErrUnsupportedFormat = errors.New("unsupported file type")
	// ErrDocxExtractionFailed is returned when a Word document cannot be decoded
	ErrDocxExtractionFailed = errors.New("failed to extract text from DOCX")
)

// Extract converts a PDF or Word document into plain text.
//
// PDF failures never produce an error: the returned document carries a
// diagnostic text instead, so the CV can still be stored. Word failures are
// returned as ErrDocxExtractionFailed.
func Extract(data []byte, declaredType string) (models.ExtractedDocument, error) {
	switch formatOf(declaredType) {
	case models.FileTypePDF:
		return extractPDF(data), nil
	case models.FileTypeDOCX:
		return extractDOCX(data)
	default:
		return models.ExtractedDocument{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, declaredType)
	}
}

// formatOf maps a declared file type or MIME type onto pdf, docx or ""
func formatOf(declaredType string) string {
	t := strings.ToLower(strings.TrimSpace(declaredType))

	switch {
	case t == "pdf" || t == "application/pdf":
		return models.FileTypePDF
	case t == "docx" || t == "doc" || strings.Contains(t, "word") || strings.Contains(t, "document"):
		return models.FileTypeDOCX
	default:
		return ""
	}
}

func extractPDF(data []byte) models.ExtractedDocument {
	text, err := decodePDF(data)
	if err != nil {
		return models.ExtractedDocument{
			Format: models.FileTypePDF,
			Status: models.ExtractionFailed,
			Reason: err.Error(),
			Text:   pdfFailedPrefix + err.Error() + ". The PDF might be password protected, corrupted, or image-based.",
		}
	}
	return pdfDocument(text)
}

// pdfDocument keeps decoded PDF text unless it is shorter than
// MinExtractedTextLength characters once trimmed
func pdfDocument(text string) models.ExtractedDocument {
	doc := models.ExtractedDocument{Format: models.FileTypePDF}

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinExtractedTextLength {
		doc.Status = models.ExtractionEmpty
		doc.Reason = "extracted text is too short"
		doc.Text = pdfEmptyText
		return doc
	}

	doc.Status = models.ExtractionOK
	doc.Text = text
	return doc
}

// decodePDF reads every page of the document. The pdf package panics on some
// malformed cross-reference tables, so panics are turned into errors.
func decodePDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func extractDOCX(data []byte) (models.ExtractedDocument, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return models.ExtractedDocument{}, fmt.Errorf("%w: %v", ErrDocxExtractionFailed, err)
	}
	defer doc.Close()

	text := strings.TrimSpace(documentXMLToText(doc.Editable().GetContent()))

	status := models.ExtractionOK
	if text == "" {
		status = models.ExtractionEmpty
	}

	return models.ExtractedDocument{
		Text:   text,
		Format: models.FileTypeDOCX,
		Status: status,
	}, nil
}

var (
	paragraphEnd = regexp.MustCompile(`</w:p>|<w:br[^>]*/>|<w:cr[^>]*/>`)
	tabElement   = regexp.MustCompile(`<w:tab[^>]*/>`)
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// documentXMLToText turns the body of word/document.xml into raw text,
// one paragraph per line.
func documentXMLToText(content string) string {
	content = paragraphEnd.ReplaceAllString(content, "\n")
	content = tabElement.ReplaceAllString(content, "\t")
	content = xmlTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	return blankRuns.ReplaceAllString(content, "\n\n")
}

// IsPlaceholderText reports whether stored CV text is a diagnostic written in
// place of real content, which makes the CV a candidate for re-extraction.
func IsPlaceholderText(text string) bool {
	return strings.HasPrefix(text, ExtractionFailedPrefix) ||
		strings.HasPrefix(text, pdfFailedPrefix) ||
		text == pdfEmptyText
}

// SniffFormat guesses the document format from magic bytes. It is used when
// neither the filename nor the MIME type identifies the attachment.
func SniffFormat(content []byte) string {
	switch {
	case bytes.HasPrefix(content, []byte("%PDF-")):
		return models.FileTypePDF
	// DOCX files are ZIP archives
	case bytes.HasPrefix(content, []byte("PK\x03\x04")):
		return models.FileTypeDOCX
	default:
		return ""
	}
}
