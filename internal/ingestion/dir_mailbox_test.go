package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
)

func writeFile(t *testing.T, path string, data []byte, modTime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("Failed to set times on %s: %v", path, err)
	}
}

func TestDirMailbox_Search(t *testing.T) {
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "new.pdf"), []byte("%PDF-1.4"), now.Add(-time.Hour))
	writeFile(t, filepath.Join(dir, "batch", "mid.docx"), []byte("PK"), now.Add(-48*time.Hour))
	writeFile(t, filepath.Join(dir, "old.pdf"), []byte("%PDF-1.4"), now.AddDate(0, 0, -40))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("not a resume"), now)

	mb, err := NewDirMailbox(dir, "")
	if err != nil {
		t.Fatalf("NewDirMailbox() failed: %v", err)
	}
	mb.now = func() time.Time { return now }

	tests := []struct {
		name  string
		query string
		limit int64
		want  []string
	}{
		{name: "Window", query: "has:attachment newer_than:30d", limit: 50, want: []string{"new.pdf", "batch/mid.docx"}},
		{name: "No window", query: "has:attachment", limit: 50, want: []string{"new.pdf", "batch/mid.docx", "old.pdf"}},
		{name: "Limit", query: "newer_than:365d", limit: 1, want: []string{"new.pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mb.Search(context.Background(), tt.query, tt.limit)
			if err != nil {
				t.Fatalf("Search() failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Search() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDirMailbox_MessageAndAttachment(t *testing.T) {
	dir := t.TempDir()
	modTime := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	writeFile(t, filepath.Join(dir, "jane.pdf"), []byte("%PDF-1.4"), modTime)

	mb, err := NewDirMailbox(dir, "Recruiting <jobs@example.com>")
	if err != nil {
		t.Fatalf("NewDirMailbox() failed: %v", err)
	}

	msg, err := mb.Message(context.Background(), "jane.pdf")
	if err != nil {
		t.Fatalf("Message() failed: %v", err)
	}
	if msg.Payload.AttachmentID != "jane.pdf" || msg.Payload.MimeType != "application/pdf" {
		t.Errorf("Unexpected payload %+v", msg.Payload)
	}
	if !msg.Received.Equal(modTime) || SenderAddress(msg.Headers["from"]) != "jobs@example.com" {
		t.Errorf("Unexpected message %+v", msg)
	}

	data, err := mb.Attachment(context.Background(), msg.ID, msg.Payload.AttachmentID)
	if err != nil || string(data) != "%PDF-1.4" {
		t.Errorf("Attachment() = %q, %v", data, err)
	}

	if _, err := mb.Attachment(context.Background(), "x", "../secret.pdf"); err == nil {
		t.Error("Expected ids outside the directory to be rejected")
	}
}

func TestNewDirMailbox_RequiresDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cv.pdf")
	writeFile(t, file, []byte("%PDF"), time.Now())

	if _, err := NewDirMailbox(file, ""); err == nil {
		t.Error("Expected an error for a regular file")
	}
	if _, err := NewDirMailbox(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Error("Expected an error for a missing directory")
	}
}

func TestHarvest_FromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "jane.docx"), buildDocx(t, `<w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>`), time.Now())
	writeFile(t, filepath.Join(dir, "broken.docx"), []byte("not a zip"), time.Now())

	mb, err := NewDirMailbox(dir, "")
	if err != nil {
		t.Fatalf("NewDirMailbox() failed: %v", err)
	}

	saver := &fakeSaver{}
	h := NewHarvester(saver, zap.NewNop(), testHarvestConfig())

	count, err := h.Harvest(context.Background(), mb, "u1", HarvestOptions{DaysBack: 7, Source: DirSource})
	if err != nil {
		t.Fatalf("Harvest() failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 records, got %d", count)
	}

	jane, ok := saver.byFile("jane.docx")
	if !ok || jane.CandidateName != "Jane Doe" || jane.Source != DirSource {
		t.Errorf("Unexpected record %+v", jane)
	}
	broken, ok := saver.byFile("broken.docx")
	if !ok || broken.CandidateName != DegradedCandidateName {
		t.Errorf("Expected a degraded record, got %+v", broken)
	}
}
