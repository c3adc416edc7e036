package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
)

// DirSource is the provenance label of CVs imported from a local directory
const DirSource = "Directory"

var newerThan = regexp.MustCompile(`newer_than:(\d+)d`)

// DirMailbox exposes a directory of resume files as a mailbox. Every file is
// one message with a single attachment, received at its modification time.
// Only the newer_than part of a query is honoured.
type DirMailbox struct {
	root   string
	sender string
	now    func() time.Time
}

// NewDirMailbox creates a mailbox over root. sender is used as the From
// address of every file and may be empty.
func NewDirMailbox(root, sender string) (*DirMailbox, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	return &DirMailbox{root: root, sender: sender, now: time.Now}, nil
}

type dirEntry struct {
	id      string
	modTime time.Time
}

// Search returns up to limit resume files, newest first
func (d *DirMailbox) Search(ctx context.Context, query string, limit int64) ([]string, error) {
	var cutoff time.Time
	if m := newerThan.FindStringSubmatch(query); m != nil {
		days, _ := strconv.Atoi(m[1])
		cutoff = d.now().AddDate(0, 0, -days)
	}

	var entries []dirEntry
	err := filepath.WalkDir(d.root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !IsResumeLike(e.Name(), "") {
			return nil
		}

		info, err := e.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			return nil
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		entries = append(entries, dirEntry{id: filepath.ToSlash(rel), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].modTime.After(entries[j].modTime)
	})
	if limit > 0 && int64(len(entries)) > limit {
		entries = entries[:limit]
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

// Message describes one file as a message with a single attachment
func (d *DirMailbox) Message(_ context.Context, id string) (*models.MailMessage, error) {
	path, err := d.path(id)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", id, err)
	}

	headers := map[string]string{"subject": filepath.Base(id)}
	if d.sender != "" {
		headers["from"] = d.sender
	}

	return &models.MailMessage{
		ID:      id,
		Headers: headers,
		Payload: models.MessagePart{
			Filename:     filepath.Base(id),
			MimeType:     mimeTypeFor(id),
			AttachmentID: id,
		},
		Received: info.ModTime(),
	}, nil
}

// Attachment returns the file contents
func (d *DirMailbox) Attachment(_ context.Context, _, attachmentID string) ([]byte, error) {
	path, err := d.path(attachmentID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", attachmentID, err)
	}
	return data, nil
}

func (d *DirMailbox) path(id string) (string, error) {
	p := filepath.FromSlash(id)
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("invalid file id %q", id)
	}
	return filepath.Join(d.root, p), nil
}

func mimeTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	default:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
}
