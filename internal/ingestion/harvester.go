package ingestion

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fmuoria/cv-inbox-screener/internal/config"
	"github.com/fmuoria/cv-inbox-screener/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrMailboxFetchFailed aborts a harvest when the mailbox itself cannot be read
var ErrMailboxFetchFailed = errors.New("failed to fetch from mailbox")

// DegradedCandidateName is stored for attachments that could not be processed
const DegradedCandidateName = "Unknown"

// BaseKeywords are always searched for, in addition to caller keywords
var BaseKeywords = []string{"resume", "cv", "curriculum vitae", "application", "job application"}

// Mailbox is the search capability of an email provider
type Mailbox interface {
	// Search returns up to limit message ids matching a provider query
	Search(ctx context.Context, query string, limit int64) ([]string, error)
	// Message returns headers and the part tree of one message
	Message(ctx context.Context, id string) (*models.MailMessage, error)
	// Attachment returns the decoded bytes of one attachment
	Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// CVSaver persists harvested CV records
type CVSaver interface {
	CreateCV(ctx context.Context, cv *models.CVRecord) error
}

// HarvestOptions controls a single harvest run
type HarvestOptions struct {
	DaysBack int
	Keywords []string
	// Source labels the provenance of every record, e.g. "Gmail"
	Source string
}

// Harvester searches a mailbox for resume attachments and stores them as CVs
type Harvester struct {
	saver        CVSaver
	logger       *zap.Logger
	workers      int
	pageSize     int64
	maxPartDepth int
	defaultDays  int
	timeout      time.Duration
}

// NewHarvester creates a harvester writing to saver
func NewHarvester(saver CVSaver, logger *zap.Logger, cfg config.HarvestConfig) *Harvester {
	return &Harvester{
		saver:        saver,
		logger:       logger,
		workers:      max(cfg.Workers, 1),
		pageSize:     cfg.PageSize,
		maxPartDepth: cfg.MaxPartDepth,
		defaultDays:  cfg.DefaultDays,
		timeout:      cfg.Timeout,
	}
}

// Harvest runs every search query, processes each unique message once and
// returns the number of CV records saved, degraded ones included.
func (h *Harvester) Harvest(ctx context.Context, mb Mailbox, userID string, opts HarvestOptions) (int, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	daysBack := opts.DaysBack
	if daysBack <= 0 {
		daysBack = h.defaultDays
	}

	queries := BuildQueries(daysBack, opts.Keywords)
	h.logger.Info("searching mailbox",
		zap.String("user", userID),
		zap.Int("queries", len(queries)),
		zap.Int("days back", daysBack))

	ids, err := h.search(ctx, mb, queries)
	if err != nil {
		return 0, err
	}

	h.logger.Info("found potential CV emails", zap.Int("count", len(ids)))

	var saved atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)

	for _, id := range ids {
		g.Go(func() error {
			n, err := h.processMessage(gctx, mb, userID, opts.Source, id)
			saved.Add(int64(n))
			return err
		})
	}

	err = g.Wait()
	count := int(saved.Load())
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", ErrMailboxFetchFailed, ctx.Err())
	}
	if err != nil {
		return count, err
	}

	h.logger.Info("harvest finished", zap.String("user", userID), zap.Int("saved", count))
	return count, nil
}

// search runs all queries concurrently and returns the union of their
// message ids in first-seen order.
func (h *Harvester) search(ctx context.Context, mb Mailbox, queries []string) ([]string, error) {
	results := make([][]string, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, query := range queries {
		g.Go(func() error {
			ids, err := mb.Search(gctx, query, h.pageSize)
			if err != nil {
				return fmt.Errorf("%w: search %q: %v", ErrMailboxFetchFailed, query, err)
			}
			h.logger.Debug("query finished", zap.String("query", query), zap.Int("messages", len(ids)))
			results[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var unique []string
	for _, ids := range results {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}

	return unique, nil
}

func (h *Harvester) processMessage(ctx context.Context, mb Mailbox, userID, source, id string) (int, error) {
	msg, err := mb.Message(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("%w: message %s: %v", ErrMailboxFetchFailed, id, err)
	}

	sender := SenderAddress(msg.Headers["from"])
	received := msg.Received
	if received.IsZero() {
		received = time.Now()
	}

	var parts []models.MessagePart
	parts = h.collectAttachments(msg.ID, msg.Payload, 0, parts)
	h.logger.Debug("processing email",
		zap.String("message", msg.ID),
		zap.String("from", sender),
		zap.Int("attachments", len(parts)))

	saved := 0
	for _, part := range parts {
		if ctx.Err() != nil {
			break
		}
		if !IsResumeLike(part.Filename, part.MimeType) {
			continue
		}

		att := models.RawAttachment{MessageID: msg.ID, Filename: part.Filename, MimeType: part.MimeType}
		data, err := mb.Attachment(ctx, msg.ID, part.AttachmentID)
		if err != nil {
			err = fmt.Errorf("failed to fetch attachment: %w", err)
		}
		att.Data = data

		if h.storeAttachment(ctx, userID, source, sender, received, att, err) {
			saved++
		}
	}

	return saved, nil
}

// collectAttachments walks the part tree depth-first, keeping parts that carry
// both a filename and an attachment reference.
func (h *Harvester) collectAttachments(msgID string, part models.MessagePart, depth int, out []models.MessagePart) []models.MessagePart {
	if part.Filename != "" && part.AttachmentID != "" {
		out = append(out, part)
	}

	if len(part.Parts) == 0 {
		return out
	}
	if depth >= h.maxPartDepth {
		h.logger.Warn("skipping deeply nested message parts",
			zap.String("message", msgID),
			zap.Int("depth", depth))
		return out
	}

	for _, child := range part.Parts {
		out = h.collectAttachments(msgID, child, depth+1, out)
	}
	return out
}

// storeAttachment extracts and saves one attachment. Any failure along the way
// is replaced by a degraded record unless the run was aborted; false means no
// record was saved.
func (h *Harvester) storeAttachment(ctx context.Context, userID, source, sender string, received time.Time, att models.RawAttachment, fetchErr error) bool {
	record := &models.CVRecord{
		UserID:         userID,
		CandidateEmail: sender,
		FileName:       att.Filename,
		FileType:       FileTypeFor(att.Filename, att.Data),
		FileData:       att.Data,
		DateReceived:   received,
		Source:         source,
	}

	err := fetchErr
	if err == nil {
		err = h.extractInto(record, att.Data)
	}
	if err == nil {
		if err = h.saver.CreateCV(ctx, record); err != nil {
			err = fmt.Errorf("failed to save CV: %w", err)
		}
	}
	if err == nil {
		h.logger.Info("saved CV",
			zap.String("file", att.Filename),
			zap.String("candidate", record.CandidateName),
			zap.String("from", sender))
		return true
	}

	// An aborted run is reported by Harvest; its attachments are not at fault.
	if ctx.Err() != nil {
		h.logger.Debug("harvest aborted, dropping attachment",
			zap.String("message", att.MessageID),
			zap.String("file", att.Filename),
			zap.Error(err))
		return false
	}

	h.logger.Warn("processing attachment failed, saving degraded record",
		zap.String("message", att.MessageID),
		zap.String("file", att.Filename),
		zap.Error(err))

	degraded := *record
	degraded.ID = ""
	degraded.CandidateName = DegradedCandidateName
	degraded.CandidateEmail = sender
	degraded.ExtractedText = ExtractionFailedPrefix + err.Error()
	if err := h.saver.CreateCV(ctx, &degraded); err != nil {
		h.logger.Error("skipping attachment",
			zap.String("message", att.MessageID),
			zap.String("file", att.Filename),
			zap.Error(err))
		return false
	}

	return true
}

func (h *Harvester) extractInto(record *models.CVRecord, data []byte) error {
	doc, err := Extract(data, record.FileType)
	if err != nil {
		return err
	}
	if doc.Status != models.ExtractionOK {
		h.logger.Debug("extraction produced placeholder text",
			zap.String("file", record.FileName),
			zap.String("status", doc.Status),
			zap.String("reason", doc.Reason))
	}

	identity := Resolve(doc.Text, record.CandidateEmail)
	record.CandidateName = identity.Name
	record.CandidateEmail = identity.Email
	record.ExtractedText = doc.Text
	return nil
}

var angleAddress = regexp.MustCompile(`<(.+?)>`)

// SenderAddress returns the address inside angle brackets of a From header,
// the raw header when there are none, or UnknownSender when it is empty.
func SenderAddress(from string) string {
	if m := angleAddress.FindStringSubmatch(from); m != nil {
		return m[1]
	}
	if from != "" {
		return from
	}
	return models.UnknownSender
}

// IsResumeLike reports whether an attachment looks like a PDF or Word resume
func IsResumeLike(filename, mimeType string) bool {
	name := strings.ToLower(filename)
	if strings.HasSuffix(name, ".pdf") || strings.HasSuffix(name, ".doc") || strings.HasSuffix(name, ".docx") {
		return true
	}

	mime := strings.ToLower(mimeType)
	return strings.Contains(mime, "pdf") || strings.Contains(mime, "word") || strings.Contains(mime, "document")
}

// FileTypeFor is pdf when the filename ends in .pdf, docx otherwise. A file
// without the extension whose content is a PDF is still treated as one.
func FileTypeFor(filename string, data []byte) string {
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") || SniffFormat(data) == models.FileTypePDF {
		return models.FileTypePDF
	}
	return models.FileTypeDOCX
}

// BuildQueries returns the Gmail search queries for one harvest
func BuildQueries(daysBack int, extraKeywords []string) []string {
	dateFilter := fmt.Sprintf("newer_than:%dd", daysBack)

	templates := []string{
		"has:attachment",
		`(resume OR cv OR "curriculum vitae")`,
		`(application OR "job application" OR "job posting")`,
		"filename:(pdf OR doc OR docx)",
		"subject:(resume OR cv OR application)",
		"has:attachment (resume OR cv)",
		"has:attachment (application OR intern OR position)",
		"has:attachment (" + strings.Join(keywordTerms(extraKeywords), " OR ") + ")",
	}

	queries := make([]string, len(templates))
	for i, t := range templates {
		queries[i] = t + " " + dateFilter
	}
	return queries
}

// keywordTerms merges the base keywords with extra ones, dropping blanks and
// case-insensitive duplicates. Multi-word keywords are quoted.
func keywordTerms(extra []string) []string {
	seen := make(map[string]struct{})
	var terms []string

	for _, kw := range append(append([]string{}, BaseKeywords...), extra...) {
		kw = strings.Join(strings.Fields(strings.ReplaceAll(kw, `"`, "")), " ")
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		if strings.Contains(kw, " ") {
			kw = `"` + kw + `"`
		}
		terms = append(terms, kw)
	}

	return terms
}
