package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fmuoria/cv-inbox-screener/internal/auth"
	"github.com/fmuoria/cv-inbox-screener/internal/export"
	"github.com/fmuoria/cv-inbox-screener/internal/ingestion"
	"github.com/fmuoria/cv-inbox-screener/internal/logger"
	"github.com/fmuoria/cv-inbox-screener/internal/models"
	"github.com/fmuoria/cv-inbox-screener/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRequest is returned for malformed caller input
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoCVs is returned when an analysis is requested for a user without CVs
	ErrNoCVs = errors.New("no CVs found")
	// ErrNothingAnalyzed is returned when every CV of a batch failed to score
	ErrNothingAnalyzed = errors.New("no CVs could be analyzed")
)

// Mailbox providers
const (
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"
	// ProviderDirectory imports files from a local directory, CLI only
	ProviderDirectory = "directory"
)

const (
	defaultDaysBack      = 30
	maxDaysBack          = 365
	minJobDescriptionLen = 10
)

// ProgressCallback is called to report progress during processing
type ProgressCallback func(current, total int, message string)

// Scorer rates one CV against a job description
type Scorer interface {
	Score(ctx context.Context, cvText, jobDescription, candidateName string) (models.Assessment, error)
}

// MailboxOpener returns a mailbox authorized as userID
type MailboxOpener func(ctx context.Context, userID string) (ingestion.Mailbox, error)

// GmailOpener opens Gmail mailboxes with the credentials held in creds
func GmailOpener(creds *auth.CredentialStore) MailboxOpener {
	return func(ctx context.Context, userID string) (ingestion.Mailbox, error) {
		client, err := creds.HTTPClient(ctx, userID)
		if err != nil {
			return nil, err
		}
		return ingestion.NewGmailMailbox(ctx, client)
	}
}

// OutlookOpener opens Outlook mailboxes with the credentials held in creds.
// graphURL may be empty to use Microsoft Graph itself.
func OutlookOpener(creds *auth.CredentialStore, graphURL string) MailboxOpener {
	return func(ctx context.Context, userID string) (ingestion.Mailbox, error) {
		client, err := creds.HTTPClient(ctx, userID)
		if err != nil {
			return nil, err
		}
		return ingestion.NewOutlookMailbox(client, graphURL), nil
	}
}

// Screener orchestrates harvesting, scoring and the per-user read views
type Screener struct {
	store     storage.Store
	harvester *ingestion.Harvester
	scorer    Scorer
	creds     map[string]*auth.CredentialStore
	mailboxes map[string]MailboxOpener
	logger    *zap.Logger

	mu         sync.RWMutex
	progressCb ProgressCallback
}

// NewScreener creates a screener. creds may be nil when no OAuth client is
// configured; scorer may be nil for deployments that only harvest.
func NewScreener(store storage.Store, harvester *ingestion.Harvester, scorer Scorer, creds *auth.CredentialStore, logger *zap.Logger) *Screener {
	s := &Screener{
		store:     store,
		harvester: harvester,
		scorer:    scorer,
		creds:     make(map[string]*auth.CredentialStore),
		mailboxes: make(map[string]MailboxOpener),
		logger:    logger,
	}
	if creds != nil {
		s.creds[ProviderGmail] = creds
		s.mailboxes[ProviderGmail] = GmailOpener(creds)
	}
	return s
}

// EnableOutlook offers Outlook as a provider backed by creds
func (s *Screener) EnableOutlook(creds *auth.CredentialStore, graphURL string) {
	s.creds[ProviderOutlook] = creds
	s.mailboxes[ProviderOutlook] = OutlookOpener(creds, graphURL)
}

// Credentials returns the OAuth store of provider, or nil when the provider
// has no consent flow configured
func (s *Screener) Credentials(provider string) *auth.CredentialStore {
	return s.creds[provider]
}

// RegisterMailbox installs or replaces the opener for provider
func (s *Screener) RegisterMailbox(provider string, open MailboxOpener) {
	s.mailboxes[provider] = open
}

// SetProgressCallback sets the progress callback function
func (s *Screener) SetProgressCallback(cb ProgressCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progressCb = cb
}

func (s *Screener) reportProgress(current, total int, message string) {
	s.mu.RLock()
	cb := s.progressCb
	s.mu.RUnlock()

	if cb != nil {
		cb(current, total, message)
	}
}

// FetchCVs harvests resume attachments from the user's mailbox and records
// the run in the fetch history.
func (s *Screener) FetchCVs(ctx context.Context, userID string, req models.FetchRequest) (models.BatchResponse, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = ProviderGmail
	}

	daysBack := req.DaysBack
	if daysBack == 0 {
		daysBack = defaultDaysBack
	}
	if daysBack < 1 || daysBack > maxDaysBack {
		return models.BatchResponse{}, fmt.Errorf("%w: daysBack must be between 1 and %d", ErrInvalidRequest, maxDaysBack)
	}

	open, ok := s.mailboxes[provider]
	if !ok {
		return models.BatchResponse{}, fmt.Errorf("%w: unsupported provider %q", ErrInvalidRequest, req.Provider)
	}

	mb, err := open(ctx, userID)
	if err != nil {
		return models.BatchResponse{}, fmt.Errorf("failed to open %s mailbox: %w", provider, err)
	}

	s.reportProgress(0, 1, fmt.Sprintf("Searching %s for CVs...", provider))

	count, err := s.harvester.Harvest(ctx, mb, userID, ingestion.HarvestOptions{
		DaysBack: daysBack,
		Keywords: req.Keywords,
		Source:   sourceLabel(provider),
	})
	if err != nil {
		return models.BatchResponse{}, err
	}

	history := &models.FetchHistory{UserID: userID, Source: provider, CVsCount: count}
	if err := s.store.CreateFetchHistory(ctx, history); err != nil {
		s.logger.Warn("failed to record fetch history", zap.String("user", userID), zap.Error(err))
	}

	s.reportProgress(1, 1, "Fetch complete")

	return models.BatchResponse{
		Count:   count,
		Message: fmt.Sprintf("Successfully fetched %d CV(s)", count),
	}, nil
}

func sourceLabel(provider string) string {
	switch provider {
	case ProviderGmail:
		return ingestion.GmailSource
	case ProviderOutlook:
		return ingestion.OutlookSource
	case ProviderDirectory:
		return ingestion.DirSource
	default:
		return provider
	}
}

// AnalyzeCVs scores every CV of the user against jobDescription. CVs are
// processed one at a time and a failure only skips that CV.
func (s *Screener) AnalyzeCVs(ctx context.Context, userID, jobDescription string) (models.BatchResponse, error) {
	if len(strings.TrimSpace(jobDescription)) < minJobDescriptionLen {
		return models.BatchResponse{}, fmt.Errorf("%w: job description must be at least %d characters", ErrInvalidRequest, minJobDescriptionLen)
	}
	if s.scorer == nil {
		return models.BatchResponse{}, fmt.Errorf("%w: scoring is not configured", ErrInvalidRequest)
	}

	cvs, err := s.store.ListCVs(ctx, userID)
	if err != nil {
		return models.BatchResponse{}, fmt.Errorf("failed to list CVs: %w", err)
	}
	if len(cvs) == 0 {
		return models.BatchResponse{}, ErrNoCVs
	}

	s.logger.Info("analyzing CVs", zap.String("user", userID), zap.Int("cvs", len(cvs)))

	analyzed := 0
	for i, cv := range cvs {
		if err := ctx.Err(); err != nil {
			return models.BatchResponse{}, err
		}

		s.reportProgress(i, len(cvs), fmt.Sprintf("Evaluating %s (%d/%d)", cv.CandidateName, i+1, len(cvs)))

		assessment, err := s.scorer.Score(ctx, cv.ExtractedText, jobDescription, cv.CandidateName)
		if err != nil {
			s.logger.Warn("failed to score CV",
				zap.String("cv", cv.ID),
				zap.String("candidate", cv.CandidateName),
				zap.Bool("rate_limited", isRateLimitError(err)),
				zap.Error(err))
			continue
		}

		analysis := &models.AnalysisRecord{
			UserID:         userID,
			CVID:           cv.ID,
			JobDescription: jobDescription,
			Score:          assessment.Score,
			Strengths:      assessment.Strengths,
			Weaknesses:     assessment.Weaknesses,
		}
		if err := s.store.CreateAnalysis(ctx, analysis); err != nil {
			s.logger.Warn("failed to save analysis", zap.String("cv", cv.ID), zap.Error(err))
			continue
		}
		analyzed++
	}

	s.reportProgress(len(cvs), len(cvs), "Processing complete!")

	if analyzed == 0 {
		return models.BatchResponse{}, ErrNothingAnalyzed
	}

	s.logger.Info("analysis finished", zap.Int("analyzed", analyzed), zap.Int("cvs", len(cvs)))

	return models.BatchResponse{
		Count:   analyzed,
		Message: fmt.Sprintf("Successfully analyzed %d CV(s)", analyzed),
	}, nil
}

// isRateLimitError reports whether err looks like a provider quota rejection
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"resourceexhausted", "resource exhausted", "429", "rate limit", "quota"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ReprocessCVs re-extracts CVs whose stored text is an extraction placeholder
// and whose original bytes are available.
func (s *Screener) ReprocessCVs(ctx context.Context, userID string) (models.BatchResponse, error) {
	cvs, err := s.store.ListCVs(ctx, userID)
	if err != nil {
		return models.BatchResponse{}, fmt.Errorf("failed to list CVs: %w", err)
	}

	reprocessed := 0
	for _, summary := range cvs {
		if !ingestion.IsPlaceholderText(summary.ExtractedText) {
			continue
		}

		cv, err := s.store.GetCV(ctx, summary.ID, userID)
		if err != nil {
			s.logger.Warn("failed to load CV", zap.String("cv", summary.ID), zap.Error(err))
			continue
		}
		if len(cv.FileData) == 0 {
			continue
		}

		doc, err := ingestion.Extract(cv.FileData, ingestion.FileTypeFor(cv.FileName, cv.FileData))
		if err != nil {
			s.logger.Debug("re-extraction failed", zap.String("cv", cv.ID), zap.Error(err))
			continue
		}
		if doc.Text == cv.ExtractedText {
			continue
		}

		if err := s.store.UpdateExtractedText(ctx, cv.ID, userID, doc.Text); err != nil {
			s.logger.Warn("failed to update extracted text", zap.String("cv", cv.ID), zap.Error(err))
			continue
		}

		s.logger.Debug("CV reprocessed",
			zap.String("cv", cv.ID),
			zap.String("status", doc.Status),
			zap.String("preview", logger.TruncateForLog(doc.Text, 80)))
		reprocessed++
	}

	return models.BatchResponse{
		Count:   reprocessed,
		Message: fmt.Sprintf("Successfully reprocessed %d CV(s)", reprocessed),
	}, nil
}

// Results returns each CV with its latest analysis, best first
func (s *Screener) Results(ctx context.Context, userID string) ([]models.CVWithAnalysis, error) {
	cvs, err := s.store.ListCVs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list CVs: %w", err)
	}
	analyses, err := s.store.ListAnalyses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return storage.LatestAnalysisPerCV(cvs, analyses), nil
}

func (s *Screener) Analyses(ctx context.Context, userID string) ([]models.AnalysisRecord, error) {
	return s.store.ListAnalyses(ctx, userID)
}

func (s *Screener) FetchHistory(ctx context.Context, userID string) ([]models.FetchHistory, error) {
	return s.store.ListFetchHistory(ctx, userID)
}

// Stats summarises the user's CVs and analyses
func (s *Screener) Stats(ctx context.Context, userID string) (models.DashboardStats, error) {
	cvs, err := s.store.ListCVs(ctx, userID)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("failed to list CVs: %w", err)
	}
	analyses, err := s.store.ListAnalyses(ctx, userID)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("failed to list analyses: %w", err)
	}
	return storage.Stats(cvs, analyses), nil
}

// CVFile returns a CV with its original bytes. storage.ErrNotFound is
// returned when the CV does not exist or its file was never stored.
func (s *Screener) CVFile(ctx context.Context, userID, id string) (*models.CVRecord, error) {
	cv, err := s.store.GetCV(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if len(cv.FileData) == 0 {
		return nil, fmt.Errorf("%w: original file not available", storage.ErrNotFound)
	}
	return cv, nil
}

// ExportResults writes the user's results as an Excel workbook to w
func (s *Screener) ExportResults(ctx context.Context, userID string, w io.Writer) error {
	results, err := s.Results(ctx, userID)
	if err != nil {
		return err
	}
	return export.WriteExcel(w, results)
}

// ProviderStatuses reports the connection state of every mailbox provider.
// A provider without a configured consent flow is unavailable.
func (s *Screener) ProviderStatuses(ctx context.Context, userID string) []models.ProviderStatus {
	return []models.ProviderStatus{
		s.providerStatus(ctx, userID, ProviderGmail),
		s.providerStatus(ctx, userID, ProviderOutlook),
	}
}

func (s *Screener) providerStatus(ctx context.Context, userID, provider string) models.ProviderStatus {
	status := models.ProviderStatus{Name: provider, Status: "not_connected", AuthURL: "/api/auth/" + provider}

	creds := s.creds[provider]
	switch {
	case creds == nil:
		if _, ok := s.mailboxes[provider]; !ok {
			status.Status = "unavailable"
			status.AuthURL = ""
		}
	case creds.Connected(userID):
		status.Status = "connected"
		status.AuthURL = ""
		latest, err := s.store.LatestFetchBySource(ctx, provider, userID)
		switch {
		case err == nil:
			status.LastFetch = &latest.FetchedAt
		case !errors.Is(err, storage.ErrNotFound):
			s.logger.Warn("failed to load last fetch",
				zap.String("user", userID),
				zap.String("provider", provider),
				zap.Error(err))
		}
	}

	return status
}

// Disconnect drops the user's credentials for provider
func (s *Screener) Disconnect(userID, provider string) error {
	creds, ok := s.creds[provider]
	if !ok {
		return fmt.Errorf("%w: %q has no connection to drop", ErrInvalidRequest, provider)
	}
	creds.Disconnect(userID)
	return nil
}

func (s *Screener) DeleteCVs(ctx context.Context, userID string) error {
	return s.store.DeleteAllCVs(ctx, userID)
}

func (s *Screener) DeleteAnalyses(ctx context.Context, userID string) error {
	return s.store.DeleteAllAnalyses(ctx, userID)
}

// DeleteAccount removes every record of the user and drops their credentials
func (s *Screener) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	for _, creds := range s.creds {
		creds.Disconnect(userID)
	}
	return nil
}
