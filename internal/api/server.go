package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fmuoria/cv-inbox-screener/internal/agent"
	"github.com/fmuoria/cv-inbox-screener/internal/auth"
	"github.com/fmuoria/cv-inbox-screener/internal/ingestion"
	"github.com/fmuoria/cv-inbox-screener/internal/models"
	"github.com/fmuoria/cv-inbox-screener/internal/storage"
	"go.uber.org/zap"
)

// UserHeader carries the authenticated user id set by the upstream auth proxy
const UserHeader = "X-User-ID"

const (
	maxBodyBytes = 1 << 20

	contentTypePDF  = "application/pdf"
	contentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type ctxKey struct{}

// Server handles HTTP requests
type Server struct {
	screener    *agent.Screener
	frontendURL string
	logger      *zap.Logger
}

// NewServer creates a new API server. The consent endpoints of a provider
// without credentials configured on the screener answer 503.
func NewServer(screener *agent.Screener, frontendURL string, logger *zap.Logger) *Server {
	return &Server{
		screener:    screener,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/auth/callback/{provider}", s.handleOAuthCallback)

	user := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.requireUser(h))
	}
	user("GET /api/auth/{provider}", s.handleOAuthStart)
	user("POST /api/auth/{provider}/disconnect", s.handleDisconnect)
	user("GET /api/email-providers", s.handleEmailProviders)
	user("POST /api/fetch-cvs", s.handleFetchCVs)
	user("POST /api/analyze-cvs", s.handleAnalyzeCVs)
	user("POST /api/reprocess-cvs", s.handleReprocessCVs)
	user("GET /api/results", s.handleResults)
	user("GET /api/analyses", s.handleAnalyses)
	user("GET /api/fetch-history", s.handleFetchHistory)
	user("GET /api/stats", s.handleStats)
	user("GET /api/cv/{id}/download", s.handleDownload)
	user("GET /api/export", s.handleExport)
	user("DELETE /api/user/cvs", s.handleDeleteCVs)
	user("DELETE /api/user/analyses", s.handleDeleteAnalyses)
	user("DELETE /api/user/account", s.handleDeleteAccount)

	return s.loggingMiddleware(mux)
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// requireUser rejects requests without an authenticated user
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserHeader))
		if id == "" {
			s.respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// credentials resolves the OAuth store of the {provider} path value
func (s *Server) credentials(w http.ResponseWriter, r *http.Request) (string, *auth.CredentialStore, bool) {
	provider := r.PathValue("provider")
	creds := s.screener.Credentials(provider)
	if creds == nil {
		s.respondError(w, http.StatusServiceUnavailable, fmt.Sprintf("%s integration is not configured", providerTitle(provider)))
		return provider, nil, false
	}
	return provider, creds, true
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	_, creds, ok := s.credentials(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, creds.AuthURL(userID(r)), http.StatusFound)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, creds, ok := s.credentials(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		s.redirectToFrontend(w, r, provider, "error", reason)
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		s.respondError(w, http.StatusBadRequest, "Missing code or state")
		return
	}

	id, err := creds.Connect(r.Context(), state, code)
	if err != nil {
		s.logger.Warn("mailbox connect failed", zap.String("provider", provider), zap.Error(err))
		if errors.Is(err, auth.ErrInvalidState) {
			s.respondError(w, http.StatusBadRequest, "Invalid or expired authorization state")
			return
		}
		s.redirectToFrontend(w, r, provider, "error", "token_exchange_failed")
		return
	}

	s.logger.Info("mailbox connected", zap.String("provider", provider), zap.String("user", id))
	s.redirectToFrontend(w, r, provider, "connected", "")
}

func (s *Server) redirectToFrontend(w http.ResponseWriter, r *http.Request, provider, status, reason string) {
	v := url.Values{provider: {status}}
	if reason != "" {
		v.Set("reason", reason)
	}
	http.Redirect(w, r, s.frontendURL+"/?"+v.Encode(), http.StatusFound)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if err := s.screener.Disconnect(userID(r), provider); err != nil {
		s.respondFailure(w, err, "Failed to disconnect")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("%s disconnected successfully", providerTitle(provider))})
}

func providerTitle(provider string) string {
	switch provider {
	case agent.ProviderGmail:
		return "Gmail"
	case agent.ProviderOutlook:
		return "Outlook"
	default:
		return provider
	}
}

func (s *Server) handleEmailProviders(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.screener.ProviderStatuses(r.Context(), userID(r)))
}

func (s *Server) handleFetchCVs(w http.ResponseWriter, r *http.Request) {
	var req models.FetchRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.screener.FetchCVs(r.Context(), userID(r), req)
	if err != nil {
		s.respondFailure(w, err, "Failed to fetch CVs from email")
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyzeCVs(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.screener.AnalyzeCVs(r.Context(), userID(r), req.JobDescription)
	if err != nil {
		s.respondFailure(w, err, "Failed to analyze CVs")
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReprocessCVs(w http.ResponseWriter, r *http.Request) {
	resp, err := s.screener.ReprocessCVs(r.Context(), userID(r))
	if err != nil {
		s.respondFailure(w, err, "Failed to reprocess CVs")
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.screener.Results(r.Context(), userID(r))
	if err != nil {
		s.respondFailure(w, err, "Failed to fetch analysis results")
		return
	}
	s.respondJSON(w, http.StatusOK, nonNil(results))
}

func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	analyses, err := s.screener.Analyses(r.Context(), userID(r))
	if err != nil {
		s.respondFailure(w, err, "Failed to fetch analyses")
		return
	}
	s.respondJSON(w, http.StatusOK, nonNil(analyses))
}

func (s *Server) handleFetchHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.screener.FetchHistory(r.Context(), userID(r))
	if err != nil {
		s.respondFailure(w, err, "Failed to fetch history")
		return
	}
	s.respondJSON(w, http.StatusOK, nonNil(history))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.screener.Stats(r.Context(), userID(r))
	if err != nil {
		s.respondFailure(w, err, "Failed to fetch dashboard statistics")
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	cv, err := s.screener.CVFile(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "CV not found or file not available")
			return
		}
		s.respondFailure(w, err, "Failed to download CV")
		return
	}

	contentType := contentTypeDOCX
	if cv.FileType == models.FileTypePDF {
		contentType = contentTypePDF
	}
	name := cv.FileName
	if name == "" {
		name = "resume." + cv.FileType
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(cv.FileData); err != nil {
		s.logger.Warn("failed to write CV download", zap.String("cv", cv.ID), zap.Error(err))
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.screener.ExportResults(r.Context(), userID(r), &buf); err != nil {
		s.respondFailure(w, err, "Failed to export results")
		return
	}

	name := fmt.Sprintf("cv-results-%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", contentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("failed to write export", zap.Error(err))
	}
}

func (s *Server) handleDeleteCVs(w http.ResponseWriter, r *http.Request) {
	if err := s.screener.DeleteCVs(r.Context(), userID(r)); err != nil {
		s.respondFailure(w, err, "Failed to delete CVs")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "All CVs deleted successfully"})
}

func (s *Server) handleDeleteAnalyses(w http.ResponseWriter, r *http.Request) {
	if err := s.screener.DeleteAnalyses(r.Context(), userID(r)); err != nil {
		s.respondFailure(w, err, "Failed to delete analyses")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "All analyses deleted successfully"})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.screener.DeleteAccount(r.Context(), userID(r)); err != nil {
		s.respondFailure(w, err, "Failed to delete account")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Account deleted successfully"})
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	return false
}

// respondFailure maps a service error onto a status code. Errors without a
// known sentinel are logged and answered with fallback.
func (s *Server) respondFailure(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, agent.ErrInvalidRequest):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, agent.ErrNoCVs):
		s.respondError(w, http.StatusBadRequest, "No CVs available to analyze")
	case errors.Is(err, agent.ErrNothingAnalyzed):
		s.respondError(w, http.StatusInternalServerError, "Failed to analyze any CVs")
	case errors.Is(err, auth.ErrNotConnected):
		s.respondError(w, http.StatusBadRequest, "Email account not connected. Please connect your account first.")
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ingestion.ErrMailboxFetchFailed):
		s.logger.Error(fallback, zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error(fallback, zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, fallback)
	}
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// respondError sends an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr))
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
