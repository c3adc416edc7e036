package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fmuoria/cv-inbox-screener/internal/config"
	"github.com/fmuoria/cv-inbox-screener/internal/llm"
	"github.com/fmuoria/cv-inbox-screener/internal/logger"
	"github.com/fmuoria/cv-inbox-screener/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrScoringResponseMalformed means the model answer was not a JSON object
	ErrScoringResponseMalformed = errors.New("scoring response is not valid JSON")
	// ErrScoringResponseInvalidShape means the JSON lacks a numeric score or the lists
	ErrScoringResponseInvalidShape = errors.New("scoring response has an invalid shape")
	// ErrScoringUnavailable covers transport failures, rate limits and timeouts
	ErrScoringUnavailable = errors.New("scoring service unavailable")
)

const (
	// DefaultMaxCVChars bounds the resume text sent to the model
	DefaultMaxCVChars = 8000

	maxListItems     = 3
	strengthsFiller  = "Candidate meets basic requirements"
	weaknessesFiller = "No significant gaps identified"

	systemInstruction = "You are an expert HR recruiter. Always respond with valid JSON only, no additional text."
)

// Scorer evaluates CVs against a job description using an LLM
type Scorer struct {
	generator llm.Generator
	logger    *zap.Logger
	timeout   time.Duration
	maxChars  int
}

// NewScorer creates a new scorer instance
func NewScorer(generator llm.Generator, logger *zap.Logger, cfg config.ScoringConfig) *Scorer {
	maxChars := cfg.MaxCVChars
	if maxChars <= 0 {
		maxChars = DefaultMaxCVChars
	}

	return &Scorer{
		generator: generator,
		logger:    logger,
		timeout:   cfg.Timeout,
		maxChars:  maxChars,
	}
}

// Score asks the model to rate one CV and validates the answer. Failures are
// never retried here.
func (s *Scorer) Score(ctx context.Context, cvText, jobDescription, candidateName string) (models.Assessment, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := s.buildScoringPrompt(cvText, jobDescription, candidateName)
	s.logger.Debug("scoring request",
		zap.String("candidate", candidateName),
		zap.String("prompt", logger.TruncateForLog(prompt, 200)))

	response, err := s.generator.Generate(ctx, systemInstruction, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			return models.Assessment{}, fmt.Errorf("%w: %v", ErrScoringResponseMalformed, err)
		}
		return models.Assessment{}, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}

	s.logger.Debug("scoring response",
		zap.String("candidate", candidateName),
		zap.String("response", logger.TruncateForLog(response, 300)))

	return parseAssessment(response)
}

// buildScoringPrompt creates the user prompt for the LLM
func (s *Scorer) buildScoringPrompt(cvText, jobDescription, candidateName string) string {
	var sb strings.Builder

	sb.WriteString("You are an expert HR recruiter analyzing resumes for job positions.\n\n")

	sb.WriteString("Job Description:\n")
	sb.WriteString(sanitizeUTF8(jobDescription))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Resume for %s:\n", sanitizeUTF8(candidateName)))
	sb.WriteString(truncateRunes(sanitizeUTF8(cvText), s.maxChars))
	sb.WriteString("\n\n")

	sb.WriteString("Task: Analyze this resume against the job description and provide:\n")
	sb.WriteString("1. A score from 0-100 (where 100 is a perfect match)\n")
	sb.WriteString("2. 2-3 key strengths that make this candidate suitable for the role\n")
	sb.WriteString("3. 2-3 key weaknesses or gaps in their qualifications\n\n")

	sb.WriteString("Respond ONLY with valid JSON in this exact format:\n")
	sb.WriteString("{\n")
	sb.WriteString(`  "score": <number between 0-100>,` + "\n")
	sb.WriteString(`  "strengths": ["strength 1", "strength 2", "strength 3"],` + "\n")
	sb.WriteString(`  "weaknesses": ["weakness 1", "weakness 2", "weakness 3"]` + "\n")
	sb.WriteString("}\n")

	return sb.String()
}

// parseAssessment validates and normalizes the model output
func parseAssessment(response string) (models.Assessment, error) {
	raw := extractJSON(response)

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return models.Assessment{}, fmt.Errorf("%w: %v", ErrScoringResponseMalformed, err)
	}

	score, ok := fields["score"].(float64)
	if !ok {
		return models.Assessment{}, fmt.Errorf("%w: score is not a number", ErrScoringResponseInvalidShape)
	}
	strengths, ok := fields["strengths"].([]any)
	if !ok {
		return models.Assessment{}, fmt.Errorf("%w: strengths is not an array", ErrScoringResponseInvalidShape)
	}
	weaknesses, ok := fields["weaknesses"].([]any)
	if !ok {
		return models.Assessment{}, fmt.Errorf("%w: weaknesses is not an array", ErrScoringResponseInvalidShape)
	}

	return models.Assessment{
		Score:      clampScore(score),
		Strengths:  normalizeList(strengths, strengthsFiller),
		Weaknesses: normalizeList(weaknesses, weaknessesFiller),
	}, nil
}

// extractJSON strips markdown code fences around a JSON answer
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}

// clampScore rounds half up, then limits the score to 0..100
func clampScore(score float64) int {
	rounded := math.Floor(score + 0.5)
	return int(math.Max(0, math.Min(100, rounded)))
}

// normalizeList keeps the non-blank strings among the first three entries
func normalizeList(items []any, filler string) []string {
	if len(items) > maxListItems {
		items = items[:maxListItems]
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}

	if len(out) == 0 {
		out = append(out, filler)
	}
	return out
}

// sanitizeUTF8 replaces invalid byte sequences, which PDF decoding can produce
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
