package scoring

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fmuoria/cv-inbox-screener/internal/config"
	"github.com/fmuoria/cv-inbox-screener/internal/llm"
	"go.uber.org/zap"
)

type stubGenerator struct {
	response string
	err      error
	system   string
	prompt   string
	deadline bool
}

func (s *stubGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	s.system = system
	s.prompt = prompt
	_, s.deadline = ctx.Deadline()
	return s.response, s.err
}

func newTestScorer(gen llm.Generator) *Scorer {
	return NewScorer(gen, zap.NewNop(), config.ScoringConfig{Timeout: time.Minute, MaxCVChars: DefaultMaxCVChars})
}

func TestScore_NormalizesResponse(t *testing.T) {
	tests := []struct {
		name           string
		response       string
		wantScore      int
		wantStrengths  []string
		wantWeaknesses []string
	}{
		{
			name:           "score above range with empty strengths",
			response:       `{"score": 137, "strengths": [], "weaknesses": ["x"]}`,
			wantScore:      100,
			wantStrengths:  []string{"Candidate meets basic requirements"},
			wantWeaknesses: []string{"x"},
		},
		{
			name:           "negative score and blank weaknesses",
			response:       `{"score": -4, "strengths": ["Go"], "weaknesses": ["  ", 3, null]}`,
			wantScore:      0,
			wantStrengths:  []string{"Go"},
			wantWeaknesses: []string{"No significant gaps identified"},
		},
		{
			name:           "half rounds up",
			response:       `{"score": 72.5, "strengths": ["a"], "weaknesses": ["b"]}`,
			wantScore:      73,
			wantStrengths:  []string{"a"},
			wantWeaknesses: []string{"b"},
		},
		{
			name:           "lists are cut to three before filtering",
			response:       `{"score": 64.4, "strengths": ["a", "", "c", "d"], "weaknesses": ["w1", "w2", "w3", "w4"]}`,
			wantScore:      64,
			wantStrengths:  []string{"a", "c"},
			wantWeaknesses: []string{"w1", "w2", "w3"},
		},
		{
			name:           "fenced JSON",
			response:       "```json\n{\"score\": 88, \"strengths\": [\"Leadership\"], \"weaknesses\": [\"Cloud\"]}\n```",
			wantScore:      88,
			wantStrengths:  []string{"Leadership"},
			wantWeaknesses: []string{"Cloud"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newTestScorer(&stubGenerator{response: tt.response}).
				Score(context.Background(), "cv text", "job description", "Jane Doe")
			if err != nil {
				t.Fatalf("Score() returned error: %v", err)
			}
			if got.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", got.Score, tt.wantScore)
			}
			if !reflect.DeepEqual(got.Strengths, tt.wantStrengths) {
				t.Errorf("Strengths = %v, want %v", got.Strengths, tt.wantStrengths)
			}
			if !reflect.DeepEqual(got.Weaknesses, tt.wantWeaknesses) {
				t.Errorf("Weaknesses = %v, want %v", got.Weaknesses, tt.wantWeaknesses)
			}
		})
	}
}

func TestScore_Errors(t *testing.T) {
	tests := []struct {
		name    string
		gen     *stubGenerator
		wantErr error
	}{
		{name: "not JSON", gen: &stubGenerator{response: "I think this candidate is great"}, wantErr: ErrScoringResponseMalformed},
		{name: "empty model answer", gen: &stubGenerator{err: llm.ErrEmptyResponse}, wantErr: ErrScoringResponseMalformed},
		{name: "score is a string", gen: &stubGenerator{response: `{"score": "90", "strengths": [], "weaknesses": []}`}, wantErr: ErrScoringResponseInvalidShape},
		{name: "missing weaknesses", gen: &stubGenerator{response: `{"score": 90, "strengths": ["a"]}`}, wantErr: ErrScoringResponseInvalidShape},
		{name: "strengths not an array", gen: &stubGenerator{response: `{"score": 90, "strengths": "a", "weaknesses": []}`}, wantErr: ErrScoringResponseInvalidShape},
		{name: "transport failure", gen: &stubGenerator{err: errors.New("429 rate limited")}, wantErr: ErrScoringUnavailable},
		{name: "timeout", gen: &stubGenerator{err: context.DeadlineExceeded}, wantErr: ErrScoringUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestScorer(tt.gen).Score(context.Background(), "cv", "job description", "Jane")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Score() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestScore_Prompt(t *testing.T) {
	gen := &stubGenerator{response: `{"score": 50, "strengths": ["a"], "weaknesses": ["b"]}`}
	cv := strings.Repeat("é", DefaultMaxCVChars) + "TAIL"

	if _, err := newTestScorer(gen).Score(context.Background(), cv, "Backend engineer with Go", "Jane Doe"); err != nil {
		t.Fatalf("Score() returned error: %v", err)
	}

	if gen.system != systemInstruction {
		t.Errorf("Unexpected system instruction %q", gen.system)
	}
	if !gen.deadline {
		t.Error("Expected the call to carry a deadline")
	}
	if !strings.Contains(gen.prompt, "Job Description:\nBackend engineer with Go") {
		t.Error("Prompt lacks the job description")
	}
	if !strings.Contains(gen.prompt, "Resume for Jane Doe:\n") {
		t.Error("Prompt lacks the candidate name")
	}
	if strings.Contains(gen.prompt, "TAIL") {
		t.Error("CV text was not truncated")
	}
	if n := strings.Count(gen.prompt, "é"); n != DefaultMaxCVChars {
		t.Errorf("Expected %d CV characters in prompt, got %d", DefaultMaxCVChars, n)
	}
}

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
	}{
		{name: "Valid text is unchanged", input: "José González - Software Engineer", contains: "José González"},
		{name: "Invalid bytes at start", input: string([]byte{0xFF, 0xFE}) + "Valid text", contains: "Valid text"},
		{name: "Invalid continuation bytes", input: "Name: John" + string([]byte{0x80, 0x81}), contains: "Name: John"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sanitizeUTF8(tt.input)
			if !utf8.ValidString(result) {
				t.Errorf("sanitizeUTF8() returned invalid UTF-8 string")
			}
			if !strings.Contains(result, tt.contains) {
				t.Errorf("sanitizeUTF8() = %q, want it to contain %q", result, tt.contains)
			}
		})
	}
}

func TestClampScore(t *testing.T) {
	tests := map[float64]int{
		-0.4:  0,
		0.5:   1,
		49.49: 49,
		99.5:  100,
		1e9:   100,
	}

	for in, want := range tests {
		if got := clampScore(in); got != want {
			t.Errorf("clampScore(%v) = %d, want %d", in, got, want)
		}
	}
}
