package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/fmuoria/cv-inbox-screener/internal/config"
)

// ErrEmptyResponse is returned when the model answered without any text
var ErrEmptyResponse = errors.New("model returned an empty response")

// Generator sends a system instruction and a prompt to a language model and
// returns the raw text of its answer.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// New creates the generator selected by cfg.Provider. Clients holding
// connections also implement io.Closer.
func New(ctx context.Context, cfg config.ScoringConfig) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderVertex:
		c, err := NewVertexAIClient(ctx, cfg.Vertex.Project, cfg.Vertex.Location, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderGemini:
		c, err := NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderOpenAI:
		c, err := NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown scoring provider %q", cfg.Provider)
	}
}
