package llm

import (
	"context"
	"log/slog"

	"github.com/ashureev/foundersync/internal/agent"
	"github.com/ashureev/foundersync/internal/config"
)

// NewInvoker returns the scripted invoker when the mock model is selected,
// otherwise a Gemini client.
func NewInvoker(ctx context.Context, cfg config.ModelConfig) (agent.Invoker, error) {
	if cfg.UseMock {
		slog.Warn("Using scripted model; replies are canned")
		return NewScripted(), nil
	}
	g, err := NewGemini(ctx, GeminiConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Name,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Gemini model configured", "model", cfg.Name)
	return g, nil
}
