package processor

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/phrazzld/taskrelay/internal/config"
)

// TextGenerator is the boundary to the generative-AI collaborator used by
// the builtin content processors. Tests substitute a stub.
type TextGenerator interface {
	// GenerateText produces text for the prompt. Implementations should
	// return transport failures as-is; the calling processor classifies
	// them as transient.
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// GeminiTextGenerator implements TextGenerator with the Gemini API.
type GeminiTextGenerator struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiTextGenerator creates a Gemini-backed text generator.
func NewGeminiTextGenerator(ctx context.Context, cfg config.IntentConfig, logger *slog.Logger) (*GeminiTextGenerator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key cannot be empty")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiTextGenerator{
		client: client,
		model:  cfg.ModelName,
		logger: logger.With("component", "gemini_text_generator"),
	}, nil
}

// Ensure GeminiTextGenerator implements TextGenerator.
var _ TextGenerator = (*GeminiTextGenerator)(nil)

// GenerateText implements TextGenerator.
func (g *GeminiTextGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		g.logger.Warn("generation call failed", "error", err)
		return "", err
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty model response")
	}
	return text, nil
}
