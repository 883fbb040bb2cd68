package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/phrazzld/taskrelay/internal/config"
)

const parsePromptTemplate = `Classify the following work request into exactly one intent.
Known intents: content_generation, media_brief, scheduling, general.
Respond with JSON only: {"intent": "...", "entities": {...}, "confidence": 0.0-1.0}.
Extract any platforms, topics, dates or quantities mentioned into entities.

Request: %s`

// GeminiParser is a Parser backed by the Gemini API. It asks the model for
// a JSON classification of the description.
type GeminiParser struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiParser creates a Gemini-backed intent parser from the intent
// configuration. Returns ErrInvalidConfig when the API key or model name
// is missing.
func NewGeminiParser(ctx context.Context, cfg config.IntentConfig, logger *slog.Logger) (*GeminiParser, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &GeminiParser{
		client: client,
		model:  cfg.ModelName,
		logger: logger.With("component", "gemini_parser"),
	}, nil
}

// Ensure GeminiParser implements Parser.
var _ Parser = (*GeminiParser)(nil)

// Parse classifies the description with a single model call. Any transport
// or decoding failure is returned to the caller, which is expected to
// degrade to the default intent.
func (p *GeminiParser) Parse(ctx context.Context, description string) (*Result, error) {
	if description == "" {
		return nil, ErrEmptyDescription
	}

	prompt := fmt.Sprintf(parsePromptTemplate, description)

	resp, err := p.client.Models.GenerateContent(
		ctx,
		p.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		p.logger.Warn("intent parse call failed", "error", err)
		return nil, err
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty model response", ErrInvalidResponse)
	}

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		p.logger.Warn("intent parse returned non-JSON payload", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if result.Intent == "" {
		return nil, fmt.Errorf("%w: missing intent field", ErrInvalidResponse)
	}

	p.logger.Debug("parsed intent",
		"intent", result.Intent,
		"confidence", result.Confidence)
	return &result, nil
}
