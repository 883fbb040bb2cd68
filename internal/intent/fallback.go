package intent

import (
	"context"
	"log/slog"
)

// FallbackParser decorates another Parser with the confidence policy:
// a successful parse below the threshold yields the default intent.
// Parse errors are propagated; the caller decides how to degrade.
type FallbackParser struct {
	primary   Parser
	threshold float64
	logger    *slog.Logger
}

// NewFallbackParser wraps the primary parser with the confidence threshold.
func NewFallbackParser(primary Parser, threshold float64, logger *slog.Logger) *FallbackParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackParser{
		primary:   primary,
		threshold: threshold,
		logger:    logger.With("component", "fallback_parser"),
	}
}

// Ensure FallbackParser implements Parser.
var _ Parser = (*FallbackParser)(nil)

// Parse runs the primary parser and applies the confidence threshold.
func (p *FallbackParser) Parse(ctx context.Context, description string) (*Result, error) {
	if description == "" {
		return nil, ErrEmptyDescription
	}

	result, err := p.primary.Parse(ctx, description)
	if err != nil {
		p.logger.Warn("intent parsing failed", "error", err)
		return nil, err
	}

	if result.Confidence < p.threshold {
		p.logger.Debug("intent confidence below threshold, using default intent",
			"intent", result.Intent,
			"confidence", result.Confidence,
			"threshold", p.threshold)
		return &Result{
			Intent:     DefaultIntent,
			Entities:   result.Entities,
			Confidence: result.Confidence,
		}, nil
	}

	return result, nil
}
