package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

const briefIntent = "media_brief"

const briefPromptTemplate = `You plan visual content for a small business.
Produce a production brief for the requested asset as JSON with the keys
"concept", "format", "style" and "elements" (array of strings).
Respond with JSON only. Request: %s`

// MediaBriefProcessor produces a structured production brief for an image
// or video request. The brief goes to review; actual media production is a
// downstream concern referenced by media refs.
type MediaBriefProcessor struct {
	generator TextGenerator
	logger    *slog.Logger
}

// NewMediaBriefProcessor creates a media-brief processor.
func NewMediaBriefProcessor(generator TextGenerator, logger *slog.Logger) (*MediaBriefProcessor, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaBriefProcessor{
		generator: generator,
		logger:    logger.With("processor", briefIntent),
	}, nil
}

// Ensure MediaBriefProcessor implements Processor.
var _ Processor = (*MediaBriefProcessor)(nil)

// Intent implements Processor.Intent.
func (p *MediaBriefProcessor) Intent() string {
	return briefIntent
}

// MaxRetries implements Processor.MaxRetries.
func (p *MediaBriefProcessor) MaxRetries() int {
	return 3
}

// Execute implements Processor.Execute. A response that is not valid JSON
// is permanent: retrying the same prompt on a model that answered in the
// wrong shape rarely helps, and review catches the rest.
func (p *MediaBriefProcessor) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	if ec.Task.Description == "" {
		return nil, Permanent("task has no description", nil)
	}

	if err := ec.ReportProgress(ctx, 10, "drafting brief"); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, Transient("cancelled mid-attempt", err)
	}

	prompt := fmt.Sprintf(briefPromptTemplate, ec.Task.Description)
	text, err := p.generator.GenerateText(ctx, prompt)
	if err != nil {
		return nil, Transient("brief generation failed", err)
	}

	var brief map[string]any
	if err := json.Unmarshal([]byte(text), &brief); err != nil {
		return nil, Permanent("brief response was not valid JSON", err)
	}

	if err := ec.ReportProgress(ctx, 90, "brief drafted"); err != nil {
		return nil, err
	}

	return &Result{
		OutputFormat: "json",
		OutputData:   brief,
		NeedsReview:  true,
	}, nil
}
