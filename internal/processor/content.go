package processor

import (
	"context"
	"fmt"
	"log/slog"
)

const contentIntent = "content_generation"

const contentPromptTemplate = `You write social media content for a small business.
Produce the requested content, ready to publish. Request: %s`

// ContentProcessor generates written content (captions, posts, copy) for a
// task via the text-generation collaborator. Output always routes to
// review so a human approves it before publication.
type ContentProcessor struct {
	generator TextGenerator
	logger    *slog.Logger
}

// NewContentProcessor creates a content-generation processor.
func NewContentProcessor(generator TextGenerator, logger *slog.Logger) (*ContentProcessor, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentProcessor{
		generator: generator,
		logger:    logger.With("processor", contentIntent),
	}, nil
}

// Ensure ContentProcessor implements Processor.
var _ Processor = (*ContentProcessor)(nil)

// Intent implements Processor.Intent.
func (p *ContentProcessor) Intent() string {
	return contentIntent
}

// MaxRetries implements Processor.MaxRetries.
func (p *ContentProcessor) MaxRetries() int {
	return 3
}

// Execute implements Processor.Execute. Generation failures are transient;
// an empty request is permanent.
func (p *ContentProcessor) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	if ec.Task.Description == "" {
		return nil, Permanent("task has no description", nil)
	}

	if err := ec.ReportProgress(ctx, 10, "drafting content"); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, Transient("cancelled mid-attempt", err)
	}

	prompt := fmt.Sprintf(contentPromptTemplate, ec.Task.Description)
	text, err := p.generator.GenerateText(ctx, prompt)
	if err != nil {
		return nil, Transient("content generation failed", err)
	}

	if err := ec.ReportProgress(ctx, 90, "content drafted"); err != nil {
		return nil, err
	}

	return &Result{
		OutputFormat: "text",
		OutputData: map[string]any{
			"content": text,
		},
		NeedsReview: true,
	}, nil
}
