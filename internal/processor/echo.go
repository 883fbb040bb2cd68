package processor

import (
	"context"
	"log/slog"

	"github.com/phrazzld/taskrelay/internal/intent"
)

// EchoProcessor is the default processor, handling any intent without a
// dedicated capability. It validates the request and completes with the
// normalized parameters echoed back, so a task never gets stranded on an
// unknown intent.
type EchoProcessor struct {
	logger *slog.Logger
}

// NewEchoProcessor creates the default processor.
func NewEchoProcessor(logger *slog.Logger) *EchoProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &EchoProcessor{
		logger: logger.With("processor", intent.DefaultIntent),
	}
}

// Ensure EchoProcessor implements Processor.
var _ Processor = (*EchoProcessor)(nil)

// Intent implements Processor.Intent.
func (p *EchoProcessor) Intent() string {
	return intent.DefaultIntent
}

// MaxRetries implements Processor.MaxRetries. Echoing has no upstream
// dependency worth retrying more than once.
func (p *EchoProcessor) MaxRetries() int {
	return 1
}

// Execute implements Processor.Execute.
func (p *EchoProcessor) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient("cancelled before start", err)
	}

	if ec.Task.Description == "" {
		return nil, Permanent("task has no description", nil)
	}

	if err := ec.ReportProgress(ctx, 50, "echo parameters"); err != nil {
		return nil, err
	}

	return &Result{
		OutputFormat: "json",
		OutputData: map[string]any{
			"description": ec.Task.Description,
			"entities":    ec.Entities(),
		},
	}, nil
}
