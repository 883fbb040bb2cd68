package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// ciEnvFields maps CI provider environment variables to the log attribute
// they are emitted under. Only variables that are set are attached.
var ciEnvFields = map[string]string{
	"GITHUB_RUN_ID":   "ci_run_id",
	"GITHUB_WORKFLOW": "ci_workflow",
	"GITHUB_SHA":      "ci_commit",
	"GITHUB_REF":      "ci_ref",
}

// CIHandler is a JSON handler that stamps CI run metadata on every record,
// so logs emitted during a pipeline run can be correlated with the run that
// produced them. The metadata is captured once, at construction, and stays
// at the top level of the record regardless of later groups.
type CIHandler struct {
	inner slog.Handler
}

// NewCIHandler builds a CIHandler writing JSON records to out.
func NewCIHandler(out io.Writer, opts *slog.HandlerOptions) *CIHandler {
	return &CIHandler{
		inner: slog.NewJSONHandler(out, opts).WithAttrs(ciMetadata()),
	}
}

var _ slog.Handler = (*CIHandler)(nil)

func (h *CIHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CIHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CIHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CIHandler) WithGroup(name string) slog.Handler {
	return &CIHandler{inner: h.inner.WithGroup(name)}
}

func (h *CIHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.inner.Handle(ctx, record)
}

// RunningInCI reports whether the process appears to run under a CI system.
func RunningInCI() bool {
	return os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != ""
}

func ciMetadata() []slog.Attr {
	attrs := []slog.Attr{slog.Bool("ci", true)}
	for env, field := range ciEnvFields {
		if v := os.Getenv(env); v != "" {
			attrs = append(attrs, slog.String(field, v))
		}
	}
	return attrs
}
