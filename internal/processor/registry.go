package processor

import (
	"fmt"
	"log/slog"
)

// Registry maps intents to processors. It is populated once at startup
// and read-only afterwards, so lookups need no locking.
type Registry struct {
	processors map[string]Processor
	fallback   Processor
	logger     *slog.Logger
}

// NewRegistry creates a registry with the given default processor, used
// when no exact intent match exists.
func NewRegistry(fallback Processor, logger *slog.Logger) (*Registry, error) {
	if fallback == nil {
		return nil, ErrNilProcessor
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		processors: make(map[string]Processor),
		fallback:   fallback,
		logger:     logger.With("component", "processor_registry"),
	}
	r.processors[fallback.Intent()] = fallback
	return r, nil
}

// Register adds a processor for its intent. Returns ErrDuplicateIntent if
// the intent is already taken.
func (r *Registry) Register(p Processor) error {
	if p == nil {
		return ErrNilProcessor
	}

	intent := p.Intent()
	if _, exists := r.processors[intent]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateIntent, intent)
	}

	r.processors[intent] = p
	r.logger.Debug("registered processor", "intent", intent, "max_retries", p.MaxRetries())
	return nil
}

// Resolve returns the processor for the intent, falling back to the
// default processor when no exact match exists.
func (r *Registry) Resolve(intent string) Processor {
	if p, ok := r.processors[intent]; ok {
		return p
	}
	return r.fallback
}

// Intents returns the registered intent strings, for startup logging.
func (r *Registry) Intents() []string {
	intents := make([]string, 0, len(r.processors))
	for intent := range r.processors {
		intents = append(intents, intent)
	}
	return intents
}
