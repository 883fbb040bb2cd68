package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskrelay/internal/api"
	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/intent"
	"github.com/phrazzld/taskrelay/internal/platform/postgres"
	"github.com/phrazzld/taskrelay/internal/processor"
	"github.com/phrazzld/taskrelay/internal/queue"
	"github.com/phrazzld/taskrelay/internal/scheduler"
	"github.com/phrazzld/taskrelay/internal/service"
	"github.com/phrazzld/taskrelay/internal/worker"
)

// application holds the wired components of the task pipeline.
type application struct {
	config *config.Config
	logger *slog.Logger

	db          *sql.DB
	broker      *queue.Broker
	broadcaster *events.Broadcaster
	hub         *events.Hub
	pool        *worker.Pool
	scheduler   *scheduler.Scheduler
	taskHandler *api.TaskHandler
}

// newApplication wires every component: store, events, intent parsing,
// processors, queue, workers, scheduler and HTTP handlers.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	ctx := context.Background()

	db, err := setupDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	broadcaster := events.NewBroadcaster(logger)

	// Every state-affecting write publishes its lifecycle events.
	taskStore := events.NewPublishingStore(postgres.NewPostgresTaskStore(db, logger), broadcaster)

	broker := queue.NewBroker(cfg.Worker.LaneSize, logger)

	parser, err := setupIntentParser(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry, err := setupProcessors(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	retries := worker.NewRetryController(taskStore, broker, cfg.Retry, logger)
	pool := worker.NewPool(taskStore, broker, registry, retries, cfg.Worker, logger)
	sched := scheduler.New(taskStore, broker, cfg.Scheduler, logger)

	taskService := service.NewTaskService(taskStore, parser, broker, logger)

	return &application{
		config:      cfg,
		logger:      logger,
		db:          db,
		broker:      broker,
		broadcaster: broadcaster,
		hub:         events.NewHub(broadcaster, logger),
		pool:        pool,
		scheduler:   sched,
		taskHandler: api.NewTaskHandler(taskService, logger),
	}, nil
}

// setupIntentParser builds the parser chain: the Gemini parser when an API
// key is configured, the keyword parser otherwise, both wrapped so
// low-confidence parses fall back to the default intent. Parse failures
// surface to the service, which accepts the task without a classification.
func setupIntentParser(ctx context.Context, cfg *config.Config, logger *slog.Logger) (intent.Parser, error) {
	var primary intent.Parser
	if cfg.Intent.GeminiAPIKey != "" {
		gp, err := intent.NewGeminiParser(ctx, cfg.Intent, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini parser: %w", err)
		}
		primary = gp
		logger.Info("intent parser configured", "backend", "gemini", "model", cfg.Intent.ModelName)
	} else {
		primary = intent.NewKeywordParser()
		logger.Info("intent parser configured", "backend", "keyword")
	}
	return intent.NewFallbackParser(primary, cfg.Intent.ConfidenceThreshold, logger), nil
}

// setupProcessors registers the builtin processors. The generative
// processors are only available when an API key is configured; the echo
// processor always serves as the default.
func setupProcessors(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*processor.Registry, error) {
	registry, err := processor.NewRegistry(processor.NewEchoProcessor(logger), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor registry: %w", err)
	}

	if cfg.Intent.GeminiAPIKey == "" {
		logger.Warn("no gemini api key configured, generative processors disabled")
		return registry, nil
	}

	generator, err := processor.NewGeminiTextGenerator(ctx, cfg.Intent, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create text generator: %w", err)
	}

	content, err := processor.NewContentProcessor(generator, logger)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(content); err != nil {
		return nil, err
	}

	brief, err := processor.NewMediaBriefProcessor(generator, logger)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(brief); err != nil {
		return nil, err
	}

	logger.Info("processors registered", "intents", registry.Intents())
	return registry, nil
}

// run starts the pipeline and serves HTTP until shutdown.
func (app *application) run() error {
	if err := app.pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	app.scheduler.Start()

	return app.startHTTPServer(context.Background(), app.setupRouter())
}

// cleanup stops the pipeline components in dependency order: no new
// dispatches, then workers, then the queue and the database.
func (app *application) cleanup() {
	app.scheduler.Stop()
	app.pool.Stop()
	app.broker.Close()

	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}
}
