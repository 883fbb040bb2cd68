package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/phrazzld/taskrelay/internal/store"
)

const taskColumns = `id, instance_id, description, parsed_intent, priority, status,
	progress, execution_steps, scheduled_for, recurring_pattern,
	output_format, output_data, output_media_refs,
	processing_started_at, processing_ended_at,
	retry_count, max_retries, error_message, parent_task_id,
	version, created_at, updated_at, deleted_at`

// PostgresTaskStore implements the store.TaskStore interface using a
// PostgreSQL database as the storage backend. All status mutations go
// through CompareAndSwap, a single version-guarded UPDATE, which is the
// serialization point for the whole pipeline.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	parsedIntent, err := marshalNullable(task.ParsedIntent)
	if err != nil {
		return fmt.Errorf("failed to encode parsed intent: %w", err)
	}
	steps, err := json.Marshal(task.ExecutionSteps)
	if err != nil {
		return fmt.Errorf("failed to encode execution steps: %w", err)
	}
	outputData, err := marshalNullable(task.OutputData)
	if err != nil {
		return fmt.Errorf("failed to encode output data: %w", err)
	}
	mediaRefs, err := marshalNullable(task.OutputMediaRefs)
	if err != nil {
		return fmt.Errorf("failed to encode media refs: %w", err)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.InstanceID,
		task.Description,
		parsedIntent,
		task.Priority,
		task.Status,
		task.Progress,
		steps,
		task.ScheduledFor,
		nullString(task.RecurringPattern),
		nullString(task.OutputFormat),
		outputData,
		mediaRefs,
		task.ProcessingStartedAt,
		task.ProcessingEndedAt,
		task.RetryCount,
		task.MaxRetries,
		nullString(task.ErrorMessage),
		task.ParentTaskID,
		task.Version,
		task.CreatedAt,
		task.UpdatedAt,
		task.DeletedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			log.Warn("duplicate task id during creation",
				slog.String("task_id", task.ID.String()))
			return fmt.Errorf("%w: task with ID %s already exists",
				store.ErrInvalidEntity, task.ID)
		}

		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()),
			slog.String("instance_id", task.InstanceID.String()))
		return mapError(err)
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("instance_id", task.InstanceID.String()),
		slog.String("priority", string(task.Priority)))
	return nil
}

// GetByID implements store.TaskStore.GetByID.
// Returns store.ErrTaskNotFound if the task does not exist or is deleted.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND deleted_at IS NULL`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, mapError(err)
	}

	return task, nil
}

// List implements store.TaskStore.List with stable (created_at, id) ordering.
func (s *PostgresTaskStore) List(
	ctx context.Context,
	instanceID uuid.UUID,
	filter store.TaskFilter,
	page store.Page,
) (*store.TaskPage, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	conditions := []string{"instance_id = $1", "deleted_at IS NULL"}
	args := []any{instanceID}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			args = append(args, st)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.ScheduledFrom != nil {
		args = append(args, *filter.ScheduledFrom)
		conditions = append(conditions, fmt.Sprintf("scheduled_for >= $%d", len(args)))
	}
	if filter.ScheduledTo != nil {
		args = append(args, *filter.ScheduledTo)
		conditions = append(conditions, fmt.Sprintf("scheduled_for <= $%d", len(args)))
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM tasks WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		log.Error("failed to count tasks", slog.String("error", err.Error()))
		return nil, mapError(err)
	}

	query := "SELECT " + taskColumns + " FROM tasks WHERE " + where +
		" ORDER BY created_at ASC, id ASC"
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if page.Offset > 0 {
		args = append(args, page.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list tasks",
			slog.String("error", err.Error()),
			slog.String("instance_id", instanceID.String()))
		return nil, mapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	return &store.TaskPage{
		Tasks:  tasks,
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}, nil
}

// CompareAndSwap implements store.TaskStore.CompareAndSwap. The write is a
// single UPDATE guarded by the version column; zero rows affected means
// another writer won and the caller gets store.ErrConflict.
func (s *PostgresTaskStore) CompareAndSwap(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int64,
	mut store.TaskMutation,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Version != expectedVersion {
		return nil, store.ErrConflict
	}

	if mut.Status != nil && *mut.Status != current.Status &&
		!domain.CanTransition(current.Status, *mut.Status) {
		log.Warn("illegal status transition rejected",
			slog.String("task_id", id.String()),
			slog.String("from", string(current.Status)),
			slog.String("to", string(*mut.Status)))
		return nil, store.ErrConflict
	}

	updated := mut.Apply(current)

	parsedIntent, err := marshalNullable(updated.ParsedIntent)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parsed intent: %w", err)
	}
	steps, err := json.Marshal(updated.ExecutionSteps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execution steps: %w", err)
	}
	outputData, err := marshalNullable(updated.OutputData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output data: %w", err)
	}
	mediaRefs, err := marshalNullable(updated.OutputMediaRefs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode media refs: %w", err)
	}

	query := `
		UPDATE tasks
		SET parsed_intent = $1, priority = $2, status = $3, progress = $4,
			execution_steps = $5, scheduled_for = $6, recurring_pattern = $7,
			output_format = $8, output_data = $9, output_media_refs = $10,
			processing_started_at = $11, processing_ended_at = $12,
			retry_count = $13, max_retries = $14, error_message = $15,
			version = $16, updated_at = $17
		WHERE id = $18 AND version = $19 AND deleted_at IS NULL
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		parsedIntent,
		updated.Priority,
		updated.Status,
		updated.Progress,
		steps,
		updated.ScheduledFor,
		nullString(updated.RecurringPattern),
		nullString(updated.OutputFormat),
		outputData,
		mediaRefs,
		updated.ProcessingStartedAt,
		updated.ProcessingEndedAt,
		updated.RetryCount,
		updated.MaxRetries,
		nullString(updated.ErrorMessage),
		updated.Version,
		updated.UpdatedAt,
		id,
		expectedVersion,
	)
	if err != nil {
		log.Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Another writer bumped the version between our read and write.
		return nil, store.ErrConflict
	}

	log.Debug("task updated",
		slog.String("task_id", id.String()),
		slog.String("status", string(updated.Status)),
		slog.Int64("version", updated.Version))
	return updated, nil
}

// FindDue implements store.TaskStore.FindDue.
func (s *PostgresTaskStore) FindDue(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1 AND scheduled_for IS NOT NULL AND scheduled_for <= $2
			AND deleted_at IS NULL
		ORDER BY scheduled_for ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, domain.TaskStatusSubmitted, now, limit)
	if err != nil {
		log.Error("failed to query due tasks", slog.String("error", err.Error()))
		return nil, mapError(err)
	}
	defer func() { _ = rows.Close() }()

	return scanTasks(rows)
}

// FindByStatus implements store.TaskStore.FindByStatus.
func (s *PostgresTaskStore) FindByStatus(
	ctx context.Context,
	statuses ...domain.TaskStatus,
) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = st
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status IN (` + strings.Join(placeholders, ", ") + `) AND deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks by status", slog.String("error", err.Error()))
		return nil, mapError(err)
	}
	defer func() { _ = rows.Close() }()

	return scanTasks(rows)
}

// FindStuck implements store.TaskStore.FindStuck.
func (s *PostgresTaskStore) FindStuck(
	ctx context.Context,
	olderThan time.Duration,
) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1 AND processing_started_at IS NOT NULL
			AND processing_started_at < $2 AND deleted_at IS NULL
		ORDER BY processing_started_at ASC
	`

	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.QueryContext(ctx, query, domain.TaskStatusInProgress, cutoff)
	if err != nil {
		log.Error("failed to query stuck tasks", slog.String("error", err.Error()))
		return nil, mapError(err)
	}
	defer func() { _ = rows.Close() }()

	return scanTasks(rows)
}

// Delete implements store.TaskStore.Delete (soft delete, terminal tasks only).
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !current.Status.IsTerminal() {
		return store.ErrConflict
	}

	query := `UPDATE tasks SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to delete task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return mapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrTaskNotFound
	}

	log.Info("task deleted", slog.String("task_id", id.String()))
	return nil
}


// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task             domain.Task
		parsedIntent     []byte
		steps            []byte
		outputData       []byte
		mediaRefs        []byte
		recurringPattern sql.NullString
		outputFormat     sql.NullString
		errorMessage     sql.NullString
	)

	err := row.Scan(
		&task.ID,
		&task.InstanceID,
		&task.Description,
		&parsedIntent,
		&task.Priority,
		&task.Status,
		&task.Progress,
		&steps,
		&task.ScheduledFor,
		&recurringPattern,
		&outputFormat,
		&outputData,
		&mediaRefs,
		&task.ProcessingStartedAt,
		&task.ProcessingEndedAt,
		&task.RetryCount,
		&task.MaxRetries,
		&errorMessage,
		&task.ParentTaskID,
		&task.Version,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	task.RecurringPattern = recurringPattern.String
	task.OutputFormat = outputFormat.String
	task.ErrorMessage = errorMessage.String

	if len(parsedIntent) > 0 {
		if err := json.Unmarshal(parsedIntent, &task.ParsedIntent); err != nil {
			return nil, fmt.Errorf("failed to decode parsed intent: %w", err)
		}
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &task.ExecutionSteps); err != nil {
			return nil, fmt.Errorf("failed to decode execution steps: %w", err)
		}
	}
	if len(outputData) > 0 {
		if err := json.Unmarshal(outputData, &task.OutputData); err != nil {
			return nil, fmt.Errorf("failed to decode output data: %w", err)
		}
	}
	if len(mediaRefs) > 0 {
		if err := json.Unmarshal(mediaRefs, &task.OutputMediaRefs); err != nil {
			return nil, fmt.Errorf("failed to decode media refs: %w", err)
		}
	}

	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

// marshalNullable encodes v as JSON, returning nil (SQL NULL) for nil
// pointers, maps and slices so jsonb columns stay NULL instead of "null".
func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case *domain.ParsedIntent:
		if val == nil {
			return nil, nil
		}
	case map[string]any:
		if val == nil {
			return nil, nil
		}
	case []string:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
