package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/store"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrValidation, paramName)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid UUID", domain.ErrValidation, paramName)
	}
	return id, nil
}

// parseListQuery builds the store filter and page from list query
// parameters: status (repeatable), priority, from, to, limit, offset.
func parseListQuery(r *http.Request) (store.TaskFilter, store.Page, error) {
	var filter store.TaskFilter
	page := store.Page{Limit: defaultPageLimit}
	q := r.URL.Query()

	for _, raw := range q["status"] {
		status := domain.TaskStatus(raw)
		if !domain.IsValidTaskStatus(status) {
			return filter, page, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	if raw := q.Get("priority"); raw != "" {
		priority := domain.TaskPriority(raw)
		if !domain.IsValidTaskPriority(priority) {
			return filter, page, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrInvalidPriority)
		}
		filter.Priority = &priority
	}

	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, page, fmt.Errorf("%w: from must be RFC3339", domain.ErrValidation)
		}
		filter.CreatedFrom = &from
	}

	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, page, fmt.Errorf("%w: to must be RFC3339", domain.ErrValidation)
		}
		filter.CreatedTo = &to
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, page, fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation)
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
		page.Limit = limit
	}

	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, page, fmt.Errorf("%w: offset must be a non-negative integer", domain.ErrValidation)
		}
		page.Offset = offset
	}

	return filter, page, nil
}
