package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskrelay/internal/api/middleware"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/intent"
	"github.com/phrazzld/taskrelay/internal/queue"
	"github.com/phrazzld/taskrelay/internal/service"
	"github.com/phrazzld/taskrelay/internal/store"
	"github.com/phrazzld/taskrelay/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedParser struct{}

func (fixedParser) Parse(ctx context.Context, description string) (*intent.Result, error) {
	return &intent.Result{Intent: "content_generation", Confidence: 0.9}, nil
}

type handlerFixture struct {
	router    chi.Router
	taskStore store.TaskStore
	service   *service.TaskService
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	taskStore := memory.NewTaskStore()
	broker := queue.NewBroker(16, nil)
	t.Cleanup(broker.Close)

	svc := service.NewTaskService(taskStore, fixedParser{}, broker, nil)
	handler := NewTaskHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Post("/instances/{id}/tasks", handler.Submit)
	r.Get("/instances/{id}/tasks", handler.List)
	r.Get("/tasks/{id}", handler.Get)
	r.Get("/tasks/{id}/status", handler.GetStatus)
	r.Patch("/tasks/{id}", handler.Patch)
	r.Post("/tasks/{id}/cancel", handler.Cancel)
	r.Post("/tasks/{id}/retry", handler.Retry)
	r.Post("/tasks/{id}/review", handler.Review)
	r.Delete("/tasks/{id}", handler.Delete)

	return &handlerFixture{router: r, taskStore: taskStore, service: svc}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) submit(t *testing.T, instanceID uuid.UUID) TaskResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/instances/"+instanceID.String()+"/tasks", SubmitTaskRequest{
		Description: "write a caption",
		Priority:    "urgent",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// walkTaskTo drives a stored task through legal transitions for tests
// that need a task beyond the submission states.
func walkTaskTo(t *testing.T, taskStore store.TaskStore, id uuid.UUID, want domain.TaskStatus) {
	t.Helper()
	ctx := context.Background()

	path := []domain.TaskStatus{
		domain.TaskStatusQueued,
		domain.TaskStatusPlanning,
		domain.TaskStatusAssigned,
		domain.TaskStatusInProgress,
		domain.TaskStatusCompleted,
	}
	current, err := taskStore.GetByID(ctx, id)
	require.NoError(t, err)
	for _, next := range path {
		if current.Status == want {
			return
		}
		if next == domain.TaskStatusCompleted &&
			(want == domain.TaskStatusFailed || want == domain.TaskStatusReview) {
			next = want
		}
		st := next
		current, err = taskStore.CompareAndSwap(ctx, current.ID, current.Version, store.TaskMutation{Status: &st})
		require.NoError(t, err)
	}
	require.Equal(t, want, current.Status)
}

func TestSubmitTaskEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	instanceID := uuid.New()

	rec := f.do(t, http.MethodPost, "/instances/"+instanceID.String()+"/tasks", SubmitTaskRequest{
		Description: "draft launch copy",
		Priority:    "urgent",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, instanceID, resp.InstanceID)
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, "urgent", resp.Priority)
	require.NotNil(t, resp.ParsedIntent)
	assert.Equal(t, "content_generation", resp.ParsedIntent.Intent)
	assert.NotNil(t, resp.ExecutionSteps, "execution_steps must serialize as an array")
}

func TestSubmitTaskValidation(t *testing.T) {
	f := newHandlerFixture(t)
	instanceID := uuid.New()
	base := "/instances/" + instanceID.String() + "/tasks"

	tests := []struct {
		name string
		body SubmitTaskRequest
	}{
		{"missing description", SubmitTaskRequest{Priority: "normal"}},
		{"unknown priority", SubmitTaskRequest{Description: "x", Priority: "critical"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, base, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	past := time.Now().UTC().Add(-time.Hour)
	rec := f.do(t, http.MethodPost, base, SubmitTaskRequest{
		Description:  "too late",
		ScheduledFor: &past,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp struct {
		Error   string `json:"error"`
		TraceID string `json:"trace_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "Scheduled time is in the past", errResp.Error)
	assert.NotEmpty(t, errResp.TraceID)
}

func TestSubmitTaskBadInstanceID(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, http.MethodPost, "/instances/not-a-uuid/tasks", SubmitTaskRequest{Description: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.submit(t, uuid.New())

	rec := f.do(t, http.MethodGet, "/tasks/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.ID, resp.ID)

	rec = f.do(t, http.MethodGet, "/tasks/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTaskStatusEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.submit(t, uuid.New())

	rec := f.do(t, http.MethodGet, "/tasks/"+created.ID.String()+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view service.StatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, created.ID, view.ID)
	assert.Equal(t, domain.TaskStatusQueued, view.Status)
}

func TestListTasksEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	instanceID := uuid.New()
	for i := 0; i < 3; i++ {
		f.submit(t, instanceID)
	}
	f.submit(t, uuid.New()) // another tenant

	rec := f.do(t, http.MethodGet, "/instances/"+instanceID.String()+"/tasks?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page TaskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Tasks, 2)
	for _, task := range page.Tasks {
		assert.Equal(t, instanceID, task.InstanceID)
	}

	rec = f.do(t, http.MethodGet,
		fmt.Sprintf("/instances/%s/tasks?status=queued&priority=urgent", instanceID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)

	rec = f.do(t, http.MethodGet, "/instances/"+instanceID.String()+"/tasks?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchTaskEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.submit(t, uuid.New())

	low := "low"
	rec := f.do(t, http.MethodPatch, "/tasks/"+created.ID.String(), PatchTaskRequest{Priority: &low})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "low", resp.Priority)

	// Priority can no longer change once the task is executing.
	walkTaskTo(t, f.taskStore, created.ID, domain.TaskStatusInProgress)
	rec = f.do(t, http.MethodPatch, "/tasks/"+created.ID.String(), PatchTaskRequest{Priority: &low})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelTaskEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.submit(t, uuid.New())

	rec := f.do(t, http.MethodPost, "/tasks/"+created.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled", resp.Status)

	// A second cancel is a conflict: the task is already terminal.
	rec = f.do(t, http.MethodPost, "/tasks/"+created.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelRejectedOnceInProgress(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.submit(t, uuid.New())
	walkTaskTo(t, f.taskStore, created.ID, domain.TaskStatusInProgress)

	rec := f.do(t, http.MethodPost, "/tasks/"+created.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errResp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "Task can no longer be cancelled", errResp.Error)
}

func TestRetryTaskEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.submit(t, uuid.New())

	// Retry of a non-failed task is rejected.
	rec := f.do(t, http.MethodPost, "/tasks/"+created.ID.String()+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	walkTaskTo(t, f.taskStore, created.ID, domain.TaskStatusFailed)

	rec = f.do(t, http.MethodPost, "/tasks/"+created.ID.String()+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, 0, resp.RetryCount)
}

func TestDeleteTaskEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.submit(t, uuid.New())

	// Live tasks cannot be deleted.
	rec := f.do(t, http.MethodDelete, "/tasks/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	walkTaskTo(t, f.taskStore, created.ID, domain.TaskStatusCompleted)

	rec = f.do(t, http.MethodDelete, "/tasks/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/tasks/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewTaskEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.submit(t, uuid.New())
	walkTaskTo(t, f.taskStore, created.ID, domain.TaskStatusReview)

	rec := f.do(t, http.MethodPost, "/tasks/"+created.ID.String()+"/review",
		map[string]any{"approved": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)

	// The task is terminal now; a second decision is a conflict.
	rec = f.do(t, http.MethodPost, "/tasks/"+created.ID.String()+"/review",
		map[string]any{"approved": false})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReviewDeclineEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.submit(t, uuid.New())
	walkTaskTo(t, f.taskStore, created.ID, domain.TaskStatusReview)

	rec := f.do(t, http.MethodPost, "/tasks/"+created.ID.String()+"/review",
		map[string]any{"approved": false})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rejected", resp.Status)
}

func TestReviewRequiresDecision(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.submit(t, uuid.New())
	walkTaskTo(t, f.taskStore, created.ID, domain.TaskStatusReview)

	rec := f.do(t, http.MethodPost, "/tasks/"+created.ID.String()+"/review",
		map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewRejectedForTaskNotInReview(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.submit(t, uuid.New())

	rec := f.do(t, http.MethodPost, "/tasks/"+created.ID.String()+"/review",
		map[string]any{"approved": true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errResp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "Task is not awaiting review", errResp.Error)
}
