package handlers

import (
	"net/http"

	"github.com/ternarybob/agenthub/internal/interfaces"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

// TaskHandler serves /api/task
type TaskHandler struct {
	tasks  interfaces.TaskService
	logger arbor.ILogger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks interfaces.TaskService, logger arbor.ILogger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// CreateHandler handles POST /api/task/create
func (h *TaskHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTaskRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), req)
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "task", task)
}

// ListHandler handles GET /api/task/list
func (h *TaskHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "tasks", tasks)
}

// GetHandler handles GET /api/task/{id}
func (h *TaskHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "task", task)
}

// CancelHandler handles POST /api/task/{id}/cancel
func (h *TaskHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, h.logger, r, err)
		return
	}
	WriteSuccess(w, "task", task)
}
