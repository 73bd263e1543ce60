package handler

import (
	"net/http"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/service"
)

// TaskHandler обрабатывает эндпоинты задач после коммита
type TaskHandler struct {
	deletionService *service.DeletionService
}

// NewTaskHandler создает новый TaskHandler
func NewTaskHandler(deletionService *service.DeletionService) *TaskHandler {
	return &TaskHandler{
		deletionService: deletionService,
	}
}

// ListTasksResponse представляет список незавершенных задач
type ListTasksResponse struct {
	Tasks []domain.PostCommitTask `json:"tasks"`
}

// ListPending обрабатывает GET /deletion/tasks
func (h *TaskHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.deletionService.PendingTasks(r.Context())
	if err != nil {
		HandleError(w, r, err)
		return
	}

	// Пустой список отдаем как [], а не null
	if tasks == nil {
		tasks = []domain.PostCommitTask{}
	}

	RespondWithJSON(w, r, http.StatusOK, ListTasksResponse{Tasks: tasks})
}
