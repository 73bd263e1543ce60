package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/middleware"
	"github.com/aidar/tenant-purge/internal/report"
	"github.com/aidar/tenant-purge/internal/saga"
	"github.com/aidar/tenant-purge/internal/service"
)

// DeletionHandler обрабатывает эндпоинты удаления принципалов
type DeletionHandler struct {
	deletionService *service.DeletionService
}

// NewDeletionHandler создает новый DeletionHandler
func NewDeletionHandler(deletionService *service.DeletionService) *DeletionHandler {
	return &DeletionHandler{
		deletionService: deletionService,
	}
}

// DeleteRequest представляет тело запроса на удаление.
// Через API подтверждения всегда даются автоматически.
type DeleteRequest struct {
	SkipRemoteTeardown      bool `json:"skip_remote_teardown"`
	SkipBillingCancellation bool `json:"skip_billing_cancellation"`
	Force                   bool `json:"force"`
}

// FailureDetail описывает ошибку шага
type FailureDetail struct {
	Phase   domain.PhaseName    `json:"phase"`
	Class   domain.FailureClass `json:"class"`
	Message string              `json:"message"`
}

// DeletionResponse представляет результат прогона
type DeletionResponse struct {
	Result        *saga.Result   `json:"result"`
	Error         string         `json:"error,omitempty"`
	Failure       *FailureDetail `json:"failure,omitempty"`
	RollbackError string         `json:"rollback_error,omitempty"`
	ExitCode      int            `json:"exit_code"`
	Report        string         `json:"report"`
}

// LeaseResponse представляет текущую аренду
type LeaseResponse struct {
	Lease *domain.Lease `json:"lease"`
}

// Preview обрабатывает GET /principals/{id}/deletion/preview
func (h *DeletionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "id")
	if principalID == "" {
		RespondWithError(w, r, http.StatusBadRequest, "BAD_REQUEST", "principal id is required")
		return
	}

	result := h.deletionService.Preview(r.Context(), principalID, middleware.GetOperatorIDFromContext(r.Context()))
	respondWithResult(w, r, result)
}

// Delete обрабатывает POST /principals/{id}/deletion
func (h *DeletionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "id")
	if principalID == "" {
		RespondWithError(w, r, http.StatusBadRequest, "BAD_REQUEST", "principal id is required")
		return
	}

	// Пустое тело означает удаление без пропусков
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondWithError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	result := h.deletionService.DeleteUnattended(r.Context(), principalID, saga.Options{
		SkipRemoteTeardown:      req.SkipRemoteTeardown,
		SkipBillingCancellation: req.SkipBillingCancellation,
		Force:                   req.Force,
		RequestedBy:             middleware.GetOperatorIDFromContext(r.Context()),
	})
	respondWithResult(w, r, result)
}

// GetLease обрабатывает GET /principals/{id}/deletion/lease
func (h *DeletionHandler) GetLease(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "id")
	if principalID == "" {
		RespondWithError(w, r, http.StatusBadRequest, "BAD_REQUEST", "principal id is required")
		return
	}

	lease, err := h.deletionService.Lease(r.Context(), principalID)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, LeaseResponse{Lease: lease})
}

func respondWithResult(w http.ResponseWriter, r *http.Request, result *saga.Result) {
	var buf bytes.Buffer
	report.Render(&buf, result)

	resp := DeletionResponse{
		Result:   result,
		Error:    result.ErrorMessage(),
		ExitCode: domain.MapOutcomeToExitCode(result.Outcome),
		Report:   buf.String(),
	}
	if result.Failure != nil {
		resp.Failure = &FailureDetail{
			Phase:   result.Failure.Phase,
			Class:   result.Failure.Class,
			Message: result.Failure.Message,
		}
	}
	if result.RollbackErr != nil {
		resp.RollbackError = result.RollbackErr.Error()
	}

	RespondWithJSON(w, r, statusForOutcome(result.Outcome), resp)
}

// statusForOutcome отображает исход прогона на HTTP статус
func statusForOutcome(o domain.Outcome) int {
	switch o {
	case domain.OutcomeSuccess, domain.OutcomeDryRun:
		return http.StatusOK
	case domain.OutcomeNotFound:
		return http.StatusNotFound
	case domain.OutcomeContention, domain.OutcomeAbortedOnEdgeCase, domain.OutcomeCancelledByOperator:
		return http.StatusConflict
	case domain.OutcomeFailedPostCommit:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
