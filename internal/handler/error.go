package handler

import (
	"net/http"

	"github.com/aidar/tenant-purge/internal/domain"
)

// HandleError преобразует доменные ошибки в HTTP ответы
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.MapErrorToCode(err)
	switch code {
	case domain.CodeNotFound:
		RespondWithError(w, r, http.StatusNotFound, string(code), "resource not found")
	case domain.CodeLeaseBusy, domain.CodeEdgeCase, domain.CodeCancelled:
		RespondWithError(w, r, http.StatusConflict, string(code), err.Error())
	case domain.CodeNotOperator:
		RespondWithError(w, r, http.StatusForbidden, string(code), "principal is not an active operator")
	case domain.CodeUnauthorized:
		RespondWithError(w, r, http.StatusUnauthorized, string(code), "unauthorized")
	default:
		RespondWithError(w, r, http.StatusInternalServerError, string(domain.CodeInternal), "internal server error")
	}
}
