package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/service"
)

// AuthHandler выдает токены операторам администрирования
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler создает новый AuthHandler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// LoginRequest представляет тело запроса на вход оператора
type LoginRequest struct {
	OperatorID string `json:"operator_id"`
}

// LoginResponse содержит токен и срок его действия
type LoginResponse struct {
	Token      string    `json:"token"`
	OperatorID string    `json:"operator_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Login обрабатывает POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	operatorID := strings.TrimSpace(req.OperatorID)
	if operatorID == "" {
		RespondWithError(w, r, http.StatusBadRequest, "BAD_REQUEST", "operator_id is required")
		return
	}

	token, err := h.authService.Login(r.Context(), operatorID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPrincipalNotFound), errors.Is(err, domain.ErrNotOperator):
		// Один ответ для неизвестных и не-операторов: вход не раскрывает,
		// какие принципалы существуют
		RespondWithError(w, r, http.StatusForbidden, string(domain.CodeNotOperator), "principal is not an active operator")
		return
	case errors.Is(err, domain.ErrSigningKeyMissing):
		RespondWithError(w, r, http.StatusServiceUnavailable, "AUTH_DISABLED", "operator login is not configured")
		return
	default:
		HandleError(w, r, err)
		return
	}

	// Срок действия берем из выданного токена
	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		HandleError(w, r, err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, LoginResponse{
		Token:      token,
		OperatorID: claims.OperatorID,
		ExpiresAt:  claims.ExpiresAt.Time,
	})
}
