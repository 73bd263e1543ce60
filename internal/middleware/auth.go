package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/aidar/tenant-purge/internal/service"
)

// ContextKey это кастомный тип для ключей контекста
type ContextKey string

// OperatorIDKey ключ контекста для ID оператора
const OperatorIDKey ContextKey = "operator_id"

// AuthMiddleware создает middleware для валидации JWT токенов операторов
func AuthMiddleware(authService *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Получаем токен из заголовка Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"missing authorization header"}}`, http.StatusUnauthorized)
				return
			}

			// Проверяем формат Bearer
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"invalid authorization header format"}}`, http.StatusUnauthorized)
				return
			}

			claims, err := authService.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, `{"error":{"code":"UNAUTHORIZED","message":"invalid or expired token"}}`, http.StatusUnauthorized)
				return
			}

			// Оператор попадает в аудит как инициатор прогона
			ctx := context.WithValue(r.Context(), OperatorIDKey, claims.OperatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperatorIDFromContext извлекает ID оператора из контекста
func GetOperatorIDFromContext(ctx context.Context) string {
	operatorID, ok := ctx.Value(OperatorIDKey).(string)
	if !ok {
		return ""
	}
	return operatorID
}
