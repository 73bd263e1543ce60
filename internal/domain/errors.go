package domain

import "errors"

// Доменные ошибки саги удаления
var (
	// ErrPrincipalNotFound возвращается когда удаляемый принципал не найден
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrLeaseBusy возвращается когда аренда удерживается другим процессом
	ErrLeaseBusy = errors.New("deletion lease is held by another run")

	// ErrEdgeCase возвращается когда найдена команда, требующая ручного разбора
	ErrEdgeCase = errors.New("team configuration requires manual resolution")

	// ErrOperatorCancelled возвращается когда оператор отклонил подтверждение
	ErrOperatorCancelled = errors.New("cancelled by operator")

	// ErrRollbackFailed возвращается когда откат транзакции не удался
	ErrRollbackFailed = errors.New("local rollback failed")

	// ErrNotInteractive возвращается когда подтверждение запрошено без терминала
	ErrNotInteractive = errors.New("confirmation requires an interactive terminal")

	// ErrTeamNotFound возвращается когда команда не найдена
	ErrTeamNotFound = errors.New("team not found")

	// ErrNotFound возвращается когда ресурс не найден
	ErrNotFound = errors.New("resource not found")

	// ErrNotOperator возвращается при попытке входа не-оператора
	ErrNotOperator = errors.New("principal is not an operator")

	// ErrUnauthorized возвращается при неудачной аутентификации
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidToken возвращается когда JWT токен невалиден
	ErrInvalidToken = errors.New("invalid token")

	// ErrSigningKeyMissing возвращается когда не задан секрет подписи JWT
	ErrSigningKeyMissing = errors.New("jwt secret is not configured")
)

// ErrorCode представляет коды ошибок API
type ErrorCode string

// Коды ошибок API
const (
	CodeNotFound     ErrorCode = "NOT_FOUND"      // Принципал или ресурс не найден
	CodeLeaseBusy    ErrorCode = "LEASE_BUSY"     // Удаление уже выполняется
	CodeEdgeCase     ErrorCode = "EDGE_CASE"      // Нужен ручной разбор команды
	CodeCancelled    ErrorCode = "CANCELLED"      // Отменено оператором
	CodeNotOperator  ErrorCode = "NOT_OPERATOR"   // Вход разрешен только операторам
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"   // Нет или неверный токен
	CodeInternal     ErrorCode = "INTERNAL_ERROR" // Внутренняя ошибка
)

// MapErrorToCode преобразует доменные ошибки в коды ошибок API
func MapErrorToCode(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrPrincipalNotFound), errors.Is(err, ErrTeamNotFound), errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrLeaseBusy):
		return CodeLeaseBusy
	case errors.Is(err, ErrEdgeCase):
		return CodeEdgeCase
	case errors.Is(err, ErrOperatorCancelled):
		return CodeCancelled
	case errors.Is(err, ErrNotOperator):
		return CodeNotOperator
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken):
		return CodeUnauthorized
	default:
		return CodeInternal
	}
}
