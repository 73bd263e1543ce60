package domain

import "time"

// Lease представляет аренду на удаление одного принципала
type Lease struct {
	Key        string    `json:"key"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	// Forced означает, что аренда взята принудительно или не взята вовсе
	Forced bool `json:"forced"`
}

// LeaseKey возвращает ключ аренды для принципала
func LeaseKey(principalID string) string {
	return "principal-deletion:" + principalID
}
