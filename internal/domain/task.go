package domain

import "time"

// TaskStatus представляет статус задачи после коммита
type TaskStatus string

// Возможные статусы задачи
const (
	TaskPending  TaskStatus = "pending"
	TaskResolved TaskStatus = "resolved"
	TaskFailed   TaskStatus = "failed"
)

// PostCommitTask представляет подписку, которую нужно отменить после коммита.
// Запись создается в той же транзакции, что и удаление данных.
type PostCommitTask struct {
	TaskID         int64      `json:"task_id"`
	RunID          string     `json:"run_id"`
	PrincipalID    string     `json:"principal_id"`
	SubscriptionID string     `json:"subscription_id"`
	ProviderID     string     `json:"provider_subscription_id"`
	Status         TaskStatus `json:"status"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
