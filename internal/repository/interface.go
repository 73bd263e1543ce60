package repository

import (
	"context"
	"time"

	"github.com/aidar/tenant-purge/internal/domain"
)

// InventoryRepository определяет методы чтения инвентаря принципала
type InventoryRepository interface {
	// GetPrincipal получает принципала по ID
	GetPrincipal(ctx context.Context, principalID string) (*domain.Principal, error)

	// ListTeams возвращает все команды принципала со всеми участниками
	ListTeams(ctx context.Context, principalID string) ([]*domain.Team, error)

	// ListHosts возвращает хосты указанных команд
	ListHosts(ctx context.Context, teamIDs []string) ([]domain.Host, error)

	// ListResources возвращает ресурсы указанных команд
	ListResources(ctx context.Context, teamIDs []string) ([]domain.Resource, error)

	// ListResourcesOnHosts возвращает все ресурсы на указанных хостах,
	// независимо от команды-владельца
	ListResourcesOnHosts(ctx context.Context, hostIDs []string) ([]domain.Resource, error)

	// CountResources возвращает количество ресурсов команды
	CountResources(ctx context.Context, teamID string) (int, error)

	// ListSubscriptions возвращает подписки указанных команд
	ListSubscriptions(ctx context.Context, teamIDs []string) ([]domain.Subscription, error)
}

// DeletionStore определяет локальные мутации саги; все методы выполняются
// внутри одной транзакционной единицы
type DeletionStore interface {
	// DeleteResource удаляет запись ресурса
	DeleteResource(ctx context.Context, resourceID string) error

	// DeleteHost удаляет запись хоста
	DeleteHost(ctx context.Context, hostID string) error

	// DeleteSubscription удаляет запись подписки
	DeleteSubscription(ctx context.Context, subscriptionID string) error

	// DeleteTeam удаляет команду вместе с ее участниками
	DeleteTeam(ctx context.Context, teamID string) error

	// TransferOwnership передает владение командой и убирает прежнего владельца
	TransferOwnership(ctx context.Context, teamID, fromPrincipalID, toPrincipalID string) error

	// RemoveMembership удаляет принципала из команды
	RemoveMembership(ctx context.Context, teamID, principalID string) error

	// DeletePrincipal удаляет запись принципала
	DeletePrincipal(ctx context.Context, principalID string) error

	// EnqueuePostCommitTask записывает задачу отмены подписки после коммита
	EnqueuePostCommitTask(ctx context.Context, task *domain.PostCommitTask) error
}

// Unit представляет открытую транзакционную единицу
type Unit interface {
	// Store возвращает хранилище, привязанное к транзакции
	Store() DeletionStore

	// Commit фиксирует все локальные изменения
	Commit(ctx context.Context) error

	// Rollback откатывает все локальные изменения
	Rollback(ctx context.Context) error
}

// UnitBeginner открывает транзакционные единицы
type UnitBeginner interface {
	Begin(ctx context.Context) (Unit, error)
}

// LeaseRepository определяет методы хранения аренды
type LeaseRepository interface {
	// TryClaim атомарно берет аренду, если она свободна или истекла к моменту now
	TryClaim(ctx context.Context, lease domain.Lease, now time.Time) (bool, error)

	// Takeover берет аренду безусловно
	Takeover(ctx context.Context, lease domain.Lease) error

	// Revoke удаляет аренду, если она принадлежит holder
	Revoke(ctx context.Context, key, holder string) error

	// Get возвращает текущую аренду по ключу
	Get(ctx context.Context, key string) (*domain.Lease, error)
}

// AuditRepository определяет методы журнала аудита (только добавление)
type AuditRepository interface {
	// Append добавляет событие в журнал
	Append(ctx context.Context, event domain.AuditEvent) error

	// ListByRun возвращает события прогона в порядке записи
	ListByRun(ctx context.Context, runID string) ([]domain.AuditEvent, error)
}

// TaskRepository определяет методы работы с задачами после коммита
type TaskRepository interface {
	// MarkResolved помечает задачу выполненной
	MarkResolved(ctx context.Context, runID, subscriptionID string) error

	// MarkFailed помечает задачу проваленной с текстом ошибки
	MarkFailed(ctx context.Context, runID, subscriptionID, reason string) error

	// ListPending возвращает невыполненные задачи
	ListPending(ctx context.Context) ([]domain.PostCommitTask, error)
}
