package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/repository"
)

// DBTX покрывает общие методы *pgxpool.Pool и pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DeletionRepository реализует repository.DeletionStore поверх транзакции
type DeletionRepository struct {
	db DBTX
}

// NewDeletionRepository создает DeletionRepository поверх пула или транзакции
func NewDeletionRepository(db DBTX) *DeletionRepository {
	return &DeletionRepository{db: db}
}

// DeleteResource удаляет запись ресурса
func (r *DeletionRepository) DeleteResource(ctx context.Context, resourceID string) error {
	return r.deleteOne(ctx, `DELETE FROM resources WHERE resource_id = $1`, "resource", resourceID)
}

// DeleteHost удаляет запись хоста
func (r *DeletionRepository) DeleteHost(ctx context.Context, hostID string) error {
	return r.deleteOne(ctx, `DELETE FROM hosts WHERE host_id = $1`, "host", hostID)
}

// DeleteSubscription удаляет запись подписки
func (r *DeletionRepository) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	return r.deleteOne(ctx, `DELETE FROM subscriptions WHERE subscription_id = $1`, "subscription", subscriptionID)
}

// DeleteTeam удаляет команду вместе с ее участниками
func (r *DeletionRepository) DeleteTeam(ctx context.Context, teamID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1`, teamID); err != nil {
		return err
	}
	if err := r.deleteOne(ctx, `DELETE FROM teams WHERE team_id = $1`, "team", teamID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("team %s: %w", teamID, domain.ErrTeamNotFound)
		}
		return err
	}
	return nil
}

// TransferOwnership передает владение командой и убирает прежнего владельца
func (r *DeletionRepository) TransferOwnership(ctx context.Context, teamID, fromPrincipalID, toPrincipalID string) error {
	query := `
		UPDATE team_members
		SET role = 'owner'
		WHERE team_id = $1 AND principal_id = $2
	`

	result, err := r.db.Exec(ctx, query, teamID, toPrincipalID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("successor %s in team %s: %w", toPrincipalID, teamID, domain.ErrNotFound)
	}

	return r.RemoveMembership(ctx, teamID, fromPrincipalID)
}

// RemoveMembership удаляет принципала из команды
func (r *DeletionRepository) RemoveMembership(ctx context.Context, teamID, principalID string) error {
	query := `DELETE FROM team_members WHERE team_id = $1 AND principal_id = $2`

	result, err := r.db.Exec(ctx, query, teamID, principalID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("membership of %s in team %s: %w", principalID, teamID, domain.ErrNotFound)
	}

	return nil
}

// DeletePrincipal удаляет запись принципала
func (r *DeletionRepository) DeletePrincipal(ctx context.Context, principalID string) error {
	err := r.deleteOne(ctx, `DELETE FROM principals WHERE principal_id = $1`, "principal", principalID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("principal %s: %w", principalID, domain.ErrPrincipalNotFound)
	}
	return err
}

// EnqueuePostCommitTask записывает задачу отмены подписки после коммита
func (r *DeletionRepository) EnqueuePostCommitTask(ctx context.Context, task *domain.PostCommitTask) error {
	query := `
		INSERT INTO post_commit_tasks (run_id, principal_id, subscription_id, provider_subscription_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING task_id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		task.RunID,
		task.PrincipalID,
		task.SubscriptionID,
		task.ProviderID,
		domain.TaskPending,
	).Scan(&task.TaskID, &task.CreatedAt, &task.UpdatedAt)
}

// deleteOne выполняет DELETE, который должен затронуть ровно одну строку
func (r *DeletionRepository) deleteOne(ctx context.Context, query, kind, id string) error {
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return fmt.Errorf("%s %s is still referenced (%s): %w", kind, id, pgErr.ConstraintName, err)
		}
		return err
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}

	return nil
}

// TxUnit открывает транзакционные единицы саги
type TxUnit struct {
	db *pgxpool.Pool
}

// NewTxUnit создает новый экземпляр TxUnit
func NewTxUnit(db *pgxpool.Pool) *TxUnit {
	return &TxUnit{db: db}
}

// Begin начинает транзакцию, охватывающую все локальные мутации саги
func (u *TxUnit) Begin(ctx context.Context) (repository.Unit, error) {
	tx, err := u.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &txUnit{tx: tx, store: NewDeletionRepository(tx)}, nil
}

type txUnit struct {
	tx    pgx.Tx
	store *DeletionRepository
}

func (u *txUnit) Store() repository.DeletionStore {
	return u.store
}

func (u *txUnit) Commit(ctx context.Context) error {
	return u.tx.Commit(ctx)
}

func (u *txUnit) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
