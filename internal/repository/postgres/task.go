package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidar/tenant-purge/internal/domain"
)

// TaskRepository реализует repository.TaskRepository для PostgreSQL
type TaskRepository struct {
	db *pgxpool.Pool
}

// NewTaskRepository создает новый экземпляр TaskRepository
func NewTaskRepository(db *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{db: db}
}

// MarkResolved помечает задачу выполненной
func (r *TaskRepository) MarkResolved(ctx context.Context, runID, subscriptionID string) error {
	return r.setStatus(ctx, runID, subscriptionID, domain.TaskResolved, "")
}

// MarkFailed помечает задачу проваленной с текстом ошибки
func (r *TaskRepository) MarkFailed(ctx context.Context, runID, subscriptionID, reason string) error {
	return r.setStatus(ctx, runID, subscriptionID, domain.TaskFailed, reason)
}

func (r *TaskRepository) setStatus(ctx context.Context, runID, subscriptionID string, status domain.TaskStatus, reason string) error {
	query := `
		UPDATE post_commit_tasks
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE run_id = $3 AND subscription_id = $4
	`

	result, err := r.db.Exec(ctx, query, status, reason, runID, subscriptionID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("post-commit task %s/%s: %w", runID, subscriptionID, domain.ErrNotFound)
	}

	return nil
}

// ListPending возвращает невыполненные задачи (ожидающие и проваленные)
func (r *TaskRepository) ListPending(ctx context.Context) ([]domain.PostCommitTask, error) {
	query := `
		SELECT task_id, run_id, principal_id, subscription_id, provider_subscription_id,
		       status, last_error, created_at, updated_at
		FROM post_commit_tasks
		WHERE status <> 'resolved'
		ORDER BY created_at, task_id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []domain.PostCommitTask{}
	for rows.Next() {
		var t domain.PostCommitTask
		if err := rows.Scan(
			&t.TaskID,
			&t.RunID,
			&t.PrincipalID,
			&t.SubscriptionID,
			&t.ProviderID,
			&t.Status,
			&t.LastError,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}
