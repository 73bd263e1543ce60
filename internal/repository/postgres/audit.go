package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidar/tenant-purge/internal/domain"
)

// AuditRepository реализует repository.AuditRepository для PostgreSQL.
// Пишет через пул, а не через транзакцию саги, поэтому записи переживают откат.
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository создает новый экземпляр AuditRepository
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append добавляет событие в журнал
func (r *AuditRepository) Append(ctx context.Context, event domain.AuditEvent) error {
	query := `
		INSERT INTO deletion_audit (run_id, principal_id, phase, kind, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		event.RunID,
		event.PrincipalID,
		string(event.Phase),
		string(event.Kind),
		event.Detail,
		event.At,
	)
	return err
}

// ListByRun возвращает события прогона в порядке записи
func (r *AuditRepository) ListByRun(ctx context.Context, runID string) ([]domain.AuditEvent, error) {
	query := `
		SELECT run_id, principal_id, phase, kind, detail, created_at
		FROM deletion_audit
		WHERE run_id = $1
		ORDER BY audit_id
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.AuditEvent{}
	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(&e.RunID, &e.PrincipalID, &e.Phase, &e.Kind, &e.Detail, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
