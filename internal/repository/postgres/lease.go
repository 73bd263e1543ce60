package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidar/tenant-purge/internal/domain"
)

// LeaseRepository реализует repository.LeaseRepository для PostgreSQL
type LeaseRepository struct {
	db *pgxpool.Pool
}

// NewLeaseRepository создает новый экземпляр LeaseRepository
func NewLeaseRepository(db *pgxpool.Pool) *LeaseRepository {
	return &LeaseRepository{db: db}
}

// TryClaim атомарно берет аренду, если она свободна или истекла к моменту now.
// Вся проверка выполняется одним условным upsert.
func (r *LeaseRepository) TryClaim(ctx context.Context, lease domain.Lease, now time.Time) (bool, error) {
	query := `
		INSERT INTO deletion_leases (lease_key, holder, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lease_key) DO UPDATE
		SET holder = EXCLUDED.holder,
		    acquired_at = EXCLUDED.acquired_at,
		    expires_at = EXCLUDED.expires_at
		WHERE deletion_leases.expires_at <= $5
		RETURNING holder
	`

	var holder string
	err := r.db.QueryRow(ctx, query, lease.Key, lease.Holder, lease.AcquiredAt, lease.ExpiresAt, now).Scan(&holder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The row exists and has not expired: held by someone else
			return false, nil
		}
		return false, err
	}

	return holder == lease.Holder, nil
}

// Takeover берет аренду безусловно
func (r *LeaseRepository) Takeover(ctx context.Context, lease domain.Lease) error {
	query := `
		INSERT INTO deletion_leases (lease_key, holder, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lease_key) DO UPDATE
		SET holder = EXCLUDED.holder,
		    acquired_at = EXCLUDED.acquired_at,
		    expires_at = EXCLUDED.expires_at
	`

	_, err := r.db.Exec(ctx, query, lease.Key, lease.Holder, lease.AcquiredAt, lease.ExpiresAt)
	return err
}

// Revoke удаляет аренду, если она принадлежит holder (идемпотентная операция)
func (r *LeaseRepository) Revoke(ctx context.Context, key, holder string) error {
	query := `DELETE FROM deletion_leases WHERE lease_key = $1 AND holder = $2`

	_, err := r.db.Exec(ctx, query, key, holder)
	return err
}

// Get возвращает текущую аренду по ключу
func (r *LeaseRepository) Get(ctx context.Context, key string) (*domain.Lease, error) {
	query := `
		SELECT lease_key, holder, acquired_at, expires_at
		FROM deletion_leases
		WHERE lease_key = $1
	`

	var lease domain.Lease
	err := r.db.QueryRow(ctx, query, key).Scan(&lease.Key, &lease.Holder, &lease.AcquiredAt, &lease.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return &lease, nil
}
