// Package lease serializes deletion runs per principal with a TTL'd lease row.
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/repository"
)

// Manager acquires and releases deletion leases
type Manager struct {
	repo   repository.LeaseRepository
	clock  clock.Clock
	logger *slog.Logger
}

// NewManager creates a new Manager
func NewManager(repo repository.LeaseRepository, clk clock.Clock, logger *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Manager{
		repo:   repo,
		clock:  clk,
		logger: logger,
	}
}

// Acquire claims the lease for key. A held, unexpired lease yields
// domain.ErrLeaseBusy unless force is set. With force the lease is taken
// over unconditionally; if even that fails the run proceeds with a warning
// and the returned lease is marked Forced.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration, force bool) (*domain.Lease, error) {
	now := m.clock.Now()
	lease := domain.Lease{
		Key:        key,
		Holder:     uuid.NewString(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	claimed, err := m.repo.TryClaim(ctx, lease, now)
	if err != nil && !force {
		return nil, fmt.Errorf("failed to claim lease %s: %w", key, err)
	}
	if claimed {
		m.logger.Info("Lease acquired", "key", key, "holder", lease.Holder, "expires_at", lease.ExpiresAt)
		return &lease, nil
	}
	if !force {
		return nil, fmt.Errorf("lease %s: %w", key, domain.ErrLeaseBusy)
	}

	lease.Forced = true
	if err := m.repo.Takeover(ctx, lease); err != nil {
		m.logger.Warn("Forced lease takeover failed, proceeding without mutual exclusion",
			"key", key, "error", err)
		return &lease, nil
	}

	m.logger.Warn("Lease taken over by force", "key", key, "holder", lease.Holder)
	return &lease, nil
}

// Release gives the lease back. It is idempotent and never fails: an
// unreleased lease simply expires after its TTL.
func (m *Manager) Release(ctx context.Context, lease *domain.Lease) {
	if lease == nil {
		return
	}
	// Release also runs from the interrupt path where ctx is already cancelled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := m.repo.Revoke(ctx, lease.Key, lease.Holder); err != nil {
		m.logger.Warn("Failed to release lease, it will expire on its own",
			"key", lease.Key, "expires_at", lease.ExpiresAt, "error", err)
		return
	}
	m.logger.Info("Lease released", "key", lease.Key, "holder", lease.Holder)
}

// Current returns the lease currently stored for key
func (m *Manager) Current(ctx context.Context, key string) (*domain.Lease, error) {
	return m.repo.Get(ctx, key)
}
