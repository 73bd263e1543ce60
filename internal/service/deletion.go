package service

import (
	"context"
	"time"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/repository"
	"github.com/aidar/tenant-purge/internal/saga"
)

// Runner drives one deletion run
type Runner interface {
	Run(ctx context.Context, principalID string, opts saga.Options) *saga.Result
}

// LeaseStore reads and releases deletion leases
type LeaseStore interface {
	Current(ctx context.Context, key string) (*domain.Lease, error)
	Release(ctx context.Context, lease *domain.Lease)
}

// DeletionService exposes deletion runs, leases and post-commit tasks to
// the API and the CLI
type DeletionService struct {
	runner   Runner
	leases   LeaseStore
	tasks    repository.TaskRepository
	leaseTTL time.Duration
}

// NewDeletionService creates a new DeletionService
func NewDeletionService(runner Runner, leases LeaseStore, tasks repository.TaskRepository, leaseTTL time.Duration) *DeletionService {
	return &DeletionService{
		runner:   runner,
		leases:   leases,
		tasks:    tasks,
		leaseTTL: leaseTTL,
	}
}

// Preview computes everything a deletion would do without changing anything
func (s *DeletionService) Preview(ctx context.Context, principalID, requestedBy string) *saga.Result {
	return s.runner.Run(ctx, principalID, saga.Options{
		DryRun:      true,
		RequestedBy: requestedBy,
	})
}

// Delete runs a deletion with the given options
func (s *DeletionService) Delete(ctx context.Context, principalID string, opts saga.Options) *saga.Result {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = s.leaseTTL
	}
	return s.runner.Run(ctx, principalID, opts)
}

// DeleteUnattended runs a deletion with every gate approved
func (s *DeletionService) DeleteUnattended(ctx context.Context, principalID string, opts saga.Options) *saga.Result {
	opts.AutoConfirm = true
	return s.Delete(ctx, principalID, opts)
}

// Lease returns the lease currently guarding deletions of principalID
func (s *DeletionService) Lease(ctx context.Context, principalID string) (*domain.Lease, error) {
	return s.leases.Current(ctx, domain.LeaseKey(principalID))
}

// ReleaseLease gives back a lease taken by a run that is being interrupted
func (s *DeletionService) ReleaseLease(ctx context.Context, lease *domain.Lease) {
	s.leases.Release(ctx, lease)
}

// PendingTasks returns post-commit tasks that still need attention
func (s *DeletionService) PendingTasks(ctx context.Context) ([]domain.PostCommitTask, error) {
	return s.tasks.ListPending(ctx)
}
