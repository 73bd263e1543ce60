// Package saga drives the irreversible deletion of a principal through six
// ordered phases spanning the local store, remote hosts and the billing
// provider.
package saga

import (
	"context"
	"time"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/repository"
)

// TeardownAgent performs irreversible remote destruction of a host or resource
type TeardownAgent interface {
	Teardown(ctx context.Context, target domain.TeardownTarget) error
}

// BillingClient re-verifies and cancels subscriptions at the billing provider
type BillingClient interface {
	IsActive(ctx context.Context, providerID string) (bool, error)
	CancelNow(ctx context.Context, providerID string) error
}

// Gate is one operator confirmation point between phases
type Gate struct {
	Next       domain.PhaseName
	Prompt     string
	DefaultYes bool
	Commit     bool
	Preview    domain.PreviewResult
}

// Confirmer asks the operator to approve a gate
type Confirmer interface {
	Confirm(ctx context.Context, gate Gate) (bool, error)
}

// AuditSink records lifecycle events. Implementations must not fail the run.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent)
}

// LeaseManager gates entry to a run
type LeaseManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration, force bool) (*domain.Lease, error)
	Release(ctx context.Context, lease *domain.Lease)
}

// Options are the recognized run options
type Options struct {
	DryRun                  bool `json:"dry_run"`
	SkipRemoteTeardown      bool `json:"skip_remote_teardown"`
	SkipBillingCancellation bool `json:"skip_billing_cancellation"`
	AutoConfirm             bool `json:"auto_confirm"`
	Force                   bool `json:"force"`

	LeaseTTL    time.Duration `json:"-"`
	RequestedBy string        `json:"requested_by,omitempty"`

	// OnLeaseAcquired lets the caller see the lease, e.g. so an interrupt
	// handler can release it.
	OnLeaseAcquired func(*domain.Lease) `json:"-"`
}

// Env is what a phase sees while executing
type Env struct {
	RunID   string
	Plan    *domain.Plan
	Store   repository.DeletionStore
	Options Options
}

// Phase is the contract shared by all six phases. Preview must be pure.
type Phase interface {
	Name() domain.PhaseName
	Preview(plan *domain.Plan) domain.PreviewResult
	Execute(ctx context.Context, env Env) (domain.ExecuteResult, error)
}

func count(kind string, n int) domain.EntityCount {
	return domain.EntityCount{Kind: kind, Count: n}
}
