package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/repository"
)

// DefaultLeaseTTL is used when Options.LeaseTTL is zero
const DefaultLeaseTTL = 30 * time.Minute

// Dependencies are the collaborators of an Orchestrator
type Dependencies struct {
	Inventory repository.InventoryRepository
	Units     repository.UnitBeginner
	Tasks     repository.TaskRepository
	Leases    LeaseManager
	Agent     TeardownAgent
	Billing   BillingClient
	Confirmer Confirmer
	Audit     AuditSink
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Orchestrator sequences the six phases, owns the transactional boundary and
// threads the PhaseLedger through the run
type Orchestrator struct {
	units     repository.UnitBeginner
	leases    LeaseManager
	confirmer Confirmer
	audit     AuditSink
	clock     clock.Clock
	logger    *slog.Logger

	overview       *Overview
	reconciliation *TeamReconciliation
	local          []Phase
	billing        *BillingCancellation
}

// New creates a new Orchestrator
func New(deps Dependencies) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Audit == nil {
		deps.Audit = nopAudit{}
	}

	reconciliation := NewTeamReconciliation()
	return &Orchestrator{
		units:          deps.Units,
		leases:         deps.Leases,
		confirmer:      deps.Confirmer,
		audit:          deps.Audit,
		clock:          deps.Clock,
		logger:         deps.Logger,
		overview:       NewOverview(deps.Inventory),
		reconciliation: reconciliation,
		local: []Phase{
			NewResourceTeardown(deps.Agent),
			NewServerTeardown(deps.Agent),
			reconciliation,
			NewPrincipalPurge(),
		},
		billing: NewBillingCancellation(deps.Billing, deps.Tasks, deps.Logger),
	}
}

// run carries the per-invocation state of one Run
type run struct {
	*Orchestrator
	result *Result
	opts   Options
	log    *slog.Logger
	unit   repository.Unit
}

// Run drives one deletion of principalID to a terminal outcome. It always
// returns a Result; the lease, if taken, is released before returning.
func (o *Orchestrator) Run(ctx context.Context, principalID string, opts Options) *Result {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	result := &Result{
		RunID:       uuid.NewString(),
		PrincipalID: principalID,
		Options:     opts,
	}
	r := &run{
		Orchestrator: o,
		result:       result,
		opts:         opts,
		log:          o.logger.With("run_id", result.RunID, "principal_id", principalID),
	}

	r.record(ctx, "", domain.AuditRunStarted, describeOptions(opts))
	defer func() {
		r.record(ctx, "", domain.AuditRunFinished, string(result.Outcome))
		r.log.Info("Deletion run finished", "outcome", result.Outcome, "committed", result.Ledger.Committed())
	}()

	r.execute(ctx)
	return result
}

func (r *run) execute(ctx context.Context) {
	principal, err := r.overview.Principal(ctx, r.result.PrincipalID)
	if err != nil {
		if errors.Is(err, domain.ErrPrincipalNotFound) {
			r.finish(domain.OutcomeNotFound, err)
			return
		}
		r.failPreCommit(ctx, domain.NewPhaseError(domain.PhaseOverview, domain.FailureLocal,
			"failed to load principal", err))
		return
	}

	if !r.opts.DryRun {
		lease, err := r.leases.Acquire(ctx, domain.LeaseKey(principal.PrincipalID), r.opts.LeaseTTL, r.opts.Force)
		if err != nil {
			if errors.Is(err, domain.ErrLeaseBusy) {
				r.log.Warn("Deletion already in progress", "error", err)
				r.finish(domain.OutcomeContention, err)
				return
			}
			r.failPreCommit(ctx, domain.NewPhaseError(domain.PhaseOverview, domain.FailureLocal,
				"failed to acquire lease", err))
			return
		}
		r.result.Lease = lease
		if r.opts.OnLeaseAcquired != nil {
			r.opts.OnLeaseAcquired(lease)
		}
		defer r.leases.Release(ctx, lease)
	}

	if !r.plan(ctx, principal) {
		return
	}

	if r.opts.DryRun {
		r.log.Info("Dry run complete", "edge_cases", len(r.result.EdgeCases))
		r.finish(domain.OutcomeDryRun, nil)
		return
	}

	if len(r.result.EdgeCases) > 0 {
		for _, ec := range r.result.EdgeCases {
			r.log.Warn("Edge case requires manual resolution",
				"team_id", ec.TeamID, "subscription_id", ec.SubscriptionID, "members", len(ec.Members))
			r.record(ctx, domain.PhaseTeamReconciliation, domain.AuditEdgeCase,
				fmt.Sprintf("team %s (%s): %s", ec.TeamID, ec.TeamName, ec.Reason))
		}
		r.finish(domain.OutcomeAbortedOnEdgeCase,
			fmt.Errorf("%d team(s) need attention: %w", len(r.result.EdgeCases), domain.ErrEdgeCase))
		return
	}

	if !r.runLocal(ctx) {
		return
	}
	r.runBilling(ctx)
}

// plan runs Overview and the pure team classification, then previews every
// phase. Nothing is mutated.
func (r *run) plan(ctx context.Context, principal *domain.Principal) bool {
	r.record(ctx, domain.PhaseOverview, domain.AuditPhaseStarted, "")
	plan, err := r.overview.Build(ctx, principal)
	if err != nil {
		r.failPreCommit(ctx, domain.NewPhaseError(domain.PhaseOverview, domain.FailureLocal,
			"failed to build deletion plan", err))
		return false
	}
	plan = r.reconciliation.Classify(plan)

	r.result.Plan = plan
	r.result.EdgeCases = plan.EdgeCases
	r.result.Previews = append(r.result.Previews, r.overview.Preview(plan))
	for _, p := range r.local {
		r.result.Previews = append(r.result.Previews, p.Preview(plan))
	}
	r.result.Previews = append(r.result.Previews, r.billing.Preview(plan))

	r.result.Ledger = r.result.Ledger.With(domain.PhaseOverview, true)
	r.record(ctx, domain.PhaseOverview, domain.AuditPhaseFinished,
		fmt.Sprintf("%d team(s), %d host(s), %d resource(s), %d active subscription(s)",
			len(plan.Teams), len(plan.Hosts), len(plan.Resources), len(plan.ActiveSubscriptions())))
	r.log.Info("Deletion plan built",
		"teams", len(plan.Teams), "hosts", len(plan.Hosts), "resources", len(plan.Resources),
		"edge_cases", len(plan.EdgeCases))
	return true
}

// runLocal drives phases 2-5 inside one transactional unit and commits it.
// The gate in front of PrincipalPurge is the COMMIT gate: passing it is the
// last point at which the run can still be abandoned cleanly.
func (r *run) runLocal(ctx context.Context) bool {
	for _, phase := range r.local {
		name := phase.Name()
		if err := ctx.Err(); err != nil {
			r.cancel(ctx, name, err)
			return false
		}

		approved, err := r.confirm(ctx, r.gate(name))
		if err != nil {
			if ctx.Err() != nil {
				r.cancel(ctx, name, err)
				return false
			}
			r.failPreCommit(ctx, domain.NewPhaseError(name, domain.FailureLocal, "confirmation failed", err))
			return false
		}
		if !approved {
			r.cancel(ctx, name, nil)
			return false
		}

		if r.unit == nil {
			if r.unit, err = r.units.Begin(ctx); err != nil {
				r.failPreCommit(ctx, domain.NewPhaseError(name, domain.FailureLocal,
					"failed to begin transaction", err))
				return false
			}
		}

		r.record(ctx, name, domain.AuditPhaseStarted, "")
		r.log.Info("Phase started", "phase", name)
		exec, err := phase.Execute(ctx, Env{
			RunID:   r.result.RunID,
			Plan:    r.result.Plan,
			Store:   r.unit.Store(),
			Options: r.opts,
		})
		r.result.Executions = append(r.result.Executions, exec)
		if err != nil {
			r.failPreCommit(ctx, phaseError(name, domain.FailureLocal, err))
			return false
		}
		r.result.Ledger = r.result.Ledger.With(name, true)
		r.record(ctx, name, domain.AuditPhaseFinished, describeCounts(exec.Counts))
		r.log.Info("Phase finished", "phase", name, "remote_issued", len(exec.RemoteIssued))
	}

	if err := ctx.Err(); err != nil {
		r.cancel(ctx, domain.PhasePrincipalPurge, err)
		return false
	}
	if err := r.unit.Commit(ctx); err != nil {
		r.failPreCommit(ctx, domain.NewPhaseError(domain.PhasePrincipalPurge, domain.FailureLocal,
			"failed to commit local deletions", err))
		return false
	}
	r.result.Ledger = r.result.Ledger.Commit()
	r.record(ctx, domain.PhasePrincipalPurge, domain.AuditCommitted, "")
	r.log.Info("Local deletions committed")
	return true
}

// runBilling cancels subscriptions of deleted teams. Anything left active
// here is residual state for manual follow-up, never a reason to roll back.
func (r *run) runBilling(ctx context.Context) {
	name := domain.PhaseBillingCancellation
	active := r.result.Plan.ActiveSubscriptions()
	if len(active) == 0 {
		r.result.Ledger = r.result.Ledger.With(name, true)
		r.finish(domain.OutcomeSuccess, nil)
		return
	}

	if reason := r.skipBilling(ctx); reason != "" {
		r.result.Residual = active
		r.log.Warn("Subscriptions left active", "reason", reason, "count", len(active))
		r.record(ctx, name, domain.AuditPhaseFinished, "skipped: "+reason)
		r.finish(domain.OutcomeSuccess, nil)
		return
	}

	r.record(ctx, name, domain.AuditPhaseStarted, "")
	r.log.Info("Phase started", "phase", name)
	exec, err := r.billing.Execute(ctx, Env{
		RunID:   r.result.RunID,
		Plan:    r.result.Plan,
		Options: r.opts,
	})
	r.result.Executions = append(r.result.Executions, exec)
	if err != nil {
		pe := phaseError(name, domain.FailureBilling, err)
		r.result.Failure = pe
		r.result.Residual = residual(active, exec.Failed)
		r.log.Error("Billing cancellation failed after commit", "error", pe, "residual", len(r.result.Residual))
		r.record(ctx, name, domain.AuditPhaseFailed, pe.Error())
		r.finish(domain.OutcomeFailedPostCommit, pe)
		return
	}

	r.result.Ledger = r.result.Ledger.With(name, true)
	r.record(ctx, name, domain.AuditPhaseFinished,
		fmt.Sprintf("cancelled=%d already_inactive=%d", len(exec.Cancelled), len(exec.Inactive)))
	r.log.Info("Phase finished", "phase", name, "cancelled", len(exec.Cancelled))
	r.finish(domain.OutcomeSuccess, nil)
}

// skipBilling returns why billing cancellation is not attempted, or ""
func (r *run) skipBilling(ctx context.Context) string {
	if r.opts.SkipBillingCancellation {
		return "billing cancellation skipped by option"
	}
	if ctx.Err() != nil {
		return "run interrupted after commit"
	}
	approved, err := r.confirm(ctx, r.gate(domain.PhaseBillingCancellation))
	if err != nil {
		return "confirmation failed: " + err.Error()
	}
	if !approved {
		return "declined by operator"
	}
	return ""
}

func (r *run) gate(name domain.PhaseName) Gate {
	g := Gate{
		Next:       name,
		Prompt:     fmt.Sprintf("Proceed with %s?", name),
		DefaultYes: true,
	}
	for _, p := range r.result.Previews {
		if p.Phase == name {
			g.Preview = p
			break
		}
	}
	if name == domain.PhasePrincipalPurge {
		g.Commit = true
		g.DefaultYes = false
		g.Prompt = fmt.Sprintf("COMMIT: delete principal %s and make all local deletions permanent?",
			r.result.PrincipalID)
	}
	return g
}

func (r *run) confirm(ctx context.Context, gate Gate) (bool, error) {
	if r.opts.AutoConfirm {
		return true, nil
	}
	if r.confirmer == nil {
		return false, domain.ErrNotInteractive
	}
	return r.confirmer.Confirm(ctx, gate)
}

// cancel ends the run before commit on the operator's behalf. cause is nil
// for a declined gate and the context error for an interrupt.
func (r *run) cancel(ctx context.Context, at domain.PhaseName, cause error) {
	r.result.CancelledAt = at
	err := domain.ErrOperatorCancelled
	if cause != nil {
		err = fmt.Errorf("%w: %w", domain.ErrOperatorCancelled, cause)
	}
	r.log.Warn("Run cancelled before commit", "at", at, "error", cause)
	r.rollback(ctx, at)
	r.finish(domain.OutcomeCancelledByOperator, err)
}

// failPreCommit rolls back whatever the unit holds and ends the run
func (r *run) failPreCommit(ctx context.Context, pe *domain.PhaseError) {
	r.result.Failure = pe
	r.log.Error("Phase failed", "phase", pe.Phase, "class", pe.Class, "error", pe)
	r.record(ctx, pe.Phase, domain.AuditPhaseFailed, pe.Error())
	r.rollback(ctx, pe.Phase)
	r.finish(domain.OutcomeFailedPreCommit, pe)
}

func (r *run) rollback(ctx context.Context, at domain.PhaseName) {
	if r.unit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := r.unit.Rollback(ctx); err != nil {
		r.result.RollbackErr = domain.NewPhaseError(at, domain.FailureRollback,
			"local changes may be partially applied", errors.Join(domain.ErrRollbackFailed, err))
		r.log.Error("Local rollback failed, store state is unknown", "phase", at, "error", err)
		r.record(ctx, at, domain.AuditRollbackError, err.Error())
		return
	}
	r.result.RolledBack = true
	r.record(ctx, at, domain.AuditRolledBack, "")
	r.log.Info("Local changes rolled back", "phase", at)
}

func (r *run) finish(outcome domain.Outcome, err error) {
	r.result.Outcome = outcome
	r.result.Err = err
}

func (r *run) record(ctx context.Context, phase domain.PhaseName, kind domain.AuditKind, detail string) {
	r.audit.Record(context.WithoutCancel(ctx), domain.AuditEvent{
		RunID:       r.result.RunID,
		PrincipalID: r.result.PrincipalID,
		Phase:       phase,
		Kind:        kind,
		Detail:      detail,
		At:          r.clock.Now(),
	})
}

func phaseError(name domain.PhaseName, class domain.FailureClass, err error) *domain.PhaseError {
	if pe, ok := domain.AsPhaseError(err); ok {
		return pe
	}
	return domain.NewPhaseError(name, class, "phase failed", err)
}

// residual returns the subscriptions whose provider id is in failed
func residual(subs []domain.Subscription, failed []string) []domain.Subscription {
	var out []domain.Subscription
	for _, s := range subs {
		for _, id := range failed {
			if s.ProviderID == id {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func describeOptions(opts Options) string {
	var flags []string
	for _, f := range []struct {
		name string
		on   bool
	}{
		{"dry-run", opts.DryRun},
		{"skip-remote-teardown", opts.SkipRemoteTeardown},
		{"skip-billing-cancellation", opts.SkipBillingCancellation},
		{"auto-confirm", opts.AutoConfirm},
		{"force", opts.Force},
	} {
		if f.on {
			flags = append(flags, f.name)
		}
	}
	detail := strings.Join(flags, ",")
	if opts.RequestedBy != "" {
		detail = strings.TrimPrefix(detail+" requested_by="+opts.RequestedBy, " ")
	}
	return detail
}

func describeCounts(counts []domain.EntityCount) string {
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", c.Kind, c.Count))
	}
	return strings.Join(parts, " ")
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, domain.AuditEvent) {}
