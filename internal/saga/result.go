package saga

import (
	"github.com/aidar/tenant-purge/internal/domain"
)

// Result is the structured outcome of one run. It is produced for every
// terminal state and is the input of the consistency report.
type Result struct {
	RunID       string                 `json:"run_id"`
	PrincipalID string                 `json:"principal_id"`
	Outcome     domain.Outcome         `json:"outcome"`
	Ledger      domain.PhaseLedger     `json:"ledger"`
	Options     Options                `json:"options"`
	Lease       *domain.Lease          `json:"lease,omitempty"`
	Plan        *domain.Plan           `json:"plan,omitempty"`
	Previews    []domain.PreviewResult `json:"previews,omitempty"`
	Executions  []domain.ExecuteResult `json:"executions,omitempty"`
	EdgeCases   []domain.EdgeCase      `json:"edge_cases,omitempty"`

	// Failure is the phase error behind FailedPreCommit/FailedPostCommit
	Failure *domain.PhaseError `json:"-"`
	// RolledBack is set once a local rollback went through
	RolledBack bool `json:"rolled_back"`
	// RollbackErr is set when the rollback itself failed
	RollbackErr error `json:"-"`
	// CancelledAt names the gate the operator declined
	CancelledAt domain.PhaseName `json:"cancelled_at,omitempty"`
	// Residual lists subscriptions still active at the provider after commit
	Residual []domain.Subscription `json:"residual_subscriptions,omitempty"`

	Err error `json:"-"`
}

// RemoteIssued returns every remote teardown reference issued during the run
func (r *Result) RemoteIssued() []string {
	var refs []string
	for _, e := range r.Executions {
		refs = append(refs, e.RemoteIssued...)
	}
	return refs
}

// RemoteUncertain returns remote targets whose call failed; the remote side
// may or may not have acted
func (r *Result) RemoteUncertain() []string {
	var refs []string
	for _, e := range r.Executions {
		if e.Phase == domain.PhaseResourceTeardown || e.Phase == domain.PhaseServerTeardown {
			refs = append(refs, e.Failed...)
		}
	}
	return refs
}

// Execution returns the execute result of a phase, if it ran
func (r *Result) Execution(p domain.PhaseName) (domain.ExecuteResult, bool) {
	for _, e := range r.Executions {
		if e.Phase == p {
			return e, true
		}
	}
	return domain.ExecuteResult{}, false
}

// ErrorMessage returns the run error as text, empty on success
func (r *Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
