package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidar/tenant-purge/internal/domain"
)

type harness struct {
	store     *memStore
	agent     *fakeAgent
	billing   *fakeBilling
	leases    *fakeLeases
	confirmer *scriptedConfirmer
	audit     *recordingAudit
	orch      *Orchestrator
}

func newHarness(t *testing.T, seed func(s *memStore)) *harness {
	t.Helper()
	store := newMemStore()
	seed(store)

	h := &harness{
		store:     store,
		agent:     &fakeAgent{failOn: map[string]bool{}},
		billing:   &fakeBilling{store: store, active: map[string]bool{}, fail: map[string]bool{}},
		leases:    newFakeLeases(),
		confirmer: &scriptedConfirmer{},
		audit:     &recordingAudit{},
	}
	for _, s := range store.state.subs {
		h.billing.active[s.ProviderID] = s.IsActive()
	}
	h.orch = New(Dependencies{
		Inventory: store,
		Units:     store,
		Tasks:     store,
		Leases:    h.leases,
		Agent:     h.agent,
		Billing:   h.billing,
		Confirmer: h.confirmer,
		Audit:     h.audit,
		Clock:     testclock.NewClock(epoch),
		Logger:    discardLogger(),
	})
	return h
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// soloTeam: u1 sole-owns t1 (h1, r1) and is a plain member of t2 owned by u2 (h2, r2)
func soloTeam(s *memStore) {
	s.addPrincipal("u1", true)
	s.addPrincipal("u2", true)
	s.addTeam("t1", member("u1", domain.RoleOwner, true, 1))
	s.addHost("h1", "t1")
	s.addResource("r1", "h1", "t1")
	s.addTeam("t2", member("u2", domain.RoleOwner, true, 1), member("u1", domain.RoleMember, true, 2))
	s.addHost("h2", "t2")
	s.addResource("r2", "h2", "t2")
}

func withSubscriptions(s *memStore) {
	soloTeam(s)
	s.addSubscription("s1", "t1", domain.SubscriptionActive)
	s.addSubscription("s2", "t1", domain.SubscriptionActive)
}

func TestRun_AutoConfirmSuccess(t *testing.T) {
	h := newHarness(t, soloTeam)

	result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})

	require.Equal(t, domain.OutcomeSuccess, result.Outcome, result.ErrorMessage())
	assert.True(t, result.Ledger.Committed())
	for _, p := range domain.PhaseOrder {
		assert.True(t, result.Ledger.Done(p), "phase %s", p)
	}

	state := h.store.snapshot()
	assert.NotContains(t, state.principals, "u1")
	assert.NotContains(t, state.teams, "t1")
	assert.NotContains(t, state.hosts, "h1")
	assert.NotContains(t, state.resources, "r1")

	// Teams the principal only belongs to are left intact
	assert.Contains(t, state.teams, "t2")
	assert.Contains(t, state.hosts, "h2")
	assert.Contains(t, state.resources, "r2")
	assert.NotContains(t, state.members["t2"], "u1")
	assert.Contains(t, state.members["t2"], "u2")

	assert.Equal(t, []string{"r1", "h1"}, h.agent.calls)
	assert.Equal(t, []string{"resource:r1@h1.internal", "host:h1@h1.internal"}, result.RemoteIssued())
	assert.Empty(t, h.billing.calls)
	assert.Empty(t, h.confirmer.gates, "auto-confirm bypasses the confirmer")

	assert.Equal(t, 1, h.leases.releases)
	assert.Empty(t, h.leases.held)
}

func TestRun_DeclineCommitGate(t *testing.T) {
	h := newHarness(t, soloTeam)
	before := h.store.snapshot()
	h.confirmer.declineAt = domain.PhasePrincipalPurge

	result := h.orch.Run(context.Background(), "u1", Options{})

	require.Equal(t, domain.OutcomeCancelledByOperator, result.Outcome)
	assert.ErrorIs(t, result.Err, domain.ErrOperatorCancelled)
	assert.Equal(t, domain.PhasePrincipalPurge, result.CancelledAt)

	assert.True(t, result.Ledger.Done(domain.PhaseOverview))
	assert.True(t, result.Ledger.Done(domain.PhaseResourceTeardown))
	assert.True(t, result.Ledger.Done(domain.PhaseServerTeardown))
	assert.True(t, result.Ledger.Done(domain.PhaseTeamReconciliation))
	assert.False(t, result.Ledger.Done(domain.PhasePrincipalPurge))
	assert.False(t, result.Ledger.Committed())

	assert.True(t, result.RolledBack)
	assert.Equal(t, before, h.store.snapshot())
	assert.Zero(t, h.store.commits)

	require.Len(t, h.confirmer.gates, 4)
	commitGate := h.confirmer.gates[3]
	assert.True(t, commitGate.Commit)
	assert.False(t, commitGate.DefaultYes)
	assert.True(t, commitGate.Preview.Irreversible)
	for _, g := range h.confirmer.gates[:3] {
		assert.False(t, g.Commit)
		assert.True(t, g.DefaultYes)
	}
	assert.Empty(t, h.leases.held)
}

func TestRun_EdgeCaseAbortsBeforeMutation(t *testing.T) {
	h := newHarness(t, func(s *memStore) {
		soloTeam(s)
		s.addPrincipal("u3", false)
		s.addTeam("t3", member("u1", domain.RoleOwner, true, 1), member("u3", domain.RoleAdmin, false, 2))
		s.addHost("h3", "t3")
		s.addResource("r3", "h3", "t3")
		s.addSubscription("s3", "t3", domain.SubscriptionActive)
	})
	before := h.store.snapshot()

	result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})

	require.Equal(t, domain.OutcomeAbortedOnEdgeCase, result.Outcome)
	assert.ErrorIs(t, result.Err, domain.ErrEdgeCase)
	require.Len(t, result.EdgeCases, 1)
	ec := result.EdgeCases[0]
	assert.Equal(t, "t3", ec.TeamID)
	assert.Equal(t, "sub_s3", ec.SubscriptionID)
	assert.Equal(t, 1, ec.ResourceCount)
	assert.Len(t, ec.Members, 2)

	assert.Equal(t, before, h.store.snapshot())
	assert.Zero(t, h.store.begins, "no transactional unit may be opened")
	assert.Empty(t, h.agent.calls)
	assert.Empty(t, h.billing.calls)
	assert.False(t, result.RolledBack)
	assert.True(t, result.Ledger.Done(domain.PhaseOverview))
	assert.False(t, result.Ledger.Done(domain.PhaseResourceTeardown))
	assert.Contains(t, h.audit.kinds(), domain.AuditEdgeCase)
	assert.Empty(t, h.leases.held)
}

func TestRun_RemoteFailureRollsBack(t *testing.T) {
	h := newHarness(t, func(s *memStore) {
		soloTeam(s)
		s.addResource("r1b", "h1", "t1")
	})
	h.agent.failOn["r1b"] = true
	before := h.store.snapshot()

	result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})

	require.Equal(t, domain.OutcomeFailedPreCommit, result.Outcome)
	require.NotNil(t, result.Failure)
	assert.Equal(t, domain.PhaseResourceTeardown, result.Failure.Phase)
	assert.Equal(t, domain.FailureRemote, result.Failure.Class)
	assert.ErrorIs(t, result.Err, errInjected)

	assert.False(t, result.Ledger.Done(domain.PhaseResourceTeardown))
	assert.False(t, result.Ledger.Committed())
	assert.True(t, result.RolledBack)
	assert.Equal(t, before, h.store.snapshot())

	assert.Equal(t, []string{"resource:r1@h1.internal"}, result.RemoteIssued())
	assert.Equal(t, []string{"resource:r1b@h1.internal"}, result.RemoteUncertain())
	assert.Equal(t, []string{"r1", "r1b"}, h.agent.calls, "no retry after a remote failure")
	assert.Empty(t, h.billing.calls)
}

func TestRun_BillingPartialFailure(t *testing.T) {
	h := newHarness(t, withSubscriptions)
	h.billing.fail["sub_s2"] = true

	result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})

	require.Equal(t, domain.OutcomeFailedPostCommit, result.Outcome)
	assert.True(t, result.Ledger.Committed())
	assert.True(t, result.Ledger.Done(domain.PhasePrincipalPurge))
	assert.False(t, result.Ledger.Done(domain.PhaseBillingCancellation))
	require.NotNil(t, result.Failure)
	assert.Equal(t, domain.FailureBilling, result.Failure.Class)

	state := h.store.snapshot()
	assert.NotContains(t, state.principals, "u1")
	assert.NotContains(t, state.teams, "t1")
	assert.Empty(t, state.subs)

	exec, ok := result.Execution(domain.PhaseBillingCancellation)
	require.True(t, ok)
	assert.Equal(t, []string{"sub_s1"}, exec.Cancelled)
	assert.Equal(t, []string{"sub_s2"}, exec.Failed)
	require.Len(t, result.Residual, 1)
	assert.Equal(t, "sub_s2", result.Residual[0].ProviderID)

	require.Len(t, state.tasks, 2)
	status := map[string]domain.TaskStatus{}
	for _, task := range state.tasks {
		status[task.ProviderID] = task.Status
		assert.Equal(t, result.RunID, task.RunID)
	}
	assert.Equal(t, domain.TaskResolved, status["sub_s1"])
	assert.Equal(t, domain.TaskFailed, status["sub_s2"])

	assert.False(t, h.billing.calledUncommitted, "billing must only run after commit")
}

func TestRun_ContentionLeavesLeaseAlone(t *testing.T) {
	h := newHarness(t, soloTeam)
	other, err := h.leases.Acquire(context.Background(), domain.LeaseKey("u1"), DefaultLeaseTTL, false)
	require.NoError(t, err)
	before := h.store.snapshot()

	result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})

	require.Equal(t, domain.OutcomeContention, result.Outcome)
	assert.ErrorIs(t, result.Err, domain.ErrLeaseBusy)
	assert.Equal(t, before, h.store.snapshot())
	assert.Zero(t, h.store.begins)
	assert.Zero(t, h.leases.releases)
	assert.Equal(t, other, h.leases.held[domain.LeaseKey("u1")])
}

func TestRun_ForceOverridesHeldLease(t *testing.T) {
	h := newHarness(t, soloTeam)
	_, err := h.leases.Acquire(context.Background(), domain.LeaseKey("u1"), DefaultLeaseTTL, false)
	require.NoError(t, err)

	result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true, Force: true})

	require.Equal(t, domain.OutcomeSuccess, result.Outcome, result.ErrorMessage())
	require.NotNil(t, result.Lease)
	assert.True(t, result.Lease.Forced)
}

func TestRun_NotFoundTakesNoLease(t *testing.T) {
	h := newHarness(t, soloTeam)

	result := h.orch.Run(context.Background(), "ghost", Options{AutoConfirm: true})

	assert.Equal(t, domain.OutcomeNotFound, result.Outcome)
	assert.ErrorIs(t, result.Err, domain.ErrPrincipalNotFound)
	assert.Zero(t, h.leases.acquires)
	assert.Nil(t, result.Lease)
}

func TestRun_DryRunOnlyPreviews(t *testing.T) {
	h := newHarness(t, withSubscriptions)
	before := h.store.snapshot()

	result := h.orch.Run(context.Background(), "u1", Options{DryRun: true})

	require.Equal(t, domain.OutcomeDryRun, result.Outcome)
	assert.Len(t, result.Previews, len(domain.PhaseOrder))
	for i, p := range result.Previews {
		assert.Equal(t, domain.PhaseOrder[i], p.Phase)
	}
	assert.Equal(t, before, h.store.snapshot())
	assert.Zero(t, h.store.begins)
	assert.Zero(t, h.leases.acquires)
	assert.Empty(t, h.agent.calls)
	assert.Empty(t, h.billing.calls)
	assert.Empty(t, h.confirmer.gates)
	assert.False(t, result.Ledger.Committed())
}

func TestRun_DeclinedBillingGateLeavesResidual(t *testing.T) {
	h := newHarness(t, withSubscriptions)
	h.confirmer.declineAt = domain.PhaseBillingCancellation

	result := h.orch.Run(context.Background(), "u1", Options{})

	require.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.True(t, result.Ledger.Committed())
	assert.False(t, result.Ledger.Done(domain.PhaseBillingCancellation))
	assert.Len(t, result.Residual, 2)
	assert.Empty(t, h.billing.calls)

	pending, err := h.store.ListPending(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 2, "residual subscriptions stay recorded as pending tasks")
}

func TestRun_SkipOptions(t *testing.T) {
	h := newHarness(t, withSubscriptions)

	result := h.orch.Run(context.Background(), "u1", Options{
		AutoConfirm:             true,
		SkipRemoteTeardown:      true,
		SkipBillingCancellation: true,
	})

	require.Equal(t, domain.OutcomeSuccess, result.Outcome, result.ErrorMessage())
	assert.Empty(t, h.agent.calls)
	assert.Empty(t, result.RemoteIssued())
	assert.Empty(t, h.billing.calls)
	assert.Len(t, result.Residual, 2)
	assert.NotContains(t, h.store.snapshot().resources, "r1")
}

func TestRun_AlreadyInactiveAtProvider(t *testing.T) {
	h := newHarness(t, withSubscriptions)
	h.billing.active["sub_s2"] = false

	result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})

	require.Equal(t, domain.OutcomeSuccess, result.Outcome, result.ErrorMessage())
	exec, ok := result.Execution(domain.PhaseBillingCancellation)
	require.True(t, ok)
	assert.Equal(t, []string{"sub_s1"}, exec.Cancelled)
	assert.Equal(t, []string{"sub_s2"}, exec.Inactive)
	assert.Equal(t, []string{"sub_s1"}, h.billing.cancelled)
	assert.True(t, result.Ledger.Done(domain.PhaseBillingCancellation))
}

func TestRun_DeclineFirstGateOpensNoUnit(t *testing.T) {
	h := newHarness(t, soloTeam)
	h.confirmer.declineAt = domain.PhaseResourceTeardown

	result := h.orch.Run(context.Background(), "u1", Options{})

	assert.Equal(t, domain.OutcomeCancelledByOperator, result.Outcome)
	assert.Equal(t, domain.PhaseResourceTeardown, result.CancelledAt)
	assert.Zero(t, h.store.begins)
	assert.False(t, result.RolledBack)
	assert.Empty(t, h.agent.calls)
}

func TestRun_InterruptBetweenPhases(t *testing.T) {
	h := newHarness(t, soloTeam)
	before := h.store.snapshot()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var leaseSeen *domain.Lease
	h.confirmer.onGate = func(g Gate) error {
		if g.Next == domain.PhaseServerTeardown {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	result := h.orch.Run(ctx, "u1", Options{
		OnLeaseAcquired: func(l *domain.Lease) { leaseSeen = l },
	})

	require.Equal(t, domain.OutcomeCancelledByOperator, result.Outcome)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, domain.PhaseServerTeardown, result.CancelledAt)
	assert.True(t, result.RolledBack)
	assert.Equal(t, before, h.store.snapshot())
	assert.Equal(t, result.Lease, leaseSeen)
	assert.Empty(t, h.leases.held, "lease is released even after cancellation")
	assert.Contains(t, h.audit.kinds(), domain.AuditRunFinished, "audit outlives the cancelled context")
}

func TestRun_RollbackFailureIsReported(t *testing.T) {
	h := newHarness(t, soloTeam)
	h.store.failOn["DeletePrincipal"] = errInjected
	h.store.rollbackErr = errors.New("connection reset")

	result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})

	require.Equal(t, domain.OutcomeFailedPreCommit, result.Outcome)
	assert.False(t, result.RolledBack)
	require.Error(t, result.RollbackErr)
	assert.ErrorIs(t, result.RollbackErr, domain.ErrRollbackFailed)
	pe, ok := domain.AsPhaseError(result.RollbackErr)
	require.True(t, ok)
	assert.Equal(t, domain.FailureRollback, pe.Class)
	assert.Contains(t, h.audit.kinds(), domain.AuditRollbackError)
}

func TestRun_CommitFailure(t *testing.T) {
	h := newHarness(t, withSubscriptions)
	h.store.failOn["Commit"] = errors.New("serialization failure")
	before := h.store.snapshot()

	result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})

	require.Equal(t, domain.OutcomeFailedPreCommit, result.Outcome)
	assert.False(t, result.Ledger.Committed())
	assert.Equal(t, before, h.store.snapshot())
	assert.Empty(t, h.billing.calls)
}

func TestRun_TransfersOwnershipToEligibleMember(t *testing.T) {
	h := newHarness(t, func(s *memStore) {
		soloTeam(s)
		s.addPrincipal("u4", true)
		s.addPrincipal("u5", true)
		s.addTeam("t4",
			member("u1", domain.RoleOwner, true, 1),
			member("u5", domain.RoleMember, true, 2),
			member("u4", domain.RoleAdmin, true, 3),
		)
		s.addHost("h4", "t4")
		s.addSubscription("s4", "t4", domain.SubscriptionActive)
	})

	result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})

	require.Equal(t, domain.OutcomeSuccess, result.Outcome, result.ErrorMessage())
	state := h.store.snapshot()
	assert.Equal(t, domain.RoleOwner, state.members["t4"]["u4"].Role)
	assert.NotContains(t, state.members["t4"], "u1")
	// Shared team inventory is out of scope
	assert.Contains(t, state.hosts, "h4")
	assert.Contains(t, state.subs, "s4")
	assert.NotContains(t, h.agent.calls, "h4")
	assert.Empty(t, h.billing.calls)
}

func TestRun_AuditTrail(t *testing.T) {
	h := newHarness(t, soloTeam)

	result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})
	require.Equal(t, domain.OutcomeSuccess, result.Outcome)

	kinds := h.audit.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, domain.AuditRunStarted, kinds[0])
	assert.Equal(t, domain.AuditRunFinished, kinds[len(kinds)-1])
	assert.Contains(t, kinds, domain.AuditCommitted)
	for _, e := range h.audit.events {
		assert.Equal(t, result.RunID, e.RunID)
		assert.Equal(t, "u1", e.PrincipalID)
	}
	assert.Equal(t, string(domain.OutcomeSuccess), h.audit.events[len(h.audit.events)-1].Detail)
}

func TestRun_ConcurrentRunsOnlyOneProceeds(t *testing.T) {
	h := newHarness(t, soloTeam)

	// The first run parks on its first gate while the second one tries
	release := make(chan struct{})
	entered := make(chan struct{})
	first := &scriptedConfirmer{onGate: func(g Gate) error {
		if g.Next == domain.PhaseResourceTeardown {
			close(entered)
			<-release
		}
		return nil
	}}
	h.orch.confirmer = first

	done := make(chan *Result)
	go func() { done <- h.orch.Run(context.Background(), "u1", Options{}) }()
	<-entered

	second := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})
	close(release)
	firstResult := <-done

	assert.Equal(t, domain.OutcomeContention, second.Outcome)
	assert.Equal(t, domain.OutcomeSuccess, firstResult.Outcome, firstResult.ErrorMessage())
}

func TestRun_SharedHostIsEdgeCase(t *testing.T) {
	sharedHost := func(s *memStore) {
		soloTeam(s)
		// t2's workload lives on t1's host
		s.addResource("r9", "h1", "t2")
	}

	t.Run("dry run reports it", func(t *testing.T) {
		h := newHarness(t, sharedHost)

		result := h.orch.Run(context.Background(), "u1", Options{DryRun: true})

		require.Equal(t, domain.OutcomeDryRun, result.Outcome)
		require.Len(t, result.EdgeCases, 1)
		assert.Equal(t, "t1", result.EdgeCases[0].TeamID)
		assert.Contains(t, result.EdgeCases[0].Reason, "r9 on h1 (team t2)")
		require.Len(t, result.Plan.ForeignResources, 1)
		assert.Equal(t, "r9", result.Plan.ForeignResources[0].ResourceID)
	})

	t.Run("live run aborts before teardown", func(t *testing.T) {
		h := newHarness(t, sharedHost)
		before := h.store.snapshot()

		result := h.orch.Run(context.Background(), "u1", Options{AutoConfirm: true})

		require.Equal(t, domain.OutcomeAbortedOnEdgeCase, result.Outcome)
		assert.ErrorIs(t, result.Err, domain.ErrEdgeCase)
		assert.Empty(t, h.agent.calls)
		assert.Zero(t, h.store.begins)
		assert.Equal(t, before, h.store.snapshot())
	})

	t.Run("resource on a foreign host does not block", func(t *testing.T) {
		h := newHarness(t, func(s *memStore) {
			soloTeam(s)
			// t1's own resource on t2's host is not in scope for teardown
			s.addResource("r8", "h2", "t1")
		})

		result := h.orch.Run(context.Background(), "u1", Options{DryRun: true})

		require.Equal(t, domain.OutcomeDryRun, result.Outcome)
		assert.Empty(t, result.EdgeCases)
		assert.Empty(t, result.Plan.ForeignResources)
	})
}
