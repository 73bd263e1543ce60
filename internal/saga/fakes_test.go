package saga

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/repository"
)

var errInjected = errors.New("injected failure")

// memState is one consistent copy of the local store
type memState struct {
	principals map[string]domain.Principal
	teams      map[string]string
	members    map[string]map[string]domain.TeamMember
	hosts      map[string]domain.Host
	resources  map[string]domain.Resource
	subs       map[string]domain.Subscription
	tasks      []domain.PostCommitTask
}

func newMemState() *memState {
	return &memState{
		principals: map[string]domain.Principal{},
		teams:      map[string]string{},
		members:    map[string]map[string]domain.TeamMember{},
		hosts:      map[string]domain.Host{},
		resources:  map[string]domain.Resource{},
		subs:       map[string]domain.Subscription{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		principals: maps.Clone(s.principals),
		teams:      maps.Clone(s.teams),
		members:    make(map[string]map[string]domain.TeamMember, len(s.members)),
		hosts:      maps.Clone(s.hosts),
		resources:  maps.Clone(s.resources),
		subs:       maps.Clone(s.subs),
		tasks:      append([]domain.PostCommitTask(nil), s.tasks...),
	}
	for id, m := range s.members {
		c.members[id] = maps.Clone(m)
	}
	return c
}

// memStore is an in-memory inventory with snapshot transactions: a unit
// works on a private copy that replaces the committed state on Commit.
type memStore struct {
	mu    sync.Mutex
	state *memState

	failOn      map[string]error
	rollbackErr error

	begins    int
	commits   int
	rollbacks int
}

func newMemStore() *memStore {
	return &memStore{state: newMemState(), failOn: map[string]error{}}
}

func (s *memStore) snapshot() *memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *memStore) committed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *memStore) addPrincipal(id string, active bool) {
	s.state.principals[id] = domain.Principal{
		PrincipalID: id,
		Name:        "name-" + id,
		Email:       id + "@example.com",
		IsActive:    active,
	}
}

func (s *memStore) addTeam(id string, members ...domain.TeamMember) {
	s.state.teams[id] = "team-" + id
	s.state.members[id] = map[string]domain.TeamMember{}
	for _, m := range members {
		m.Name = "name-" + m.PrincipalID
		s.state.members[id][m.PrincipalID] = m
	}
}

func (s *memStore) addHost(id, teamID string) {
	s.state.hosts[id] = domain.Host{HostID: id, TeamID: teamID, HostName: "host-" + id, Address: id + ".internal"}
}

func (s *memStore) addResource(id, hostID, teamID string) {
	s.state.resources[id] = domain.Resource{ResourceID: id, HostID: hostID, TeamID: teamID, Kind: "container", ResourceName: "res-" + id}
}

func (s *memStore) addSubscription(id, teamID string, status domain.SubscriptionStatus) {
	s.state.subs[id] = domain.Subscription{SubscriptionID: id, TeamID: teamID, ProviderID: "sub_" + id, Status: status}
}

func member(id string, role domain.Role, active bool, joined int) domain.TeamMember {
	return domain.TeamMember{
		PrincipalID: id,
		Role:        role,
		IsActive:    active,
		JoinedAt:    time.Date(2024, 1, joined, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) GetPrincipal(_ context.Context, principalID string) (*domain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.principals[principalID]
	if !ok {
		return nil, domain.ErrPrincipalNotFound
	}
	return &p, nil
}

func (s *memStore) ListTeams(_ context.Context, principalID string) ([]*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var teams []*domain.Team
	for _, id := range sortedKeys(s.state.teams) {
		if _, ok := s.state.members[id][principalID]; !ok {
			continue
		}
		team := &domain.Team{TeamID: id, TeamName: s.state.teams[id]}
		for _, m := range s.state.members[id] {
			team.Members = append(team.Members, m)
		}
		sort.Slice(team.Members, func(i, j int) bool {
			return team.Members[i].JoinedAt.Before(team.Members[j].JoinedAt)
		})
		teams = append(teams, team)
	}
	return teams, nil
}

func (s *memStore) ListHosts(_ context.Context, teamIDs []string) ([]domain.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Host
	for _, id := range sortedKeys(s.state.hosts) {
		if h := s.state.hosts[id]; contains(teamIDs, h.TeamID) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *memStore) ListResources(_ context.Context, teamIDs []string) ([]domain.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Resource
	for _, id := range sortedKeys(s.state.resources) {
		if r := s.state.resources[id]; contains(teamIDs, r.TeamID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ListResourcesOnHosts(_ context.Context, hostIDs []string) ([]domain.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Resource
	for _, id := range sortedKeys(s.state.resources) {
		if r := s.state.resources[id]; contains(hostIDs, r.HostID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) CountResources(_ context.Context, teamID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.state.resources {
		if r.TeamID == teamID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListSubscriptions(_ context.Context, teamIDs []string) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Subscription
	for _, id := range sortedKeys(s.state.subs) {
		if sub := s.state.subs[id]; contains(teamIDs, sub.TeamID) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *memStore) Begin(_ context.Context) (repository.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["Begin"]; err != nil {
		return nil, err
	}
	s.begins++
	return &memUnit{store: s, state: s.state.clone()}, nil
}

func (s *memStore) MarkResolved(_ context.Context, runID, subscriptionID string) error {
	return s.setTask(runID, subscriptionID, domain.TaskResolved, "")
}

func (s *memStore) MarkFailed(_ context.Context, runID, subscriptionID, reason string) error {
	return s.setTask(runID, subscriptionID, domain.TaskFailed, reason)
}

func (s *memStore) setTask(runID, subscriptionID string, status domain.TaskStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.state.tasks {
		if t.RunID == runID && t.SubscriptionID == subscriptionID {
			s.state.tasks[i].Status = status
			s.state.tasks[i].LastError = reason
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *memStore) ListPending(_ context.Context) ([]domain.PostCommitTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PostCommitTask
	for _, t := range s.state.tasks {
		if t.Status != domain.TaskResolved {
			out = append(out, t)
		}
	}
	return out, nil
}

type memUnit struct {
	store *memStore
	state *memState
	done  bool
}

func (u *memUnit) Store() repository.DeletionStore { return u }

func (u *memUnit) Commit(_ context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if err := u.store.failOn["Commit"]; err != nil {
		return err
	}
	u.store.state = u.state
	u.store.commits++
	u.done = true
	return nil
}

func (u *memUnit) Rollback(_ context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if u.done {
		return nil
	}
	u.store.rollbacks++
	if u.store.rollbackErr != nil {
		return u.store.rollbackErr
	}
	u.done = true
	return nil
}

func (u *memUnit) fail(op string) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return u.store.failOn[op]
}

func (u *memUnit) DeleteResource(_ context.Context, id string) error {
	if err := u.fail("DeleteResource"); err != nil {
		return err
	}
	return deleteKey(u.state.resources, "resource", id)
}

func (u *memUnit) DeleteHost(_ context.Context, id string) error {
	if err := u.fail("DeleteHost"); err != nil {
		return err
	}
	for _, r := range u.state.resources {
		if r.HostID == id {
			return fmt.Errorf("host %s still referenced by resource %s", id, r.ResourceID)
		}
	}
	return deleteKey(u.state.hosts, "host", id)
}

func (u *memUnit) DeleteSubscription(_ context.Context, id string) error {
	return deleteKey(u.state.subs, "subscription", id)
}

func (u *memUnit) DeleteTeam(_ context.Context, id string) error {
	if err := u.fail("DeleteTeam"); err != nil {
		return err
	}
	delete(u.state.members, id)
	return deleteKey(u.state.teams, "team", id)
}

func (u *memUnit) TransferOwnership(_ context.Context, teamID, from, to string) error {
	m, ok := u.state.members[teamID][to]
	if !ok {
		return domain.ErrNotFound
	}
	m.Role = domain.RoleOwner
	u.state.members[teamID][to] = m
	delete(u.state.members[teamID], from)
	return nil
}

func (u *memUnit) RemoveMembership(_ context.Context, teamID, principalID string) error {
	if _, ok := u.state.members[teamID][principalID]; !ok {
		return domain.ErrNotFound
	}
	delete(u.state.members[teamID], principalID)
	return nil
}

func (u *memUnit) DeletePrincipal(_ context.Context, id string) error {
	if err := u.fail("DeletePrincipal"); err != nil {
		return err
	}
	return deleteKey(u.state.principals, "principal", id)
}

func (u *memUnit) EnqueuePostCommitTask(_ context.Context, task *domain.PostCommitTask) error {
	task.TaskID = int64(len(u.state.tasks) + 1)
	task.Status = domain.TaskPending
	u.state.tasks = append(u.state.tasks, *task)
	return nil
}

func deleteKey[V any](m map[string]V, kind, id string) error {
	if _, ok := m[id]; !ok {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	delete(m, id)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// fakeAgent records teardown calls and fails for the refs in failOn
type fakeAgent struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
}

func (a *fakeAgent) Teardown(_ context.Context, target domain.TeardownTarget) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, target.ID)
	if a.failOn[target.ID] {
		return errInjected
	}
	return nil
}

// fakeBilling tracks provider-side state and whether the local store had
// committed when it was first called
type fakeBilling struct {
	store  *memStore
	active map[string]bool
	fail   map[string]bool

	calls             []string
	cancelled         []string
	calledUncommitted bool
}

func (b *fakeBilling) IsActive(_ context.Context, providerID string) (bool, error) {
	if b.store != nil && b.store.committed() == 0 {
		b.calledUncommitted = true
	}
	b.calls = append(b.calls, providerID)
	return b.active[providerID], nil
}

func (b *fakeBilling) CancelNow(_ context.Context, providerID string) error {
	if b.fail[providerID] {
		return errInjected
	}
	b.active[providerID] = false
	b.cancelled = append(b.cancelled, providerID)
	return nil
}

// fakeLeases is a single-process lease table
type fakeLeases struct {
	mu       sync.Mutex
	held     map[string]*domain.Lease
	acquires int
	releases int
}

func newFakeLeases() *fakeLeases {
	return &fakeLeases{held: map[string]*domain.Lease{}}
}

func (l *fakeLeases) Acquire(_ context.Context, key string, ttl time.Duration, force bool) (*domain.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if _, ok := l.held[key]; ok && !force {
		return nil, domain.ErrLeaseBusy
	}
	lease := &domain.Lease{Key: key, Holder: fmt.Sprintf("holder-%d", l.acquires), ExpiresAt: time.Now().Add(ttl), Forced: force}
	l.held[key] = lease
	return lease, nil
}

func (l *fakeLeases) Release(_ context.Context, lease *domain.Lease) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	if cur, ok := l.held[lease.Key]; ok && cur.Holder == lease.Holder {
		delete(l.held, lease.Key)
	}
}

// scriptedConfirmer approves every gate except declineAt
type scriptedConfirmer struct {
	declineAt domain.PhaseName
	onGate    func(Gate) error
	gates     []Gate
}

func (c *scriptedConfirmer) Confirm(_ context.Context, gate Gate) (bool, error) {
	c.gates = append(c.gates, gate)
	if c.onGate != nil {
		if err := c.onGate(gate); err != nil {
			return false, err
		}
	}
	return gate.Next != c.declineAt, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *recordingAudit) Record(_ context.Context, event domain.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAudit) kinds() []domain.AuditKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	kinds := make([]domain.AuditKind, 0, len(a.events))
	for _, e := range a.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
