package saga

import (
	"context"
	"fmt"
	"slices"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/repository"
)

// Overview computes, read-only, everything the run would destroy
type Overview struct {
	inventory repository.InventoryRepository
}

// NewOverview creates the Overview phase
func NewOverview(inventory repository.InventoryRepository) *Overview {
	return &Overview{inventory: inventory}
}

func (p *Overview) Name() domain.PhaseName { return domain.PhaseOverview }

// Principal looks the target up. Runs before the lease is taken.
func (p *Overview) Principal(ctx context.Context, principalID string) (*domain.Principal, error) {
	return p.inventory.GetPrincipal(ctx, principalID)
}

// Build collects the principal's teams and the inventory reachable only
// through teams the principal owns alone. Teams where the principal is a
// co-owner, admin or member never contribute hosts, resources or
// subscriptions to the destruction scope.
func (p *Overview) Build(ctx context.Context, principal *domain.Principal) (*domain.Plan, error) {
	teams, err := p.inventory.ListTeams(ctx, principal.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	plan := &domain.Plan{Principal: *principal}

	var scopeIDs, allIDs []string
	for _, team := range teams {
		member, ok := team.Member(principal.PrincipalID)
		if !ok {
			continue
		}
		tp := domain.TeamPlan{Team: *team, Role: member.Role}
		if team.IsSoleOwnedBy(principal.PrincipalID) {
			tp.Disposition = domain.DispositionDelete
			scopeIDs = append(scopeIDs, team.TeamID)
		}
		allIDs = append(allIDs, team.TeamID)
		plan.Teams = append(plan.Teams, tp)
	}

	if plan.Hosts, err = p.inventory.ListHosts(ctx, scopeIDs); err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	if plan.Resources, err = p.inventory.ListResources(ctx, scopeIDs); err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	// A host in scope may still carry another team's workload; tearing it
	// down would destroy that workload too
	hostIDs := make([]string, 0, len(plan.Hosts))
	for _, h := range plan.Hosts {
		hostIDs = append(hostIDs, h.HostID)
	}
	onHosts, err := p.inventory.ListResourcesOnHosts(ctx, hostIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources on hosts: %w", err)
	}
	for _, r := range onHosts {
		if !slices.Contains(scopeIDs, r.TeamID) {
			plan.ForeignResources = append(plan.ForeignResources, r)
		}
	}

	// Subscriptions and resource counts of every team are needed to explain
	// edge cases, not only those in scope
	subs, err := p.inventory.ListSubscriptions(ctx, allIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	for i := range plan.Teams {
		tp := &plan.Teams[i]
		for _, s := range subs {
			if s.TeamID == tp.Team.TeamID {
				tp.Subscriptions = append(tp.Subscriptions, s)
			}
		}
		if tp.Disposition == domain.DispositionDelete {
			plan.Subscriptions = append(plan.Subscriptions, tp.Subscriptions...)
			for _, r := range plan.Resources {
				if r.TeamID == tp.Team.TeamID {
					tp.ResourceCount++
				}
			}
			continue
		}
		if tp.ResourceCount, err = p.inventory.CountResources(ctx, tp.Team.TeamID); err != nil {
			return nil, fmt.Errorf("failed to count resources of team %s: %w", tp.Team.TeamID, err)
		}
	}

	return plan, nil
}

func (p *Overview) Preview(plan *domain.Plan) domain.PreviewResult {
	scope := plan.TeamsWith(domain.DispositionDelete)
	entities := make([]string, 0, len(scope))
	for _, t := range scope {
		entities = append(entities, "team "+t.Team.TeamName)
	}
	return domain.PreviewResult{
		Phase: domain.PhaseOverview,
		Summary: fmt.Sprintf("principal %s (%s) belongs to %d team(s), %d solely owned",
			plan.Principal.PrincipalID, plan.Principal.Name, len(plan.Teams), len(scope)),
		Counts: []domain.EntityCount{
			count("team", len(scope)),
			count("host", len(plan.Hosts)),
			count("resource", len(plan.Resources)),
			count("subscription", len(plan.ActiveSubscriptions())),
		},
		Entities: entities,
	}
}

// Execute has no side effects: the plan was already built by Build
func (p *Overview) Execute(_ context.Context, env Env) (domain.ExecuteResult, error) {
	return domain.ExecuteResult{Phase: domain.PhaseOverview, Counts: p.Preview(env.Plan).Counts}, nil
}
