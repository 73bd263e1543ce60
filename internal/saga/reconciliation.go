package saga

import (
	"context"
	"fmt"
	"strings"

	"github.com/aidar/tenant-purge/internal/domain"
)

// TeamReconciliation decides, for every team of the principal, whether it is
// deleted, handed over to a successor, or simply left.
type TeamReconciliation struct{}

// NewTeamReconciliation creates the TeamReconciliation phase
func NewTeamReconciliation() *TeamReconciliation {
	return &TeamReconciliation{}
}

func (p *TeamReconciliation) Name() domain.PhaseName { return domain.PhaseTeamReconciliation }

// Classify returns a copy of plan with a disposition for every team and the
// edge cases that block the run. It does not touch any store, so the
// orchestrator runs it before the first mutation.
func (p *TeamReconciliation) Classify(plan *domain.Plan) *domain.Plan {
	out := *plan
	out.Teams = make([]domain.TeamPlan, len(plan.Teams))
	out.EdgeCases = nil

	target := plan.Principal.PrincipalID
	for i, tp := range plan.Teams {
		switch {
		case tp.Team.IsSoleOwnedBy(target):
			tp.Disposition = domain.DispositionDelete
		case tp.Role != domain.RoleOwner, tp.Team.OwnerCount() > 1:
			tp.Disposition = domain.DispositionLeave
		default:
			tp.Disposition = domain.DispositionTransfer
			if candidates := tp.Team.TransferCandidates(target); len(candidates) > 0 {
				tp.Successor = candidates[0].PrincipalID
				break
			}
			if sub, ok := firstActive(tp.Subscriptions); ok {
				out.EdgeCases = append(out.EdgeCases, domain.EdgeCase{
					TeamID:         tp.Team.TeamID,
					TeamName:       tp.Team.TeamName,
					Members:        tp.Team.Members,
					ResourceCount:  tp.ResourceCount,
					SubscriptionID: sub.ProviderID,
					Reason:         "sole owner of a team with an active subscription and no active member to take ownership",
				})
				break
			}
			// No billing at stake: hand over to the longest-standing member
			// even though nobody active is left
			for _, m := range tp.Team.Members {
				if m.PrincipalID != target {
					tp.Successor = m.PrincipalID
					tp.Note = "successor is inactive"
					break
				}
			}
		}
		if tp.Disposition == domain.DispositionDelete {
			if ec, ok := sharedHostCase(plan, tp); ok {
				out.EdgeCases = append(out.EdgeCases, ec)
			}
		}
		out.Teams[i] = tp
	}
	return &out
}

// sharedHostCase reports a team whose hosts also carry resources of teams
// outside the deletion scope
func sharedHostCase(plan *domain.Plan, tp domain.TeamPlan) (domain.EdgeCase, bool) {
	var foreign []string
	for _, r := range plan.ForeignResources {
		if plan.HostTeam(r.HostID) == tp.Team.TeamID {
			foreign = append(foreign, fmt.Sprintf("%s on %s (team %s)", r.ResourceID, r.HostID, r.TeamID))
		}
	}
	if len(foreign) == 0 {
		return domain.EdgeCase{}, false
	}
	return domain.EdgeCase{
		TeamID:        tp.Team.TeamID,
		TeamName:      tp.Team.TeamName,
		Members:       tp.Team.Members,
		ResourceCount: tp.ResourceCount,
		Reason:        "hosts carry resources of other teams: " + strings.Join(foreign, ", "),
	}, true
}

func firstActive(subs []domain.Subscription) (domain.Subscription, bool) {
	for _, s := range subs {
		if s.IsActive() {
			return s, true
		}
	}
	return domain.Subscription{}, false
}

func (p *TeamReconciliation) Preview(plan *domain.Plan) domain.PreviewResult {
	var deleted, transferred, left int
	entities := make([]string, 0, len(plan.Teams))
	for _, tp := range plan.Teams {
		switch tp.Disposition {
		case domain.DispositionDelete:
			deleted++
			entities = append(entities, fmt.Sprintf("delete %s", tp.Team.TeamName))
		case domain.DispositionTransfer:
			transferred++
			entities = append(entities, fmt.Sprintf("transfer %s to %s", tp.Team.TeamName, tp.Successor))
		case domain.DispositionLeave:
			left++
			entities = append(entities, fmt.Sprintf("leave %s (%s)", tp.Team.TeamName, tp.Role))
		}
	}
	return domain.PreviewResult{
		Phase:   domain.PhaseTeamReconciliation,
		Summary: fmt.Sprintf("reconcile %d team(s), %d edge case(s)", len(plan.Teams), len(plan.EdgeCases)),
		Counts: []domain.EntityCount{
			count("team_deleted", deleted),
			count("team_transferred", transferred),
			count("membership_removed", left),
		},
		Entities: entities,
	}
}

func (p *TeamReconciliation) Execute(ctx context.Context, env Env) (domain.ExecuteResult, error) {
	result := domain.ExecuteResult{Phase: domain.PhaseTeamReconciliation}
	if len(env.Plan.EdgeCases) > 0 {
		return result, domain.NewPhaseError(result.Phase, domain.FailureLocal,
			"unresolved edge cases", domain.ErrEdgeCase)
	}

	target := env.Plan.Principal.PrincipalID
	for _, tp := range env.Plan.Teams {
		teamID := tp.Team.TeamID
		switch tp.Disposition {
		case domain.DispositionDelete:
			for _, s := range tp.Subscriptions {
				if s.IsActive() {
					// Committed together with the deletes: the durable pointer to
					// what billing still has to cancel
					task := &domain.PostCommitTask{
						RunID:          env.RunID,
						PrincipalID:    target,
						SubscriptionID: s.SubscriptionID,
						ProviderID:     s.ProviderID,
					}
					if err := env.Store.EnqueuePostCommitTask(ctx, task); err != nil {
						return result, domain.NewPhaseError(result.Phase, domain.FailureLocal,
							"failed to record post-commit task for "+s.SubscriptionID, err)
					}
				}
				if err := env.Store.DeleteSubscription(ctx, s.SubscriptionID); err != nil {
					return result, domain.NewPhaseError(result.Phase, domain.FailureLocal,
						"failed to delete subscription "+s.SubscriptionID, err)
				}
				result.Add("subscription", 1)
			}
			if err := env.Store.DeleteTeam(ctx, teamID); err != nil {
				return result, domain.NewPhaseError(result.Phase, domain.FailureLocal,
					"failed to delete team "+teamID, err)
			}
			result.Add("team_deleted", 1)
		case domain.DispositionTransfer:
			if err := env.Store.TransferOwnership(ctx, teamID, target, tp.Successor); err != nil {
				return result, domain.NewPhaseError(result.Phase, domain.FailureLocal,
					"failed to transfer team "+teamID, err)
			}
			result.Add("team_transferred", 1)
		case domain.DispositionLeave:
			if err := env.Store.RemoveMembership(ctx, teamID, target); err != nil {
				return result, domain.NewPhaseError(result.Phase, domain.FailureLocal,
					"failed to leave team "+teamID, err)
			}
			result.Add("membership_removed", 1)
		}
	}
	return result, nil
}
