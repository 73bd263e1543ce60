package saga

import (
	"context"
	"fmt"

	"github.com/aidar/tenant-purge/internal/domain"
)

// ResourceTeardown deletes in-scope resources locally and instructs their
// hosts to destroy them. A remote instruction that went out stays out: on
// failure the local deletes roll back, the remote effects are only reported.
type ResourceTeardown struct {
	agent TeardownAgent
}

// NewResourceTeardown creates the ResourceTeardown phase
func NewResourceTeardown(agent TeardownAgent) *ResourceTeardown {
	return &ResourceTeardown{agent: agent}
}

func (p *ResourceTeardown) Name() domain.PhaseName { return domain.PhaseResourceTeardown }

func (p *ResourceTeardown) Preview(plan *domain.Plan) domain.PreviewResult {
	entities := make([]string, 0, len(plan.Resources))
	for _, r := range plan.Resources {
		entities = append(entities, resourceTarget(plan, r).Ref())
	}
	return domain.PreviewResult{
		Phase:        domain.PhaseResourceTeardown,
		Summary:      fmt.Sprintf("destroy %d resource(s) on remote hosts", len(plan.Resources)),
		Counts:       []domain.EntityCount{count("resource", len(plan.Resources))},
		Entities:     entities,
		Irreversible: len(plan.Resources) > 0,
	}
}

func (p *ResourceTeardown) Execute(ctx context.Context, env Env) (domain.ExecuteResult, error) {
	result := domain.ExecuteResult{Phase: domain.PhaseResourceTeardown}
	for _, r := range env.Plan.Resources {
		if err := env.Store.DeleteResource(ctx, r.ResourceID); err != nil {
			return result, domain.NewPhaseError(result.Phase, domain.FailureLocal,
				"failed to delete resource "+r.ResourceID, err)
		}
		result.Add("resource", 1)

		if env.Options.SkipRemoteTeardown {
			continue
		}
		target := resourceTarget(env.Plan, r)
		if err := p.agent.Teardown(ctx, target); err != nil {
			result.Failed = append(result.Failed, target.Ref())
			return result, domain.NewPhaseError(result.Phase, domain.FailureRemote,
				"remote teardown failed for "+target.Ref(), err)
		}
		result.RemoteIssued = append(result.RemoteIssued, target.Ref())
	}
	return result, nil
}

func resourceTarget(plan *domain.Plan, r domain.Resource) domain.TeardownTarget {
	return domain.TeardownTarget{
		Kind:         domain.TargetResource,
		ID:           r.ResourceID,
		Name:         r.ResourceName,
		ResourceKind: r.Kind,
		HostAddress:  plan.HostAddress(r.HostID),
	}
}

// ServerTeardown is ResourceTeardown at host granularity
type ServerTeardown struct {
	agent TeardownAgent
}

// NewServerTeardown creates the ServerTeardown phase
func NewServerTeardown(agent TeardownAgent) *ServerTeardown {
	return &ServerTeardown{agent: agent}
}

func (p *ServerTeardown) Name() domain.PhaseName { return domain.PhaseServerTeardown }

func (p *ServerTeardown) Preview(plan *domain.Plan) domain.PreviewResult {
	entities := make([]string, 0, len(plan.Hosts))
	for _, h := range plan.Hosts {
		entities = append(entities, hostTarget(h).Ref())
	}
	return domain.PreviewResult{
		Phase:        domain.PhaseServerTeardown,
		Summary:      fmt.Sprintf("decommission %d host(s)", len(plan.Hosts)),
		Counts:       []domain.EntityCount{count("host", len(plan.Hosts))},
		Entities:     entities,
		Irreversible: len(plan.Hosts) > 0,
	}
}

func (p *ServerTeardown) Execute(ctx context.Context, env Env) (domain.ExecuteResult, error) {
	result := domain.ExecuteResult{Phase: domain.PhaseServerTeardown}
	for _, h := range env.Plan.Hosts {
		if err := env.Store.DeleteHost(ctx, h.HostID); err != nil {
			return result, domain.NewPhaseError(result.Phase, domain.FailureLocal,
				"failed to delete host "+h.HostID, err)
		}
		result.Add("host", 1)

		if env.Options.SkipRemoteTeardown {
			continue
		}
		target := hostTarget(h)
		if err := p.agent.Teardown(ctx, target); err != nil {
			result.Failed = append(result.Failed, target.Ref())
			return result, domain.NewPhaseError(result.Phase, domain.FailureRemote,
				"remote teardown failed for "+target.Ref(), err)
		}
		result.RemoteIssued = append(result.RemoteIssued, target.Ref())
	}
	return result, nil
}

func hostTarget(h domain.Host) domain.TeardownTarget {
	return domain.TeardownTarget{
		Kind:        domain.TargetHost,
		ID:          h.HostID,
		Name:        h.HostName,
		HostAddress: h.Address,
	}
}
