package saga

import (
	"context"
	"fmt"

	"github.com/aidar/tenant-purge/internal/domain"
)

// PrincipalPurge deletes the principal record. It is the last local
// mutation: earlier phases still read the principal's associations.
type PrincipalPurge struct{}

// NewPrincipalPurge creates the PrincipalPurge phase
func NewPrincipalPurge() *PrincipalPurge {
	return &PrincipalPurge{}
}

func (p *PrincipalPurge) Name() domain.PhaseName { return domain.PhasePrincipalPurge }

func (p *PrincipalPurge) Preview(plan *domain.Plan) domain.PreviewResult {
	return domain.PreviewResult{
		Phase:        domain.PhasePrincipalPurge,
		Summary:      fmt.Sprintf("delete principal %s and commit all local deletions", plan.Principal.PrincipalID),
		Counts:       []domain.EntityCount{count("principal", 1)},
		Entities:     []string{fmt.Sprintf("%s <%s>", plan.Principal.Name, plan.Principal.Email)},
		Irreversible: true,
	}
}

func (p *PrincipalPurge) Execute(ctx context.Context, env Env) (domain.ExecuteResult, error) {
	result := domain.ExecuteResult{Phase: domain.PhasePrincipalPurge}
	if err := env.Store.DeletePrincipal(ctx, env.Plan.Principal.PrincipalID); err != nil {
		return result, domain.NewPhaseError(result.Phase, domain.FailureLocal,
			"failed to delete principal "+env.Plan.Principal.PrincipalID, err)
	}
	result.Add("principal", 1)
	return result, nil
}
