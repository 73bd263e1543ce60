package saga

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/repository"
)

// BillingCancellation cancels the subscriptions of deleted teams at the
// provider. It only ever runs after the local commit; its failures are
// reported and left for manual reconciliation, never retried.
type BillingCancellation struct {
	billing BillingClient
	tasks   repository.TaskRepository
	logger  *slog.Logger
}

// NewBillingCancellation creates the BillingCancellation phase
func NewBillingCancellation(billing BillingClient, tasks repository.TaskRepository, logger *slog.Logger) *BillingCancellation {
	return &BillingCancellation{
		billing: billing,
		tasks:   tasks,
		logger:  logger,
	}
}

func (p *BillingCancellation) Name() domain.PhaseName { return domain.PhaseBillingCancellation }

func (p *BillingCancellation) Preview(plan *domain.Plan) domain.PreviewResult {
	active := plan.ActiveSubscriptions()
	entities := make([]string, 0, len(active))
	for _, s := range active {
		entities = append(entities, s.ProviderID)
	}
	return domain.PreviewResult{
		Phase:        domain.PhaseBillingCancellation,
		Summary:      fmt.Sprintf("cancel %d subscription(s) immediately at the billing provider", len(active)),
		Counts:       []domain.EntityCount{count("subscription", len(active))},
		Entities:     entities,
		Irreversible: len(active) > 0,
	}
}

func (p *BillingCancellation) Execute(ctx context.Context, env Env) (domain.ExecuteResult, error) {
	result := domain.ExecuteResult{Phase: domain.PhaseBillingCancellation}
	var failures []string

	for _, s := range env.Plan.ActiveSubscriptions() {
		active, err := p.billing.IsActive(ctx, s.ProviderID)
		if err != nil {
			failures = append(failures, s.ProviderID+": "+err.Error())
			result.Failed = append(result.Failed, s.ProviderID)
			p.markFailed(ctx, env.RunID, s, "verify: "+err.Error())
			continue
		}
		if !active {
			// Already gone provider-side, nothing to cancel
			result.Inactive = append(result.Inactive, s.ProviderID)
			p.markResolved(ctx, env.RunID, s)
			continue
		}

		if err := p.billing.CancelNow(ctx, s.ProviderID); err != nil {
			failures = append(failures, s.ProviderID+": "+err.Error())
			result.Failed = append(result.Failed, s.ProviderID)
			p.markFailed(ctx, env.RunID, s, "cancel: "+err.Error())
			continue
		}
		result.Cancelled = append(result.Cancelled, s.ProviderID)
		result.Add("subscription", 1)
		p.markResolved(ctx, env.RunID, s)
	}

	if len(failures) > 0 {
		return result, domain.NewPhaseError(result.Phase, domain.FailureBilling,
			fmt.Sprintf("%d subscription(s) not cancelled: %s", len(failures), strings.Join(failures, "; ")), nil)
	}
	return result, nil
}

func (p *BillingCancellation) markResolved(ctx context.Context, runID string, s domain.Subscription) {
	if err := p.tasks.MarkResolved(ctx, runID, s.SubscriptionID); err != nil {
		p.logger.Error("Failed to mark post-commit task resolved",
			"run_id", runID, "subscription_id", s.SubscriptionID, "error", err)
	}
}

func (p *BillingCancellation) markFailed(ctx context.Context, runID string, s domain.Subscription, reason string) {
	if err := p.tasks.MarkFailed(ctx, runID, s.SubscriptionID, reason); err != nil {
		p.logger.Error("Failed to mark post-commit task failed",
			"run_id", runID, "subscription_id", s.SubscriptionID, "error", err)
	}
}
