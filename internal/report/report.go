// Package report renders the consistency report of a deletion run and the
// phase previews shown at confirmation gates. Rendering never mutates state.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/saga"
)

// maxEntities caps entity listings in previews
const maxEntities = 20

// Render writes the consistency report for r to w
func Render(w io.Writer, r *saga.Result) {
	fmt.Fprintf(w, "Deletion run %s for principal %s: %s\n\n", r.RunID, r.PrincipalID, outcomeLabel(r.Outcome))

	if r.RollbackErr != nil {
		fmt.Fprintln(w, text.FgHiRed.Sprint("ROLLBACK FAILED: there is no safety net, local store state is unknown"))
		fmt.Fprintf(w, "  %v\n", r.RollbackErr)
		fmt.Fprintln(w, "  Inspect the database before any retry.")
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, ledgerTable(r).Render())
	fmt.Fprintln(w)

	if r.Failure != nil {
		fmt.Fprintf(w, "Failure in %s (%s): %s\n", r.Failure.Phase, r.Failure.Class, r.Failure.Message)
		if r.Failure.Err != nil {
			fmt.Fprintf(w, "  cause: %v\n", r.Failure.Err)
		}
		fmt.Fprintln(w)
	}

	if r.Outcome == domain.OutcomeDryRun {
		for _, p := range r.Previews {
			RenderPreview(w, p)
		}
	}

	if len(r.EdgeCases) > 0 {
		fmt.Fprintln(w, "Teams that need manual resolution:")
		fmt.Fprintln(w, edgeCaseTable(r.EdgeCases).Render())
		fmt.Fprintln(w)
	}

	if r.Ledger.Committed() {
		renderCommitted(w, r)
	} else {
		renderNotCommitted(w, r)
	}

	fmt.Fprintln(w, "Next step: "+nextStep(r))
}

func outcomeLabel(o domain.Outcome) string {
	switch o {
	case domain.OutcomeSuccess, domain.OutcomeDryRun:
		return text.FgHiGreen.Sprint(o)
	case domain.OutcomeFailedPreCommit, domain.OutcomeFailedPostCommit:
		return text.FgHiRed.Sprint(o)
	default:
		return text.FgHiYellow.Sprint(o)
	}
}

func ledgerTable(r *saga.Result) *table.Table {
	tw := &table.Table{}
	tw.AppendHeader(table.Row{"#", "Phase", "Completed", "Detail"})
	for i, entry := range r.Ledger.Entries() {
		done := text.FgYellow.Sprint("no")
		if entry.Done {
			done = text.FgGreen.Sprint("yes")
		}
		detail := ""
		if exec, ok := r.Execution(entry.Phase); ok {
			detail = formatCounts(exec.Counts)
		}
		tw.AppendRow(table.Row{i + 1, string(entry.Phase), done, detail})
	}

	committed := text.FgYellow.Sprint("no")
	if r.Ledger.Committed() {
		committed = text.FgGreen.Sprint("yes")
	}
	tw.AppendFooter(table.Row{"", "Committed", committed, ""})
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignCenter},
	})
	return tw
}

func renderCommitted(w io.Writer, r *saga.Result) {
	fmt.Fprintln(w, "Local deletions are committed and permanent.")
	if r.Plan != nil {
		fmt.Fprintln(w, "Permanently removed:")
		fmt.Fprintf(w, "  principal     %s (%s)\n", r.Plan.Principal.PrincipalID, r.Plan.Principal.Email)
		for _, tp := range r.Plan.Teams {
			switch tp.Disposition {
			case domain.DispositionDelete:
				fmt.Fprintf(w, "  team          %s\n", tp.Team.TeamName)
			case domain.DispositionTransfer:
				line := fmt.Sprintf("  ownership     %s -> %s", tp.Team.TeamName, tp.Successor)
				if tp.Note != "" {
					line += " (" + tp.Note + ")"
				}
				fmt.Fprintln(w, line)
			case domain.DispositionLeave:
				fmt.Fprintf(w, "  membership    %s\n", tp.Team.TeamName)
			}
		}
		fmt.Fprintf(w, "  hosts         %d\n", len(r.Plan.Hosts))
		fmt.Fprintf(w, "  resources     %d\n", len(r.Plan.Resources))
	}
	if exec, ok := r.Execution(domain.PhaseBillingCancellation); ok {
		for _, id := range exec.Cancelled {
			fmt.Fprintf(w, "  subscription  %s cancelled\n", id)
		}
		for _, id := range exec.Inactive {
			fmt.Fprintf(w, "  subscription  %s was already inactive\n", id)
		}
	}
	fmt.Fprintln(w)

	if len(r.Residual) > 0 {
		fmt.Fprintln(w, text.FgHiYellow.Sprint("Needs manual attention: subscriptions still active at the billing provider"))
		tw := &table.Table{}
		tw.AppendHeader(table.Row{"Provider subscription", "Team", "Action"})
		for _, s := range r.Residual {
			tw.AppendRow(table.Row{s.ProviderID, s.TeamID, "cancel immediately in the billing provider"})
		}
		tw.SetStyle(table.StyleRounded)
		fmt.Fprintln(w, tw.Render())
		fmt.Fprintln(w)
	}
}

func renderNotCommitted(w io.Writer, r *saga.Result) {
	switch {
	case r.RolledBack:
		fmt.Fprintln(w, "Local changes were rolled back; the store is as it was before the run.")
	case r.RollbackErr == nil:
		fmt.Fprintln(w, "No local changes were made.")
	}

	issued, uncertain := r.RemoteIssued(), r.RemoteUncertain()
	if len(issued)+len(uncertain) > 0 {
		fmt.Fprintln(w, text.FgHiYellow.Sprint("WARNING: remote teardown is not covered by the rollback."))
		fmt.Fprintln(w, "Inspect these hosts for orphaned teardown effects:")
		for _, ref := range issued {
			fmt.Fprintf(w, "  issued     %s\n", ref)
		}
		for _, ref := range uncertain {
			fmt.Fprintf(w, "  uncertain  %s (call failed, the host may have acted)\n", ref)
		}
	}
	fmt.Fprintln(w)
}

func edgeCaseTable(cases []domain.EdgeCase) *table.Table {
	tw := &table.Table{}
	tw.AppendHeader(table.Row{"Team", "Members", "Resources", "Subscription", "Reason"})
	for _, ec := range cases {
		members := make([]string, 0, len(ec.Members))
		for _, m := range ec.Members {
			state := "active"
			if !m.IsActive {
				state = "inactive"
			}
			members = append(members, fmt.Sprintf("%s (%s, %s)", m.PrincipalID, m.Role, state))
		}
		tw.AppendRow(table.Row{
			fmt.Sprintf("%s\n%s", ec.TeamName, ec.TeamID),
			strings.Join(members, "\n"),
			ec.ResourceCount,
			ec.SubscriptionID,
			ec.Reason,
		})
	}
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 5, WidthMax: 40},
	})
	return tw
}

func nextStep(r *saga.Result) string {
	switch r.Outcome {
	case domain.OutcomeSuccess:
		if len(r.Residual) > 0 {
			return "cancel the residual subscriptions listed above; they stay pending in `purgectl tasks`."
		}
		return "nothing, the principal is fully removed."
	case domain.OutcomeDryRun:
		return "nothing was changed; rerun without --dry-run to delete."
	case domain.OutcomeCancelledByOperator:
		return fmt.Sprintf("cancelled before %s; rerun when ready.", r.CancelledAt)
	case domain.OutcomeAbortedOnEdgeCase:
		return "transfer ownership or cancel the subscription of each listed team by hand, then rerun."
	case domain.OutcomeFailedPreCommit:
		if r.RollbackErr != nil {
			return "verify the database by hand before retrying."
		}
		return "fix the cause above and rerun; nothing local was deleted."
	case domain.OutcomeFailedPostCommit:
		return "data is already gone; cancel the residual subscriptions by hand. Do not rerun the deletion."
	case domain.OutcomeNotFound:
		return "check the principal id; nothing was done."
	case domain.OutcomeContention:
		return "another deletion of this principal is running; wait for it or for its lease to expire."
	default:
		return "inspect the log for run " + r.RunID + "."
	}
}

// RenderPreview writes what a phase is about to do
func RenderPreview(w io.Writer, p domain.PreviewResult) {
	title := fmt.Sprintf("%s: %s", p.Phase, p.Summary)
	if p.Irreversible {
		title += " " + text.FgHiRed.Sprint("[irreversible]")
	}
	fmt.Fprintln(w, title)

	if len(p.Counts) > 0 {
		fmt.Fprintf(w, "  %s\n", formatCounts(p.Counts))
	}
	for i, e := range p.Entities {
		if i == maxEntities {
			fmt.Fprintf(w, "  ... and %d more\n", len(p.Entities)-maxEntities)
			break
		}
		fmt.Fprintf(w, "  - %s\n", e)
	}
	fmt.Fprintln(w)
}

func formatCounts(counts []domain.EntityCount) string {
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s: %d", c.Kind, c.Count))
	}
	return strings.Join(parts, ", ")
}
