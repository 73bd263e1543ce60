// Command purgectl deletes a principal and everything it owns, lists
// post-commit tasks and issues operator tokens for the admin API.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/juju/gnuflag"
	"github.com/mattn/go-isatty"

	"github.com/aidar/tenant-purge/internal/app"
	"github.com/aidar/tenant-purge/internal/config"
	"github.com/aidar/tenant-purge/internal/confirm"
	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/interrupt"
	"github.com/aidar/tenant-purge/internal/report"
	"github.com/aidar/tenant-purge/internal/saga"
)

const usage = `usage: purgectl <command> [flags] [args]

commands:
  delete <principal-id>   delete a principal and all owned data
  tasks                   list subscriptions that still need cancelling
  token <operator-id>     issue an admin API token for an operator
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return domain.ExitUsage
	}

	switch args[0] {
	case "delete":
		return runDelete(args[1:], stdout, stderr)
	case "tasks":
		return runTasks(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return domain.ExitSuccess
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return domain.ExitUsage
	}
}

type deleteFlags struct {
	dryRun      bool
	skipRemote  bool
	skipBilling bool
	yes         bool
	force       bool
}

func runDelete(args []string, stdout, stderr io.Writer) int {
	var flags deleteFlags
	f := gnuflag.NewFlagSet("delete", gnuflag.ContinueOnError)
	f.SetOutput(stderr)
	f.BoolVar(&flags.dryRun, "dry-run", false, "show what would be deleted without changing anything")
	f.BoolVar(&flags.skipRemote, "skip-remote-teardown", false, "do not issue remote teardown commands")
	f.BoolVar(&flags.skipBilling, "skip-billing-cancellation", false, "leave subscriptions for manual cancellation")
	f.BoolVar(&flags.yes, "yes", false, "approve every confirmation without prompting")
	f.BoolVar(&flags.yes, "y", false, "")
	f.BoolVar(&flags.force, "force", false, "take over a held deletion lease")
	if err := f.Parse(true, args); err != nil {
		return domain.ExitUsage
	}
	if f.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: purgectl delete [--dry-run] [--skip-remote-teardown] [--skip-billing-cancellation] [--yes] [--force] <principal-id>")
		return domain.ExitUsage
	}
	principalID := f.Arg(0)

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		text.DisableColors()
	}

	var confirmer saga.Confirmer = confirm.NewTerminal(os.Stdin, stdout)
	if flags.yes {
		confirmer = confirm.Always{}
	}

	application, code := initialize(stderr, app.WithConfirmer(confirmer))
	if application == nil {
		return code
	}
	defer application.Close()
	deletion := application.Deletion()

	// On interrupt the lease is released synchronously and the process exits;
	// the open transaction dies with the connection
	var held atomic.Pointer[domain.Lease]
	ctx, stop := interrupt.Install(context.Background(), func() {
		deletion.ReleaseLease(context.Background(), held.Load())
	}, nil)
	defer stop()

	result := deletion.Delete(ctx, principalID, saga.Options{
		DryRun:                  flags.dryRun,
		SkipRemoteTeardown:      flags.skipRemote,
		SkipBillingCancellation: flags.skipBilling,
		AutoConfirm:             flags.yes,
		Force:                   flags.force,
		RequestedBy:             currentUser(),
		OnLeaseAcquired:         func(l *domain.Lease) { held.Store(l) },
	})
	held.Store(nil)

	fmt.Fprintln(stdout)
	report.Render(stdout, result)

	return domain.MapOutcomeToExitCode(result.Outcome)
}

func runTasks(args []string, stdout, stderr io.Writer) int {
	f := gnuflag.NewFlagSet("tasks", gnuflag.ContinueOnError)
	f.SetOutput(stderr)
	if err := f.Parse(true, args); err != nil || f.NArg() != 0 {
		fmt.Fprintln(stderr, "usage: purgectl tasks")
		return domain.ExitUsage
	}

	application, code := initialize(stderr)
	if application == nil {
		return code
	}
	defer application.Close()

	tasks, err := application.Deletion().PendingTasks(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "failed to list tasks: %v\n", err)
		return domain.ExitFailedPreCommit
	}
	if len(tasks) == 0 {
		fmt.Fprintln(stdout, "No post-commit tasks need attention.")
		return domain.ExitSuccess
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Task", "Run", "Principal", "Subscription", "Provider ID", "Status", "Last error", "Created"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.TaskID, t.RunID, t.PrincipalID, t.SubscriptionID, t.ProviderID, t.Status, t.LastError, t.CreatedAt.Format("2006-01-02 15:04")})
	}
	fmt.Fprintln(stdout, tw.Render())
	return domain.ExitSuccess
}

func runToken(args []string, stdout, stderr io.Writer) int {
	f := gnuflag.NewFlagSet("token", gnuflag.ContinueOnError)
	f.SetOutput(stderr)
	if err := f.Parse(true, args); err != nil || f.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: purgectl token <operator-id>")
		return domain.ExitUsage
	}

	application, code := initialize(stderr)
	if application == nil {
		return code
	}
	defer application.Close()

	token, err := application.Auth().Login(context.Background(), f.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "failed to issue token: %v\n", err)
		if domain.MapErrorToCode(err) == domain.CodeNotFound {
			return domain.ExitNotFound
		}
		return domain.ExitUsage
	}
	fmt.Fprintln(stdout, token)
	return domain.ExitSuccess
}

// initialize loads config and connects the application. Logs go to stderr so
// stdout carries only prompts and the report.
func initialize(stderr io.Writer, opts ...app.Option) (*app.App, int) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return nil, domain.ExitUsage
	}

	logger := slog.New(slog.NewJSONHandler(stderr, nil))
	application, err := app.New(cfg, append([]app.Option{app.WithLogger(logger)}, opts...)...)
	if err != nil {
		fmt.Fprintf(stderr, "failed to create application: %v\n", err)
		return nil, domain.ExitUsage
	}
	if err := application.Initialize(context.Background()); err != nil {
		fmt.Fprintf(stderr, "failed to initialize: %v\n", err)
		return nil, domain.ExitUsage
	}
	return application, domain.ExitSuccess
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	host, _ := os.Hostname()
	return host
}
