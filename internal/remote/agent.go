// Package remote issues irreversible teardown commands to hosts over SSH.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aidar/tenant-purge/internal/config"
	"github.com/aidar/tenant-purge/internal/domain"
)

// maxOutput caps command output carried in errors
const maxOutput = 512

// Runner executes a command on a remote host
type Runner interface {
	Run(ctx context.Context, host, cmd string, args []string) (string, error)
}

// Agent renders teardown commands from templates and runs them on the
// target's host. It never retries: a failed call may still have acted.
type Agent struct {
	runner   Runner
	commands config.TeardownConfig
	logger   *slog.Logger
}

// NewAgent creates a new Agent
func NewAgent(runner Runner, commands config.TeardownConfig, logger *slog.Logger) *Agent {
	return &Agent{
		runner:   runner,
		commands: commands,
		logger:   logger,
	}
}

// NewSSHAgent creates an Agent that reaches hosts over SSH
func NewSSHAgent(cfg config.SSHConfig, commands config.TeardownConfig, logger *slog.Logger) *Agent {
	return NewAgent(NewSSHRunner(cfg), commands, logger)
}

// Teardown destroys target on its host
func (a *Agent) Teardown(ctx context.Context, target domain.TeardownTarget) error {
	if target.HostAddress == "" {
		return fmt.Errorf("teardown %s: host has no address", target.Ref())
	}

	cmd, args, err := a.command(target)
	if err != nil {
		return err
	}

	out, err := a.runner.Run(ctx, target.HostAddress, cmd, args)
	if err != nil {
		a.logger.Error("Remote teardown failed",
			"target", target.Ref(), "command", joinCommand(cmd, args), "error", err)
		if out = truncate(strings.TrimSpace(out)); out != "" {
			return fmt.Errorf("teardown %s: %w (output: %s)", target.Ref(), err, out)
		}
		return fmt.Errorf("teardown %s: %w", target.Ref(), err)
	}

	a.logger.Info("Remote teardown issued", "target", target.Ref())
	return nil
}

func (a *Agent) command(target domain.TeardownTarget) (string, []string, error) {
	var tpl config.CommandTemplate
	switch target.Kind {
	case domain.TargetHost:
		tpl = a.commands.Host
	case domain.TargetResource:
		var ok bool
		if tpl, ok = a.commands.ForResource(target.ResourceKind); !ok {
			return "", nil, fmt.Errorf("teardown %s: no command for resource kind %q", target.Ref(), target.ResourceKind)
		}
	default:
		return "", nil, fmt.Errorf("teardown %s: unknown target kind %q", target.Ref(), target.Kind)
	}
	if tpl.Command == "" {
		return "", nil, fmt.Errorf("teardown %s: empty command template", target.Ref())
	}

	cmd, args := tpl.Render(target.ID, target.Name, target.ResourceKind)
	return cmd, args, nil
}

func truncate(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	return s[:maxOutput] + "..."
}
