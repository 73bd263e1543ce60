// Package confirm implements the operator confirmation gates of a deletion run.
package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/report"
	"github.com/aidar/tenant-purge/internal/saga"
)

// Terminal asks the operator on a terminal, showing the preview of the
// phase behind each gate first
type Terminal struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

// NewTerminal creates a Terminal reading answers from in. Without a
// terminal on in every gate fails with domain.ErrNotInteractive.
func NewTerminal(in *os.File, out io.Writer) *Terminal {
	return &Terminal{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: isTerminal(in),
	}
}

// NewReaderTerminal creates a Terminal over an arbitrary reader, treated as
// interactive
func NewReaderTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: true,
	}
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Confirm renders the gate preview and waits for an answer. An empty answer
// takes the gate default; anything else unrecognized asks again.
func (t *Terminal) Confirm(ctx context.Context, gate saga.Gate) (bool, error) {
	if !t.interactive {
		return false, domain.ErrNotInteractive
	}

	report.RenderPreview(t.out, gate.Preview)
	hint := "[y/N]"
	if gate.DefaultYes {
		hint = "[Y/n]"
	}
	if gate.Commit {
		fmt.Fprintln(t.out, "This is the point of no return for local data.")
	}

	for {
		fmt.Fprintf(t.out, "%s %s: ", gate.Prompt, hint)
		line, err := t.readLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			return gate.DefaultYes, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// readLine returns as soon as ctx is done, leaving the pending read behind
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := t.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return "", fmt.Errorf("failed to read answer: %w", a.err)
		}
		return a.line, nil
	}
}

// Always approves every gate, for unattended runs
type Always struct{}

func (Always) Confirm(context.Context, saga.Gate) (bool, error) {
	return true, nil
}
