// Package interrupt turns SIGINT/SIGTERM into a cancelled run context, a
// synchronous lease release and an immediate exit. It never reports: state
// may be mid-phase when the signal arrives.
package interrupt

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Install cancels the returned context on the first SIGINT or SIGTERM, then
// calls release and exits with 128+signal. stop uninstalls the handler.
// A nil exit means os.Exit.
func Install(parent context.Context, release func(), exit func(code int)) (context.Context, func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, stop := install(parent, sigChan, release, exit)
	return ctx, func() {
		signal.Stop(sigChan)
		stop()
	}
}

func install(parent context.Context, sigs <-chan os.Signal, release func(), exit func(int)) (context.Context, func()) {
	if exit == nil {
		exit = os.Exit
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			cancel()
			if release != nil {
				release()
			}
			exit(ExitCode(sig))
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
}

// ExitCode returns the conventional exit code for sig: 130 for SIGINT,
// 143 for SIGTERM
func ExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}
