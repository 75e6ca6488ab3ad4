package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/operation"
	"github.com/pithecene-io/sluice/types"
)

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// configError reports a flag or config file problem with exit code 2.
func configError(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), operation.ExitCodeConfigError)
}

// outcomeExit maps an operation outcome to the process exit.
// Success returns nil so the action completes normally.
func outcomeExit(outcome types.Outcome) error {
	code := operation.ExitCode(outcome.Status)
	if code == operation.ExitCodeSuccess {
		return nil
	}
	return cli.Exit(fmt.Sprintf("%s: %s", outcome.Status, outcome.Message), code)
}
