// Command taskhist reads the Windows Task Scheduler operational log and the
// registered task list, classifies both, and optionally archives and serves
// them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/patrickspencer/taskhist/internal/eventlog"
)

// Exit statuses.
const (
	exitOK        = 0
	exitFailure   = 1
	exitAccess    = 2
	exitMalformed = 3
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(&app{})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "taskhist: %v\n", err)
	}
	return exitCode(err)
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var accessErr *eventlog.LogAccessError
	var malformedErr *eventlog.MalformedRecordError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &accessErr):
		return exitAccess
	case errors.As(err, &malformedErr):
		return exitMalformed
	default:
		return exitFailure
	}
}
