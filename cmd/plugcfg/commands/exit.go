package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/resolve"
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
	ExitResolve = 3
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

func usagef(format string, args ...any) error {
	return usageError(errors.Newf(format, args...))
}

// ExitCode maps an error returned by the root command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	var resolveErr *errors.ResolveError
	if errors.As(err, &resolveErr) {
		return ExitResolve
	}
	// cobra reports unknown commands and flags as plain errors
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "flag needs an argument", "invalid argument"} {
		if strings.HasPrefix(msg, prefix) {
			return ExitUsage
		}
	}
	return ExitFailure
}

// ReportError writes err to w: resolve diagnostics one per line, anything
// else as "Error: ..." followed by its hints.
func ReportError(w io.Writer, err error) {
	var resolveErr *errors.ResolveError
	if errors.As(err, &resolveErr) {
		fmt.Fprintf(w, "resolve failed with %d problem(s):\n", len(resolveErr.Diagnostics))
		for _, line := range resolveErr.Lines() {
			fmt.Fprintf(w, "  %s\n", line)
		}
		return
	}
	fmt.Fprintf(w, "Error: %s\n", resolve.Describe(err))
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}
