package runner

import (
	"context"
	"errors"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/auth"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/capture"
	"github.com/cantalupo555/backoffice-csv-exporter/internal/locator"
)

// ErrExhausted means every surface and strategy was tried without a valid
// export.
var ErrExhausted = errors.New("export not obtained: all surfaces and strategies exhausted")

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitSession  = 2
	ExitWatchdog = 124
)

// ExitCode maps the error returned by Run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, auth.ErrSessionUnavailable):
		return ExitSession
	case errors.Is(err, context.DeadlineExceeded):
		return ExitWatchdog
	default:
		return ExitFailure
	}
}

// expected reports failures that are part of normal ladder progress.
func expected(err error) bool {
	return errors.Is(err, locator.ErrNotFound) ||
		errors.Is(err, capture.ErrNotCaptured) ||
		errors.Is(err, artifact.ErrRejected)
}
