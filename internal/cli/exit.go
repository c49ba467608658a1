package cli

import (
	"errors"

	"github.com/dsh-project/dsh/internal/rsh"
)

// Process exit statuses.
const (
	exitOK            = 0
	exitFailure       = 1
	exitUsage         = 2
	exitCommunication = 3
	exitServer        = 4
)

// exitError carries the outcome category of a run whose status is not
// success. err may be nil when there is nothing left to report.
type exitError struct {
	status rsh.Status
	err    error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return e.status.String()
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// statusCode maps an outcome category to a process exit status.
func statusCode(st rsh.Status) int {
	switch st {
	case rsh.StatusOK, rsh.StatusExit, rsh.StatusStopServer:
		return exitOK
	case rsh.StatusClient:
		return exitUsage
	case rsh.StatusCommunication:
		return exitCommunication
	case rsh.StatusServer:
		return exitServer
	default:
		return exitFailure
	}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return statusCode(ee.status)
	}
	// Flag and argument errors from cobra.
	return exitUsage
}
