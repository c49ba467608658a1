package rsh

import (
	"errors"
	"fmt"

	"github.com/dsh-project/dsh/internal/pipeline"
)

// Status is the outcome category of a command line or a session.
type Status int

const (
	StatusOK Status = iota
	StatusNoCommands
	StatusTooManyStages
	StatusMalformed
	StatusResource
	StatusExecFailed
	StatusExit
	StatusStopServer
	StatusClient
	StatusServer
	StatusCommunication
)

var statusNames = [...]string{
	StatusOK:            "ok",
	StatusNoCommands:    "no-commands",
	StatusTooManyStages: "too-many-stages",
	StatusMalformed:     "malformed",
	StatusResource:      "resource",
	StatusExecFailed:    "exec-failed",
	StatusExit:          "exit",
	StatusStopServer:    "stop-server",
	StatusClient:        "client",
	StatusServer:        "server",
	StatusCommunication: "communication",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// StatusOf classifies err.
func StatusOf(err error) Status {
	var resErr *pipeline.ResourceError
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, pipeline.ErrNoCommands):
		return StatusNoCommands
	case errors.Is(err, pipeline.ErrTooManyStages):
		return StatusTooManyStages
	case errors.Is(err, pipeline.ErrMalformed):
		return StatusMalformed
	case errors.As(err, &resErr):
		return StatusResource
	case errors.Is(err, ErrConnectionClosed):
		return StatusCommunication
	default:
		return StatusExecFailed
	}
}

// Message renders err as the line shown to the user, newline included.
func Message(err error) string {
	switch StatusOf(err) {
	case StatusNoCommands:
		return "warning: " + pipeline.ErrNoCommands.Error() + "\n"
	case StatusTooManyStages:
		return "error: " + pipeline.ErrTooManyStages.Error() + "\n"
	case StatusMalformed:
		return "error: " + err.Error() + "\n"
	default:
		return "error: command execution failed\n"
	}
}
