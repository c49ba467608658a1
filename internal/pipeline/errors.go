package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCommands is returned for a line with no non-empty segment.
	ErrNoCommands = errors.New("no commands provided")
	// ErrTooManyStages is returned when a line has more than MaxStages segments.
	ErrTooManyStages = fmt.Errorf("piping limited to %d commands", MaxStages)
	// ErrMalformed wraps every other parse failure.
	ErrMalformed = errors.New("malformed command")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
}

// SpawnError describes a stage that could not be started. It is reported on
// the stage's stderr and reflected in the stage status, never returned by Run.
type SpawnError struct {
	Stage int
	Name  string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("stage %s: %v", stageLabel(e.Stage, e.Name), e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ResourceError is returned when the executor cannot allocate the pipes a
// pipeline needs. No stage has been started when it is returned.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
