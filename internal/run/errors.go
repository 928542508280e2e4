package run

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means no stored run matches the id or prefix.
	ErrNotFound = errors.New("run not found")

	// ErrAmbiguous means a prefix matches more than one run.
	ErrAmbiguous = errors.New("ambiguous run prefix")

	// ErrEmptyPrefix is returned when resolving an empty selector.
	ErrEmptyPrefix = errors.New("empty run prefix")

	// ErrEmptyCommand is returned when creating a run without a command.
	ErrEmptyCommand = errors.New("empty command")

	// ErrStillRunning is returned when deleting a run that has not finished.
	ErrStillRunning = errors.New("run is still running")

	// ErrAlreadyTerminal is returned when a finished run is updated again.
	ErrAlreadyTerminal = errors.New("run already finished")

	// ErrAlreadyAttached is returned when a run's pid is recorded twice.
	ErrAlreadyAttached = errors.New("run already has a process")
)

// AmbiguousError reports every run id matching a prefix.
type AmbiguousError struct {
	Prefix     string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("prefix %q matches %d runs: %s",
		e.Prefix, len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// Is makes errors.Is(err, ErrAmbiguous) match.
func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}
