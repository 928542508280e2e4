package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/steveyegge/rum/internal/controller"
	"github.com/steveyegge/rum/internal/exitcode"
	"github.com/steveyegge/rum/internal/run"
)

// reportedError is returned when the details were already printed and
// only the exit code is left to deliver.
type reportedError struct {
	code int
}

func (e *reportedError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// codedError attaches the exit code matching err's cause. Errors that
// already carry a code are returned unchanged.
func codedError(err error) error {
	if err == nil {
		return nil
	}
	var coded *exitcode.Error
	if errors.As(err, &coded) {
		return err
	}
	return exitcode.New(codeFor(err), err.Error())
}

func codeFor(err error) int {
	switch {
	case errors.Is(err, run.ErrNotFound):
		return exitcode.ErrRunNotFound
	case errors.Is(err, run.ErrAmbiguous):
		return exitcode.ErrAmbiguous
	case errors.Is(err, run.ErrEmptyPrefix), errors.Is(err, run.ErrEmptyCommand):
		return exitcode.ErrUsage
	case errors.Is(err, run.ErrStillRunning):
		return exitcode.ErrStillRunning
	case errors.Is(err, controller.ErrNotRunning):
		return exitcode.ErrNotRunning
	case errors.Is(err, os.ErrPermission):
		return exitcode.ErrPermission
	}
	return exitcode.ErrGeneral
}
