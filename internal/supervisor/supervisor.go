// Package supervisor owns a run's child process. One supervisor process is
// started per run, detached from the user's terminal; it starts the command,
// waits for it, and records how it ended. Nothing else ever reaps the child.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/steveyegge/rum/internal/lock"
	"github.com/steveyegge/rum/internal/run"
	"github.com/steveyegge/rum/internal/runlog"
)

// ReadyLine is written to the readiness pipe once the run's record reflects
// the started (or failed) child.
const ReadyLine = "ok\n"

// DefaultLockTimeout bounds how long a supervisor waits for its run's
// liveness lock. The lock is normally free; a holder means another
// supervisor already owns the run.
const DefaultLockTimeout = 2 * time.Second

// Supervisor runs one run's command to completion.
type Supervisor struct {
	Store *run.Store
	Log   logrus.FieldLogger

	// Ready receives ReadyLine once the child has been started or its spawn
	// failure recorded. It may be nil.
	Ready io.Writer

	// LockTimeout overrides DefaultLockTimeout.
	LockTimeout time.Duration

	now func() time.Time
}

// New returns a supervisor for runs in store.
func New(store *run.Store, log logrus.FieldLogger, ready io.Writer) *Supervisor {
	return &Supervisor{Store: store, Log: log, Ready: ready, now: time.Now}
}

// Supervise starts the command of run id and blocks until it terminates,
// then records the terminal status exactly once and freezes the output.
//
// A command that cannot be started is not an error: it is recorded as
// Exited(127) or Exited(126). Errors are returned only when the supervisor
// itself cannot do its job.
func (s *Supervisor) Supervise(ctx context.Context, id string) (run.Status, error) {
	log := s.Log.WithField("run", id)

	timeout := s.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	release, err := lock.HoldContext(lockCtx, s.Store.LockPath(id), 20*time.Millisecond)
	cancel()
	if err != nil {
		return run.Status{}, fmt.Errorf("acquiring liveness lock: %w", err)
	}
	defer release()

	r, err := s.Store.Read(id)
	if err != nil {
		return run.Status{}, err
	}
	if r.Status.IsTerminal() {
		return r.Status, fmt.Errorf("supervise %s: %w", id, run.ErrAlreadyTerminal)
	}
	if r.PID != 0 {
		return r.Status, fmt.Errorf("supervise %s: %w", id, run.ErrAlreadyAttached)
	}

	out, err := runlog.OpenAppend(s.Store.OutputPath(id))
	if err != nil {
		status := run.Exited(run.ExitNotExecutable)
		if uerr := s.Store.UpdateSpawnFailure(id, status, s.now(), err); uerr != nil {
			log.WithError(uerr).Error("Recording output failure")
		}
		s.signalReady()
		return status, err
	}
	defer out.Close()

	cmd := exec.Command(r.Command[0], r.Command[1:]...)
	cmd.Dir = r.Dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	log.WithFields(logrus.Fields{
		"command": r.Command,
		"dir":     r.Dir,
	}).Info("Starting command")

	if err := cmd.Start(); err != nil {
		status := SpawnStatus(err)
		log.WithError(err).WithField("status", status.String()).Warn("Command could not be started")

		fmt.Fprintf(out, "rum: %v\n", err)
		if uerr := s.Store.UpdateSpawnFailure(id, status, s.now(), err); uerr != nil {
			log.WithError(uerr).Error("Recording spawn failure")
		}
		s.freeze(out, log)
		s.signalReady()
		return status, nil
	}

	pid := cmd.Process.Pid
	log = log.WithField("pid", pid)
	if err := s.Store.Attach(id, pid); err != nil {
		// The child runs regardless; without a pid it just cannot be signalled.
		log.WithError(err).Error("Recording child pid")
	}
	s.signalReady()

	waitErr := cmd.Wait()
	finished := s.now()
	status, err := ExitStatus(cmd.ProcessState, waitErr)
	if err != nil {
		log.WithError(err).Error("Waiting for command")
		status = run.Exited(run.ExitNotExecutable)
	}
	log.WithField("status", status.String()).Info("Command finished")

	if err := s.Store.Update(id, status, finished); err != nil {
		if errors.Is(err, run.ErrAlreadyTerminal) {
			log.WithError(err).Warn("Run was already finished")
		} else {
			return status, err
		}
	}
	s.freeze(out, log)
	return status, nil
}

// Abandon records cause as the outcome of a run whose command was never
// started, so the run does not stay Running with nobody to finish it.
// Runs that already have a child, are finished, or are still owned by a
// live supervisor are left alone. It reports whether the record changed.
func Abandon(store *run.Store, id string, cause error) (bool, error) {
	r, err := store.Read(id)
	if err != nil {
		return false, err
	}
	if r.Status.IsTerminal() || r.PID != 0 {
		return false, nil
	}

	release, ok, err := lock.TryHold(store.LockPath(id))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer release()

	// Re-read under the lock; a supervisor may have attached meanwhile.
	if r, err = store.Read(id); err != nil {
		return false, err
	}
	if r.Status.IsTerminal() || r.PID != 0 {
		return false, nil
	}
	if cause == nil {
		cause = errors.New("supervisor failed before starting the command")
	}
	if err := store.UpdateSpawnFailure(id, run.Exited(run.ExitNotExecutable), time.Now(), cause); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Supervisor) freeze(out *os.File, log logrus.FieldLogger) {
	_ = out.Sync()
	if err := runlog.Freeze(out.Name()); err != nil {
		log.WithError(err).Warn("Freezing output")
	}
}

func (s *Supervisor) signalReady() {
	if s.Ready == nil {
		return
	}
	_, _ = io.WriteString(s.Ready, ReadyLine)
	if c, ok := s.Ready.(io.Closer); ok {
		_ = c.Close()
	}
	s.Ready = nil
}

// SpawnStatus maps a failure to start a command to the exit status a shell
// would report: 127 when the program does not exist, 126 otherwise.
func SpawnStatus(err error) run.Status {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return run.Exited(run.ExitNotFound)
	default:
		return run.Exited(run.ExitNotExecutable)
	}
}

// ExitStatus classifies a finished child from its process state.
func ExitStatus(ps *os.ProcessState, waitErr error) (run.Status, error) {
	if ps == nil {
		if waitErr == nil {
			waitErr = errors.New("no process state")
		}
		return run.Status{}, waitErr
	}
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok {
		return run.Exited(ps.ExitCode()), nil
	}
	return run.FromWaitStatus(ws), nil
}
