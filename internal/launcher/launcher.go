// Package launcher starts runs: it records a new run and hands it to a
// freshly spawned, fully detached supervisor process.
package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/steveyegge/rum/internal/run"
	"github.com/steveyegge/rum/internal/supervisor"
)

// DefaultReadyTimeout is how long Start waits for the supervisor.
const DefaultReadyTimeout = 10 * time.Second

// Options configures Start.
type Options struct {
	Label string

	// Dir is the command's working directory. Empty means the caller's.
	Dir string

	// Env is the environment for the supervisor and, through it, the
	// command. Nil means the caller's environment.
	Env []string

	// Executable is the program that implements supervisor.Command.
	// Empty means the running binary.
	Executable string

	ReadyTimeout time.Duration
}

// Start launches command as a new run and returns its record once the
// supervisor has started the child or recorded why it could not.
//
// The supervisor runs in its own session with no terminal, so closing the
// caller's terminal or killing the caller does not affect the run.
func Start(ctx context.Context, store *run.Store, command []string, opts Options) (*run.Run, error) {
	if len(command) == 0 {
		return nil, run.ErrEmptyCommand
	}

	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		dir = wd
	}

	exe := opts.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("finding rum executable: %w", err)
		}
		exe = self
	}

	timeout := opts.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	r, err := store.Create(command, run.CreateOptions{Label: opts.Label, Dir: dir})
	if err != nil {
		return nil, err
	}

	readyR, readyW, err := os.Pipe()
	if err != nil {
		_ = store.ForceDelete(r.ID)
		return nil, fmt.Errorf("creating readiness pipe: %w", err)
	}
	defer readyR.Close()

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		readyW.Close()
		_ = store.ForceDelete(r.ID)
		return nil, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	args := append([]string{supervisor.Command}, supervisor.Args(store.Root(), r.ID, supervisor.ReadyFD)...)
	cmd := exec.Command(exe, args...)
	cmd.Dir = "/"
	cmd.Env = opts.Env
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.ExtraFiles = []*os.File{readyW}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		readyW.Close()
		// No process exists for this run, so nothing would ever finish it.
		_ = store.ForceDelete(r.ID)
		return nil, fmt.Errorf("starting supervisor: %w", err)
	}
	readyW.Close()

	if err := waitReady(ctx, readyR, timeout); err != nil {
		if errors.Is(err, io.EOF) {
			// The supervisor exited without starting the command.
			_ = cmd.Wait()
			err := fmt.Errorf("run %s: supervisor exited before starting the command; see %s",
				r.ID, store.LogPath(r.ID))
			if _, aerr := supervisor.Abandon(store, r.ID, err); aerr != nil {
				return nil, fmt.Errorf("%w (recording failure: %v)", err, aerr)
			}
			return nil, err
		}
		_ = cmd.Process.Release()
		return nil, fmt.Errorf("run %s: waiting for supervisor: %w; see %s", r.ID, err, store.LogPath(r.ID))
	}
	_ = cmd.Process.Release()

	return store.Read(r.ID)
}

// waitReady blocks until the readiness line arrives, the pipe closes, the
// timeout expires, or ctx is done.
func waitReady(ctx context.Context, ready *os.File, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ready.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("setting readiness deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = ready.SetReadDeadline(time.Now())
	})
	defer stop()

	line, err := bufio.NewReader(ready).ReadString('\n')
	if line == supervisor.ReadyLine {
		return nil
	}
	if err == nil {
		return fmt.Errorf("unexpected readiness message %q", line)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("no readiness after %s", timeout)
	}
	return err
}
