package supervisor

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/steveyegge/rum/internal/lock"
	"github.com/steveyegge/rum/internal/run"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *bytes.Buffer) {
	t.Helper()
	store, err := run.NewStore(filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	ready := &bytes.Buffer{}
	return New(store, log, ready), ready
}

func supervise(t *testing.T, s *Supervisor, command []string, dir string) (*run.Run, run.Status) {
	t.Helper()
	r, err := s.Store.Create(command, run.CreateOptions{Dir: dir})
	require.NoError(t, err)

	status, err := s.Supervise(context.Background(), r.ID)
	require.NoError(t, err)

	got, err := s.Store.Read(r.ID)
	require.NoError(t, err)
	return got, status
}

func readOutput(t *testing.T, s *Supervisor, id string) string {
	t.Helper()
	data, err := os.ReadFile(s.Store.OutputPath(id))
	require.NoError(t, err)
	return string(data)
}

func TestSupervise_ExitCode(t *testing.T) {
	s, ready := newTestSupervisor(t)

	r, status := supervise(t, s, []string{"sh", "-c", "echo out; echo err >&2; exit 7"}, "")

	assert.Equal(t, run.Exited(7), status)
	assert.Equal(t, run.Exited(7), r.Status)
	assert.NotZero(t, r.PID)
	require.NotNil(t, r.FinishedAt)
	assert.False(t, r.FinishedAt.Before(r.StartedAt))
	assert.Equal(t, ReadyLine, ready.String())

	out := readOutput(t, s, r.ID)
	assert.Contains(t, out, "out\n")
	assert.Contains(t, out, "err\n")
}

func TestSupervise_Success(t *testing.T) {
	s, _ := newTestSupervisor(t)

	r, status := supervise(t, s, []string{"echo", "hello world"}, "")
	assert.True(t, status.Succeeded())
	assert.Equal(t, "hello world\n", readOutput(t, s, r.ID))
}

func TestSupervise_Signaled(t *testing.T) {
	s, _ := newTestSupervisor(t)

	r, status := supervise(t, s, []string{"sh", "-c", "kill -TERM $$"}, "")
	assert.Equal(t, run.Signaled(int(syscall.SIGTERM)), status)
	assert.Equal(t, "Signaled(SIGTERM)", r.Status.String())
}

func TestSupervise_OutputFrozen(t *testing.T) {
	s, _ := newTestSupervisor(t)

	r, _ := supervise(t, s, []string{"true"}, "")

	info, err := os.Stat(s.Store.OutputPath(r.ID))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0444), info.Mode().Perm())
}

func TestSupervise_LockReleased(t *testing.T) {
	s, _ := newTestSupervisor(t)

	r, _ := supervise(t, s, []string{"true"}, "")

	held, err := lock.Held(s.Store.LockPath(r.ID))
	require.NoError(t, err)
	assert.False(t, held)
}

func TestSupervise_WorkingDir(t *testing.T) {
	s, _ := newTestSupervisor(t)
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	r, _ := supervise(t, s, []string{"pwd"}, dir)
	assert.Equal(t, dir, strings.TrimSpace(readOutput(t, s, r.ID)))
}

func TestSupervise_ArgumentsNotShellInterpreted(t *testing.T) {
	s, _ := newTestSupervisor(t)

	r, _ := supervise(t, s, []string{"echo", "$HOME", "a;b", "*"}, "")
	assert.Equal(t, "$HOME a;b *\n", readOutput(t, s, r.ID))
}

func TestSupervise_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		command []string
	}{
		{"path", []string{"/nonexistent/definitely-not-here"}},
		{"lookup", []string{"rum-test-no-such-program"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ready := newTestSupervisor(t)

			r, status := supervise(t, s, tt.command, "")
			assert.Equal(t, run.Exited(run.ExitNotFound), status)
			assert.Equal(t, run.Exited(run.ExitNotFound), r.Status)
			assert.NotEmpty(t, r.SpawnError)
			assert.Equal(t, 0, r.PID)
			assert.Equal(t, ReadyLine, ready.String())
			assert.Contains(t, readOutput(t, s, r.ID), "rum:")
		})
	}
}

func TestSupervise_NotExecutable(t *testing.T) {
	s, _ := newTestSupervisor(t)
	script := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho hi\n"), 0644))

	r, status := supervise(t, s, []string{script}, "")
	assert.Equal(t, run.Exited(run.ExitNotExecutable), status)
	assert.NotEmpty(t, r.SpawnError)
}

func TestSupervise_RefusesFinishedRun(t *testing.T) {
	s, _ := newTestSupervisor(t)
	r, err := s.Store.Create([]string{"true"}, run.CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Store.Update(r.ID, run.Exited(0), time.Now()))

	_, err = s.Supervise(context.Background(), r.ID)
	assert.ErrorIs(t, err, run.ErrAlreadyTerminal)
}

func TestSupervise_RefusesSecondSupervisor(t *testing.T) {
	s, _ := newTestSupervisor(t)
	s.LockTimeout = 100 * time.Millisecond

	r, err := s.Store.Create([]string{"true"}, run.CreateOptions{})
	require.NoError(t, err)

	release, err := lock.Hold(s.Store.LockPath(r.ID))
	require.NoError(t, err)
	defer release()

	_, err = s.Supervise(context.Background(), r.ID)
	assert.Error(t, err)

	got, err := s.Store.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, run.StateRunning, got.Status.State, "record untouched")
}

func TestSupervise_HoldsLockWhileRunning(t *testing.T) {
	s, ready := newTestSupervisor(t)
	s.Ready = nil

	r, err := s.Store.Create([]string{"sleep", "30"}, run.CreateOptions{})
	require.NoError(t, err)

	done := make(chan run.Status, 1)
	go func() {
		status, _ := s.Supervise(context.Background(), r.ID)
		done <- status
	}()

	var pid int
	require.Eventually(t, func() bool {
		got, err := s.Store.Read(r.ID)
		if err != nil {
			return false
		}
		pid = got.PID
		return pid != 0
	}, 5*time.Second, 10*time.Millisecond)

	held, err := lock.Held(s.Store.LockPath(r.ID))
	require.NoError(t, err)
	assert.True(t, held)
	assert.Empty(t, ready.String())

	// The child leads its own process group.
	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid)

	require.NoError(t, syscall.Kill(-pid, syscall.SIGINT))

	select {
	case status := <-done:
		assert.Equal(t, run.Signaled(int(syscall.SIGINT)), status)
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not finish")
	}
}

func TestSpawnStatus(t *testing.T) {
	assert.Equal(t, run.Exited(127), SpawnStatus(os.ErrNotExist))
	assert.Equal(t, run.Exited(126), SpawnStatus(os.ErrPermission))
	assert.Equal(t, run.Exited(126), SpawnStatus(syscall.ENOEXEC))
}

func TestParseArgs(t *testing.T) {
	inv, err := ParseArgs(Args("/tmp/runs", "abc", ReadyFD))
	require.NoError(t, err)
	assert.Equal(t, Invocation{RunsDir: "/tmp/runs", ReadyFD: 3, ID: "abc"}, inv)

	_, err = ParseArgs([]string{"--runs-dir", "/tmp/runs"})
	assert.Error(t, err)
	_, err = ParseArgs([]string{"abc"})
	assert.Error(t, err)
	_, err = ParseArgs([]string{"--bogus", "abc"})
	assert.Error(t, err)
}

func TestAbandon_RecordsUnstartedRun(t *testing.T) {
	s, _ := newTestSupervisor(t)
	r, err := s.Store.Create([]string{"true"}, run.CreateOptions{})
	require.NoError(t, err)

	changed, err := Abandon(s.Store, r.ID, assert.AnError)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := s.Store.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Exited(run.ExitNotExecutable), got.Status)
	assert.Equal(t, assert.AnError.Error(), got.SpawnError)
	assert.NotNil(t, got.FinishedAt)

	changed, err = Abandon(s.Store, r.ID, assert.AnError)
	require.NoError(t, err)
	assert.False(t, changed, "finished runs are left alone")
}

func TestAbandon_LeavesOwnedRunAlone(t *testing.T) {
	s, _ := newTestSupervisor(t)
	r, err := s.Store.Create([]string{"true"}, run.CreateOptions{})
	require.NoError(t, err)

	release, err := lock.Hold(s.Store.LockPath(r.ID))
	require.NoError(t, err)
	defer release()

	changed, err := Abandon(s.Store, r.ID, assert.AnError)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := s.Store.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, run.StateRunning, got.Status.State)
}

func TestAbandon_LeavesAttachedRunAlone(t *testing.T) {
	s, _ := newTestSupervisor(t)
	r, err := s.Store.Create([]string{"sleep", "1"}, run.CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Store.Attach(r.ID, os.Getpid()))

	changed, err := Abandon(s.Store, r.ID, assert.AnError)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSupervisorMain_LockHeldLeavesRunning(t *testing.T) {
	s, _ := newTestSupervisor(t)
	r, err := s.Store.Create([]string{"true"}, run.CreateOptions{})
	require.NoError(t, err)

	release, err := lock.Hold(s.Store.LockPath(r.ID))
	require.NoError(t, err)
	defer release()

	err = Main(Invocation{RunsDir: s.Store.Root(), ReadyFD: -1, ID: r.ID})
	assert.Error(t, err)

	got, err := s.Store.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, run.StateRunning, got.Status.State, "another supervisor owns the run")
}
