// Package run defines the run record and the on-disk registry of runs.
//
// Every run lives in its own directory under the runs directory, named by
// the run's id. The directory holds the JSON record, the output log, and
// the supervisor's liveness lock and log.
package run

import (
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// State is the lifecycle state stored in a run record.
type State string

const (
	StateRunning  State = "running"
	StateExited   State = "exited"
	StateSignaled State = "signaled"
)

// Synthetic exit codes recorded when the command could not be started.
// They follow the shell conventions for "not executable" and "not found".
const (
	ExitNotExecutable = 126
	ExitNotFound      = 127
)

// Status is a run's state plus the outcome once terminal.
// Code is meaningful only for StateExited, Signal only for StateSignaled.
type Status struct {
	State  State `json:"state"`
	Code   int   `json:"code,omitempty"`
	Signal int   `json:"signal,omitempty"`
}

// Running is the initial status of every run.
func Running() Status { return Status{State: StateRunning} }

// Exited returns the terminal status of a process that exited normally.
func Exited(code int) Status { return Status{State: StateExited, Code: code} }

// Signaled returns the terminal status of a process killed by a signal.
func Signaled(sig int) Status { return Status{State: StateSignaled, Signal: sig} }

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s.State == StateExited || s.State == StateSignaled
}

// Succeeded reports Exited(0).
func (s Status) Succeeded() bool {
	return s.State == StateExited && s.Code == 0
}

// Valid reports whether the status is one of the known shapes.
func (s Status) Valid() bool {
	switch s.State {
	case StateRunning:
		return s.Code == 0 && s.Signal == 0
	case StateExited:
		return s.Code >= 0 && s.Signal == 0
	case StateSignaled:
		return s.Signal > 0 && s.Code == 0
	}
	return false
}

// String renders the status the way info shows it: Running, Exited(7),
// Signaled(SIGINT).
func (s Status) String() string {
	switch s.State {
	case StateRunning:
		return "Running"
	case StateExited:
		return fmt.Sprintf("Exited(%d)", s.Code)
	case StateSignaled:
		return fmt.Sprintf("Signaled(%s)", SignalName(s.Signal))
	}
	return fmt.Sprintf("Unknown(%s)", s.State)
}

// FromWaitStatus classifies how a child process terminated.
func FromWaitStatus(ws syscall.WaitStatus) Status {
	if ws.Signaled() {
		return Signaled(int(ws.Signal()))
	}
	return Exited(ws.ExitStatus())
}

// SignalName returns the conventional name of a signal number, e.g. SIGINT.
func SignalName(sig int) string {
	if name := unix.SignalName(syscall.Signal(sig)); name != "" {
		return name
	}
	return fmt.Sprintf("signal %d", sig)
}

// Run is one managed execution of a user command.
type Run struct {
	ID         string     `json:"id"`
	Command    []string   `json:"command"`
	Label      string     `json:"label,omitempty"`
	Dir        string     `json:"dir,omitempty"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	PID        int        `json:"pid"`
	SpawnError string     `json:"spawn_error,omitempty"`
}

// Duration returns how long the run took, or how long it has been running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// ShortID returns the first n characters of the id.
func (r *Run) ShortID(n int) string {
	if len(r.ID) <= n {
		return r.ID
	}
	return r.ID[:n]
}

// validate checks the record invariants that hold for every stored run.
func (r *Run) validate() error {
	if r.ID == "" {
		return fmt.Errorf("record has no id")
	}
	if len(r.Command) == 0 {
		return fmt.Errorf("record %s has no command", r.ID)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("record %s has invalid status %+v", r.ID, r.Status)
	}
	if r.Status.IsTerminal() != (r.FinishedAt != nil) {
		return fmt.Errorf("record %s: finished_at inconsistent with status %s", r.ID, r.Status)
	}
	return nil
}
