// Package controller implements the user-facing run operations (list,
// info, signal, view, remove) on top of the run store, the output channel,
// and the supervisors' liveness locks.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"syscall"
	"time"

	"github.com/steveyegge/rum/internal/lock"
	"github.com/steveyegge/rum/internal/procinfo"
	"github.com/steveyegge/rum/internal/run"
	"github.com/steveyegge/rum/internal/runlog"
	"golang.org/x/sys/unix"
)

// ErrNotRunning is returned when signalling a run that has no live process.
var ErrNotRunning = errors.New("run is not running")

// Health is a run's liveness as observed now. It is derived on every read
// and never stored.
type Health string

const (
	// HealthRunning means the record says running and its supervisor is alive.
	HealthRunning Health = "running"

	// HealthStale means the record says running but no supervisor holds the
	// run's liveness lock, so nothing will ever record how it ended.
	HealthStale Health = "stale"

	// HealthTerminal means the run finished and its status is final.
	HealthTerminal Health = "terminal"
)

// Entry is a run together with its observed health.
type Entry struct {
	Run    *run.Run
	Health Health

	// Process is a snapshot of the child, filled in by Info for live runs.
	Process *procinfo.Snapshot
}

// Options configures a Controller.
type Options struct {
	// PollInterval is the follow fallback wakeup for View.
	PollInterval time.Duration
}

// Controller runs operations against one run store.
type Controller struct {
	store *run.Store
	opts  Options
}

// New returns a controller for store.
func New(store *run.Store, opts Options) *Controller {
	return &Controller{store: store, opts: opts}
}

// Store returns the underlying run store.
func (c *Controller) Store() *run.Store { return c.store }

// Entry pairs r with its current health.
func (c *Controller) Entry(r *run.Run) Entry {
	return Entry{Run: r, Health: c.health(r)}
}

func (c *Controller) health(r *run.Run) Health {
	if r.Status.IsTerminal() {
		return HealthTerminal
	}
	held, err := lock.Held(c.store.LockPath(r.ID))
	if err != nil || held {
		return HealthRunning
	}
	return HealthStale
}

// lookup resolves prefix and loads the run.
func (c *Controller) lookup(prefix string) (Entry, error) {
	id, err := c.store.Resolve(prefix)
	if err != nil {
		return Entry{}, err
	}
	r, err := c.store.Read(id)
	if err != nil {
		return Entry{}, err
	}
	return c.Entry(r), nil
}

// List returns every run, newest first. Records that could not be read are
// returned separately in problems.
func (c *Controller) List(ctx context.Context) (entries []Entry, problems []error, err error) {
	runs, problems, err := c.store.List()
	if err != nil {
		return nil, nil, err
	}

	entries = make([]Entry, 0, len(runs))
	for _, r := range runs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		entries = append(entries, c.Entry(r))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Run, entries[j].Run
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.After(b.StartedAt)
		}
		return a.ID < b.ID
	})
	return entries, problems, nil
}

// Info returns the run matching prefix. For a live run with a known child
// the entry carries a process snapshot when one can be taken.
func (c *Controller) Info(ctx context.Context, prefix string) (*Entry, error) {
	e, err := c.lookup(prefix)
	if err != nil {
		return nil, err
	}
	if e.Health == HealthRunning && e.Run.PID > 0 {
		if snap, err := procinfo.Inspect(ctx, e.Run.PID); err == nil {
			e.Process = snap
		}
	}
	return &e, nil
}

// SignalKind names the signals a user can send to a run.
type SignalKind string

const (
	Interrupt SignalKind = "interrupt"
	Terminate SignalKind = "terminate"
	Kill      SignalKind = "kill"
)

// Signal returns the OS signal for the kind.
func (k SignalKind) Signal() (syscall.Signal, error) {
	switch k {
	case Interrupt:
		return unix.SIGINT, nil
	case Terminate:
		return unix.SIGTERM, nil
	case Kill:
		return unix.SIGKILL, nil
	}
	return 0, fmt.Errorf("unknown signal kind %q", k)
}

// Signal sends kind to the run's whole process group, so helpers the
// command spawned receive it too. The terminal status is recorded by the
// supervisor once the child actually exits, not here.
func (c *Controller) Signal(ctx context.Context, prefix string, kind SignalKind) (*Entry, error) {
	sig, err := kind.Signal()
	if err != nil {
		return nil, err
	}
	e, err := c.lookup(prefix)
	if err != nil {
		return nil, err
	}

	r := e.Run
	switch {
	case e.Health == HealthTerminal:
		return &e, fmt.Errorf("run %s is %s: %w", r.ID, r.Status, ErrNotRunning)
	case r.PID <= 0:
		return &e, fmt.Errorf("run %s has no process: %w", r.ID, ErrNotRunning)
	case e.Health == HealthStale && !procinfo.SameProcess(ctx, r.PID, r.StartedAt):
		return &e, fmt.Errorf("run %s: process %d is gone: %w", r.ID, r.PID, ErrNotRunning)
	}

	if err := unix.Kill(-r.PID, sig); err != nil {
		switch {
		case errors.Is(err, unix.ESRCH):
			return &e, fmt.Errorf("run %s: process group %d is gone: %w", r.ID, r.PID, ErrNotRunning)
		case errors.Is(err, unix.EPERM):
			return &e, fmt.Errorf("signalling run %s: %w", r.ID, os.ErrPermission)
		}
		return &e, fmt.Errorf("signalling run %s: %w", r.ID, err)
	}
	return &e, nil
}

// View writes the run's output to w from the beginning. With follow set it
// keeps streaming until the run finishes or ctx is cancelled; cancelling
// only stops the viewer.
func (c *Controller) View(ctx context.Context, prefix string, w io.Writer, follow bool) error {
	e, err := c.lookup(prefix)
	if err != nil {
		return err
	}
	id := e.Run.ID
	path := c.store.OutputPath(id)

	if !follow {
		_, err := runlog.Copy(path, w)
		return err
	}

	done := func() (bool, error) {
		r, err := c.store.Read(id)
		if err != nil {
			if errors.Is(err, run.ErrNotFound) {
				return true, nil
			}
			return false, err
		}
		// A stale run has no writer left that would ever finish it.
		return c.health(r) != HealthRunning, nil
	}
	return runlog.Follow(ctx, path, w, done, runlog.FollowOptions{PollInterval: c.opts.PollInterval})
}

// RemoveResult reports what happened to one remove target.
type RemoveResult struct {
	Prefix string
	Entry  *Entry

	// Removed is set when the run's record and output were deleted.
	Removed bool

	// Declined is set when the confirmation callback said no.
	Declined bool

	Err error
}

// ConfirmFunc decides whether a resolved run should be deleted.
type ConfirmFunc func(Entry) bool

// Remove deletes the runs matching prefixes. Each prefix is handled on its
// own, in order: one failure does not stop the others, and a prefix given
// twice reports the second occurrence as not found. Running runs are never
// removed. A stale run is removed only once its process group is gone.
// A nil confirm accepts every run.
func (c *Controller) Remove(ctx context.Context, prefixes []string, confirm ConfirmFunc) []RemoveResult {
	results := make([]RemoveResult, 0, len(prefixes))
	for _, prefix := range prefixes {
		results = append(results, c.removeOne(ctx, prefix, confirm))
	}
	return results
}

func (c *Controller) removeOne(ctx context.Context, prefix string, confirm ConfirmFunc) RemoveResult {
	res := RemoveResult{Prefix: prefix}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	e, err := c.lookup(prefix)
	if err != nil {
		res.Err = err
		return res
	}
	res.Entry = &e
	r := e.Run

	switch e.Health {
	case HealthRunning:
		res.Err = fmt.Errorf("run %s: %w", r.ID, run.ErrStillRunning)
		return res
	case HealthStale:
		if r.PID > 0 && procinfo.GroupAlive(r.PID) && procinfo.SameProcess(ctx, r.PID, r.StartedAt) {
			res.Err = fmt.Errorf("run %s: supervisor is gone but process group %d is alive: %w",
				r.ID, r.PID, run.ErrStillRunning)
			return res
		}
	}

	if confirm != nil && !confirm(e) {
		res.Declined = true
		return res
	}

	if e.Health == HealthStale {
		err = c.store.ForceDelete(r.ID)
	} else {
		err = c.store.Delete(r.ID)
	}
	if err != nil {
		res.Err = err
		return res
	}
	res.Removed = true
	return res
}
