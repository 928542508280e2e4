// Package procinfo inspects live processes for run diagnostics: whether a
// run's child still exists and what it currently looks like.
package procinfo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// Snapshot is a point-in-time view of one process.
type Snapshot struct {
	PID        int
	Name       string
	RSS        uint64
	CPUPercent float64
	Threads    int32
	CreatedAt  time.Time
}

// Alive reports whether a process with this pid exists. Pids are recycled
// by the OS, so a true result is only a hint; see SameProcess.
func Alive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExistsWithContext(ctx, int32(pid))
	return err == nil && ok
}

// GroupAlive reports whether any process is left in the process group.
func GroupAlive(pgid int) bool {
	if pgid <= 0 {
		return false
	}
	err := unix.Kill(-pgid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Inspect collects a snapshot of pid. Fields the platform cannot report
// are left zero.
func Inspect(ctx context.Context, pid int) (*Snapshot, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("inspecting pid %d: %w", pid, err)
	}

	snap := &Snapshot{PID: pid}
	if name, err := p.NameWithContext(ctx); err == nil {
		snap.Name = name
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		snap.RSS = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		snap.CPUPercent = cpu
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		snap.Threads = n
	}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil {
		snap.CreatedAt = time.UnixMilli(ms)
	}
	return snap, nil
}

// createSlack absorbs clock granularity between the run record's start
// time and the kernel's process start time.
const createSlack = 2 * time.Second

// SameProcess reports whether pid is plausibly the process started for a
// run at startedAt, rather than an unrelated process that reused the pid.
// This is best effort: it only rules out processes started earlier.
func SameProcess(ctx context.Context, pid int, startedAt time.Time) bool {
	if !Alive(ctx, pid) {
		return false
	}
	snap, err := Inspect(ctx, pid)
	if err != nil || snap.CreatedAt.IsZero() {
		return true
	}
	return !snap.CreatedAt.Before(startedAt.Add(-createSlack))
}
