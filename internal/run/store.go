package run

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/rum/internal/util"
)

// File names inside a run directory.
const (
	RecordFile = "run.json"
	OutputFile = "output.log"
	LockFile   = "supervisor.lock"
	LogFile    = "supervisor.log"
)

// Hidden name prefixes used for directories that are being created or
// removed. Entries starting with "." are never treated as runs.
const (
	stagingPrefix = ".new-"
	trashPrefix   = ".trash-"
)

// A staging directory older than this was left by a launcher that crashed
// between building and publishing a run.
const staleStagingAge = 10 * time.Minute

// createAttempts bounds id collisions, which in practice never happen.
const createAttempts = 3

// Store is the on-disk registry of runs. It holds no in-memory state; every
// call goes to disk, so independent processes observe each other's writes.
//
// Writers are restricted per run: the launcher creates, the run's own
// supervisor attaches and updates once, and delete only succeeds once the
// run is terminal. That discipline keeps the store lock-free.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore opens (creating if needed) a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("runs directory not set")
	}
	// Supervisors run from "/", so the root must not depend on the caller's cwd.
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving runs directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating runs directory: %w", err)
	}
	return &Store{root: abs, now: time.Now}, nil
}

// Root returns the runs directory.
func (s *Store) Root() string { return s.root }

// Dir returns the directory holding everything for a run.
func (s *Store) Dir(id string) string { return filepath.Join(s.root, id) }

// RecordPath returns the path of a run's JSON record.
func (s *Store) RecordPath(id string) string { return filepath.Join(s.root, id, RecordFile) }

// OutputPath returns the path of a run's output channel.
func (s *Store) OutputPath(id string) string { return filepath.Join(s.root, id, OutputFile) }

// LockPath returns the path of a run's supervisor liveness lock.
func (s *Store) LockPath(id string) string { return filepath.Join(s.root, id, LockFile) }

// LogPath returns the path of a run's supervisor log.
func (s *Store) LogPath(id string) string { return filepath.Join(s.root, id, LogFile) }

// CreateOptions carries the optional fields of a new run.
type CreateOptions struct {
	Label string
	Dir   string
}

// Create allocates a fresh id and publishes a running record for command.
// The run directory is assembled under a hidden name and renamed into
// place, so other processes never see a run without its record.
func (s *Store) Create(command []string, opts CreateOptions) (*Run, error) {
	if len(command) == 0 {
		return nil, ErrEmptyCommand
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		id := uuid.NewString()
		if _, err := os.Lstat(s.Dir(id)); err == nil {
			continue
		}

		r := &Run{
			ID:        id,
			Command:   append([]string(nil), command...),
			Label:     opts.Label,
			Dir:       opts.Dir,
			Status:    Running(),
			StartedAt: s.now().UTC(),
		}
		if err := s.publish(r); err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("allocating run id: %d collisions", createAttempts)
}

func (s *Store) publish(r *Run) error {
	staging, err := os.MkdirTemp(s.root, stagingPrefix+r.ID+"-")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	if err := os.Chmod(staging, 0755); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("chmod staging directory: %w", err)
	}

	if err := util.AtomicWriteJSON(filepath.Join(staging, RecordFile), r); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("writing record: %w", err)
	}
	out, err := os.OpenFile(filepath.Join(staging, OutputFile), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("creating output file: %w", err)
	}
	out.Close()

	if err := os.Rename(staging, s.Dir(r.ID)); err != nil {
		_ = os.RemoveAll(staging)
		if errors.Is(err, os.ErrExist) || errors.Is(err, syscall.ENOTEMPTY) {
			return fmt.Errorf("run %s: %w", r.ID, os.ErrExist)
		}
		return fmt.Errorf("publishing run: %w", err)
	}
	return util.SyncDir(s.root)
}

// Read loads a run record by full id.
func (s *Store) Read(id string) (*Run, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	data, err := os.ReadFile(s.RecordPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}

	var r Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing record %s: %w", id, err)
	}
	if r.ID != id {
		return nil, fmt.Errorf("record %s claims id %q", id, r.ID)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Attach records the pid of a run's child process. It is accepted once,
// while the run is still running.
func (s *Store) Attach(id string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("attach %s: invalid pid %d", id, pid)
	}
	r, err := s.Read(id)
	if err != nil {
		return err
	}
	if r.Status.IsTerminal() {
		return fmt.Errorf("attach %s: %w", id, ErrAlreadyTerminal)
	}
	if r.PID != 0 {
		return fmt.Errorf("attach %s (pid %d): %w", id, r.PID, ErrAlreadyAttached)
	}
	r.PID = pid
	return s.write(r)
}

// Update performs the one-time transition of a run to a terminal status.
// A second call fails with ErrAlreadyTerminal and changes nothing.
func (s *Store) Update(id string, status Status, finishedAt time.Time) error {
	return s.finish(id, status, finishedAt, "")
}

// UpdateSpawnFailure records a command that could not be started.
func (s *Store) UpdateSpawnFailure(id string, status Status, finishedAt time.Time, cause error) error {
	msg := "spawn failed"
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(id, status, finishedAt, msg)
}

func (s *Store) finish(id string, status Status, finishedAt time.Time, spawnErr string) error {
	if !status.IsTerminal() || !status.Valid() {
		return fmt.Errorf("update %s: %s is not a terminal status", id, status)
	}
	r, err := s.Read(id)
	if err != nil {
		return err
	}
	if r.Status.IsTerminal() {
		return fmt.Errorf("update %s: %w", id, ErrAlreadyTerminal)
	}

	t := finishedAt.UTC()
	r.Status = status
	r.FinishedAt = &t
	r.SpawnError = spawnErr
	return s.write(r)
}

func (s *Store) write(r *Run) error {
	if err := r.validate(); err != nil {
		return err
	}
	if err := util.AtomicWriteJSON(s.RecordPath(r.ID), r); err != nil {
		return fmt.Errorf("writing record %s: %w", r.ID, err)
	}
	return nil
}

// IDs returns the ids of all published runs, in directory order.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading runs directory: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

// List loads every run record. Records that cannot be read are reported
// individually in problems instead of failing the whole listing; runs
// deleted while listing are skipped.
func (s *Store) List() (runs []*Run, problems []error, err error) {
	s.sweep()

	ids, err := s.IDs()
	if err != nil {
		return nil, nil, err
	}
	for _, id := range ids {
		r, err := s.Read(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			problems = append(problems, err)
			continue
		}
		runs = append(runs, r)
	}
	return runs, problems, nil
}

// Delete removes a finished run's record and output together.
func (s *Store) Delete(id string) error {
	r, err := s.Read(id)
	if err != nil {
		return err
	}
	if !r.Status.IsTerminal() {
		return fmt.Errorf("delete %s: %w", id, ErrStillRunning)
	}
	return s.remove(id)
}

// ForceDelete removes a run regardless of its status. Callers must have
// established that no supervisor or child process remains.
func (s *Store) ForceDelete(id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s.remove(id)
}

// remove renames the run directory to a hidden trash name first, so the
// run disappears from every reader in one step, then deletes the files.
func (s *Store) remove(id string) error {
	trash := filepath.Join(s.root, trashPrefix+id)
	_ = os.RemoveAll(trash)

	if err := os.Rename(s.Dir(id), trash); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("removing run %s: %w", id, err)
	}
	if err := util.SyncDir(s.root); err != nil {
		return err
	}
	if err := os.RemoveAll(trash); err != nil {
		return fmt.Errorf("cleaning up run %s: %w", id, err)
	}
	return nil
}

// sweep deletes leftovers of interrupted creates and deletes. Errors are
// ignored; the leftovers are invisible to readers either way.
func (s *Store) sweep() {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(s.root, name)
		switch {
		case strings.HasPrefix(name, trashPrefix):
			_ = os.RemoveAll(path)
		case strings.HasPrefix(name, stagingPrefix):
			info, err := e.Info()
			if err == nil && s.now().Sub(info.ModTime()) > staleStagingAge {
				_ = os.RemoveAll(path)
			}
		}
	}
}

func validID(id string) bool {
	return id != "" && !strings.HasPrefix(id, ".") && !strings.ContainsRune(id, os.PathSeparator)
}
