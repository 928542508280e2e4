package run

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, err)
	return s
}

func TestNewStore_RelativeRootIsAbsolute(t *testing.T) {
	dir := t.TempDir()
	prevWD, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prevWD) })

	s, err := NewStore("runs")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(s.Root()))

	want, err := filepath.Abs(filepath.Join(dir, "runs"))
	require.NoError(t, err)
	assert.Equal(t, want, s.Root())
}

func TestStore_CreateAndRead(t *testing.T) {
	s := newTestStore(t)
	cmd := []string{"sh", "-c", "echo 'a b' && exit 3"}

	r, err := s.Create(cmd, CreateOptions{Label: "build", Dir: "/tmp"})
	require.NoError(t, err)

	_, err = uuid.Parse(r.ID)
	assert.NoError(t, err, "id should be a canonical uuid")
	assert.Equal(t, StateRunning, r.Status.State)
	assert.Nil(t, r.FinishedAt)

	got, err := s.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, cmd, got.Command)
	assert.Equal(t, "build", got.Label)
	assert.Equal(t, "/tmp", got.Dir)
	assert.Equal(t, Running(), got.Status)
	assert.Equal(t, 0, got.PID)
	assert.WithinDuration(t, time.Now(), got.StartedAt, 5*time.Second)

	// Output channel exists and is empty from the start.
	info, err := os.Stat(s.OutputPath(r.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestStore_CreateCopiesCommand(t *testing.T) {
	s := newTestStore(t)
	cmd := []string{"echo", "hi"}

	r, err := s.Create(cmd, CreateOptions{})
	require.NoError(t, err)
	cmd[1] = "changed"

	got, err := s.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "hi"}, got.Command)
}

func TestStore_CreateEmptyCommand(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(nil, CreateOptions{})
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestStore_CreateUniqueIDs(t *testing.T) {
	s := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		r, err := s.Create([]string{"true"}, CreateOptions{})
		require.NoError(t, err)
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
	}
}

func TestStore_ReadNotFound(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{uuid.NewString(), "", "../etc", ".trash-x"} {
		_, err := s.Read(id)
		assert.ErrorIs(t, err, ErrNotFound, "id %q", id)
	}
}

func TestStore_ReadCorrupt(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create([]string{"true"}, CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.RecordPath(r.ID), []byte("{not json"), 0644))

	_, err = s.Read(r.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStore_Attach(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create([]string{"sleep", "1"}, CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Attach(r.ID, 4242))

	got, err := s.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 4242, got.PID)

	err = s.Attach(r.ID, 4343)
	assert.ErrorIs(t, err, ErrAlreadyAttached)

	assert.Error(t, s.Attach(r.ID, 0))
}

func TestStore_UpdateOnce(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create([]string{"false"}, CreateOptions{})
	require.NoError(t, err)

	finished := time.Now()
	require.NoError(t, s.Update(r.ID, Exited(7), finished))

	got, err := s.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, Exited(7), got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished.UTC()))

	// A second report must not change anything.
	err = s.Update(r.ID, Signaled(int(syscall.SIGKILL)), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	again, err := s.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Status, again.Status)
	assert.True(t, got.FinishedAt.Equal(*again.FinishedAt))

	assert.ErrorIs(t, s.Attach(r.ID, 10), ErrAlreadyTerminal)
}

func TestStore_UpdateRejectsNonTerminal(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create([]string{"true"}, CreateOptions{})
	require.NoError(t, err)

	assert.Error(t, s.Update(r.ID, Running(), time.Now()))
	assert.Error(t, s.Update(r.ID, Status{State: StateSignaled}, time.Now()))

	got, err := s.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got.Status.State)
}

func TestStore_UpdateSpawnFailure(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create([]string{"/nonexistent/binary"}, CreateOptions{})
	require.NoError(t, err)

	cause := os.ErrNotExist
	require.NoError(t, s.UpdateSpawnFailure(r.ID, Exited(ExitNotFound), time.Now(), cause))

	got, err := s.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, Exited(ExitNotFound), got.Status)
	assert.Equal(t, cause.Error(), got.SpawnError)
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)

	runs, problems, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Empty(t, problems)

	a, err := s.Create([]string{"a"}, CreateOptions{})
	require.NoError(t, err)
	b, err := s.Create([]string{"b"}, CreateOptions{})
	require.NoError(t, err)

	// Leftovers of interrupted operations are not runs.
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), trashPrefix+"junk"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), stagingPrefix+"fresh"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "stray-file"), []byte("x"), 0644))

	runs, problems, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, problems)

	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	_, err = os.Stat(filepath.Join(s.Root(), trashPrefix+"junk"))
	assert.True(t, os.IsNotExist(err), "trash leftovers are swept")
	_, err = os.Stat(filepath.Join(s.Root(), stagingPrefix+"fresh"))
	assert.NoError(t, err, "recent staging directories are kept")
}

func TestStore_ListReportsCorruptRecords(t *testing.T) {
	s := newTestStore(t)
	good, err := s.Create([]string{"good"}, CreateOptions{})
	require.NoError(t, err)
	bad, err := s.Create([]string{"bad"}, CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.RecordPath(bad.ID), []byte(`{"id":"`+bad.ID+`"}`), 0644))

	runs, problems, err := s.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, good.ID, runs[0].ID)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Error(), bad.ID)
}

func TestStore_DeleteRunning(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create([]string{"sleep", "100"}, CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.OutputPath(r.ID), []byte("partial"), 0644))

	err = s.Delete(r.ID)
	assert.ErrorIs(t, err, ErrStillRunning)

	got, err := s.Read(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got.Status.State)
	data, err := os.ReadFile(s.OutputPath(r.ID))
	require.NoError(t, err)
	assert.Equal(t, "partial", string(data))
}

func TestStore_DeleteTerminal(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create([]string{"true"}, CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Update(r.ID, Exited(0), time.Now()))

	require.NoError(t, s.Delete(r.ID))

	_, err = s.Read(r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = os.Stat(s.Dir(r.ID))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(s.Root(), trashPrefix+r.ID))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, s.Delete(r.ID), ErrNotFound)
}

func TestStore_ForceDelete(t *testing.T) {
	s := newTestStore(t)
	r, err := s.Create([]string{"sleep", "100"}, CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, s.ForceDelete(r.ID))
	_, err = s.Read(r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
		valid    bool
		str      string
	}{
		{Running(), false, true, "Running"},
		{Exited(0), true, true, "Exited(0)"},
		{Exited(7), true, true, "Exited(7)"},
		{Signaled(int(syscall.SIGINT)), true, true, "Signaled(SIGINT)"},
		{Status{State: StateExited, Code: -1}, true, false, "Exited(-1)"},
		{Status{State: "bogus"}, false, false, "Unknown(bogus)"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.valid, tt.status.Valid())
			assert.Equal(t, tt.str, tt.status.String())
		})
	}
}
