// Package testutil holds helpers shared by tests that start real runs.
package testutil

import (
	"testing"
	"time"

	"github.com/steveyegge/rum/internal/run"
)

// WaitForTerminal polls the store until run id is terminal and returns the
// final record. The test fails if that takes longer than timeout.
func WaitForTerminal(t *testing.T, store *run.Store, id string, timeout time.Duration) *run.Run {
	t.Helper()
	deadline := time.Now().Add(timeout)

	var last *run.Run
	for time.Now().Before(deadline) {
		r, err := store.Read(id)
		if err == nil {
			last = r
			if r.Status.IsTerminal() {
				return r
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	LogDiagnostic(t, store, id, last)
	t.Fatalf("run %s did not finish within %s", id, timeout)
	return nil
}

// LogDiagnostic logs what is known about a run that misbehaved.
func LogDiagnostic(t *testing.T, store *run.Store, id string, r *run.Run) {
	t.Helper()
	if r == nil {
		t.Logf("Run %s: no readable record", id)
		return
	}
	t.Logf("Run: %s, Status: %s, PID: %d", id, r.Status, r.PID)
	for _, path := range []string{store.OutputPath(id), store.LogPath(id)} {
		data, err := readTail(path, 2048)
		if err != nil {
			t.Logf("%s: %v", path, err)
			continue
		}
		t.Logf("%s:\n%s", path, data)
	}
}
