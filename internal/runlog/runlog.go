// Package runlog implements a run's output channel: a single append-only
// file written by the run's supervisor and read by any number of viewers.
//
// Readers only ever see the file grow, so they need no coordination with
// the writer beyond noticing new bytes and noticing that the run finished.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval bounds how long a follower sleeps between checks
// when no file event arrives.
const DefaultPollInterval = 250 * time.Millisecond

const readChunk = 32 * 1024

// OpenAppend opens the output file for the supervisor. The same file is
// handed to the child as stdout and stderr, so both streams interleave in
// the order the child wrote them.
func OpenAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening output for append: %w", err)
	}
	return f, nil
}

// Freeze drops write permission on a finished run's output.
func Freeze(path string) error {
	if err := os.Chmod(path, 0444); err != nil {
		return fmt.Errorf("freezing output: %w", err)
	}
	return nil
}

// Copy writes everything currently in the output file to w.
func Copy(path string, w io.Writer) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening output: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("copying output: %w", err)
	}
	return n, nil
}

// DoneFunc reports whether the run that owns the output has finished.
type DoneFunc func() (bool, error)

// FollowOptions tunes Follow.
type FollowOptions struct {
	// PollInterval is the fallback wakeup when no file event arrives.
	// Zero means DefaultPollInterval.
	PollInterval time.Duration
}

// Follow replays the output from offset 0 and then keeps copying newly
// appended bytes to w until done reports the run finished and the file
// has been drained, or ctx is cancelled. Cancellation is not an error.
//
// done is checked before the final drain, so bytes written just before the
// run finished are never lost.
func Follow(ctx context.Context, path string, w io.Writer, done DoneFunc, opts FollowOptions) error {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening output: %w", err)
	}
	defer f.Close()

	// Without a watcher the poll interval alone drives progress.
	var events <-chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(path); err == nil {
			events = watcher.Events
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	buf := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := drain(f, w, buf); err != nil {
			return err
		}

		finished, err := done()
		if err != nil {
			return fmt.Errorf("checking run status: %w", err)
		}
		if finished {
			return drain(f, w, buf)
		}

		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case <-ticker.C:
		}
	}
}

// drain copies from the current offset to EOF.
func drain(f *os.File, w io.Writer, buf []byte) error {
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("writing output: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading output: %w", err)
		}
	}
}
