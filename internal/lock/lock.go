// Package lock provides the cross-process liveness lock held by a run's
// supervisor. A supervisor holds an exclusive flock on its run's lock file
// for as long as it lives; the kernel drops the lock when the process dies,
// so "nobody holds the lock" is a reliable sign that the supervisor is gone.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Hold acquires an exclusive lock on path, blocking until it is available.
// Returns a release function that unlocks and closes the lock file.
func Hold(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fl := flock.New(path)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquiring flock: %w", err)
	}
	return func() { _ = fl.Unlock() }, nil
}

// HoldContext is Hold with a deadline, polling every retry interval.
func HoldContext(ctx context.Context, path string, retry time.Duration) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, retry)
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s is held by another process", path)
	}
	return func() { _ = fl.Unlock() }, nil
}

// TryHold takes the lock at path only if it is free. ok is false when
// another process holds it.
func TryHold(path string) (release func(), ok bool, err error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring flock: %w", err)
	}
	if !locked {
		return nil, false, nil
	}
	return func() { _ = fl.Unlock() }, true, nil
}

// Held reports whether some process currently holds the lock at path.
// A missing lock file means nobody ever held it. The probe takes the lock
// for an instant when it is free; a concurrent Hold simply waits for it.
func Held(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking lock file: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("probing flock: %w", err)
	}
	if !locked {
		return true, nil
	}
	_ = fl.Unlock()
	return false, nil
}
