// Package safefs bounds filesystem calls on removable or network-backed
// storage (SD cards, FUSE mounts) so a hung device cannot stall the caller.
package safefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

var (
	osStat = os.Stat
	osOpen = os.Open
)

// ErrTimeout classifies filesystem operations that did not complete in time.
var ErrTimeout = errors.New("filesystem operation timed out")

// TimeoutError is returned when a filesystem operation exceeds its allowed duration.
// The underlying kernel call is not cancelled; the caller only stops waiting.
type TimeoutError struct {
	Op      string
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return "filesystem operation timed out"
	}
	if e.Timeout > 0 {
		return fmt.Sprintf("%s %s: timeout after %s", e.Op, e.Path, e.Timeout)
	}
	return fmt.Sprintf("%s %s: timeout", e.Op, e.Path)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

func effectiveTimeout(ctx context.Context, timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0
		}
		if remaining < timeout {
			return remaining
		}
	}
	return timeout
}

type result[T any] struct {
	val T
	err error
}

// bounded runs fn in its own goroutine and waits at most timeout for it.
// A value produced after the caller gave up is passed to release.
func bounded[T any](ctx context.Context, op, path string, timeout time.Duration, fn func() (T, error), release func(T)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	timeout = effectiveTimeout(ctx, timeout)
	if timeout <= 0 {
		return fn()
	}

	ch := make(chan result[T], 1)
	go func() {
		v, err := fn()
		ch <- result[T]{val: v, err: err}
	}()

	abandon := func() {
		if release == nil {
			return
		}
		go func() {
			if r := <-ch; r.err == nil {
				release(r.val)
			}
		}()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		abandon()
		return zero, ctx.Err()
	case <-timer.C:
		abandon()
		return zero, &TimeoutError{Op: op, Path: path, Timeout: timeout}
	}
}

// Stat is os.Stat bounded by timeout (0 = unbounded).
func Stat(ctx context.Context, path string, timeout time.Duration) (fs.FileInfo, error) {
	return bounded(ctx, "stat", path, timeout, func() (fs.FileInfo, error) {
		return osStat(path)
	}, nil)
}

// Open is os.Open bounded by timeout. A file opened after the deadline is closed.
func Open(ctx context.Context, path string, timeout time.Duration) (*os.File, error) {
	return bounded(ctx, "open", path, timeout, func() (*os.File, error) {
		return osOpen(path)
	}, func(f *os.File) {
		if f != nil {
			_ = f.Close()
		}
	})
}
