package lockmgr

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyReleased is returned by Lock.Release when called more than once.
var ErrAlreadyReleased = errors.New("lock already released")

// ErrUpgrade is returned when an owner holding only the read side asks for the write side.
var ErrUpgrade = errors.New("lock upgrade from read to write is not supported")

// LockTimeoutError is returned when a lock could not be acquired in time.
type LockTimeoutError struct {
	Name    string
	Write   bool
	Timeout time.Duration
	Err     error // context error if the caller's context ended first
}

func (e *LockTimeoutError) Error() string {
	mode := "read"
	if e.Write {
		mode = "write"
	}
	if e.Err != nil {
		return fmt.Sprintf("could not acquire %s lock %q: %v", mode, printable(e.Name), e.Err)
	}
	return fmt.Sprintf("could not acquire %s lock %q within %s", mode, printable(e.Name), e.Timeout)
}

func (e *LockTimeoutError) Unwrap() error { return e.Err }

func printable(name string) string {
	if name == ClusterLock {
		return "<cluster>"
	}
	return name
}
