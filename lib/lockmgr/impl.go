package lockmgr

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("lockmgr")

type lockMgrImpl struct {
	locks   *xsync.MapOf[string, *namedLock]
	timeout time.Duration
}

// NewLockManager creates a lock manager. Acquisitions give up after timeout
// (0 = wait until the caller's context is done).
func NewLockManager(timeout time.Duration) ILockManager {
	return &lockMgrImpl{
		locks:   xsync.NewMapOf[string, *namedLock](),
		timeout: timeout,
	}
}

// namedLock is the state of one named read/write lock. It is removed from the
// manager once nobody holds or waits for it.
type namedLock struct {
	mu             sync.Mutex
	writer         Owner         // owner of the write side, "" if none
	writeHolds     int           // nested write acquisitions of writer
	readers        map[Owner]int // read acquisitions per owner
	readHolds      int           // sum of readers
	writersWaiting int           // blocks new readers so writers cannot starve
	changed        chan struct{} // closed and replaced on every release
	refs           int           // holds plus pending acquisitions
	removed        bool          // deleted from the manager, callers must look up the name again
}

func newNamedLock() *namedLock {
	return &namedLock{
		readers: make(map[Owner]int),
		changed: make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr/interface.go)
// --------------------------------------------------------------------------

func (m *lockMgrImpl) AcquireRead(ctx context.Context, owner Owner, name string) (Lock, error) {
	return m.acquire(ctx, owner, name, false)
}

func (m *lockMgrImpl) AcquireWrite(ctx context.Context, owner Owner, name string) (Lock, error) {
	return m.acquire(ctx, owner, name, true)
}

// --------------------------------------------------------------------------
// Internal
// --------------------------------------------------------------------------

func (m *lockMgrImpl) acquire(ctx context.Context, owner Owner, name string, write bool) (Lock, error) {
	nl := m.enter(name)

	var timeout <-chan time.Time
	if m.timeout > 0 {
		timer := time.NewTimer(m.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	waiting := false
	for {
		nl.mu.Lock()
		granted, err := nl.tryAcquire(owner, write)
		if granted {
			if waiting {
				nl.writersWaiting--
			}
			nl.mu.Unlock()
			return &heldLock{m: m, nl: nl, name: name, owner: owner, write: write}, nil
		}
		if err == nil && write && !waiting {
			nl.writersWaiting++
			waiting = true
		}
		changed := nl.changed
		nl.mu.Unlock()

		if err == nil {
			select {
			case <-changed:
				continue
			case <-ctx.Done():
				err = &LockTimeoutError{Name: name, Write: write, Timeout: m.timeout, Err: ctx.Err()}
			case <-timeout:
				log.Warningf("lock %q: %s timed out after %s", printable(name), mode(write), m.timeout)
				err = &LockTimeoutError{Name: name, Write: write, Timeout: m.timeout}
			}
		}
		m.giveUp(nl, name, waiting)
		return nil, err
	}
}

// enter returns the live entry of name and counts the caller as a user of it
func (m *lockMgrImpl) enter(name string) *namedLock {
	for {
		nl, _ := m.locks.LoadOrCompute(name, newNamedLock)
		nl.mu.Lock()
		if !nl.removed {
			nl.refs++
			nl.mu.Unlock()
			return nl
		}
		// lost the race against the removal of an idle entry
		nl.mu.Unlock()
	}
}

// leave drops one user of nl and removes idle entries. Must be called with nl.mu held.
func (m *lockMgrImpl) leave(name string, nl *namedLock) {
	nl.refs--
	if nl.refs == 0 {
		nl.removed = true
		m.locks.Delete(name)
	}
}

// giveUp undoes the enter of a failed acquisition
func (m *lockMgrImpl) giveUp(nl *namedLock, name string, waiting bool) {
	nl.mu.Lock()
	defer nl.mu.Unlock()
	if waiting {
		// readers queued behind this writer may proceed now
		nl.writersWaiting--
		nl.broadcast()
	}
	m.leave(name, nl)
}

// release gives back one acquisition and wakes up all waiters
func (m *lockMgrImpl) release(nl *namedLock, name string, owner Owner, write bool) {
	nl.mu.Lock()
	defer nl.mu.Unlock()

	if write {
		nl.writeHolds--
		if nl.writeHolds == 0 {
			nl.writer = ""
		}
	} else {
		nl.readers[owner]--
		if nl.readers[owner] == 0 {
			delete(nl.readers, owner)
		}
		nl.readHolds--
	}

	nl.broadcast()
	m.leave(name, nl)
}

// tryAcquire grants the lock if possible. Must be called with nl.mu held.
func (nl *namedLock) tryAcquire(owner Owner, write bool) (bool, error) {
	if write {
		switch {
		case nl.writer == owner && nl.writeHolds > 0:
			// reentrant acquisition by the same operation
			nl.writeHolds++
			return true, nil
		case nl.readers[owner] > 0 && nl.readHolds > nl.readers[owner]:
			// waiting would deadlock as soon as another reader tries the same
			return false, ErrUpgrade
		case nl.writeHolds == 0 && nl.readHolds == nl.readers[owner]:
			nl.writer = owner
			nl.writeHolds = 1
			return true, nil
		}
		return false, nil
	}

	switch {
	case nl.writer == owner && nl.writeHolds > 0,
		nl.readers[owner] > 0,
		nl.writeHolds == 0 && nl.writersWaiting == 0:
		nl.readers[owner]++
		nl.readHolds++
		return true, nil
	}
	return false, nil
}

// broadcast wakes up all waiters. Must be called with nl.mu held.
func (nl *namedLock) broadcast() {
	close(nl.changed)
	nl.changed = make(chan struct{})
}

func mode(write bool) string {
	if write {
		return "write"
	}
	return "read"
}

// heldLock implements Lock
type heldLock struct {
	m        *lockMgrImpl
	nl       *namedLock
	name     string
	owner    Owner
	write    bool
	released atomic.Bool
}

func (l *heldLock) Name() string { return l.name }

func (l *heldLock) Release() error {
	if l.released.Swap(true) {
		return ErrAlreadyReleased
	}
	l.m.release(l.nl, l.name, l.owner, l.write)
	return nil
}
