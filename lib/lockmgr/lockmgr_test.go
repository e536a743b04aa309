package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadersShare(t *testing.T) {
	mgr := NewLockManager(time.Second)
	ctx := context.Background()

	l1, err := mgr.AcquireRead(ctx, NewOwner(), "orders")
	require.NoError(t, err)
	l2, err := mgr.AcquireRead(ctx, NewOwner(), "orders")
	require.NoError(t, err)

	assert.NoError(t, l1.Release())
	assert.NoError(t, l2.Release())
}

func TestWriteExcludesWrite(t *testing.T) {
	mgr := NewLockManager(50 * time.Millisecond)
	ctx := context.Background()

	l, err := mgr.AcquireWrite(ctx, NewOwner(), "orders")
	require.NoError(t, err)

	_, err = mgr.AcquireWrite(ctx, NewOwner(), "orders")
	var timeoutErr *LockTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "orders", timeoutErr.Name)
	assert.True(t, timeoutErr.Write)

	// other tables are independent
	other, err := mgr.AcquireWrite(ctx, NewOwner(), "customers")
	require.NoError(t, err)
	assert.NoError(t, other.Release())

	require.NoError(t, l.Release())

	l, err = mgr.AcquireWrite(ctx, NewOwner(), "orders")
	require.NoError(t, err)
	assert.NoError(t, l.Release())
}

func TestWriteExcludesRead(t *testing.T) {
	mgr := NewLockManager(50 * time.Millisecond)
	ctx := context.Background()

	w, err := mgr.AcquireWrite(ctx, NewOwner(), ClusterLock)
	require.NoError(t, err)

	_, err = mgr.AcquireRead(ctx, NewOwner(), ClusterLock)
	var timeoutErr *LockTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Contains(t, err.Error(), "<cluster>")

	require.NoError(t, w.Release())
}

func TestReentrant(t *testing.T) {
	mgr := NewLockManager(50 * time.Millisecond)
	ctx := context.Background()
	owner := NewOwner()

	w1, err := mgr.AcquireWrite(ctx, owner, "orders")
	require.NoError(t, err)
	w2, err := mgr.AcquireWrite(ctx, owner, "orders")
	require.NoError(t, err)
	r, err := mgr.AcquireRead(ctx, owner, "orders")
	require.NoError(t, err)

	require.NoError(t, r.Release())
	require.NoError(t, w2.Release())

	// still held once
	_, err = mgr.AcquireRead(ctx, NewOwner(), "orders")
	require.Error(t, err)

	require.NoError(t, w1.Release())
	r, err = mgr.AcquireRead(ctx, NewOwner(), "orders")
	require.NoError(t, err)
	assert.NoError(t, r.Release())
}

func TestUpgrade(t *testing.T) {
	mgr := NewLockManager(50 * time.Millisecond)
	ctx := context.Background()
	a, b := NewOwner(), NewOwner()

	ra, err := mgr.AcquireRead(ctx, a, "orders")
	require.NoError(t, err)

	// sole reader may upgrade
	wa, err := mgr.AcquireWrite(ctx, a, "orders")
	require.NoError(t, err)
	require.NoError(t, wa.Release())

	rb, err := mgr.AcquireRead(ctx, b, "orders")
	require.NoError(t, err)

	_, err = mgr.AcquireWrite(ctx, a, "orders")
	assert.ErrorIs(t, err, ErrUpgrade)

	require.NoError(t, rb.Release())
	require.NoError(t, ra.Release())
}

func TestReleaseTwice(t *testing.T) {
	mgr := NewLockManager(time.Second)

	l, err := mgr.AcquireWrite(context.Background(), NewOwner(), "orders")
	require.NoError(t, err)
	require.NoError(t, l.Release())
	assert.ErrorIs(t, l.Release(), ErrAlreadyReleased)

	// a second release must not have freed a lock held by someone else
	l2, err := mgr.AcquireWrite(context.Background(), NewOwner(), "orders")
	require.NoError(t, err)
	assert.ErrorIs(t, l.Release(), ErrAlreadyReleased)
	_, err = mgr.AcquireWrite(context.Background(), NewOwner(), "orders")
	assert.Error(t, err)
	require.NoError(t, l2.Release())
}

func TestContextCancel(t *testing.T) {
	mgr := NewLockManager(0)

	l, err := mgr.AcquireWrite(context.Background(), NewOwner(), "orders")
	require.NoError(t, err)
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = mgr.AcquireRead(ctx, NewOwner(), "orders")
	var timeoutErr *LockTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWaiterIsWoken(t *testing.T) {
	mgr := NewLockManager(time.Second)
	ctx := context.Background()

	w, err := mgr.AcquireWrite(ctx, NewOwner(), "orders")
	require.NoError(t, err)

	acquired := make(chan Lock)
	go func() {
		l, err := mgr.AcquireRead(ctx, NewOwner(), "orders")
		if err == nil {
			acquired <- l
		}
		close(acquired)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, w.Release())

	select {
	case l, ok := <-acquired:
		require.True(t, ok, "reader did not acquire the lock")
		assert.NoError(t, l.Release())
	case <-time.After(time.Second):
		t.Fatal("reader was not woken up")
	}
}

func TestWriterPreference(t *testing.T) {
	mgr := NewLockManager(time.Second)
	ctx := context.Background()

	r, err := mgr.AcquireRead(ctx, NewOwner(), "orders")
	require.NoError(t, err)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if w, err := mgr.AcquireWrite(ctx, NewOwner(), "orders"); err == nil {
			time.Sleep(10 * time.Millisecond)
			_ = w.Release()
		}
	}()

	// wait until the writer is queued
	require.Eventually(t, func() bool {
		nl, _ := mgr.(*lockMgrImpl).locks.Load("orders")
		nl.mu.Lock()
		defer nl.mu.Unlock()
		return nl.writersWaiting == 1
	}, time.Second, time.Millisecond)

	short := NewLockManager(20 * time.Millisecond).(*lockMgrImpl)
	short.locks = mgr.(*lockMgrImpl).locks
	_, err = short.AcquireRead(ctx, NewOwner(), "orders")
	assert.Error(t, err, "new readers must wait behind a queued writer")

	require.NoError(t, r.Release())
	<-writerDone
}

// TestMutualExclusion runs many writers on the same lock and checks that never
// more than one is inside the critical section
func TestMutualExclusion(t *testing.T) {
	mgr := NewLockManager(5 * time.Second)
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l, err := mgr.AcquireWrite(ctx, NewOwner(), "orders")
				if err != nil {
					t.Errorf("AcquireWrite failed: %v", err)
					return
				}
				n := inside.Add(1)
				if n > maxInside.Load() {
					maxInside.Store(n)
				}
				inside.Add(-1)
				_ = l.Release()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestAcquireAll(t *testing.T) {
	mgr := NewLockManager(50 * time.Millisecond)
	ctx := context.Background()
	owner := NewOwner()

	locks, err := AcquireAll(ctx, mgr, owner, []string{ClusterLock, "orders"}, []string{"orders", "customers"})
	require.NoError(t, err)
	require.Len(t, locks, 3)

	names := make([]string, len(locks))
	for i, l := range locks {
		names[i] = l.Name()
	}
	assert.Equal(t, []string{ClusterLock, "customers", "orders"}, names)

	// orders was taken write
	_, err = mgr.AcquireRead(ctx, NewOwner(), "orders")
	assert.Error(t, err)
	// cluster lock only read
	r, err := mgr.AcquireRead(ctx, NewOwner(), ClusterLock)
	require.NoError(t, err)
	require.NoError(t, r.Release())

	ReleaseAll(locks)

	w, err := mgr.AcquireWrite(ctx, NewOwner(), "orders")
	require.NoError(t, err)
	require.NoError(t, w.Release())
}

func TestAcquireAllReleasesOnError(t *testing.T) {
	mgr := NewLockManager(30 * time.Millisecond)
	ctx := context.Background()

	held, err := mgr.AcquireWrite(ctx, NewOwner(), "orders")
	require.NoError(t, err)

	_, err = AcquireAll(ctx, mgr, NewOwner(), []string{ClusterLock}, []string{"orders"})
	require.Error(t, err)

	// the cluster lock must have been released again
	w, err := mgr.AcquireWrite(ctx, NewOwner(), ClusterLock)
	require.NoError(t, err)
	require.NoError(t, w.Release())
	require.NoError(t, held.Release())
}

func TestIdleLocksAreRemoved(t *testing.T) {
	mgr := NewLockManager(30 * time.Millisecond)
	impl := mgr.(*lockMgrImpl)
	ctx := context.Background()
	owner := NewOwner()

	for i := 0; i < 100; i++ {
		l, err := mgr.AcquireWrite(ctx, owner, fmt.Sprintf("table_%d", i))
		require.NoError(t, err)
		require.NoError(t, l.Release())
	}
	assert.Zero(t, impl.locks.Size(), "released names are forgotten")

	// nested holds keep the entry until the last release
	outer, err := mgr.AcquireWrite(ctx, owner, "orders")
	require.NoError(t, err)
	inner, err := mgr.AcquireRead(ctx, owner, "orders")
	require.NoError(t, err)
	require.NoError(t, inner.Release())
	assert.Equal(t, 1, impl.locks.Size())

	// a timed out waiter leaves the entry to the holder
	_, err = mgr.AcquireWrite(ctx, NewOwner(), "orders")
	var timeoutErr *LockTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 1, impl.locks.Size())

	require.NoError(t, outer.Release())
	assert.Zero(t, impl.locks.Size())

	// exclusion still holds across removal and recreation of an entry
	var inside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := mgr.AcquireWrite(ctx, NewOwner(), "customers")
			if err != nil {
				return
			}
			assert.Equal(t, int32(1), inside.Add(1))
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			_ = l.Release()
		}()
	}
	wg.Wait()
	assert.Zero(t, impl.locks.Size())
}
