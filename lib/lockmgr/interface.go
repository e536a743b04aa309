package lockmgr

import (
	"context"
)

// ClusterLock is the name of the cluster-wide lock. Write dispatch holds its read side,
// activation and deactivation of replicas hold its write side.
const ClusterLock = "\x00cluster"

// Lock is a held lock. Release must be called exactly once, further calls return ErrAlreadyReleased.
type Lock interface {
	// Name returns the name of the locked resource.
	Name() string
	// Release releases the lock.
	Release() error
}

// ILockManager defines the interface for a named read/write lock provider.
type ILockManager interface {
	// AcquireRead acquires the read side of the lock for name on behalf of owner.
	// It blocks until no other owner holds or waits for the write side, ctx is done or
	// the manager's timeout elapsed (LockTimeoutError).
	AcquireRead(ctx context.Context, owner Owner, name string) (lock Lock, err error)

	// AcquireWrite acquires the write side of the lock for name on behalf of owner.
	// Acquisition is reentrant for the same owner. It blocks until all other holders released.
	AcquireWrite(ctx context.Context, owner Owner, name string) (lock Lock, err error)
}
