// Package lockmgr provides named, in-process read/write locks used to serialize
// conflicting operations against a cluster of replicas.
//
// Every lock is identified by a name (usually a table name, or ClusterLock for
// the cluster-wide lock) and is always acquired on behalf of an Owner. The owner
// identifies one logical operation: nested acquisitions by the same owner are
// reentrant, a read nested under the owner's own write is granted immediately.
//
// Semantics:
//   - Many owners can hold the read side of a lock at the same time.
//   - The write side is exclusive against all other owners.
//   - Waiting writers block new readers, so a steady stream of reads cannot starve writes.
//   - Upgrading a read to a write is only allowed while the owner is the sole reader,
//     otherwise ErrUpgrade is returned instead of waiting (two upgrading readers would deadlock).
//   - Acquisition gives up when the caller's context is done or the configured timeout
//     elapsed. Both cases return a *LockTimeoutError.
//   - Release must be called exactly once per acquisition.
//
// Callers needing several locks should use AcquireAll, which acquires them in a
// deterministic order.
//
// Usage:
//
//	mgr := lockmgr.NewLockManager(5 * time.Second)
//	owner := lockmgr.NewOwner()
//	locks, err := lockmgr.AcquireAll(ctx, mgr, owner, []string{lockmgr.ClusterLock}, []string{"orders"})
//	if err != nil {
//		return err
//	}
//	defer lockmgr.ReleaseAll(locks)
package lockmgr
