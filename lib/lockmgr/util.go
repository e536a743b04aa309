package lockmgr

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
)

const (
	ownerIDLength = 16
)

// Owner identifies the logical operation holding a lock. Nested acquisitions
// by the same operation pass the same owner down the call chain.
type Owner string

// NewOwner creates a new unique owner
// The owner ID is a random byte slice of length 16, encoded as hex.
func NewOwner() Owner {
	randomBytes := make([]byte, ownerIDLength)
	if _, err := rand.Read(randomBytes); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return Owner(hex.EncodeToString(randomBytes))
}

// AcquireAll acquires the read locks for reads and the write locks for writes in
// sorted name order, so two callers never wait on each other in opposite order.
// A name present in both lists is only write locked. On error all locks acquired
// so far are released.
func AcquireAll(ctx context.Context, mgr ILockManager, owner Owner, reads, writes []string) ([]Lock, error) {
	modes := make(map[string]bool, len(reads)+len(writes)) // name -> write
	for _, name := range reads {
		if _, ok := modes[name]; !ok {
			modes[name] = false
		}
	}
	for _, name := range writes {
		modes[name] = true
	}

	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	sort.Strings(names)

	locks := make([]Lock, 0, len(names))
	for _, name := range names {
		var l Lock
		var err error
		if modes[name] {
			l, err = mgr.AcquireWrite(ctx, owner, name)
		} else {
			l, err = mgr.AcquireRead(ctx, owner, name)
		}
		if err != nil {
			ReleaseAll(locks)
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, nil
}

// ReleaseAll releases locks in reverse acquisition order.
func ReleaseAll(locks []Lock) {
	for i := len(locks) - 1; i >= 0; i-- {
		if err := locks[i].Release(); err != nil {
			log.Warningf("failed to release lock %q: %v", locks[i].Name(), err)
		}
	}
}
