package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ValentinKolb/dHA/lib/durability"
	"github.com/ValentinKolb/dHA/lib/lockmgr"
	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/google/uuid"
)

// Transaction is a client transaction opened on every replica of one snapshot of the active set.
//
// Statements are executed one after another, each on every branch of the transaction, so all
// replicas see the same statement order. The transaction holds the read side of the cluster
// lock until it ends, table locks are taken by the statements and held until the end as well.
type Transaction struct {
	c     *Cluster
	rt    *runtime
	id    string
	owner lockmgr.Owner

	mu       sync.Mutex
	locks    []lockmgr.Lock
	branches []branch // sorted by replica id
	done     bool
}

// branch is the part of a transaction running on one replica
type branch struct {
	replica *replica.Replica
	session replica.TxSession
}

// Begin starts a transaction on every active replica. Replicas failing to begin are deactivated.
func (c *Cluster) Begin(ctx context.Context) (*Transaction, error) {
	rt := c.rt.Load()
	if rt == nil {
		return nil, ErrClusterInactive
	}
	c.metrics.transactions.Inc()

	owner := lockmgr.NewOwner()
	lock, err := c.locks.AcquireRead(ctx, owner, lockmgr.ClusterLock)
	if err != nil {
		return nil, err
	}

	snap := c.balancer.All()
	if snap.Len() == 0 {
		_ = lock.Release()
		return nil, c.unavailable("no active replica", nil)
	}

	// the sessions live as long as the transaction, not as long as the Begin call.
	// Every active replica gets a branch or is deactivated, a skipped one would miss the commit.
	sessionCtx := context.WithoutCancel(ctx)
	sessions := make([]replica.TxSession, snap.Len())
	errs := each(sessionCtx, rt.txPool, snap.Replicas, func(i int, r *replica.Replica) error {
		s, err := r.Connector.Begin(sessionCtx)
		sessions[i] = s
		return err
	})

	tx := &Transaction{c: c, rt: rt, id: uuid.NewString(), owner: owner, locks: []lockmgr.Lock{lock}}
	for i, r := range snap.Replicas {
		if errs[i] == nil {
			tx.branches = append(tx.branches, branch{replica: r, session: sessions[i]})
		}
	}
	for i, r := range snap.Replicas {
		switch {
		case errs[i] == nil:
		case errors.Is(errs[i], ErrClusterInactive):
			// the pool was closed by Stop
			for _, b := range tx.branches {
				_ = b.session.Rollback()
			}
			tx.finish()
			return nil, ErrClusterInactive
		default:
			_, _ = c.deactivate(r, errs[i])
		}
	}
	if len(tx.branches) == 0 {
		tx.finish()
		return nil, c.unavailable("could not begin a transaction on any replica", errs)
	}
	return tx, nil
}

// ID returns the transaction id used in the durability log.
func (tx *Transaction) ID() string { return tx.id }

// Replicas returns the ids of the replicas still taking part in the transaction.
func (tx *Transaction) Replicas() []string {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return replica.IDs(tx.targets())
}

// Exec executes op on every branch. Branches failing with a local error are rolled back,
// their replicas deactivated. If no branch is left the transaction is aborted.
func (tx *Transaction) Exec(ctx context.Context, op Operation) (replica.Result, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.prepare(ctx, op); err != nil {
		return replica.Result{}, err
	}

	// a statement reaching only some branches would break the order on the others
	detached := context.WithoutCancel(ctx)
	branches := tx.branches
	results := make([]replica.Result, len(branches))
	callErrs := make([]error, len(branches))
	errs := each(detached, tx.rt.txPool, tx.targets(), func(i int, r *replica.Replica) error {
		ctx, cancel := tx.c.operationContext(detached)
		defer cancel()
		results[i], callErrs[i] = branches[i].session.Exec(ctx, op.Statement)
		return nil
	})

	var succeeded []int
	var stmtErr error
	var failures []error
	for i := range branches {
		if errs[i] != nil {
			failures = append(failures, errs[i])
			continue
		}
		switch err := callErrs[i]; {
		case err == nil:
			succeeded = append(succeeded, i)
		case isStatementError(err):
			if stmtErr == nil {
				stmtErr = err
			}
			failures = append(failures, err)
		default:
			failures = append(failures, err)
		}
	}

	kept := make([]branch, 0, len(branches))
	for i, b := range branches {
		switch err := callErrs[i]; {
		case errs[i] != nil && len(succeeded) > 0:
			tx.drop(b, fmt.Errorf("missed a statement other replicas applied: %w", errs[i]))
		case errs[i] != nil, err == nil:
			kept = append(kept, b)
		case isStatementError(err) && len(succeeded) == 0:
			kept = append(kept, b)
		case isStatementError(err):
			// a branch rejecting what others applied cannot be committed consistently
			tx.drop(b, fmt.Errorf("rejected a statement other replicas applied: %w", err))
		default:
			tx.drop(b, err)
		}
	}
	tx.branches = kept

	if len(tx.branches) == 0 {
		tx.finish()
		return replica.Result{}, tx.c.unavailable("transaction "+tx.id+" lost every replica", failures)
	}
	if len(succeeded) == 0 {
		if stmtErr != nil {
			return replica.Result{}, stmtErr
		}
		return replica.Result{}, tx.c.unavailable("transaction "+tx.id+": statement could not be dispatched", failures)
	}

	first := results[succeeded[0]]
	rows := make(map[string]int64, len(succeeded))
	diverged := false
	for _, i := range succeeded {
		rows[branches[i].replica.ID] = results[i].RowsAffected
		if results[i].RowsAffected != first.RowsAffected {
			diverged = true
		}
	}
	if diverged {
		tx.c.metrics.divergences.Inc()
		return first, &ConsistencyDivergenceError{TxID: tx.id, RowsAffected: rows}
	}
	return first, nil
}

// Query executes op on the first branch. A branch failing with a local error is
// rolled back and the next one is tried.
func (tx *Transaction) Query(ctx context.Context, op Operation) (replica.Result, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.prepare(ctx, op); err != nil {
		return replica.Result{}, err
	}

	var failures []error
	for len(tx.branches) > 0 {
		b := tx.branches[0]
		qctx, cancel := tx.c.operationContext(ctx)
		res, err := b.session.Query(qctx, op.Statement)
		cancel()
		if err == nil || isStatementError(err) || ctx.Err() != nil {
			return res, err
		}
		tx.drop(b, err)
		tx.branches = tx.branches[1:]
		failures = append(failures, err)
	}
	tx.finish()
	return replica.Result{}, tx.c.unavailable("transaction "+tx.id+" lost every replica", failures)
}

// Commit commits every branch inside a logged invocation.
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return ErrTxDone
	}
	defer tx.finish()
	return tx.end(ctx, durability.PhaseCommit, false, replica.TxSession.Commit)
}

// Rollback rolls back every branch. Calling it on a finished transaction is a no-op.
func (tx *Transaction) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return nil
	}
	defer tx.finish()
	return tx.end(ctx, durability.PhaseRollback, true, replica.TxSession.Rollback)
}

// --------------------------------------------------------------------------
// Internal
// --------------------------------------------------------------------------

// end runs commit or rollback on every branch. Must be called with tx.mu held.
func (tx *Transaction) end(ctx context.Context, success durability.Phase, idempotent bool, fn func(replica.TxSession) error) error {
	targets := tx.targets()
	if len(targets) == 0 {
		return tx.c.unavailable("transaction "+tx.id+" has no replica left", nil)
	}

	outcomes, err := tx.c.invoke(ctx, tx.rt.txPool, tx.id, targets, idempotent, success,
		func(_ context.Context, i int, _ *replica.Replica) (replica.Result, error) {
			return replica.Result{}, fn(tx.branches[i].session)
		})
	if outcomes != nil {
		if _, aggErr := tx.c.aggregate(tx.id, outcomes); err == nil {
			err = aggErr
		}
	}
	return err
}

// prepare checks the transaction is usable and takes the table locks of op.
// Must be called with tx.mu held.
func (tx *Transaction) prepare(ctx context.Context, op Operation) error {
	if tx.done {
		return ErrTxDone
	}
	if !tx.c.Running() {
		return ErrClusterInactive
	}
	reads, writes := tableLocks(op)
	if len(reads)+len(writes) == 0 {
		return nil
	}
	locks, err := lockmgr.AcquireAll(ctx, tx.c.locks, tx.owner, reads, writes)
	if err != nil {
		return err
	}
	tx.locks = append(tx.locks, locks...)
	return nil
}

// drop rolls back a failed branch and deactivates its replica
func (tx *Transaction) drop(b branch, reason error) {
	if err := b.session.Rollback(); err != nil {
		log.Debugf("cluster %s: rollback of failed branch %s/%s: %v", tx.c.cfg.ID, tx.id, b.replica.ID, err)
	}
	_, _ = tx.c.deactivate(b.replica, reason)
}

// finish marks the transaction done and releases its locks. Must be called with tx.mu held.
func (tx *Transaction) finish() {
	if tx.done {
		return
	}
	tx.done = true
	for _, b := range tx.branches {
		_ = b.session.Close()
	}
	lockmgr.ReleaseAll(tx.locks)
	tx.locks = nil
}

func (tx *Transaction) targets() []*replica.Replica {
	rs := make([]*replica.Replica, len(tx.branches))
	for i, b := range tx.branches {
		rs[i] = b.replica
	}
	return rs
}
