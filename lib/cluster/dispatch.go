package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dHA/lib/durability"
	"github.com/ValentinKolb/dHA/lib/lockmgr"
	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/google/uuid"
)

// Dispatch executes op as a write (every active replica) or as a read (one replica).
func (c *Cluster) Dispatch(ctx context.Context, op Operation, isWrite bool) (replica.Result, error) {
	if isWrite {
		return c.Write(ctx, op)
	}
	return c.Read(ctx, op)
}

// Read executes op on one replica chosen by the balancer. A replica failing with a
// local error is deactivated and the next one is tried, statement errors are returned as is.
func (c *Cluster) Read(ctx context.Context, op Operation) (replica.Result, error) {
	if !c.Running() {
		return replica.Result{}, ErrClusterInactive
	}
	c.metrics.reads.Inc()

	var errs []error
	for {
		r, err := c.balancer.Next()
		if err != nil {
			return replica.Result{}, c.unavailable("no active replica left", append(errs, err))
		}

		done := c.balancer.Track(r)
		res, err := c.call(ctx, r, func(ctx context.Context, s replica.Session) (replica.Result, error) {
			return s.Query(ctx, op.Statement)
		})
		done()

		if err == nil {
			return res, nil
		}
		if isStatementError(err) {
			return replica.Result{}, err
		}
		if ctx.Err() != nil {
			// the caller gave up, that is not the replica's fault
			return replica.Result{}, err
		}
		_, _ = c.deactivate(r, err)
		errs = append(errs, err)
	}
}

// Write executes op on every active replica and returns the result of the successful ones.
//
// The call holds the read side of the cluster lock and a lock for every table of op.
// An INVOKE event is persisted before the first replica is called, every replica result
// is persisted as soon as it is known. Replicas failing while others succeed are deactivated.
func (c *Cluster) Write(ctx context.Context, op Operation) (replica.Result, error) {
	rt := c.rt.Load()
	if rt == nil {
		return replica.Result{}, ErrClusterInactive
	}
	c.metrics.writes.Inc()
	defer c.metrics.writeDuration.UpdateDuration(time.Now())

	reads, writes := tableLocks(op)
	locks, err := lockmgr.AcquireAll(ctx, c.locks, lockmgr.NewOwner(), append(reads, lockmgr.ClusterLock), writes)
	if err != nil {
		return replica.Result{}, err
	}
	defer lockmgr.ReleaseAll(locks)

	snap := c.balancer.All()
	if snap.Len() == 0 {
		return replica.Result{}, c.unavailable("no active replica", nil)
	}

	txID := uuid.NewString()
	outcomes, err := c.invoke(ctx, rt.pool, txID, snap.Replicas, op.Idempotent, durability.PhaseCommit,
		func(ctx context.Context, _ int, r *replica.Replica) (replica.Result, error) {
			return c.call(ctx, r, func(ctx context.Context, s replica.Session) (replica.Result, error) {
				return s.Exec(ctx, op.Statement)
			})
		})
	if err != nil {
		if outcomes != nil {
			// the failure policy still applies to the replicas that answered
			_, _ = c.aggregate(txID, outcomes)
		}
		return replica.Result{}, err
	}
	return c.aggregate(txID, outcomes)
}

// --------------------------------------------------------------------------
// Internal
// --------------------------------------------------------------------------

// outcome is the answer of one replica to a fanned out call
type outcome struct {
	replica    *replica.Replica
	result     replica.Result
	err        error
	dispatched bool // false if the call never reached the replica
}

// replicaFunc is a call against one replica of a fan-out, i is the index in the target list
type replicaFunc func(ctx context.Context, i int, r *replica.Replica) (replica.Result, error)

// invoke runs fn on every target inside a logged invocation.
// It returns once every target answered. Scheduling and replica calls are detached from
// the cancellation of ctx, once INVOKE is logged every target must be called.
func (c *Cluster) invoke(ctx context.Context, p *pool, txID string, targets []*replica.Replica,
	idempotent bool, success durability.Phase, fn replicaFunc) ([]outcome, error) {

	inv, err := c.log.BeginInvocation(txID, durability.Descriptor{
		Replicas:   replica.IDs(targets),
		Idempotent: idempotent,
	})
	if err != nil {
		log.Errorf("cluster %s: %v", c.cfg.ID, err)
		return nil, err
	}

	var mu sync.Mutex
	var recordErr error
	record := func(r *replica.Replica, phase durability.Phase, exc durability.ExceptionType) {
		if err := c.log.RecordResult(inv, r.ID, phase, exc); err != nil {
			log.Errorf("cluster %s: failed to record %s of %s on %s: %v", c.cfg.ID, phase, txID, r.ID, err)
			mu.Lock()
			recordErr = err
			mu.Unlock()
		}
	}

	detached := context.WithoutCancel(ctx)
	outcomes := make([]outcome, len(targets))
	errs := each(detached, p, targets, func(i int, r *replica.Replica) error {
		res, err := fn(detached, i, r)
		outcomes[i] = outcome{replica: r, result: res, err: err, dispatched: true}
		phase, exc := durability.Outcome(success, err)
		record(r, phase, exc)
		return nil
	})
	for i, err := range errs {
		if err != nil {
			// never scheduled (the pool was closed), so never applied
			outcomes[i] = outcome{replica: targets[i], err: err}
			record(targets[i], durability.PhaseRollback, durability.ExceptionLocal)
		}
	}

	if recordErr != nil {
		// the outcomes are known in memory, the incomplete events must not be mistaken for a crash
		if err := c.log.Abandon(inv); err != nil {
			log.Errorf("cluster %s: %v", c.cfg.ID, err)
		}
		return outcomes, recordErr
	}
	if err := c.log.CompleteInvocation(inv); err != nil {
		if errors.Is(err, durability.ErrInvocationClosed) {
			// abandoned by the health monitor while replicas were still answering
			log.Warningf("cluster %s: invocation %s was abandoned before completion", c.cfg.ID, txID)
			return outcomes, nil
		}
		log.Errorf("cluster %s: failed to complete %s: %v", c.cfg.ID, txID, err)
		return outcomes, err
	}
	return outcomes, nil
}

// each runs fn for every replica through p and waits for all of them.
// The returned slice holds the scheduling error per replica (fn was not run for those).
func each(ctx context.Context, p *pool, rs []*replica.Replica, fn func(i int, r *replica.Replica) error) []error {
	errs := make([]error, len(rs))
	var wg sync.WaitGroup
	for i, r := range rs {
		wg.Add(1)
		err := p.Go(ctx, func() {
			defer wg.Done()
			errs[i] = fn(i, r)
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	return errs
}

// aggregate applies the failure policy to the outcomes of a write and builds the caller's result.
//
//   - at least one success: every failed or skipped replica is deactivated, replicas with an
//     unknown outcome are also flagged for resynchronization. Successful replicas reporting
//     different affected rows are returned as ConsistencyDivergenceError.
//   - no success: local failures are deactivated, skipped replicas are kept. A statement error
//     is returned if any replica rejected the statement, ClusterUnavailableError otherwise.
func (c *Cluster) aggregate(txID string, outcomes []outcome) (replica.Result, error) {
	var successes, failed, skipped []outcome
	var stmtErr error
	var errs []error
	for _, o := range outcomes {
		switch {
		case o.err == nil:
			successes = append(successes, o)
		case !o.dispatched:
			skipped = append(skipped, o)
			errs = append(errs, o.err)
		default:
			if stmtErr == nil && isStatementError(o.err) {
				stmtErr = o.err
			}
			failed = append(failed, o)
			errs = append(errs, o.err)
		}
	}

	if len(successes) == 0 {
		for _, o := range failed {
			if !isStatementError(o.err) {
				c.fail(o)
			}
		}
		if stmtErr != nil {
			return replica.Result{}, stmtErr
		}
		return replica.Result{}, c.unavailable(fmt.Sprintf("%s failed on every replica", txID), errs)
	}

	for _, o := range failed {
		c.fail(o)
	}
	for _, o := range skipped {
		// the others applied what this replica never received
		_, _ = c.deactivate(o.replica, fmt.Errorf("missed %s: %w", txID, o.err))
	}

	rows := make(map[string]int64, len(successes))
	diverged := false
	for _, o := range successes {
		rows[o.replica.ID] = o.result.RowsAffected
		if o.result.RowsAffected != successes[0].result.RowsAffected {
			diverged = true
		}
	}
	if diverged {
		c.metrics.divergences.Inc()
		err := &ConsistencyDivergenceError{TxID: txID, RowsAffected: rows}
		log.Errorf("cluster %s: %v", c.cfg.ID, err)
		return successes[0].result, err
	}
	return successes[0].result, nil
}

// fail deactivates the replica of a failed outcome
func (c *Cluster) fail(o outcome) {
	if durability.Classify(o.err) == durability.ExceptionUnknown {
		c.flagResync(o.err, o.replica.ID)
		return
	}
	_, _ = c.deactivate(o.replica, o.err)
}

// call opens a session on r and runs fn, bounded by the operation timeout
func (c *Cluster) call(ctx context.Context, r *replica.Replica,
	fn func(ctx context.Context, s replica.Session) (replica.Result, error)) (replica.Result, error) {

	ctx, cancel := c.operationContext(ctx)
	defer cancel()
	defer c.metrics.timer(r.ID).UpdateSince(time.Now())

	s, err := r.Connector.Connect(ctx)
	if err != nil {
		return replica.Result{}, err
	}
	defer s.Close()
	return fn(ctx, s)
}

func (c *Cluster) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.OperationTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Cluster) unavailable(reason string, errs []error) error {
	return &ClusterUnavailableError{Cluster: c.cfg.ID, Reason: reason, Errs: errs}
}

// tableLocks returns the lock names op needs on its tables
func tableLocks(op Operation) (reads, writes []string) {
	if op.Structural {
		return nil, op.Tables
	}
	return append([]string(nil), op.Tables...), nil
}

func isStatementError(err error) bool {
	var se *replica.StatementError
	return errors.As(err, &se)
}
