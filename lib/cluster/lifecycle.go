package cluster

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dHA/lib/durability"
	"github.com/ValentinKolb/dHA/lib/replica"
)

// Start loads the persisted state, runs recovery, activates the trusted replicas
// that answer a ping and starts the health monitor.
//
// Replicas that recovery finds orphaned are flagged for resynchronization and stay
// inactive until they are resolved. On the very first start (no persisted active set)
// every configured replica is a candidate.
func (c *Cluster) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rt.Load() != nil {
		return ErrAlreadyStarted
	}

	report, err := c.recover()
	if err != nil {
		return err
	}
	c.report = report

	candidates, err := c.candidates()
	if err != nil {
		return err
	}
	alive := c.GetAliveMap(ctx, candidates)
	for _, r := range alive[false] {
		log.Warningf("cluster %s: replica %s is not reachable, starting without it", c.cfg.ID, r.ID)
	}

	// the active set is rebuilt from scratch, persisted first
	for _, r := range c.balancer.All().Replicas {
		c.balancer.Remove(r)
		r.SetActive(false)
	}
	if err := c.state.SetActiveReplicas(replica.IDs(alive[true])); err != nil {
		return &durability.DurabilityError{Op: "start", TxID: c.cfg.ID, Err: err}
	}
	for _, r := range alive[true] {
		c.balancer.Add(r)
		r.SetActive(true)
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	rt := &runtime{
		txPool:  newPool(c.cfg.TxPoolSize),
		pool:    newPool(c.cfg.PoolSize),
		cancel:  cancel,
		monitor: make(chan struct{}),
	}
	c.metrics.startTimers(c.order)
	if c.cfg.HealthInterval > 0 {
		go c.monitor(monitorCtx, rt.monitor)
	} else {
		close(rt.monitor)
	}
	c.rt.Store(rt)

	log.Infof("cluster %s: started with active replicas %v (resync required: %v)",
		c.cfg.ID, c.balancer.All().IDs(), c.resyncIDs())
	return nil
}

// Stop marks the cluster inactive, stops the health monitor and waits for running replica calls.
// Stopping a stopped cluster is a no-op. The state manager stays open, the caller owns it.
func (c *Cluster) Stop() {
	c.mu.Lock()
	rt := c.rt.Swap(nil)
	c.mu.Unlock()
	if rt == nil {
		return
	}

	rt.cancel()
	<-rt.monitor
	rt.txPool.Close()
	rt.pool.Close()
	c.metrics.stopTimers()
	log.Infof("cluster %s: stopped", c.cfg.ID)
}

// recover folds the persisted log, flags orphans and truncates the log.
// Must be called with c.mu held.
func (c *Cluster) recover() (durability.Report, error) {
	events, err := c.state.Events()
	if err != nil {
		return durability.Report{}, fmt.Errorf("cluster %s: failed to load durability log: %w", c.cfg.ID, err)
	}
	report := durability.Recover(events)

	flagged, err := c.state.ResyncRequired()
	if err != nil {
		return durability.Report{}, fmt.Errorf("cluster %s: failed to load resync flags: %w", c.cfg.ID, err)
	}
	for _, id := range flagged {
		c.resync[id] = struct{}{}
	}
	for _, o := range report.Orphans {
		log.Warningf("cluster %s: replica %s may have missed transaction %s", c.cfg.ID, o.ReplicaID, o.TxID)
		c.resync[o.ReplicaID] = struct{}{}
	}
	for _, ev := range report.Malformed {
		log.Warningf("cluster %s: malformed durability event %s", c.cfg.ID, ev)
	}

	// flags must be durable before the evidence is truncated
	if len(report.Orphans) > 0 {
		if err := c.state.SetResyncRequired(c.resyncIDs()); err != nil {
			return durability.Report{}, &durability.DurabilityError{Op: "recover", TxID: c.cfg.ID, Err: err}
		}
	}
	for _, txID := range report.Transactions() {
		if err := c.state.Truncate(txID); err != nil {
			return durability.Report{}, &durability.DurabilityError{Op: "truncate", TxID: txID, Err: err}
		}
	}

	if len(events) > 0 {
		log.Infof("cluster %s: recovered %d events: %d reconciled, %d repeatable, %d orphans",
			c.cfg.ID, len(events), len(report.Reconciled), len(report.Repeatable), len(report.Orphans))
	}
	return report, nil
}

// candidates returns the replicas to probe on start. Must be called with c.mu held.
func (c *Cluster) candidates() ([]*replica.Replica, error) {
	persisted, ok, err := c.state.ActiveReplicas()
	if err != nil {
		return nil, fmt.Errorf("cluster %s: failed to load active replicas: %w", c.cfg.ID, err)
	}

	var candidates []*replica.Replica
	if !ok {
		candidates = c.Replicas()
	} else {
		for _, id := range persisted {
			r, known := c.replicas[id]
			if !known {
				log.Warningf("cluster %s: ignoring persisted replica %s, it is not configured", c.cfg.ID, id)
				continue
			}
			candidates = append(candidates, r)
		}
	}

	trusted := candidates[:0:0]
	for _, r := range candidates {
		if _, flagged := c.resync[r.ID]; flagged {
			continue
		}
		trusted = append(trusted, r)
	}
	return trusted, nil
}
