package cluster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dHA/lib/balancer"
	"github.com/ValentinKolb/dHA/lib/durability"
	"github.com/ValentinKolb/dHA/lib/lockmgr"
	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/ValentinKolb/dHA/lib/state"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("cluster")

// Operation is a statement dispatched to the cluster.
type Operation struct {
	Statement replica.Statement
	// Tables touched by the statement, locked for the duration of a write.
	Tables []string
	// Structural operations (DDL) lock their tables exclusively.
	Structural bool
	// Idempotent operations can be repeated safely, recovery never flags replicas for them.
	Idempotent bool
}

// Cluster is the orchestrator in front of the replicas.
type Cluster struct {
	cfg      Config
	replicas map[string]*replica.Replica
	order    []*replica.Replica // sorted by id

	balancer   *balancer.Balancer
	state      state.IStateManager
	log        *durability.Log
	locks      lockmgr.ILockManager
	metricsSet *metrics.Set
	metrics    *clusterMetrics

	mu     sync.Mutex // guards membership persistence, resync, report and lifecycle
	resync map[string]struct{}
	report durability.Report

	rt atomic.Pointer[runtime] // nil while stopped
}

// runtime holds everything that only exists while the cluster is started
type runtime struct {
	txPool  *pool
	pool    *pool
	cancel  context.CancelFunc
	monitor chan struct{} // closed when the health monitor returned
}

// New creates a stopped cluster. Replica ids must be unique.
func New(cfg Config, replicas []*replica.Replica, sm state.IStateManager, opts ...Option) (*Cluster, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(replicas) == 0 {
		return nil, fmt.Errorf("cluster %s: at least one replica is required", cfg.ID)
	}
	if sm == nil {
		return nil, fmt.Errorf("cluster %s: state manager is required", cfg.ID)
	}

	b, err := balancer.New(cfg.Balancer)
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		cfg:      cfg,
		replicas: make(map[string]*replica.Replica, len(replicas)),
		balancer: b,
		state:    sm,
		log:      durability.NewLog(sm),
		resync:   make(map[string]struct{}),
	}
	for _, r := range replicas {
		if r == nil || r.ID == "" || r.Connector == nil {
			return nil, fmt.Errorf("cluster %s: invalid replica %v", cfg.ID, r)
		}
		if _, ok := c.replicas[r.ID]; ok {
			return nil, fmt.Errorf("cluster %s: duplicate replica id %q", cfg.ID, r.ID)
		}
		c.replicas[r.ID] = r
		c.order = append(c.order, r)
	}
	sort.Slice(c.order, func(i, j int) bool { return c.order[i].ID < c.order[j].ID })

	for _, opt := range opts {
		opt(c)
	}
	if c.locks == nil {
		c.locks = lockmgr.NewLockManager(cfg.LockTimeout)
	}
	if c.metricsSet == nil {
		c.metricsSet = metrics.NewSet()
	}
	c.metrics = newClusterMetrics(c)
	return c, nil
}

// ID returns the cluster id.
func (c *Cluster) ID() string { return c.cfg.ID }

// Config returns the cluster configuration.
func (c *Cluster) Config() Config { return c.cfg }

// Replicas returns all configured replicas sorted by id.
func (c *Cluster) Replicas() []*replica.Replica {
	return append([]*replica.Replica(nil), c.order...)
}

// Replica returns the configured replica with the given id.
func (c *Cluster) Replica(id string) (*replica.Replica, bool) {
	r, ok := c.replicas[id]
	return r, ok
}

// ActiveReplicas returns the ids of the active replicas sorted by id.
func (c *Cluster) ActiveReplicas() []string {
	return c.balancer.All().IDs()
}

// Running reports whether the cluster is started.
func (c *Cluster) Running() bool {
	return c.rt.Load() != nil
}

// RecoveryReport returns the report of the last Start.
func (c *Cluster) RecoveryReport() durability.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

// ResyncRequired returns the ids of replicas flagged for resynchronization, sorted.
func (c *Cluster) ResyncRequired() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resyncIDs()
}

// --------------------------------------------------------------------------
// Administrative membership changes
// --------------------------------------------------------------------------

// Activate adds a replica to the active set and reports whether the set changed.
// The new set is persisted before the balancer sees the replica.
func (c *Cluster) Activate(ctx context.Context, id string) (bool, error) {
	r, unlock, err := c.admin(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, flagged := c.resync[id]; flagged {
		return false, &RecoveryAmbiguityError{ReplicaID: id}
	}
	return c.activateLocked(r)
}

// Deactivate removes a replica from the active set and reports whether the set changed.
func (c *Cluster) Deactivate(ctx context.Context, id string) (bool, error) {
	r, unlock, err := c.admin(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	return c.deactivate(r, fmt.Errorf("deactivated by administrator"))
}

// Resolve confirms that a flagged replica was resynchronized: its flag is cleared and it is activated.
func (c *Cluster) Resolve(ctx context.Context, id string) (bool, error) {
	r, unlock, err := c.admin(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, flagged := c.resync[id]; flagged {
		delete(c.resync, id)
		if err := c.state.SetResyncRequired(c.resyncIDs()); err != nil {
			c.resync[id] = struct{}{}
			return false, &durability.DurabilityError{Op: "resolve", TxID: id, Err: err}
		}
		log.Infof("cluster %s: replica %s resolved", c.cfg.ID, id)
	}
	return c.activateLocked(r)
}

// admin looks up a replica and takes the write side of the cluster lock
func (c *Cluster) admin(ctx context.Context, id string) (*replica.Replica, func(), error) {
	if !c.Running() {
		return nil, nil, ErrClusterInactive
	}
	r, ok := c.replicas[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownReplica, id)
	}
	lock, err := c.locks.AcquireWrite(ctx, lockmgr.NewOwner(), lockmgr.ClusterLock)
	if err != nil {
		return nil, nil, err
	}
	return r, func() { _ = lock.Release() }, nil
}

// --------------------------------------------------------------------------
// Internal membership changes
// --------------------------------------------------------------------------

// activateLocked persists the active set including r, then adds r to the balancer.
// Must be called with c.mu held.
func (c *Cluster) activateLocked(r *replica.Replica) (bool, error) {
	if c.balancer.Contains(r) {
		return false, nil
	}
	ids := append(c.balancer.All().IDs(), r.ID)
	if err := c.state.SetActiveReplicas(ids); err != nil {
		return false, &durability.DurabilityError{Op: "activate", TxID: r.ID, Err: err}
	}
	c.balancer.Add(r)
	r.SetActive(true)
	log.Infof("cluster %s: replica %s activated", c.cfg.ID, r.ID)
	return true, nil
}

// deactivate removes r from the balancer, then persists the smaller active set.
// The in-memory removal stands even if persisting fails.
func (c *Cluster) deactivate(r *replica.Replica, reason error) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.balancer.Remove(r) {
		return false, nil
	}
	r.SetActive(false)
	c.metrics.deactivations.Inc()
	log.Warningf("cluster %s: replica %s deactivated: %v", c.cfg.ID, r.ID, reason)

	if err := c.state.SetActiveReplicas(c.balancer.All().IDs()); err != nil {
		log.Errorf("cluster %s: failed to persist deactivation of %s: %v", c.cfg.ID, r.ID, err)
		return true, &durability.DurabilityError{Op: "deactivate", TxID: r.ID, Err: err}
	}
	return true, nil
}

// flagResync marks replicas as requiring resynchronization and deactivates them
func (c *Cluster) flagResync(reason error, ids ...string) {
	if len(ids) == 0 {
		return
	}

	c.mu.Lock()
	changed := false
	for _, id := range ids {
		if _, ok := c.resync[id]; !ok {
			c.resync[id] = struct{}{}
			changed = true
		}
	}
	if changed {
		if err := c.state.SetResyncRequired(c.resyncIDs()); err != nil {
			log.Errorf("cluster %s: failed to persist resync flags %v: %v", c.cfg.ID, ids, err)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		if r, ok := c.replicas[id]; ok {
			_, _ = c.deactivate(r, reason)
		}
	}
}

// resyncIDs must be called with c.mu held
func (c *Cluster) resyncIDs() []string {
	ids := make([]string, 0, len(c.resync))
	for id := range c.resync {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
