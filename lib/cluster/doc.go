// Package cluster makes a set of independent database replicas appear as one
// logical database.
//
// A Cluster owns the replicas, the balancer holding the active set, the lock manager,
// the durability log and the persisted state. It
//
//   - routes reads to one replica picked by the balancer, deactivating replicas that fail
//   - fans writes out to every active replica, logging an invocation before and a result
//     after every replica call, and deactivates replicas with local failures
//   - runs client transactions pinned to one snapshot of the active set
//   - on Start, folds the surviving durability log into a recovery report and keeps every
//     replica that may have missed an operation inactive until it is resolved
//   - periodically probes the active replicas and abandons invocations older than the retention
//
// Locking: write dispatch holds the read side of lockmgr.ClusterLock and a lock per table
// (the write side for structural operations). Administrative activation and deactivation hold
// the write side of lockmgr.ClusterLock. Deactivations caused by failing replicas during
// dispatch do not take the lock, the dispatch already iterates an immutable snapshot.
//
// Usage:
//
//	c, err := cluster.New(cfg, replicas, stateManager)
//	if err != nil {
//		return err
//	}
//	if err := c.Start(ctx); err != nil {
//		return err
//	}
//	defer c.Stop()
//
//	res, err := c.Write(ctx, cluster.Operation{
//		Statement: replica.Statement{SQL: "UPDATE orders SET state = ? WHERE id = ?", Args: []any{"paid", 42}},
//		Tables:    []string{"orders"},
//	})
package cluster
