package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dHA/lib/replica"
	"golang.org/x/sync/errgroup"
)

var errPingFailed = errors.New("liveness probe failed")

// GetAliveMap pings the given replicas in parallel with the dialect's minimal statement
// and partitions them into alive (true) and not alive (false). Both keys are always present,
// each partition keeps the order of replicas.
func (c *Cluster) GetAliveMap(ctx context.Context, replicas []*replica.Replica) map[bool][]*replica.Replica {
	alive := make([]bool, len(replicas))

	var g errgroup.Group
	for i, r := range replicas {
		g.Go(func() error {
			err := r.Connector.Ping(ctx, c.cfg.PingTimeout)
			if err != nil {
				log.Debugf("cluster %s: ping %s failed: %v", c.cfg.ID, r.ID, err)
			}
			alive[i] = err == nil
			return nil
		})
	}
	_ = g.Wait()

	result := map[bool][]*replica.Replica{true: {}, false: {}}
	for i, r := range replicas {
		result[alive[i]] = append(result[alive[i]], r)
	}
	return result
}

// monitor runs health checks until ctx is done
func (c *Cluster) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkHealth(ctx)
		}
	}
}

// checkHealth deactivates active replicas not answering a ping and abandons stale invocations
func (c *Cluster) checkHealth(ctx context.Context) {
	alive := c.GetAliveMap(ctx, c.balancer.All().Replicas)
	if ctx.Err() != nil {
		// stopping, failed pings say nothing about the replicas
		return
	}
	for _, r := range alive[false] {
		_, _ = c.deactivate(r, errPingFailed)
	}
	c.reapStale()
}

// reapStale abandons invocations older than the retention window. Replicas without
// a terminal result for them are flagged, unless the invocation was idempotent.
func (c *Cluster) reapStale() {
	for _, inv := range c.log.Stale(c.cfg.Retention) {
		missing := inv.Missing()
		if len(missing) > 0 && !inv.Idempotent {
			c.flagResync(fmt.Errorf("no result for %s within %s", inv.TxID, c.cfg.Retention), missing...)
		}
		if err := c.log.Abandon(inv); err != nil {
			log.Errorf("cluster %s: %v", c.cfg.ID, err)
		}
	}
}
