package cluster

import (
	"fmt"
	"strings"
	"time"
)

// ReplicaStatus describes one configured replica.
type ReplicaStatus struct {
	ID             string        `json:"id"`
	Active         bool          `json:"active"`
	ResyncRequired bool          `json:"resync_required"`
	Weight         int           `json:"weight"`
	InFlight       int64         `json:"in_flight"`
	Calls          int64         `json:"calls"`
	MeanLatency    time.Duration `json:"mean_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
}

// Status describes the cluster.
type Status struct {
	Cluster     string          `json:"cluster"`
	Running     bool            `json:"running"`
	Balancer    string          `json:"balancer"`
	Outstanding int             `json:"outstanding_invocations"`
	Replicas    []ReplicaStatus `json:"replicas"`
}

// Status returns the current status of the cluster and all configured replicas.
func (c *Cluster) Status() Status {
	flagged := make(map[string]bool)
	for _, id := range c.ResyncRequired() {
		flagged[id] = true
	}
	snap := c.balancer.All()

	st := Status{
		Cluster:     c.cfg.ID,
		Running:     c.Running(),
		Balancer:    string(c.balancer.Policy()),
		Outstanding: c.log.Outstanding(),
	}
	for _, r := range c.order {
		timer := c.metrics.timer(r.ID).Snapshot()
		st.Replicas = append(st.Replicas, ReplicaStatus{
			ID:             r.ID,
			Active:         snap.Contains(r.ID),
			ResyncRequired: flagged[r.ID],
			Weight:         r.Weight,
			InFlight:       c.balancer.InFlight(r),
			Calls:          timer.Count(),
			MeanLatency:    time.Duration(timer.Mean()),
			P99Latency:     time.Duration(timer.Percentile(0.99)),
		})
	}
	return st
}

func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cluster %s (running=%v, balancer=%s, outstanding=%d)\n", s.Cluster, s.Running, s.Balancer, s.Outstanding)
	for _, r := range s.Replicas {
		state := "inactive"
		switch {
		case r.ResyncRequired:
			state = "resync"
		case r.Active:
			state = "active"
		}
		fmt.Fprintf(&b, "  %-16s %-8s weight=%-3d in-flight=%-3d calls=%-6d mean=%s p99=%s\n",
			r.ID, state, r.Weight, r.InFlight, r.Calls, r.MeanLatency, r.P99Latency)
	}
	return b.String()
}
