package cluster

import (
	"fmt"
	"io"

	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// clusterMetrics are the counters exported at /metrics plus the per replica latency timers
type clusterMetrics struct {
	reads         *metrics.Counter
	writes        *metrics.Counter
	transactions  *metrics.Counter
	deactivations *metrics.Counter
	divergences   *metrics.Counter
	writeDuration *metrics.Histogram

	latency gometrics.Registry
}

func newClusterMetrics(c *Cluster) *clusterMetrics {
	set := c.metricsSet
	name := func(metric string) string {
		return fmt.Sprintf("%s{cluster=%q}", metric, c.cfg.ID)
	}

	m := &clusterMetrics{
		reads:         set.GetOrCreateCounter(name("dha_reads_total")),
		writes:        set.GetOrCreateCounter(name("dha_writes_total")),
		transactions:  set.GetOrCreateCounter(name("dha_transactions_total")),
		deactivations: set.GetOrCreateCounter(name("dha_deactivations_total")),
		divergences:   set.GetOrCreateCounter(name("dha_divergences_total")),
		writeDuration: set.GetOrCreateHistogram(name("dha_write_duration_seconds")),
		latency:       gometrics.NewRegistry(),
	}
	set.GetOrCreateGauge(name("dha_active_replicas"), func() float64 {
		return float64(c.balancer.All().Len())
	})
	set.GetOrCreateGauge(name("dha_outstanding_invocations"), func() float64 {
		return float64(c.log.Outstanding())
	})
	return m
}

// startTimers registers a latency timer per replica. Timers tick in the global meter
// arbiter of go-metrics until stopTimers.
func (m *clusterMetrics) startTimers(replicas []*replica.Replica) {
	for _, r := range replicas {
		gometrics.GetOrRegisterTimer(r.ID, m.latency)
	}
}

// stopTimers stops and unregisters every latency timer
func (m *clusterMetrics) stopTimers() {
	m.latency.UnregisterAll()
}

// timer returns the latency timer of a replica, a no-op timer while the cluster is stopped
func (m *clusterMetrics) timer(id string) gometrics.Timer {
	if t, ok := m.latency.Get(id).(gometrics.Timer); ok {
		return t
	}
	return gometrics.NilTimer{}
}

// WriteMetrics writes the cluster metrics in Prometheus text format.
func (c *Cluster) WriteMetrics(w io.Writer) {
	c.metricsSet.WritePrometheus(w)
}
