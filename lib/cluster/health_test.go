package cluster

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dHA/lib/durability"
	"github.com/ValentinKolb/dHA/lib/replica/replicatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAliveMap(t *testing.T) {
	f := newFixture(t, testConfig(), newStateManager(t), "a", "b", "c")
	f.fakes["b"].SetMode(replicatest.ModeDown)
	f.fakes["c"].SetMode(replicatest.ModeHang)

	start := time.Now()
	alive := f.cluster.GetAliveMap(context.Background(), f.cluster.Replicas())
	assert.Less(t, time.Since(start), time.Second, "pings are bounded by the ping timeout")

	require.Len(t, alive[true], 1)
	assert.Equal(t, "a", alive[true][0].ID)
	require.Len(t, alive[false], 2)
	assert.Equal(t, "b", alive[false][0].ID)
	assert.Equal(t, "c", alive[false][1].ID)

	empty := f.cluster.GetAliveMap(context.Background(), nil)
	assert.Empty(t, empty[true])
	assert.Empty(t, empty[false])
}

func TestHealthMonitor(t *testing.T) {
	cfg := testConfig()
	cfg.HealthInterval = 10 * time.Millisecond
	f := newFixture(t, cfg, newStateManager(t), "a", "b")

	f.fakes["b"].SetMode(replicatest.ModeDown)
	require.Eventually(t, func() bool {
		return len(f.cluster.ActiveReplicas()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a"}, f.cluster.ActiveReplicas())
	assert.Greater(t, f.fakes["a"].Pings(), 1)

	// stopping ends the monitor, goleak checks it at exit
	f.cluster.Stop()
	pings := f.fakes["a"].Pings()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, pings, f.fakes["a"].Pings())
}

func TestReapStale(t *testing.T) {
	cfg := testConfig()
	cfg.Retention = time.Millisecond
	f := newFixture(t, cfg, newStateManager(t), "a", "b", "c")

	inv, err := f.cluster.log.BeginInvocation("stuck", durability.Descriptor{Replicas: []string{"a", "b"}})
	require.NoError(t, err)
	require.NoError(t, f.cluster.log.RecordResult(inv, "a", durability.PhaseCommit, durability.ExceptionNone))
	_, err = f.cluster.log.BeginInvocation("repeatable", durability.Descriptor{Replicas: []string{"c"}, Idempotent: true})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	f.cluster.reapStale()

	assert.Equal(t, []string{"b"}, f.cluster.ResyncRequired())
	assert.Equal(t, []string{"a", "c"}, f.cluster.ActiveReplicas())
	assert.Zero(t, f.cluster.log.Outstanding())

	events, err := f.state.Events()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, testConfig(), newStateManager(t), "a", "b")
	ctx := context.Background()

	_, err := f.cluster.Write(ctx, write("INSERT", "orders"))
	require.NoError(t, err)
	_, err = f.cluster.Read(ctx, read("SELECT"))
	require.NoError(t, err)
	_, err = f.cluster.Deactivate(ctx, "b")
	require.NoError(t, err)

	var out bytes.Buffer
	f.cluster.WriteMetrics(&out)
	text := out.String()
	assert.Contains(t, text, `dha_writes_total{cluster="test"} 1`)
	assert.Contains(t, text, `dha_reads_total{cluster="test"} 1`)
	assert.Contains(t, text, `dha_deactivations_total{cluster="test"} 1`)
	assert.Contains(t, text, `dha_active_replicas{cluster="test"} 1`)
}
