package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dHA/lib/durability"
	"github.com/ValentinKolb/dHA/lib/lockmgr"
	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/ValentinKolb/dHA/lib/replica/replicatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionCommit(t *testing.T) {
	f := newFixture(t, testConfig(), newStateManager(t), "a", "b")
	ctx := context.Background()

	tx, err := f.cluster.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tx.Replicas())

	for _, sql := range []string{"INSERT 1", "INSERT 2", "UPDATE 3"} {
		res, err := tx.Exec(ctx, write(sql, "orders"))
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.RowsAffected)
	}
	f.fakes["a"].SetRows([][]any{{int64(3)}})
	res, err := tx.Query(ctx, read("SELECT count(*)"))
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(3)}}, res.Rows)

	require.NoError(t, tx.Commit(ctx))

	for id, fake := range f.fakes {
		assert.Equal(t, 1, fake.Committed(), "replica %s", id)
	}
	assert.Equal(t, []string{"INSERT 1", "INSERT 2", "UPDATE 3", "SELECT count(*)"}, f.fakes["a"].Executed())
	assert.Equal(t, []string{"INSERT 1", "INSERT 2", "UPDATE 3"}, f.fakes["b"].Executed(), "every replica sees the same order")

	// only commit is logged
	var phases []durability.Phase
	for _, ev := range f.state.Appended() {
		assert.Equal(t, tx.ID(), ev.TxID)
		phases = append(phases, ev.Phase)
	}
	assert.Equal(t, durability.PhaseInvoke, phases[0])
	assert.ElementsMatch(t, []durability.Phase{durability.PhaseInvoke, durability.PhaseCommit, durability.PhaseCommit}, phases)

	_, err = tx.Exec(ctx, write("INSERT", "orders"))
	assert.ErrorIs(t, err, ErrTxDone)
	assert.ErrorIs(t, tx.Commit(ctx), ErrTxDone)
	assert.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")
}

func TestTransactionRollback(t *testing.T) {
	f := newFixture(t, testConfig(), newStateManager(t), "a", "b")
	ctx := context.Background()

	tx, err := f.cluster.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, write("INSERT", "orders"))
	require.NoError(t, err)

	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx))
	for id, fake := range f.fakes {
		assert.Equal(t, 1, fake.RolledBack(), "replica %s", id)
		assert.Zero(t, fake.Committed())
	}

	events := f.state.Appended()
	require.NotEmpty(t, events)
	assert.True(t, events[0].Idempotent, "rollbacks can be repeated safely")
}

func TestTransactionBranchFailure(t *testing.T) {
	f := newFixture(t, testConfig(), newStateManager(t), "a", "b", "c")
	ctx := context.Background()

	tx, err := f.cluster.Begin(ctx)
	require.NoError(t, err)

	f.fakes["b"].SetMode(replicatest.ModeDown)
	_, err = tx.Exec(ctx, write("INSERT", "orders"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, tx.Replicas())
	assert.Equal(t, []string{"a", "c"}, f.cluster.ActiveReplicas())

	f.fakes["c"].SetMode(replicatest.ModeReject)
	_, err = tx.Exec(ctx, write("INSERT", "orders"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tx.Replicas(), "a branch rejecting what others applied is dropped")

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 1, f.fakes["a"].Committed())
	assert.Zero(t, f.fakes["c"].Committed())
}

func TestTransactionBoundedPoolCallerTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.TxPoolSize = 1
	f := newFixture(t, cfg, newStateManager(t), "a", "b")
	ctx := context.Background()

	tx, err := f.cluster.Begin(ctx)
	require.NoError(t, err)
	f.fakes["a"].OnExec(func(replica.Statement) { time.Sleep(100 * time.Millisecond) })

	// the caller gives up while b still waits for the only pool slot
	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = tx.Exec(short, write("INSERT INTO orders", "orders"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tx.Replicas())

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, []string{"a", "b"}, f.cluster.ActiveReplicas())
	for id, fake := range f.fakes {
		assert.Equal(t, []string{"INSERT INTO orders"}, fake.Executed(), "replica %s", id)
		assert.Equal(t, 1, fake.Committed(), "replica %s", id)
	}
}

func TestTransactionStatementError(t *testing.T) {
	f := newFixture(t, testConfig(), newStateManager(t), "a", "b")
	ctx := context.Background()

	tx, err := f.cluster.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	for _, fake := range f.fakes {
		fake.SetMode(replicatest.ModeReject)
	}
	_, err = tx.Exec(ctx, write("INSERT INTO missing", "missing"))
	var stmtErr *replica.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, []string{"a", "b"}, tx.Replicas())

	_, err = tx.Query(ctx, read("SELEKT"))
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, []string{"a", "b"}, f.cluster.ActiveReplicas())
}

func TestTransactionLosesEveryReplica(t *testing.T) {
	f := newFixture(t, testConfig(), newStateManager(t), "a", "b")
	ctx := context.Background()

	tx, err := f.cluster.Begin(ctx)
	require.NoError(t, err)
	for _, fake := range f.fakes {
		fake.SetMode(replicatest.ModeDown)
	}

	_, err = tx.Exec(ctx, write("INSERT", "orders"))
	var unavailable *ClusterUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, tx.Commit(ctx), ErrTxDone, "the transaction was aborted")

	// all locks were released
	lock, err := f.cluster.locks.AcquireWrite(ctx, lockmgr.NewOwner(), lockmgr.ClusterLock)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestTransactionQueryFailover(t *testing.T) {
	f := newFixture(t, testConfig(), newStateManager(t), "a", "b")
	ctx := context.Background()

	tx, err := f.cluster.Begin(ctx)
	require.NoError(t, err)

	f.fakes["a"].SetMode(replicatest.ModeDown)
	f.fakes["b"].SetRows([][]any{{"b"}})
	res, err := tx.Query(ctx, read("SELECT"))
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"b"}}, res.Rows)
	assert.Equal(t, []string{"b"}, tx.Replicas())
	require.NoError(t, tx.Commit(ctx))
}

func TestTransactionHoldsLocks(t *testing.T) {
	f := newFixture(t, testConfig(), newStateManager(t), "a", "b")
	ctx := context.Background()

	tx, err := f.cluster.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, Operation{Statement: replica.Statement{SQL: "ALTER TABLE orders"}, Tables: []string{"orders"}, Structural: true})
	require.NoError(t, err)

	short := func() context.Context {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		t.Cleanup(cancel)
		return ctx
	}

	var timeoutErr *lockmgr.LockTimeoutError
	_, err = f.cluster.Deactivate(short(), "b")
	require.ErrorAs(t, err, &timeoutErr, "membership changes wait for open transactions")
	_, err = f.cluster.Write(short(), write("INSERT INTO orders", "orders"))
	require.ErrorAs(t, err, &timeoutErr, "writes wait for the structural lock of the transaction")

	// the same transaction may keep using the table
	_, err = tx.Exec(ctx, write("INSERT INTO orders", "orders"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	_, err = f.cluster.Write(ctx, write("INSERT INTO orders", "orders"))
	require.NoError(t, err)
	changed, err := f.cluster.Deactivate(ctx, "b")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestTransactionBeginFailure(t *testing.T) {
	f := newFixture(t, testConfig(), newStateManager(t), "a", "b")
	f.fakes["a"].SetMode(replicatest.ModeDown)

	tx, err := f.cluster.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, tx.Replicas())
	assert.Equal(t, []string{"b"}, f.cluster.ActiveReplicas())
	require.NoError(t, tx.Rollback(context.Background()))
}
