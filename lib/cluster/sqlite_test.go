package cluster

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/dHA/lib/dialect"
	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSQLiteReplicas runs the cluster against real SQLite databases
func TestSQLiteReplicas(t *testing.T) {
	for _, family := range []replica.Family{replica.FamilyPlain, replica.FamilyCoordinated} {
		t.Run(string(family), func(t *testing.T) {
			testSQLiteReplicas(t, family)
		})
	}
}

func testSQLiteReplicas(t *testing.T, family replica.Family) {
	d, err := dialect.ByName("sqlite")
	require.NoError(t, err)

	dir := t.TempDir()
	var replicas []*replica.Replica
	for _, id := range []string{"a", "b"} {
		conn, err := replica.NewSQLConnector(replica.SQLConfig{
			ID:      id,
			Driver:  "sqlite3",
			DSN:     filepath.Join(dir, id+".db"),
			Family:  family,
			Dialect: d,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		replicas = append(replicas, replica.New(id, 1, conn))
	}

	cfg := testConfig()
	cfg.Dialect = d
	c, err := New(cfg, replicas, newStateManager(t))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	ctx := context.Background()
	stmt := func(sql string, args ...any) replica.Statement {
		return replica.Statement{SQL: sql, Args: args}
	}

	_, err = c.Write(ctx, Operation{
		Statement:  stmt("CREATE TABLE orders (id INTEGER PRIMARY KEY, state TEXT NOT NULL)"),
		Tables:     []string{"orders"},
		Structural: true,
	})
	require.NoError(t, err)

	_, err = c.Write(ctx, Operation{Statement: stmt("INSERT INTO orders (id, state) VALUES (?, ?)", 1, "new"), Tables: []string{"orders"}})
	require.NoError(t, err)

	res, err := c.Write(ctx, Operation{Statement: stmt("UPDATE orders SET state = ? WHERE id = ?", "paid", 1), Tables: []string{"orders"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	res, err = c.Read(ctx, Operation{Statement: stmt("SELECT id, state FROM orders WHERE id = ?", 1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "state"}, res.Columns)
	assert.Equal(t, []dialect.TypeCode{dialect.TypeInteger, dialect.TypeText}, res.ColumnTypes)
	assert.Equal(t, [][]any{{int64(1), "paid"}}, res.Rows)

	// a constraint violation is the statement's fault
	_, err = c.Write(ctx, Operation{Statement: stmt("INSERT INTO orders (id, state) VALUES (?, ?)", 1, "dup"), Tables: []string{"orders"}})
	var stmtErr *replica.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, []string{"a", "b"}, c.ActiveReplicas())

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, Operation{Statement: stmt("INSERT INTO orders (id, state) VALUES (?, ?)", 2, "new"), Tables: []string{"orders"}})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	tx, err = c.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, Operation{Statement: stmt("INSERT INTO orders (id, state) VALUES (?, ?)", 3, "new"), Tables: []string{"orders"}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	for _, r := range replicas {
		s, err := r.Connector.Connect(ctx)
		require.NoError(t, err)
		res, err := s.Query(ctx, stmt("SELECT id FROM orders ORDER BY id"))
		require.NoError(t, err)
		assert.Equal(t, [][]any{{int64(1)}, {int64(3)}}, res.Rows, "replica %s", r.ID)
		require.NoError(t, s.Close())
	}
}
