package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/ValentinKolb/dHA/lib/replica/replicatest"
	"github.com/ValentinKolb/dHA/lib/state"
	"github.com/ValentinKolb/dHA/lib/store/lstore"
	"github.com/ValentinKolb/dHA/rpc/common"
	"github.com/ValentinKolb/dHA/rpc/serializer"
	"github.com/ValentinKolb/dHA/rpc/server"
	"github.com/ValentinKolb/dHA/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackTransport hands requests directly to a server handler
type loopbackTransport struct {
	handler   transport.ServerHandleFunc
	connected bool
	sendErr   error
}

func (l *loopbackTransport) Connect(common.ClientConfig) error {
	l.connected = true
	return nil
}

func (l *loopbackTransport) Send(clusterID string, req []byte) ([]byte, error) {
	if l.sendErr != nil {
		return nil, l.sendErr
	}
	return l.handler(clusterID, req), nil
}

func (l *loopbackTransport) Close() error {
	l.connected = false
	return nil
}

func newAdmin(t *testing.T, ser serializer.IRPCSerializer) (IAdmin, *loopbackTransport, map[string]*replicatest.Connector) {
	t.Helper()
	sm, err := state.NewStateManager(lstore.NewLocalStore(), "shop")
	require.NoError(t, err)

	fakes := make(map[string]*replicatest.Connector)
	var replicas []*replica.Replica
	for _, id := range []string{"a", "b", "c"} {
		r, fake := replicatest.Replica(id, 1)
		replicas = append(replicas, r)
		fakes[id] = fake
	}
	cfg := cluster.DefaultConfig("shop")
	cfg.HealthInterval = 0
	cfg.OperationTimeout = time.Second
	c, err := cluster.New(cfg, replicas, sm)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Stop)

	srv := server.NewRPCServer(common.ServerConfig{ClusterID: "shop"}, nil, ser)
	srv.Register(c)

	lt := &loopbackTransport{handler: srv.Handler()}
	admin, err := NewRPCAdmin("shop", common.ClientConfig{Endpoints: []string{"loopback"}}, lt, ser)
	require.NoError(t, err)
	return admin, lt, fakes
}

func TestAdmin(t *testing.T) {
	for name, ser := range map[string]serializer.IRPCSerializer{
		"JSON": serializer.NewJSONSerializer(),
		"GOB":  serializer.NewGOBSerializer(),
	} {
		t.Run(name, func(t *testing.T) {
			admin, lt, fakes := newAdmin(t, ser)
			assert.True(t, lt.connected)

			replicas, err := admin.List()
			require.NoError(t, err)
			require.Len(t, replicas, 3)
			assert.Equal(t, "a", replicas[0].ID)

			changed, err := admin.Deactivate("c")
			require.NoError(t, err)
			assert.True(t, changed)

			res, err := admin.Exec(cluster.Operation{
				Statement: replica.Statement{SQL: "UPDATE orders SET state = 'paid'"},
				Tables:    []string{"orders"},
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), res.RowsAffected)
			assert.Len(t, fakes["a"].Executed(), 1)
			assert.Len(t, fakes["b"].Executed(), 1)
			assert.Empty(t, fakes["c"].Executed(), "an inactive replica receives no writes")

			fakes["a"].SetRows([][]any{{"paid"}})
			fakes["b"].SetRows([][]any{{"paid"}})
			res, err = admin.Query(replica.Statement{SQL: "SELECT state FROM orders"})
			require.NoError(t, err)
			assert.Equal(t, [][]any{{"paid"}}, res.Rows)

			changed, err = admin.Activate("c")
			require.NoError(t, err)
			assert.True(t, changed)

			changed, err = admin.Resolve("c")
			require.NoError(t, err)
			assert.False(t, changed, "resolving an active replica without resync flag changes nothing")

			status, err := admin.Status()
			require.NoError(t, err)
			assert.Equal(t, "shop", status.Cluster)
			assert.Len(t, status.Replicas, 3)

			require.NoError(t, admin.Close())
			assert.False(t, lt.connected)
		})
	}
}

func TestAdminRemoteError(t *testing.T) {
	admin, _, fakes := newAdmin(t, serializer.NewJSONSerializer())

	_, err := admin.Activate("missing")
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, common.MsgTActivate, remote.MsgType)

	for _, fake := range fakes {
		fake.SetMode(replicatest.ModeReject)
	}
	_, err = admin.Exec(cluster.Operation{Statement: replica.Statement{SQL: "INSERT INTO orders VALUES (1)"}, Tables: []string{"orders"}})
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Msg, "statement rejected")
}

func TestAdminTransportError(t *testing.T) {
	admin, lt, _ := newAdmin(t, serializer.NewJSONSerializer())
	lt.sendErr = errors.New("connection refused")

	_, err := admin.List()
	assert.ErrorIs(t, err, lt.sendErr)

	var remote *RemoteError
	assert.False(t, errors.As(err, &remote))
}

func TestAdminWrongCluster(t *testing.T) {
	admin, _, _ := newAdmin(t, serializer.NewJSONSerializer())
	a := admin.(*rpcAdmin)
	a.clusterID = "other"

	_, err := admin.Status()
	assert.ErrorContains(t, err, "not found")
}
