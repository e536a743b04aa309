package serializer

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/ValentinKolb/dHA/lib/dialect"
	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/ValentinKolb/dHA/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON": NewJSONSerializer,
	"GOB":  NewGOBSerializer,
}

func roundTrip(t *testing.T, s IRPCSerializer, msg common.Message) common.Message {
	t.Helper()
	data, err := s.Serialize(msg)
	require.NoError(t, err)
	var result common.Message
	require.NoError(t, s.Deserialize(data, &result))
	return result
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error for json)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTQuery; msgType++ {
				result := roundTrip(t, serializer, common.Message{MsgType: msgType})
				assert.Equal(t, msgType, result.MsgType, "message type %s", msgType)
			}
		})
	}
}

func TestExecRequest(t *testing.T) {
	op := cluster.Operation{
		Statement:  replica.Statement{SQL: "UPDATE orders SET state = ? WHERE id = ?", Args: []any{"paid", "7"}},
		Tables:     []string{"orders"},
		Structural: true,
		Idempotent: true,
	}
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			result := roundTrip(t, factory(), *common.NewExecRequest(op))
			assert.Equal(t, common.MsgTExec, result.MsgType)
			assert.Equal(t, op, result.Operation())
		})
	}
}

func TestMembershipResponse(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			result := roundTrip(t, factory(), *common.NewMembershipResponse(common.MsgTResolve, true, nil))
			assert.Equal(t, common.MsgTResolve, result.MsgType)
			assert.True(t, result.Ok)
			assert.Empty(t, result.Err)

			result = roundTrip(t, factory(), *common.NewMembershipResponse(common.MsgTActivate, false, assert.AnError))
			assert.False(t, result.Ok)
			assert.Equal(t, assert.AnError.Error(), result.Err)
		})
	}
}

func TestStatusResponse(t *testing.T) {
	status := cluster.Status{
		Cluster:  "shop",
		Running:  true,
		Balancer: "round-robin",
		Replicas: []cluster.ReplicaStatus{
			{ID: "a", Active: true, Weight: 1, Calls: 3, MeanLatency: 2 * time.Millisecond},
			{ID: "b", ResyncRequired: true, Weight: 2},
		},
	}
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			result := roundTrip(t, factory(), *common.NewStatusResponse(status))
			require.NotNil(t, result.Status)
			assert.Equal(t, status, *result.Status)
		})
	}
}

func TestGOBKeepsRowTypes(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	res := replica.Result{
		Columns:     []string{"id", "name", "blob", "price", "paid", "created", "note"},
		ColumnTypes: []dialect.TypeCode{dialect.TypeInteger, dialect.TypeText, dialect.TypeBinary, dialect.TypeFloat, dialect.TypeBoolean, dialect.TypeTimestamp, dialect.TypeText},
		Rows:        [][]any{{int64(1), "a", []byte{1, 2}, 9.5, true, at, nil}},
	}
	result := roundTrip(t, NewGOBSerializer(), *common.NewResultResponse(common.MsgTQuery, res, nil))
	require.NotNil(t, result.Result)
	assert.Equal(t, res, *result.Result)
}

func TestJSONNumbers(t *testing.T) {
	res := replica.Result{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}}
	result := roundTrip(t, NewJSONSerializer(), *common.NewResultResponse(common.MsgTQuery, res, nil))
	require.NotNil(t, result.Result)
	assert.Equal(t, [][]any{{float64(1)}}, result.Result.Rows)
}

func TestErrorResponse(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			result := roundTrip(t, factory(), *common.NewResultResponse(common.MsgTExec, replica.Result{}, assert.AnError))
			assert.Equal(t, common.MsgTExec, result.MsgType)
			assert.Nil(t, result.Result)
			assert.Equal(t, assert.AnError.Error(), result.Err)
		})
	}
}

func TestInvalidData(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			var msg common.Message
			assert.Error(t, factory().Deserialize([]byte{}, &msg))
			assert.Error(t, factory().Deserialize([]byte("{not a message"), &msg))
		})
	}

	var msg common.Message
	assert.Error(t, NewJSONSerializer().Deserialize([]byte(`{"msg_type":"set"}`), &msg))
}
