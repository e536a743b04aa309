package durability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSerialize(t *testing.T) {
	now := time.Unix(0, 1718000000123456789)

	tests := []struct {
		name  string
		event Event
	}{
		{"Invoke", Event{TxID: "tx-1", Phase: PhaseInvoke, Replicas: []string{"a", "b", "c"}, Time: now}},
		{"InvokeIdempotent", Event{TxID: "tx-2", Phase: PhaseInvoke, Replicas: []string{"a"}, Idempotent: true, Time: now}},
		{"InvokeNoReplicas", Event{TxID: "tx-3", Phase: PhaseInvoke, Replicas: []string{}, Time: now}},
		{"Commit", Event{TxID: "tx-1", Phase: PhaseCommit, ReplicaID: "a", Time: now}},
		{"RollbackStatement", Event{TxID: "tx-1", Phase: PhaseRollback, ReplicaID: "b", Exception: ExceptionStatement, Time: now}},
		{"Forget", Event{TxID: "tx-1", Phase: PhaseForget, ReplicaID: "c", Exception: ExceptionUnknown, Time: now}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.event.Serialize()
			assert.Len(t, data, tt.event.SizeBytes())

			var got Event
			require.NoError(t, got.Deserialize(data))
			assert.Equal(t, tt.event.TxID, got.TxID)
			assert.Equal(t, tt.event.Phase, got.Phase)
			assert.Equal(t, tt.event.ReplicaID, got.ReplicaID)
			assert.Equal(t, tt.event.Exception, got.Exception)
			assert.Equal(t, tt.event.Idempotent, got.Idempotent)
			assert.Equal(t, tt.event.Replicas, got.Replicas)
			assert.True(t, tt.event.Time.Equal(got.Time))
		})
	}
}

func TestEventDeserializeInvalid(t *testing.T) {
	valid := (&Event{TxID: "tx", Phase: PhaseCommit, ReplicaID: "a", Time: time.Now()}).Serialize()

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"Header", valid[:headerSize]},
		{"TruncatedID", valid[:len(valid)-1]},
		{"Trailing", append(append([]byte(nil), valid...), 0)},
		{"Phase", append([]byte{9}, valid[1:]...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev Event
			assert.Error(t, ev.Deserialize(tt.data))
		})
	}
}
