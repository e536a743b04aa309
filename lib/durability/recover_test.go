package durability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func contextDeadline() error { return context.DeadlineExceeded }

// seq assigns ascending sequence numbers
func seq(events ...Event) []Event {
	for i := range events {
		events[i].Seq = uint64(i + 1)
	}
	return events
}

func invoke(tx string, idempotent bool, replicas ...string) Event {
	return Event{TxID: tx, Phase: PhaseInvoke, Replicas: replicas, Idempotent: idempotent}
}

func result(tx, replicaID string, phase Phase) Event {
	return Event{TxID: tx, Phase: phase, ReplicaID: replicaID}
}

func TestRecover(t *testing.T) {
	tests := []struct {
		name       string
		events     []Event
		orphans    []Orphan
		reconciled []string
		repeatable []string
		malformed  int
	}{
		{
			name:   "Empty",
			events: nil,
		},
		{
			name:    "InvokeOnly",
			events:  seq(invoke("t1", false, "a", "b")),
			orphans: []Orphan{{"t1", "a"}, {"t1", "b"}},
		},
		{
			name: "Partial",
			events: seq(
				invoke("t1", false, "a", "b", "c"),
				result("t1", "a", PhaseCommit),
				result("t1", "c", PhaseRollback),
			),
			orphans: []Orphan{{"t1", "b"}},
		},
		{
			name: "Closed",
			events: seq(
				invoke("t1", false, "a", "b"),
				result("t1", "a", PhaseCommit),
				result("t1", "b", PhaseRollback),
			),
			reconciled: []string{"t1"},
		},
		{
			name: "ForgetIsNotTerminal",
			events: seq(
				invoke("t1", false, "a", "b"),
				result("t1", "a", PhaseCommit),
				result("t1", "b", PhaseForget),
			),
			orphans: []Orphan{{"t1", "b"}},
		},
		{
			name: "TerminalAfterForget",
			events: seq(
				invoke("t1", false, "a"),
				result("t1", "a", PhaseForget),
				result("t1", "a", PhaseCommit),
			),
			reconciled: []string{"t1"},
		},
		{
			name: "Idempotent",
			events: seq(
				invoke("t1", true, "a", "b"),
				result("t1", "a", PhaseCommit),
			),
			repeatable: []string{"t1"},
		},
		{
			name: "ResultWithoutInvoke",
			events: seq(
				result("t9", "b", PhaseCommit),
			),
			orphans:   []Orphan{{"t9", "b"}},
			malformed: 1,
		},
		{
			name: "ResultForUninvokedReplica",
			events: seq(
				invoke("t1", false, "a"),
				result("t1", "a", PhaseCommit),
				result("t1", "x", PhaseCommit),
			),
			orphans:   []Orphan{{"t1", "x"}},
			malformed: 1,
		},
		{
			name: "DuplicateInvoke",
			events: seq(
				invoke("t1", false, "a"),
				invoke("t1", false, "a", "b"),
				result("t1", "a", PhaseCommit),
			),
			reconciled: []string{"t1"},
			malformed:  1,
		},
		{
			name: "Interleaved",
			events: seq(
				invoke("t1", false, "a", "b"),
				invoke("t2", false, "a", "b"),
				result("t2", "a", PhaseCommit),
				result("t1", "a", PhaseCommit),
				result("t2", "b", PhaseCommit),
			),
			orphans:    []Orphan{{"t1", "b"}},
			reconciled: []string{"t2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Recover(tt.events)
			assert.Equal(t, tt.orphans, report.Orphans)
			assert.Equal(t, tt.reconciled, report.Reconciled)
			assert.Equal(t, tt.repeatable, report.Repeatable)
			assert.Len(t, report.Malformed, tt.malformed)
			assert.Equal(t, len(tt.orphans) == 0, report.Clean())

			// recovery is a pure function
			assert.Equal(t, report, Recover(tt.events))
		})
	}
}

func TestRecoverOrdersBySeq(t *testing.T) {
	events := []Event{
		{Seq: 2, TxID: "t1", Phase: PhaseCommit, ReplicaID: "a"},
		{Seq: 1, TxID: "t1", Phase: PhaseInvoke, Replicas: []string{"a"}},
	}
	report := Recover(events)
	assert.True(t, report.Clean())
	assert.Equal(t, []string{"t1"}, report.Reconciled)
	// input is not modified
	assert.Equal(t, uint64(2), events[0].Seq)
}

func TestReportHelpers(t *testing.T) {
	report := Recover(seq(
		invoke("t2", false, "b", "a"),
		invoke("t1", false, "b"),
		invoke("t3", true, "c"),
	))
	assert.Equal(t, []string{"a", "b"}, report.OrphanedReplicas())
	assert.Equal(t, []string{"t1", "t2", "t3"}, report.Transactions())
}
