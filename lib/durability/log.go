package durability

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("durability")

// Journal persists durability events in order. lib/state provides the implementation.
type Journal interface {
	// Append persists ev and returns it with its sequence number assigned.
	Append(ev Event) (Event, error)
	// Truncate removes all events of the given transaction.
	Truncate(txID string) error
}

// State is the lifecycle state of an invocation.
type State uint8

const (
	StateOpen    State = iota // INVOKE persisted, no result yet
	StatePartial              // some replicas reported
	StateClosed               // completed and truncated
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StatePartial:
		return "PARTIAL"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Descriptor describes an invocation.
type Descriptor struct {
	Replicas   []string
	Idempotent bool
}

// Invocation is an outstanding operation in the log.
type Invocation struct {
	TxID       string
	Replicas   []string
	Idempotent bool
	Started    time.Time

	mu      sync.Mutex
	state   State
	results map[string]Phase
}

// State returns the current lifecycle state.
func (inv *Invocation) State() State {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state
}

// Missing returns the invoked replicas without a terminal result, in invocation order.
func (inv *Invocation) Missing() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	var missing []string
	for _, id := range inv.Replicas {
		if !inv.results[id].Terminal() {
			missing = append(missing, id)
		}
	}
	return missing
}

// Log tracks outstanding invocations and writes their events to a Journal.
type Log struct {
	journal Journal
	open    *xsync.MapOf[string, *Invocation]
	now     func() time.Time
}

// NewLog creates a log writing to journal.
func NewLog(journal Journal) *Log {
	return &Log{
		journal: journal,
		open:    xsync.NewMapOf[string, *Invocation](),
		now:     time.Now,
	}
}

// BeginInvocation persists the INVOKE event of a new invocation.
// It must return before the operation is dispatched to any replica.
func (l *Log) BeginInvocation(txID string, desc Descriptor) (*Invocation, error) {
	inv := &Invocation{
		TxID:       txID,
		Replicas:   append([]string(nil), desc.Replicas...),
		Idempotent: desc.Idempotent,
		Started:    l.now(),
		results:    make(map[string]Phase, len(desc.Replicas)),
	}
	if _, loaded := l.open.LoadOrStore(txID, inv); loaded {
		return nil, ErrDuplicateInvocation
	}

	_, err := l.journal.Append(Event{
		TxID:       txID,
		Phase:      PhaseInvoke,
		Replicas:   inv.Replicas,
		Idempotent: inv.Idempotent,
		Time:       inv.Started,
	})
	if err != nil {
		l.open.Delete(txID)
		return nil, &DurabilityError{Op: "invoke", TxID: txID, Err: err}
	}
	return inv, nil
}

// RecordResult persists the result of inv on one replica.
// Results of one invocation are serialized, a later result for the same replica overrides the earlier one.
func (l *Log) RecordResult(inv *Invocation, replicaID string, phase Phase, exception ExceptionType) error {
	if phase == PhaseInvoke {
		return fmt.Errorf("durability log: %s is not a result phase", phase)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state == StateClosed {
		return ErrInvocationClosed
	}
	if !contains(inv.Replicas, replicaID) {
		return fmt.Errorf("%w: %s", ErrUnknownReplica, replicaID)
	}

	_, err := l.journal.Append(Event{
		TxID:      inv.TxID,
		Phase:     phase,
		ReplicaID: replicaID,
		Exception: exception,
		Time:      l.now(),
	})
	if err != nil {
		return &DurabilityError{Op: "result", TxID: inv.TxID, Err: err}
	}
	// a terminal result is never downgraded by a later FORGET
	if !inv.results[replicaID].Terminal() || phase.Terminal() {
		inv.results[replicaID] = phase
	}
	inv.state = StatePartial
	return nil
}

// CompleteInvocation closes inv and truncates its events.
// Every invoked replica must have a result.
func (l *Log) CompleteInvocation(inv *Invocation) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state == StateClosed {
		return ErrInvocationClosed
	}
	for _, id := range inv.Replicas {
		if _, ok := inv.results[id]; !ok {
			return fmt.Errorf("%w: %s", ErrIncompleteInvocation, id)
		}
	}
	return l.close(inv)
}

// Abandon closes inv even though results are missing and truncates its events.
// The caller must have flagged the missing replicas for resynchronization before.
func (l *Log) Abandon(inv *Invocation) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.state == StateClosed {
		return ErrInvocationClosed
	}
	log.Warningf("abandoning invocation %s in state %s", inv.TxID, inv.state)
	return l.close(inv)
}

// close must be called with inv.mu held
func (l *Log) close(inv *Invocation) error {
	inv.state = StateClosed
	l.open.Delete(inv.TxID)
	if err := l.journal.Truncate(inv.TxID); err != nil {
		// the events stay in the journal, recovery will find the invocation reconciled
		return &DurabilityError{Op: "truncate", TxID: inv.TxID, Err: err}
	}
	return nil
}

// Outstanding returns the number of open invocations.
func (l *Log) Outstanding() int {
	return l.open.Size()
}

// Stale returns the open invocations started more than retention ago, oldest first.
func (l *Log) Stale(retention time.Duration) []*Invocation {
	deadline := l.now().Add(-retention)
	var stale []*Invocation
	l.open.Range(func(_ string, inv *Invocation) bool {
		if inv.Started.Before(deadline) {
			stale = append(stale, inv)
		}
		return true
	})
	sort.Slice(stale, func(i, j int) bool { return stale[i].Started.Before(stale[j].Started) })
	return stale
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
