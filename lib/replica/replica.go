package replica

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dHA/lib/dialect"
)

// --------------------------------------------------------------------------
// Statements and results
// --------------------------------------------------------------------------

// Statement is a SQL statement with its positional arguments.
type Statement struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args,omitempty"`
}

// Result is the outcome of a statement on one replica.
// Exec fills RowsAffected, Query fills Columns, ColumnTypes and Rows.
type Result struct {
	RowsAffected int64              `json:"rows_affected"`
	Columns      []string           `json:"columns,omitempty"`
	ColumnTypes  []dialect.TypeCode `json:"column_types,omitempty"`
	Rows         [][]any            `json:"rows,omitempty"`
}

// --------------------------------------------------------------------------
// Capability interfaces
// --------------------------------------------------------------------------

// Session is a connection handle to one replica.
type Session interface {
	// Exec runs a statement that does not return rows.
	Exec(ctx context.Context, stmt Statement) (Result, error)
	// Query runs a statement that returns rows and materializes them.
	Query(ctx context.Context, stmt Statement) (Result, error)
	// Close releases the session. Closing twice is a no-op.
	Close() error
}

// TxSession is a session with an open transaction.
type TxSession interface {
	Session
	Commit() error
	Rollback() error
}

// Connector opens sessions to one replica.
type Connector interface {
	// Connect opens an auto-commit session.
	Connect(ctx context.Context) (Session, error)
	// Begin opens a session with a started transaction.
	Begin(ctx context.Context) (TxSession, error)
	// Ping executes the dialect's minimal statement, bounded by timeout.
	Ping(ctx context.Context, timeout time.Duration) error
	// Close releases all resources of the connector.
	Close() error
}

// --------------------------------------------------------------------------
// Replica Descriptor
// --------------------------------------------------------------------------

// Replica is one backend database instance behind the cluster.
type Replica struct {
	ID        string
	Weight    int
	Connector Connector

	active atomic.Bool
}

// New creates a replica descriptor. Replicas start inactive.
func New(id string, weight int, connector Connector) *Replica {
	return &Replica{
		ID:        id,
		Weight:    weight,
		Connector: connector,
	}
}

// IsActive reports whether the cluster currently routes traffic to this replica.
func (r *Replica) IsActive() bool {
	return r.active.Load()
}

// SetActive flips the liveness flag and reports whether it changed.
// Only the cluster calls this, after it changed its active set.
func (r *Replica) SetActive(active bool) bool {
	return r.active.Swap(active) != active
}

func (r *Replica) String() string {
	return fmt.Sprintf("replica(%s)", r.ID)
}

// IDs returns the ids of the given replicas in order.
func IDs(replicas []*Replica) []string {
	ids := make([]string, len(replicas))
	for i, r := range replicas {
		ids[i] = r.ID
	}
	return ids
}
