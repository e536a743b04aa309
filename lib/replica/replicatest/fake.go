// Package replicatest provides an in-memory replica.Connector with failure injection,
// used to exercise the cluster without real databases.
package replicatest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ValentinKolb/dHA/lib/replica"
)

// Mode controls how the fake replica answers.
type Mode uint8

const (
	ModeHealthy   Mode = iota // statements succeed
	ModeDown                  // every call fails with an UnavailableError
	ModeReject                // statements fail with a StatementError, pings succeed
	ModeHang                  // statements block until their context is done
)

// ErrInjected is the cause of every injected failure.
var ErrInjected = errors.New("injected failure")

// Connector is a fake replica. The zero value is not usable, use New.
type Connector struct {
	id string

	mu           sync.Mutex
	mode         Mode
	rowsAffected int64
	rows         [][]any
	executed     []string
	committed    int
	rolledBack   int
	pings        int
	onExec       func(stmt replica.Statement)
}

// New creates a healthy fake replica that reports one affected row per statement.
func New(id string) *Connector {
	return &Connector{id: id, rowsAffected: 1}
}

// Replica creates a replica descriptor backed by a new fake connector.
func Replica(id string, weight int) (*replica.Replica, *Connector) {
	c := New(id)
	return replica.New(id, weight, c), c
}

// SetMode changes how the replica answers from now on.
func (c *Connector) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// SetRowsAffected sets the affected row count reported by Exec.
func (c *Connector) SetRowsAffected(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rowsAffected = n
}

// SetRows sets the rows returned by Query.
func (c *Connector) SetRows(rows [][]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = rows
}

// OnExec registers a hook called before every statement executes.
func (c *Connector) OnExec(fn func(stmt replica.Statement)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExec = fn
}

// Executed returns the statements executed successfully, in order.
func (c *Connector) Executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.executed...)
}

// Committed returns the number of committed transactions.
func (c *Connector) Committed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// RolledBack returns the number of rolled back transactions.
func (c *Connector) RolledBack() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rolledBack
}

// Pings returns the number of pings received.
func (c *Connector) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// --------------------------------------------------------------------------
// Interface Methods (docu see replica.Connector)
// --------------------------------------------------------------------------

func (c *Connector) Connect(_ context.Context) (replica.Session, error) {
	if c.currentMode() == ModeDown {
		return nil, c.unavailable("connect")
	}
	return &session{c: c}, nil
}

func (c *Connector) Begin(_ context.Context) (replica.TxSession, error) {
	if c.currentMode() == ModeDown {
		return nil, c.unavailable("begin")
	}
	return &session{c: c, tx: true}, nil
}

func (c *Connector) Ping(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	c.pings++
	mode := c.mode
	c.mu.Unlock()

	switch mode {
	case ModeDown:
		return c.unavailable("ping")
	case ModeHang:
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		<-ctx.Done()
		return &replica.UnavailableError{ReplicaID: c.id, Op: "ping", Err: ctx.Err()}
	}
	return nil
}

func (c *Connector) Close() error { return nil }

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (c *Connector) currentMode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Connector) unavailable(op string) error {
	return &replica.UnavailableError{ReplicaID: c.id, Op: op, Err: ErrInjected}
}

// run executes a statement according to the current mode
func (c *Connector) run(ctx context.Context, stmt replica.Statement, query bool) (replica.Result, error) {
	c.mu.Lock()
	hook := c.onExec
	c.mu.Unlock()
	if hook != nil {
		hook(stmt)
	}

	switch c.currentMode() {
	case ModeDown:
		return replica.Result{}, c.unavailable("exec")
	case ModeReject:
		return replica.Result{}, &replica.StatementError{ReplicaID: c.id, Err: ErrInjected}
	case ModeHang:
		<-ctx.Done()
		return replica.Result{}, &replica.UnavailableError{ReplicaID: c.id, Op: "exec", Err: ctx.Err()}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.executed = append(c.executed, stmt.SQL)
	if query {
		return replica.Result{Columns: []string{"value"}, Rows: c.rows}, nil
	}
	return replica.Result{RowsAffected: c.rowsAffected}, nil
}

type session struct {
	c  *Connector
	tx bool
}

func (s *session) Exec(ctx context.Context, stmt replica.Statement) (replica.Result, error) {
	return s.c.run(ctx, stmt, false)
}

func (s *session) Query(ctx context.Context, stmt replica.Statement) (replica.Result, error) {
	return s.c.run(ctx, stmt, true)
}

func (s *session) Commit() error {
	if s.c.currentMode() == ModeDown {
		return s.c.unavailable("commit")
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.committed++
	return nil
}

func (s *session) Rollback() error {
	if s.c.currentMode() == ModeDown {
		return s.c.unavailable("rollback")
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.rolledBack++
	return nil
}

func (s *session) Close() error { return nil }
