package replica

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dHA/lib/dialect"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Family selects the connection family of a SQL connector.
type Family string

const (
	FamilyPlain       Family = "plain"
	FamilyCoordinated Family = "coordinated"
)

// ParseFamily parses a connection family name.
func ParseFamily(s string) (Family, error) {
	switch Family(s) {
	case FamilyPlain, "":
		return FamilyPlain, nil
	case FamilyCoordinated:
		return FamilyCoordinated, nil
	default:
		return "", fmt.Errorf("invalid connection family %q (expected plain or coordinated)", s)
	}
}

// SQLConfig configures a database/sql backed connector.
type SQLConfig struct {
	ID           string
	Driver       string // sqlite3, postgres, mysql
	DSN          string
	Family       Family
	Dialect      dialect.Dialect
	MaxOpenConns int // 0 = driver default
}

// NewSQLConnector creates a connector for the given configuration.
// The underlying pool is opened lazily, an unreachable replica does not fail here but on the first Ping.
func NewSQLConnector(cfg SQLConfig) (Connector, error) {
	if cfg.Dialect == nil {
		return nil, fmt.Errorf("replica %s: dialect is required", cfg.ID)
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("replica %s: %w", cfg.ID, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	base := sqlConnector{id: cfg.ID, db: db, dialect: cfg.Dialect}
	switch cfg.Family {
	case FamilyPlain, "":
		return &plainConnector{base}, nil
	case FamilyCoordinated:
		return &coordinatedConnector{base}, nil
	default:
		_ = db.Close()
		return nil, fmt.Errorf("replica %s: invalid connection family %q", cfg.ID, cfg.Family)
	}
}

// --------------------------------------------------------------------------
// Shared connector logic
// --------------------------------------------------------------------------

type sqlConnector struct {
	id      string
	db      *sql.DB
	dialect dialect.Dialect
}

func (c *sqlConnector) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, c.dialect.SimpleSQL())
	if err != nil {
		return &UnavailableError{ReplicaID: c.id, Op: "ping", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return &UnavailableError{ReplicaID: c.id, Op: "ping", Err: err}
	}
	return nil
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}

// --------------------------------------------------------------------------
// Plain family (shared *sql.DB pool)
// --------------------------------------------------------------------------

type plainConnector struct {
	sqlConnector
}

func (c *plainConnector) Connect(_ context.Context) (Session, error) {
	return &sqlSession{id: c.id, dialect: c.dialect, q: c.db}, nil
}

func (c *plainConnector) Begin(ctx context.Context) (TxSession, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapError(c.id, "begin", err)
	}
	return &txSession{sqlSession: sqlSession{id: c.id, dialect: c.dialect, q: tx}, tx: tx}, nil
}

// --------------------------------------------------------------------------
// Coordinated family (one dedicated *sql.Conn per session)
// --------------------------------------------------------------------------

type coordinatedConnector struct {
	sqlConnector
}

func (c *coordinatedConnector) Connect(ctx context.Context) (Session, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, &UnavailableError{ReplicaID: c.id, Op: "connect", Err: err}
	}
	return &sqlSession{id: c.id, dialect: c.dialect, q: conn, closer: conn.Close}, nil
}

func (c *coordinatedConnector) Begin(ctx context.Context) (TxSession, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, &UnavailableError{ReplicaID: c.id, Op: "connect", Err: err}
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return nil, wrapError(c.id, "begin", err)
	}
	return &txSession{sqlSession: sqlSession{id: c.id, dialect: c.dialect, q: tx, closer: conn.Close}, tx: tx}, nil
}

// --------------------------------------------------------------------------
// Sessions
// --------------------------------------------------------------------------

// querier is implemented by *sql.DB, *sql.Conn and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlSession struct {
	id      string
	dialect dialect.Dialect
	q       querier
	closer  func() error
	once    sync.Once
}

func (s *sqlSession) Exec(ctx context.Context, stmt Statement) (Result, error) {
	res, err := s.q.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return Result{}, wrapError(s.id, "exec", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// not every driver reports affected rows for every statement (e.g. DDL)
		affected = 0
	}
	return Result{RowsAffected: affected}, nil
}

func (s *sqlSession) Query(ctx context.Context, stmt Statement) (Result, error) {
	rows, err := s.q.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return Result{}, wrapError(s.id, "query", err)
	}
	defer rows.Close()

	res, err := materialize(rows, s.dialect)
	if err != nil {
		return Result{}, wrapError(s.id, "query", err)
	}
	return res, nil
}

func (s *sqlSession) Close() error {
	var err error
	s.once.Do(func() {
		if s.closer != nil {
			err = s.closer()
		}
	})
	return err
}

type txSession struct {
	sqlSession
	tx *sql.Tx
}

func (s *txSession) Commit() error {
	defer s.Close()
	return wrapError(s.id, "commit", s.tx.Commit())
}

func (s *txSession) Rollback() error {
	defer s.Close()
	err := s.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return wrapError(s.id, "rollback", err)
}

// Close rolls back a transaction that was neither committed nor rolled back
func (s *txSession) Close() error {
	_ = s.tx.Rollback()
	return s.sqlSession.Close()
}

// materialize reads all rows into a Result
func materialize(rows *sql.Rows, d dialect.Dialect) (Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return Result{}, err
	}

	res := Result{Columns: cols, ColumnTypes: make([]dialect.TypeCode, len(types))}
	for i, ct := range types {
		res.ColumnTypes[i] = d.ColumnType(ct)
	}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok && res.ColumnTypes[i] != dialect.TypeBinary {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	return res, rows.Err()
}
