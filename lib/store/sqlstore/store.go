package sqlstore

import (
	"database/sql"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/ValentinKolb/dHA/lib/store"
	"github.com/lni/dragonboat/v4/logger"

	_ "github.com/mattn/go-sqlite3"
)

var log = logger.GetLogger("store")

const schema = `CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value BLOB NOT NULL)`

type storeImpl struct {
	db     *sql.DB
	closed atomic.Bool
}

// NewSQLStore opens (or creates) the SQLite database at path and returns a durable store.
// Use ":memory:" for a throw-away database (tests).
func NewSQLStore(path string) (store.IStore, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}

	// SQLite serializes writers anyway, a single connection avoids SQLITE_BUSY
	// and keeps ":memory:" databases alive for the lifetime of the store
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("failed to create schema: %v", err))
	}

	log.Infof("opened state store at %s", path)
	return &storeImpl{db: db}, nil
}

// dsn builds the go-sqlite3 connection string with the pragmas needed for durability
func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=off"
	}
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "FULL")
	q.Set("_busy_timeout", "5000")
	return "file:" + path + "?" + q.Encode()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return store.NewError(store.RetCInternalError, err.Error())
	}
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, store.ErrClosed
	}
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, store.NewError(store.RetCInternalError, err.Error())
	}
	return value, true, nil
}

func (s *storeImpl) Delete(keys ...string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return store.NewError(store.RetCInternalError, err.Error())
	}
	stmt, err := tx.Prepare(`DELETE FROM kv WHERE key = ?`)
	if err != nil {
		_ = tx.Rollback()
		return store.NewError(store.RetCInternalError, err.Error())
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.Exec(key); err != nil {
			_ = tx.Rollback()
			return store.NewError(store.RetCInternalError, err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return store.NewError(store.RetCInternalError, err.Error())
	}
	return nil
}

func (s *storeImpl) Scan(prefix string) ([]store.Entry, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	rows, err := s.db.Query(`SELECT key, value FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		var e store.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, store.NewError(store.RetCInternalError, err.Error())
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}
	return entries, nil
}

func (s *storeImpl) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
