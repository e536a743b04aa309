// Package sqlstore implements store.IStore on top of a single SQLite database file
// accessed through database/sql and the mattn/go-sqlite3 driver.
//
// The schema is a single table:
//
//	CREATE TABLE kv (key TEXT PRIMARY KEY, value BLOB NOT NULL)
//
// The database is opened in WAL mode with synchronous=FULL, so a write that returned
// without error survives a process crash or power loss. Multi-key deletes run in one
// transaction. Keys are compared with SQLite's BINARY collation, which gives Scan the
// same byte-wise ordering as the in-memory implementation.
package sqlstore
