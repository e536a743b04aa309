// Package store provides the interface for the durable key-value backing store the
// cluster state is persisted in, together with a unified error type.
//
// The package focuses on:
//   - A unified interface (IStore) for key-value operations across different backends
//   - Ordered prefix scans, which the state manager uses to replay the durability log
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining operations for interacting with
//     a key-value store. All implementations share this common interface, allowing
//     the state manager to switch between backends without code changes.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages (see Error and RetCode).
//
// Implementations:
//
//	- Local Store (lstore): in-memory, thread-safe, nothing survives a restart.
//	  Suitable for tests and for deployments that accept losing recovery information.
//	  Available in the "github.com/ValentinKolb/dHA/lib/store/lstore" package.
//
//	- SQL Store (sqlstore): a single SQLite file accessed through database/sql. Every
//	  write is committed with synchronous=FULL before it returns.
//	  Available in the "github.com/ValentinKolb/dHA/lib/store/sqlstore" package.
package store
