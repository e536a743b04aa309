// Package replica describes the backend databases behind a cluster and how to talk to them.
//
// A Replica is the static identity of one backend database: a stable ID, a weight used by
// weighted balancing, and a Connector. The liveness flag of a replica is owned by the
// cluster; the replica never changes it itself.
//
// Connectors are a capability interface (Connect, Begin, Ping, Close) with one concrete
// variant per connection family, chosen at configuration time:
//
//   - FamilyPlain: sessions share the replica's *sql.DB connection pool.
//   - FamilyCoordinated: every session pins one dedicated *sql.Conn for its whole lifetime,
//     which is what a transaction coordinator needs to keep a branch on one connection.
//
// Errors returned by sessions are either a *StatementError (the engine deterministically
// rejected the statement, every healthy replica is expected to do the same) or a
// *UnavailableError (connectivity, engine or timeout failure local to one replica).
package replica
