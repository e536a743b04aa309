// Package rpc is the remote administration and statement interface of a dHA server.
// Clients use it to send reads and writes to a cluster of replicas and to manage
// the cluster membership.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol, the server and client configuration and the
//     logger setup shared by all packages.
//
//   - transport: Network communication abstractions. The http implementation
//     addresses a cluster by its ID in the request path.
//
//   - serializer: Message serialization (JSON, GOB) for converting between
//     Message objects and byte arrays.
//
//   - client: The IAdmin client for remote membership changes and statements.
//
//   - server: The RPC server that routes requests to the registered clusters.
package rpc
