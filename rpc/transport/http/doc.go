// Package http implements the HTTP transport for RPC communication between the
// dHA server and its clients.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Requests are sent as
//     POST /{cluster} to the configured endpoints, selected round-robin. A failed
//     attempt is retried on the next endpoint.
//
//   - httpServerTransport: Implements IRPCServerTransport. Routes POST /{cluster}
//     to the registered handler and serves the Prometheus metrics on GET /metrics.
//     Listen shuts the server down gracefully when its context is done.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use after Connect. It uses an
//	atomic counter for the round-robin selection of endpoints.
package http
