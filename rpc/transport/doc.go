// Package transport defines how serialized messages travel between dHA clients and the
// server. A server transport delivers every request together with the id of the addressed
// cluster to a ServerHandleFunc. A client transport sends a request to one of its
// configured endpoints and returns the raw response.
//
// The http subpackage is the only implementation.
package transport
