package transport

import (
	"context"
	"io"

	"github.com/ValentinKolb/dHA/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes the id of the addressed cluster and a request as parameters and returns a response
type ServerHandleFunc func(clusterID string, req []byte) (resp []byte)

// MetricsWriteFunc writes all metrics in the Prometheus text format
type MetricsWriteFunc func(w io.Writer)

// IRPCServerTransport is the interface for the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	// The transport layer is responsible for extracting the cluster id of the request
	RegisterHandler(handler ServerHandleFunc)
	// RegisterMetrics registers the writer used to expose metrics, transports without
	// a metrics endpoint ignore it
	RegisterMetrics(metrics MetricsWriteFunc)
	// Listen starts the transport layer and serves requests until ctx is done
	Listen(ctx context.Context, config common.ServerConfig) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(clusterID string, req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
