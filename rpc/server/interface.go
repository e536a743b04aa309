package server

import (
	"context"

	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/ValentinKolb/dHA/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// It takes a Message and the addressed cluster as parameters.
	// It returns a Message as a response
	// If an error occurs, it should be set in the response
	Handle(ctx context.Context, req *common.Message, c *cluster.Cluster) (resp *common.Message)
}
