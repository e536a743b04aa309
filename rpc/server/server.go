package server

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"runtime"
	"sort"
	"syscall"

	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/ValentinKolb/dHA/rpc/common"
	"github.com/ValentinKolb/dHA/rpc/serializer"
	"github.com/ValentinKolb/dHA/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverCluster is a struct that represents a served cluster in the RPC server
// It contains the cluster and the adapter that handles requests for it
type serverCluster struct {
	Cluster *cluster.Cluster
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//	s.Register(c)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", config.String())

	// Create the RPC server
	return &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		clusters:   xsync.NewMapOf[string, serverCluster](),
		ctx:        context.Background(),
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	clusters   *xsync.MapOf[string, serverCluster]

	// ctx is passed to every cluster operation, it is the context of Serve
	ctx context.Context
}

// Register adds a cluster to the server. Requests are routed to it by its id.
func (s *rpcServer) Register(c *cluster.Cluster) {
	s.clusters.Store(c.ID(), serverCluster{
		Cluster: c,
		Adapter: NewClusterServerAdapter(),
	})
	Logger.Infof("registered cluster %s", c.ID())
}

// Handler returns the function that decodes a request, executes it against the addressed
// cluster and encodes the response
func (s *rpcServer) Handler() transport.ServerHandleFunc {
	return func(clusterID string, req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		// Get appropriate cluster
		served, ok := s.clusters.Load(clusterID)

		// Case cluster does not exist -> error
		if !ok {
			respMsg = *common.NewErrorResponse(fmt.Sprintf("cluster %s not found", clusterID))
		} else {
			// Decode the request
			if err := s.serializer.Deserialize(req, &msg); err != nil {
				respMsg = *common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
			} else {
				// Let the adapter handle the request
				respMsg = *served.Adapter.Handle(s.ctx, &msg, served.Cluster)
			}
		}

		// Return result
		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	}
}

// WriteMetrics writes the metrics of all registered clusters and of the process
func (s *rpcServer) WriteMetrics(w io.Writer) {
	var ids []string
	s.clusters.Range(func(id string, _ serverCluster) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)
	for _, id := range ids {
		if served, ok := s.clusters.Load(id); ok {
			served.Cluster.WriteMetrics(w)
		}
	}
	metrics.WriteProcessMetrics(w)
}

// Serve starts the transport layer and blocks until ctx is done.
// The registered clusters are not stopped, that is up to the caller.
func (s *rpcServer) Serve(ctx context.Context) error {
	if s.clusters.Size() == 0 {
		return fmt.Errorf("no cluster registered")
	}
	s.ctx = ctx

	// Configure the transport layer
	s.transport.RegisterHandler(s.Handler())
	s.transport.RegisterMetrics(s.WriteMetrics)

	Logger.Infof("dHA setup completed successfully")
	return s.transport.Listen(ctx, s.config)
}
