// Package server routes RPC requests to the clusters served by one dHA process.
//
// A request names its cluster (the http transport takes it from the URL path). The server
// decodes the message, hands it to the IRPCServerAdapter created by NewClusterServerAdapter
// and encodes the response. Failures are always answered with a MsgTError message, the
// transport never sees an error.
//
//	s := server.NewRPCServer(config, http.NewHttpServerTransport(), serializer.NewJSONSerializer())
//	s.Register(c) // c is a started *cluster.Cluster
//	err := s.Serve(ctx)
//
// Serve also hands the metrics of all registered clusters together with the process
// metrics to the transport, which exposes them on GET /metrics.
package server
