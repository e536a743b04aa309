// Package client implements the RPC client of dHA. NewRPCAdmin returns an IAdmin
// that forwards membership and statement operations of one cluster to remote
// servers via the configured transport and serializer.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:     []string{"http://localhost:8080"},
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	}
//
//	admin, _ := client.NewRPCAdmin("shop", config, http.NewHttpClientTransport(), serializer.NewJSONSerializer())
//	defer admin.Close()
//
//	replicas, _ := admin.List()
//	_, _ = admin.Deactivate("db-2")
//	res, _ := admin.Exec(cluster.Operation{
//	  Statement: replica.Statement{SQL: "UPDATE orders SET state = 'paid' WHERE id = 7"},
//	  Tables:    []string{"orders"},
//	})
//
// Errors reported by the server are returned as *RemoteError carrying the server
// side message. Transport and decoding failures are returned unchanged.
//
// Thread Safety:
//
//	The client is safe for concurrent use from multiple goroutines.
package client
