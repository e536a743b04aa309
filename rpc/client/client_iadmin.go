package client

import (
	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/ValentinKolb/dHA/rpc/common"
	"github.com/ValentinKolb/dHA/rpc/serializer"
	"github.com/ValentinKolb/dHA/rpc/transport"
)

// NewRPCAdmin creates a new RPC admin client
// The function takes a cluster ID, a config, a transport and a serializer as parameters
// It returns an IAdmin and an error
func NewRPCAdmin(
	clusterID string,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (IAdmin, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC admin
	a := rpcAdmin{
		rpcClientAdapter{
			clusterID:  clusterID,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC admin
	return &a, nil
}

type rpcAdmin struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see client.IAdmin)
// --------------------------------------------------------------------------

func (a *rpcAdmin) List() ([]cluster.ReplicaStatus, error) {
	resp, err := a.invoke(common.NewListRequest())
	if err != nil {
		return nil, err
	}
	return resp.Replicas, nil
}

func (a *rpcAdmin) Status() (cluster.Status, error) {
	resp, err := a.invoke(common.NewStatusRequest())
	if err != nil {
		return cluster.Status{}, err
	}
	if resp.Status == nil {
		return cluster.Status{}, errMissingField(common.MsgTStatus, "status")
	}
	return *resp.Status, nil
}

func (a *rpcAdmin) Activate(replicaID string) (bool, error) {
	return a.membership(common.MsgTActivate, replicaID)
}

func (a *rpcAdmin) Deactivate(replicaID string) (bool, error) {
	return a.membership(common.MsgTDeactivate, replicaID)
}

func (a *rpcAdmin) Resolve(replicaID string) (bool, error) {
	return a.membership(common.MsgTResolve, replicaID)
}

func (a *rpcAdmin) Exec(op cluster.Operation) (replica.Result, error) {
	return a.result(common.NewExecRequest(op))
}

func (a *rpcAdmin) Query(stmt replica.Statement) (replica.Result, error) {
	return a.result(common.NewQueryRequest(stmt))
}

func (a *rpcAdmin) Close() error {
	return a.transport.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (a *rpcAdmin) membership(msgType common.MessageType, replicaID string) (bool, error) {
	resp, err := a.invoke(common.NewMembershipRequest(msgType, replicaID))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (a *rpcAdmin) result(req *common.Message) (replica.Result, error) {
	resp, err := a.invoke(req)
	if err != nil {
		return replica.Result{}, err
	}
	if resp.Result == nil {
		return replica.Result{}, errMissingField(req.MsgType, "result")
	}
	return *resp.Result, nil
}
