package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/ValentinKolb/dHA/rpc/common"
)

func NewClusterServerAdapter() IRPCServerAdapter {
	return &clusterServerAdapterImpl{}
}

type clusterServerAdapterImpl struct{}

func (adapter *clusterServerAdapterImpl) Handle(ctx context.Context, req *common.Message, c *cluster.Cluster) *common.Message {
	// Check for nil cluster
	if c == nil {
		return common.NewErrorResponse("handler: cluster is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTList:
		return common.NewListResponse(c.Status().Replicas)
	case common.MsgTStatus:
		return common.NewStatusResponse(c.Status())
	case common.MsgTActivate:
		changed, err := c.Activate(ctx, req.ReplicaID)
		return common.NewMembershipResponse(req.MsgType, changed, err)
	case common.MsgTDeactivate:
		changed, err := c.Deactivate(ctx, req.ReplicaID)
		return common.NewMembershipResponse(req.MsgType, changed, err)
	case common.MsgTResolve:
		changed, err := c.Resolve(ctx, req.ReplicaID)
		return common.NewMembershipResponse(req.MsgType, changed, err)
	case common.MsgTExec:
		res, err := c.Write(ctx, req.Operation())
		return common.NewResultResponse(req.MsgType, res, err)
	case common.MsgTQuery:
		res, err := c.Read(ctx, req.Operation())
		return common.NewResultResponse(req.MsgType, res, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC ClusterAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
