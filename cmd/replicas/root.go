package replicas

import (
	"github.com/ValentinKolb/dHA/cmd/util"
	"github.com/ValentinKolb/dHA/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcAdmin client.IAdmin

	// ReplicaCommands represents the replica membership command group
	ReplicaCommands = &cobra.Command{
		Use:                "replicas",
		Short:              "Inspect and change the active replica set of a cluster",
		PersistentPreRunE:  setupAdminClient,
		PersistentPostRunE: closeAdminClient,
	}
)

func init() {
	// Add common RPC flags to the replica commands
	util.SetupRPCClientFlags(ReplicaCommands)

	// Add subcommands
	ReplicaCommands.AddCommand(listCmd)
	ReplicaCommands.AddCommand(statusCmd)
	ReplicaCommands.AddCommand(activateCmd)
	ReplicaCommands.AddCommand(deactivateCmd)
	ReplicaCommands.AddCommand(resolveCmd)
}

// setupAdminClient initializes the RPC admin client
func setupAdminClient(cmd *cobra.Command, _ []string) error {
	var err error
	rpcAdmin, err = util.NewAdminClient(cmd)
	return err
}

func closeAdminClient(_ *cobra.Command, _ []string) error {
	if rpcAdmin == nil {
		return nil
	}
	return rpcAdmin.Close()
}
