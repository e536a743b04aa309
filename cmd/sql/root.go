package sql

import (
	"github.com/ValentinKolb/dHA/cmd/util"
	"github.com/ValentinKolb/dHA/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcAdmin client.IAdmin

	// SQLCommands represents the statement command group
	SQLCommands = &cobra.Command{
		Use:                "sql",
		Short:              "Execute statements through a cluster",
		PersistentPreRunE:  setupAdminClient,
		PersistentPostRunE: closeAdminClient,
	}
)

func init() {
	// Add common RPC flags to the sql commands
	util.SetupRPCClientFlags(SQLCommands)

	execCmd.Flags().StringSlice("tables", nil, util.WrapString("Tables written by the statement, they are locked while it runs"))
	execCmd.Flags().Bool("structural", false, util.WrapString("The statement changes the schema (DDL), its tables are locked exclusively"))
	execCmd.Flags().Bool("idempotent", false, util.WrapString("The statement can be repeated safely, an interrupted execution never flags replicas for resynchronization"))

	// Add subcommands
	SQLCommands.AddCommand(execCmd)
	SQLCommands.AddCommand(queryCmd)
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
