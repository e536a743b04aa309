package replicas

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/spf13/cobra"
)

var (
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists all configured replicas and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			replicas, err := rpcAdmin.List()
			if err != nil {
				return err
			}
			printReplicas(replicas)
			return nil
		},
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Prints the status of the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := rpcAdmin.Status()
			if err != nil {
				return err
			}
			fmt.Print(status.String())
			return nil
		},
	}
	activateCmd = &cobra.Command{
		Use:   "activate [id]",
		Short: "Adds a replica to the active set",
		Long:  "Adds a replica to the active set. The replica must hold the same data as the active replicas, dHA does not copy data. Replicas flagged for resynchronization must be resolved instead.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printChange(args[0], "activated", "already active")(rpcAdmin.Activate(args[0]))
		},
	}
	deactivateCmd = &cobra.Command{
		Use:   "deactivate [id]",
		Short: "Removes a replica from the active set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printChange(args[0], "deactivated", "already inactive")(rpcAdmin.Deactivate(args[0]))
		},
	}
	resolveCmd = &cobra.Command{
		Use:   "resolve [id]",
		Short: "Confirms that a flagged replica was resynchronized and activates it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printChange(args[0], "resolved and activated", "already active")(rpcAdmin.Resolve(args[0]))
		},
	}
)

// printChange returns a function printing the result of a membership change
func printChange(id, changedMsg, unchangedMsg string) func(bool, error) error {
	return func(changed bool, err error) error {
		if err != nil {
			return err
		}
		if changed {
			fmt.Printf("replica %s %s\n", id, changedMsg)
		} else {
			fmt.Printf("replica %s %s\n", id, unchangedMsg)
		}
		return nil
	}
}

func printReplicas(replicas []cluster.ReplicaStatus) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATE\tWEIGHT\tIN-FLIGHT\tCALLS\tMEAN\tP99")
	for _, r := range replicas {
		state := "inactive"
		switch {
		case r.ResyncRequired:
			state = "resync"
		case r.Active:
			state = "active"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n", r.ID, state, r.Weight, r.InFlight, r.Calls, r.MeanLatency, r.P99Latency)
	}
	_ = w.Flush()
}
