package sql

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ValentinKolb/dHA/cmd/util"
	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/spf13/cobra"
)

var (
	execCmd = &cobra.Command{
		Use:   "exec [statement] [args...]",
		Short: "Executes a write on all active replicas",
		Long:  "Executes a write on all active replicas. Positional arguments are passed as statement parameters, NULL is passed as null.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, _ := cmd.Flags().GetStringSlice("tables")
			structural, _ := cmd.Flags().GetBool("structural")
			idempotent, _ := cmd.Flags().GetBool("idempotent")

			res, err := rpcAdmin.Exec(cluster.Operation{
				Statement:  replica.Statement{SQL: args[0], Args: util.ParseArgs(args[1:])},
				Tables:     tables,
				Structural: structural,
				Idempotent: idempotent,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%d row(s) affected\n", res.RowsAffected)
			return nil
		},
	}
	queryCmd = &cobra.Command{
		Use:   "query [statement] [args...]",
		Short: "Executes a read on one active replica",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rpcAdmin.Query(replica.Statement{SQL: args[0], Args: util.ParseArgs(args[1:])})
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
)

func printResult(res replica.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
	fmt.Printf("(%d row(s))\n", len(res.Rows))
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("%x", v)
	default:
		return fmt.Sprint(v)
	}
}
