package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dHA/cmd/replicas"
	"github.com/ValentinKolb/dHA/cmd/serve"
	"github.com/ValentinKolb/dHA/cmd/sql"
	"github.com/ValentinKolb/dHA/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dha",
		Short: "high availability for relational databases",
		Long: fmt.Sprintf(`dHA (v%s)

A coordinator in front of a set of identical relational databases. Writes are
executed on every active replica, reads are balanced across them, and replicas
that fail are removed from the active set until an administrator restores them.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dHA",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dHA v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper and read the config file once the flags are parsed
	cobra.OnInitialize(util.InitConfig, func() {
		cobra.CheckErr(util.ReadConfigFile())
	})

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(replicas.ReplicaCommands)
	RootCmd.AddCommand(sql.SQLCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http)"))
	key = "config"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("config file (yaml, toml or json)"))
	_ = viper.BindPFlag(key, RootCmd.PersistentFlags().Lookup(key))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
