package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dHA/cmd/util"
	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/ValentinKolb/dHA/lib/state"
	"github.com/ValentinKolb/dHA/lib/store"
	"github.com/ValentinKolb/dHA/lib/store/lstore"
	"github.com/ValentinKolb/dHA/lib/store/sqlstore"
	"github.com/ValentinKolb/dHA/rpc/common"
	"github.com/ValentinKolb/dHA/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the dHA server",
		Long: `Start the dHA server for one cluster of replicas. The configuration can be set via command line flags,
environment variables or a config file (--config). The format of the environment variables is DHA_<flag>
(e.g. DHA_OPERATION_TIMEOUT=15s). In a config file the replicas can be given as a list:

  replicas:
    - id: db-1
      driver: postgres
      dsn: postgres://dha@db-1/shop
      weight: 2`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	defaults := cluster.DefaultConfig("default")

	// add flags
	key := "replicas"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of replicas. Format: ID=DRIVER:DSN where DRIVER is one of: sqlite3, postgres, mysql"))

	key = "replica-weights"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of replica weights for the weighted-random balancer. Format: ID=N (default 1)"))

	key = "dialect"
	ServeCmd.PersistentFlags().String(key, "standard", cmdUtil.WrapString("SQL dialect of the replicas (standard, postgres, mysql, sqlite)"))

	key = "balancer"
	ServeCmd.PersistentFlags().String(key, string(defaults.Balancer), cmdUtil.WrapString("Read balancing policy (simple, round-robin, weighted-random, least-loaded)"))

	key = "connection-family"
	ServeCmd.PersistentFlags().String(key, string(replica.FamilyPlain), cmdUtil.WrapString("Connection family of the replicas. plain uses auto-commit sessions, coordinated runs every write in a transaction on each replica"))

	key = "state-backend"
	ServeCmd.PersistentFlags().String(key, string(common.StateBackendSQLite), cmdUtil.WrapString("Where the cluster state and durability log are kept (sqlite, memory). memory loses the state on restart and is meant for testing"))

	key = "state-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("Directory of the sqlite state database"))

	key = "tx-pool-size"
	ServeCmd.PersistentFlags().Int(key, defaults.TxPoolSize, cmdUtil.WrapString("Concurrent replica calls of client transactions"))

	key = "pool-size"
	ServeCmd.PersistentFlags().Int(key, defaults.PoolSize, cmdUtil.WrapString("Concurrent replica calls of single statements (0 = unbounded)"))

	key = "lock-timeout"
	ServeCmd.PersistentFlags().Duration(key, defaults.LockTimeout, cmdUtil.WrapString("Maximum wait for a table lock"))

	key = "operation-timeout"
	ServeCmd.PersistentFlags().Duration(key, defaults.OperationTimeout, cmdUtil.WrapString("Maximum duration of a statement on a single replica, a replica exceeding it is deactivated"))

	key = "ping-timeout"
	ServeCmd.PersistentFlags().Duration(key, defaults.PingTimeout, cmdUtil.WrapString("Maximum duration of a liveness probe"))

	key = "health-interval"
	ServeCmd.PersistentFlags().Duration(key, defaults.HealthInterval, cmdUtil.WrapString("Interval of the health monitor (0 = disabled)"))

	key = "retention"
	ServeCmd.PersistentFlags().Duration(key, defaults.Retention, cmdUtil.WrapString("Age after which an unfinished write is abandoned and its missing replicas are flagged for resynchronization"))

	key = "cluster-id"
	ServeCmd.PersistentFlags().String(key, defaults.ID, cmdUtil.WrapString("ID of the cluster, used in the state database, the API path and metric labels"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("The log level (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags, environment variables and config file
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	replicas, err := replicasFromConfig()
	if err != nil {
		return err
	}
	if len(replicas) == 0 {
		return fmt.Errorf("no replicas configured (use --replicas or a config file)")
	}

	serveCmdConfig.ClusterID = viper.GetString("cluster-id")
	serveCmdConfig.Replicas = replicas
	serveCmdConfig.Dialect = viper.GetString("dialect")
	serveCmdConfig.Balancer = viper.GetString("balancer")
	serveCmdConfig.ConnectionFamily = viper.GetString("connection-family")
	serveCmdConfig.StateBackend = common.StateBackend(viper.GetString("state-backend"))
	serveCmdConfig.StateDir = viper.GetString("state-dir")
	serveCmdConfig.TxPoolSize = viper.GetInt("tx-pool-size")
	serveCmdConfig.PoolSize = viper.GetInt("pool-size")
	serveCmdConfig.LockTimeout = viper.GetDuration("lock-timeout")
	serveCmdConfig.OperationTimeout = viper.GetDuration("operation-timeout")
	serveCmdConfig.PingTimeout = viper.GetDuration("ping-timeout")
	serveCmdConfig.HealthInterval = viper.GetDuration("health-interval")
	serveCmdConfig.Retention = viper.GetDuration("retention")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	switch serveCmdConfig.StateBackend {
	case common.StateBackendSQLite, common.StateBackendMemory:
	default:
		return fmt.Errorf("invalid state backend: %s (expected one of: sqlite, memory)", serveCmdConfig.StateBackend)
	}

	// validate the conversions early, run uses them again
	if _, err := serveCmdConfig.ToClusterConfig(); err != nil {
		return err
	}
	if _, err := serveCmdConfig.ToSQLConfigs(); err != nil {
		return err
	}
	return nil
}

// replicasFromConfig reads the replica definitions. Flags and environment variables
// use the ID=DRIVER:DSN list format, a config file may use a list of objects instead.
func replicasFromConfig() ([]common.ReplicaConfig, error) {
	if s, ok := viper.Get("replicas").(string); ok {
		return cmdUtil.ParseReplicas(s, viper.GetString("replica-weights"))
	}

	var replicas []common.ReplicaConfig
	if err := viper.UnmarshalKey("replicas", &replicas); err != nil {
		return nil, fmt.Errorf("invalid replicas in config file: %w", err)
	}
	for i := range replicas {
		if replicas[i].ID == "" || replicas[i].Driver == "" || replicas[i].DSN == "" {
			return nil, fmt.Errorf("invalid replica %d in config file: id, driver and dsn are required", i)
		}
		if replicas[i].Weight == 0 {
			replicas[i].Weight = 1
		}
	}
	return replicas, nil
}

// run starts the cluster and serves it until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// open the cluster state
	sm, err := openState(serveCmdConfig)
	if err != nil {
		return err
	}
	defer func() { _ = sm.Close() }()

	// create the replicas
	replicas, err := openReplicas(serveCmdConfig)
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range replicas {
			_ = r.Connector.Close()
		}
	}()

	// create and start the cluster
	cfg, err := serveCmdConfig.ToClusterConfig()
	if err != nil {
		return err
	}
	c, err := cluster.New(cfg, replicas, sm)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop()

	serv := server.NewRPCServer(*serveCmdConfig, t, s)
	serv.Register(c)
	return serv.Serve(ctx)
}

// openState opens the state store of the configured backend
func openState(config *common.ServerConfig) (state.IStateManager, error) {
	var st store.IStore
	switch config.StateBackend {
	case common.StateBackendMemory:
		st = lstore.NewLocalStore()
	default:
		if err := os.MkdirAll(config.StateDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		var err error
		st, err = sqlstore.NewSQLStore(filepath.Join(config.StateDir, "state.db"))
		if err != nil {
			return nil, err
		}
	}

	sm, err := state.NewStateManager(st, config.ClusterID)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return sm, nil
}

// openReplicas creates the connectors of all configured replicas
func openReplicas(config *common.ServerConfig) ([]*replica.Replica, error) {
	sqlConfigs, err := config.ToSQLConfigs()
	if err != nil {
		return nil, err
	}

	replicas := make([]*replica.Replica, 0, len(sqlConfigs))
	for i, sc := range sqlConfigs {
		connector, err := replica.NewSQLConnector(sc)
		if err != nil {
			for _, r := range replicas {
				_ = r.Connector.Close()
			}
			return nil, err
		}
		replicas = append(replicas, replica.New(sc.ID, config.Replicas[i].Weight, connector))
	}
	return replicas, nil
}
