package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dHA/lib/balancer"
	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/ValentinKolb/dHA/lib/dialect"
	"github.com/ValentinKolb/dHA/lib/replica"
)

// --------------------------------------------------------------------------
// helper functions to interface with the cluster (for the server util)
// --------------------------------------------------------------------------

// ToClusterConfig converts the ServerConfig to the configuration of the served cluster
func (c *ServerConfig) ToClusterConfig() (cluster.Config, error) {
	d, err := dialect.ByName(c.Dialect)
	if err != nil {
		return cluster.Config{}, err
	}
	policy, err := balancer.ParsePolicy(c.Balancer)
	if err != nil {
		return cluster.Config{}, err
	}
	return cluster.Config{
		ID:               c.ClusterID,
		Dialect:          d,
		Balancer:         policy,
		TxPoolSize:       c.TxPoolSize,
		PoolSize:         c.PoolSize,
		LockTimeout:      c.LockTimeout,
		OperationTimeout: c.OperationTimeout,
		PingTimeout:      c.PingTimeout,
		HealthInterval:   c.HealthInterval,
		Retention:        c.Retention,
	}, nil
}

// ToSQLConfigs creates the connector configuration of every configured replica
func (c *ServerConfig) ToSQLConfigs() ([]replica.SQLConfig, error) {
	d, err := dialect.ByName(c.Dialect)
	if err != nil {
		return nil, err
	}
	family, err := replica.ParseFamily(c.ConnectionFamily)
	if err != nil {
		return nil, err
	}
	configs := make([]replica.SQLConfig, len(c.Replicas))
	for i, r := range c.Replicas {
		configs[i] = replica.SQLConfig{
			ID:      r.ID,
			Driver:  r.Driver,
			DSN:     r.DSN,
			Family:  family,
			Dialect: d,
		}
	}
	return configs, nil
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type StateBackend string

const (
	StateBackendSQLite StateBackend = "sqlite"
	StateBackendMemory StateBackend = "memory"
)

// ReplicaConfig describes one backend database of the served cluster
type ReplicaConfig struct {
	ID     string `mapstructure:"id"`
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Weight int    `mapstructure:"weight"`
}

// ServerConfig holds all configuration parameters of a dHA server.
type ServerConfig struct {
	// the served cluster
	ClusterID        string
	Replicas         []ReplicaConfig
	Dialect          string
	Balancer         string
	ConnectionFamily string

	// cluster state persistence
	StateBackend StateBackend
	StateDir     string

	// worker pools
	TxPoolSize int
	PoolSize   int

	// timing
	LockTimeout      time.Duration
	OperationTimeout time.Duration
	PingTimeout      time.Duration
	HealthInterval   time.Duration
	Retention        time.Duration

	// HTTP api settings
	Endpoint string

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Cluster
	addSection("Cluster")
	addField("Cluster ID", c.ClusterID)
	addField("Dialect", c.Dialect)
	addField("Balancer", c.Balancer)
	addField("Connection Family", c.ConnectionFamily)
	addField("Transaction Pool", strconv.Itoa(c.TxPoolSize))
	if c.PoolSize == 0 {
		addField("Operation Pool", "unbounded")
	} else {
		addField("Operation Pool", strconv.Itoa(c.PoolSize))
	}

	// Timing
	addSection("Timing")
	addField("Lock Timeout", c.LockTimeout.String())
	addField("Operation Timeout", c.OperationTimeout.String())
	addField("Ping Timeout", c.PingTimeout.String())
	addField("Health Interval", c.HealthInterval.String())
	addField("Retention", c.Retention.String())

	// State
	addSection("State")
	addField("Backend", string(c.StateBackend))
	if c.StateBackend == StateBackendSQLite {
		addField("Directory", c.StateDir)
	}

	// Replicas, sorted by id for consistent output. The dsn may contain credentials and is never printed.
	addSection("Replicas")
	replicas := append([]ReplicaConfig(nil), c.Replicas...)
	sort.Slice(replicas, func(i, j int) bool { return replicas[i].ID < replicas[j].ID })
	for _, r := range replicas {
		addField(r.ID, fmt.Sprintf("%s (weight %d)", r.Driver, r.Weight))
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
