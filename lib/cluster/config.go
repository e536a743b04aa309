package cluster

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dHA/lib/balancer"
	"github.com/ValentinKolb/dHA/lib/dialect"
	"github.com/ValentinKolb/dHA/lib/lockmgr"
	"github.com/VictoriaMetrics/metrics"
)

// Config holds the settings of one cluster.
type Config struct {
	// ID names the cluster in the state store, in logs and in metric labels.
	ID string
	// Dialect renders the statements the cluster issues itself (ping).
	Dialect dialect.Dialect
	// Balancer is the read selection policy.
	Balancer balancer.Policy

	// TxPoolSize bounds the concurrent replica calls of client transactions. Must be > 0.
	TxPoolSize int
	// PoolSize bounds the concurrent replica calls of non transactional operations (0 = unbounded).
	PoolSize int

	// LockTimeout bounds the wait for a lock (0 = only bounded by the caller's context).
	LockTimeout time.Duration
	// OperationTimeout bounds a single call on a single replica (0 = no bound).
	OperationTimeout time.Duration
	// PingTimeout bounds a liveness probe.
	PingTimeout time.Duration
	// HealthInterval is the period of the health monitor (0 = disabled).
	HealthInterval time.Duration
	// Retention is the age after which an open invocation is abandoned and its missing replicas flagged.
	Retention time.Duration
}

// DefaultConfig returns a config with the defaults of the serve command.
func DefaultConfig(id string) Config {
	return Config{
		ID:               id,
		Dialect:          dialect.Standard(),
		Balancer:         balancer.PolicyRoundRobin,
		TxPoolSize:       64,
		PoolSize:         0,
		LockTimeout:      10 * time.Second,
		OperationTimeout: 30 * time.Second,
		PingTimeout:      2 * time.Second,
		HealthInterval:   5 * time.Second,
		Retention:        10 * time.Minute,
	}
}

func (cfg *Config) validate() error {
	switch {
	case cfg.ID == "":
		return fmt.Errorf("cluster: id must not be empty")
	case cfg.Dialect == nil:
		return fmt.Errorf("cluster %s: dialect is required", cfg.ID)
	case cfg.TxPoolSize <= 0:
		return fmt.Errorf("cluster %s: transaction pool size must be > 0", cfg.ID)
	case cfg.PoolSize < 0:
		return fmt.Errorf("cluster %s: pool size must be >= 0", cfg.ID)
	case cfg.PingTimeout <= 0:
		return fmt.Errorf("cluster %s: ping timeout must be > 0", cfg.ID)
	case cfg.Retention <= 0:
		return fmt.Errorf("cluster %s: retention must be > 0", cfg.ID)
	}
	if _, err := balancer.ParsePolicy(string(cfg.Balancer)); err != nil {
		return fmt.Errorf("cluster %s: %w", cfg.ID, err)
	}
	return nil
}

// Option customizes a cluster.
type Option func(c *Cluster)

// WithLockManager replaces the lock manager created from Config.LockTimeout.
func WithLockManager(mgr lockmgr.ILockManager) Option {
	return func(c *Cluster) {
		c.locks = mgr
	}
}

// WithMetricsSet registers the cluster metrics in set instead of a private set.
func WithMetricsSet(set *metrics.Set) Option {
	return func(c *Cluster) {
		c.metricsSet = set
	}
}
