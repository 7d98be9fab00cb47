package config

import (
	"time"
)

type MarketConfig struct {
	LogConfig `yaml:",inline"`

	Host string `json:"host,omitempty" yaml:"host"`
	Port int    `json:"port,omitempty" yaml:"port"`

	// DatabaseUrl selects the storage backend. A postgres:// or postgresql://
	// URL opens PostgreSQL, anything else is treated as a SQLite path.
	DatabaseUrl         string `json:"databaseUrl,omitempty" yaml:"databaseUrl"`
	DatabaseAutoMigrate bool   `json:"databaseAutoMigrate,omitempty" yaml:"databaseAutoMigrate"`

	Ledger      LedgerConfig      `json:"ledger" yaml:"ledger"`
	Jobs        JobsConfig        `json:"jobs" yaml:"jobs"`
	Maintenance MaintenanceConfig `json:"maintenance" yaml:"maintenance"`
}

type LedgerConfig struct {
	// ConfirmDelay is how long a new transaction stays pending before the
	// confirmation job becomes due.
	ConfirmDelay time.Duration `json:"confirmDelay,omitempty" yaml:"confirmDelay"`
}

type JobsConfig struct {
	PollInterval time.Duration `json:"pollInterval,omitempty" yaml:"pollInterval"`
	BatchSize    int           `json:"batchSize,omitempty" yaml:"batchSize"`

	// Lease is how long a claimed job may run before it is handed out again.
	Lease       time.Duration `json:"lease,omitempty" yaml:"lease"`
	MaxAttempts int           `json:"maxAttempts,omitempty" yaml:"maxAttempts"`
}

type MaintenanceConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	AgentMetricsInterval     time.Duration `json:"agentMetricsInterval,omitempty" yaml:"agentMetricsInterval"`
	MessageCleanupInterval   time.Duration `json:"messageCleanupInterval,omitempty" yaml:"messageCleanupInterval"`
	AgentTransactionInterval time.Duration `json:"agentTransactionInterval,omitempty" yaml:"agentTransactionInterval"`

	// MessageRetention is the age after which chat messages are evicted.
	MessageRetention time.Duration `json:"messageRetention,omitempty" yaml:"messageRetention"`
}

func NewLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		ConfirmDelay: 3 * time.Second,
	}
}

func NewJobsConfig() *JobsConfig {
	return &JobsConfig{
		PollInterval: 500 * time.Millisecond,
		BatchSize:    32,
		Lease:        time.Minute,
		MaxAttempts:  3,
	}
}

func NewMaintenanceConfig() *MaintenanceConfig {
	return &MaintenanceConfig{
		Enabled:                  true,
		AgentMetricsInterval:     5 * time.Minute,
		MessageCleanupInterval:   24 * time.Hour,
		AgentTransactionInterval: 10 * time.Minute,
		MessageRetention:         7 * 24 * time.Hour,
	}
}

// NewMarketConfig creates a MarketConfig with the defaults used by
// `agentmarket serve`. Values can be overridden by a YAML file and by
// environment variables, see LoadMarketConfig.
func NewMarketConfig() *MarketConfig {
	return &MarketConfig{
		LogConfig:           *NewLogConfig(),
		Host:                "0.0.0.0",
		Port:                9080,
		DatabaseUrl:         "agentmarket.db",
		DatabaseAutoMigrate: true,
		Ledger:              *NewLedgerConfig(),
		Jobs:                *NewJobsConfig(),
		Maintenance:         *NewMaintenanceConfig(),
	}
}
