package config

import (
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/habiliai/agentmarket/errors"
	"github.com/joho/godotenv"
)

// LoadMarketConfig resolves the configuration in three layers: defaults,
// the YAML file at path (skipped when path is empty) and the environment.
// A .env file in the working directory is loaded into the environment first.
func LoadMarketConfig(path string) (*MarketConfig, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, errors.Wrapf(err, "failed to load .env")
		}
	}

	conf := NewMarketConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(raw, conf); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	if err := applyEnv(conf); err != nil {
		return nil, err
	}

	return conf, conf.Validate()
}

func (c *MarketConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Wrapf(errors.ErrInvalidConfig, "port %d out of range", c.Port)
	}
	if c.DatabaseUrl == "" {
		return errors.Wrapf(errors.ErrInvalidConfig, "database url is required")
	}
	if c.Ledger.ConfirmDelay < 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "confirm delay must not be negative")
	}
	if c.Jobs.PollInterval <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "job poll interval must be positive")
	}
	if c.Jobs.BatchSize <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "job batch size must be positive")
	}
	if c.Jobs.Lease <= 0 || c.Jobs.MaxAttempts <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "job lease and max attempts must be positive")
	}
	m := c.Maintenance
	if m.Enabled && (m.AgentMetricsInterval <= 0 || m.MessageCleanupInterval <= 0 || m.AgentTransactionInterval <= 0) {
		return errors.Wrapf(errors.ErrInvalidConfig, "maintenance intervals must be positive")
	}
	return nil
}

func applyEnv(c *MarketConfig) error {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogHandler, "LOG_HANDLER")
	setString(&c.Host, "HOST")
	setString(&c.DatabaseUrl, "DATABASE_URL")

	if err := setInt(&c.Port, "PORT"); err != nil {
		return err
	}
	if err := setBool(&c.DatabaseAutoMigrate, "DATABASE_AUTO_MIGRATE"); err != nil {
		return err
	}
	if err := setBool(&c.Maintenance.Enabled, "MAINTENANCE_ENABLED"); err != nil {
		return err
	}
	if err := setDuration(&c.Ledger.ConfirmDelay, "LEDGER_CONFIRM_DELAY"); err != nil {
		return err
	}
	if err := setDuration(&c.Jobs.PollInterval, "JOBS_POLL_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&c.Jobs.Lease, "JOBS_LEASE"); err != nil {
		return err
	}

	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidConfig, "%s: %v", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidConfig, "%s: %v", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidConfig, "%s: %v", key, err)
	}
	*dst = d
	return nil
}
