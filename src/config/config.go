package config

import (
	"fmt"
	"os"
	"time"

	"bpsalgo/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from a YAML file
func NewConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 10
	}
	if c.Network.ConcurrentRequests == 0 {
		c.Network.ConcurrentRequests = 5
	}
	if c.DataSource.UpdateIntervalSeconds == 0 {
		c.DataSource.UpdateIntervalSeconds = 5
	}
	if c.DataSource.DataRetentionDays == 0 {
		c.DataSource.DataRetentionDays = 7
	}
	if len(c.DataSource.DefaultSymbols) == 0 {
		c.DataSource.DefaultSymbols = []string{"NIFTY50", "BANKNIFTY", "FINNIFTY", "GIFTNIFTY", "SENSEX"}
	}
	if c.Algo.ScanIntervalSeconds == 0 {
		c.Algo.ScanIntervalSeconds = 5
	}
	if c.Algo.SignalThresholdPct == 0 {
		c.Algo.SignalThresholdPct = 1.0
	}
	if c.Algo.OrderQuantity == 0 {
		c.Algo.OrderQuantity = 1
	}
	if len(c.WindowsAgg) == 0 {
		c.WindowsAgg = []string{"1m", "5m", "15m"}
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Network.ConcurrentRequests <= 0 {
		return fmt.Errorf("concurrent requests must be greater than 0")
	}

	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker base_url cannot be empty")
	}

	if c.DataSource.UpdateIntervalSeconds < 1 || c.DataSource.UpdateIntervalSeconds > 10 {
		return fmt.Errorf("update interval must be between 1 and 10 seconds")
	}
	if c.DataSource.DataRetentionDays <= 0 {
		return fmt.Errorf("data retention days must be greater than 0")
	}

	if c.Algo.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("algo scan interval must be greater than 0")
	}
	if c.Algo.SignalThresholdPct <= 0 {
		return fmt.Errorf("algo signal threshold must be greater than 0")
	}

	for i, window := range c.WindowsAgg {
		if window == "" {
			return fmt.Errorf("window aggregation %d cannot be empty", i)
		}
		if _, err := time.ParseDuration(window); err != nil {
			return fmt.Errorf("window aggregation '%s' is not a valid duration: %w", window, err)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// BrokerAPIKey resolves the broker API key from the configured env var.
func (c *Config) BrokerAPIKey() string {
	if c.Broker.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Broker.APIKeyEnv)
}

// BrokerCredentials resolves the login credentials from the configured env vars.
func (c *Config) BrokerCredentials() (username, password string) {
	if c.Broker.UsernameEnv != "" {
		username = os.Getenv(c.Broker.UsernameEnv)
	}
	if c.Broker.PasswordEnv != "" {
		password = os.Getenv(c.Broker.PasswordEnv)
	}
	return username, password
}
