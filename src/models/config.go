package models

// MConfig Structure
type MConfig struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	LogLevel   string            `yaml:"log_level"`
	Storage    MStorageConfig    `yaml:"storage"`
	Network    MNetworkConfig    `yaml:"network"`
	Broker     MBrokerConfig     `yaml:"broker"`
	DataSource MDataSourceConfig `yaml:"data_source"`
	Algo       MAlgoConfig       `yaml:"algo"`
	Search     MSearchConfig     `yaml:"search"`
	WindowsAgg []string          `yaml:"windows_aggregation"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MNetworkConfig struct {
	RequestTimeout     int    `yaml:"timeout"`
	MaxRetries         int    `yaml:"retries"`
	ConcurrentRequests int    `yaml:"concurrent_requests"`
	UserAgent          string `yaml:"user_agent"`
}

// MBrokerConfig holds the mStock Type A API settings. Credentials are never
// stored in the YAML file; only the names of the env vars that carry them.
type MBrokerConfig struct {
	BaseURL     string `yaml:"base_url"`
	WSURL       string `yaml:"ws_url"`
	Account     string `yaml:"account"`
	APIKeyEnv   string `yaml:"api_key_env"`
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
}

type MDataSourceConfig struct {
	DataRetentionDays     int      `yaml:"data_retention_days"`
	UpdateIntervalSeconds int      `yaml:"update_interval_seconds"`
	DefaultSymbols        []string `yaml:"default_symbols"`
	WatchlistFile         string   `yaml:"watchlist_file"`
	YahooFallback         bool     `yaml:"yahoo_fallback"`
}

type MAlgoConfig struct {
	ScanIntervalSeconds int     `yaml:"scan_interval_seconds"`
	SignalThresholdPct  float64 `yaml:"signal_threshold_pct"`
	OrderQuantity       int     `yaml:"order_quantity"`
}

type MSearchConfig struct {
	InstrumentsCSV string `yaml:"instruments_csv"`
	IndexPath      string `yaml:"index_path"`
}
