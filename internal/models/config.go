package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Redemption RedemptionConfig
	Sweeper    SweeperConfig
	Relay      RelayConfig
	Cache      CacheConfig
	Formance   FormanceConfig
	UnitsFile  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// ServerConfig holds HTTP surface settings
type ServerConfig struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// RedemptionConfig holds redemption guard settings
type RedemptionConfig struct {
	CodeSecret            string
	MaxRetries            int
	RetryBackoff          time.Duration
	CodeAttemptsPerMinute int
	CodeAttemptBurst      int
}

// SweeperConfig holds expiry sweep settings
type SweeperConfig struct {
	Enabled   bool
	Schedule  string
	BatchSize int
}

// RelayConfig holds outbox relay settings
type RelayConfig struct {
	Enabled         bool
	PollingInterval time.Duration
	BatchSize       int
}

// CacheConfig holds instrument cache settings
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// FormanceConfig holds the optional Formance ledger mirror settings
type FormanceConfig struct {
	Enabled      bool
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}
