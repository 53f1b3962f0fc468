// Package am holds briefing's configuration: file layout, defaults,
// validation and hot reload.
package am

import "time"

// Config represents the briefing configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Server    ServerConfig    `mapstructure:"server" toml:"server" json:"server" yaml:"server"`
	Pulse     PulseConfig     `mapstructure:"pulse" toml:"pulse" json:"pulse" yaml:"pulse"`
	Warehouse WarehouseConfig `mapstructure:"warehouse" toml:"warehouse" json:"warehouse" yaml:"warehouse"`
	Mail      MailConfig      `mapstructure:"mail" toml:"mail" json:"mail" yaml:"mail"`
	Refresh   RefreshConfig   `mapstructure:"refresh" toml:"refresh" json:"refresh" yaml:"refresh"`
	Delivery  DeliveryConfig  `mapstructure:"delivery" toml:"delivery" json:"delivery" yaml:"delivery"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port           *int     `mapstructure:"port" toml:"port" json:"port" yaml:"port"` // nil = DefaultServerPort, 0 is invalid
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// DefaultServerPort is used when server.port is omitted.
const DefaultServerPort = 8787

// PulseConfig configures the schedule ticker
type PulseConfig struct {
	Workers                int `mapstructure:"workers" toml:"workers" json:"workers" yaml:"workers"`                                                                     // concurrent executions per tick
	TickerIntervalSeconds  int `mapstructure:"ticker_interval_seconds" toml:"ticker_interval_seconds" json:"ticker_interval_seconds" yaml:"ticker_interval_seconds"`     // 0 = ticker disabled
	ExecutionRetentionDays int `mapstructure:"execution_retention_days" toml:"execution_retention_days" json:"execution_retention_days" yaml:"execution_retention_days"` // 0 = keep forever
}

// WarehouseConfig configures the analytic warehouse connection
type WarehouseConfig struct {
	Driver              string  `mapstructure:"driver" toml:"driver" json:"driver" yaml:"driver"` // sqlite3 | postgres
	DSN                 string  `mapstructure:"dsn" toml:"dsn" json:"dsn" yaml:"dsn"`
	QueryTimeoutSeconds int     `mapstructure:"query_timeout_seconds" toml:"query_timeout_seconds" json:"query_timeout_seconds" yaml:"query_timeout_seconds"`
	MaxRows             int     `mapstructure:"max_rows" toml:"max_rows" json:"max_rows" yaml:"max_rows"`
	QueriesPerSecond    float64 `mapstructure:"queries_per_second" toml:"queries_per_second" json:"queries_per_second" yaml:"queries_per_second"` // 0 = unlimited
}

// MailConfig configures the outbound mail transport
type MailConfig struct {
	Transport       string `mapstructure:"transport" toml:"transport" json:"transport" yaml:"transport"` // smtp | log
	Host            string `mapstructure:"host" toml:"host" json:"host" yaml:"host"`
	Port            int    `mapstructure:"port" toml:"port" json:"port" yaml:"port"`
	Username        string `mapstructure:"username" toml:"username" json:"username" yaml:"username"`
	Password        string `mapstructure:"password" toml:"password" json:"password" yaml:"password"`
	From            string `mapstructure:"from" toml:"from" json:"from" yaml:"from"`
	MaxPerMinute    int    `mapstructure:"max_per_minute" toml:"max_per_minute" json:"max_per_minute" yaml:"max_per_minute"` // 0 = unlimited
	SendTimeoutSecs int    `mapstructure:"send_timeout_seconds" toml:"send_timeout_seconds" json:"send_timeout_seconds" yaml:"send_timeout_seconds"`
	InsecureSkipTLS bool   `mapstructure:"insecure_skip_tls" toml:"insecure_skip_tls" json:"insecure_skip_tls" yaml:"insecure_skip_tls"`
}

// Mail transports
const (
	MailTransportSMTP = "smtp"
	MailTransportLog  = "log"
)

// RefreshConfig configures the query refresh engine
type RefreshConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency" toml:"max_concurrency" json:"max_concurrency" yaml:"max_concurrency"`
}

// DeliveryConfig configures rendering of delivered reports
type DeliveryConfig struct {
	DashboardBaseURL string `mapstructure:"dashboard_base_url" toml:"dashboard_base_url" json:"dashboard_base_url" yaml:"dashboard_base_url"`
	DefaultTimezone  string `mapstructure:"default_timezone" toml:"default_timezone" json:"default_timezone" yaml:"default_timezone"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// GetServerPort returns server.port or DefaultServerPort when omitted
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "briefing.db"
	}
	return c.Database.Path
}

// TickerInterval returns pulse.ticker_interval_seconds as a duration
func (c *Config) TickerInterval() time.Duration {
	return time.Duration(c.Pulse.TickerIntervalSeconds) * time.Second
}

// QueryTimeout returns warehouse.query_timeout_seconds as a duration
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Warehouse.QueryTimeoutSeconds) * time.Second
}

// Redacted returns a copy safe to print: secrets are masked.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Mail.Password != "" {
		cp.Mail.Password = "********"
	}
	if cp.Warehouse.DSN != "" && cp.Warehouse.Driver == "postgres" {
		cp.Warehouse.DSN = "********"
	}
	return &cp
}
