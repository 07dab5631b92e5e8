package config

import (
	"net"
	"strconv"
	"time"

	"github.com/ajitpratap0/tabular/pkg/errors"
)

// Supported values for DatabaseConfig.Driver
const (
	DriverNative = "native"
	DriverSQL    = "sql"
)

// Config is the top-level configuration structure.
type Config struct {
	// Database holds the connect credentials and driver selection
	Database DatabaseConfig `mapstructure:"database" yaml:"database" json:"database"`

	// Pool controls connection pool sizing
	Pool PoolConfig `mapstructure:"pool" yaml:"pool" json:"pool"`

	// Logging configures the global zap logger
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`

	// Metrics configures Prometheus collectors
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Tracing configures OpenTelemetry spans
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
}

// DatabaseConfig contains the connect credentials.
type DatabaseConfig struct {
	// Driver selects the adapter: "native" (go-mysql client) or "sql" (database/sql)
	Driver   string `mapstructure:"driver" yaml:"driver" json:"driver"`
	Host     string `mapstructure:"host" yaml:"host" json:"host"`
	Port     int    `mapstructure:"port" yaml:"port" json:"port"`
	User     string `mapstructure:"user" yaml:"user" json:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty" json:"-"`
	// Name is the target database selected after connect
	Name string `mapstructure:"name" yaml:"name" json:"name"`
}

// Addr returns host:port.
func (d DatabaseConfig) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// PoolConfig contains connection pool settings.
type PoolConfig struct {
	// MaxConnections bounds the number of live connections
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" json:"max_connections"`
	// IdleTimeoutMillis is how long a connection may sit idle before it is closed
	IdleTimeoutMillis int `mapstructure:"idle_timeout_millis" yaml:"idle_timeout_millis" json:"idle_timeout_millis"`
	// ReapIntervalMillis is how often idle connections are checked (0 = half the idle timeout)
	ReapIntervalMillis int `mapstructure:"reap_interval_millis" yaml:"reap_interval_millis" json:"reap_interval_millis"`
}

// IdleTimeout returns IdleTimeoutMillis as a duration
func (p PoolConfig) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutMillis) * time.Millisecond
}

// ReapInterval returns ReapIntervalMillis as a duration
func (p PoolConfig) ReapInterval() time.Duration {
	return time.Duration(p.ReapIntervalMillis) * time.Millisecond
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level" json:"level"`
	Encoding    string `mapstructure:"encoding" yaml:"encoding" json:"encoding"`
	Development bool   `mapstructure:"development" yaml:"development" json:"development"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace" json:"namespace"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// SamplingRate controls trace sampling (0.0-1.0)
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate" json:"sampling_rate"`
}

// NewConfig creates a Config with defaults. The pool defaults are
// 10 connections and a 30 second idle timeout.
func NewConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: DriverNative,
			Host:   "127.0.0.1",
			Port:   3306,
			User:   "root",
		},
		Pool: PoolConfig{
			MaxConnections:    10,
			IdleTimeoutMillis: 30000,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "tabular",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			SamplingRate: 0.1,
		},
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverNative, DriverSQL:
	default:
		return invalid("database.driver must be native or sql", c.Database.Driver)
	}
	if c.Database.Host == "" {
		return invalid("database.host is required", c.Database.Host)
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return invalid("database.port out of range", c.Database.Port)
	}
	if c.Database.Name == "" {
		return invalid("database.name is required", c.Database.Name)
	}
	if c.Pool.MaxConnections <= 0 {
		return invalid("pool.max_connections must be positive", c.Pool.MaxConnections)
	}
	if c.Pool.IdleTimeoutMillis <= 0 {
		return invalid("pool.idle_timeout_millis must be positive", c.Pool.IdleTimeoutMillis)
	}
	if c.Pool.ReapIntervalMillis < 0 {
		return invalid("pool.reap_interval_millis cannot be negative", c.Pool.ReapIntervalMillis)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return invalid("tracing.sampling_rate must be within [0, 1]", c.Tracing.SamplingRate)
	}
	return nil
}

func invalid(msg string, value interface{}) error {
	return errors.New(errors.ErrorTypeConfig, msg).WithDetail("value", value)
}
