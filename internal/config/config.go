package config

import (
	"fmt"
	"time"
)

// Store and ledger backends
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Store     StoreConfig     `mapstructure:"store" validate:"required"`
	Ledger    LedgerConfig    `mapstructure:"ledger" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Schedule  ScheduleConfig  `mapstructure:"schedule" validate:"required"`
	Migration MigrationConfig `mapstructure:"migration"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// StoreConfig selects the record store backing boards and tasks.
type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=postgres memory"`
}

// LedgerConfig selects the backend of the migration dedup ledger.
type LedgerConfig struct {
	Backend  string `mapstructure:"backend" validate:"required,oneof=postgres redis memory"`
	RedisURL string `mapstructure:"redis_url" validate:"required_if=Backend redis"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string   `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int      `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	ElevatedRoles        []string `mapstructure:"elevated_roles"`
}

// ScheduleConfig controls the scheduler loop, its windows and the
// migration retry policy.
type ScheduleConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	TimeZone          string        `mapstructure:"time_zone" validate:"required"`
	BusinessStartHour int           `mapstructure:"business_start_hour" validate:"gte=0,lte=23"`
	BusinessEndHour   int           `mapstructure:"business_end_hour" validate:"gtfield=BusinessStartHour,lte=24"`
	ClosingHour       int           `mapstructure:"closing_hour" validate:"gte=0,lte=23"`
	TickInterval      time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	Cooldown          time.Duration `mapstructure:"cooldown" validate:"gt=0"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout" validate:"gt=0"`
	OwnerConcurrency  int           `mapstructure:"owner_concurrency" validate:"gte=1"`
}

// MigrationConfig holds task lifecycle policy switches.
type MigrationConfig struct {
	AllowRevival bool `mapstructure:"allow_revival"`
}

// NeedsDatabase reports whether any configured backend talks to PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Store.Backend == BackendPostgres || c.Ledger.Backend == BackendPostgres
}

// IsElevated reports whether a role carries elevated privilege.
func (c AuthConfig) IsElevated(role string) bool {
	for _, r := range c.ElevatedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// checkCrossFieldRules validates rules spanning several sections.
func (c *Config) checkCrossFieldRules() error {
	if c.NeedsDatabase() && c.Database.URL == "" {
		return fmt.Errorf("database.url is required when a postgres backend is configured")
	}
	return nil
}
