package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Catalog   CatalogConfig   `mapstructure:"catalog" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error fatal"`
	LogFormat       string        `mapstructure:"log_format" validate:"omitempty,oneof=json text"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	Issuer               string `mapstructure:"issuer"`
}

// SchedulerConfig tunes the SM-2 scheduler. Zero values fall back to the
// classic SM-2 constants.
type SchedulerConfig struct {
	MinEaseFactor  float64 `mapstructure:"min_ease_factor" validate:"gte=0"`
	FailurePenalty float64 `mapstructure:"failure_penalty" validate:"gte=0"`
	FirstInterval  int     `mapstructure:"first_interval" validate:"gte=0"`
	SecondInterval int     `mapstructure:"second_interval" validate:"gte=0"`
}

// CatalogConfig contains settings for catalog reads and bulk import.
type CatalogConfig struct {
	CardTypeCacheTTL time.Duration `mapstructure:"card_type_cache_ttl" validate:"gte=0"`
	ImportMaxRows    int           `mapstructure:"import_max_rows" validate:"required,gt=0"`
}
