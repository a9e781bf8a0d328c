package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	KurrentDB KurrentDBConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Directory DirectoryConfig
	Query     QueryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for the KurrentDB ledger mirror.
type KurrentDBConfig struct {
	// Enabled turns the mirror on; the Postgres ledger stays authoritative either way
	Enabled bool
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC/HTTP port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
}

type RateLimitConfig struct {
	RPS   int
	Burst int
}

// DirectoryConfig selects where institutions are resolved from.
type DirectoryConfig struct {
	// Driver: "postgres" (default) or "sqlserver" for a legacy registry
	Driver       string
	SQLServerDSN string
}

type QueryConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "imis")
	v.SetDefault("DB_PASSWORD", "imis")
	v.SetDefault("DB_NAME", "imis")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("KURRENTDB_ENABLED", false)
	v.SetDefault("KURRENTDB_HOST", "localhost")
	v.SetDefault("KURRENTDB_PORT", 2113)
	v.SetDefault("KURRENTDB_INSECURE", true)
	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("JWT_SECRET", "dev-secret-change-in-prod")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("DIRECTORY_DRIVER", "postgres")
	v.SetDefault("QUERY_DEFAULT_PAGE_SIZE", 20)
	v.SetDefault("QUERY_MAX_PAGE_SIZE", 500)
	v.SetDefault("LOG_LEVEL", "info")

	// A missing .env file is fine
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("SERVER_PORT"),
			Env:  v.GetString("ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Database: v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
			MinConns: v.GetInt32("DB_MIN_CONNS"),
		},
		KurrentDB: KurrentDBConfig{
			Enabled:  v.GetBool("KURRENTDB_ENABLED"),
			Host:     v.GetString("KURRENTDB_HOST"),
			Port:     v.GetInt("KURRENTDB_PORT"),
			Insecure: v.GetBool("KURRENTDB_INSECURE"),
			Username: v.GetString("KURRENTDB_USERNAME"),
			Password: v.GetString("KURRENTDB_PASSWORD"),
		},
		Auth: AuthConfig{
			Enabled:   v.GetBool("AUTH_ENABLED"),
			JWTSecret: v.GetString("JWT_SECRET"),
			Issuer:    v.GetString("JWT_ISSUER"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetInt("RATE_LIMIT_RPS"),
			Burst: v.GetInt("RATE_LIMIT_BURST"),
		},
		Directory: DirectoryConfig{
			Driver:       v.GetString("DIRECTORY_DRIVER"),
			SQLServerDSN: v.GetString("DIRECTORY_SQLSERVER_DSN"),
		},
		Query: QueryConfig{
			DefaultPageSize: v.GetInt("QUERY_DEFAULT_PAGE_SIZE"),
			MaxPageSize:     v.GetInt("QUERY_MAX_PAGE_SIZE"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDev reports whether the server runs in development mode.
func (c *Config) IsDev() bool {
	return c.Server.Env == "development"
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED is true")
	}
	switch c.Directory.Driver {
	case "postgres":
	case "sqlserver":
		if c.Directory.SQLServerDSN == "" {
			return fmt.Errorf("DIRECTORY_SQLSERVER_DSN is required when DIRECTORY_DRIVER is \"sqlserver\"")
		}
	default:
		return fmt.Errorf("DIRECTORY_DRIVER must be \"postgres\" or \"sqlserver\", got %q", c.Directory.Driver)
	}
	if c.Query.DefaultPageSize <= 0 {
		return fmt.Errorf("QUERY_DEFAULT_PAGE_SIZE must be positive, got %d", c.Query.DefaultPageSize)
	}
	if c.Query.MaxPageSize < c.Query.DefaultPageSize {
		return fmt.Errorf("QUERY_MAX_PAGE_SIZE (%d) must not be below QUERY_DEFAULT_PAGE_SIZE (%d)",
			c.Query.MaxPageSize, c.Query.DefaultPageSize)
	}
	return nil
}
