// Package config provides configuration management for the ledger indexer.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Protocol ProtocolConfig
	Oracle   OracleConfig
	Worker   WorkerConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection URL used by the migration tool
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ProtocolConfig describes the indexed protocol deployment. Treasury and
// upgrade-block values feed the per-version heuristics; they are protocol
// business rules, not tunables.
type ProtocolConfig struct {
	ID      string
	Name    string
	Slug    string
	Network string
	// Treasury is the protocol treasury address used by the
	// treasury-transfer rebase heuristic.
	Treasury string
	// UpgradeBlock is the block at which the V2->V3 accounting cutover
	// happened on this deployment (0 when not applicable).
	UpgradeBlock uint64
}

// OracleConfig holds price-oracle configuration
type OracleConfig struct {
	// PricesPath points at a JSON file of token address -> USD price used to
	// seed the static price source.
	PricesPath string
	// CacheTTL bounds how long a resolved price stays in Redis.
	CacheTTL time.Duration
}

// WorkerConfig holds ingestion worker configuration
type WorkerConfig struct {
	PollInterval    time.Duration
	EventsPerSecond float64
	BatchSize       int
	MigrationsPath  string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "ledger"),
				User:           getEnv("POSTGRES_USER", "ledger"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "ledger"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Protocol: ProtocolConfig{
			ID:           getEnv("PROTOCOL_ID", ""),
			Name:         getEnv("PROTOCOL_NAME", ""),
			Slug:         getEnv("PROTOCOL_SLUG", ""),
			Network:      getEnv("PROTOCOL_NETWORK", "mainnet"),
			Treasury:     getEnv("PROTOCOL_TREASURY", ""),
			UpgradeBlock: getEnvAsUint("PROTOCOL_UPGRADE_BLOCK", 0),
		},
		Oracle: OracleConfig{
			PricesPath: getEnv("ORACLE_PRICES_PATH", ""),
			CacheTTL:   getEnvAsDuration("ORACLE_CACHE_TTL", time.Hour),
		},
		Worker: WorkerConfig{
			PollInterval:    getEnvAsDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			EventsPerSecond: getEnvAsFloat("WORKER_EVENTS_PER_SECOND", 200),
			BatchSize:       getEnvAsInt("WORKER_BATCH_SIZE", 500),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsUint gets an environment variable as a uint64 with a default value
func getEnvAsUint(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float64 with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
