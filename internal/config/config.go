package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	App       AppConfig
	Hierarchy HierarchyConfig
	Cache     CacheConfig
	Agent     AgentConfig
	Retention RetentionConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL     string
	Enabled bool
}

// AppConfig holds application configuration
type AppConfig struct {
	Environment string
	LogLevel    string
	CORSOrigins string
}

// HierarchyConfig holds tenant tree configuration
type HierarchyConfig struct {
	// MaxDepth is exclusive: allowed levels are 0..MaxDepth-1
	MaxDepth int
	// SlugRetries is how many times a save is retried with a fresh slug
	// after a storage-level uniqueness violation
	SlugRetries int
}

// CacheConfig holds hierarchy cache configuration
type CacheConfig struct {
	TenantTTL    time.Duration
	TreeTTL      time.Duration
	LocalTTL     time.Duration
	LocalMaxSize int
}

// AgentConfig holds backup agent configuration
type AgentConfig struct {
	// OfflineThreshold is how long an agent can miss heartbeats before
	// the sweep marks it OFFLINE
	OfflineThreshold time.Duration
	APIKeyExpiryDays int
}

// RetentionConfig holds soft-delete retention configuration
type RetentionConfig struct {
	// PurgeAfterDays is how long a CLOSED tenant is kept before
	// permanent removal
	PurgeAfterDays int
}

// New creates a new configuration instance
func New() *Config {
	// Best-effort .env load for local development
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host: getEnvWithDefault("SERVER_HOST", "0.0.0.0"),
			Port: getEnvWithDefault("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnvWithDefault("DB_HOST", "localhost"),
			Port:     getEnvWithDefault("DB_PORT", "5432"),
			User:     getEnvWithDefault("DB_USER", "postgres"),
			Password: getEnvWithDefault("DB_PASSWORD", "postgres"),
			Name:     getEnvWithDefault("DB_NAME", "console_db"),
			SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnvWithDefault("REDIS_HOST", "localhost"),
			Port:     getEnvWithDefault("REDIS_PORT", "6379"),
			Password: getEnvWithDefault("REDIS_PASSWORD", ""),
			DB:       getEnvAsIntWithDefault("REDIS_DB", 0),
			Enabled:  getEnvAsBoolWithDefault("REDIS_ENABLED", true),
		},
		NATS: NATSConfig{
			URL:     getEnvWithDefault("NATS_URL", "nats://localhost:4222"),
			Enabled: getEnvAsBoolWithDefault("NATS_ENABLED", true),
		},
		App: AppConfig{
			Environment: getEnvWithDefault("APP_ENV", "development"),
			LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
			CORSOrigins: getEnvWithDefault("CORS_ORIGINS", "*"),
		},
		Hierarchy: HierarchyConfig{
			MaxDepth:    getEnvAsIntWithDefault("HIERARCHY_MAX_DEPTH", 5),
			SlugRetries: getEnvAsIntWithDefault("HIERARCHY_SLUG_RETRIES", 2),
		},
		Cache: CacheConfig{
			TenantTTL:    getEnvAsDurationWithDefault("CACHE_TENANT_TTL", 10*time.Minute),
			TreeTTL:      getEnvAsDurationWithDefault("CACHE_TREE_TTL", 5*time.Minute),
			LocalTTL:     getEnvAsDurationWithDefault("CACHE_LOCAL_TTL", 30*time.Second),
			LocalMaxSize: getEnvAsIntWithDefault("CACHE_LOCAL_MAX_SIZE", 1000),
		},
		Agent: AgentConfig{
			OfflineThreshold: getEnvAsDurationWithDefault("AGENT_OFFLINE_THRESHOLD", 5*time.Minute),
			APIKeyExpiryDays: getEnvAsIntWithDefault("AGENT_API_KEY_EXPIRY_DAYS", 365),
		},
		Retention: RetentionConfig{
			PurgeAfterDays: getEnvAsIntWithDefault("RETENTION_PURGE_AFTER_DAYS", 90),
		},
	}
}

// getEnvWithDefault gets environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntWithDefault gets environment variable as integer with default fallback
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBoolWithDefault gets environment variable as boolean with default fallback
func getEnvAsBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDurationWithDefault gets environment variable as duration with default fallback
func getEnvAsDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
