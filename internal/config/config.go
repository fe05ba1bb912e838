// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Cache    CacheConfig
	Session  SessionConfig
	DocDB    DocDBConfig
	Vault    VaultConfig
	Upstream UpstreamConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Log      LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host    string
	Port    int
	GinMode string
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig holds the session store connection.
type CacheConfig struct {
	Type     string
	Host     string
	Port     string
	Password string
	DB       int
}

// SessionConfig holds conversation session policy.
type SessionConfig struct {
	TTL         time.Duration
	MaxMessages int
}

// DocDBConfig holds the turn archive database configuration.
type DocDBConfig struct {
	Enabled  bool
	Type     string
	URI      string
	Database string
}

// VaultConfig holds vault configuration.
type VaultConfig struct {
	Type string
	// EncryptionKey is a literal key or a secret reference such as dotenv://NAME.
	EncryptionKey string
}

// UpstreamConfig holds the streaming inference endpoint configuration.
// APIKey and APISecret may be secret references resolved through the vault.
type UpstreamConfig struct {
	URL              string
	AppID            string
	APIKey           string
	APISecret        string
	Domain           string
	Temperature      float64
	MaxTokens        int
	SystemPrompt     string
	HandshakeTimeout time.Duration
	TurnTimeout      time.Duration
}

// AuthConfig holds the identity header set by the authentication gateway.
type AuthConfig struct {
	UserHeader string
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	AllowOrigins []string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvAsInt("SERVER_PORT", 8080),
			GinMode: getEnv("GIN_MODE", "release"),
		},
		Cache: CacheConfig{
			Type:     getEnv("CACHE_TYPE", "redis"),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			TTL:         time.Duration(getEnvAsInt("SESSION_TTL_SECONDS", 3*24*60*60)) * time.Second,
			MaxMessages: getEnvAsInt("SESSION_MAX_MESSAGES", 20),
		},
		DocDB: DocDBConfig{
			Enabled:  getEnvAsBool("DOCDB_ENABLED", false),
			Type:     getEnv("DOCDB_TYPE", "mongodb"),
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "chat_relay"),
		},
		Vault: VaultConfig{
			Type:          getEnv("VAULT_TYPE", "dotenv"),
			EncryptionKey: getEnv("SESSION_ENCRYPTION_KEY", ""),
		},
		Upstream: UpstreamConfig{
			URL:              getEnv("SPARK_URL", "wss://spark-api.xf-yun.com/v3.5/chat"),
			AppID:            getEnv("SPARK_APP_ID", ""),
			APIKey:           getEnv("SPARK_API_KEY", "dotenv://SPARK_API_KEY_SECRET"),
			APISecret:        getEnv("SPARK_API_SECRET", "dotenv://SPARK_API_SECRET_SECRET"),
			Domain:           getEnv("SPARK_DOMAIN", "generalv3.5"),
			Temperature:      getEnvAsFloat("SPARK_TEMPERATURE", 0.5),
			MaxTokens:        getEnvAsInt("SPARK_MAX_TOKENS", 4096),
			SystemPrompt:     getEnv("SPARK_SYSTEM_PROMPT", ""),
			HandshakeTimeout: time.Duration(getEnvAsInt("UPSTREAM_HANDSHAKE_TIMEOUT_SECONDS", 10)) * time.Second,
			TurnTimeout:      time.Duration(getEnvAsInt("UPSTREAM_TURN_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Auth: AuthConfig{
			UserHeader: getEnv("AUTH_USER_HEADER", "X-User-ID"),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnvAsList("CORS_ALLOW_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail at request time.
func (c *Config) Validate() error {
	if c.Session.MaxMessages < 2 {
		return fmt.Errorf("SESSION_MAX_MESSAGES must be at least 2, got %d", c.Session.MaxMessages)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL_SECONDS must be positive")
	}
	if c.Upstream.TurnTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TURN_TIMEOUT_SECONDS must be positive")
	}
	if c.Upstream.URL == "" {
		return fmt.Errorf("SPARK_URL is required")
	}
	return nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
