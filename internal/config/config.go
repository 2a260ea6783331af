// Package config provides configuration for the API server. Values come
// from an optional YAML file named by CONFIG_FILE, overridden by environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `yaml:"port"`
	ServerReadTimeout  time.Duration `yaml:"serverReadTimeout"`
	ServerWriteTimeout time.Duration `yaml:"serverWriteTimeout"`
	CORSOrigins        []string      `yaml:"corsOrigins"`

	// Database settings
	DatabaseDriver    string        `yaml:"databaseDriver"`
	DatabaseURL       string        `yaml:"databaseURL"`
	DBMaxOpenConns    int           `yaml:"dbMaxOpenConns"`
	DBMaxIdleConns    int           `yaml:"dbMaxIdleConns"`
	DBConnMaxLifetime time.Duration `yaml:"dbConnMaxLifetime"`

	// Blob storage settings
	BlobBackend    string `yaml:"blobBackend"`
	UploadsDir     string `yaml:"uploadsDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	// Agent settings
	AgentWebhookURL string        `yaml:"agentWebhookURL"`
	AgentTimeout    time.Duration `yaml:"agentTimeout"`
	HistoryWindow   int           `yaml:"historyWindow"`

	// NATS settings; an empty URL disables event publishing
	NATSURL      string `yaml:"natsURL"`
	NATSCAFile   string `yaml:"natsCAFile"`
	NATSCertFile string `yaml:"natsCertFile"`
	NATSKeyFile  string `yaml:"natsKeyFile"`
	NATSToken    string `yaml:"natsToken"`

	// JWT settings
	JWTSecret     string        `yaml:"jwtSecret"`
	JWTExpiration time.Duration `yaml:"jwtExpiration"`

	// Rate limiting
	RateLimitRequests int           `yaml:"rateLimitRequests"`
	RateLimitWindow   time.Duration `yaml:"rateLimitWindow"`

	// Logging
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	// Tracing
	TracingEndpoint string `yaml:"tracingEndpoint"`
	TracingEnabled  bool   `yaml:"tracingEnabled"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		ServerPort:         "8080",
		ServerReadTimeout:  30 * time.Second,
		ServerWriteTimeout: 150 * time.Second,

		DatabaseDriver:    "postgres",
		DBMaxOpenConns:    20,
		DBMaxIdleConns:    5,
		DBConnMaxLifetime: 30 * time.Minute,

		BlobBackend: "local",
		UploadsDir:  "uploads",
		MinioBucket: "attachments",

		AgentTimeout:  120 * time.Second,
		HistoryWindow: 20,

		JWTSecret:     "development-secret-change-in-production",
		JWTExpiration: 7 * 24 * time.Hour,

		RateLimitRequests: 60,
		RateLimitWindow:   time.Minute,

		LogLevel:  "info",
		LogFormat: "json",

		TracingEndpoint: "localhost:4318",
	}
}

// Load reads the optional YAML file and environment variables, then
// validates the result.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	// Server
	cfg.ServerPort = getEnv("PORT", cfg.ServerPort)
	cfg.ServerReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", cfg.ServerReadTimeout)
	cfg.ServerWriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", cfg.ServerWriteTimeout)
	cfg.CORSOrigins = getListEnv("CORS_ORIGINS", cfg.CORSOrigins)

	// Database
	cfg.DatabaseDriver = getEnv("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DBMaxOpenConns = getIntEnv("DB_MAX_OPEN_CONNS", cfg.DBMaxOpenConns)
	cfg.DBMaxIdleConns = getIntEnv("DB_MAX_IDLE_CONNS", cfg.DBMaxIdleConns)
	cfg.DBConnMaxLifetime = getDurationEnv("DB_CONN_MAX_LIFETIME", cfg.DBConnMaxLifetime)

	// Blob storage
	cfg.BlobBackend = getEnv("BLOB_BACKEND", cfg.BlobBackend)
	cfg.UploadsDir = getEnv("UPLOADS_DIR", cfg.UploadsDir)
	cfg.MinioEndpoint = getEnv("MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getEnv("MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getEnv("MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioBucket = getEnv("MINIO_BUCKET", cfg.MinioBucket)
	cfg.MinioUseSSL = getBoolEnv("MINIO_USE_SSL", cfg.MinioUseSSL)

	// Agent
	cfg.AgentWebhookURL = getEnv("AGENT_WEBHOOK_URL", cfg.AgentWebhookURL)
	cfg.AgentTimeout = getDurationEnv("AGENT_TIMEOUT", cfg.AgentTimeout)
	cfg.HistoryWindow = getIntEnv("HISTORY_WINDOW", cfg.HistoryWindow)

	// NATS
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSCAFile = getEnv("NATS_CA_FILE", cfg.NATSCAFile)
	cfg.NATSCertFile = getEnv("NATS_CERT_FILE", cfg.NATSCertFile)
	cfg.NATSKeyFile = getEnv("NATS_KEY_FILE", cfg.NATSKeyFile)
	cfg.NATSToken = getEnv("NATS_TOKEN", cfg.NATSToken)

	// JWT
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTExpiration = getDurationEnv("JWT_EXPIRATION", cfg.JWTExpiration)

	// Rate limiting
	cfg.RateLimitRequests = getIntEnv("RATE_LIMIT_REQUESTS", cfg.RateLimitRequests)
	cfg.RateLimitWindow = getDurationEnv("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	// Tracing
	cfg.TracingEndpoint = getEnv("TRACING_ENDPOINT", cfg.TracingEndpoint)
	cfg.TracingEnabled = getBoolEnv("TRACING_ENABLED", cfg.TracingEnabled)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required")
	}
	switch c.BlobBackend {
	case "local":
		if c.UploadsDir == "" {
			return errors.New("config: UPLOADS_DIR is required for the local blob backend")
		}
	case "minio":
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return errors.New("config: MINIO_ENDPOINT and MINIO_BUCKET are required for the minio blob backend")
		}
	default:
		return fmt.Errorf("config: unknown blob backend %q", c.BlobBackend)
	}
	if c.AgentTimeout <= 0 {
		return errors.New("config: AGENT_TIMEOUT must be positive")
	}
	if c.ServerWriteTimeout > 0 && c.ServerWriteTimeout <= c.AgentTimeout {
		return fmt.Errorf("config: SERVER_WRITE_TIMEOUT (%s) must exceed AGENT_TIMEOUT (%s)", c.ServerWriteTimeout, c.AgentTimeout)
	}
	if c.HistoryWindow <= 0 {
		return errors.New("config: HISTORY_WINDOW must be positive")
	}
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
