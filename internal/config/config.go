package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Import   ImportConfig   `yaml:"import"`
	Storage  StorageConfig  `yaml:"storage"`
	Facebook FacebookConfig `yaml:"facebook"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Log      LogConfig      `yaml:"log"`
	Tasks    TasksConfig    `yaml:"tasks"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int      `yaml:"port"`
	Host                string   `yaml:"host"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// ReadTimeout returns the configured read timeout as a duration
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the configured write timeout as a duration
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings. When disabled, import progress is not
// tracked and locks fall back to PostgreSQL advisory locks.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ImportConfig bounds uploads and labels imported leads.
type ImportConfig struct {
	MaxFileMB     int    `yaml:"max_file_mb"`
	MaxRows       int    `yaml:"max_rows"`
	MaxBatchRows  int    `yaml:"max_batch_rows"`
	DefaultSource string `yaml:"default_source"`
	SampleRows    int    `yaml:"sample_rows"`
}

// MaxFileBytes returns the upload cap in bytes.
func (c ImportConfig) MaxFileBytes() int64 {
	return int64(c.MaxFileMB) << 20
}

// StorageConfig holds the S3 upload archive settings
type StorageConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	AWSProfile string `yaml:"aws_profile"`
	Prefix     string `yaml:"prefix"`
}

// FacebookConfig holds Facebook Lead Ads settings
type FacebookConfig struct {
	Enabled             bool   `yaml:"enabled"`
	AppSecret           string `yaml:"app_secret"`
	VerifyToken         string `yaml:"verify_token"`
	GraphBaseURL        string `yaml:"graph_base_url"`
	GraphVersion        string `yaml:"graph_version"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	SyncIntervalMinutes int    `yaml:"sync_interval_minutes"`
	DefaultSource       string `yaml:"default_source"`
}

// Timeout returns the configured timeout as a duration
func (c FacebookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SyncInterval returns the pull sync interval as a duration
func (c FacebookConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// SecretsConfig holds the key used to encrypt integration tokens at rest
type SecretsConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

// LogConfig holds structured logging settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. It defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// TasksConfig bounds the detached task runner
type TasksConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	MaxAttempts   int `yaml:"max_attempts"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 120
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Import.MaxFileMB == 0 {
		cfg.Import.MaxFileMB = 25
	}
	if cfg.Import.MaxRows == 0 {
		cfg.Import.MaxRows = 100000
	}
	if cfg.Import.MaxBatchRows == 0 {
		cfg.Import.MaxBatchRows = 5000
	}
	if cfg.Import.SampleRows == 0 {
		cfg.Import.SampleRows = 5
	}
	if cfg.Import.DefaultSource == "" {
		cfg.Import.DefaultSource = "CSV Import"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "lead-imports"
	}
	if cfg.Facebook.GraphBaseURL == "" {
		cfg.Facebook.GraphBaseURL = "https://graph.facebook.com"
	}
	if cfg.Facebook.GraphVersion == "" {
		cfg.Facebook.GraphVersion = "v19.0"
	}
	if cfg.Facebook.TimeoutSeconds == 0 {
		cfg.Facebook.TimeoutSeconds = 30
	}
	if cfg.Facebook.SyncIntervalMinutes == 0 {
		cfg.Facebook.SyncIntervalMinutes = 15
	}
	if cfg.Facebook.DefaultSource == "" {
		cfg.Facebook.DefaultSource = "Facebook Lead Ad"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Tasks.MaxConcurrent == 0 {
		cfg.Tasks.MaxConcurrent = 8
	}
	if cfg.Tasks.MaxAttempts == 0 {
		cfg.Tasks.MaxAttempts = 3
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FACEBOOK_APP_SECRET"); v != "" {
		cfg.Facebook.AppSecret = v
	}
	if v := os.Getenv("FACEBOOK_VERIFY_TOKEN"); v != "" {
		cfg.Facebook.VerifyToken = v
	}
	if v := os.Getenv("CRM_ENCRYPTION_KEY"); v != "" {
		cfg.Secrets.EncryptionKey = v
	}
	if v := os.Getenv("IMPORT_S3_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
		cfg.Storage.Enabled = true
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required (or set DATABASE_URL)")
	}
	if c.Facebook.Enabled {
		if c.Facebook.AppSecret == "" {
			return fmt.Errorf("facebook.app_secret is required when facebook is enabled")
		}
		if c.Secrets.EncryptionKey == "" {
			return fmt.Errorf("secrets.encryption_key is required when facebook is enabled")
		}
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}
	return nil
}
