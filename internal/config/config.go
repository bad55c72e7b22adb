package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Provider   ProviderConfig   `yaml:"provider"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Cron       CronConfig       `yaml:"cron"`
	Queue      QueueConfig      `yaml:"queue"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// ProviderConfig describes the print-on-demand fulfillment API.
type ProviderConfig struct {
	APIKey             string          `yaml:"api_key"`
	BaseURL            string          `yaml:"base_url"`
	StoreID            string          `yaml:"store_id"`
	Timeout            time.Duration   `yaml:"timeout"`
	MaxRetries         int             `yaml:"max_retries"`
	BaseDelay          time.Duration   `yaml:"base_delay"`
	BackoffFactor      float64         `yaml:"backoff_factor"`
	RateLimit          RateLimitConfig `yaml:"rate_limit"`
	MockupRateLimit    RateLimitConfig `yaml:"mockup_rate_limit"`
	DefaultArtifactURL string          `yaml:"default_artifact_url"`
	ConfirmOrders      bool            `yaml:"confirm_orders"`
}

type RateLimitConfig struct {
	Calls  int           `yaml:"calls"`
	Window time.Duration `yaml:"window"`
}

type WebhookConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Secret            string        `yaml:"secret"`
	SignatureHeader   string        `yaml:"signature_header"`
	VerificationToken string        `yaml:"verification_token"`
	DedupTTL          time.Duration `yaml:"dedup_ttl"`
}

type CronConfig struct {
	Secret      string        `yaml:"secret"`
	Header      string        `yaml:"header"`
	MinInterval time.Duration `yaml:"min_interval"`
}

type QueueConfig struct {
	MirrorEnabled bool          `yaml:"mirror_enabled"`
	RedrainDelay  time.Duration `yaml:"redrain_delay"`
	// Retention is how long finished tasks stay queryable before a sweep drops them.
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the process environment.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate checks required settings. A missing provider API key is allowed:
// the client refuses each call with missing_api_key instead.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Webhook.Enabled && c.Webhook.Secret == "" {
		return errors.New("webhook secret is required when webhooks are enabled")
	}

	if c.Provider.MockupRateLimit.Calls <= 0 {
		return errors.New("provider.mockup_rate_limit.calls must be positive")
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	// Provider defaults
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.printful.com"
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = 3
	}
	if c.Provider.BaseDelay == 0 {
		c.Provider.BaseDelay = time.Second
	}
	if c.Provider.BackoffFactor == 0 {
		c.Provider.BackoffFactor = 2
	}
	if c.Provider.RateLimit.Calls == 0 {
		c.Provider.RateLimit.Calls = 120
	}
	if c.Provider.RateLimit.Window == 0 {
		c.Provider.RateLimit.Window = time.Minute
	}
	if c.Provider.MockupRateLimit.Calls == 0 {
		c.Provider.MockupRateLimit.Calls = 2
	}
	if c.Provider.MockupRateLimit.Window == 0 {
		c.Provider.MockupRateLimit.Window = time.Minute
	}

	if c.Webhook.SignatureHeader == "" {
		c.Webhook.SignatureHeader = "X-Webhook-Signature"
	}
	if c.Webhook.DedupTTL == 0 {
		c.Webhook.DedupTTL = 24 * time.Hour
	}

	if c.Cron.Header == "" {
		c.Cron.Header = "X-Cron-Secret"
	}
	if c.Cron.MinInterval == 0 {
		c.Cron.MinInterval = 12 * time.Hour
	}

	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}

	if c.Queue.RedrainDelay == 0 {
		c.Queue.RedrainDelay = 100 * time.Millisecond
	}
	if c.Queue.Retention == 0 {
		c.Queue.Retention = 24 * time.Hour
	}
	if c.Queue.SweepInterval == 0 {
		c.Queue.SweepInterval = 10 * time.Minute
	}
}
