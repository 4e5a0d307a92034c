package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const VERSION = "1.2"

// Config holds the full worker configuration, loaded from the environment.
type Config struct {
	DatabaseURL string
	SMTP        SMTPConfig
	Worker      WorkerConfig
	Webhook     WebhookConfig

	// SystemDomain is used to build synthetic Message-IDs
	// (<{message_id}@{system_domain}>).
	SystemDomain string

	// SecretKey encrypts DKIM private keys at rest.
	SecretKey string

	Environment string
	LogLevel    string
	Debug       bool
	Version     string
}

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromDefault string
	UseTLS      bool
	// MaxConnections bounds the relay connection pool.
	MaxConnections int
}

type WorkerConfig struct {
	Concurrency       int
	MaxRetries        int
	RetryDelay        time.Duration
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	ShutdownGrace     time.Duration
}

type WebhookConfig struct {
	MaxRetries     int
	RequestTimeout time.Duration
}

// LoadOptions contains options for loading configuration
type LoadOptions struct {
	EnvFile string // Optional environment file to load (e.g., ".env", ".env.test")
}

// Load loads the configuration with default options
func Load() (*Config, error) {
	// Try to load .env file but don't require it
	return LoadWithOptions(LoadOptions{EnvFile: ".env"})
}

// LoadWithOptions loads the configuration with the specified options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USE_TLS", true)
	v.SetDefault("SMTP_MAX_CONNECTIONS", 5)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("RETRY_DELAY_MS", 5000)
	v.SetDefault("POLL_INTERVAL_MS", 5000)
	v.SetDefault("MAX_WEBHOOK_RETRIES", 5)
	v.SetDefault("WEBHOOK_TIMEOUT_MS", 30000)
	v.SetDefault("SHUTDOWN_GRACE_MS", 30000)
	v.SetDefault("SYSTEM_DOMAIN", "postroom.local")
	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEBUG", false)
	v.SetDefault("VERSION", VERSION)

	// Load environment file if specified
	if opts.EnvFile != "" {
		v.SetConfigName(opts.EnvFile)
		v.SetConfigType("env")

		currentPath, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("error getting current directory: %w", err)
		}

		v.AddConfigPath(currentPath)

		if err := v.ReadInConfig(); err != nil {
			// It's okay if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	// Read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	databaseURL := v.GetString("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	concurrency := v.GetInt("WORKER_CONCURRENCY")
	if concurrency < 1 || concurrency > 100 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", concurrency)
	}

	maxRetries := v.GetInt("MAX_RETRIES")
	if maxRetries < 0 || maxRetries > 10 {
		return nil, fmt.Errorf("MAX_RETRIES must be between 0 and 10, got %d", maxRetries)
	}

	retryDelayMs := v.GetInt("RETRY_DELAY_MS")
	if retryDelayMs < 1000 {
		return nil, fmt.Errorf("RETRY_DELAY_MS must be >= 1000, got %d", retryDelayMs)
	}

	pollIntervalMs := v.GetInt("POLL_INTERVAL_MS")
	if pollIntervalMs < 1000 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be >= 1000, got %d", pollIntervalMs)
	}

	// Visibility timeout defaults to the poll interval: a processing row
	// untouched for one full poll cycle is presumed abandoned.
	visibilityMs := v.GetInt("VISIBILITY_TIMEOUT_MS")
	if visibilityMs == 0 {
		visibilityMs = pollIntervalMs
	}

	secretKey := v.GetString("SECRET_KEY")
	if secretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY is required")
	}

	config := &Config{
		DatabaseURL: databaseURL,
		SMTP: SMTPConfig{
			Host:           v.GetString("SMTP_HOST"),
			Port:           v.GetInt("SMTP_PORT"),
			Username:       v.GetString("SMTP_USER"),
			Password:       v.GetString("SMTP_PASS"),
			FromDefault:    v.GetString("SMTP_FROM_DEFAULT"),
			UseTLS:         v.GetBool("SMTP_USE_TLS"),
			MaxConnections: v.GetInt("SMTP_MAX_CONNECTIONS"),
		},
		Worker: WorkerConfig{
			Concurrency:       concurrency,
			MaxRetries:        maxRetries,
			RetryDelay:        time.Duration(retryDelayMs) * time.Millisecond,
			PollInterval:      time.Duration(pollIntervalMs) * time.Millisecond,
			VisibilityTimeout: time.Duration(visibilityMs) * time.Millisecond,
			ShutdownGrace:     time.Duration(v.GetInt("SHUTDOWN_GRACE_MS")) * time.Millisecond,
		},
		Webhook: WebhookConfig{
			MaxRetries:     v.GetInt("MAX_WEBHOOK_RETRIES"),
			RequestTimeout: time.Duration(v.GetInt("WEBHOOK_TIMEOUT_MS")) * time.Millisecond,
		},
		SystemDomain: v.GetString("SYSTEM_DOMAIN"),
		SecretKey:    secretKey,
		Environment:  v.GetString("ENVIRONMENT"),
		LogLevel:     v.GetString("LOG_LEVEL"),
		Debug:        v.GetBool("DEBUG"),
		Version:      v.GetString("VERSION"),
	}

	if config.SMTP.Host == "" {
		return nil, fmt.Errorf("SMTP_HOST is required")
	}

	if config.Debug {
		config.LogLevel = "debug"
	}

	return config, nil
}

// IsDevelopment returns true if the environment is set to development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
