// Package config loads runtime settings from the environment and .env files.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	env "github.com/netflix/go-env"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Headless       bool          `env:"HEADLESS,default=true"`
	MaxResults     int           `env:"MAX_RESULTS,default=50"`
	PageTimeout    time.Duration `env:"TIMEOUT,default=30s"`
	CollectTimeout time.Duration `env:"COLLECT_TIMEOUT,default=120s"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY,default=5"`
	RetryCount     int           `env:"RETRY_COUNT,default=1"`
	DefaultRadius  float64       `env:"DEFAULT_RADIUS,default=1000"`
	BlockResources bool          `env:"BLOCK_RESOURCES,default=true"`
	StrictPostal   bool          `env:"STRICT_POSTAL,default=false"`

	GeocoderBaseURL   string  `env:"GEOCODER_BASE_URL,default=https://nominatim.openstreetmap.org/search"`
	GeocoderUserAgent string  `env:"GEOCODER_USER_AGENT,default=mapsift/1.0"`
	GeocoderRate      float64 `env:"GEOCODER_RATE,default=1"`
	ProxyURL          string  `env:"PROXY_URL"`

	EnrichEmails bool `env:"ENRICH_EMAILS,default=false"`

	LogLevel   string `env:"LOG_LEVEL,default=info"`
	LogFormat  string `env:"LOG_FORMAT,default=text"`
	OutputDir  string `env:"OUTPUT_DIR,default=./results"`
	ServerAddr string `env:"SERVER_ADDR,default=:3000"`
}

// LoadEnv loads .env files from the working directory into the process
// environment. Missing files are skipped.
func LoadEnv(logger logrus.FieldLogger) {
	files := []string{".env", ".env.local"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger != nil && len(loaded) > 0 {
		logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
	}
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// validateConfig clamps numeric settings to safe ranges and rejects values
// nothing downstream could use.
func validateConfig(cfg *Config) error {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxConcurrency > 20 {
		cfg.MaxConcurrency = 20
	}

	// detail pages get at most one retry
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.RetryCount > 1 {
		cfg.RetryCount = 1
	}

	if cfg.MaxResults < 1 {
		cfg.MaxResults = 50
	}
	if cfg.DefaultRadius <= 0 {
		cfg.DefaultRadius = 1000
	}
	if cfg.GeocoderRate <= 0 {
		cfg.GeocoderRate = 1
	}
	if cfg.PageTimeout <= 0 {
		return fmt.Errorf("TIMEOUT must be greater than 0")
	}
	if cfg.CollectTimeout <= 0 {
		return fmt.Errorf("COLLECT_TIMEOUT must be greater than 0")
	}

	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid PROXY_URL %q", cfg.ProxyURL)
		}
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q", cfg.LogLevel)
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	return nil
}
