package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// StoreKind identifies which durable backend holds tokens and job lists.
type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreFile     StoreKind = "file"
	StorePostgres StoreKind = "postgres"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://phoenixback.pythonanywhere.com/api"

var (
	ErrMissingBaseURL     = errors.New("ANOT_API_BASE_URL must not be empty")
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required for postgres store")
	ErrMissingStorePath   = errors.New("ANOT_STORE_PATH is required for file store")
	ErrUnknownStore       = errors.New("unknown store kind")
	ErrInvalidRateLimit   = errors.New("rate limit must not be negative")
)

// Config holds everything the client and CLI need to run.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	RateLimit   float64       `yaml:"rate_limit"`
	RateBurst   int           `yaml:"rate_burst"`

	Store       StoreKind `yaml:"store"`
	StorePath   string    `yaml:"store_path"`
	StoreKey    string    `yaml:"-"`
	DatabaseURL string    `yaml:"-"`

	Language  string `yaml:"language"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	PaymentAddr    string   `yaml:"payment_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	JobMaxPendingAge time.Duration `yaml:"job_max_pending_age"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		HTTPTimeout:      30 * time.Second,
		RateLimit:        10,
		RateBurst:        5,
		Store:            StoreFile,
		StorePath:        ".anot/store.json",
		Language:         "en",
		LogLevel:         "info",
		LogFormat:        "auto",
		PaymentAddr:      "localhost:5050",
		AllowedOrigins:   []string{"http://localhost:5173"},
		JobMaxPendingAge: 72 * time.Hour,
	}
}

// LoadFile overlays a YAML file on top of cfg. A missing file is not an error.
func LoadFile(cfg Config, path string) (Config, error) {
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv builds the configuration from defaults, the optional YAML file
// named by ANOT_CONFIG (default anot.yaml) and environment variables, in that
// order of precedence.
//
// Environment variables:
//   - ANOT_API_BASE_URL, ANOT_HTTP_TIMEOUT, ANOT_RATE_LIMIT, ANOT_RATE_BURST
//   - ANOT_STORE (memory|file|postgres), ANOT_STORE_PATH, ANOT_STORE_KEY, DATABASE_URL
//   - ANOT_LANGUAGE, ANOT_LOG_LEVEL, ANOT_LOG_FORMAT
//   - ANOT_PAYMENT_ADDR, ANOT_ALLOWED_ORIGINS (comma separated)
//   - ANOT_JOB_MAX_PENDING_AGE
func LoadFromEnv() (Config, error) {
	path := strings.TrimSpace(os.Getenv("ANOT_CONFIG"))
	if path == "" {
		path = "anot.yaml"
	}
	cfg, err := LoadFile(Default(), path)
	if err != nil {
		return cfg, err
	}

	if v := env("ANOT_API_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := env("ANOT_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("ANOT_HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	if v := env("ANOT_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("ANOT_RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = f
	}
	if v := env("ANOT_RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("ANOT_RATE_BURST: %w", err)
		}
		cfg.RateBurst = n
	}
	if v := env("ANOT_STORE"); v != "" {
		cfg.Store = StoreKind(strings.ToLower(v))
	}
	if v := env("ANOT_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	cfg.StoreKey = os.Getenv("ANOT_STORE_KEY")
	cfg.DatabaseURL = env("DATABASE_URL")
	if v := env("ANOT_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := env("ANOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := env("ANOT_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := env("ANOT_PAYMENT_ADDR"); v != "" {
		cfg.PaymentAddr = v
	}
	if v := env("ANOT_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	if v := env("ANOT_JOB_MAX_PENDING_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("ANOT_JOB_MAX_PENDING_AGE: %w", err)
		}
		cfg.JobMaxPendingAge = d
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

// Validate checks that the configuration is usable for the selected store.
func (c Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, ErrMissingBaseURL)
	}
	if c.RateLimit < 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	switch c.Store {
	case StoreMemory:
	case StoreFile:
		if c.StorePath == "" {
			errs = append(errs, ErrMissingStorePath)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownStore, c.Store))
	}
	return errors.Join(errs...)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
