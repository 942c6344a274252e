package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the process configuration, layered defaults < yaml file <
// BIDHUB_* environment variables.
type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Bidding  BiddingConfig  `koanf:"bidding"`
	Security SecurityConfig `koanf:"security"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// BiddingConfig maps onto the engine's knobs.
type BiddingConfig struct {
	ExtensionWindow    time.Duration `koanf:"extension_window"`
	ExtensionIncrement time.Duration `koanf:"extension_increment"`
	MaxExtensions      int           `koanf:"max_extensions"`
	SubmitTimeout      time.Duration `koanf:"submit_timeout"`
	SweepInterval      time.Duration `koanf:"sweep_interval"`
	SweepBatchSize     int           `koanf:"sweep_batch_size"`
	DefaultCurrency    string        `koanf:"default_currency" validate:"len=3"`
}

type SecurityConfig struct {
	JWTSecret   string          `koanf:"jwt_secret" validate:"required"`
	TokenExpiry time.Duration   `koanf:"token_expiry"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig shapes the per-bidder sliding window limiter.
type RateLimitConfig struct {
	BidsPerWindow int           `koanf:"bids_per_window"`
	Window        time.Duration `koanf:"window"`
}

// Load reads configuration from defaults, an optional yaml file, and the
// environment, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:        25,
			MinConns:        5,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Bidding: BiddingConfig{
			ExtensionWindow:    5 * time.Minute,
			ExtensionIncrement: 10 * time.Minute,
			MaxExtensions:      30,
			SubmitTimeout:      10 * time.Second,
			SweepInterval:      15 * time.Second,
			SweepBatchSize:     100,
			DefaultCurrency:    "VND",
		},
		Security: SecurityConfig{
			TokenExpiry: 24 * time.Hour,
			RateLimit: RateLimitConfig{
				BidsPerWindow: 20,
				Window:        time.Minute,
			},
		},
	}
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("BIDHUB_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "BIDHUB_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
