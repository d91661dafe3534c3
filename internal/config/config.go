// Package config loads service settings from QUOTEGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const envPrefix = "QUOTEGUARD_"

type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string
	LogLevel string

	// PGDSN selects the PostgreSQL stores; in-memory stores are used when empty.
	PGDSN string

	AuthSecret string
	TokenTTL   time.Duration

	RateBurst    int
	RatePerSec   float64
	MaxBodyBytes int64

	ShutdownTimeout time.Duration
}

// Defaults returns the configuration used for unset variables.
func Defaults() Config {
	return Config{
		Env:             "dev",
		HTTPAddr:        ":8080",
		GRPCAddr:        ":9090",
		LogLevel:        "info",
		TokenTTL:        15 * time.Minute,
		RateBurst:       20,
		RatePerSec:      10,
		MaxBodyBytes:    1 << 20,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads the environment on top of Defaults and validates the result.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	var errs []error
	if v, ok := get("ENV"); ok {
		cfg.Env = v
	}
	if v, ok := get("HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := get("GRPC_ADDR"); ok {
		cfg.GRPCAddr = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := get("PG_DSN"); ok {
		cfg.PGDSN = v
	}
	if v, ok := get("AUTH_SECRET"); ok {
		cfg.AuthSecret = v
	}
	if v, ok := get("TOKEN_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%sTOKEN_TTL: invalid duration %q", envPrefix, v))
		} else {
			cfg.TokenTTL = d
		}
	}
	if v, ok := get("SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%sSHUTDOWN_TIMEOUT: invalid duration %q", envPrefix, v))
		} else {
			cfg.ShutdownTimeout = d
		}
	}
	if v, ok := get("RATE_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%sRATE_BURST: expected positive integer, got %q", envPrefix, v))
		} else {
			cfg.RateBurst = n
		}
	}
	if v, ok := get("RATE_PER_SEC"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			errs = append(errs, fmt.Errorf("%sRATE_PER_SEC: expected positive number, got %q", envPrefix, v))
		} else {
			cfg.RatePerSec = f
		}
	}
	if v, ok := get("MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%sMAX_BODY_BYTES: expected positive integer, got %q", envPrefix, v))
		} else {
			cfg.MaxBodyBytes = n
		}
	}

	if cfg.AuthSecret == "" {
		errs = append(errs, fmt.Errorf("%sAUTH_SECRET is required", envPrefix))
	} else if len(cfg.AuthSecret) < 32 && cfg.Env != "dev" {
		errs = append(errs, fmt.Errorf("%sAUTH_SECRET must be at least 32 bytes outside dev", envPrefix))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Log writes the effective configuration with secrets redacted.
func (c Config) Log(logger *zap.Logger) {
	logger.Info("configuration loaded",
		zap.String("env", c.Env),
		zap.String("http_addr", c.HTTPAddr),
		zap.String("grpc_addr", c.GRPCAddr),
		zap.String("log_level", c.LogLevel),
		zap.Bool("postgres", c.PGDSN != ""),
		zap.Duration("token_ttl", c.TokenTTL),
		zap.Int("rate_burst", c.RateBurst),
		zap.Float64("rate_per_sec", c.RatePerSec),
		zap.Int64("max_body_bytes", c.MaxBodyBytes),
	)
}
