package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader reads configuration from an optional YAML file, applying defaults
// first and environment overrides last.
type Loader struct {
	path      string
	useDotEnv bool
}

// NewLoader creates a loader for the given config file path. An empty path
// means defaults plus environment only.
func NewLoader(path string) *Loader {
	return &Loader{
		path:      path,
		useDotEnv: true,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Result captures the loaded configuration and its origin.
type Result struct {
	Config *Config
	Path   string
}

// Load produces the effective configuration.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// No .env file is fine; the process environment still applies.
		_ = godotenv.Load()
	}

	cfg := Default()
	origin := "defaults"

	if l.path != "" {
		raw, err := os.ReadFile(l.path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", l.path, err)
			}
		} else {
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", l.path, err)
			}
			origin = l.path
		}
	}

	applyEnvOverrides(cfg)

	return &Result{
		Config: cfg,
		Path:   origin,
	}, nil
}

// applyEnvOverrides maps CLEANCITY_* variables onto the secrets that should
// never live in a checked-in YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLEANCITY_DELIVERY_SERVICE_ID"); v != "" {
		cfg.Delivery.ServiceID = v
	}
	if v := os.Getenv("CLEANCITY_DELIVERY_TEMPLATE_ID"); v != "" {
		cfg.Delivery.TemplateID = v
	}
	if v := os.Getenv("CLEANCITY_DELIVERY_PUBLIC_KEY"); v != "" {
		cfg.Delivery.PublicKey = v
	}
	if v := os.Getenv("CLEANCITY_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("CLEANCITY_ADMIN_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("CLEANCITY_REDIS_ADDR"); v != "" {
		cfg.Ledger.Redis.Addr = v
	}
}
