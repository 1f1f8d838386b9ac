// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads surveydesk settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Session backends.
const (
	SessionBackendSQL   = "sql"
	SessionBackendRedis = "redis"
)

// DefaultFrontendOrigin is always allowed by the CORS policy.
const DefaultFrontendOrigin = "https://company-secreteriat-v1-frontend.vercel.app"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath     string `env:"SURVEYDESK_DB_PATH" envDefault:"./data/surveydesk.db"`
	ServerHost string `env:"SURVEYDESK_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"SURVEYDESK_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"SURVEYDESK_ENV" envDefault:"development"`
	LogLevel   string `env:"SURVEYDESK_LOG_LEVEL" envDefault:"info"`

	// Comma-separated origins allowed in addition to DefaultFrontendOrigin
	FrontendOrigin string `env:"SURVEYDESK_FRONTEND_ORIGIN"`

	// Session configuration
	SessionTTL     time.Duration `env:"SURVEYDESK_SESSION_TTL" envDefault:"168h"`
	SessionBackend string        `env:"SURVEYDESK_SESSION_BACKEND" envDefault:"sql"`

	// Redis, used by the redis session backend and the login lockout cache
	RedisURL    string `env:"SURVEYDESK_REDIS_URL"`
	RedisPrefix string `env:"SURVEYDESK_REDIS_PREFIX" envDefault:"surveydesk:"`

	// Login protection
	LoginRateLimit   float64       `env:"SURVEYDESK_LOGIN_RATE_LIMIT" envDefault:"0.5"` // requests per second per IP
	LoginBurst       int           `env:"SURVEYDESK_LOGIN_BURST" envDefault:"5"`
	LoginMaxFailures int           `env:"SURVEYDESK_LOGIN_MAX_FAILURES" envDefault:"5"`
	LoginLockout     time.Duration `env:"SURVEYDESK_LOGIN_LOCKOUT" envDefault:"15m"`

	// Seeding configuration
	DoSeed        bool   `env:"SURVEYDESK_DO_SEED" envDefault:"false"`
	AdminEmail    string `env:"SURVEYDESK_ADMIN_EMAIL" envDefault:"admin@example.com"`
	AdminPassword string `env:"SURVEYDESK_ADMIN_PASSWORD" envDefault:"changeme"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedis returns true if a Redis URL is configured.
func (c Config) UseRedis() bool {
	return c.RedisURL != ""
}

// ExtraOrigins returns the configured origins beyond the default one.
func (c Config) ExtraOrigins() []string {
	var origins []string
	for _, part := range strings.Split(c.FrontendOrigin, ",") {
		part = strings.TrimSuffix(strings.TrimSpace(part), "/")
		if part != "" {
			origins = append(origins, part)
		}
	}
	return origins
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("SURVEYDESK_SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SURVEYDESK_SESSION_TTL must be positive, got %s", c.SessionTTL)
	}

	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))
	switch c.SessionBackend {
	case SessionBackendSQL:
	case SessionBackendRedis:
		if !c.UseRedis() {
			return fmt.Errorf("SURVEYDESK_REDIS_URL is required when SURVEYDESK_SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("SURVEYDESK_SESSION_BACKEND must be %q or %q, got %q",
			SessionBackendSQL, SessionBackendRedis, c.SessionBackend)
	}

	for _, origin := range c.ExtraOrigins() {
		if err := validateOrigin(origin); err != nil {
			return fmt.Errorf("SURVEYDESK_FRONTEND_ORIGIN: %w", err)
		}
	}

	if c.LoginMaxFailures < 1 {
		return fmt.Errorf("SURVEYDESK_LOGIN_MAX_FAILURES must be at least 1, got %d", c.LoginMaxFailures)
	}

	return nil
}

func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin %q must use http or https", origin)
	}
	if u.Host == "" || (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
		return fmt.Errorf("origin %q must be scheme://host[:port]", origin)
	}
	return nil
}
