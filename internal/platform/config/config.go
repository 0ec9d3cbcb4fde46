// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Gatekeep API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// JWT signing. Exactly one mode must be configured:
	// HS256 via JWT_SECRET, or RS256 via the two key paths.
	JWTSecret      string `env:"JWT_SECRET"`
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`

	// Token lifetimes
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	// Argon2id parameters. Defaults target ~250ms on reference hardware.
	Argon2Memory      uint32 `env:"ARGON2_MEMORY_KIB"  envDefault:"65536"`
	Argon2Iterations  uint32 `env:"ARGON2_ITERATIONS"  envDefault:"3"`
	Argon2Parallelism uint8  `env:"ARGON2_PARALLELISM" envDefault:"4"`

	// TwoFactorKey is the hex-encoded 256-bit AES key that encrypts TOTP
	// secrets at rest.
	TwoFactorKey string `env:"TWO_FACTOR_ENCRYPTION_KEY,required"`

	// Email transport
	EmailFrom     string `env:"EMAIL_FROM"      envDefault:"no-reply@gatekeep.dev"`
	EmailSMTPAddr string `env:"EMAIL_SMTP_ADDR"`

	// Rate limiting defaults for the Redis per-route window.
	RateLimitPerRoute int `env:"RATE_LIMIT_PER_ROUTE" envDefault:"300"`

	// Audit chain
	AuditRetentionDays int  `env:"AUDIT_RETENTION_DAYS" envDefault:"365"`
	AuditVerifySweep   bool `env:"AUDIT_VERIFY_SWEEP"   envDefault:"false"`

	// Authorization cache
	AuthzL2Enabled bool `env:"AUTHZ_L2_ENABLED" envDefault:"true"`

	// Janitor
	UnverifiedAccountMaxAgeDays int `env:"UNVERIFIED_ACCOUNT_MAX_AGE_DAYS" envDefault:"7"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	// JWT mode sanity check: the process must be able to both sign and verify.
	if cfg.JWTSecret == "" && (cfg.JWTPrivKeyPath == "" || cfg.JWTPubKeyPath == "") {
		return nil, fmt.Errorf("config: either JWT_SECRET or both JWT key paths must be set")
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOrigins returns the comma-separated EXTRA_ORIGINS list as a slice.
func (c *Config) AllowedOrigins() []string {
	if c.ExtraOrigins == "" {
		return nil
	}

	var origins []string
	for _, origin := range strings.Split(c.ExtraOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
