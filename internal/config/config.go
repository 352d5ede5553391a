// Package config manages the server configuration stored in config.yaml in
// the data directory.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maruel/coedit/internal/archive"
	"github.com/maruel/coedit/internal/server/handlers"
	"github.com/maruel/coedit/internal/server/ratelimit"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file in the data directory.
const FileName = "config.yaml"

// Config stores all server-wide configuration.
// Loaded from config.yaml, created with defaults if missing.
type Config struct {
	// JWTSecret is the hex encoded secret used to sign client tokens.
	// Auto-generated if empty on first load.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the lifetime of a client token.
	TokenTTL time.Duration `yaml:"token_ttl"`

	Quotas     Quotas         `yaml:"quotas"`
	RateLimits RateLimits     `yaml:"rate_limits"`
	Archive    archive.Config `yaml:"archive"`
}

// Quotas defines server-wide resource limits.
type Quotas struct {
	// MaxRequestBodyBytes limits the size of any single HTTP request body.
	// 0 means unlimited.
	MaxRequestBodyBytes int64 `yaml:"max_request_body_bytes"`
}

// Validate checks that quota values are non-negative.
func (q *Quotas) Validate() error {
	if q.MaxRequestBodyBytes < 0 {
		return errors.New("max_request_body_bytes must be non-negative")
	}
	return nil
}

// RateLimits defines rate limiting configuration (requests per minute).
// 0 means unlimited.
type RateLimits struct {
	RegisterPerMin int `yaml:"register_per_min"`
	WritePerMin    int `yaml:"write_per_min"`
	ReadPerMin     int `yaml:"read_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.RegisterPerMin < 0 {
		return errors.New("register_per_min must be non-negative")
	}
	if r.WritePerMin < 0 {
		return errors.New("write_per_min must be non-negative")
	}
	if r.ReadPerMin < 0 {
		return errors.New("read_per_min must be non-negative")
	}
	return nil
}

// Rates converts to the limiter configuration.
func (r *RateLimits) Rates() ratelimit.Rates {
	return ratelimit.Rates{RegisterPerMin: r.RegisterPerMin, WritePerMin: r.WritePerMin, ReadPerMin: r.ReadPerMin}
}

// Default returns the configuration used when config.yaml is missing, minus
// the secret.
func Default() Config {
	d := ratelimit.DefaultRates()
	return Config{
		TokenTTL:   24 * time.Hour,
		Quotas:     Quotas{MaxRequestBodyBytes: 1024 * 1024},
		RateLimits: RateLimits{RegisterPerMin: d.RegisterPerMin, WritePerMin: d.WritePerMin, ReadPerMin: d.ReadPerMin},
		Archive:    archive.DefaultConfig(),
	}
}

// Secret returns the decoded JWT secret.
func (c *Config) Secret() ([]byte, error) {
	return hex.DecodeString(c.JWTSecret)
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	secret, err := c.Secret()
	if err != nil {
		return fmt.Errorf("jwt_secret must be hex encoded: %w", err)
	}
	if len(secret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token_ttl must be positive")
	}
	if err := c.Quotas.Validate(); err != nil {
		return fmt.Errorf("quotas: %w", err)
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	if err := c.Archive.Validate(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

// Handlers returns the handler configuration. c must be valid.
func (c *Config) Handlers(version string) *handlers.Config {
	secret, _ := c.Secret()
	return &handlers.Config{
		JWTSecret:           secret,
		TokenTTL:            c.TokenTTL,
		Version:             version,
		MaxRequestBodyBytes: c.Quotas.MaxRequestBodyBytes,
	}
}

// Load loads configuration from dataDir/config.yaml.
// Creates the file with defaults if it doesn't exist.
// Auto-generates JWTSecret if empty.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, FileName)
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}

	modified := false
	if cfg.JWTSecret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(secret)
		modified = true
	}
	if modified || errors.Is(err, os.ErrNotExist) {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Save writes the configuration to dataDir/config.yaml.
func (c *Config) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, FileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}
	return nil
}
