// Builds archivers from configuration.

package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
)

// Backend names accepted in Config.Backends.
const (
	BackendFile    = "file"
	BackendJournal = "journal"
	BackendGit     = "git"
	BackendRedis   = "redis"
)

var knownBackends = []string{BackendFile, BackendJournal, BackendGit, BackendRedis}

// Config selects and configures archive backends.
type Config struct {
	// Backends lists the enabled backends. Empty disables archiving.
	Backends []string `yaml:"backends"`
	// Dir is the root directory for file, journal and git backends. Relative
	// paths are resolved against the data directory.
	Dir string `yaml:"dir,omitempty"`
	// RedisAddr is host:port of the Redis server for the redis backend.
	RedisAddr string `yaml:"redis_addr,omitempty"`
	// RedisPrefix prefixes every Redis key.
	RedisPrefix string `yaml:"redis_prefix,omitempty"`
	// RedisHistory bounds the snapshots kept per document in Redis.
	RedisHistory int `yaml:"redis_history,omitempty"`
}

// DefaultConfig archives to the JSONL journal only.
func DefaultConfig() Config {
	return Config{
		Backends: []string{BackendJournal},
		Dir:      "archive",
	}
}

// Validate checks backend names and their required settings.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, b := range c.Backends {
		if !slices.Contains(knownBackends, b) {
			return fmt.Errorf("unknown archive backend %q, expected one of %v", b, knownBackends)
		}
		if seen[b] {
			return fmt.Errorf("archive backend %q listed twice", b)
		}
		seen[b] = true
	}
	if seen[BackendRedis] && c.RedisAddr == "" {
		return errors.New("archive backend redis requires redis_addr")
	}
	if c.RedisHistory < 0 {
		return errors.New("redis_history must be non-negative")
	}
	return nil
}

// Open builds the configured backends. The caller must Close the result.
func Open(ctx context.Context, dataDir string, cfg *Config) (*Multi, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "archive"
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(dataDir, dir)
	}
	var backends []Archiver
	fail := func(err error) (*Multi, error) {
		_ = NewMulti(backends...).Close()
		return nil, err
	}
	for _, name := range cfg.Backends {
		var b Archiver
		var err error
		switch name {
		case BackendJournal:
			b, err = NewJournal(filepath.Join(dir, "journal.jsonl"))
		case BackendFile:
			b, err = NewFile(filepath.Join(dir, "files"))
		case BackendGit:
			b, err = NewGit(filepath.Join(dir, "git"), "", "")
		case BackendRedis:
			b, err = DialRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix, cfg.RedisHistory)
		}
		if err != nil {
			return fail(fmt.Errorf("failed to open %s archive: %w", name, err))
		}
		backends = append(backends, b)
	}
	return NewMulti(backends...), nil
}
