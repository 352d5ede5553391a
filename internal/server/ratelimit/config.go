// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"net/http"
	"strings"
	"time"
)

// Scope defines how rate limit keys are determined.
type Scope int

const (
	// ScopeIP uses the client IP address as the rate limit key.
	ScopeIP Scope = iota
	// ScopeClient uses the authenticated editing client as the rate limit key.
	ScopeClient
)

// Tier is a named limiter with its scope.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Rates holds requests per minute for each tier. 0 disables the tier.
type Rates struct {
	RegisterPerMin int
	WritePerMin    int
	ReadPerMin     int
}

// DefaultRates is sized for interactive editors polling once a second.
func DefaultRates() Rates {
	return Rates{
		RegisterPerMin: 10,
		WritePerMin:    600,
		ReadPerMin:     30000,
	}
}

// Config holds the tiers. A nil tier is unlimited.
type Config struct {
	Register *Tier // client registration, per IP
	Write    *Tier // lock, unlock, write, close, per client
	Read     *Tier // everything else, per client
}

// New creates the tiers for r.
func New(r Rates) *Config {
	return &Config{
		Register: newTier("register", r.RegisterPerMin, ScopeIP),
		Write:    newTier("write", r.WritePerMin, ScopeClient),
		Read:     newTier("read", r.ReadPerMin, ScopeClient),
	}
}

func newTier(name string, perMin int, scope Scope) *Tier {
	if perMin <= 0 {
		return nil
	}
	burst := max(perMin/6, 1)
	return &Tier{Name: name, Limiter: NewLimiter(perMin, time.Minute, burst), Scope: scope}
}

// MatchUnauth returns the tier for an unauthenticated request, nil when not
// limited.
func (c *Config) MatchUnauth(method, path string) *Tier {
	if c == nil {
		return nil
	}
	if method == http.MethodPost && strings.HasSuffix(path, "/clients") {
		return c.Register
	}
	return nil
}

// MatchAuth returns the tier for an authenticated request, nil when not
// limited.
func (c *Config) MatchAuth(method, path string) *Tier {
	if c == nil || strings.HasSuffix(path, "/health") {
		return nil
	}
	if method == http.MethodGet || method == http.MethodHead {
		return c.Read
	}
	return c.Write
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	if c == nil {
		return
	}
	for _, t := range []*Tier{c.Register, c.Write, c.Read} {
		if t != nil {
			t.Limiter.Close()
		}
	}
}

// BuildKey creates a rate limit bucket key from scope, identifier, and tier name.
func BuildKey(scope Scope, identifier, tierName string) string {
	var prefix string
	switch scope {
	case ScopeIP:
		prefix = "ip"
	case ScopeClient:
		prefix = "client"
	default:
		prefix = "unknown"
	}
	return prefix + ":" + identifier + ":" + tierName
}
