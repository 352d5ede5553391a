package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(5, time.Minute, 5)
	defer l.Close()

	for i := range 5 {
		res := l.Allow("k")
		if !res.Allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if res.Limit != 5 {
			t.Errorf("Limit = %d, want 5", res.Limit)
		}
	}
	res := l.Allow("k")
	if res.Allowed {
		t.Error("6th request should be rate limited")
	}
	if res.RetryAfter < time.Second {
		t.Errorf("RetryAfter = %v, want >= 1s", res.RetryAfter)
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
	if !l.Allow("other").Allowed {
		t.Error("other key should not be limited")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	l := NewLimiter(60, time.Minute, 1)
	defer l.Close()
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("idle")
	now = now.Add(time.Hour)
	l.cleanup()
	if l.Len() != 0 {
		t.Errorf("Len() = %d after cleanup, want 0", l.Len())
	}
	l.Close()
}

func TestConfig(t *testing.T) {
	c := New(DefaultRates())
	defer c.Close()
	tests := []struct {
		name   string
		auth   bool
		method string
		path   string
		want   *Tier
	}{
		{"register", false, "POST", "/api/v1/clients", c.Register},
		{"unauth read", false, "GET", "/api/v1/health", nil},
		{"health", true, "GET", "/api/v1/health", nil},
		{"read", true, "GET", "/api/v1/documents/x/changes", c.Read},
		{"lock", true, "POST", "/api/v1/documents/x/rows/1/lock", c.Write},
		{"write", true, "PUT", "/api/v1/documents/x/rows/1", c.Write},
		{"disconnect", true, "DELETE", "/api/v1/clients/me", c.Write},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Tier
			if tt.auth {
				got = c.MatchAuth(tt.method, tt.path)
			} else {
				got = c.MatchUnauth(tt.method, tt.path)
			}
			if got != tt.want {
				t.Errorf("match = %v, want %v", got, tt.want)
			}
		})
	}
	if c.Register.Scope != ScopeIP || c.Write.Scope != ScopeClient {
		t.Error("unexpected scopes")
	}

	t.Run("disabled tiers", func(t *testing.T) {
		c := New(Rates{})
		defer c.Close()
		if c.MatchAuth("GET", "/x") != nil || c.MatchUnauth("POST", "/clients") != nil {
			t.Error("zero rates should disable limiting")
		}
		var nilCfg *Config
		if nilCfg.MatchAuth("GET", "/x") != nil {
			t.Error("nil config should not limit")
		}
	})
}

func TestBuildKey(t *testing.T) {
	if got := BuildKey(ScopeClient, "C1", "write"); got != "client:C1:write" {
		t.Errorf("BuildKey() = %q", got)
	}
	if got := BuildKey(ScopeIP, "10.0.0.1", "register"); got != "ip:10.0.0.1:register" {
		t.Errorf("BuildKey() = %q", got)
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewResponseWriter(rec, Result{Allowed: false, Limit: 10, Remaining: 0, ResetAt: time.Unix(100, 0), RetryAfter: 3 * time.Second})
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte("x"))
	h := rec.Header()
	if h.Get("X-RateLimit-Limit") != "10" || h.Get("X-RateLimit-Reset") != "100" || h.Get("Retry-After") != "3" {
		t.Errorf("headers = %v", h)
	}
}
