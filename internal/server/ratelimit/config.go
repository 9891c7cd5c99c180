package ratelimit

import (
	"net/http"
	"time"

	"github.com/maruel/mdblog/internal/config"
)

// Scope selects what identifies a client.
type Scope int

const (
	// ScopeIP keys buckets on the client IP address.
	ScopeIP Scope = iota
	// ScopeSession keys buckets on the admin session ID, falling back to the
	// client IP when there is none.
	ScopeSession
)

// Tier is a named limiter. A nil *Tier means unlimited.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Config holds the admin API tiers.
type Config struct {
	Session *Tier // login attempts
	Write   *Tier
	Read    *Tier
}

// NewConfig builds tiers from requests-per-minute settings. A zero rate
// disables the tier.
func NewConfig(rl config.RateLimits) *Config {
	return &Config{
		Session: newTier("session", rl.SessionRatePerMin, ScopeIP),
		Write:   newTier("write", rl.WriteRatePerMin, ScopeSession),
		Read:    newTier("read", rl.ReadRatePerMin, ScopeIP),
	}
}

func newTier(name string, perMin int, scope Scope) *Tier {
	if perMin <= 0 {
		return nil
	}
	// Allow a sixth of the per-minute budget as a burst, at least 5.
	burst := max(perMin/6, min(perMin, 5))
	return &Tier{Name: name, Limiter: NewLimiter(perMin, time.Minute, burst), Scope: scope}
}

// Match returns the tier for a request, or nil when it is not limited.
func (c *Config) Match(method, path string) *Tier {
	switch {
	case path == "/api/health":
		return nil
	case path == "/api/session" && method == http.MethodPost:
		return c.Session
	case path == "/api/preview":
		// Rendering is local and side-effect free.
		return c.Read
	case method == http.MethodGet || method == http.MethodHead:
		return c.Read
	case method == http.MethodPost || method == http.MethodPut || method == http.MethodDelete:
		return c.Write
	}
	return nil
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	for _, t := range []*Tier{c.Session, c.Write, c.Read} {
		if t != nil {
			t.Limiter.Close()
		}
	}
}
