package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maruel/mdblog/internal/config"
	"golang.org/x/time/rate"
)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(5, time.Minute, 5)
	defer l.Close()
	for i := range 5 {
		res := l.Allow("ip:1.2.3.4:session")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Limit != 5 {
			t.Errorf("Limit = %d, want 5", res.Limit)
		}
		if res.RetryAfter != 0 {
			t.Errorf("RetryAfter = %v for an allowed request", res.RetryAfter)
		}
	}
	res := l.Allow("ip:1.2.3.4:session")
	if res.Allowed {
		t.Fatal("6th request should be rate limited")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
	if res.RetryAfter < time.Second {
		t.Errorf("RetryAfter = %v, want >= 1s", res.RetryAfter)
	}
	if !res.ResetAt.After(time.Now()) {
		t.Error("ResetAt should be in the future")
	}
	// Other keys have their own bucket.
	if !l.Allow("ip:5.6.7.8:session").Allowed {
		t.Error("a different key should not be limited")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	l := NewLimiter(60, time.Minute, 10)
	defer l.Close()
	l.Allow("busy")
	l.mu.Lock()
	l.buckets["idle"] = &bucket{limiter: rate.NewLimiter(l.rate, l.burst), lastSeen: time.Now().Add(-time.Hour)}
	l.mu.Unlock()
	l.cleanup(time.Now().Add(-10 * time.Minute))
	if l.size() != 1 {
		t.Fatalf("size = %d, want 1", l.size())
	}
	l.mu.Lock()
	_, ok := l.buckets["busy"]
	l.mu.Unlock()
	if !ok {
		t.Error("recently used bucket was dropped")
	}
	l.Close()
}

func TestWriteHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteHeaders(w, Result{Allowed: true, Limit: 60, Remaining: 45, ResetAt: time.Unix(1706012345, 0)})
	if got := w.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("X-RateLimit-Limit = %s", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "45" {
		t.Errorf("X-RateLimit-Remaining = %s", got)
	}
	if got := w.Header().Get("X-RateLimit-Reset"); got != "1706012345" {
		t.Errorf("X-RateLimit-Reset = %s", got)
	}
	if got := w.Header().Get("Retry-After"); got != "" {
		t.Errorf("Retry-After = %s on an allowed request", got)
	}

	w = httptest.NewRecorder()
	WriteHeaders(w, Result{Limit: 60, RetryAfter: 30 * time.Second})
	if got := w.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %s, want 30", got)
	}
}

func TestNewResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewResponseWriter(rec, Result{Allowed: true, Limit: 5, Remaining: 4, ResetAt: time.Unix(1, 0)})
	_, _ = w.Write([]byte("ok"))
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestBuildKey(t *testing.T) {
	if got := BuildKey(ScopeIP, "10.0.0.1", "write"); got != "ip:10.0.0.1:write" {
		t.Errorf("got %q", got)
	}
	if got := BuildKey(ScopeSession, "abc", "write"); got != "sid:abc:write" {
		t.Errorf("got %q", got)
	}
}

func TestConfig_Match(t *testing.T) {
	cfg := NewConfig(config.RateLimits{SessionRatePerMin: 5, WriteRatePerMin: 60, ReadRatePerMin: 6000})
	defer cfg.Close()
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"GET", "/api/health", ""},
		{"POST", "/api/session", "session"},
		{"GET", "/api/session", "read"},
		{"DELETE", "/api/session", "write"},
		{"GET", "/api/posts", "read"},
		{"POST", "/api/posts", "write"},
		{"PUT", "/api/posts/tech/hello", "write"},
		{"DELETE", "/api/categories/tech", "write"},
		{"POST", "/api/preview", "read"},
		{"OPTIONS", "/api/posts", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			tier := cfg.Match(tt.method, tt.path)
			got := ""
			if tier != nil {
				got = tier.Name
			}
			if got != tt.want {
				t.Errorf("Match() = %q, want %q", got, tt.want)
			}
		})
	}
	if cfg.Session.Scope != ScopeIP || cfg.Write.Scope != ScopeSession {
		t.Error("unexpected scopes")
	}
}

func TestConfig_Disabled(t *testing.T) {
	cfg := NewConfig(config.RateLimits{WriteRatePerMin: 60})
	defer cfg.Close()
	if tier := cfg.Match("POST", "/api/session"); tier != nil {
		t.Errorf("session tier should be disabled, got %s", tier.Name)
	}
	if tier := cfg.Match("GET", "/api/posts"); tier != nil {
		t.Errorf("read tier should be disabled, got %s", tier.Name)
	}
	if cfg.Match("POST", "/api/posts") == nil {
		t.Error("write tier should be enabled")
	}
}
