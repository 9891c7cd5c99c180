// Package server exposes the admin services as an HTTP JSON API.
//
// Each API session owns an admin.Session and an admin.Editor. The session is
// identified by a signed JWT carried in the mdblog_session cookie or in an
// Authorization bearer header.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/mdblog/internal/admin"
	"github.com/maruel/mdblog/internal/config"
	"github.com/maruel/mdblog/internal/journal"
	"github.com/maruel/mdblog/internal/server/ratelimit"
	"github.com/maruel/mdblog/internal/server/reqctx"
)

// Options configures a Server.
type Options struct {
	// JWTSecret signs session tokens. Required.
	JWTSecret []byte
	// SessionTTL defaults to 24h.
	SessionTTL          time.Duration
	MaxRequestBodyBytes int64
	RateLimits          config.RateLimits
	DefaultAuthor       string
	Version             string
	// Activity is served by GET /api/activity. Optional.
	Activity *journal.Journal
}

// Server serves the admin API.
type Server struct {
	connect admin.Connector
	opts    Options
	limits  *ratelimit.Config
	now     func() time.Time

	mu      sync.Mutex
	clients map[ksid.ID]*client
}

// client is the server side state of one API session.
type client struct {
	id      ksid.ID
	session *admin.Session
	expires time.Time
}

// New returns a server that opens content stores with connect.
func New(connect admin.Connector, opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Server{
		connect: connect,
		opts:    opts,
		limits:  ratelimit.NewConfig(opts.RateLimits),
		now:     time.Now,
		clients: map[ksid.ID]*client{},
	}
}

// Handler returns the API routes wrapped with request metadata and logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/health", Wrap(s, s.health))
	mux.Handle("GET /api/schema", Wrap(s, s.schema))

	mux.Handle("POST /api/session", http.HandlerFunc(s.login))
	mux.Handle("DELETE /api/session", http.HandlerFunc(s.logout))
	mux.Handle("GET /api/session", WrapAuth(s, s.whoami))

	mux.Handle("GET /api/posts", WrapAuth(s, s.listPosts))
	mux.Handle("POST /api/posts", WrapAuth(s, s.createPost))
	mux.Handle("GET /api/posts/{category}/{slug}", WrapAuth(s, s.getPost))
	mux.Handle("PUT /api/posts/{category}/{slug}", WrapAuth(s, s.updatePost))
	mux.Handle("DELETE /api/posts/{category}/{slug}", WrapAuth(s, s.deletePost))

	mux.Handle("GET /api/categories", WrapAuth(s, s.listCategories))
	mux.Handle("POST /api/categories", WrapAuth(s, s.addCategory))
	mux.Handle("DELETE /api/categories/{category}", WrapAuth(s, s.removeCategory))
	mux.Handle("POST /api/categories/{category}/subcategories", WrapAuth(s, s.addSubcategory))
	mux.Handle("DELETE /api/categories/{category}/subcategories/{subcategory}", WrapAuth(s, s.removeSubcategory))

	mux.Handle("POST /api/index/refresh", WrapAuth(s, s.refresh))
	mux.Handle("GET /api/index/check", WrapAuth(s, s.check))
	mux.Handle("POST /api/preview", WrapAuth(s, s.preview))
	mux.Handle("GET /api/activity", WrapAuth(s, s.activity))

	return s.requestContext(mux)
}

// requestContext tags the request with its client IP and a request ID, and
// logs its outcome.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := ksid.NewID()
		ctx := reqctx.WithRequestID(reqctx.WithClientIP(r.Context(), reqctx.GetClientIP(r)), id)
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))
		slog.InfoContext(ctx, "http", "method", r.Method, "path", r.URL.Path, "status", rw.status, "dur", time.Since(start).Round(time.Millisecond), "rid", id)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Close stops the rate limiters and forgets every session.
func (s *Server) Close() {
	s.limits.Close()
	s.mu.Lock()
	clear(s.clients)
	s.mu.Unlock()
}

// Sweep drops expired sessions. It returns when ctx is done.
func (s *Server) Sweep(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.clients {
		if !now.Before(c.expires) {
			delete(s.clients, id)
			n++
		}
	}
	return n
}
