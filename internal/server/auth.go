// Issues and validates admin API session tokens.

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/ksid"
	"github.com/maruel/mdblog/internal/admin"
	apierrors "github.com/maruel/mdblog/internal/errors"
	"github.com/maruel/mdblog/internal/server/reqctx"
)

// CookieName is the session cookie.
const CookieName = "mdblog_session"

type loginRequest struct {
	Token string `json:"token"`
}

func (r *loginRequest) Validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return apierrors.AuthInvalid("token is required")
	}
	return nil
}

// SessionResponse describes the caller's session.
type SessionResponse struct {
	User      string    `json:"user"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
	// Token is only set on login, for clients that cannot keep cookies.
	Token string `json:"token,omitempty"`
	// Warning is set when the credential is valid but the index could not be
	// fetched. POST /api/index/refresh retries.
	Warning string `json:"warning,omitempty"`
}

// login validates the repository token, creates a session and sets the
// session cookie.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var ok bool
	if w, ok = s.checkRateLimit(ctx, w, r); !ok {
		return
	}
	in := &loginRequest{}
	if !readAndDecodeBody(ctx, w, r, in, s.opts.MaxRequestBodyBytes) {
		return
	}
	if err := in.Validate(); err != nil {
		writeError(ctx, w, err)
		return
	}
	sess := admin.NewSession(s.connect, nil)
	err := sess.Login(ctx, in.Token)
	if err != nil && sess.State() != admin.StateValidated {
		writeError(ctx, w, err)
		return
	}
	c := &client{
		id:      ksid.NewID(),
		session: sess,
		expires: s.now().Add(s.opts.SessionTTL),
	}
	token, terr := s.issueToken(sess.User(), c)
	if terr != nil {
		writeError(ctx, w, apierrors.InternalWithError("failed to sign session", terr))
		return
	}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	slog.InfoContext(reqctx.WithSessionID(ctx, c.id), "Session created", "user", sess.User(), "sid", c.id)

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  c.expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	resp := &SessionResponse{User: sess.User(), State: sess.State().String(), ExpiresAt: c.expires, Token: token}
	if err != nil {
		resp.Warning = err.Error()
	}
	writeJSONResponse(ctx, w, resp, nil)
}

// logout forgets the session and expires the cookie. It succeeds even
// without a valid session.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := s.authenticate(r)
	if err == nil {
		ctx = reqctx.WithSessionID(ctx, c.id)
	}
	var ok bool
	if w, ok = s.checkRateLimit(ctx, w, r); !ok {
		return
	}
	if c != nil {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		if lerr := c.session.Logout(); lerr != nil {
			slog.WarnContext(ctx, "Logout", "err", lerr)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	writeJSONResponse(ctx, w, &okResponse{OK: true}, nil)
}

type okResponse struct {
	OK bool `json:"ok"`
}

type emptyRequest struct{}

func (*emptyRequest) Validate() error { return nil }

func (s *Server) whoami(_ context.Context, c *client, _ *emptyRequest) (*SessionResponse, error) {
	return &SessionResponse{User: c.session.User(), State: c.session.State().String(), ExpiresAt: c.expires}, nil
}

func (s *Server) issueToken(user string, c *client) (string, error) {
	claims := jwt.MapClaims{
		"sub": user,
		"sid": c.id.String(),
		"iat": s.now().Unix(),
		"exp": c.expires.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.JWTSecret)
}

// authenticate resolves the request's session token to a live client.
func (s *Server) authenticate(r *http.Request) (*client, error) {
	tokenString := ""
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, rest, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return nil, apierrors.AuthInvalid("invalid authorization header")
		}
		tokenString = strings.TrimSpace(rest)
	} else if ck, err := r.Cookie(CookieName); err == nil {
		tokenString = ck.Value
	}
	if tokenString == "" {
		return nil, apierrors.AuthInvalid("not logged in")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.opts.JWTSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, apierrors.AuthInvalid("invalid session token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierrors.AuthInvalid("invalid session token")
	}
	sidStr, _ := claims["sid"].(string)
	sid, err := ksid.Parse(sidStr)
	if err != nil {
		return nil, apierrors.AuthInvalid("invalid session token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.clients[sid]
	if c == nil {
		return nil, apierrors.AuthInvalid("session expired")
	}
	if !s.now().Before(c.expires) {
		delete(s.clients, sid)
		return nil, apierrors.AuthInvalid("session expired")
	}
	return c, nil
}
