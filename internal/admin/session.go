// Package admin implements the blog administration services: the session
// gating every operation, the index cache, post files, the post editor and
// the category manager.
package admin

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/maruel/mdblog/internal/contents"
	apierrors "github.com/maruel/mdblog/internal/errors"
)

// State is the lifecycle state of a Session.
type State int

// Session states. A session moves init → validated → active, and to cleared
// on logout or a rejected credential.
const (
	StateInit State = iota
	StateValidated
	StateActive
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateValidated:
		return "validated"
	case StateActive:
		return "active"
	case StateCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Connector opens a content store authenticated with credential.
type Connector func(ctx context.Context, credential string) (contents.Store, error)

// Session holds the credential, the authenticated store and the index cache.
// All admin operations go through an active session.
type Session struct {
	connect Connector
	keeper  CredentialKeeper

	mu    sync.Mutex
	state State
	user  string
	store contents.Store
	index *IndexCache
	files *PostFiles
}

// NewSession returns a session in StateInit. keeper may be nil, in which case
// the credential is not persisted.
func NewSession(connect Connector, keeper CredentialKeeper) *Session {
	return &Session{connect: connect, keeper: keeper}
}

// Login validates credential with an identity request, persists it and
// fetches the index document.
//
// When the store cannot be opened or the identity request fails, the
// credential is discarded from the keeper and the session is cleared. When
// the credential is valid but the index cannot be fetched the session stays
// validated and Refresh can be retried.
func (s *Session) Login(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	if credential == "" {
		s.state = StateCleared
		return apierrors.AuthInvalid("credential is required")
	}
	store, err := s.connect(ctx, credential)
	if err != nil {
		s.discardLocked(ctx, err)
		return err
	}
	user, err := store.Identity(ctx)
	if err != nil {
		s.discardLocked(ctx, err)
		return err
	}
	s.state, s.user, s.store = StateValidated, user, store
	s.index = NewIndexCache(store)
	s.files = NewPostFiles(store)
	if s.keeper != nil {
		if err := s.keeper.Save(credential); err != nil {
			slog.WarnContext(ctx, "Failed to persist credential", "err", err)
		}
	}
	slog.InfoContext(ctx, "Logged in", "user", user)
	return s.activateLocked(ctx)
}

// discardLocked clears the session and forgets the persisted credential
// after a failed login.
func (s *Session) discardLocked(ctx context.Context, cause error) {
	slog.WarnContext(ctx, "Credential rejected", "err", cause)
	s.state = StateCleared
	if s.keeper == nil {
		return
	}
	if err := s.keeper.Clear(); err != nil {
		slog.ErrorContext(ctx, "Failed to clear credential", "err", err)
	}
}

// Resume logs in with the persisted credential.
func (s *Session) Resume(ctx context.Context) error {
	if s.keeper == nil {
		return apierrors.AuthInvalid("not logged in")
	}
	credential, err := s.keeper.Load()
	if err != nil {
		return apierrors.AuthInvalid("stored credential is unreadable").Wrap(err)
	}
	if credential == "" {
		return apierrors.AuthInvalid("not logged in")
	}
	return s.Login(ctx, credential)
}

// Refresh fetches the index document again. It moves a validated session to
// active.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateValidated && s.state != StateActive {
		return apierrors.AuthInvalid("not logged in")
	}
	return s.activateLocked(ctx)
}

func (s *Session) activateLocked(ctx context.Context) error {
	if err := s.index.Fetch(ctx); err != nil {
		return err
	}
	s.state = StateActive
	return nil
}

// Logout forgets the credential and the cached index unconditionally.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	if s.keeper != nil {
		return s.keeper.Clear()
	}
	return nil
}

func (s *Session) clearLocked() {
	if s.state != StateInit {
		s.state = StateCleared
	}
	s.user, s.store, s.index, s.files = "", nil, nil, nil
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns the authenticated login, or "".
func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Index returns the index cache of an active session.
func (s *Session) Index() (*IndexCache, error) {
	idx, _, err := s.active()
	return idx, err
}

// active returns the services bound to the session, or AUTH_INVALID when the
// session is not active.
func (s *Session) active() (*IndexCache, *PostFiles, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, nil, apierrors.AuthInvalid("not logged in").WithDetail("state", s.state.String())
	}
	return s.index, s.files, nil
}
