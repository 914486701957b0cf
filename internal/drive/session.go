// Package drive exports finished carousels to the caller's Google Drive.
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"carousel/internal/domain"
)

// ErrNoSession is returned when a user has no usable Drive token.
var ErrNoSession = errors.New("drive: no active session")

// Scope grants access to files created by this application only.
const Scope = "https://www.googleapis.com/auth/drive.file"

// NewOAuthConfig builds the client configuration used to refresh tokens.
func NewOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoints.Google,
		Scopes:       []string{Scope},
	}
}

// Session owns one user's Drive token. Acquire installs a token, Refresh
// exchanges the refresh token for a new access token and Invalidate drops it.
type Session struct {
	cfg *oauth2.Config

	mu    sync.Mutex
	token *oauth2.Token
}

// NewSession returns an empty session bound to cfg.
func NewSession(cfg *oauth2.Config) *Session {
	return &Session{cfg: cfg}
}

// Acquire installs tok as the current token.
func (s *Session) Acquire(tok *oauth2.Token) error {
	if tok == nil || strings.TrimSpace(tok.AccessToken) == "" {
		return fmt.Errorf("%w: access token is required", ErrNoSession)
	}
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	return nil
}

// Token returns the current token, refreshing it when it has expired.
func (s *Session) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()
	if tok == nil {
		return nil, ErrNoSession
	}
	if tok.Valid() {
		return tok, nil
	}
	return s.Refresh(ctx)
}

// Refresh forces a token refresh. Without a refresh token the session is
// invalidated.
func (s *Session) Refresh(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil, ErrNoSession
	}
	if s.token.RefreshToken == "" {
		s.token = nil
		return nil, fmt.Errorf("%w: token expired and cannot be refreshed", ErrNoSession)
	}
	expired := &oauth2.Token{RefreshToken: s.token.RefreshToken}
	fresh, err := s.cfg.TokenSource(ctx, expired).Token()
	if err != nil {
		return nil, fmt.Errorf("drive: refresh token: %w", err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = s.token.RefreshToken
	}
	s.token = fresh
	return fresh, nil
}

// Invalidate forgets the token.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}

// Active reports whether a token is installed.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil
}

// Client returns an HTTP client authorised with the current token.
func (s *Session) Client(ctx context.Context) (*http.Client, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)), nil
}

// TokenStore persists tokens across restarts.
type TokenStore interface {
	DriveToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveDriveToken(ctx context.Context, userID string, tok *oauth2.Token) error
	DeleteDriveToken(ctx context.Context, userID string) error
}

// Sessions keeps one Session per user, loading persisted tokens lazily.
type Sessions struct {
	cfg    *oauth2.Config
	store  TokenStore
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions builds the registry. store may be nil for memory-only sessions.
func NewSessions(cfg *oauth2.Config, store TokenStore, logger zerolog.Logger) *Sessions {
	return &Sessions{cfg: cfg, store: store, logger: logger, sessions: make(map[string]*Session)}
}

// Acquire installs tok for userID and persists it.
func (r *Sessions) Acquire(ctx context.Context, userID string, tok *oauth2.Token) error {
	sess := r.session(userID)
	if err := sess.Acquire(tok); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.SaveDriveToken(ctx, userID, tok); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the active session of userID, restoring a persisted token when
// the user has none in memory.
func (r *Sessions) Get(ctx context.Context, userID string) (*Session, error) {
	sess := r.session(userID)
	if sess.Active() {
		return sess, nil
	}
	if r.store == nil {
		return nil, ErrNoSession
	}
	tok, err := r.store.DriveToken(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	if err := sess.Acquire(tok); err != nil {
		return nil, err
	}
	return sess, nil
}

// Persist writes the session's current token back to the store, typically
// after a refresh.
func (r *Sessions) Persist(ctx context.Context, userID string, sess *Session) {
	if r.store == nil {
		return
	}
	sess.mu.Lock()
	tok := sess.token
	sess.mu.Unlock()
	if tok == nil {
		return
	}
	if err := r.store.SaveDriveToken(ctx, userID, tok); err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("drive: failed to persist token")
	}
}

// Invalidate drops the token of userID from memory and storage.
func (r *Sessions) Invalidate(ctx context.Context, userID string) error {
	r.session(userID).Invalidate()
	if r.store != nil {
		return r.store.DeleteDriveToken(ctx, userID)
	}
	return nil
}

func (r *Sessions) session(userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[userID]
	if !ok {
		sess = NewSession(r.cfg)
		r.sessions[userID] = sess
	}
	return sess
}
