package usecase

import (
	"crypto/rand"
	"crypto/subtle"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/infra/logger"
)

// DefaultSessionTTL is used when the store is built with a non-positive TTL.
const DefaultSessionTTL = 12 * time.Hour

// Session is one authenticated gateway client.
type Session struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore gates access behind the shared team password and tracks the
// tokens handed out on login. Expired sessions are swept lazily.
type SessionStore struct {
	mu       sync.Mutex
	password []byte
	ttl      time.Duration
	sessions map[string]Session
	now      func() time.Time
	logger   *slog.Logger
}

// NewSessionStore creates a store that accepts password.
func NewSessionStore(password string, ttl time.Duration, log *slog.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		password: []byte(password),
		ttl:      ttl,
		sessions: make(map[string]Session),
		now:      time.Now,
		logger:   logger.OrDiscard(log),
	}
}

// Login checks password and opens a new session.
func (s *SessionStore) Login(password string) (Session, error) {
	if len(s.password) == 0 || subtle.ConstantTimeCompare([]byte(password), s.password) != 1 {
		s.logger.Warn("login rejected")
		return Session{}, domain.NewDomainError("SessionStore.Login", domain.ErrAuthInvalid, "wrong password")
	}

	now := s.now()
	token, err := newSessionToken(now)
	if err != nil {
		return Session{}, domain.WrapOp("SessionStore.Login", err)
	}
	sess := Session{Token: token, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}

	s.mu.Lock()
	s.sweepLocked(now)
	s.sessions[token] = sess
	s.mu.Unlock()

	s.logger.Info("session opened", "expires_at", sess.ExpiresAt)
	return sess, nil
}

// Validate returns the session for token if it exists and has not expired.
func (s *SessionStore) Validate(token string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, domain.ErrSessionNotFound
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, token)
		return Session{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

// Logout ends the session for token. Unknown tokens are not an error.
func (s *SessionStore) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Active returns the number of unexpired sessions.
func (s *SessionStore) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())
	return len(s.sessions)
}

func (s *SessionStore) sweepLocked(now time.Time) {
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
		}
	}
}

// newSessionToken returns a ULID drawn from crypto/rand.
func newSessionToken(t time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(t), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
