package web

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"party_notification_bot/internal/app"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SessionStore keeps dashboard sessions in memory. Sessions do not survive a
// restart, which only means logging in again.
type SessionStore struct {
	clock app.Clock
	ttl   time.Duration

	mu       sync.Mutex
	sessions map[string]time.Time // token -> expiry
}

func NewSessionStore(ttl time.Duration, clock app.Clock) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{clock: clock, ttl: ttl, sessions: make(map[string]time.Time)}
}

// Create starts a session and returns its token.
func (s *SessionStore) Create() (string, time.Time) {
	token := uuid.NewString()
	expires := s.clock.Now().Add(s.ttl)

	s.mu.Lock()
	s.sessions[token] = expires
	s.mu.Unlock()
	return token, expires
}

// Valid reports whether token names a live session.
func (s *SessionStore) Valid(token string) bool {
	if token == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.sessions[token]
	if !ok {
		return false
	}
	if !s.clock.Now().Before(expires) {
		delete(s.sessions, token)
		return false
	}
	return true
}

func (s *SessionStore) Delete(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Prune drops expired sessions and returns how many were removed.
func (s *SessionStore) Prune() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, expires := range s.sessions {
		if !now.Before(expires) {
			delete(s.sessions, token)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Credentials is the single dashboard login. The password is only kept as a
// bcrypt hash.
type Credentials struct {
	username string
	hash     []byte
}

func NewCredentials(username, password string) (*Credentials, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash dashboard password: %w", err)
	}
	return &Credentials{username: username, hash: hash}, nil
}

// Verify checks a login attempt.
func (c *Credentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(c.hash, []byte(password)) == nil
	return userOK && passOK
}
