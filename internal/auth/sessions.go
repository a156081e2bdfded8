package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/btouchard/sprintdesk/internal/store"
)

// ErrInvalidSession is returned for unknown, expired or orphaned tokens.
var ErrInvalidSession = errors.New("invalid or expired session")

// DefaultSessionTTL applies when no TTL is configured.
const DefaultSessionTTL = 30 * 24 * time.Hour

// SessionStore is the subset of the store sessions need.
type SessionStore interface {
	CreateSession(s *store.Session) error
	GetSession(tokenHash string) (*store.Session, error)
	DeleteExpiredSessions(now time.Time) error
	GetUser(id string) (*store.User, error)
}

// Sessions issues opaque bearer tokens and resolves them to principals.
// Only a keyed SHA-256 of each token is stored.
type Sessions struct {
	store SessionStore
	key   []byte
	ttl   time.Duration
	now   func() time.Time
}

// NewSessions creates a session manager. secret keys the token hashes.
func NewSessions(st SessionStore, secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{store: st, key: []byte(secret), ttl: ttl, now: time.Now}
}

// HashToken returns the stored form of a bearer token.
func (s *Sessions) HashToken(token string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Create mints a session for userID and returns the raw token. The raw token
// is never persisted.
func (s *Sessions) Create(userID string) (string, time.Time, error) {
	if _, err := s.store.GetUser(userID); err != nil {
		return "", time.Time{}, fmt.Errorf("looking up user: %w", err)
	}

	token, err := randomHex(32)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generating token: %w", err)
	}
	expires := s.now().Add(s.ttl).UTC()
	if err := s.store.CreateSession(&store.Session{
		TokenHash: s.HashToken(token),
		UserID:    userID,
		ExpiresAt: expires,
	}); err != nil {
		return "", time.Time{}, err
	}
	slog.Info("session created", "user_id", userID, "expires_at", expires)
	return token, expires, nil
}

// Resolve maps a raw bearer token to its principal.
func (s *Sessions) Resolve(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrInvalidSession
	}
	sess, err := s.store.GetSession(s.HashToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return Principal{}, ErrInvalidSession
	}
	if err != nil {
		return Principal{}, err
	}
	if !sess.ExpiresAt.After(s.now()) {
		return Principal{}, ErrInvalidSession
	}

	u, err := s.store.GetUser(sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Principal{}, ErrInvalidSession
	}
	if err != nil {
		return Principal{}, err
	}
	role, err := ParseRole(u.Role)
	if err != nil {
		slog.Warn("session user has an unknown role", "user_id", u.ID, "role", u.Role)
		return Principal{}, ErrInvalidSession
	}
	return Principal{UserID: u.ID, Role: role}, nil
}

// StartCleanupLoop purges expired sessions periodically until done closes.
func (s *Sessions) StartCleanupLoop(done <-chan struct{}) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.store.DeleteExpiredSessions(s.now()); err != nil {
				slog.Error("session cleanup failed", "error", err)
			}
		case <-done:
			return
		}
	}
}
