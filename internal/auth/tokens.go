package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type tokenEntry struct {
	userID    string
	expiresAt time.Time
}

// TokenStore issues short-lived opaque login tokens. A token resolves to
// its user exactly once per Validate call until it expires or is revoked.
type TokenStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]tokenEntry
}

// NewTokenStore creates a token store with the given time-to-live.
func NewTokenStore(ttl time.Duration) *TokenStore {
	return &TokenStore{
		ttl:    ttl,
		tokens: make(map[string]tokenEntry),
	}
}

// Issue creates a token for the user.
func (s *TokenStore) Issue(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	token := uuid.New().String()
	s.tokens[token] = tokenEntry{
		userID:    userID,
		expiresAt: time.Now().Add(s.ttl),
	}
	return token
}

// Validate resolves a token to its user. Expired or unknown tokens fail.
func (s *TokenStore) Validate(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tokens[token]
	if !exists {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.tokens, token)
		return "", false
	}
	return entry.userID, true
}

// Revoke invalidates a token immediately.
func (s *TokenStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// RevokeUser invalidates every token issued to the user.
func (s *TokenStore) RevokeUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, entry := range s.tokens {
		if entry.userID == userID {
			delete(s.tokens, token)
		}
	}
}

// pruneLocked drops expired tokens. Called opportunistically on Issue.
func (s *TokenStore) pruneLocked() {
	now := time.Now()
	for token, entry := range s.tokens {
		if now.After(entry.expiresAt) {
			delete(s.tokens, token)
		}
	}
}
