package session

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

type tokenManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func newTokenManager() *tokenManager {
	return &tokenManager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (m *tokenManager) Issue(sess *Session, ttl time.Duration) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	sess.ExpiresAt = m.now().Add(ttl)
	m.mu.Lock()
	m.sessions[token] = sess
	m.mu.Unlock()
	return token, nil
}

func (m *tokenManager) Validate(token string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[token]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().After(sess.ExpiresAt) {
		m.mu.Lock()
		delete(m.sessions, token)
		m.mu.Unlock()
		return nil, false
	}
	return sess, true
}

// Purge drops expired sessions and returns how many were removed.
func (m *tokenManager) Purge() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for token, sess := range m.sessions {
		if now.After(sess.ExpiresAt) {
			delete(m.sessions, token)
			n++
		}
	}
	return n
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
