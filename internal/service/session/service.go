// Package session issues the opaque tokens that tie a browser to its cart and
// its transaction orchestrator.
package session

import (
	"context"
	"errors"
	"time"

	"chowfast/internal/cart"
	"chowfast/internal/orchestrator"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid session token")

const DefaultTTL = 24 * time.Hour

// Session owns one cart ledger and one orchestrator. Both guard themselves,
// so a Session may be used from concurrent requests.
type Session struct {
	ID        string
	Cart      *cart.Ledger
	Tx        *orchestrator.Orchestrator
	ExpiresAt time.Time
}

type Service struct {
	tokens          *tokenManager
	ttl             time.Duration
	newOrchestrator func() *orchestrator.Orchestrator
}

// New returns a session service. newOrchestrator builds the per-session
// orchestrator; it is called once per issued session.
func New(ttl time.Duration, newOrchestrator func() *orchestrator.Orchestrator) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		tokens:          newTokenManager(),
		ttl:             ttl,
		newOrchestrator: newOrchestrator,
	}
}

// Issue creates a session with an empty cart.
func (s *Service) Issue(ctx context.Context) (token string, sess *Session, err error) {
	sess = &Session{
		ID:   uuid.NewString(),
		Cart: cart.NewLedger(),
		Tx:   s.newOrchestrator(),
	}
	token, err = s.tokens.Issue(sess, s.ttl)
	if err != nil {
		return "", nil, err
	}
	return token, sess, nil
}

func (s *Service) Lookup(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	sess, ok := s.tokens.Validate(token)
	if !ok {
		return nil, ErrInvalidToken
	}
	return sess, nil
}

// Purge drops expired sessions.
func (s *Service) Purge() int {
	return s.tokens.Purge()
}

func (s *Service) TTLSeconds() int {
	return int(s.ttl.Seconds())
}
