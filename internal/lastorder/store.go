// Package lastorder holds the post-checkout hand-off read once by the confirmation view.
package lastorder

import (
	"context"
	"sync"
	"time"

	"chowfast/internal/domain"
)

// DefaultTTL bounds how long an unread hand-off is kept.
const DefaultTTL = time.Hour

// Store saves a LastOrder under a key and hands it out exactly once.
// Missing or already consumed keys return domain.ErrNotFound.
type Store interface {
	Save(ctx context.Context, key string, order domain.LastOrder) error
	Consume(ctx context.Context, key string) (*domain.LastOrder, error)
}

type memoryEntry struct {
	order     domain.LastOrder
	expiresAt time.Time
}

// Memory is an in-process Store used when Redis is not configured.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, entries: make(map[string]memoryEntry)}
}

func (m *Memory) Save(_ context.Context, key string, order domain.LastOrder) error {
	order.Items = append([]domain.LastOrderItem(nil), order.Items...)
	m.mu.Lock()
	m.entries[key] = memoryEntry{order: order, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Consume(_ context.Context, key string) (*domain.LastOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(m.entries, key)
	if time.Now().After(e.expiresAt) {
		return nil, domain.ErrNotFound
	}
	return &e.order, nil
}
