package inmemory_session

import (
	"context"
	"sync"
	"time"

	"github.com/shopscout/shopscout/internal/session"
)

// Store keeps pending queries in process memory. Suitable for tests and
// single-instance deployments without redis.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	pending   session.PendingQuery
	expiresAt time.Time
}

func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

func (s *Store) SetPending(_ context.Context, conversationID string, p session.PendingQuery, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[conversationID] = entry{pending: p, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *Store) GetPending(_ context.Context, conversationID string) (session.PendingQuery, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[conversationID]
	if !ok || time.Now().After(e.expiresAt) {
		delete(s.entries, conversationID)
		return session.PendingQuery{}, false, nil
	}
	return e.pending, true, nil
}

func (s *Store) ClearPending(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, conversationID)
	return nil
}
