package session

import (
	"context"
	"time"
)

// PendingQuery is the product query that was blocked by verification and is
// waiting for the user to either refine it or ask to search anyway.
type PendingQuery struct {
	Query         string    `json:"query"`
	ReleaseStatus string    `json:"release_status"`
	AskedAt       time.Time `json:"asked_at"`
}

// Store holds per-conversation pending queries. Get returns ok=false when no
// pending query exists or it has expired.
type Store interface {
	SetPending(ctx context.Context, conversationID string, p PendingQuery, ttl time.Duration) error
	GetPending(ctx context.Context, conversationID string) (PendingQuery, bool, error)
	ClearPending(ctx context.Context, conversationID string) error
}
