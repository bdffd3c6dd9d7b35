package redis_session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopscout/shopscout/internal/session"
)

type Store struct {
	client *redis.Client
}

func NewStore(addr, password string, db int) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: rdb}
}

func key(conversationID string) string {
	return fmt.Sprintf("session:%s:pending", conversationID)
}

func (s *Store) SetPending(ctx context.Context, conversationID string, p session.PendingQuery, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(conversationID), data, ttl).Err()
}

func (s *Store) GetPending(ctx context.Context, conversationID string) (session.PendingQuery, bool, error) {
	val, err := s.client.Get(ctx, key(conversationID)).Result()
	if err == redis.Nil {
		return session.PendingQuery{}, false, nil
	}
	if err != nil {
		return session.PendingQuery{}, false, err
	}
	var p session.PendingQuery
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return session.PendingQuery{}, false, err
	}
	return p, true, nil
}

func (s *Store) ClearPending(ctx context.Context, conversationID string) error {
	return s.client.Del(ctx, key(conversationID)).Err()
}
