package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const pendingMarker = "pending"

// StoredResponse is a completed response replayed for a repeated Idempotency-Key
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyStore remembers responses of non-idempotent requests by client key
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(c *Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: c.rdb, ttl: ttl}
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// Claim reserves key for the caller. It reports false when the key is already
// claimed, in which case Lookup tells whether a response is available yet.
func (s *IdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, idempotencyKey(key), pendingMarker, s.ttl).Result()
}

// Lookup returns the stored response for key. pending is true while the
// first request holding the key has not finished.
func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (resp *StoredResponse, pending bool, err error) {
	raw, err := s.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if raw == pendingMarker {
		return nil, true, nil
	}

	var stored StoredResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, false, fmt.Errorf("corrupt idempotent response: %w", err)
	}
	return &stored, false, nil
}

// Complete stores the final response under key
func (s *IdempotencyStore) Complete(ctx context.Context, key string, status int, body []byte) error {
	payload, err := json.Marshal(StoredResponse{Status: status, Body: body})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, idempotencyKey(key), payload, s.ttl).Err()
}

// Release forgets key so the client may retry it
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, idempotencyKey(key)).Err()
}
