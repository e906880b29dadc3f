package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carewire/hospital-router/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	contextPrefix     = "ctx:"
	defaultContextTTL = 24 * time.Hour
)

// ContextStore persists conversation context snapshots in Redis so a
// restart doesn't wipe in-flight conversations. Entries expire with the
// TTL; an expired snapshot is just a cold start.
type ContextStore struct {
	client *Client
	ttl    time.Duration
}

// NewContextStore creates a snapshot store. ttl <= 0 uses the default.
func NewContextStore(client *Client, ttl time.Duration) *ContextStore {
	if ttl <= 0 {
		ttl = defaultContextTTL
	}
	return &ContextStore{client: client, ttl: ttl}
}

// Save writes a session's context snapshot.
func (s *ContextStore) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal context snapshot: %w", err)
	}
	return s.client.rdb.Set(ctx, contextPrefix+sessionID, data, s.ttl).Err()
}

// Load reads a session's context snapshot. A missing key returns
// (nil, nil): cold start, not an error.
func (s *ContextStore) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	data, err := s.client.rdb.Get(ctx, contextPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read context snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes a session's snapshot.
func (s *ContextStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.rdb.Del(ctx, contextPrefix+sessionID).Err()
}
