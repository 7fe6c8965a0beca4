// Package presence keeps ephemeral online and typing state in Redis.
// Keys carry a TTL so state decays on its own when a client vanishes
// without a clean close; heartbeats refresh the online key.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store implements contract.IPresenceStore on Redis.
type Store struct {
	rdb       *redis.Client
	log       *slog.Logger
	onlineTTL time.Duration
	typingTTL time.Duration
}

func NewStore(rdb *redis.Client, log *slog.Logger, onlineTTL, typingTTL time.Duration) *Store {
	return &Store{rdb: rdb, log: log, onlineTTL: onlineTTL, typingTTL: typingTTL}
}

func (s *Store) SetOnline(ctx context.Context, userID, tenantID int64) error {
	return s.rdb.Set(ctx, onlineKey(userID), tenantID, s.onlineTTL).Err()
}

func (s *Store) SetOffline(ctx context.Context, userID int64) error {
	return s.rdb.Del(ctx, onlineKey(userID)).Err()
}

func (s *Store) SetTyping(ctx context.Context, userID, conversationID int64) error {
	return s.rdb.Set(ctx, typingKey(userID, conversationID), 1, s.typingTTL).Err()
}

func (s *Store) ClearTyping(ctx context.Context, userID, conversationID int64) error {
	return s.rdb.Del(ctx, typingKey(userID, conversationID)).Err()
}

// IsOnline is a read helper for the debug endpoint; the delivery core
// itself never reads presence.
func (s *Store) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := s.rdb.Exists(ctx, onlineKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func onlineKey(userID int64) string {
	return fmt.Sprintf("presence:online:%d", userID)
}

func typingKey(userID, conversationID int64) string {
	return fmt.Sprintf("presence:typing:%d:%d", conversationID, userID)
}
