// Package presence tracks which participants currently hold a live
// subscription to a room. State lives in Redis so that gateway restarts
// and multi-instance deployments agree on who is online.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"familink-service/internal/models"
)

const defaultTTL = 2 * time.Minute

// Store records room presence in Redis sets with a TTL refreshed on every
// transition, so crashed connections age out on their own.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore constructs a presence store.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, ttl: defaultTTL}
}

func roomKey(roomID int64) string {
	return fmt.Sprintf("presence:room:%d", roomID)
}

func member(model models.SenderModel, id int64) string {
	return fmt.Sprintf("%s:%d", model, id)
}

// SetOnline marks a participant online in a room.
func (s *Store) SetOnline(ctx context.Context, roomID int64, model models.SenderModel, id int64) error {
	key := roomKey(roomID)
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key, member(model, id))
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// SetOffline removes a participant from a room's presence set.
func (s *Store) SetOffline(ctx context.Context, roomID int64, model models.SenderModel, id int64) error {
	return s.rdb.SRem(ctx, roomKey(roomID), member(model, id)).Err()
}

// Snapshot lists the participants currently online in a room.
func (s *Store) Snapshot(ctx context.Context, roomID int64) ([]string, error) {
	return s.rdb.SMembers(ctx, roomKey(roomID)).Result()
}
