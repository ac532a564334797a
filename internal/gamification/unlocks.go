package gamification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zazaki-quiz/backend/internal/models"
)

// UnlockQueue holds newly granted badges until the client fetches them.
type UnlockQueue interface {
	Push(ctx context.Context, userID int64, unlocks []models.BadgeUnlock) error
	// Drain returns and removes all queued unlocks for the user.
	Drain(ctx context.Context, userID int64) ([]models.BadgeUnlock, error)
}

// unlockTTL is how long unread unlocks are kept.
const unlockTTL = 7 * 24 * time.Hour

func unlockKey(userID int64) string {
	return fmt.Sprintf("badge_unlocks:%d", userID)
}

type RedisUnlockQueue struct {
	client *redis.Client
}

func NewRedisUnlockQueue(client *redis.Client) *RedisUnlockQueue {
	return &RedisUnlockQueue{client: client}
}

func (q *RedisUnlockQueue) Push(ctx context.Context, userID int64, unlocks []models.BadgeUnlock) error {
	if len(unlocks) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(unlocks))
	for _, u := range unlocks {
		b, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode unlock: %w", err)
		}
		values = append(values, b)
	}

	key := unlockKey(userID)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, unlockTTL)
		return nil
	})
	return err
}

func (q *RedisUnlockQueue) Drain(ctx context.Context, userID int64) ([]models.BadgeUnlock, error) {
	key := unlockKey(userID)

	var lrange *redis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, err
	}

	unlocks := []models.BadgeUnlock{}
	for _, raw := range lrange.Val() {
		var u models.BadgeUnlock
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, fmt.Errorf("decode unlock: %w", err)
		}
		unlocks = append(unlocks, u)
	}
	return unlocks, nil
}

// MemoryUnlockQueue is used when no Redis is configured. Entries do not
// survive a restart.
type MemoryUnlockQueue struct {
	mu      sync.Mutex
	pending map[int64][]models.BadgeUnlock
}

func NewMemoryUnlockQueue() *MemoryUnlockQueue {
	return &MemoryUnlockQueue{pending: map[int64][]models.BadgeUnlock{}}
}

func (q *MemoryUnlockQueue) Push(_ context.Context, userID int64, unlocks []models.BadgeUnlock) error {
	if len(unlocks) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[userID] = append(q.pending[userID], unlocks...)
	return nil
}

func (q *MemoryUnlockQueue) Drain(_ context.Context, userID int64) ([]models.BadgeUnlock, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	unlocks := q.pending[userID]
	delete(q.pending, userID)
	if unlocks == nil {
		unlocks = []models.BadgeUnlock{}
	}
	return unlocks, nil
}
