package gamification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zazaki-quiz/backend/internal/models"
	"github.com/zazaki-quiz/backend/internal/testhelpers"
)

func exerciseQueue(t *testing.T, q UnlockQueue) {
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	empty, err := q.Drain(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	require.NoError(t, q.Push(ctx, 1, []models.BadgeUnlock{{BadgeID: 10, Code: "first_quiz", EarnedAt: at}}))
	require.NoError(t, q.Push(ctx, 1, []models.BadgeUnlock{{BadgeID: 11, Code: "streak_3", EarnedAt: at}}))
	require.NoError(t, q.Push(ctx, 2, []models.BadgeUnlock{{BadgeID: 10, Code: "first_quiz", EarnedAt: at}}))
	require.NoError(t, q.Push(ctx, 1, nil))

	got, err := q.Drain(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first_quiz", got[0].Code)
	assert.Equal(t, "streak_3", got[1].Code)
	assert.True(t, at.Equal(got[0].EarnedAt))

	got, err = q.Drain(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = q.Drain(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryUnlockQueue(t *testing.T) {
	exerciseQueue(t, NewMemoryUnlockQueue())
}

func TestRedisUnlockQueue(t *testing.T) {
	client := testhelpers.StartRedis(t)
	q := NewRedisUnlockQueue(client)
	exerciseQueue(t, q)

	require.NoError(t, q.Push(context.Background(), 3, []models.BadgeUnlock{{BadgeID: 1}}))
	ttl, err := client.TTL(context.Background(), unlockKey(3)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, unlockTTL)
}
