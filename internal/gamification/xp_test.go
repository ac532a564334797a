package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zazaki-quiz/backend/internal/models"
)

func TestAnswerXP(t *testing.T) {
	tests := []struct {
		points     int
		difficulty models.Difficulty
		want       int
	}{
		{10, models.DifficultyEasy, 10},
		{10, models.DifficultyMedium, 15},
		{10, models.DifficultyHard, 20},
		{5, models.DifficultyMedium, 8},
		{10, "unknown", 10},
		{0, models.DifficultyHard, 0},
		{-3, models.DifficultyHard, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AnswerXP(tt.points, tt.difficulty), "%d %s", tt.points, tt.difficulty)
	}
}

func TestCompletionBonus(t *testing.T) {
	assert.Equal(t, PerfectBonus, CompletionBonus(5, 5))
	assert.Equal(t, HighScoreBonus, CompletionBonus(4, 5))
	assert.Equal(t, HighScoreBonus, CompletionBonus(8, 10))
	assert.Equal(t, 0, CompletionBonus(7, 10))
	assert.Equal(t, 0, CompletionBonus(0, 5))
	assert.Equal(t, 0, CompletionBonus(0, 0))
}

func TestNextStreak(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	today := time.Date(2026, 3, 14, 0, 30, 0, 0, loc)
	day := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}

	assert.Equal(t, 1, NextStreak(0, nil, today))
	assert.Equal(t, 4, NextStreak(4, day(2026, 3, 14), today), "same day")
	assert.Equal(t, 5, NextStreak(4, day(2026, 3, 13), today), "consecutive day")
	assert.Equal(t, 1, NextStreak(4, day(2026, 3, 12), today), "gap")
	assert.Equal(t, 8, NextStreak(7, day(2026, 2, 28), time.Date(2026, 3, 1, 12, 0, 0, 0, loc)), "month boundary")
	assert.Equal(t, 1, NextStreak(0, day(2026, 3, 13), today))
}
