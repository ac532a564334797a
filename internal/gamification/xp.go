package gamification

import (
	"math"
	"time"

	"github.com/zazaki-quiz/backend/internal/models"
)

const (
	// PerfectBonus is added when every question of an attempt was answered correctly.
	PerfectBonus = 20
	// HighScoreBonus is added when at least 80% of the questions were correct.
	HighScoreBonus = 10
)

var difficultyMultiplier = map[models.Difficulty]float64{
	models.DifficultyEasy:   1,
	models.DifficultyMedium: 1.5,
	models.DifficultyHard:   2,
}

// AnswerXP returns the XP for a correct answer.
func AnswerXP(points int, difficulty models.Difficulty) int {
	if points <= 0 {
		return 0
	}
	mult, ok := difficultyMultiplier[difficulty]
	if !ok {
		mult = 1
	}
	return int(math.Round(float64(points) * mult))
}

// CompletionBonus returns the bonus XP for finishing an attempt.
func CompletionBonus(correct, total int) int {
	if total <= 0 || correct <= 0 {
		return 0
	}
	if correct >= total {
		return PerfectBonus
	}
	if correct*100 >= total*80 {
		return HighScoreBonus
	}
	return 0
}

// NextStreak returns the streak after activity on today. Activity on the
// same day keeps the streak, the following day extends it, anything else
// starts over at 1.
func NextStreak(current int, lastActive *time.Time, today time.Time) int {
	if lastActive == nil || current <= 0 {
		return 1
	}

	days := civilDay(today).Sub(civilDay(*lastActive)).Hours() / 24
	switch {
	case days <= 0:
		return current
	case days == 1:
		return current + 1
	default:
		return 1
	}
}

// civilDay drops the zone so that a DATE read back as UTC midnight compares
// with a local day.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
