package models

import (
	"encoding/json"
	"time"
)

type QuizType string

const (
	QuizTypeDaily  QuizType = "DAILY"
	QuizTypeCustom QuizType = "CUSTOM"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var ValidDifficulties = map[Difficulty]bool{
	DifficultyEasy:   true,
	DifficultyMedium: true,
	DifficultyHard:   true,
}

// LocalizedText holds the German and English variants of a user-facing string.
type LocalizedText struct {
	DE string `json:"de"`
	EN string `json:"en"`
}

type QuizConfig struct {
	TimeLimitSeconds int `json:"time_limit_seconds"`
}

type Quiz struct {
	ID            int64         `json:"id"`
	Type          QuizType      `json:"type"`
	Date          time.Time     `json:"date"`
	Title         LocalizedText `json:"title"`
	Published     bool          `json:"published"`
	Config        QuizConfig    `json:"config"`
	QuestionCount int           `json:"question_count"`
	Questions     []Question    `json:"questions,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Playable reports whether the quiz can be served to users. A quiz without
// linked questions is the leftover of a failed generation and is invalid.
func (q Quiz) Playable() bool {
	return q.Published && q.QuestionCount > 0
}

type Question struct {
	ID            int64           `json:"id"`
	QuizID        *int64          `json:"quiz_id"`
	Prompt        string          `json:"prompt"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer string          `json:"correct_answer,omitempty"`
	Points        int             `json:"points"`
	Difficulty    Difficulty      `json:"difficulty"`
	SortOrder     int             `json:"sort_order"`
	CreatedAt     time.Time       `json:"created_at"`
}

// InPool reports whether the question is unassigned.
func (q Question) InPool() bool {
	return q.QuizID == nil
}

type Attempt struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	QuizID      int64      `json:"quiz_id"`
	Score       int        `json:"score"`
	XPEarned    int        `json:"xp_earned"`
	Perfect     bool       `json:"perfect"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether the attempt reached its terminal state.
func (a Attempt) Completed() bool {
	return a.CompletedAt != nil
}

// ── Request Types ─────────────────────────────────────────

type CreateQuestionRequest struct {
	QuizID        *int64          `json:"quiz_id,omitempty"`
	Prompt        string          `json:"prompt"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer string          `json:"correct_answer"`
	Points        int             `json:"points"`
	Difficulty    Difficulty      `json:"difficulty"`
}

type CreateQuizRequest struct {
	Title            LocalizedText `json:"title"`
	Date             string        `json:"date"`
	Published        bool          `json:"published"`
	TimeLimitSeconds int           `json:"time_limit_seconds"`
}

type AssignQuestionRequest struct {
	QuizID int64 `json:"quiz_id"`
}

type ReorderQuestionsRequest struct {
	QuestionIDs []int64 `json:"question_ids"`
}

type SubmitAnswerRequest struct {
	QuestionID int64  `json:"question_id"`
	Answer     string `json:"answer"`
}

type GenerateQuestionsRequest struct {
	Topic      string     `json:"topic"`
	Difficulty Difficulty `json:"difficulty"`
	Count      int        `json:"count"`
}

// ── Response Types ────────────────────────────────────────

type AnswerResponse struct {
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correct_answer"`
	PointsAwarded int    `json:"points_awarded"`
	XPAwarded     int    `json:"xp_awarded"`
	Score         int    `json:"score"`
}

type CompleteAttemptResponse struct {
	Attempt        Attempt       `json:"attempt"`
	XPBreakdown    XPBreakdown   `json:"xp_breakdown"`
	TotalXP        int64         `json:"total_xp"`
	Streak         int           `json:"streak"`
	BadgesUnlocked []BadgeUnlock `json:"badges_unlocked"`
}

type GenerateQuestionsResponse struct {
	Requested    int        `json:"requested"`
	Created      []Question `json:"created"`
	Rejected     []string   `json:"rejected"`
	PromptTokens int        `json:"prompt_tokens"`
	OutputTokens int        `json:"output_tokens"`
}

type XPBreakdown struct {
	Answers         int `json:"answers"`
	CompletionBonus int `json:"completion_bonus"`
	Total           int `json:"total"`
}
