package quizzes

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/zazaki-quiz/backend/internal/gamification"
	"github.com/zazaki-quiz/backend/internal/models"
)

type answerKey struct{ attempt, question int64 }

type fakeUser struct {
	totalXP    int64
	streak     int
	lastActive *time.Time
}

// fakeRepo keeps quizzes, questions and attempts in maps and mirrors the
// conditional updates of the Postgres store.
type fakeRepo struct {
	mu        sync.Mutex
	quizzes   map[int64]*models.Quiz
	questions map[int64]*models.Question
	attempts  map[int64]*models.Attempt
	answers   map[answerKey]bool
	users     map[int64]*fakeUser
	nextID    int64

	completeErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		quizzes:   map[int64]*models.Quiz{},
		questions: map[int64]*models.Question{},
		attempts:  map[int64]*models.Attempt{},
		answers:   map[answerKey]bool{},
		users:     map[int64]*fakeUser{},
		nextID:    100,
	}
}

func (r *fakeRepo) id() int64 {
	r.nextID++
	return r.nextID
}

// addQuiz stores a published quiz with n medium questions whose correct
// answer is "a".
func (r *fakeRepo) addQuiz(n int) (int64, []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	quizID := r.id()
	r.quizzes[quizID] = &models.Quiz{ID: quizID, Type: models.QuizTypeCustom, Published: true}
	var ids []int64
	for i := 0; i < n; i++ {
		qid := r.id()
		r.questions[qid] = &models.Question{
			ID:            qid,
			QuizID:        &quizID,
			Prompt:        "prompt",
			Options:       json.RawMessage(`["a","b"]`),
			CorrectAnswer: "a",
			Points:        10,
			Difficulty:    models.DifficultyMedium,
			SortOrder:     i,
		}
		ids = append(ids, qid)
	}
	return quizID, ids
}

func (r *fakeRepo) addPoolQuestion() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	qid := r.id()
	r.questions[qid] = &models.Question{ID: qid, Prompt: "pool", CorrectAnswer: "a", Points: 10, Difficulty: models.DifficultyEasy}
	return qid
}

func (r *fakeRepo) questionCount(quizID int64) int {
	n := 0
	for _, q := range r.questions {
		if q.QuizID != nil && *q.QuizID == quizID {
			n++
		}
	}
	return n
}

func (r *fakeRepo) CreateQuestion(_ context.Context, q *models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q.QuizID != nil {
		if _, ok := r.quizzes[*q.QuizID]; !ok {
			return ErrNotFound
		}
		q.SortOrder = r.questionCount(*q.QuizID)
	}
	q.ID = r.id()
	cp := *q
	r.questions[q.ID] = &cp
	return nil
}

func (r *fakeRepo) Question(_ context.Context, questionID int64) (*models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[questionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (r *fakeRepo) PoolQuestions(_ context.Context, limit, offset int) ([]models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pool []models.Question
	for _, q := range r.questions {
		if q.InPool() {
			pool = append(pool, *q)
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	if offset >= len(pool) {
		return nil, nil
	}
	pool = pool[offset:]
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}

func (r *fakeRepo) AssignQuestion(_ context.Context, questionID, quizID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[questionID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := r.quizzes[quizID]; !ok {
		return ErrNotFound
	}
	if !q.InPool() {
		return ErrAlreadyAssigned
	}
	q.SortOrder = r.questionCount(quizID)
	q.QuizID = &quizID
	return nil
}

func (r *fakeRepo) UnassignQuestion(_ context.Context, questionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[questionID]
	if !ok {
		return ErrNotFound
	}
	if q.InPool() {
		return ErrNotAssigned
	}
	q.QuizID = nil
	q.SortOrder = 0
	return nil
}

func (r *fakeRepo) ReorderQuestions(_ context.Context, quizID int64, questionIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range questionIDs {
		q, ok := r.questions[id]
		if !ok || q.QuizID == nil || *q.QuizID != quizID {
			return ErrOrderMismatch
		}
		q.SortOrder = i
	}
	return nil
}

func (r *fakeRepo) CreateQuiz(_ context.Context, q *models.Quiz) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q.ID = r.id()
	cp := *q
	r.quizzes[q.ID] = &cp
	return nil
}

func (r *fakeRepo) Quiz(_ context.Context, quizID int64) (*models.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quizzes[quizID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	cp.QuestionCount = r.questionCount(quizID)
	return &cp, nil
}

func (r *fakeRepo) QuizQuestions(_ context.Context, quizID int64) ([]models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Question
	for _, q := range r.questions {
		if q.QuizID != nil && *q.QuizID == quizID {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeRepo) StartAttempt(_ context.Context, userID, quizID int64) (*models.Attempt, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			cp := *a
			return &cp, false, nil
		}
	}
	a := &models.Attempt{ID: r.id(), UserID: userID, QuizID: quizID, StartedAt: time.Now()}
	r.attempts[a.ID] = a
	cp := *a
	return &cp, true, nil
}

func (r *fakeRepo) Attempt(_ context.Context, attemptID int64) (*models.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[attemptID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) RecordAnswer(_ context.Context, attemptID, questionID int64, _ string, correct bool, points, xp int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := answerKey{attemptID, questionID}
	if _, dup := r.answers[key]; dup {
		return 0, ErrAlreadyAnswered
	}
	a := r.attempts[attemptID]
	if a.Completed() {
		return 0, ErrAlreadyCompleted
	}
	r.answers[key] = correct
	a.Score += points
	a.XPEarned += xp
	return a.Score, nil
}

func (r *fakeRepo) CorrectAnswers(_ context.Context, attemptID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, correct := range r.answers {
		if k.attempt == attemptID && correct {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) UserStreak(_ context.Context, userID int64) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return 0, nil, ErrNotFound
	}
	return u.streak, u.lastActive, nil
}

func (r *fakeRepo) CompleteAttempt(_ context.Context, c Completion) (*models.Attempt, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completeErr != nil {
		return nil, 0, r.completeErr
	}
	a := r.attempts[c.AttemptID]
	if a.Completed() {
		return nil, 0, ErrAlreadyCompleted
	}
	now := time.Now()
	a.CompletedAt = &now
	a.XPEarned += c.BonusXP
	a.Perfect = c.Perfect

	u := r.users[c.UserID]
	u.totalXP += int64(a.XPEarned)
	u.streak = c.Streak
	day := c.ActiveDate
	u.lastActive = &day

	cp := *a
	return &cp, u.totalXP, nil
}

type fakeBadges struct {
	calls   int
	granted []models.BadgeUnlock
	err     error
}

func (b *fakeBadges) EvaluateUser(_ context.Context, userID int64) (*gamification.EvaluationResult, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return &gamification.EvaluationResult{UserID: userID, Granted: b.granted}, nil
}
