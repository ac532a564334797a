package quizzes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zazaki-quiz/backend/internal/gamification"
	"github.com/zazaki-quiz/backend/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidQuiz       = errors.New("invalid quiz")
	ErrInvalidQuestion   = errors.New("invalid question")
	ErrAlreadyAssigned   = errors.New("question already belongs to a quiz")
	ErrNotAssigned       = errors.New("question is already in the pool")
	ErrOrderMismatch     = errors.New("order must list every question of the quiz exactly once")
	ErrNotPlayable       = errors.New("quiz is not playable")
	ErrAlreadyCompleted  = errors.New("attempt already completed")
	ErrAlreadyAnswered   = errors.New("question already answered in this attempt")
	ErrQuestionNotInQuiz = errors.New("question does not belong to the attempt's quiz")
)

const (
	defaultPoints = 10
	maxPageSize   = 200
)

// Completion is the state change applied when an attempt finishes.
type Completion struct {
	AttemptID  int64
	UserID     int64
	BonusXP    int
	Perfect    bool
	Streak     int
	ActiveDate time.Time
}

type Repository interface {
	CreateQuestion(ctx context.Context, q *models.Question) error
	Question(ctx context.Context, questionID int64) (*models.Question, error)
	PoolQuestions(ctx context.Context, limit, offset int) ([]models.Question, error)
	AssignQuestion(ctx context.Context, questionID, quizID int64) error
	UnassignQuestion(ctx context.Context, questionID int64) error
	// ReorderQuestions sets sort_order to each id's index in one transaction.
	ReorderQuestions(ctx context.Context, quizID int64, questionIDs []int64) error

	CreateQuiz(ctx context.Context, q *models.Quiz) error
	Quiz(ctx context.Context, quizID int64) (*models.Quiz, error)
	QuizQuestions(ctx context.Context, quizID int64) ([]models.Question, error)

	// StartAttempt returns the user's attempt for the quiz, creating it when
	// none exists. created reports whether a row was inserted.
	StartAttempt(ctx context.Context, userID, quizID int64) (attempt *models.Attempt, created bool, err error)
	Attempt(ctx context.Context, attemptID int64) (*models.Attempt, error)
	// RecordAnswer stores the answer and adds points and XP to the attempt,
	// returning the new score.
	RecordAnswer(ctx context.Context, attemptID, questionID int64, answer string, correct bool, points, xp int) (int, error)
	CorrectAnswers(ctx context.Context, attemptID int64) (int, error)
	UserStreak(ctx context.Context, userID int64) (streak int, lastActive *time.Time, err error)
	// CompleteAttempt marks the attempt completed and credits its XP to the
	// user in one transaction. It returns ErrAlreadyCompleted when another
	// request completed it first.
	CompleteAttempt(ctx context.Context, c Completion) (*models.Attempt, int64, error)
}

// BadgeEvaluator runs badge evaluation after a completed attempt.
type BadgeEvaluator interface {
	EvaluateUser(ctx context.Context, userID int64) (*gamification.EvaluationResult, error)
}

type Service struct {
	repo   Repository
	badges BadgeEvaluator
	loc    *time.Location
	now    func() time.Time
}

func NewService(repo Repository, badges BadgeEvaluator, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, badges: badges, loc: loc, now: time.Now}
}

// ── Question admin ──────────────────────────────────────

// CreateQuestion validates req and stores the question in the pool, or on
// req.QuizID when set.
func (s *Service) CreateQuestion(ctx context.Context, req models.CreateQuestionRequest) (*models.Question, error) {
	q, err := questionFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Service) ListPool(ctx context.Context, limit, offset int) ([]models.Question, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	questions, err := s.repo.PoolQuestions(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []models.Question{}
	}
	return questions, nil
}

func (s *Service) Assign(ctx context.Context, questionID, quizID int64) error {
	if err := s.repo.AssignQuestion(ctx, questionID, quizID); err != nil {
		return err
	}
	log.Printf("[quizzes] question %d assigned to quiz %d", questionID, quizID)
	return nil
}

func (s *Service) Unassign(ctx context.Context, questionID int64) error {
	if err := s.repo.UnassignQuestion(ctx, questionID); err != nil {
		return err
	}
	log.Printf("[quizzes] question %d returned to pool", questionID)
	return nil
}

// Reorder applies a new question order to a quiz. questionIDs must be a
// permutation of the quiz's current questions.
func (s *Service) Reorder(ctx context.Context, quizID int64, questionIDs []int64) ([]models.Question, error) {
	current, err := s.repo.QuizQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(current) != len(questionIDs) {
		return nil, ErrOrderMismatch
	}

	members := make(map[int64]bool, len(current))
	for _, q := range current {
		members[q.ID] = true
	}
	for _, id := range questionIDs {
		if !members[id] {
			return nil, ErrOrderMismatch
		}
		delete(members, id)
	}

	if err := s.repo.ReorderQuestions(ctx, quizID, questionIDs); err != nil {
		return nil, fmt.Errorf("reorder quiz %d: %w", quizID, err)
	}
	return s.repo.QuizQuestions(ctx, quizID)
}

// CreateQuiz stores a CUSTOM quiz. DAILY quizzes are only created by the
// daily quiz generator.
func (s *Service) CreateQuiz(ctx context.Context, req models.CreateQuizRequest) (*models.Quiz, error) {
	if strings.TrimSpace(req.Title.DE) == "" || strings.TrimSpace(req.Title.EN) == "" {
		return nil, fmt.Errorf("%w: title.de and title.en are required", ErrInvalidQuiz)
	}
	if req.TimeLimitSeconds < 0 {
		return nil, fmt.Errorf("%w: time_limit_seconds must not be negative", ErrInvalidQuiz)
	}

	date := s.now().In(s.loc)
	if req.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", req.Date, s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidQuiz)
		}
		date = d
	}

	quiz := &models.Quiz{
		Type:      models.QuizTypeCustom,
		Date:      time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc),
		Title:     req.Title,
		Published: req.Published,
		Config:    models.QuizConfig{TimeLimitSeconds: req.TimeLimitSeconds},
	}
	if err := s.repo.CreateQuiz(ctx, quiz); err != nil {
		return nil, err
	}
	log.Printf("[quizzes] custom quiz %d created for %s", quiz.ID, quiz.Date.Format("2006-01-02"))
	return quiz, nil
}

// QuizWithQuestions returns a quiz with its questions in order, answers included.
func (s *Service) QuizWithQuestions(ctx context.Context, quizID int64) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	quiz.Questions, err = s.repo.QuizQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

// ── Attempts ────────────────────────────────────────────

// StartAttempt starts or resumes the user's attempt on a playable quiz.
func (s *Service) StartAttempt(ctx context.Context, userID, quizID int64) (*models.Attempt, bool, error) {
	quiz, err := s.repo.Quiz(ctx, quizID)
	if err != nil {
		return nil, false, err
	}
	if !quiz.Playable() {
		return nil, false, ErrNotPlayable
	}

	attempt, created, err := s.repo.StartAttempt(ctx, userID, quizID)
	if err != nil {
		return nil, false, err
	}
	if attempt.Completed() {
		return attempt, false, ErrAlreadyCompleted
	}
	return attempt, created, nil
}

func (s *Service) SubmitAnswer(ctx context.Context, userID, attemptID int64, req models.SubmitAnswerRequest) (*models.AnswerResponse, error) {
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Completed() {
		return nil, ErrAlreadyCompleted
	}

	q, err := s.repo.Question(ctx, req.QuestionID)
	if err != nil {
		return nil, err
	}
	if q.InPool() || *q.QuizID != attempt.QuizID {
		return nil, ErrQuestionNotInQuiz
	}

	correct := answersMatch(req.Answer, q.CorrectAnswer)
	points, xp := 0, 0
	if correct {
		points = q.Points
		xp = gamification.AnswerXP(q.Points, q.Difficulty)
	}

	score, err := s.repo.RecordAnswer(ctx, attempt.ID, q.ID, strings.TrimSpace(req.Answer), correct, points, xp)
	if err != nil {
		return nil, err
	}

	return &models.AnswerResponse{
		Correct:       correct,
		CorrectAnswer: q.CorrectAnswer,
		PointsAwarded: points,
		XPAwarded:     xp,
		Score:         score,
	}, nil
}

// CompleteAttempt finishes an attempt: the completion bonus and the
// accumulated XP are credited, the streak advances and badges are evaluated.
func (s *Service) CompleteAttempt(ctx context.Context, userID, attemptID int64) (*models.CompleteAttemptResponse, error) {
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Completed() {
		return nil, ErrAlreadyCompleted
	}

	questions, err := s.repo.QuizQuestions(ctx, attempt.QuizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	correct, err := s.repo.CorrectAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}

	total := len(questions)
	bonus := gamification.CompletionBonus(correct, total)

	streak, lastActive, err := s.repo.UserStreak(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load streak: %w", err)
	}
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	nextStreak := gamification.NextStreak(streak, lastActive, today)

	done, totalXP, err := s.repo.CompleteAttempt(ctx, Completion{
		AttemptID:  attempt.ID,
		UserID:     userID,
		BonusXP:    bonus,
		Perfect:    total > 0 && correct == total,
		Streak:     nextStreak,
		ActiveDate: today,
	})
	if err != nil {
		return nil, err
	}

	resp := &models.CompleteAttemptResponse{
		Attempt: *done,
		XPBreakdown: models.XPBreakdown{
			Answers:         done.XPEarned - bonus,
			CompletionBonus: bonus,
			Total:           done.XPEarned,
		},
		TotalXP:        totalXP,
		Streak:         nextStreak,
		BadgesUnlocked: []models.BadgeUnlock{},
	}

	if s.badges != nil {
		res, err := s.badges.EvaluateUser(ctx, userID)
		if err != nil {
			log.Printf("[quizzes] badge evaluation for user %d failed: %v", userID, err)
		} else {
			resp.BadgesUnlocked = res.Granted
		}
	}

	log.Printf("[quizzes] user %d completed attempt %d: %d/%d correct, %d xp", userID, attempt.ID, correct, total, done.XPEarned)
	return resp, nil
}

func (s *Service) ownedAttempt(ctx context.Context, userID, attemptID int64) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, ErrNotFound
	}
	return attempt, nil
}

func answersMatch(given, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(expected))
}

func questionFromRequest(req models.CreateQuestionRequest) (*models.Question, error) {
	prompt := strings.TrimSpace(req.Prompt)
	answer := strings.TrimSpace(req.CorrectAnswer)
	if prompt == "" || answer == "" {
		return nil, fmt.Errorf("%w: prompt and correct_answer are required", ErrInvalidQuestion)
	}

	var options []string
	if err := json.Unmarshal(req.Options, &options); err != nil {
		return nil, fmt.Errorf("%w: options must be a list of strings", ErrInvalidQuestion)
	}
	if len(options) < 2 {
		return nil, fmt.Errorf("%w: at least two options are required", ErrInvalidQuestion)
	}
	found := false
	for _, o := range options {
		if answersMatch(o, answer) {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: correct_answer must be one of the options", ErrInvalidQuestion)
	}

	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}
	if !models.ValidDifficulties[difficulty] {
		return nil, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidQuestion, difficulty)
	}

	points := req.Points
	if points == 0 {
		points = defaultPoints
	}
	if points < 0 {
		return nil, fmt.Errorf("%w: points must be positive", ErrInvalidQuestion)
	}

	return &models.Question{
		QuizID:        req.QuizID,
		Prompt:        prompt,
		Options:       req.Options,
		CorrectAnswer: answer,
		Points:        points,
		Difficulty:    difficulty,
	}, nil
}
