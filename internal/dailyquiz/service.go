package dailyquiz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zazaki-quiz/backend/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DailyQuestionCount is the number of questions in every DAILY quiz.
const DailyQuestionCount = 5

// maxAssignAttempts bounds retries when the pool changes between sampling
// and assignment.
const maxAssignAttempts = 3

const dateLayout = "2006-01-02"

var (
	ErrNotFound = errors.New("daily quiz not found")
	// ErrQuizExists is returned by the store when the DAILY quiz for a date was
	// created concurrently.
	ErrQuizExists = errors.New("daily quiz already exists for date")
	// ErrPoolChanged is returned by the store when a sampled question was
	// assigned elsewhere before the transaction committed.
	ErrPoolChanged = errors.New("question pool changed during assignment")
	// ErrQuizPlayed is returned by Reset when users have already completed
	// the quiz. Their XP and streaks depend on those attempts.
	ErrQuizPlayed = errors.New("daily quiz already has completed attempts")
)

type Outcome string

const (
	OutcomeCreated       Outcome = "CREATED"
	OutcomeAlreadyExists Outcome = "ALREADY_EXISTS"
	OutcomePoolExhausted Outcome = "POOL_EXHAUSTED"
	OutcomeStoreError    Outcome = "STORE_ERROR"
)

// Notification kinds sent to admins.
const (
	KindPoolExhausted = "daily_quiz_pool_exhausted"
	KindPoolLow       = "daily_quiz_pool_low"
)

// Repository is the persistence the daily quiz service needs.
type Repository interface {
	// DailyQuizForDate returns the DAILY quiz for day with QuestionCount set,
	// or ErrNotFound.
	DailyQuizForDate(ctx context.Context, day string) (*models.Quiz, error)
	DeleteQuiz(ctx context.Context, quizID int64) error
	PoolQuestionIDs(ctx context.Context) ([]int64, error)
	PoolSize(ctx context.Context) (int, error)
	// CreateDailyQuiz inserts quiz and moves questionIDs from the pool onto it
	// in one transaction. It sets quiz.ID and quiz.CreatedAt.
	CreateDailyQuiz(ctx context.Context, quiz *models.Quiz, questionIDs []int64) error
	// ResetDailyQuiz returns the quiz's questions to the pool and deletes it
	// together with its open attempts, in one transaction. It fails with
	// ErrQuizPlayed and changes nothing once an attempt was completed.
	ResetDailyQuiz(ctx context.Context, quizID int64) (int, error)
	QuizQuestions(ctx context.Context, quizID int64) ([]models.Question, error)
}

// Notifier delivers admin-facing notifications.
type Notifier interface {
	NotifyAdmins(ctx context.Context, kind, title, body string) error
}

type GenerateResult struct {
	Success       bool    `json:"success"`
	Outcome       Outcome `json:"outcome"`
	QuizID        int64   `json:"quizId,omitempty"`
	QuestionCount int     `json:"questionCount,omitempty"`
	QuestionIDs   []int64 `json:"questionIds,omitempty"`
	PoolRemaining int     `json:"poolRemaining"`
	Message       string  `json:"message"`
}

type ResetResult struct {
	QuizID            int64  `json:"quiz_id"`
	QuestionsReturned int    `json:"questions_returned"`
	Message           string `json:"message"`
}

type Status struct {
	Date          string `json:"date"`
	QuizID        *int64 `json:"quiz_id"`
	QuestionCount int    `json:"question_count"`
	Playable      bool   `json:"playable"`
	PoolSize      int    `json:"pool_size"`
	PoolLow       bool   `json:"pool_low"`
}

type Options struct {
	// Location defines the calendar day. Defaults to time.Local.
	Location         *time.Location
	TimeLimitSeconds int
	LowPoolThreshold int
	Now              func() time.Time
	Sampler          *Sampler
}

type Service struct {
	repo      Repository
	notifier  Notifier
	sampler   *Sampler
	loc       *time.Location
	now       func() time.Time
	timeLimit int
	lowPool   int
}

func NewService(repo Repository, notifier Notifier, opts Options) *Service {
	s := &Service{
		repo:      repo,
		notifier:  notifier,
		sampler:   opts.Sampler,
		loc:       opts.Location,
		now:       opts.Now,
		timeLimit: opts.TimeLimitSeconds,
		lowPool:   opts.LowPoolThreshold,
	}
	if s.sampler == nil {
		s.sampler = NewSampler(nil)
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Today returns midnight of the current calendar day in the service location.
func (s *Service) Today() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

// Generate ensures exactly one DAILY quiz exists for today. Soft outcomes are
// reported in the result with a nil error; a non-nil error always comes with
// OutcomeStoreError.
func (s *Service) Generate(ctx context.Context) (res *GenerateResult, err error) {
	day := s.Today().Format(dateLayout)

	ctx, span := otel.Tracer("daily-quiz").Start(ctx, "Generate",
		trace.WithAttributes(attribute.String("date", day)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if res != nil {
			span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
		}
		span.End()
	}()

	existing, err := s.repo.DailyQuizForDate(ctx, day)
	switch {
	case err == nil && existing.QuestionCount > 0:
		log.Printf("[daily-quiz] quiz %d already exists for %s", existing.ID, day)
		return s.alreadyExists(ctx, existing), nil
	case err == nil:
		// A quiz with no questions is the leftover of a failed run and is never
		// served; replace it.
		log.Printf("[daily-quiz] removing empty quiz %d for %s", existing.ID, day)
		if err := s.repo.DeleteQuiz(ctx, existing.ID); err != nil {
			return storeError(fmt.Errorf("delete empty quiz %d: %w", existing.ID, err))
		}
	case !errors.Is(err, ErrNotFound):
		return storeError(fmt.Errorf("find daily quiz: %w", err))
	}

	for attempt := 1; ; attempt++ {
		pool, err := s.repo.PoolQuestionIDs(ctx)
		if err != nil {
			return storeError(fmt.Errorf("load pool: %w", err))
		}

		picked, err := s.sampler.Sample(pool, DailyQuestionCount)
		if errors.Is(err, ErrPoolExhausted) {
			log.Printf("[daily-quiz] pool exhausted for %s: %d questions available", day, len(pool))
			s.notifyAdmins(ctx, KindPoolExhausted,
				"Daily quiz not created",
				fmt.Sprintf("The question pool has %d questions, %d are needed for the daily quiz of %s.",
					len(pool), DailyQuestionCount, day))
			return &GenerateResult{
				Success:       false,
				Outcome:       OutcomePoolExhausted,
				PoolRemaining: len(pool),
				Message:       fmt.Sprintf("Not enough questions in pool (%d available, %d needed)", len(pool), DailyQuestionCount),
			}, nil
		}
		if err != nil {
			return storeError(err)
		}

		quiz := s.newDailyQuiz(day)
		err = s.repo.CreateDailyQuiz(ctx, quiz, picked)
		switch {
		case err == nil:
			remaining := len(pool) - len(picked)
			log.Printf("[daily-quiz] created quiz %d for %s with questions %v (%d left in pool)", quiz.ID, day, picked, remaining)
			if remaining < s.lowPool {
				s.notifyAdmins(ctx, KindPoolLow,
					"Question pool running low",
					fmt.Sprintf("Only %d questions remain in the pool after creating the daily quiz for %s.", remaining, day))
			}
			return &GenerateResult{
				Success:       true,
				Outcome:       OutcomeCreated,
				QuizID:        quiz.ID,
				QuestionCount: len(picked),
				QuestionIDs:   picked,
				PoolRemaining: remaining,
				Message:       fmt.Sprintf("Daily quiz created for %s with %d questions", day, len(picked)),
			}, nil

		case errors.Is(err, ErrQuizExists):
			existing, ferr := s.repo.DailyQuizForDate(ctx, day)
			if ferr != nil {
				return storeError(fmt.Errorf("reload daily quiz after conflict: %w", ferr))
			}
			log.Printf("[daily-quiz] concurrent run created quiz %d for %s", existing.ID, day)
			return s.alreadyExists(ctx, existing), nil

		case errors.Is(err, ErrPoolChanged) && attempt < maxAssignAttempts:
			log.Printf("[daily-quiz] pool changed during assignment, retrying (%d/%d)", attempt, maxAssignAttempts)
			continue

		default:
			return storeError(fmt.Errorf("create daily quiz: %w", err))
		}
	}
}

// Reset deletes today's DAILY quiz and returns its questions to the pool.
func (s *Service) Reset(ctx context.Context) (*ResetResult, error) {
	day := s.Today().Format(dateLayout)

	quiz, err := s.repo.DailyQuizForDate(ctx, day)
	if err != nil {
		return nil, err
	}

	n, err := s.repo.ResetDailyQuiz(ctx, quiz.ID)
	if err != nil {
		return nil, fmt.Errorf("reset daily quiz %d: %w", quiz.ID, err)
	}

	log.Printf("[daily-quiz] reset quiz %d for %s, %d questions returned to pool", quiz.ID, day, n)
	return &ResetResult{
		QuizID:            quiz.ID,
		QuestionsReturned: n,
		Message:           fmt.Sprintf("Reset complete. %d questions returned to pool.", n),
	}, nil
}

// Status reports today's quiz and the pool size.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	day := s.Today().Format(dateLayout)
	st := &Status{Date: day}

	quiz, err := s.repo.DailyQuizForDate(ctx, day)
	switch {
	case err == nil:
		st.QuizID = &quiz.ID
		st.QuestionCount = quiz.QuestionCount
		st.Playable = quiz.Playable()
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	size, err := s.repo.PoolSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool size: %w", err)
	}
	st.PoolSize = size
	st.PoolLow = size < s.lowPool
	return st, nil
}

// DailyQuiz returns today's playable quiz with its questions. Correct answers
// are stripped.
func (s *Service) DailyQuiz(ctx context.Context) (*models.Quiz, error) {
	quiz, err := s.repo.DailyQuizForDate(ctx, s.Today().Format(dateLayout))
	if err != nil {
		return nil, err
	}
	if !quiz.Playable() {
		return nil, ErrNotFound
	}

	questions, err := s.repo.QuizQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	for i := range questions {
		questions[i].CorrectAnswer = ""
	}
	quiz.Questions = questions
	return quiz, nil
}

func (s *Service) newDailyQuiz(day string) *models.Quiz {
	date, _ := time.ParseInLocation(dateLayout, day, s.loc)
	return &models.Quiz{
		Type: models.QuizTypeDaily,
		Date: date,
		Title: models.LocalizedText{
			DE: "Tägliches Quiz " + day,
			EN: "Daily Quiz " + day,
		},
		Published: true,
		Config:    models.QuizConfig{TimeLimitSeconds: s.timeLimit},
	}
}

func (s *Service) alreadyExists(ctx context.Context, quiz *models.Quiz) *GenerateResult {
	res := &GenerateResult{
		Success:       true,
		Outcome:       OutcomeAlreadyExists,
		QuizID:        quiz.ID,
		QuestionCount: quiz.QuestionCount,
		Message:       "Daily quiz already exists for " + quiz.Date.Format(dateLayout),
	}
	if size, err := s.repo.PoolSize(ctx); err == nil {
		res.PoolRemaining = size
	}
	return res
}

func (s *Service) notifyAdmins(ctx context.Context, kind, title, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyAdmins(ctx, kind, title, body); err != nil {
		log.Printf("[daily-quiz] failed to notify admins (%s): %v", kind, err)
	}
}

func storeError(err error) (*GenerateResult, error) {
	return &GenerateResult{
		Success: false,
		Outcome: OutcomeStoreError,
		Message: "Daily quiz generation failed",
	}, err
}
