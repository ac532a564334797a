package quizzes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zazaki-quiz/backend/internal/database"
	"github.com/zazaki-quiz/backend/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const questionColumns = `id, quiz_id, prompt, options, correct_answer, points, difficulty, sort_order, created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestion(row scanner) (*models.Question, error) {
	var q models.Question
	var quizID sql.NullInt64
	var options []byte
	if err := row.Scan(&q.ID, &quizID, &q.Prompt, &options, &q.CorrectAnswer,
		&q.Points, &q.Difficulty, &q.SortOrder, &q.CreatedAt); err != nil {
		return nil, err
	}
	if quizID.Valid {
		q.QuizID = &quizID.Int64
	}
	q.Options = json.RawMessage(options)
	return &q, nil
}

func (s *Store) queryQuestions(ctx context.Context, query string, args ...interface{}) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// ── Questions ───────────────────────────────────────────

func (s *Store) CreateQuestion(ctx context.Context, q *models.Question) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO questions (quiz_id, prompt, options, correct_answer, points, difficulty, sort_order)
		 VALUES ($1, $2, $3, $4, $5, $6,
		         CASE WHEN $1::bigint IS NULL THEN 0
		              ELSE (SELECT COALESCE(MAX(sort_order) + 1, 0) FROM questions WHERE quiz_id = $1) END)
		 RETURNING id, sort_order, created_at`,
		q.QuizID, q.Prompt, string(q.Options), q.CorrectAnswer, q.Points, q.Difficulty,
	).Scan(&q.ID, &q.SortOrder, &q.CreatedAt)
	if database.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *Store) Question(ctx context.Context, questionID int64) (*models.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, questionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return q, err
}

func (s *Store) PoolQuestions(ctx context.Context, limit, offset int) ([]models.Question, error) {
	return s.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE quiz_id IS NULL
		 ORDER BY id
		 LIMIT $1 OFFSET $2`, limit, offset)
}

func (s *Store) AssignQuestion(ctx context.Context, questionID, quizID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions
		 SET quiz_id = $2,
		     sort_order = (SELECT COALESCE(MAX(sort_order) + 1, 0) FROM questions WHERE quiz_id = $2)
		 WHERE id = $1 AND quiz_id IS NULL`,
		questionID, quizID)
	if database.IsForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("assign question: %w", err)
	}
	return s.explainNoop(ctx, res, questionID, ErrAlreadyAssigned)
}

func (s *Store) UnassignQuestion(ctx context.Context, questionID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET quiz_id = NULL, sort_order = 0
		 WHERE id = $1 AND quiz_id IS NOT NULL`, questionID)
	if err != nil {
		return fmt.Errorf("unassign question: %w", err)
	}
	return s.explainNoop(ctx, res, questionID, ErrNotAssigned)
}

// explainNoop maps a conditional update that touched no row to ErrNotFound
// or to conflict, depending on whether the question exists.
func (s *Store) explainNoop(ctx context.Context, res sql.Result, questionID int64, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM questions WHERE id = $1)`, questionID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return conflict
}

func (s *Store) ReorderQuestions(ctx context.Context, quizID int64, questionIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE questions SET sort_order = $3 WHERE id = $1 AND quiz_id = $2`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range questionIDs {
		res, err := stmt.ExecContext(ctx, id, quizID, i)
		if err != nil {
			return fmt.Errorf("set order of question %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return ErrOrderMismatch
		}
	}
	return tx.Commit()
}

// ── Quizzes ─────────────────────────────────────────────

func (s *Store) CreateQuiz(ctx context.Context, q *models.Quiz) error {
	title, err := json.Marshal(q.Title)
	if err != nil {
		return fmt.Errorf("encode title: %w", err)
	}
	config, err := json.Marshal(q.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO quizzes (type, quiz_date, title, published, config)
		 VALUES ($1, $2::date, $3, $4, $5)
		 RETURNING id, created_at`,
		q.Type, q.Date.Format("2006-01-02"), string(title), q.Published, string(config),
	).Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *Store) Quiz(ctx context.Context, quizID int64) (*models.Quiz, error) {
	var q models.Quiz
	var title, config []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT q.id, q.type, q.quiz_date, q.title, q.published, q.config, q.created_at,
		        (SELECT COUNT(*) FROM questions WHERE quiz_id = q.id)
		 FROM quizzes q WHERE q.id = $1`, quizID,
	).Scan(&q.ID, &q.Type, &q.Date, &title, &q.Published, &config, &q.CreatedAt, &q.QuestionCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(title, &q.Title); err != nil {
		return nil, fmt.Errorf("decode title: %w", err)
	}
	if err := json.Unmarshal(config, &q.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &q, nil
}

func (s *Store) QuizQuestions(ctx context.Context, quizID int64) ([]models.Question, error) {
	return s.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE quiz_id = $1 ORDER BY sort_order, id`, quizID)
}

// ── Attempts ────────────────────────────────────────────

const attemptColumns = `id, user_id, quiz_id, score, xp_earned, perfect, started_at, completed_at`

func scanAttempt(row scanner) (*models.Attempt, error) {
	var a models.Attempt
	var completed sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &a.QuizID, &a.Score, &a.XPEarned, &a.Perfect, &a.StartedAt, &completed); err != nil {
		return nil, err
	}
	if completed.Valid {
		a.CompletedAt = &completed.Time
	}
	return &a, nil
}

func (s *Store) StartAttempt(ctx context.Context, userID, quizID int64) (*models.Attempt, bool, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`INSERT INTO attempts (user_id, quiz_id, started_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id, quiz_id) DO NOTHING
		 RETURNING `+attemptColumns, userID, quizID))
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert attempt: %w", err)
	}

	a, err = scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE user_id = $1 AND quiz_id = $2`, userID, quizID))
	if err != nil {
		return nil, false, fmt.Errorf("load attempt: %w", err)
	}
	return a, false, nil
}

func (s *Store) Attempt(ctx context.Context, attemptID int64) (*models.Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, attemptID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *Store) RecordAnswer(ctx context.Context, attemptID, questionID int64, answer string, correct bool, points, xp int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, answer, correct)
		 VALUES ($1, $2, $3, $4)`,
		attemptID, questionID, answer, correct)
	if database.IsUniqueViolation(err, "") {
		return 0, ErrAlreadyAnswered
	}
	if err != nil {
		return 0, fmt.Errorf("insert answer: %w", err)
	}

	var score int
	err = tx.QueryRowContext(ctx,
		`UPDATE attempts SET score = score + $2, xp_earned = xp_earned + $3
		 WHERE id = $1 AND completed_at IS NULL
		 RETURNING score`,
		attemptID, points, xp,
	).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAlreadyCompleted
	}
	if err != nil {
		return 0, fmt.Errorf("update attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return score, nil
}

func (s *Store) CorrectAnswers(ctx context.Context, attemptID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempt_answers WHERE attempt_id = $1 AND correct`, attemptID).Scan(&n)
	return n, err
}

func (s *Store) UserStreak(ctx context.Context, userID int64) (int, *time.Time, error) {
	var streak int
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT streak, last_active_date FROM users WHERE id = $1`, userID).Scan(&streak, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	if !last.Valid {
		return streak, nil, nil
	}
	return streak, &last.Time, nil
}

func (s *Store) CompleteAttempt(ctx context.Context, c Completion) (*models.Attempt, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	a, err := scanAttempt(tx.QueryRowContext(ctx,
		`UPDATE attempts
		 SET completed_at = NOW(), xp_earned = xp_earned + $2, perfect = $3
		 WHERE id = $1 AND completed_at IS NULL
		 RETURNING `+attemptColumns,
		c.AttemptID, c.BonusXP, c.Perfect))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrAlreadyCompleted
	}
	if err != nil {
		return nil, 0, fmt.Errorf("complete attempt: %w", err)
	}

	var totalXP int64
	err = tx.QueryRowContext(ctx,
		`UPDATE users
		 SET total_xp = total_xp + $2, streak = $3, last_active_date = $4::date, updated_at = NOW()
		 WHERE id = $1
		 RETURNING total_xp`,
		c.UserID, a.XPEarned, c.Streak, c.ActiveDate.Format("2006-01-02"),
	).Scan(&totalXP)
	if err != nil {
		return nil, 0, fmt.Errorf("credit xp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}
	return a, totalXP, nil
}
