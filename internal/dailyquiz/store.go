package dailyquiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/zazaki-quiz/backend/internal/database"
	"github.com/zazaki-quiz/backend/internal/models"
)

// dailyDateIndex is the partial unique index on quizzes(quiz_date) WHERE type = 'DAILY'.
const dailyDateIndex = "idx_quizzes_daily_date"

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DailyQuizForDate(ctx context.Context, day string) (*models.Quiz, error) {
	var q models.Quiz
	var title, config []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT q.id, q.type, q.quiz_date, q.title, q.published, q.config, q.created_at,
		        (SELECT COUNT(*) FROM questions WHERE quiz_id = q.id)
		 FROM quizzes q
		 WHERE q.type = $1 AND q.quiz_date = $2::date`,
		models.QuizTypeDaily, day,
	).Scan(&q.ID, &q.Type, &q.Date, &title, &q.Published, &config, &q.CreatedAt, &q.QuestionCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query daily quiz: %w", err)
	}

	if err := json.Unmarshal(title, &q.Title); err != nil {
		return nil, fmt.Errorf("decode title of quiz %d: %w", q.ID, err)
	}
	if err := json.Unmarshal(config, &q.Config); err != nil {
		return nil, fmt.Errorf("decode config of quiz %d: %w", q.ID, err)
	}
	return &q, nil
}

func (s *Store) DeleteQuiz(ctx context.Context, quizID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID)
	return err
}

func (s *Store) PoolQuestionIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM questions WHERE quiz_id IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) PoolSize(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE quiz_id IS NULL`).Scan(&n)
	return n, err
}

func (s *Store) CreateDailyQuiz(ctx context.Context, quiz *models.Quiz, questionIDs []int64) error {
	title, err := json.Marshal(quiz.Title)
	if err != nil {
		return fmt.Errorf("encode title: %w", err)
	}
	config, err := json.Marshal(quiz.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO quizzes (type, quiz_date, title, published, config, created_at)
		 VALUES ($1, $2::date, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		models.QuizTypeDaily, quiz.Date.Format(dateLayout), string(title), quiz.Published, string(config), time.Now(),
	).Scan(&quiz.ID, &quiz.CreatedAt)
	if database.IsUniqueViolation(err, dailyDateIndex) {
		return ErrQuizExists
	}
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	// sort_order follows the sampled order.
	res, err := tx.ExecContext(ctx,
		`UPDATE questions
		 SET quiz_id = $1, sort_order = array_position($2::bigint[], id) - 1
		 WHERE id = ANY($2::bigint[]) AND quiz_id IS NULL`,
		quiz.ID, pq.Array(questionIDs),
	)
	if err != nil {
		return fmt.Errorf("assign questions: %w", err)
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign questions: %w", err)
	}
	if moved != int64(len(questionIDs)) {
		return fmt.Errorf("%w: moved %d of %d", ErrPoolChanged, moved, len(questionIDs))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	quiz.QuestionCount = len(questionIDs)
	return nil
}

func (s *Store) ResetDailyQuiz(ctx context.Context, quizID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// The row lock holds off new attempts, whose FK check needs a key share lock.
	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM quizzes WHERE id = $1 FOR UPDATE`, quizID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock quiz: %w", err)
	}

	var completed int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE quiz_id = $1 AND completed_at IS NOT NULL`, quizID).Scan(&completed)
	if err != nil {
		return 0, fmt.Errorf("count completed attempts: %w", err)
	}
	if completed > 0 {
		return 0, fmt.Errorf("%w: %d completed", ErrQuizPlayed, completed)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM attempts WHERE quiz_id = $1 AND completed_at IS NULL`, quizID); err != nil {
		return 0, fmt.Errorf("delete open attempts: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE questions SET quiz_id = NULL, sort_order = 0 WHERE quiz_id = $1`, quizID)
	if err != nil {
		return 0, fmt.Errorf("return questions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	// An attempt completed after the count still blocks the delete.
	if _, err := tx.ExecContext(ctx, `DELETE FROM quizzes WHERE id = $1`, quizID); err != nil {
		if database.IsForeignKeyViolation(err) {
			return 0, ErrQuizPlayed
		}
		return 0, fmt.Errorf("delete quiz: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(n), nil
}

func (s *Store) QuizQuestions(ctx context.Context, quizID int64) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quiz_id, prompt, options, correct_answer, points, difficulty, sort_order, created_at
		 FROM questions WHERE quiz_id = $1
		 ORDER BY sort_order, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		var qid sql.NullInt64
		var options []byte
		if err := rows.Scan(&q.ID, &qid, &q.Prompt, &options, &q.CorrectAnswer,
			&q.Points, &q.Difficulty, &q.SortOrder, &q.CreatedAt); err != nil {
			return nil, err
		}
		if qid.Valid {
			q.QuizID = &qid.Int64
		}
		q.Options = json.RawMessage(options)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
