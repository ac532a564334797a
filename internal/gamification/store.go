package gamification

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

// ── Evaluation ──────────────────────────────────────────

func (s *Store) UserStats(ctx context.Context, userID int64) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT u.total_xp, u.streak, COALESCE(u.avatar_url, '') <> '',
		        (SELECT COUNT(*) FROM attempts a
		          WHERE a.user_id = u.id AND a.completed_at IS NOT NULL),
		        (SELECT COUNT(*) FROM attempts a JOIN quizzes q ON q.id = a.quiz_id
		          WHERE a.user_id = u.id AND a.completed_at IS NOT NULL AND q.type = 'DAILY'),
		        (SELECT COUNT(*) FROM attempts a
		          WHERE a.user_id = u.id AND a.completed_at IS NOT NULL AND a.perfect)
		 FROM users u WHERE u.id = $1`,
		userID,
	).Scan(&st.TotalXP, &st.Streak, &st.HasAvatar,
		&st.QuizzesCompleted, &st.DailyQuizzesCompleted, &st.PerfectQuizzes)
	if errors.Is(err, sql.ErrNoRows) {
		return Stats{}, ErrNotFound
	}
	return st, err
}

func (s *Store) UnearnedActiveBadges(ctx context.Context, userID int64) ([]models.Badge, error) {
	return s.queryBadges(ctx,
		`SELECT b.id, b.code, b.title, b.description, b.criteria, b.image_url, b.is_active, b.sort_order, b.created_at
		 FROM badges b
		 WHERE b.is_active
		   AND NOT EXISTS (SELECT 1 FROM user_badges ub WHERE ub.user_id = $1 AND ub.badge_id = b.id)
		 ORDER BY b.sort_order, b.id`, userID)
}

// GrantBadge relies on UNIQUE(user_id, badge_id): a concurrent or repeated
// grant inserts nothing and reports granted=false.
func (s *Store) GrantBadge(ctx context.Context, userID, badgeID int64) (time.Time, bool, error) {
	var earnedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO user_badges (user_id, badge_id, earned_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id, badge_id) DO NOTHING
		 RETURNING earned_at`,
		userID, badgeID,
	).Scan(&earnedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return earnedAt, true, nil
}

// ── Player state ────────────────────────────────────────

func (s *Store) UserProgress(ctx context.Context, userID int64) (*models.User, error) {
	var u models.User
	var lastActive sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, total_xp, streak, last_active_date FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.TotalXP, &u.Streak, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastActive.Valid {
		u.LastActiveDate = &lastActive.Time
	}
	return &u, nil
}

func (s *Store) EarnedBadges(ctx context.Context, userID int64) ([]models.EarnedBadge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.code, b.title, b.description, b.criteria, b.image_url, b.is_active, b.sort_order, b.created_at,
		        ub.earned_at
		 FROM user_badges ub JOIN badges b ON b.id = ub.badge_id
		 WHERE ub.user_id = $1
		 ORDER BY ub.earned_at, b.sort_order`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var earned []models.EarnedBadge
	for rows.Next() {
		var e models.EarnedBadge
		var criteria []byte
		if err := rows.Scan(&e.Badge.ID, &e.Badge.Code, &e.Badge.Title, &e.Badge.Description, &criteria,
			&e.Badge.ImageURL, &e.Badge.IsActive, &e.Badge.SortOrder, &e.Badge.CreatedAt, &e.EarnedAt); err != nil {
			return nil, err
		}
		e.Badge.Criteria = json.RawMessage(criteria)
		earned = append(earned, e)
	}
	return earned, rows.Err()
}

// ── XP reconciliation ───────────────────────────────────

func (s *Store) XPTotals(ctx context.Context) ([]XPTotal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.total_xp,
		        COALESCE(SUM(a.xp_earned) FILTER (WHERE a.completed_at IS NOT NULL), 0)
		 FROM users u LEFT JOIN attempts a ON a.user_id = u.id
		 GROUP BY u.id
		 ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []XPTotal
	for rows.Next() {
		var t XPTotal
		if err := rows.Scan(&t.UserID, &t.Cached, &t.Actual); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// ApplyXPFixes only overwrites total_xp that is unchanged since XPTotals
// read it. A completion committed in between moves total_xp, so that user is
// skipped rather than losing the new XP.
func (s *Store) ApplyXPFixes(ctx context.Context, fixes []XPTotal) ([]XPTotal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE users SET total_xp = $2, updated_at = NOW() WHERE id = $1 AND total_xp = $3`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var applied []XPTotal
	for _, f := range fixes {
		res, err := stmt.ExecContext(ctx, f.UserID, f.Actual, f.Cached)
		if err != nil {
			return nil, fmt.Errorf("update user %d: %w", f.UserID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			applied = append(applied, f)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return applied, nil
}

// ── Badge admin ─────────────────────────────────────────

func (s *Store) ListBadges(ctx context.Context) ([]models.Badge, error) {
	return s.queryBadges(ctx,
		`SELECT id, code, title, description, criteria, image_url, is_active, sort_order, created_at
		 FROM badges ORDER BY sort_order, id`)
}

func (s *Store) CreateBadge(ctx context.Context, b *models.Badge) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO badges (code, title, description, criteria, image_url, is_active, sort_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		b.Code, b.Title, b.Description, string(b.Criteria), b.ImageURL, b.IsActive, b.SortOrder,
	).Scan(&b.ID, &b.CreatedAt)
	if database.IsUniqueViolation(err, "badges_code_key") {
		return ErrBadgeCodeTaken
	}
	return err
}

func (s *Store) UpdateBadge(ctx context.Context, b *models.Badge) error {
	err := s.db.QueryRowContext(ctx,
		`UPDATE badges
		 SET code = $2, title = $3, description = $4, criteria = $5, image_url = $6, is_active = $7, sort_order = $8
		 WHERE id = $1
		 RETURNING created_at`,
		b.ID, b.Code, b.Title, b.Description, string(b.Criteria), b.ImageURL, b.IsActive, b.SortOrder,
	).Scan(&b.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case database.IsUniqueViolation(err, "badges_code_key"):
		return ErrBadgeCodeTaken
	}
	return err
}

func (s *Store) ResetUserBadges(ctx context.Context, userID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_badges WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) queryBadges(ctx context.Context, query string, args ...interface{}) ([]models.Badge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var badges []models.Badge
	for rows.Next() {
		var b models.Badge
		var criteria []byte
		if err := rows.Scan(&b.ID, &b.Code, &b.Title, &b.Description, &criteria,
			&b.ImageURL, &b.IsActive, &b.SortOrder, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Criteria = json.RawMessage(criteria)
		badges = append(badges, b)
	}
	return badges, rows.Err()
}
