// Package notify delivers in-app notifications to admins and lets users read
// their own notifications.
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/zazaki-quiz/backend/internal/models"
)

var ErrNotFound = errors.New("notification not found")

const listLimit = 50

type Repository interface {
	// InsertForAdmins adds one notification per admin and returns how many
	// rows were written.
	InsertForAdmins(ctx context.Context, kind, title, body string) (int, error)
	ListForUser(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NotifyAdmins stores the notification for every admin. The message is also
// logged so it is visible when no admin account exists.
func (s *Service) NotifyAdmins(ctx context.Context, kind, title, body string) error {
	log.Printf("[notify] %s: %s: %s", kind, title, body)
	n, err := s.repo.InsertForAdmins(ctx, kind, title, body)
	if err != nil {
		return fmt.Errorf("notify admins: %w", err)
	}
	if n == 0 {
		log.Printf("[notify] no admin account to receive %s", kind)
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID int64) (*models.NotificationsResponse, error) {
	items, err := s.repo.ListForUser(ctx, userID, listLimit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Notification{}
	}
	unread, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.NotificationsResponse{Notifications: items, UnreadCount: unread}, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID int64) error {
	return s.repo.MarkRead(ctx, userID, notificationID)
}

// ── Postgres ────────────────────────────────────────────

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InsertForAdmins(ctx context.Context, kind, title, body string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, kind, title, body)
		 SELECT id, $2, $3, $4 FROM users WHERE role = $1`,
		models.RoleAdmin, kind, title, body)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) ListForUser(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, title, body, read, created_at
		 FROM notifications WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID).Scan(&n)
	return n, err
}

func (s *Store) MarkRead(ctx context.Context, userID, notificationID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, notificationID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
