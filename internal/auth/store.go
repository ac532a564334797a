package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zazaki-quiz/backend/internal/database"
	"github.com/zazaki-quiz/backend/internal/models"
)

var (
	ErrEmailTaken = errors.New("email already registered")
	ErrNotFound   = errors.New("user not found")
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateUser inserts a user, regenerating the username on collision.
func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash string) (*models.User, error) {
	username := database.GenerateUsername(name)
	now := time.Now()

	var user models.User
	for attempt := 0; attempt < 5; attempt++ {
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO users (email, name, username, password, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $5)
			 RETURNING id, email, name, username, role, total_xp, streak, created_at, updated_at`,
			email, name, username, passwordHash, now,
		).Scan(&user.ID, &user.Email, &user.Name, &user.Username, &user.Role,
			&user.TotalXP, &user.Streak, &user.CreatedAt, &user.UpdatedAt)
		switch {
		case err == nil:
			return &user, nil
		case database.IsUniqueViolation(err, "users_username_key"):
			username = database.GenerateUsername(name)
		case database.IsUniqueViolation(err, "users_email_key"):
			return nil, ErrEmailTaken
		default:
			return nil, fmt.Errorf("insert user: %w", err)
		}
	}
	return nil, errors.New("could not allocate a unique username")
}

// UserByEmail returns the user including the password hash.
func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, username, password, role, avatar_url, total_xp, streak,
		        last_active_date, created_at, updated_at
		 FROM users WHERE email = $1`, email))
}

func (s *Store) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, username, password, role, avatar_url, total_xp, streak,
		        last_active_date, created_at, updated_at
		 FROM users WHERE id = $1`, id))
}

// UserRole returns the user's current role, or "" if the user is gone.
func (s *Store) UserRole(ctx context.Context, id int64) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return role, err
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var avatar sql.NullString
	var lastActive sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Username, &u.Password, &u.Role, &avatar,
		&u.TotalXP, &u.Streak, &lastActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if avatar.Valid {
		u.AvatarURL = &avatar.String
	}
	if lastActive.Valid {
		u.LastActiveDate = &lastActive.Time
	}
	return &u, nil
}
