package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Username       string     `json:"username"`
	Password       string     `json:"-"`
	Role           string     `json:"role"`
	AvatarURL      *string    `json:"avatar_url,omitempty"`
	TotalXP        int64      `json:"total_xp"`
	Streak         int        `json:"streak"`
	LastActiveDate *time.Time `json:"last_active_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type AvatarResponse struct {
	AvatarURL      string        `json:"avatar_url"`
	BadgesUnlocked []BadgeUnlock `json:"badges_unlocked"`
}
