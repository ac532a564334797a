package models

import (
	"encoding/json"
	"time"
)

// ── Badges ────────────────────────────────────────────────

type Badge struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Criteria    json.RawMessage `json:"criteria"`
	ImageURL    string          `json:"image_url,omitempty"`
	IsActive    bool            `json:"is_active"`
	SortOrder   int             `json:"sort_order"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BadgeUnlock is the client-facing record of a newly earned badge.
type BadgeUnlock struct {
	BadgeID  int64     `json:"badge_id"`
	Code     string    `json:"code"`
	Title    string    `json:"title"`
	ImageURL string    `json:"image_url,omitempty"`
	EarnedAt time.Time `json:"earned_at"`
}

type EarnedBadge struct {
	Badge    Badge     `json:"badge"`
	EarnedAt time.Time `json:"earned_at"`
}

// ── Request Types ─────────────────────────────────────────

type BadgeRequest struct {
	Code        string          `json:"code"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Criteria    json.RawMessage `json:"criteria"`
	ImageURL    string          `json:"image_url"`
	IsActive    *bool           `json:"is_active"`
	SortOrder   int             `json:"sort_order"`
}

// ── Response Types ────────────────────────────────────────

type GamificationResponse struct {
	TotalXP        int64         `json:"total_xp"`
	Streak         int           `json:"streak"`
	LastActiveDate string        `json:"last_active_date,omitempty"`
	Badges         []EarnedBadge `json:"badges"`
}

type UnlocksResponse struct {
	Unlocks []BadgeUnlock `json:"unlocks"`
}

type XPFixResponse struct {
	UsersChecked       int    `json:"users_checked"`
	DiscrepanciesFixed int    `json:"discrepancies_fixed"`
	Message            string `json:"message"`
}

type BadgeResetResponse struct {
	UserID  int64  `json:"user_id"`
	Removed int    `json:"removed"`
	Message string `json:"message"`
}

// ── Notifications ─────────────────────────────────────────

type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}
