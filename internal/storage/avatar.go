package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/zazaki-quiz/backend/internal/gamification"
	"github.com/zazaki-quiz/backend/internal/middleware"
	"github.com/zazaki-quiz/backend/internal/models"
)

// MaxAvatarBytes is the largest accepted avatar file.
const MaxAvatarBytes = 2 << 20

var (
	ErrNotFound        = errors.New("user not found")
	ErrTooLarge        = fmt.Errorf("avatar exceeds %d bytes", MaxAvatarBytes)
	ErrUnsupportedType = errors.New("avatar must be a PNG, JPEG or WebP image")
)

type AvatarStore interface {
	SetAvatarURL(ctx context.Context, userID int64, url string) error
}

type BadgeEvaluator interface {
	EvaluateUser(ctx context.Context, userID int64) (*gamification.EvaluationResult, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) SetAvatarURL(ctx context.Context, userID int64, url string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET avatar_url = $2, updated_at = NOW() WHERE id = $1`, userID, url)
	if err != nil {
		return fmt.Errorf("set avatar: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type AvatarService struct {
	uploader Uploader
	users    AvatarStore
	badges   BadgeEvaluator
}

func NewAvatarService(uploader Uploader, users AvatarStore, badges BadgeEvaluator) *AvatarService {
	return &AvatarService{uploader: uploader, users: users, badges: badges}
}

// SetAvatar validates and uploads the image, records its URL on the user and
// re-evaluates badges so avatar-based badges unlock right away.
func (s *AvatarService) SetAvatar(ctx context.Context, userID int64, data []byte) (*models.AvatarResponse, error) {
	if len(data) > MaxAvatarBytes {
		return nil, ErrTooLarge
	}
	contentType := http.DetectContentType(data)
	if _, ok := extensions[contentType]; !ok {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedType, contentType)
	}

	url, err := s.uploader.Upload(ctx, data, fmt.Sprintf("avatars/%d", userID), contentType)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetAvatarURL(ctx, userID, url); err != nil {
		return nil, err
	}
	log.Printf("[storage] user %d avatar set (%s, %d bytes)", userID, contentType, len(data))

	resp := &models.AvatarResponse{AvatarURL: url, BadgesUnlocked: []models.BadgeUnlock{}}
	if res, err := s.badges.EvaluateUser(ctx, userID); err != nil {
		log.Printf("[storage] badge evaluation for user %d failed: %v", userID, err)
	} else {
		resp.BadgesUnlocked = res.Granted
	}
	return resp, nil
}

// ── HTTP ────────────────────────────────────────────────

type Handler struct {
	service *AvatarService
}

func NewHandler(service *AvatarService) *Handler {
	return &Handler{service: service}
}

// UploadAvatar accepts a multipart form with the image in the "avatar" field.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	// Room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarBytes+64<<10)
	file, _, err := r.FormFile("avatar")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: ErrTooLarge.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Multipart field \"avatar\" is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Could not read upload"})
		return
	}

	resp, err := h.service.SetAvatar(r.Context(), userID, data)
	switch {
	case errors.Is(err, ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrUnsupportedType):
		writeJSON(w, http.StatusUnsupportedMediaType, models.ErrorResponse{Error: ErrUnsupportedType.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User not found"})
	case err != nil:
		log.Printf("[storage] avatar upload for user %d: %v", userID, err)
		writeJSON(w, http.StatusBadGateway, models.ErrorResponse{Error: "Avatar upload failed"})
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
