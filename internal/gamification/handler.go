package gamification

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/zazaki-quiz/backend/internal/middleware"
	"github.com/zazaki-quiz/backend/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ── Player ──────────────────────────────────────────────

func (h *Handler) GetGamification(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.service.GetGamification(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User not found"})
		return
	}
	if err != nil {
		log.Printf("[gamification] state for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get gamification state"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetUnlocks(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	unlocks, err := h.service.Unlocks(r.Context(), userID)
	if err != nil {
		log.Printf("[gamification] unlocks for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get unlocks"})
		return
	}

	writeJSON(w, http.StatusOK, models.UnlocksResponse{Unlocks: unlocks})
}

// ── Admin ───────────────────────────────────────────────

func (h *Handler) FixXP(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.FixXP(r.Context())
	if err != nil {
		log.Printf("[gamification] fix xp: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "XP check failed, no changes were applied"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := h.service.ListBadges(r.Context())
	if err != nil {
		log.Printf("[gamification] list badges: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list badges"})
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

func (h *Handler) CreateBadge(w http.ResponseWriter, r *http.Request) {
	var req models.BadgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	badge, err := h.service.CreateBadge(r.Context(), req)
	if err != nil {
		writeBadgeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, badge)
}

func (h *Handler) UpdateBadge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid badge ID"})
		return
	}

	var req models.BadgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	badge, err := h.service.UpdateBadge(r.Context(), id, req)
	if err != nil {
		writeBadgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badge)
}

func (h *Handler) ResetUserBadges(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid user ID"})
		return
	}

	resp, err := h.service.ResetUserBadges(r.Context(), userID)
	if err != nil {
		log.Printf("[gamification] %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to reset badges"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeBadgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidBadge):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrBadgeCodeTaken):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "A badge with this code already exists"})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Badge not found"})
	default:
		log.Printf("[gamification] save badge: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to save badge"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
