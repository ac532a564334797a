package dailyquiz

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/zazaki-quiz/backend/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Generate handles POST /cron/daily-quiz-generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Generate(r.Context())
	if err != nil {
		log.Printf("[daily-quiz] generation failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reset handles POST /admin/daily-quiz/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Reset(r.Context())
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "No daily quiz exists for today"})
		return
	}
	if errors.Is(err, ErrQuizPlayed) {
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "Today's quiz has already been completed by users and cannot be reset"})
		return
	}
	if err != nil {
		log.Printf("[daily-quiz] reset failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to reset daily quiz"})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Status handles GET /admin/daily-quiz/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Status(r.Context())
	if err != nil {
		log.Printf("[daily-quiz] status failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load daily quiz status"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetDaily handles GET /api/v1/quizzes/daily.
func (h *Handler) GetDaily(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.DailyQuiz(r.Context())
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Today's quiz is not available yet"})
		return
	}
	if err != nil {
		log.Printf("[daily-quiz] load daily quiz failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load daily quiz"})
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
