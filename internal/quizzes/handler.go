package quizzes

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

// ── Admin ───────────────────────────────────────────────

func (h *Handler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	q, err := h.service.CreateQuestion(r.Context(), req)
	if err != nil {
		writeError(w, "create question", err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) ListPool(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	questions, err := h.service.ListPool(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "list pool", err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) AssignQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "Invalid question ID")
	if !ok {
		return
	}

	var req models.AssignQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "quiz_id is required"})
		return
	}

	if err := h.service.Assign(r.Context(), questionID, req.QuizID); err != nil {
		writeError(w, "assign question", err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Question assigned"})
}

func (h *Handler) UnassignQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "Invalid question ID")
	if !ok {
		return
	}

	if err := h.service.Unassign(r.Context(), questionID); err != nil {
		writeError(w, "unassign question", err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Question returned to pool"})
}

func (h *Handler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	quiz, err := h.service.CreateQuiz(r.Context(), req)
	if err != nil {
		writeError(w, "create quiz", err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "Invalid quiz ID")
	if !ok {
		return
	}

	quiz, err := h.service.QuizWithQuestions(r.Context(), quizID)
	if err != nil {
		writeError(w, "get quiz", err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) ReorderQuestions(w http.ResponseWriter, r *http.Request) {
	quizID, ok := pathID(w, r, "Invalid quiz ID")
	if !ok {
		return
	}

	var req models.ReorderQuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	questions, err := h.service.Reorder(r.Context(), quizID, req.QuestionIDs)
	if err != nil {
		writeError(w, "reorder quiz", err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

// ── Player ──────────────────────────────────────────────

func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	quizID, ok := pathID(w, r, "Invalid quiz ID")
	if !ok {
		return
	}

	attempt, created, err := h.service.StartAttempt(r.Context(), userID, quizID)
	if err != nil {
		writeError(w, "start attempt", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, attempt)
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	attemptID, ok := pathID(w, r, "Invalid attempt ID")
	if !ok {
		return
	}

	var req models.SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "question_id and answer are required"})
		return
	}

	resp, err := h.service.SubmitAnswer(r.Context(), userID, attemptID, req)
	if err != nil {
		writeError(w, "submit answer", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CompleteAttempt(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}
	attemptID, ok := pathID(w, r, "Invalid attempt ID")
	if !ok {
		return
	}

	resp, err := h.service.CompleteAttempt(r.Context(), userID, attemptID)
	if err != nil {
		writeError(w, "complete attempt", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func pathID(w http.ResponseWriter, r *http.Request, msg string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: msg})
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuestion), errors.Is(err, ErrInvalidQuiz),
		errors.Is(err, ErrOrderMismatch), errors.Is(err, ErrQuestionNotInQuiz):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Not found"})
	case errors.Is(err, ErrNotPlayable):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Quiz is not available"})
	case errors.Is(err, ErrAlreadyAssigned), errors.Is(err, ErrNotAssigned),
		errors.Is(err, ErrAlreadyCompleted), errors.Is(err, ErrAlreadyAnswered):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	default:
		log.Printf("[quizzes] %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
