package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/thinkstack/apiserver/internal/services"
)

// SolutionHandler serves the solution ledger.
type SolutionHandler struct {
	solutions *services.SolutionService
	logger    *slog.Logger
}

func NewSolutionHandler(solutions *services.SolutionService, logger *slog.Logger) *SolutionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SolutionHandler{solutions: solutions, logger: logger}
}

// SolutionRouter registers solution routes. Every route requires a caller.
func SolutionRouter(r chi.Router, h *SolutionHandler, requireAuth func(http.Handler) http.Handler) {
	r.Use(requireAuth)
	r.Post("/", h.Submit)
	r.Get("/{solutionID}", h.Get)
	r.Post("/{solutionID}/grade", h.Grade)
	r.Post("/{solutionID}/reject", h.Reject)
}

type SubmitRequest struct {
	ChallengeID int64  `json:"challenge_id"`
	TeamID      int64  `json:"team_id"`
	Content     string `json:"content"`
	Attachments string `json:"attachments"`
}

type GradeRequest struct {
	Score *int `json:"score"`
}

func (h *SolutionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthorized.Code, "unauthorized")
		return
	}

	var req SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.ChallengeID < 1 {
		writeBadRequest(w, "challenge_id is required")
		return
	}

	solution, err := h.solutions.Submit(r.Context(), actor, services.SubmitInput{
		ChallengeID:   req.ChallengeID,
		TeamID:        req.TeamID,
		Content:       req.Content,
		AttachmentURL: req.Attachments,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, solution)
}

func (h *SolutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthorized.Code, "unauthorized")
		return
	}
	id, err := parseID(r, "solutionID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	solution, err := h.solutions.Get(r.Context(), id, actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, solution)
}

func (h *SolutionHandler) Grade(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthorized.Code, "unauthorized")
		return
	}
	id, err := parseID(r, "solutionID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req GradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Score == nil {
		writeBadRequest(w, "score is required")
		return
	}

	solution, err := h.solutions.Grade(r.Context(), id, *req.Score, actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, solution)
}

func (h *SolutionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthorized.Code, "unauthorized")
		return
	}
	id, err := parseID(r, "solutionID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	solution, err := h.solutions.Reject(r.Context(), id, actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, solution)
}
