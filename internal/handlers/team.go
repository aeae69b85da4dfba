package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/thinkstack/apiserver/internal/services"
)

type TeamHandler struct {
	teams  *services.TeamService
	logger *slog.Logger
}

func NewTeamHandler(teams *services.TeamService, logger *slog.Logger) *TeamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamHandler{teams: teams, logger: logger}
}

func TeamRouter(r chi.Router, h *TeamHandler, requireAuth func(http.Handler) http.Handler) {
	r.Use(requireAuth)
	r.Post("/", h.Create)
	r.Get("/{teamID}", h.Get)
	r.Post("/{teamID}/members", h.AddMember)
}

type TeamRequest struct {
	Name string `json:"name"`
}

type MemberRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthorized.Code, "unauthorized")
		return
	}

	var req TeamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	team, err := h.teams.Create(r.Context(), actor, req.Name)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "teamID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	team, err := h.teams.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthorized.Code, "unauthorized")
		return
	}
	id, err := parseID(r, "teamID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req MemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.UserID < 1 {
		writeBadRequest(w, "user_id is required")
		return
	}

	team, err := h.teams.AddMember(r.Context(), actor, id, req.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}
