package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/thinkstack/apiserver/internal/services"
	"github.com/thinkstack/apiserver/types"
)

// AdminHandler serves moderation endpoints. Services re-check the admin
// role, so RequireAdmin only short-circuits.
type AdminHandler struct {
	identity    *services.IdentityService
	challenges  *services.ChallengeService
	leaderboard *services.LeaderboardService
	logger      *slog.Logger
}

func NewAdminHandler(
	identity *services.IdentityService,
	challenges *services.ChallengeService,
	leaderboard *services.LeaderboardService,
	logger *slog.Logger,
) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{identity: identity, challenges: challenges, leaderboard: leaderboard, logger: logger}
}

func AdminRouter(r chi.Router, h *AdminHandler, requireAuth func(http.Handler) http.Handler) {
	r.Use(requireAuth, RequireAdmin)
	r.Patch("/users/{userID}", h.UpdateAccount)
	r.Put("/leaderboard/users/{userID}", h.AdjustEntry)
	r.Post("/challenges/expire", h.ExpireOverdue)
}

type AccountRequest struct {
	Role      *string `json:"role"`
	Verified  *bool   `json:"verified"`
	Suspended *bool   `json:"suspended"`
}

type AdjustRequest struct {
	Score               int `json:"score"`
	ChallengesCompleted int `json:"challenges_completed"`
}

type ExpireResponse struct {
	Completed []int64 `json:"completed"`
}

func (h *AdminHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())
	id, err := parseID(r, "userID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req AccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	update := services.AccountUpdate{Verified: req.Verified, Suspended: req.Suspended}
	if req.Role != nil {
		role := types.Role(strings.ToUpper(strings.TrimSpace(*req.Role)))
		update.Role = &role
	}

	user, err := h.identity.UpdateAccount(r.Context(), actor, id, update)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) AdjustEntry(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())
	id, err := parseID(r, "userID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req AdjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entry, err := h.leaderboard.Adjust(r.Context(), actor, id, services.LeaderboardAdjustment{
		Score:               req.Score,
		ChallengesCompleted: req.ChallengesCompleted,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *AdminHandler) ExpireOverdue(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())

	completed, err := h.challenges.ExpireOverdue(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if completed == nil {
		completed = []int64{}
	}
	writeJSON(w, http.StatusOK, ExpireResponse{Completed: completed})
}
