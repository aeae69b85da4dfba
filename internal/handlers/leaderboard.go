package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/thinkstack/apiserver/internal/services"
	"github.com/thinkstack/apiserver/types"
)

type LeaderboardHandler struct {
	leaderboard *services.LeaderboardService
	logger      *slog.Logger
}

func NewLeaderboardHandler(leaderboard *services.LeaderboardService, logger *slog.Logger) *LeaderboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderboardHandler{leaderboard: leaderboard, logger: logger}
}

// LeaderboardRouter registers the public leaderboard routes.
func LeaderboardRouter(r chi.Router, h *LeaderboardHandler) {
	r.Get("/", h.Rank)
	r.Get("/users/{userID}", h.Entry)
}

func (h *LeaderboardHandler) Rank(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := h.leaderboard.Rank(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []types.RankedEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *LeaderboardHandler) Entry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entry, err := h.leaderboard.Entry(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
