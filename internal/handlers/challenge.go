package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/thinkstack/apiserver/internal/services"
	"github.com/thinkstack/apiserver/types"
)

// ChallengeHandler serves the challenge registry.
type ChallengeHandler struct {
	challenges *services.ChallengeService
	solutions  *services.SolutionService
	logger     *slog.Logger
	now        func() time.Time
}

func NewChallengeHandler(challenges *services.ChallengeService, solutions *services.SolutionService, logger *slog.Logger, now func() time.Time) *ChallengeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &ChallengeHandler{challenges: challenges, solutions: solutions, logger: logger, now: now}
}

// ChallengeRouter registers challenge routes. Reads are public; writes go
// through requireAuth. The listing uses optionalAuth so that admins and
// owners also see unpublished challenges.
func ChallengeRouter(r chi.Router, h *ChallengeHandler, requireAuth, optionalAuth func(http.Handler) http.Handler) {
	r.With(optionalAuth).Get("/", h.List)
	r.Get("/categories", h.Categories)
	r.Get("/{challengeID}", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", h.Create)
		r.Put("/{challengeID}", h.Update)
		r.Delete("/{challengeID}", h.Delete)
		r.Patch("/{challengeID}/status", h.SetStatus)
		r.Get("/{challengeID}/solutions", h.ListSolutions)
	})
}

type ChallengeRequest struct {
	Title                  string       `json:"title"`
	Description            string       `json:"description"`
	Category               string       `json:"category"`
	ParticipationType      string       `json:"participationType"`
	CashPrize              *types.Money `json:"cashPrize"`
	MinTeamSize            int          `json:"minTeamSize"`
	MaxTeamSize            *int         `json:"maxTeamSize"`
	Deadline               time.Time    `json:"deadline"`
	AdditionalRequirements string       `json:"additionalRequirements"`
}

type ChallengeUpdateRequest struct {
	Title                  *string      `json:"title"`
	Description            *string      `json:"description"`
	Category               *string      `json:"category"`
	CashPrize              *types.Money `json:"cashPrize"`
	MinTeamSize            *int         `json:"minTeamSize"`
	MaxTeamSize            *int         `json:"maxTeamSize"`
	Deadline               *time.Time   `json:"deadline"`
	AdditionalRequirements *string      `json:"additionalRequirements"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	query := r.URL.Query()
	filter := types.ChallengeFilter{
		Status:   types.ChallengeStatus(strings.ToUpper(strings.TrimSpace(query.Get("status")))),
		Category: strings.TrimSpace(query.Get("category")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeBadRequest(w, "invalid status")
		return
	}
	if raw := strings.TrimSpace(query.Get("owner")); raw != "" {
		filter.OwnerID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || filter.OwnerID < 1 {
			writeBadRequest(w, "invalid owner")
			return
		}
	}

	var viewer *types.User
	if user, ok := userFromContext(r.Context()); ok {
		viewer = &user
	}
	filter = services.VisibleTo(filter, viewer)

	records, total, err := h.challenges.List(r.Context(), filter, page, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse[types.ChallengeView]{
		Items: h.views(records),
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *ChallengeHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.challenges.Categories(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *ChallengeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "challengeID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	record, err := h.challenges.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record.View(h.now()))
}

func (h *ChallengeHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthorized.Code, "unauthorized")
		return
	}

	var req ChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.CashPrize == nil {
		writeBadRequest(w, "cashPrize is required")
		return
	}

	record, err := h.challenges.Create(r.Context(), actor, services.ChallengeInput{
		Title:                  req.Title,
		Description:            req.Description,
		Category:               req.Category,
		ParticipationType:      types.ParticipationType(strings.ToUpper(strings.TrimSpace(req.ParticipationType))),
		Deadline:               req.Deadline,
		Prize:                  *req.CashPrize,
		MinTeamSize:            req.MinTeamSize,
		MaxTeamSize:            req.MaxTeamSize,
		AdditionalRequirements: req.AdditionalRequirements,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, record.View(h.now()))
}

func (h *ChallengeHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthorized.Code, "unauthorized")
		return
	}
	id, err := parseID(r, "challengeID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req ChallengeUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	record, err := h.challenges.Update(r.Context(), id, actor, services.ChallengeUpdate{
		Title:                  req.Title,
		Description:            req.Description,
		Category:               req.Category,
		Deadline:               req.Deadline,
		Prize:                  req.CashPrize,
		MinTeamSize:            req.MinTeamSize,
		MaxTeamSize:            req.MaxTeamSize,
		AdditionalRequirements: req.AdditionalRequirements,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record.View(h.now()))
}

func (h *ChallengeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthorized.Code, "unauthorized")
		return
	}
	id, err := parseID(r, "challengeID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := h.challenges.Delete(r.Context(), id, actor); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChallengeHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthorized.Code, "unauthorized")
		return
	}
	id, err := parseID(r, "challengeID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	status := types.ChallengeStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	record, err := h.challenges.SetStatus(r.Context(), id, status, actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record.View(h.now()))
}

func (h *ChallengeHandler) ListSolutions(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthorized.Code, "unauthorized")
		return
	}
	id, err := parseID(r, "challengeID")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	solutions, err := h.solutions.ListForChallenge(r.Context(), id, actor)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if solutions == nil {
		solutions = []types.Solution{}
	}
	writeJSON(w, http.StatusOK, solutions)
}

func (h *ChallengeHandler) views(records []types.ChallengeRecord) []types.ChallengeView {
	now := h.now()
	views := make([]types.ChallengeView, 0, len(records))
	for _, record := range records {
		views = append(views, record.View(now))
	}
	return views
}
