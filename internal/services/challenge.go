package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/thinkstack/apiserver/types"
)

const (
	defaultCategory       = "General"
	defaultChallengeLimit = 50
	maxChallengeLimit     = 100
)

// transitions is the legal status graph. Anything not listed is illegal.
var transitions = map[types.ChallengeStatus][]types.ChallengeStatus{
	types.ChallengePending:  {types.ChallengeApproved, types.ChallengeRejected},
	types.ChallengeApproved: {types.ChallengeActive, types.ChallengeRejected},
	types.ChallengeActive:   {types.ChallengeCompleted},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to types.ChallengeStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ChallengeInput carries the fields of a new challenge.
type ChallengeInput struct {
	Title                  string
	Description            string
	Category               string
	ParticipationType      types.ParticipationType
	Deadline               time.Time
	Prize                  types.Money
	MinTeamSize            int
	MaxTeamSize            *int
	AdditionalRequirements string
}

// ChallengeUpdate lists the fields to change. Nil fields are left untouched.
type ChallengeUpdate struct {
	Title                  *string
	Description            *string
	Category               *string
	Deadline               *time.Time
	Prize                  *types.Money
	MinTeamSize            *int
	MaxTeamSize            *int
	AdditionalRequirements *string
}

// ChallengeService owns the challenge lifecycle.
type ChallengeService struct {
	tx        Transactor
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewChallengeService(tx Transactor, publisher EventPublisher, logger *slog.Logger, now func() time.Time) *ChallengeService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &ChallengeService{tx: tx, publisher: publisher, logger: logger, now: now}
}

// Create stores a new challenge owned by owner. Challenges start PENDING.
func (s *ChallengeService) Create(ctx context.Context, owner types.User, input ChallengeInput) (types.ChallengeRecord, error) {
	if owner.Role == types.RoleSolver {
		return types.ChallengeRecord{}, fmt.Errorf("%w: solvers cannot create challenges", ErrUnauthorized)
	}

	now := s.now().UTC()
	challenge := types.Challenge{
		Title:                  strings.TrimSpace(input.Title),
		Description:            strings.TrimSpace(input.Description),
		Category:               strings.TrimSpace(input.Category),
		ParticipationType:      types.ParticipationType(strings.ToUpper(string(input.ParticipationType))),
		Prize:                  input.Prize,
		MinTeamSize:            input.MinTeamSize,
		MaxTeamSize:            input.MaxTeamSize,
		AdditionalRequirements: strings.TrimSpace(input.AdditionalRequirements),
		Deadline:               input.Deadline.UTC(),
		Status:                 types.ChallengePending,
		CreatedByID:            owner.ID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if challenge.Category == "" {
		challenge.Category = defaultCategory
	}
	if challenge.ParticipationType == "" {
		challenge.ParticipationType = types.ParticipationIndividual
	}
	if challenge.MinTeamSize == 0 {
		challenge.MinTeamSize = 1
	}
	if err := validateChallenge(challenge, now); err != nil {
		return types.ChallengeRecord{}, err
	}

	var record types.ChallengeRecord
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		created, err := repos.Challenges.Create(ctx, challenge)
		if err != nil {
			return err
		}
		record, err = repos.Challenges.Get(ctx, created.ID)
		return err
	})
	if err != nil {
		return types.ChallengeRecord{}, err
	}

	s.logger.InfoContext(ctx, "challenge created", "challenge_id", record.ID, "owner_id", owner.ID)
	return record, nil
}

func validateChallenge(c types.Challenge, now time.Time) error {
	if c.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if c.Description == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if !c.ParticipationType.Valid() {
		return fmt.Errorf("%w: unknown participation type %q", ErrValidation, c.ParticipationType)
	}
	if !c.Deadline.After(now) {
		return ErrInvalidDeadline
	}
	if c.Prize <= 0 {
		return ErrInvalidPrize
	}
	return validateTeamSize(c.MinTeamSize, c.MaxTeamSize)
}

func validateTeamSize(minSize int, maxSize *int) error {
	if minSize < 1 {
		return fmt.Errorf("%w: minimum team size must be at least 1", ErrInvalidTeamSize)
	}
	if maxSize != nil && *maxSize < minSize {
		return fmt.Errorf("%w: maximum team size is below the minimum", ErrInvalidTeamSize)
	}
	return nil
}

// SetStatus moves a challenge along the status graph. Admins may take any
// legal edge; owners may only reject their own pending challenge.
func (s *ChallengeService) SetStatus(ctx context.Context, challengeID int64, to types.ChallengeStatus, actor types.User) (types.ChallengeRecord, error) {
	var record types.ChallengeRecord
	var from types.ChallengeStatus
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		challenge, err := repos.Challenges.GetForUpdate(ctx, challengeID)
		if err != nil {
			return notFound(err)
		}

		isOwner := challenge.CreatedByID == actor.ID
		if !actor.IsAdmin() && !isOwner {
			return ErrUnauthorized
		}
		if !to.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrValidation, to)
		}
		if !CanTransition(challenge.Status, to) {
			return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, challenge.Status, to)
		}
		if !actor.IsAdmin() && !(challenge.Status == types.ChallengePending && to == types.ChallengeRejected) {
			return ErrUnauthorized
		}

		from = challenge.Status
		challenge.Status = to
		challenge.UpdatedAt = s.now().UTC()
		if _, err := repos.Challenges.Update(ctx, challenge); err != nil {
			return notFound(err)
		}
		record, err = repos.Challenges.Get(ctx, challengeID)
		return notFound(err)
	})
	if err != nil {
		return types.ChallengeRecord{}, err
	}

	s.logger.InfoContext(ctx, "challenge status changed", "challenge_id", challengeID, "from", from, "to", to, "actor_id", actor.ID)
	publish(ctx, s.publisher, s.logger, EventChallengeStatusChanged, types.ChallengeStatusChanged{
		ChallengeID: challengeID,
		From:        from,
		To:          to,
		ActorID:     actor.ID,
		ChangedAt:   record.UpdatedAt,
	})
	return record, nil
}

// Update edits a challenge. Fields equal to their stored value are not
// considered changes, and an update that changes nothing writes nothing.
func (s *ChallengeService) Update(ctx context.Context, challengeID int64, actor types.User, update ChallengeUpdate) (types.ChallengeRecord, error) {
	var record types.ChallengeRecord
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		challenge, err := repos.Challenges.GetForUpdate(ctx, challengeID)
		if err != nil {
			return notFound(err)
		}
		if !actor.IsAdmin() && challenge.CreatedByID != actor.ID {
			return ErrUnauthorized
		}

		next := challenge
		if update.Title != nil {
			next.Title = strings.TrimSpace(*update.Title)
		}
		if update.Description != nil {
			next.Description = strings.TrimSpace(*update.Description)
		}
		if update.Category != nil {
			next.Category = strings.TrimSpace(*update.Category)
			if next.Category == "" {
				next.Category = defaultCategory
			}
		}
		if update.Deadline != nil {
			next.Deadline = update.Deadline.UTC()
		}
		if update.Prize != nil {
			next.Prize = *update.Prize
		}
		if update.MinTeamSize != nil {
			next.MinTeamSize = *update.MinTeamSize
		}
		if update.MaxTeamSize != nil {
			size := *update.MaxTeamSize
			next.MaxTeamSize = &size
		}
		if update.AdditionalRequirements != nil {
			next.AdditionalRequirements = strings.TrimSpace(*update.AdditionalRequirements)
		}

		deadlineChanged := !next.Deadline.Equal(challenge.Deadline)
		contentChanged := next.Title != challenge.Title ||
			next.Description != challenge.Description ||
			next.Category != challenge.Category ||
			deadlineChanged
		otherChanged := next.Prize != challenge.Prize ||
			next.MinTeamSize != challenge.MinTeamSize ||
			!sameSize(next.MaxTeamSize, challenge.MaxTeamSize) ||
			next.AdditionalRequirements != challenge.AdditionalRequirements

		if !contentChanged && !otherChanged {
			record, err = repos.Challenges.Get(ctx, challengeID)
			return notFound(err)
		}

		if contentChanged && challenge.Status.Published() {
			count, err := repos.Solutions.CountByChallenge(ctx, challengeID)
			if err != nil {
				return err
			}
			if count > 0 {
				return ErrImmutable
			}
		}

		if next.Title == "" {
			return fmt.Errorf("%w: title is required", ErrValidation)
		}
		if next.Description == "" {
			return fmt.Errorf("%w: description is required", ErrValidation)
		}
		if deadlineChanged && !next.Deadline.After(s.now()) {
			return ErrInvalidDeadline
		}
		if next.Prize <= 0 {
			return ErrInvalidPrize
		}
		if err := validateTeamSize(next.MinTeamSize, next.MaxTeamSize); err != nil {
			return err
		}

		next.UpdatedAt = s.now().UTC()
		if _, err := repos.Challenges.Update(ctx, next); err != nil {
			return notFound(err)
		}
		record, err = repos.Challenges.Get(ctx, challengeID)
		return notFound(err)
	})
	if err != nil {
		return types.ChallengeRecord{}, err
	}
	return record, nil
}

func sameSize(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Delete removes a challenge that has no solutions.
func (s *ChallengeService) Delete(ctx context.Context, challengeID int64, actor types.User) error {
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		challenge, err := repos.Challenges.GetForUpdate(ctx, challengeID)
		if err != nil {
			return notFound(err)
		}
		if !actor.IsAdmin() && challenge.CreatedByID != actor.ID {
			return ErrUnauthorized
		}
		count, err := repos.Solutions.CountByChallenge(ctx, challengeID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrHasSubmissions
		}
		return notFound(repos.Challenges.Delete(ctx, challengeID))
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "challenge deleted", "challenge_id", challengeID, "actor_id", actor.ID)
	return nil
}

// VisibleTo restricts filter to what viewer may list. Unpublished
// challenges are listed only for admins and for owners listing their own.
// A nil viewer is an anonymous caller.
func VisibleTo(filter types.ChallengeFilter, viewer *types.User) types.ChallengeFilter {
	if viewer != nil && (viewer.IsAdmin() || (filter.OwnerID != 0 && filter.OwnerID == viewer.ID)) {
		return filter
	}
	filter.PublishedOnly = true
	return filter
}

// List returns one page of challenges, newest first, and the total number
// of matches. Pages are 1-based.
func (s *ChallengeService) List(ctx context.Context, filter types.ChallengeFilter, page, limit int) ([]types.ChallengeRecord, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultChallengeLimit
	}
	if limit > maxChallengeLimit {
		limit = maxChallengeLimit
	}
	return s.tx.Repositories().Challenges.List(ctx, filter, (page-1)*limit, limit)
}

func (s *ChallengeService) Get(ctx context.Context, challengeID int64) (types.ChallengeRecord, error) {
	record, err := s.tx.Repositories().Challenges.Get(ctx, challengeID)
	if err != nil {
		return types.ChallengeRecord{}, notFound(err)
	}
	return record, nil
}

// Categories lists the distinct categories in use.
func (s *ChallengeService) Categories(ctx context.Context) ([]string, error) {
	return s.tx.Repositories().Challenges.Categories(ctx)
}

// ExpireOverdue completes every ACTIVE challenge whose deadline has passed
// and returns the ids it completed.
func (s *ChallengeService) ExpireOverdue(ctx context.Context, actor types.User) ([]int64, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}

	now := s.now().UTC()
	var expired []int64
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		overdue, err := repos.Challenges.ListOverdue(ctx, types.ChallengeActive, now)
		if err != nil {
			return err
		}
		for _, challenge := range overdue {
			challenge.Status = types.ChallengeCompleted
			challenge.UpdatedAt = now
			if _, err := repos.Challenges.Update(ctx, challenge); err != nil {
				return err
			}
			expired = append(expired, challenge.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range expired {
		publish(ctx, s.publisher, s.logger, EventChallengeStatusChanged, types.ChallengeStatusChanged{
			ChallengeID: id,
			From:        types.ChallengeActive,
			To:          types.ChallengeCompleted,
			ActorID:     actor.ID,
			ChangedAt:   now,
		})
	}
	if len(expired) > 0 {
		s.logger.InfoContext(ctx, "expired overdue challenges", "count", len(expired))
	}
	return expired, nil
}
