package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/thinkstack/apiserver/types"
)

const (
	PointsModeScore = "score"
	PointsModeFlat  = "flat"

	defaultFlatPoints = 10
	defaultRankLimit  = 100
	maxRankLimit      = 100
)

// PointsPolicy decides how many leaderboard points a graded solution earns.
type PointsPolicy struct {
	Mode       string
	FlatPoints int
}

// Points converts a graded score into leaderboard points.
func (p PointsPolicy) Points(score int) int {
	if strings.EqualFold(p.Mode, PointsModeFlat) {
		if p.FlatPoints > 0 {
			return p.FlatPoints
		}
		return defaultFlatPoints
	}
	return score
}

// CategoryKey is the key under which a category accumulates in an entry's
// breakdown.
func CategoryKey(category string) string {
	key := slug.Make(category)
	if key == "" {
		return slug.Make(defaultCategory)
	}
	return key
}

// LeaderboardAdjustment is an administrative correction of an entry.
type LeaderboardAdjustment struct {
	Score               int
	ChallengesCompleted int
}

// LeaderboardService maintains per-user scoring aggregates.
type LeaderboardService struct {
	tx     Transactor
	policy PointsPolicy
	logger *slog.Logger
	now    func() time.Time
}

func NewLeaderboardService(tx Transactor, policy PointsPolicy, logger *slog.Logger, now func() time.Time) *LeaderboardService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &LeaderboardService{tx: tx, policy: policy, logger: logger, now: now}
}

// Policy returns the active points policy.
func (s *LeaderboardService) Policy() PointsPolicy {
	return s.policy
}

// OnSolutionAccepted credits every submitter of an accepted solution. It runs
// on repos so that it commits or rolls back with the grading that caused it.
// A user already credited for the challenge through another solution is
// skipped.
func (s *LeaderboardService) OnSolutionAccepted(ctx context.Context, repos Repositories, event types.SolutionAccepted) error {
	ids := slices.Clone(event.SubmitterIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	credited := make([]int64, 0, len(ids))
	for _, userID := range ids {
		claimed, err := repos.Leaderboard.Claim(ctx, userID, event.ChallengeID, event.SolutionID)
		if err != nil {
			return fmt.Errorf("claim leaderboard credit: %w", err)
		}
		if !claimed {
			s.logger.InfoContext(ctx, "user already credited for challenge",
				"user_id", userID, "challenge_id", event.ChallengeID, "solution_id", event.SolutionID)
			continue
		}
		credited = append(credited, userID)
	}
	return s.credit(ctx, repos, credited, event.Category, s.policy.Points(event.Score), 1)
}

// credit adds points and completions to each user's entry. Entries are
// created on demand and locked in user id order.
func (s *LeaderboardService) credit(ctx context.Context, repos Repositories, userIDs []int64, category string, points, completed int) error {
	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	key := CategoryKey(category)
	now := s.now().UTC()
	for _, userID := range ids {
		if err := repos.Leaderboard.Ensure(ctx, userID); err != nil {
			return fmt.Errorf("ensure leaderboard entry: %w", err)
		}
		entry, err := repos.Leaderboard.GetForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock leaderboard entry: %w", err)
		}

		if points > 0 && entry.Score > math.MaxInt-points {
			return fmt.Errorf("%w: leaderboard total for user %d would overflow", ErrInvalidScore, userID)
		}
		entry.Score += points
		entry.ChallengesCompleted += completed
		if entry.CategoryScores == nil {
			entry.CategoryScores = map[string]int{}
		}
		entry.CategoryScores[key] += points
		entry.UpdatedAt = now

		if err := repos.Leaderboard.Save(ctx, entry); err != nil {
			return fmt.Errorf("save leaderboard entry: %w", err)
		}
	}
	return nil
}

// Rank returns the top entries with a positive score in deterministic order.
func (s *LeaderboardService) Rank(ctx context.Context, limit int) ([]types.RankedEntry, error) {
	if limit <= 0 {
		limit = defaultRankLimit
	}
	if limit > maxRankLimit {
		limit = maxRankLimit
	}
	return s.tx.Repositories().Leaderboard.Rank(ctx, limit)
}

// Entry returns one user's entry with its category breakdown.
func (s *LeaderboardService) Entry(ctx context.Context, userID int64) (types.LeaderboardEntry, error) {
	entry, err := s.tx.Repositories().Leaderboard.Get(ctx, userID)
	if err != nil {
		return types.LeaderboardEntry{}, notFound(err)
	}
	return entry, nil
}

// Adjust overwrites a user's totals. The category breakdown is kept.
func (s *LeaderboardService) Adjust(ctx context.Context, actor types.User, userID int64, adj LeaderboardAdjustment) (types.LeaderboardEntry, error) {
	if !actor.IsAdmin() {
		return types.LeaderboardEntry{}, ErrUnauthorized
	}
	if adj.Score < 0 || adj.ChallengesCompleted < 0 {
		return types.LeaderboardEntry{}, fmt.Errorf("%w: totals must not be negative", ErrValidation)
	}

	var adjusted types.LeaderboardEntry
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		if _, err := repos.Users.GetByID(ctx, userID); err != nil {
			return notFound(err)
		}
		if err := repos.Leaderboard.Ensure(ctx, userID); err != nil {
			return err
		}
		entry, err := repos.Leaderboard.GetForUpdate(ctx, userID)
		if err != nil {
			return notFound(err)
		}
		entry.Score = adj.Score
		entry.ChallengesCompleted = adj.ChallengesCompleted
		entry.UpdatedAt = s.now().UTC()
		if err := repos.Leaderboard.Save(ctx, entry); err != nil {
			return err
		}
		adjusted = entry
		return nil
	})
	if err != nil {
		return types.LeaderboardEntry{}, err
	}

	s.logger.InfoContext(ctx, "leaderboard adjusted", "user_id", userID, "actor_id", actor.ID,
		"score", adjusted.Score, "challenges_completed", adjusted.ChallengesCompleted)
	return adjusted, nil
}
