package services

import (
	"context"
	"time"

	"github.com/thinkstack/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// ChallengeRepository defines persistence operations for challenges.
type ChallengeRepository interface {
	Get(ctx context.Context, id int64) (types.ChallengeRecord, error)
	// GetForUpdate loads the challenge and locks its row until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (types.Challenge, error)
	List(ctx context.Context, filter types.ChallengeFilter, offset, limit int) ([]types.ChallengeRecord, int, error)
	ListOverdue(ctx context.Context, status types.ChallengeStatus, now time.Time) ([]types.Challenge, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, challenge types.Challenge) (types.Challenge, error)
	Update(ctx context.Context, challenge types.Challenge) (types.Challenge, error)
	Delete(ctx context.Context, id int64) error
}

// SolutionRepository defines persistence operations for solutions.
type SolutionRepository interface {
	Get(ctx context.Context, id int64) (types.Solution, error)
	GetForUpdate(ctx context.Context, id int64) (types.Solution, error)
	FindBySubmitter(ctx context.Context, challengeID int64, submitter types.Submitter) (types.Solution, error)
	ListByChallenge(ctx context.Context, challengeID int64) ([]types.Solution, error)
	CountByChallenge(ctx context.Context, challengeID int64) (int, error)
	Create(ctx context.Context, solution types.Solution) (types.Solution, error)
	Update(ctx context.Context, solution types.Solution) (types.Solution, error)
}

// TeamRepository defines persistence operations for teams.
type TeamRepository interface {
	Get(ctx context.Context, id int64) (types.Team, error)
	Create(ctx context.Context, team types.Team) (types.Team, error)
	AddMember(ctx context.Context, member types.Membership) (types.Membership, error)
	Members(ctx context.Context, teamID int64) ([]types.Membership, error)
}

// LeaderboardRepository defines persistence operations for leaderboard entries.
type LeaderboardRepository interface {
	// Ensure creates a zero entry for the user if none exists.
	Ensure(ctx context.Context, userID int64) error
	Get(ctx context.Context, userID int64) (types.LeaderboardEntry, error)
	// GetForUpdate loads the entry and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, userID int64) (types.LeaderboardEntry, error)
	Save(ctx context.Context, entry types.LeaderboardEntry) error
	// Claim records that a solution credits a user for a challenge and
	// reports false when the user was already credited for it.
	Claim(ctx context.Context, userID, challengeID, solutionID int64) (bool, error)
	CreditedBy(ctx context.Context, solutionID int64) ([]int64, error)
	Rank(ctx context.Context, limit int) ([]types.RankedEntry, error)
}

// Repositories bundles the repositories bound to one connection or
// transaction.
type Repositories struct {
	Users       UserRepository
	Challenges  ChallengeRepository
	Solutions   SolutionRepository
	Teams       TeamRepository
	Leaderboard LeaderboardRepository
}

// Transactor hands out repositories, either directly or bound to a
// transaction that is rolled back in full when fn fails.
type Transactor interface {
	Repositories() Repositories
	WithTx(ctx context.Context, fn func(repos Repositories) error) error
}
