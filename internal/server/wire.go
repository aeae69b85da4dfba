package server

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/thinkstack/apiserver/config"
	"github.com/thinkstack/apiserver/internal/services"
	"github.com/thinkstack/apiserver/internal/store"
	"github.com/thinkstack/apiserver/types"
)

// SystemActor is the administrator identity used by scheduled and CLI
// operations.
var SystemActor = types.User{Name: "system", Role: types.RoleAdmin, Verified: true}

// sqlTransactor binds the postgres repositories to a pool or a transaction.
type sqlTransactor struct {
	db *sql.DB
}

func NewTransactor(db *sql.DB) services.Transactor {
	return sqlTransactor{db: db}
}

func (t sqlTransactor) Repositories() services.Repositories {
	return repositoriesFor(t.db)
}

func (t sqlTransactor) WithTx(ctx context.Context, fn func(repos services.Repositories) error) error {
	return store.WithTx(ctx, t.db, func(q store.Querier) error {
		return fn(repositoriesFor(q))
	})
}

func repositoriesFor(q store.Querier) services.Repositories {
	return services.Repositories{
		Users:       store.NewUserRepository(q),
		Challenges:  store.NewChallengeRepository(q),
		Solutions:   store.NewSolutionRepository(q),
		Teams:       store.NewTeamRepository(q),
		Leaderboard: store.NewLeaderboardRepository(q),
	}
}

// Services bundles the domain services of one process.
type Services struct {
	Identity    *services.IdentityService
	Challenges  *services.ChallengeService
	Solutions   *services.SolutionService
	Leaderboard *services.LeaderboardService
	Teams       *services.TeamService
}

// NewServices wires the domain services over tx using the configured
// policy. A nil publisher drops events.
func NewServices(tx services.Transactor, policy config.PolicyConfig, publisher services.EventPublisher, logger *slog.Logger, now func() time.Time) *Services {
	if publisher == nil {
		publisher = services.NopPublisher{}
	}
	if now == nil {
		now = time.Now
	}

	leaderboard := services.NewLeaderboardService(tx, services.PointsPolicy{
		Mode:       policy.PointsMode,
		FlatPoints: policy.FlatPoints,
	}, logger, now)

	return &Services{
		Identity:    services.NewIdentityService(tx, services.NewBcryptHasher(0), policy.AdminSecret, logger),
		Challenges:  services.NewChallengeService(tx, publisher, logger, now),
		Solutions:   services.NewSolutionService(tx, leaderboard, publisher, policy.AllowRegrade, logger, now),
		Leaderboard: leaderboard,
		Teams:       services.NewTeamService(tx, logger, now),
	}
}
