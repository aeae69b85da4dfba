package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/thinkstack/apiserver/internal/store"
	"github.com/thinkstack/apiserver/types"
)

// TeamDetails is a team with its current members.
type TeamDetails struct {
	types.Team
	Members []types.Membership `json:"members"`
}

// TeamService manages teams and their membership.
type TeamService struct {
	tx     Transactor
	logger *slog.Logger
	now    func() time.Time
}

func NewTeamService(tx Transactor, logger *slog.Logger, now func() time.Time) *TeamService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &TeamService{tx: tx, logger: logger, now: now}
}

// Create makes a team led by its creator.
func (s *TeamService) Create(ctx context.Context, actor types.User, name string) (TeamDetails, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TeamDetails{}, fmt.Errorf("%w: team name is required", ErrValidation)
	}

	var details TeamDetails
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		now := s.now().UTC()
		team, err := repos.Teams.Create(ctx, types.Team{Name: name, CreatedByID: actor.ID, CreatedAt: now})
		if err != nil {
			return err
		}
		if _, err := repos.Teams.AddMember(ctx, types.Membership{
			TeamID:   team.ID,
			UserID:   actor.ID,
			Role:     types.TeamLeader,
			JoinedAt: now,
		}); err != nil {
			return err
		}
		members, err := repos.Teams.Members(ctx, team.ID)
		if err != nil {
			return err
		}
		details = TeamDetails{Team: team, Members: members}
		return nil
	})
	if err != nil {
		return TeamDetails{}, err
	}

	s.logger.InfoContext(ctx, "team created", "team_id", details.ID, "user_id", actor.ID)
	return details, nil
}

// AddMember adds userID to a team. Only the team's leader or an admin may
// add members.
func (s *TeamService) AddMember(ctx context.Context, actor types.User, teamID, userID int64) (TeamDetails, error) {
	var details TeamDetails
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		team, err := repos.Teams.Get(ctx, teamID)
		if err != nil {
			return notFound(err)
		}
		members, err := repos.Teams.Members(ctx, teamID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !isLeader(members, actor.ID) {
			return ErrUnauthorized
		}

		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return notFound(err)
		}
		if user.Suspended {
			return fmt.Errorf("%w: suspended users cannot join teams", ErrValidation)
		}

		if _, err := repos.Teams.AddMember(ctx, types.Membership{
			TeamID:   teamID,
			UserID:   userID,
			Role:     types.TeamMember,
			JoinedAt: s.now().UTC(),
		}); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("%w: user is already a member", ErrValidation)
			}
			return err
		}

		members, err = repos.Teams.Members(ctx, teamID)
		if err != nil {
			return err
		}
		details = TeamDetails{Team: team, Members: members}
		return nil
	})
	if err != nil {
		return TeamDetails{}, err
	}
	return details, nil
}

func (s *TeamService) Get(ctx context.Context, teamID int64) (TeamDetails, error) {
	repos := s.tx.Repositories()
	team, err := repos.Teams.Get(ctx, teamID)
	if err != nil {
		return TeamDetails{}, notFound(err)
	}
	members, err := repos.Teams.Members(ctx, teamID)
	if err != nil {
		return TeamDetails{}, err
	}
	return TeamDetails{Team: team, Members: members}, nil
}

func isLeader(members []types.Membership, userID int64) bool {
	for _, m := range members {
		if m.UserID == userID && m.Role == types.TeamLeader {
			return true
		}
	}
	return false
}
