package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/thinkstack/apiserver/types"
)

// TeamRepository handles persistence for teams and their memberships.
type TeamRepository struct {
	q Querier
}

func NewTeamRepository(q Querier) *TeamRepository {
	return &TeamRepository{q: q}
}

func (r *TeamRepository) Get(ctx context.Context, id int64) (types.Team, error) {
	const query = `SELECT id, name, created_by_id, created_at FROM teams WHERE id = $1`
	var team types.Team
	err := r.q.QueryRowContext(ctx, query, id).Scan(&team.ID, &team.Name, &team.CreatedByID, &team.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Team{}, ErrNotFound
		}
		return types.Team{}, err
	}
	return team, nil
}

func (r *TeamRepository) Create(ctx context.Context, team types.Team) (types.Team, error) {
	if team.CreatedAt.IsZero() {
		team.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teams (name, created_by_id, created_at) VALUES ($1, $2, $3) RETURNING id`
	if err := r.q.QueryRowContext(ctx, query, team.Name, team.CreatedByID, team.CreatedAt).Scan(&team.ID); err != nil {
		return types.Team{}, err
	}
	return team, nil
}

// AddMember returns ErrConflict when the user already belongs to the team.
func (r *TeamRepository) AddMember(ctx context.Context, member types.Membership) (types.Membership, error) {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}
	const query = `INSERT INTO team_members (team_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.q.ExecContext(ctx, query, member.TeamID, member.UserID, member.Role, member.JoinedAt); err != nil {
		if isUniqueViolation(err) {
			return types.Membership{}, ErrConflict
		}
		return types.Membership{}, err
	}
	return member, nil
}

func (r *TeamRepository) Members(ctx context.Context, teamID int64) ([]types.Membership, error) {
	const query = `
		SELECT m.team_id, m.user_id, u.name, m.role, m.joined_at
		FROM team_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.team_id = $1
		ORDER BY m.joined_at, m.user_id`
	rows, err := r.q.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []types.Membership{}
	for rows.Next() {
		var m types.Membership
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.UserName, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
