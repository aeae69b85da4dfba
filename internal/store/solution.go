package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/thinkstack/apiserver/types"
)

const solutionColumns = `id, challenge_id, submitted_by_user_id, submitted_by_team_id, content, attachments,
	score, status, created_at, graded_at`

// SolutionRepository handles persistence for solutions.
type SolutionRepository struct {
	q Querier
}

func NewSolutionRepository(q Querier) *SolutionRepository {
	return &SolutionRepository{q: q}
}

func (r *SolutionRepository) Get(ctx context.Context, id int64) (types.Solution, error) {
	const query = `SELECT ` + solutionColumns + ` FROM solutions WHERE id = $1`
	return scanSolutionRow(r.q.QueryRowContext(ctx, query, id))
}

func (r *SolutionRepository) GetForUpdate(ctx context.Context, id int64) (types.Solution, error) {
	const query = `SELECT ` + solutionColumns + ` FROM solutions WHERE id = $1 FOR UPDATE`
	return scanSolutionRow(r.q.QueryRowContext(ctx, query, id))
}

// FindBySubmitter returns the submitter's solution for a challenge, if any.
func (r *SolutionRepository) FindBySubmitter(ctx context.Context, challengeID int64, submitter types.Submitter) (types.Solution, error) {
	if submitter.IsTeam() {
		const query = `SELECT ` + solutionColumns + ` FROM solutions WHERE challenge_id = $1 AND submitted_by_team_id = $2`
		return scanSolutionRow(r.q.QueryRowContext(ctx, query, challengeID, submitter.TeamID))
	}
	const query = `SELECT ` + solutionColumns + ` FROM solutions WHERE challenge_id = $1 AND submitted_by_user_id = $2`
	return scanSolutionRow(r.q.QueryRowContext(ctx, query, challengeID, submitter.UserID))
}

func (r *SolutionRepository) ListByChallenge(ctx context.Context, challengeID int64) ([]types.Solution, error) {
	const query = `SELECT ` + solutionColumns + ` FROM solutions WHERE challenge_id = $1 ORDER BY created_at, id`
	rows, err := r.q.QueryContext(ctx, query, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	solutions := []types.Solution{}
	for rows.Next() {
		solution, err := scanSolution(rows)
		if err != nil {
			return nil, err
		}
		solutions = append(solutions, solution)
	}
	return solutions, rows.Err()
}

func (r *SolutionRepository) CountByChallenge(ctx context.Context, challengeID int64) (int, error) {
	const query = `SELECT COUNT(1) FROM solutions WHERE challenge_id = $1`
	var count int
	if err := r.q.QueryRowContext(ctx, query, challengeID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SolutionRepository) Create(ctx context.Context, solution types.Solution) (types.Solution, error) {
	if solution.CreatedAt.IsZero() {
		solution.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO solutions (
			challenge_id, submitted_by_user_id, submitted_by_team_id, content, attachments,
			score, status, created_at, graded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.q.QueryRowContext(
		ctx,
		query,
		solution.ChallengeID,
		nullableInt64(solution.SubmittedByUserID),
		nullableInt64(solution.SubmittedByTeamID),
		solution.Content,
		solution.AttachmentURL,
		solution.Score,
		solution.Status,
		solution.CreatedAt,
		nullableTime(solution.GradedAt),
	).Scan(&solution.ID); err != nil {
		if isUniqueViolation(err) {
			return types.Solution{}, ErrConflict
		}
		return types.Solution{}, err
	}
	return solution, nil
}

// Update persists the grading fields of a solution.
func (r *SolutionRepository) Update(ctx context.Context, solution types.Solution) (types.Solution, error) {
	const query = `
		UPDATE solutions
		SET content = $1,
			attachments = $2,
			score = $3,
			status = $4,
			graded_at = $5
		WHERE id = $6`
	result, err := r.q.ExecContext(
		ctx,
		query,
		solution.Content,
		solution.AttachmentURL,
		solution.Score,
		solution.Status,
		nullableTime(solution.GradedAt),
		solution.ID,
	)
	if err != nil {
		return types.Solution{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Solution{}, err
	}
	if affected == 0 {
		return types.Solution{}, ErrNotFound
	}
	return solution, nil
}

func scanSolutionRow(row *sql.Row) (types.Solution, error) {
	solution, err := scanSolution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Solution{}, ErrNotFound
		}
		return types.Solution{}, err
	}
	return solution, nil
}

func scanSolution(row rowScanner) (types.Solution, error) {
	var solution types.Solution
	var userID, teamID sql.NullInt64
	var gradedAt sql.NullTime
	if err := row.Scan(
		&solution.ID,
		&solution.ChallengeID,
		&userID,
		&teamID,
		&solution.Content,
		&solution.AttachmentURL,
		&solution.Score,
		&solution.Status,
		&solution.CreatedAt,
		&gradedAt,
	); err != nil {
		return types.Solution{}, err
	}
	if userID.Valid {
		id := userID.Int64
		solution.SubmittedByUserID = &id
	}
	if teamID.Valid {
		id := teamID.Int64
		solution.SubmittedByTeamID = &id
	}
	if gradedAt.Valid {
		at := gradedAt.Time
		solution.GradedAt = &at
	}
	return solution, nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullableTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
