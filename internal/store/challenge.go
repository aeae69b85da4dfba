package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thinkstack/apiserver/types"
)

const challengeColumns = `c.id, c.title, c.description, c.category, c.participation_type, c.cash_prize_cents,
	c.min_team_size, c.max_team_size, c.additional_requirements, c.deadline, c.status,
	c.created_by_id, c.created_at, c.updated_at`

const challengeRecordSelect = `
	SELECT ` + challengeColumns + `,
		u.name,
		(SELECT COUNT(1) FROM solutions s WHERE s.challenge_id = c.id)
	FROM challenges c
	JOIN users u ON u.id = c.created_by_id`

// ChallengeRepository handles persistence for challenges.
type ChallengeRepository struct {
	q Querier
}

func NewChallengeRepository(q Querier) *ChallengeRepository {
	return &ChallengeRepository{q: q}
}

// List returns one page of challenges, newest first, plus the total number
// of challenges matching the filter.
func (r *ChallengeRepository) List(ctx context.Context, filter types.ChallengeFilter, offset, limit int) ([]types.ChallengeRecord, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 50
	}

	where, args := challengeWhere(filter)

	countQuery := `SELECT COUNT(1) FROM challenges c` + where
	var total int
	if err := r.q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := challengeRecordSelect + where + fmt.Sprintf(`
	ORDER BY c.created_at DESC, c.id DESC
	OFFSET $%d LIMIT $%d`, len(args)+1, len(args)+2)
	rows, err := r.q.QueryContext(ctx, listQuery, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]types.ChallengeRecord, 0, limit)
	for rows.Next() {
		record, err := scanChallengeRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func challengeWhere(filter types.ChallengeFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("c.status = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("c.category = $%d", len(args)))
	}
	if filter.OwnerID != 0 {
		args = append(args, filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("c.created_by_id = $%d", len(args)))
	}
	if filter.PublishedOnly {
		placeholders := make([]string, 0, len(types.PublishedStatuses))
		for _, status := range types.PublishedStatuses {
			args = append(args, status)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		clauses = append(clauses, "c.status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *ChallengeRepository) Get(ctx context.Context, id int64) (types.ChallengeRecord, error) {
	query := challengeRecordSelect + ` WHERE c.id = $1`
	record, err := scanChallengeRecord(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ChallengeRecord{}, ErrNotFound
		}
		return types.ChallengeRecord{}, err
	}
	return record, nil
}

func (r *ChallengeRepository) GetForUpdate(ctx context.Context, id int64) (types.Challenge, error) {
	const query = `SELECT ` + challengeColumns + ` FROM challenges c WHERE c.id = $1 FOR UPDATE`
	challenge, err := scanChallenge(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Challenge{}, ErrNotFound
		}
		return types.Challenge{}, err
	}
	return challenge, nil
}

// ListOverdue returns challenges in status whose deadline is before now.
func (r *ChallengeRepository) ListOverdue(ctx context.Context, status types.ChallengeStatus, now time.Time) ([]types.Challenge, error) {
	const query = `
		SELECT ` + challengeColumns + `
		FROM challenges c
		WHERE c.status = $1 AND c.deadline < $2
		ORDER BY c.id
		FOR UPDATE`
	rows, err := r.q.QueryContext(ctx, query, status, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var challenges []types.Challenge
	for rows.Next() {
		challenge, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, challenge)
	}
	return challenges, rows.Err()
}

// Categories returns the distinct categories in use, sorted.
func (r *ChallengeRepository) Categories(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT category FROM challenges ORDER BY category`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (r *ChallengeRepository) Create(ctx context.Context, challenge types.Challenge) (types.Challenge, error) {
	now := time.Now().UTC()
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = now
	}
	challenge.UpdatedAt = challenge.CreatedAt

	const query = `
		INSERT INTO challenges (
			title, description, category, participation_type, cash_prize_cents,
			min_team_size, max_team_size, additional_requirements, deadline, status,
			created_by_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	if err := r.q.QueryRowContext(
		ctx,
		query,
		challenge.Title,
		challenge.Description,
		challenge.Category,
		challenge.ParticipationType,
		challenge.Prize.Cents(),
		challenge.MinTeamSize,
		nullableInt(challenge.MaxTeamSize),
		challenge.AdditionalRequirements,
		challenge.Deadline,
		challenge.Status,
		challenge.CreatedByID,
		challenge.CreatedAt,
		challenge.UpdatedAt,
	).Scan(&challenge.ID); err != nil {
		return types.Challenge{}, err
	}
	return challenge, nil
}

func (r *ChallengeRepository) Update(ctx context.Context, challenge types.Challenge) (types.Challenge, error) {
	if challenge.UpdatedAt.IsZero() {
		challenge.UpdatedAt = time.Now().UTC()
	}

	const query = `
		UPDATE challenges
		SET title = $1,
			description = $2,
			category = $3,
			participation_type = $4,
			cash_prize_cents = $5,
			min_team_size = $6,
			max_team_size = $7,
			additional_requirements = $8,
			deadline = $9,
			status = $10,
			updated_at = $11
		WHERE id = $12`
	result, err := r.q.ExecContext(
		ctx,
		query,
		challenge.Title,
		challenge.Description,
		challenge.Category,
		challenge.ParticipationType,
		challenge.Prize.Cents(),
		challenge.MinTeamSize,
		nullableInt(challenge.MaxTeamSize),
		challenge.AdditionalRequirements,
		challenge.Deadline,
		challenge.Status,
		challenge.UpdatedAt,
		challenge.ID,
	)
	if err != nil {
		return types.Challenge{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Challenge{}, err
	}
	if affected == 0 {
		return types.Challenge{}, ErrNotFound
	}
	return challenge, nil
}

func (r *ChallengeRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM challenges WHERE id = $1`
	result, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func challengeDest(c *types.Challenge, cents *int64, maxTeamSize *sql.NullInt64) []any {
	return []any{
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Category,
		&c.ParticipationType,
		cents,
		&c.MinTeamSize,
		maxTeamSize,
		&c.AdditionalRequirements,
		&c.Deadline,
		&c.Status,
		&c.CreatedByID,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
}

func scanChallenge(row rowScanner) (types.Challenge, error) {
	var challenge types.Challenge
	var cents int64
	var maxTeamSize sql.NullInt64
	if err := row.Scan(challengeDest(&challenge, &cents, &maxTeamSize)...); err != nil {
		return types.Challenge{}, err
	}
	finishChallenge(&challenge, cents, maxTeamSize)
	return challenge, nil
}

func scanChallengeRecord(row rowScanner) (types.ChallengeRecord, error) {
	var record types.ChallengeRecord
	var cents int64
	var maxTeamSize sql.NullInt64
	dest := append(challengeDest(&record.Challenge, &cents, &maxTeamSize), &record.CreatedByName, &record.SolutionCount)
	if err := row.Scan(dest...); err != nil {
		return types.ChallengeRecord{}, err
	}
	finishChallenge(&record.Challenge, cents, maxTeamSize)
	return record, nil
}

func finishChallenge(c *types.Challenge, cents int64, maxTeamSize sql.NullInt64) {
	c.Prize = types.Money(cents)
	if maxTeamSize.Valid {
		size := int(maxTeamSize.Int64)
		c.MaxTeamSize = &size
	}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
