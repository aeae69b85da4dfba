package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thinkstack/apiserver/types"
)

// LeaderboardRepository handles persistence for leaderboard entries.
type LeaderboardRepository struct {
	q Querier
}

func NewLeaderboardRepository(q Querier) *LeaderboardRepository {
	return &LeaderboardRepository{q: q}
}

func (r *LeaderboardRepository) Ensure(ctx context.Context, userID int64) error {
	const query = `
		INSERT INTO leaderboard_entries (user_id, score, challenges_completed, category_scores, updated_at)
		VALUES ($1, 0, 0, '{}'::jsonb, $2)
		ON CONFLICT (user_id) DO NOTHING`
	_, err := r.q.ExecContext(ctx, query, userID, time.Now().UTC())
	return err
}

func (r *LeaderboardRepository) Get(ctx context.Context, userID int64) (types.LeaderboardEntry, error) {
	const query = `
		SELECT l.user_id, u.name, l.score, l.challenges_completed, l.category_scores, l.updated_at
		FROM leaderboard_entries l
		JOIN users u ON u.id = l.user_id
		WHERE l.user_id = $1`
	return scanEntry(r.q.QueryRowContext(ctx, query, userID))
}

func (r *LeaderboardRepository) GetForUpdate(ctx context.Context, userID int64) (types.LeaderboardEntry, error) {
	const query = `
		SELECT l.user_id, u.name, l.score, l.challenges_completed, l.category_scores, l.updated_at
		FROM leaderboard_entries l
		JOIN users u ON u.id = l.user_id
		WHERE l.user_id = $1
		FOR UPDATE OF l`
	return scanEntry(r.q.QueryRowContext(ctx, query, userID))
}

func (r *LeaderboardRepository) Save(ctx context.Context, entry types.LeaderboardEntry) error {
	categories := entry.CategoryScores
	if categories == nil {
		categories = map[string]int{}
	}
	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return err
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}

	const query = `
		UPDATE leaderboard_entries
		SET score = $1,
			challenges_completed = $2,
			category_scores = $3,
			updated_at = $4
		WHERE user_id = $5`
	result, err := r.q.ExecContext(ctx, query, entry.Score, entry.ChallengesCompleted, string(categoriesJSON), entry.UpdatedAt, entry.UserID)
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

// Claim records that solutionID credits userID for challengeID. It reports
// false when the user already holds a credit for that challenge.
func (r *LeaderboardRepository) Claim(ctx context.Context, userID, challengeID, solutionID int64) (bool, error) {
	const query = `
		INSERT INTO leaderboard_credits (user_id, challenge_id, solution_id, credited_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, challenge_id) DO NOTHING`
	result, err := r.q.ExecContext(ctx, query, userID, challengeID, solutionID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// CreditedBy returns the users credited by a solution, in id order.
func (r *LeaderboardRepository) CreditedBy(ctx context.Context, solutionID int64) ([]int64, error) {
	const query = `
		SELECT user_id FROM leaderboard_credits
		WHERE solution_id = $1
		ORDER BY user_id`
	rows, err := r.q.QueryContext(ctx, query, solutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Rank returns the top entries with a positive score. Ties on score are
// broken by completed challenges, then by user id.
func (r *LeaderboardRepository) Rank(ctx context.Context, limit int) ([]types.RankedEntry, error) {
	if limit < 1 {
		limit = 100
	}
	const query = `
		SELECT l.user_id, u.name, l.score, l.challenges_completed
		FROM leaderboard_entries l
		JOIN users u ON u.id = l.user_id
		WHERE l.score > 0
		ORDER BY l.score DESC, l.challenges_completed DESC, l.user_id ASC
		LIMIT $1`
	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.RankedEntry, 0, limit)
	for rows.Next() {
		var e types.RankedEntry
		if err := rows.Scan(&e.UserID, &e.UserName, &e.Score, &e.ChallengesCompleted); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row *sql.Row) (types.LeaderboardEntry, error) {
	var entry types.LeaderboardEntry
	var categoriesJSON []byte
	err := row.Scan(
		&entry.UserID,
		&entry.UserName,
		&entry.Score,
		&entry.ChallengesCompleted,
		&categoriesJSON,
		&entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.LeaderboardEntry{}, ErrNotFound
		}
		return types.LeaderboardEntry{}, err
	}

	entry.CategoryScores, err = decodeCategoryScores(categoriesJSON)
	if err != nil {
		return types.LeaderboardEntry{}, fmt.Errorf("decode category scores for user %d: %w", entry.UserID, err)
	}
	return entry, nil
}

// decodeCategoryScores reads the category_scores column. A NULL or empty
// column decodes to an empty breakdown.
func decodeCategoryScores(raw []byte) (map[string]int, error) {
	scores := map[string]int{}
	if len(raw) == 0 {
		return scores, nil
	}
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, err
	}
	if scores == nil {
		scores = map[string]int{}
	}
	return scores, nil
}
