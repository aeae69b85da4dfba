package types

import "time"

// LeaderboardEntry is the per-user scoring aggregate.
type LeaderboardEntry struct {
	// UserID references the scored user; there is one entry per user.
	UserID int64 `json:"user_id" db:"user_id"`

	// UserName is the display name, joined in for read paths.
	UserName string `json:"user_name" db:"-"`

	// Score is the accumulated score.
	Score int `json:"score" db:"score"`

	// ChallengesCompleted counts accepted solutions.
	ChallengesCompleted int `json:"challenges_completed" db:"challenges_completed"`

	// CategoryScores breaks Score down by category key.
	CategoryScores map[string]int `json:"category_scores" db:"category_scores"`

	// UpdatedAt is the time of the last scoring event or correction.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RankedEntry is one leaderboard row as exposed by the ranking view.
// Field order is part of the wire format.
type RankedEntry struct {
	UserID              int64  `json:"user_id"`
	UserName            string `json:"user_name"`
	Score               int    `json:"score"`
	ChallengesCompleted int    `json:"challenges_completed"`
}

// SolutionAccepted is emitted when a solution is graded for the first time.
type SolutionAccepted struct {
	ChallengeID int64 `json:"challenge_id"`
	SolutionID  int64 `json:"solution_id"`
	// SubmitterIDs are the users credited: the submitter, or every member
	// of the submitting team.
	SubmitterIDs []int64   `json:"submitter_ids"`
	TeamID       int64     `json:"team_id,omitempty"`
	Category     string    `json:"category"`
	Score        int       `json:"score"`
	AcceptedAt   time.Time `json:"accepted_at"`
}

// ChallengeStatusChanged is emitted after a committed status transition.
type ChallengeStatusChanged struct {
	ChallengeID int64           `json:"challenge_id"`
	From        ChallengeStatus `json:"from"`
	To          ChallengeStatus `json:"to"`
	ActorID     int64           `json:"actor_id"`
	ChangedAt   time.Time       `json:"changed_at"`
}
