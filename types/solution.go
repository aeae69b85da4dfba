package types

import "time"

// SolutionStatus is the grading state of a solution.
type SolutionStatus string

// Supported solution statuses.
const (
	SolutionSubmitted SolutionStatus = "SUBMITTED"
	SolutionGraded    SolutionStatus = "GRADED"
	SolutionRejected  SolutionStatus = "REJECTED"
)

// Solution is a single submission to a challenge, made either by one user
// or by one team. Exactly one of SubmittedByUserID and SubmittedByTeamID is set.
type Solution struct {
	// ID is the unique identifier of the solution.
	ID int64 `json:"id" db:"id"`

	// ChallengeID identifies the challenge this solution is for.
	ChallengeID int64 `json:"challenge_id" db:"challenge_id"`

	// SubmittedByUserID is set for individual submissions.
	SubmittedByUserID *int64 `json:"submitted_by_user_id" db:"submitted_by_user_id"`

	// SubmittedByTeamID is set for team submissions.
	SubmittedByTeamID *int64 `json:"submitted_by_team_id" db:"submitted_by_team_id"`

	// Content holds the submitter's free-text notes.
	Content string `json:"content" db:"content"`

	// AttachmentURL points at the submitted work, e.g. a repository URL.
	AttachmentURL string `json:"attachments" db:"attachments"`

	// Score is set by grading. It defaults to 0.
	Score int `json:"score" db:"score"`

	// Status is SUBMITTED until an admin grades or rejects the solution.
	Status SolutionStatus `json:"status" db:"status"`

	// CreatedAt is the timestamp when the solution was submitted.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// GradedAt is set when the solution leaves SUBMITTED.
	GradedAt *time.Time `json:"graded_at,omitempty" db:"graded_at"`
}

// Submitter identifies who made a submission: a user or a team.
type Submitter struct {
	UserID int64
	TeamID int64
}

// IsTeam reports whether the submitter is a team.
func (s Submitter) IsTeam() bool {
	return s.TeamID != 0
}
