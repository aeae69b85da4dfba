package types

import (
	"math"
	"slices"
	"time"
)

// ChallengeStatus is the lifecycle state of a challenge.
type ChallengeStatus string

// Supported challenge statuses.
const (
	ChallengePending   ChallengeStatus = "PENDING"
	ChallengeApproved  ChallengeStatus = "APPROVED"
	ChallengeRejected  ChallengeStatus = "REJECTED"
	ChallengeActive    ChallengeStatus = "ACTIVE"
	ChallengeCompleted ChallengeStatus = "COMPLETED"
)

// Valid reports whether s is one of the known statuses.
func (s ChallengeStatus) Valid() bool {
	switch s {
	case ChallengePending, ChallengeApproved, ChallengeRejected, ChallengeActive, ChallengeCompleted:
		return true
	default:
		return false
	}
}

// PublishedStatuses are the statuses visible to solvers.
var PublishedStatuses = []ChallengeStatus{ChallengeApproved, ChallengeActive, ChallengeCompleted}

// Published reports whether solvers can see a challenge in status s.
func (s ChallengeStatus) Published() bool {
	return slices.Contains(PublishedStatuses, s)
}

// ParticipationType says whether a challenge is solved by individuals or teams.
type ParticipationType string

// Supported participation types.
const (
	ParticipationIndividual ParticipationType = "INDIVIDUAL"
	ParticipationTeam       ParticipationType = "TEAM"
)

// Valid reports whether p is one of the known participation types.
func (p ParticipationType) Valid() bool {
	return p == ParticipationIndividual || p == ParticipationTeam
}

// Challenge is a problem posted by a challenger, moderated by admins and
// solved by solvers or teams.
type Challenge struct {
	// ID is the unique identifier of the challenge.
	ID int64 `db:"id"`

	// Title is the human-readable name of the challenge.
	Title string `db:"title"`

	// Description is the full problem statement.
	Description string `db:"description"`

	// Category is a free-text grouping label such as "AI" or "Web".
	Category string `db:"category"`

	// ParticipationType is INDIVIDUAL or TEAM.
	ParticipationType ParticipationType `db:"participation_type"`

	// Prize is the cash prize in cents.
	Prize Money `db:"cash_prize_cents"`

	// MinTeamSize is the smallest allowed team, at least 1.
	MinTeamSize int `db:"min_team_size"`

	// MaxTeamSize is the largest allowed team. Nil means unbounded.
	MaxTeamSize *int `db:"max_team_size"`

	// AdditionalRequirements holds optional free-text participation rules.
	AdditionalRequirements string `db:"additional_requirements"`

	// Deadline is the instant after which no solutions are accepted.
	Deadline time.Time `db:"deadline"`

	// Status is the current lifecycle status.
	Status ChallengeStatus `db:"status"`

	// CreatedByID references the owning user. It never changes.
	CreatedByID int64 `db:"created_by_id"`

	// CreatedAt is the timestamp at which the challenge was created.
	CreatedAt time.Time `db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `db:"updated_at"`
}

// IsExpired reports whether the deadline has passed at now.
func (c Challenge) IsExpired(now time.Time) bool {
	return now.After(c.Deadline)
}

// DaysRemaining returns the whole days left until the deadline, rounded up,
// and never negative.
func (c Challenge) DaysRemaining(now time.Time) int {
	left := c.Deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// ChallengeRecord is a challenge joined with the data its read model needs.
type ChallengeRecord struct {
	Challenge
	CreatedByName string
	SolutionCount int
}

// ChallengeView is the read model returned to API callers. Field order is
// part of the wire format.
type ChallengeView struct {
	ID                     int64             `json:"id"`
	Title                  string            `json:"title"`
	Description            string            `json:"description"`
	Category               string            `json:"category"`
	ParticipationType      ParticipationType `json:"participationType"`
	CashPrize              Money             `json:"cashPrize"`
	MinTeamSize            int               `json:"minTeamSize"`
	MaxTeamSize            *int              `json:"maxTeamSize"`
	Deadline               time.Time         `json:"deadline"`
	Status                 ChallengeStatus   `json:"status"`
	CreatedBy              string            `json:"createdBy"`
	CreatedAt              time.Time         `json:"createdAt"`
	SolutionCount          int               `json:"solutionCount"`
	AdditionalRequirements string            `json:"additionalRequirements,omitempty"`
	IsExpired              bool              `json:"isExpired"`
	DaysRemaining          int               `json:"daysRemaining"`
}

// View builds the read model, computing the derived fields at now.
func (r ChallengeRecord) View(now time.Time) ChallengeView {
	return ChallengeView{
		ID:                     r.ID,
		Title:                  r.Title,
		Description:            r.Description,
		Category:               r.Category,
		ParticipationType:      r.ParticipationType,
		CashPrize:              r.Prize,
		MinTeamSize:            r.MinTeamSize,
		MaxTeamSize:            r.MaxTeamSize,
		Deadline:               r.Deadline.UTC(),
		Status:                 r.Status,
		CreatedBy:              r.CreatedByName,
		CreatedAt:              r.CreatedAt.UTC(),
		SolutionCount:          r.SolutionCount,
		AdditionalRequirements: r.AdditionalRequirements,
		IsExpired:              r.IsExpired(now),
		DaysRemaining:          r.DaysRemaining(now),
	}
}

// ChallengeFilter narrows challenge listings. Zero values match everything.
type ChallengeFilter struct {
	Status   ChallengeStatus
	Category string
	OwnerID  int64
	// PublishedOnly hides PENDING and REJECTED challenges.
	PublishedOnly bool
}
