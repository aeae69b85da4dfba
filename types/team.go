package types

import "time"

// TeamRole is a member's role inside a team.
type TeamRole string

// Supported team roles.
const (
	TeamLeader TeamRole = "LEADER"
	TeamMember TeamRole = "MEMBER"
)

// Team groups users that submit solutions together.
type Team struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	CreatedByID int64     `json:"created_by_id" db:"created_by_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Membership links a user to a team.
type Membership struct {
	TeamID   int64     `json:"team_id" db:"team_id"`
	UserID   int64     `json:"user_id" db:"user_id"`
	UserName string    `json:"user_name" db:"-"`
	Role     TeamRole  `json:"role" db:"role"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}
