package types

import "time"

// Role is the authorization level of an account.
type Role string

// Supported roles.
const (
	RoleSolver     Role = "SOLVER"
	RoleChallenger Role = "CHALLENGER"
	RoleAdmin      Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSolver, RoleChallenger, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"id" db:"id"`

	// Name is the user's display name. It is not unique.
	Name string `json:"name" db:"name"`

	// Email is the user's email address, stored lowercased.
	// Uniqueness is case-insensitive.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" db:"role"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Verified is set once an administrator has verified the account.
	Verified bool `json:"is_verified" db:"is_verified"`

	// Suspended accounts cannot authenticate. Accounts are never deleted,
	// only suspended, so challenges and solutions keep their references.
	Suspended bool `json:"is_suspended" db:"is_suspended"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
