package services

import (
	"errors"

	"github.com/thinkstack/apiserver/internal/store"
)

// Kind groups error codes by how callers should react to them.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Error is a domain failure with a stable machine-readable code. The
// package-level values below are sentinels; wrap them with fmt.Errorf and %w
// to add detail and match them with errors.Is.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code string, kind Kind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

var (
	ErrDuplicateEmail      = newError("DUPLICATE_EMAIL", KindConflict, "email already registered")
	ErrWeakCredential      = newError("WEAK_CREDENTIAL", KindValidation, "password must be at least 6 characters")
	ErrInvalidCredential   = newError("INVALID_CREDENTIAL", KindAuthorization, "invalid credentials")
	ErrAccountSuspended    = newError("ACCOUNT_SUSPENDED", KindAuthorization, "account suspended")
	ErrInvalidDeadline     = newError("INVALID_DEADLINE", KindValidation, "deadline must be in the future")
	ErrInvalidPrize        = newError("INVALID_PRIZE", KindValidation, "prize must be greater than 0")
	ErrInvalidTeamSize     = newError("INVALID_TEAM_SIZE", KindValidation, "invalid team size")
	ErrIllegalTransition   = newError("ILLEGAL_TRANSITION", KindConflict, "illegal status transition")
	ErrUnauthorized        = newError("UNAUTHORIZED", KindAuthorization, "not allowed")
	ErrImmutable           = newError("IMMUTABLE", KindConflict, "challenge can no longer be edited")
	ErrHasSubmissions      = newError("HAS_SUBMISSIONS", KindConflict, "challenge has submissions")
	ErrChallengeNotActive  = newError("CHALLENGE_NOT_ACTIVE", KindConflict, "challenge is not accepting solutions")
	ErrDuplicateSubmission = newError("DUPLICATE_SUBMISSION", KindConflict, "solution already submitted")
	ErrValidation          = newError("VALIDATION", KindValidation, "validation failed")
	ErrInvalidScore        = newError("INVALID_SCORE", KindValidation, "score must not be negative")
	ErrAlreadyGraded       = newError("ALREADY_GRADED", KindConflict, "solution already graded")
	ErrNotFound            = newError("NOT_FOUND", KindNotFound, "not found")
)

// AsError extracts the domain error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// notFound translates the store's missing-row error into ErrNotFound and
// passes everything else through.
func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
