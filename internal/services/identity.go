package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/thinkstack/apiserver/internal/store"
	"github.com/thinkstack/apiserver/types"
)

const minPasswordLength = 6

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     types.Role
}

// AccountUpdate lists the administrative changes to an account. Nil fields
// are left untouched.
type AccountUpdate struct {
	Role      *types.Role
	Verified  *bool
	Suspended *bool
}

// IdentityService owns user accounts and credentials.
type IdentityService struct {
	tx          Transactor
	hasher      PasswordHasher
	adminSecret string
	logger      *slog.Logger
}

func NewIdentityService(tx Transactor, hasher PasswordHasher, adminSecret string, logger *slog.Logger) *IdentityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityService{
		tx:          tx,
		hasher:      hasher,
		adminSecret: adminSecret,
		logger:      logger,
	}
}

// Register creates a SOLVER or CHALLENGER account together with its zero
// leaderboard entry.
func (s *IdentityService) Register(ctx context.Context, input RegisterInput) (types.User, error) {
	if input.Role == "" {
		input.Role = types.RoleSolver
	}
	input.Role = types.Role(strings.ToUpper(string(input.Role)))
	if !input.Role.Valid() {
		return types.User{}, fmt.Errorf("%w: unknown role %q", ErrValidation, input.Role)
	}
	if input.Role == types.RoleAdmin {
		return types.User{}, fmt.Errorf("%w: admin accounts cannot self-register", ErrUnauthorized)
	}
	return s.create(ctx, input, false)
}

// RegisterAdmin creates a verified ADMIN account when secret matches the
// configured admin secret. An empty configured secret disables it.
func (s *IdentityService) RegisterAdmin(ctx context.Context, input RegisterInput, secret string) (types.User, error) {
	if s.adminSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.adminSecret)) != 1 {
		return types.User{}, fmt.Errorf("%w: invalid admin secret", ErrUnauthorized)
	}
	input.Role = types.RoleAdmin
	return s.create(ctx, input, true)
}

func (s *IdentityService) create(ctx context.Context, input RegisterInput, verified bool) (types.User, error) {
	name := strings.TrimSpace(input.Name)
	email := normalizeEmail(input.Email)
	if name == "" {
		return types.User{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if email == "" || !strings.Contains(email, "@") {
		return types.User{}, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	if utf8.RuneCountInString(input.Password) < minPasswordLength {
		return types.User{}, ErrWeakCredential
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	var created types.User
	err = s.tx.WithTx(ctx, func(repos Repositories) error {
		if _, err := repos.Users.GetByEmail(ctx, email); err == nil {
			return ErrDuplicateEmail
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		user, err := repos.Users.Create(ctx, types.User{
			Name:         name,
			Email:        email,
			Role:         input.Role,
			PasswordHash: hashed,
			Verified:     verified,
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrDuplicateEmail
			}
			return err
		}

		if !user.IsAdmin() {
			if err := repos.Leaderboard.Ensure(ctx, user.ID); err != nil {
				return err
			}
		}
		created = user
		return nil
	})
	if err != nil {
		return types.User{}, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", created.ID, "role", created.Role)
	return created, nil
}

// Authenticate resolves an email and password to a user. Suspension is
// reported only once the password is known to be correct.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return types.User{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.tx.Repositories().Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredential
		}
		return types.User{}, err
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return types.User{}, ErrInvalidCredential
	}
	if user.Suspended {
		return types.User{}, ErrAccountSuspended
	}
	return user, nil
}

func (s *IdentityService) GetByID(ctx context.Context, id int64) (types.User, error) {
	user, err := s.tx.Repositories().Users.GetByID(ctx, id)
	if err != nil {
		return types.User{}, notFound(err)
	}
	return user, nil
}

// UpdateAccount applies an administrative change to another account.
func (s *IdentityService) UpdateAccount(ctx context.Context, actor types.User, userID int64, update AccountUpdate) (types.User, error) {
	if !actor.IsAdmin() {
		return types.User{}, ErrUnauthorized
	}
	if update.Role != nil && !update.Role.Valid() {
		return types.User{}, fmt.Errorf("%w: unknown role %q", ErrValidation, *update.Role)
	}

	var updated types.User
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			return notFound(err)
		}

		changed := false
		if update.Role != nil && *update.Role != user.Role {
			user.Role = *update.Role
			changed = true
		}
		if update.Verified != nil && *update.Verified != user.Verified {
			user.Verified = *update.Verified
			changed = true
		}
		if update.Suspended != nil && *update.Suspended != user.Suspended {
			user.Suspended = *update.Suspended
			changed = true
		}
		if !changed {
			updated = user
			return nil
		}

		user, err = repos.Users.Update(ctx, user)
		if err != nil {
			return notFound(err)
		}
		if !user.IsAdmin() {
			if err := repos.Leaderboard.Ensure(ctx, user.ID); err != nil {
				return err
			}
		}
		updated = user
		return nil
	})
	if err != nil {
		return types.User{}, err
	}

	s.logger.InfoContext(ctx, "account updated", "user_id", updated.ID, "actor_id", actor.ID)
	return updated, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
