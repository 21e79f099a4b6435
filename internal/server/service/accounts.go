package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"stash/internal/server/auth"
	"stash/internal/server/database"
)

// Username length bounds.
const (
	MinUsernameLength = 4
	MaxUsernameLength = 15
)

// maxTokenAttempts caps the issue-until-unique retry loop. With ~250
// bits of token entropy a single retry is already vanishingly unlikely;
// hitting the cap means something is broken, not unlucky.
const maxTokenAttempts = 10

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// AccountService owns the account lifecycle for both namespaces:
// signup, login, credential rotation, and the lockdown transition that
// hands accounts to the purge worker.
type AccountService struct {
	users      AccountStore
	admins     AccountStore
	keys       KeyStore
	purger     *Purger
	inviteOnly bool
}

// NewAccountService creates a new account service.
func NewAccountService(users, admins AccountStore, keys KeyStore, purger *Purger, inviteOnly bool) *AccountService {
	return &AccountService{
		users:      users,
		admins:     admins,
		keys:       keys,
		purger:     purger,
		inviteOnly: inviteOnly,
	}
}

func validateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return ErrUsernameLength
	}
	if !usernamePattern.MatchString(username) {
		return ErrUsernameCharset
	}
	return nil
}

// issueToken generates a token and retries until it is unique within
// the namespace. Collisions are a retry, not an error; exhausting the
// cap is reported as an internal error.
func issueToken(ctx context.Context, store AccountStore) (string, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := auth.NewToken(auth.TokenLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		exists, err := store.TokenExists(ctx, token)
		if err != nil {
			return "", err
		}
		if !exists {
			return token, nil
		}
		slog.Warn("token collision, regenerating", "attempt", attempt+1)
	}
	return "", fmt.Errorf("%w: token space exhausted after %d attempts", ErrInternal, maxTokenAttempts)
}

// Signup registers a new user account. In invite-only mode a
// registration key is redeemed atomically (decrement-if-positive) once
// the account insert has committed; an exhausted or unknown key fails
// the signup and the account is rolled back.
func (s *AccountService) Signup(ctx context.Context, username, password, registrationKey string) (*database.Account, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	// Early check keeps a doomed signup from doing the hashing and
	// token work; the unique constraint on Create still backstops the
	// race.
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	}

	if s.inviteOnly && registrationKey == "" {
		return nil, ErrKeyRequired
	}

	token, err := issueToken(ctx, s.users)
	if err != nil {
		return nil, err
	}

	account := &database.Account{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Token:        token,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, account); err != nil {
		if errors.Is(err, database.ErrDuplicateUsername) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	// The key is redeemed only after the insert commits: losing the
	// username race must not consume a use. A failed redemption rolls
	// the account back so a dead key never yields one.
	if s.inviteOnly {
		if err := s.keys.Redeem(ctx, registrationKey); err != nil {
			if delErr := s.users.Delete(ctx, username); delErr != nil {
				slog.Error("failed to remove account after key redemption failure",
					"username", username, "error", delErr)
			}
			if errors.Is(err, database.ErrKeyExhausted) {
				return nil, ErrKeyExhausted
			}
			return nil, err
		}
	}

	slog.Info("account created", "username", username)
	return account, nil
}

// CreateAdmin registers an admin account. Admins are created by other
// admins (or the startup bootstrap), never by public signup, so no
// registration key is involved.
func (s *AccountService) CreateAdmin(ctx context.Context, username, password string) (*database.Account, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	token, err := issueToken(ctx, s.admins)
	if err != nil {
		return nil, err
	}

	account := &database.Account{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Token:        token,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.admins.Create(ctx, account); err != nil {
		if errors.Is(err, database.ErrDuplicateUsername) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	slog.Info("admin account created", "username", username)
	return account, nil
}

// Login authenticates a user by username and password. Every failure
// mode returns the same generic error.
func (s *AccountService) Login(ctx context.Context, username, password string) (*database.Account, error) {
	return login(ctx, s.users, username, password)
}

// AdminLogin authenticates against the admin namespace.
func (s *AccountService) AdminLogin(ctx context.Context, username, password string) (*database.Account, error) {
	return login(ctx, s.admins, username, password)
}

func login(ctx context.Context, store AccountStore, username, password string) (*database.Account, error) {
	account, err := store.GetByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	ok, err := auth.VerifyPassword(account.PasswordHash, password)
	if err != nil {
		// A hash we cannot parse is a server-side defect; the caller
		// still only learns that the credentials did not work.
		slog.Error("corrupt password hash", "username", username, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// RotateToken issues a fresh token and atomically replaces the stored
// one. Requests carrying the old token fail as soon as the update
// commits.
func (s *AccountService) RotateToken(ctx context.Context, admin bool, username string) (string, error) {
	store := s.store(admin)

	token, err := issueToken(ctx, store)
	if err != nil {
		return "", err
	}
	if err := store.UpdateToken(ctx, username, token); err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}
	return token, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *AccountService) ChangePassword(ctx context.Context, admin bool, username, current, updated string) error {
	store := s.store(admin)

	if _, err := login(ctx, store, username, current); err != nil {
		return err
	}

	passwordHash, err := auth.HashPassword(updated)
	if err != nil {
		return err
	}
	return store.UpdatePassword(ctx, username, passwordHash)
}

// ScheduleDeletion marks a user account for deletion and hands it to
// the purge worker. The account is invisible to authentication from
// this point on; the caller gets an acknowledgment before any upload is
// removed. A repeated request fails with ErrAlreadyScheduled.
func (s *AccountService) ScheduleDeletion(ctx context.Context, username string) error {
	if err := s.users.BeginLockdown(ctx, username); err != nil {
		switch {
		case errors.Is(err, database.ErrAlreadyLocked):
			return ErrAlreadyScheduled
		case errors.Is(err, database.ErrAccountNotFound):
			return ErrNotFound
		default:
			return err
		}
	}

	s.purger.Enqueue(username)
	slog.Info("account scheduled for deletion", "username", username)
	return nil
}

// ListUsers returns all user accounts for the admin dashboard.
func (s *AccountService) ListUsers(ctx context.Context) ([]*database.Account, error) {
	return s.users.List(ctx)
}

// CreateKey mints a registration key with the given number of uses.
func (s *AccountService) CreateKey(ctx context.Context, uses int) (*database.RegistrationKey, error) {
	if uses < 1 {
		return nil, fmt.Errorf("%w: key must allow at least one use", ErrInternal)
	}
	key := &database.RegistrationKey{
		ID:        uuid.New(),
		Key:       uuid.NewString(),
		UsesLeft:  uses,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// ListKeys returns all outstanding registration keys.
func (s *AccountService) ListKeys(ctx context.Context) ([]*database.RegistrationKey, error) {
	return s.keys.List(ctx)
}

// DeleteKey invalidates a registration key regardless of remaining uses.
func (s *AccountService) DeleteKey(ctx context.Context, key string) error {
	if err := s.keys.Delete(ctx, key); err != nil {
		if errors.Is(err, database.ErrKeyExhausted) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *AccountService) store(admin bool) AccountStore {
	if admin {
		return s.admins
	}
	return s.users
}
