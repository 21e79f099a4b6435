package service

import "errors"

// Sentinel errors for the service layer. Handlers translate these into
// HTTP responses in one place; anything else is reported to clients as
// a generic internal error.
var (
	// Authentication failures are deliberately generic: a missing
	// account, a locked-down account and a wrong password all look
	// identical to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")

	// Validation
	ErrUsernameLength  = errors.New("username must be between 4 and 15 characters")
	ErrUsernameCharset = errors.New("username may only contain letters, digits and underscores")
	ErrKeyRequired     = errors.New("registration key required")
	ErrBadCursor       = errors.New("malformed pagination cursor")

	// Conflicts
	ErrUsernameTaken    = errors.New("username already taken")
	ErrKeyExhausted     = errors.New("registration key invalid or exhausted")
	ErrAlreadyScheduled = errors.New("account already scheduled for deletion")

	ErrNotFound     = errors.New("not found")
	ErrNotOwner     = errors.New("you do not own this file")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrStorageWrite = errors.New("failed to store file")

	// ErrInternal covers "should never happen" paths such as an
	// exhausted collision-retry loop.
	ErrInternal = errors.New("internal error")
)
