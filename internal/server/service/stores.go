package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stash/internal/server/database"
)

// The service layer depends on narrow store interfaces rather than the
// concrete repositories, so tests can run against in-memory fakes.

// AccountStore is the persistence contract for one account namespace.
type AccountStore interface {
	Create(ctx context.Context, a *database.Account) error
	GetByUsername(ctx context.Context, username string) (*database.Account, error)
	GetByToken(ctx context.Context, token string) (*database.Account, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	UpdateToken(ctx context.Context, username, token string) error
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	BeginLockdown(ctx context.Context, username string) error
	Delete(ctx context.Context, username string) error
	ListLockedDown(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([]*database.Account, error)
}

// UploadStore is the persistence contract for upload records.
type UploadStore interface {
	Create(ctx context.Context, u *database.Upload) error
	GetByFilename(ctx context.Context, filename string) (*database.Upload, error)
	GetByHash(ctx context.Context, hash string) (*database.Upload, error)
	FilenameExists(ctx context.Context, filename string) (bool, error)
	Delete(ctx context.Context, filename string) error
	FirstByOwner(ctx context.Context, owner string) (*database.Upload, error)
	List(ctx context.Context, owner, query string, before time.Time, beforeID uuid.UUID, limit int) ([]*database.Upload, error)
	GetStats(ctx context.Context) (*database.Stats, error)
}

// KeyStore is the persistence contract for registration keys.
type KeyStore interface {
	Create(ctx context.Context, k *database.RegistrationKey) error
	Redeem(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]*database.RegistrationKey, error)
}

var (
	_ AccountStore = (*database.AccountRepository)(nil)
	_ UploadStore  = (*database.UploadRepository)(nil)
	_ KeyStore     = (*database.KeyRepository)(nil)
)
