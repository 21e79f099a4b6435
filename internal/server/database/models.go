package database

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a user or admin account. Users and admins live in
// separate tables (namespaces); the struct shape is shared.
type Account struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	Token        string
	Lockdown     bool
	CreatedAt    time.Time
}

// Upload represents a stored file. ContentHash is the SHA-256 of the
// file bytes; Owner is the username of the first uploader.
type Upload struct {
	ID           uuid.UUID
	Filename     string
	OriginalName string
	ContentHash  string
	Size         int64
	Owner        string
	UploadedAt   time.Time
}

// RegistrationKey is an invite code consumed at signup while the
// service runs in invite-only mode.
type RegistrationKey struct {
	ID        uuid.UUID
	Key       string
	UsesLeft  int
	CreatedAt time.Time
}

// Stats holds aggregate server statistics.
type Stats struct {
	TotalAccounts int64
	TotalUploads  int64
	StorageUsed   int64
}
