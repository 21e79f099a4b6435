package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrAlreadyLocked     = errors.New("account already in lockdown")
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// AccountRepository provides account CRUD for one namespace (users or
// admins). Lookups used for authentication treat locked-down accounts
// as nonexistent.
type AccountRepository struct {
	db    *DB
	table string
}

// NewAccountRepository returns the repository for regular user accounts.
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db, table: "accounts"}
}

// NewAdminRepository returns the repository for admin accounts.
func NewAdminRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db, table: "admins"}
}

const accountColumns = "id, username, password_hash, token, lockdown, created_at"

func (r *AccountRepository) scanAccount(row pgx.Row) (*Account, error) {
	a := &Account{}
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Token, &a.Lockdown, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return a, nil
}

// Create inserts a new account record.
func (r *AccountRepository) Create(ctx context.Context, a *Account) error {
	_, err := r.db.Pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, username, password_hash, token, lockdown, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.table),
		a.ID, a.Username, a.PasswordHash, a.Token, a.Lockdown, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByUsername finds an active account by username. Locked-down
// accounts are reported as not found.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	row := r.db.Pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM %s WHERE username = $1 AND lockdown = FALSE
	`, accountColumns, r.table), username)
	return r.scanAccount(row)
}

// GetByToken finds an active account by bearer token. Locked-down
// accounts are reported as not found.
func (r *AccountRepository) GetByToken(ctx context.Context, token string) (*Account, error) {
	row := r.db.Pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM %s WHERE token = $1 AND lockdown = FALSE
	`, accountColumns, r.table), token)
	return r.scanAccount(row)
}

// TokenExists reports whether any account in the namespace holds the
// token, locked-down accounts included, so a token is never reissued
// while its old holder is mid-purge.
func (r *AccountRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT EXISTS(SELECT 1 FROM %s WHERE token = $1)", r.table,
	), token).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return exists, nil
}

// UpdateToken atomically replaces the account's bearer token. The old
// token is invalid for any request that resolves after the commit.
func (r *AccountRepository) UpdateToken(ctx context.Context, username, token string) error {
	tag, err := r.db.Pool.Exec(ctx, fmt.Sprintf(
		"UPDATE %s SET token = $1 WHERE username = $2 AND lockdown = FALSE", r.table,
	), token, username)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	tag, err := r.db.Pool.Exec(ctx, fmt.Sprintf(
		"UPDATE %s SET password_hash = $1 WHERE username = $2 AND lockdown = FALSE", r.table,
	), passwordHash, username)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// BeginLockdown flips the lockdown flag in a single conditional UPDATE,
// so concurrent deletion requests cannot both succeed. Returns
// ErrAlreadyLocked when the account exists but is already scheduled.
func (r *AccountRepository) BeginLockdown(ctx context.Context, username string) error {
	tag, err := r.db.Pool.Exec(ctx, fmt.Sprintf(
		"UPDATE %s SET lockdown = TRUE WHERE username = $1 AND lockdown = FALSE", r.table,
	), username)
	if err != nil {
		return fmt.Errorf("failed to begin lockdown: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = r.db.Pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT EXISTS(SELECT 1 FROM %s WHERE username = $1)", r.table,
	), username).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if exists {
		return ErrAlreadyLocked
	}
	return ErrAccountNotFound
}

// Delete removes the account record. Used by the purge drain once all
// owned uploads are gone.
func (r *AccountRepository) Delete(ctx context.Context, username string) error {
	tag, err := r.db.Pool.Exec(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE username = $1", r.table,
	), username)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ListLockedDown returns the usernames of all accounts awaiting purge.
// Called at startup so an interrupted drain resumes.
func (r *AccountRepository) ListLockedDown(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(
		"SELECT username FROM %s WHERE lockdown = TRUE", r.table,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to query locked accounts: %w", err)
	}
	defer rows.Close()

	var usernames []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		usernames = append(usernames, u)
	}
	return usernames, rows.Err()
}

// List returns all accounts in the namespace, newest first, lockdown
// rows included (the admin dashboard shows accounts mid-purge).
func (r *AccountRepository) List(ctx context.Context) ([]*Account, error) {
	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY created_at DESC", accountColumns, r.table,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a := &Account{}
		if err := rows.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Token, &a.Lockdown, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Count returns the number of accounts in the namespace.
func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", r.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}
