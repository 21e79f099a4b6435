package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrKeyExhausted = errors.New("registration key invalid or exhausted")

// KeyRepository manages registration keys for invite-only signup.
type KeyRepository struct {
	db *DB
}

// NewKeyRepository creates a new KeyRepository.
func NewKeyRepository(db *DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// Create inserts a new registration key.
func (r *KeyRepository) Create(ctx context.Context, k *RegistrationKey) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO registration_keys (id, key, uses_left, created_at)
		VALUES ($1, $2, $3, $4)
	`, k.ID, k.Key, k.UsesLeft, k.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create registration key: %w", err)
	}
	return nil
}

// Redeem consumes one use of the key in a single conditional UPDATE, so
// a key with one use left cannot be redeemed twice by concurrent
// signups. Exhausted and unknown keys fail identically.
func (r *KeyRepository) Redeem(ctx context.Context, key string) error {
	var usesLeft int
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE registration_keys
		SET uses_left = uses_left - 1
		WHERE key = $1 AND uses_left > 0
		RETURNING uses_left
	`, key).Scan(&usesLeft)
	if err != nil {
		return ErrKeyExhausted
	}

	if usesLeft == 0 {
		// Spent keys are removed; failure here only delays the cleanup
		// since uses_left = 0 rows can never be redeemed again.
		if _, err := r.db.Pool.Exec(ctx,
			"DELETE FROM registration_keys WHERE key = $1 AND uses_left = 0", key,
		); err != nil {
			slog.Warn("failed to remove spent registration key", "error", err)
		}
	}
	return nil
}

// Delete removes a registration key regardless of remaining uses.
func (r *KeyRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM registration_keys WHERE key = $1", key)
	if err != nil {
		return fmt.Errorf("failed to delete registration key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyExhausted
	}
	return nil
}

// List returns all outstanding registration keys, newest first.
func (r *KeyRepository) List(ctx context.Context) ([]*RegistrationKey, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, key, uses_left, created_at
		FROM registration_keys ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list registration keys: %w", err)
	}
	defer rows.Close()

	var keys []*RegistrationKey
	for rows.Next() {
		k := &RegistrationKey{}
		if err := rows.Scan(&k.ID, &k.Key, &k.UsesLeft, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan registration key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
