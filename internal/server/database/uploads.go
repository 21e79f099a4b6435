package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrUploadNotFound = errors.New("upload not found")

// UploadRepository provides CRUD operations for upload records.
type UploadRepository struct {
	db *DB
}

// NewUploadRepository creates a new UploadRepository.
func NewUploadRepository(db *DB) *UploadRepository {
	return &UploadRepository{db: db}
}

const uploadColumns = "id, filename, original_name, content_hash, size, owner, uploaded_at"

func scanUpload(row pgx.Row) (*Upload, error) {
	u := &Upload{}
	err := row.Scan(&u.ID, &u.Filename, &u.OriginalName, &u.ContentHash, &u.Size, &u.Owner, &u.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUploadNotFound
		}
		return nil, fmt.Errorf("failed to scan upload: %w", err)
	}
	return u, nil
}

// Create inserts a new upload record.
func (r *UploadRepository) Create(ctx context.Context, u *Upload) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO uploads (id, filename, original_name, content_hash, size, owner, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Filename, u.OriginalName, u.ContentHash, u.Size, u.Owner, u.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

// GetByFilename retrieves an upload by its generated filename.
func (r *UploadRepository) GetByFilename(ctx context.Context, filename string) (*Upload, error) {
	row := r.db.Pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM uploads WHERE filename = $1", uploadColumns,
	), filename)
	return scanUpload(row)
}

// GetByHash finds one upload with a matching content hash, or nil when
// no duplicate exists. Drives the dedup short-circuit.
func (r *UploadRepository) GetByHash(ctx context.Context, hash string) (*Upload, error) {
	row := r.db.Pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM uploads WHERE content_hash = $1 LIMIT 1", uploadColumns,
	), hash)
	u, err := scanUpload(row)
	if errors.Is(err, ErrUploadNotFound) {
		return nil, nil // no duplicate, not an error
	}
	return u, err
}

// FilenameExists reports whether a generated filename is already taken.
func (r *UploadRepository) FilenameExists(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM uploads WHERE filename = $1)", filename,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check filename: %w", err)
	}
	return exists, nil
}

// Delete removes an upload record by filename.
func (r *UploadRepository) Delete(ctx context.Context, filename string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM uploads WHERE filename = $1", filename)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadNotFound
	}
	return nil
}

// FirstByOwner returns one upload owned by the username, or nil when
// none remain. The purge drain calls this repeatedly as its loop
// condition.
func (r *UploadRepository) FirstByOwner(ctx context.Context, owner string) (*Upload, error) {
	row := r.db.Pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM uploads WHERE owner = $1 LIMIT 1", uploadColumns,
	), owner)
	u, err := scanUpload(row)
	if errors.Is(err, ErrUploadNotFound) {
		return nil, nil
	}
	return u, err
}

// List returns a page of uploads most-recent-first. An empty owner
// matches all owners (admin listing). query filters by substring match
// on the generated or original filename. (before, beforeID) is the
// keyset cursor: only rows strictly before it are returned, with the id
// as tie-break so rows sharing a timestamp are never skipped. Pass the
// zero time for the first page.
func (r *UploadRepository) List(ctx context.Context, owner, query string, before time.Time, beforeID uuid.UUID, limit int) ([]*Upload, error) {
	if before.IsZero() {
		before = time.Now().Add(time.Hour)
		beforeID = uuid.Max
	}

	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM uploads
		WHERE ($1 = '' OR owner = $1)
		  AND ($2 = '' OR filename ILIKE '%%' || $2 || '%%' OR original_name ILIKE '%%' || $2 || '%%')
		  AND (uploaded_at, id) < ($3, $4)
		ORDER BY uploaded_at DESC, id DESC
		LIMIT $5
	`, uploadColumns), owner, query, before, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		u := &Upload{}
		if err := rows.Scan(&u.ID, &u.Filename, &u.OriginalName, &u.ContentHash, &u.Size, &u.Owner, &u.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// GetStats returns aggregate statistics across all uploads and accounts.
func (r *UploadRepository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM accounts WHERE lockdown = FALSE),
			COUNT(*),
			COALESCE(SUM(size), 0)
		FROM uploads
	`).Scan(&stats.TotalAccounts, &stats.TotalUploads, &stats.StorageUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}
