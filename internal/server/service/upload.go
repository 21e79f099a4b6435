package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"stash/internal/server/auth"
	"stash/internal/server/database"
	"stash/internal/server/storage"
)

// maxFilenameAttempts caps the generate-until-unique filename loop,
// mirroring the token issuance retry.
const maxFilenameAttempts = 10

// extensionPattern accepts a plain dot-prefixed alphanumeric extension.
// Anything else (double dots, separators, absurd length) is dropped and
// the file is served extensionless.
var extensionPattern = regexp.MustCompile(`^\.[a-zA-Z0-9]{1,10}$`)

// IngestResult is returned after a successful (or deduplicated) upload.
type IngestResult struct {
	URL          string `json:"url"`
	Filename     string `json:"filename"`
	Deduplicated bool   `json:"deduplicated"`
}

// UploadService is the content-addressed upload engine: it hashes
// incoming bytes, short-circuits duplicates, generates collision-free
// public filenames, and delegates persistence to the storage backend.
type UploadService struct {
	repo           UploadStore
	store          storage.Store
	maxFileSize    int64
	filenameLength int
}

// NewUploadService creates a new upload service.
func NewUploadService(repo UploadStore, store storage.Store, maxFileSize int64, filenameLength int) *UploadService {
	return &UploadService{
		repo:           repo,
		store:          store,
		maxFileSize:    maxFileSize,
		filenameLength: filenameLength,
	}
}

// Ingest processes an incoming upload for owner:
//
//  1. Reject oversized payloads before hashing.
//  2. Hash the bytes; if an upload with the same hash exists, return
//     its URL without touching storage or inserting a record. The
//     first uploader keeps ownership of the shared object.
//  3. Generate a unique random filename carrying the original
//     extension.
//  4. Persist via the storage backend, then insert the record. A
//     failed insert rolls the stored object back so no orphan remains.
func (s *UploadService) Ingest(ctx context.Context, owner, originalName string, data io.Reader, size int64) (*IngestResult, error) {
	if size > s.maxFileSize {
		return nil, ErrFileTooLarge
	}

	// Buffer while hashing; the declared size is client-supplied, so
	// the limit is enforced again on the actual bytes.
	hasher := sha256.New()
	var buf bytes.Buffer
	n, err := io.Copy(io.MultiWriter(&buf, hasher), io.LimitReader(data, s.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload data: %w", err)
	}
	if n > s.maxFileSize {
		return nil, ErrFileTooLarge
	}

	contentHash := hex.EncodeToString(hasher.Sum(nil))

	existing, err := s.repo.GetByHash(ctx, contentHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		slog.Info("duplicate content, returning existing upload",
			"hash", contentHash,
			"filename", existing.Filename,
			"requested_by", owner,
		)
		return &IngestResult{
			URL:          s.store.URL(existing.Filename),
			Filename:     existing.Filename,
			Deduplicated: true,
		}, nil
	}

	filename, err := s.generateFilename(ctx, originalName)
	if err != nil {
		return nil, err
	}

	contentType := sniffContentType(buf.Bytes())
	if err := s.store.Put(ctx, filename, bytes.NewReader(buf.Bytes()), n, contentType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	upload := &database.Upload{
		ID:           uuid.New(),
		Filename:     filename,
		OriginalName: sanitizeOriginalName(originalName),
		ContentHash:  contentHash,
		Size:         n,
		Owner:        owner,
		UploadedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, upload); err != nil {
		// Roll back the stored object so storage and records agree.
		if delErr := s.store.Delete(ctx, filename); delErr != nil {
			slog.Warn("failed to clean up stored file after insert failure",
				"filename", filename, "error", delErr)
		}
		return nil, fmt.Errorf("failed to create upload record: %w", err)
	}

	slog.Info("upload ingested",
		"filename", filename,
		"owner", owner,
		"size", n,
		"hash", contentHash,
	)
	return &IngestResult{
		URL:      s.store.URL(filename),
		Filename: filename,
	}, nil
}

// Delete removes an upload. Only the attributed owner may delete it,
// unless the caller is an admin. The storage delete is best-effort: an
// unreachable backend never blocks record removal.
func (s *UploadService) Delete(ctx context.Context, caller string, isAdmin bool, filename string) error {
	upload, err := s.repo.GetByFilename(ctx, filename)
	if err != nil {
		if errors.Is(err, database.ErrUploadNotFound) {
			return ErrNotFound
		}
		return err
	}

	if !isAdmin && upload.Owner != caller {
		return ErrNotOwner
	}

	if err := s.store.Delete(ctx, filename); err != nil {
		slog.Warn("failed to delete stored file, removing record anyway",
			"filename", filename, "error", err)
	}

	if err := s.repo.Delete(ctx, filename); err != nil {
		if errors.Is(err, database.ErrUploadNotFound) {
			return ErrNotFound
		}
		return err
	}

	slog.Info("upload deleted", "filename", filename, "by", caller, "admin", isAdmin)
	return nil
}

// FileInfo is one row of a listing page.
type FileInfo struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	Owner        string    `json:"owner"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// List returns a page of uploads most-recent-first, filtered to owner
// (empty owner lists everything, admin only) and an optional substring
// query. cursor is the opaque value returned with the previous page
// (uploaded-at plus row id, so rows sharing a timestamp are never
// skipped); empty for the first page. The second return value is the
// cursor for the next page, empty once exhausted.
func (s *UploadService) List(ctx context.Context, owner, query, cursor string, limit int) ([]FileInfo, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	before, beforeID, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	uploads, err := s.repo.List(ctx, owner, query, before, beforeID, limit)
	if err != nil {
		return nil, "", err
	}

	files := make([]FileInfo, 0, len(uploads))
	for _, u := range uploads {
		files = append(files, FileInfo{
			Filename:     u.Filename,
			OriginalName: u.OriginalName,
			URL:          s.store.URL(u.Filename),
			Size:         u.Size,
			Owner:        u.Owner,
			UploadedAt:   u.UploadedAt,
		})
	}

	next := ""
	if len(uploads) == limit {
		last := uploads[len(uploads)-1]
		next = last.UploadedAt.Format(time.RFC3339Nano) + "," + last.ID.String()
	}
	return files, next, nil
}

// parseCursor splits a pagination cursor into its timestamp and row-id
// keyset components. An empty cursor yields zero values (first page).
func parseCursor(cursor string) (time.Time, uuid.UUID, error) {
	if cursor == "" {
		return time.Time{}, uuid.UUID{}, nil
	}
	ts, idPart, ok := strings.Cut(cursor, ",")
	if !ok {
		return time.Time{}, uuid.UUID{}, ErrBadCursor
	}
	before, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, uuid.UUID{}, ErrBadCursor
	}
	beforeID, err := uuid.Parse(idPart)
	if err != nil {
		return time.Time{}, uuid.UUID{}, ErrBadCursor
	}
	return before, beforeID, nil
}

// Stats returns aggregate server statistics.
func (s *UploadService) Stats(ctx context.Context) (*database.Stats, error) {
	return s.repo.GetStats(ctx)
}

// generateFilename produces a random URL-safe name with the sanitized
// original extension, regenerating on collision.
func (s *UploadService) generateFilename(ctx context.Context, originalName string) (string, error) {
	ext := sanitizeExtension(originalName)

	for attempt := 0; attempt < maxFilenameAttempts; attempt++ {
		name, err := auth.NewToken(s.filenameLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate filename: %w", err)
		}
		filename := name + ext

		exists, err := s.repo.FilenameExists(ctx, filename)
		if err != nil {
			return "", err
		}
		if !exists {
			return filename, nil
		}
		slog.Warn("filename collision, regenerating", "attempt", attempt+1)
	}
	return "", fmt.Errorf("%w: filename space exhausted after %d attempts", ErrInternal, maxFilenameAttempts)
}

// sanitizeExtension extracts the original extension when it is a plain
// dot-prefixed alphanumeric suffix; anything suspicious is dropped.
func sanitizeExtension(originalName string) string {
	ext := filepath.Ext(sanitizeOriginalName(originalName))
	if !extensionPattern.MatchString(ext) {
		return ""
	}
	return strings.ToLower(ext)
}

// sanitizeOriginalName strips directory components and limits length.
func sanitizeOriginalName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if len(name) > 255 {
		ext := filepath.Ext(name)
		// An "extension" longer than the whole budget (dot far from the
		// end) is not worth preserving; truncate the name flat instead.
		if len(ext) > 255 {
			ext = ""
		}
		name = name[:255-len(ext)] + ext
	}
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}
	return name
}

// sniffContentType detects the MIME type from the first 512 bytes.
func sniffContentType(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	return http.DetectContentType(data)
}
