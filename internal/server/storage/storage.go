// Package storage abstracts where uploaded bytes live. Two backends
// exist: the local filesystem and S3-compatible object storage. Callers
// never branch on the variant; the backend is chosen at startup and
// injected into the upload engine.
package storage

import (
	"context"
	"io"
)

// Store is the uniform contract both backends satisfy.
//
// Delete is best-effort from the caller's perspective: the database
// record is authoritative for whether a file exists to users, so
// callers log delete failures and move on rather than failing the
// surrounding operation.
type Store interface {
	// Put persists the file bytes under the generated filename.
	Put(ctx context.Context, filename string, data io.Reader, size int64, contentType string) error
	// Delete removes the stored object.
	Delete(ctx context.Context, filename string) error
	// URL returns the public URL for a stored file.
	URL(filename string) string
	// Healthy reports whether the backend is usable.
	Healthy(ctx context.Context) error
}
