package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stash/internal/server/database"
)

// In-memory store fakes mirroring the repository semantics, shared by
// the service tests.

type fakeAccounts struct {
	mu        sync.Mutex
	accounts  map[string]*database.Account // keyed by username
	createErr error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: make(map[string]*database.Account)}
}

func (f *fakeAccounts) Create(ctx context.Context, a *database.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.accounts[a.Username]; ok {
		return database.ErrDuplicateUsername
	}
	clone := *a
	f.accounts[a.Username] = &clone
	return nil
}

func (f *fakeAccounts) GetByUsername(ctx context.Context, username string) (*database.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[username]
	if !ok || a.Lockdown {
		return nil, database.ErrAccountNotFound
	}
	clone := *a
	return &clone, nil
}

func (f *fakeAccounts) GetByToken(ctx context.Context, token string) (*database.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Token == token && !a.Lockdown {
			clone := *a
			return &clone, nil
		}
	}
	return nil, database.ErrAccountNotFound
}

func (f *fakeAccounts) TokenExists(ctx context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Token == token {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccounts) UpdateToken(ctx context.Context, username, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[username]
	if !ok || a.Lockdown {
		return database.ErrAccountNotFound
	}
	a.Token = token
	return nil
}

func (f *fakeAccounts) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[username]
	if !ok || a.Lockdown {
		return database.ErrAccountNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (f *fakeAccounts) BeginLockdown(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[username]
	if !ok {
		return database.ErrAccountNotFound
	}
	if a.Lockdown {
		return database.ErrAlreadyLocked
	}
	a.Lockdown = true
	return nil
}

func (f *fakeAccounts) Delete(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[username]; !ok {
		return database.ErrAccountNotFound
	}
	delete(f.accounts, username)
	return nil
}

func (f *fakeAccounts) ListLockedDown(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var locked []string
	for _, a := range f.accounts {
		if a.Lockdown {
			locked = append(locked, a.Username)
		}
	}
	return locked, nil
}

func (f *fakeAccounts) List(ctx context.Context) ([]*database.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*database.Account
	for _, a := range f.accounts {
		clone := *a
		out = append(out, &clone)
	}
	return out, nil
}

type fakeUploads struct {
	mu        sync.Mutex
	uploads   map[string]*database.Upload // keyed by filename
	createErr error
	deleteErr error
}

func newFakeUploads() *fakeUploads {
	return &fakeUploads{uploads: make(map[string]*database.Upload)}
}

func (f *fakeUploads) Create(ctx context.Context, u *database.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	clone := *u
	f.uploads[u.Filename] = &clone
	return nil
}

func (f *fakeUploads) GetByFilename(ctx context.Context, filename string) (*database.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.uploads[filename]
	if !ok {
		return nil, database.ErrUploadNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUploads) GetByHash(ctx context.Context, hash string) (*database.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.uploads {
		if u.ContentHash == hash {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeUploads) FilenameExists(ctx context.Context, filename string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.uploads[filename]
	return ok, nil
}

func (f *fakeUploads) Delete(ctx context.Context, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.uploads[filename]; !ok {
		return database.ErrUploadNotFound
	}
	delete(f.uploads, filename)
	return nil
}

func (f *fakeUploads) FirstByOwner(ctx context.Context, owner string) (*database.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.uploads {
		if u.Owner == owner {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeUploads) List(ctx context.Context, owner, query string, before time.Time, beforeID uuid.UUID, limit int) ([]*database.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if before.IsZero() {
		before = time.Now().Add(time.Hour)
		beforeID = uuid.Max
	}
	keysetBefore := func(u *database.Upload) bool {
		if !u.UploadedAt.Equal(before) {
			return u.UploadedAt.Before(before)
		}
		return bytes.Compare(u.ID[:], beforeID[:]) < 0
	}
	var out []*database.Upload
	for _, u := range f.uploads {
		if owner != "" && u.Owner != owner {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(u.Filename), strings.ToLower(query)) &&
			!strings.Contains(strings.ToLower(u.OriginalName), strings.ToLower(query)) {
			continue
		}
		if !keysetBefore(u) {
			continue
		}
		clone := *u
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeUploads) GetStats(ctx context.Context) (*database.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &database.Stats{}
	for _, u := range f.uploads {
		stats.TotalUploads++
		stats.StorageUsed += u.Size
	}
	return stats, nil
}

func (f *fakeUploads) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

type fakeKeys struct {
	mu   sync.Mutex
	keys map[string]int // key -> uses left
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{keys: make(map[string]int)}
}

func (f *fakeKeys) Create(ctx context.Context, k *database.RegistrationKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[k.Key] = k.UsesLeft
	return nil
}

func (f *fakeKeys) Redeem(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	uses, ok := f.keys[key]
	if !ok || uses < 1 {
		return database.ErrKeyExhausted
	}
	if uses == 1 {
		delete(f.keys, key)
	} else {
		f.keys[key] = uses - 1
	}
	return nil
}

func (f *fakeKeys) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; !ok {
		return database.ErrKeyExhausted
	}
	delete(f.keys, key)
	return nil
}

func (f *fakeKeys) usesLeft(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[key]
}

func (f *fakeKeys) List(ctx context.Context) ([]*database.RegistrationKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*database.RegistrationKey
	for k, uses := range f.keys {
		out = append(out, &database.RegistrationKey{Key: k, UsesLeft: uses})
	}
	return out, nil
}

// fakeStore is an in-memory storage backend with failure injection.
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putCalls  int
	deleted   []string
	putErr    error
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Put(ctx context.Context, filename string, data io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.putErr != nil {
		return f.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[filename] = b
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, filename)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, filename)
	return nil
}

func (f *fakeStore) URL(filename string) string {
	return "http://localhost:8080/f/" + filename
}

func (f *fakeStore) Healthy(ctx context.Context) error { return nil }

func (f *fakeStore) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putCalls
}
