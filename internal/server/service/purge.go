package service

import (
	"context"
	"log/slog"

	"stash/internal/server/storage"
)

// Purger drains locked-down accounts in the background: every upload
// owned by the account is deleted (storage best-effort, record always),
// then the account record itself is removed. Requests only enqueue;
// the drain runs on the worker goroutine so "scheduled for deletion"
// returns immediately.
//
// The lockdown flag is durable, so a drain interrupted by shutdown is
// resumed by the startup re-scan. The loop condition is "does the
// account still own uploads", never a counter, which makes re-running
// from scratch safe.
type Purger struct {
	accounts AccountStore
	uploads  UploadStore
	store    storage.Store
	jobs     chan string
	done     chan struct{}
}

// NewPurger creates a purge worker. Start must be called before any
// account is scheduled.
func NewPurger(accounts AccountStore, uploads UploadStore, store storage.Store) *Purger {
	return &Purger{
		accounts: accounts,
		uploads:  uploads,
		store:    store,
		jobs:     make(chan string, 64),
		done:     make(chan struct{}),
	}
}

// Enqueue hands a locked-down account to the worker. Never blocks the
// caller: if the queue is full the account is left for the next
// startup re-scan, which finds it by its lockdown flag.
func (p *Purger) Enqueue(username string) {
	select {
	case p.jobs <- username:
	default:
		slog.Warn("purge queue full, deferring to restart re-scan", "username", username)
	}
}

// Start launches the worker goroutine. Accounts already in lockdown
// (from a previous run that was interrupted) are re-enqueued first.
func (p *Purger) Start(ctx context.Context) {
	go func() {
		defer close(p.done)

		locked, err := p.accounts.ListLockedDown(ctx)
		if err != nil {
			slog.Error("failed to scan for locked accounts", "error", err)
		}
		for _, username := range locked {
			slog.Info("resuming interrupted purge", "username", username)
			p.Enqueue(username)
		}

		for {
			select {
			case username := <-p.jobs:
				p.drain(ctx, username)
			case <-ctx.Done():
				slog.Info("purge worker stopping")
				return
			}
		}
	}()
}

// Wait blocks until the worker goroutine has exited.
func (p *Purger) Wait() {
	<-p.done
}

// drain deletes every upload owned by username, then the account
// record. A storage delete failure is logged and the record is removed
// anyway; otherwise one unreachable object would block the account
// purge forever.
func (p *Purger) drain(ctx context.Context, username string) {
	slog.Info("purge drain started", "username", username)

	var removed, storageFailures int
	for {
		upload, err := p.uploads.FirstByOwner(ctx, username)
		if err != nil {
			slog.Error("purge drain aborted, will retry on restart",
				"username", username, "error", err)
			return
		}
		if upload == nil {
			break
		}

		if err := p.store.Delete(ctx, upload.Filename); err != nil {
			slog.Warn("failed to delete stored file during purge",
				"username", username, "filename", upload.Filename, "error", err)
			storageFailures++
		}

		if err := p.uploads.Delete(ctx, upload.Filename); err != nil {
			// Without the record removal the loop would refetch the
			// same upload forever; abort and let the restart re-scan
			// retry the whole drain.
			slog.Error("failed to delete upload record during purge",
				"username", username, "filename", upload.Filename, "error", err)
			return
		}
		removed++
	}

	if err := p.accounts.Delete(ctx, username); err != nil {
		slog.Error("failed to delete account record after drain",
			"username", username, "error", err)
		return
	}

	slog.Info("purge drain complete",
		"username", username,
		"uploads_removed", removed,
		"storage_failures", storageFailures,
	)
}
