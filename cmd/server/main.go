package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stash/internal/server/api"
	"stash/internal/server/config"
	"stash/internal/server/database"
	"stash/internal/server/service"
	"stash/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_backend", cfg.StorageBackend,
		"max_file_size", cfg.MaxFileSize,
		"invite_only", cfg.InviteOnly,
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize storage backend
	store, err := newStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Repositories
	users := database.NewAccountRepository(db)
	admins := database.NewAdminRepository(db)
	uploads := database.NewUploadRepository(db)
	keys := database.NewKeyRepository(db)

	// Purge worker: resumes any interrupted account deletion on startup.
	purgeCtx, purgeCancel := context.WithCancel(context.Background())
	purger := service.NewPurger(users, uploads, store)
	purger.Start(purgeCtx)

	// Services
	accountSvc := service.NewAccountService(users, admins, keys, purger, cfg.InviteOnly)
	uploadSvc := service.NewUploadService(uploads, store, cfg.MaxFileSize, cfg.FilenameLength)

	if err := bootstrapAdmin(ctx, cfg, admins, accountSvc); err != nil {
		slog.Error("failed to bootstrap admin account", "error", err)
		os.Exit(1)
	}

	// Setup HTTP router
	handler := api.NewHandler(accountSvc, uploadSvc, db, store)
	mw := api.Middlewares{
		UserToken:     api.TokenAuth(users.GetByToken, false),
		AdminToken:    api.TokenAuth(admins.GetByToken, true),
		UserPassword:  api.PasswordAuth(accountSvc.Login, false),
		AdminPassword: api.PasswordAuth(accountSvc.AdminLogin, true),
	}
	e := api.SetupRouter(handler, cfg, mw)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop purge worker; an unfinished drain is resumed on next start.
	purgeCancel()
	purger.Wait()

	slog.Info("server exited cleanly")
}

// newStore builds the storage backend selected by config.
func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendS3:
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.S3Region,
			AccessKeyID:    cfg.S3AccessKeyID,
			SecretKey:      cfg.S3SecretKey,
			Endpoint:       cfg.S3Endpoint,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("s3 storage initialized", "bucket", cfg.S3Bucket, "region", cfg.S3Region)
		return store, nil
	default:
		store := storage.NewFileSystemStore(cfg.StoragePath, cfg.BaseURL)
		if err := store.EnsureDir(); err != nil {
			return nil, err
		}
		slog.Info("file storage initialized", "path", cfg.StoragePath)
		return store, nil
	}
}

// bootstrapAdmin creates the initial admin account when the admin table
// is empty and a password is configured. Without it a fresh deployment
// has no way to mint registration keys or reach the admin API.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, admins *database.AccountRepository, svc *service.AccountService) error {
	count, err := admins.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if cfg.AdminPassword == "" {
		slog.Warn("no admin accounts exist and ADMIN_PASSWORD is unset, skipping bootstrap")
		return nil
	}

	account, err := svc.CreateAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return err
	}
	slog.Info("bootstrap admin created", "username", account.Username)
	return nil
}
