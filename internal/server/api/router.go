package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"stash/internal/server/config"
)

// Middlewares bundles the per-namespace auth middleware the router
// needs; built in main from the account repositories and service.
type Middlewares struct {
	UserToken     echo.MiddlewareFunc
	AdminToken    echo.MiddlewareFunc
	UserPassword  echo.MiddlewareFunc
	AdminPassword echo.MiddlewareFunc
}

// SetupRouter creates and configures the echo router with all routes.
func SetupRouter(handler *Handler, cfg *config.Config, mw Middlewares) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())

	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	e.GET("/health", handler.HandleHealth)

	// Account lifecycle
	e.POST("/api/auth/signup", handler.HandleSignup, limiter.Middleware())
	e.POST("/api/auth/login", handler.HandleLogin, limiter.Middleware(), mw.UserPassword)
	e.POST("/api/auth/token", handler.HandleRotateToken, mw.UserToken)
	e.POST("/api/auth/password", handler.HandleChangePassword, mw.UserToken)
	e.DELETE("/api/auth/account", handler.HandleDeleteAccount, mw.UserToken)

	// Files
	e.POST("/api/upload", handler.HandleUpload, limiter.Middleware(), mw.UserToken)
	e.GET("/api/files", handler.HandleListFiles, mw.UserToken)
	e.DELETE("/api/files/:filename", handler.HandleDeleteFile, mw.UserToken)

	// Admin
	e.POST("/api/admin/auth/login", handler.HandleLogin, limiter.Middleware(), mw.AdminPassword)
	e.POST("/api/admin/auth/token", handler.HandleRotateToken, mw.AdminToken)
	e.POST("/api/admin/admins", handler.HandleCreateAdmin, mw.AdminToken)
	e.GET("/api/admin/users", handler.HandleListUsers, mw.AdminToken)
	e.DELETE("/api/admin/users/:username", handler.HandleDeleteUser, mw.AdminToken)
	e.POST("/api/admin/keys", handler.HandleCreateKey, mw.AdminToken)
	e.GET("/api/admin/keys", handler.HandleListKeys, mw.AdminToken)
	e.DELETE("/api/admin/keys/:key", handler.HandleDeleteKey, mw.AdminToken)
	e.GET("/api/admin/files", handler.HandleAdminListFiles, mw.AdminToken)
	e.DELETE("/api/admin/files/:filename", handler.HandleDeleteFile, mw.AdminToken)
	e.GET("/api/admin/stats", handler.HandleStats, mw.AdminToken)

	// The filesystem backend serves stored files directly; the S3
	// backend hands out public object URLs instead.
	if cfg.StorageBackend == config.BackendFilesystem {
		e.Static("/f", cfg.StoragePath)
	}

	return e
}
