package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"stash/internal/server/auth"
	"stash/internal/server/database"
	"stash/internal/server/service"
	"stash/internal/server/storage"
)

// Handler contains the HTTP handlers for the stash API.
type Handler struct {
	accounts *service.AccountService
	uploads  *service.UploadService
	db       *database.DB
	store    storage.Store
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(accounts *service.AccountService, uploads *service.UploadService, db *database.DB, store storage.Store) *Handler {
	return &Handler{accounts: accounts, uploads: uploads, db: db, store: store}
}

// HandleSignup handles POST /api/auth/signup.
// Form fields: username, password, and registration_key in invite-only mode.
func (h *Handler) HandleSignup(c echo.Context) error {
	account, err := h.accounts.Signup(
		c.Request().Context(),
		c.FormValue("username"),
		c.FormValue("password"),
		c.FormValue("registration_key"),
	)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"username": account.Username,
		"token":    account.Token,
	})
}

// HandleLogin handles POST /api/auth/login and POST /api/admin/auth/login.
// The PasswordAuth middleware has already resolved the account.
func (h *Handler) HandleLogin(c echo.Context) error {
	account := currentAccount(c)
	return c.JSON(http.StatusOK, echo.Map{
		"username": account.Username,
		"token":    account.Token,
	})
}

// HandleRotateToken handles POST /api/auth/token.
// Issues a fresh token; the presented one stops working immediately.
func (h *Handler) HandleRotateToken(c echo.Context) error {
	account := currentAccount(c)

	token, err := h.accounts.RotateToken(c.Request().Context(), isAdmin(c), account.Username)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token})
}

// HandleChangePassword handles POST /api/auth/password.
// Form fields: current_password, new_password.
func (h *Handler) HandleChangePassword(c echo.Context) error {
	account := currentAccount(c)

	err := h.accounts.ChangePassword(
		c.Request().Context(),
		isAdmin(c),
		account.Username,
		c.FormValue("current_password"),
		c.FormValue("new_password"),
	)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// HandleDeleteAccount handles DELETE /api/auth/account.
// Marks the caller's account for deletion; the purge runs in the background.
func (h *Handler) HandleDeleteAccount(c echo.Context) error {
	account := currentAccount(c)

	if err := h.accounts.ScheduleDeletion(c.Request().Context(), account.Username); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "account scheduled for deletion"})
}

// HandleUpload handles POST /api/upload.
// Accepts a multipart form with a "file" field.
func (h *Handler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	account := currentAccount(c)
	result, err := h.uploads.Ingest(
		c.Request().Context(),
		account.Username,
		fileHeader.Filename,
		src,
		fileHeader.Size,
	)
	if err != nil {
		return mapServiceError(c, err)
	}

	status := http.StatusCreated
	if result.Deduplicated {
		status = http.StatusOK
	}
	return c.JSON(status, result)
}

// HandleListFiles handles GET /api/files.
// Query params: q (substring filter), cursor, limit.
func (h *Handler) HandleListFiles(c echo.Context) error {
	account := currentAccount(c)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	files, next, err := h.uploads.List(
		c.Request().Context(),
		account.Username,
		c.QueryParam("q"),
		c.QueryParam("cursor"),
		limit,
	)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"files":       files,
		"next_cursor": next,
	})
}

// HandleDeleteFile handles DELETE /api/files/:filename.
// Owners delete their own files; admins delete anything.
func (h *Handler) HandleDeleteFile(c echo.Context) error {
	account := currentAccount(c)

	err := h.uploads.Delete(c.Request().Context(), account.Username, isAdmin(c), c.Param("filename"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "file deleted"})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"
	storeStatus := "available"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}
	if err := h.store.Healthy(c.Request().Context()); err != nil {
		status = "degraded"
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
		"storage":  storeStatus,
	})
}

// mapServiceError translates service-layer errors into HTTP responses.
// Anything unrecognized is reported generically; internals never reach
// the client.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrUsernameLength),
		errors.Is(err, service.ErrUsernameCharset),
		errors.Is(err, service.ErrKeyRequired),
		errors.Is(err, service.ErrBadCursor):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrKeyExhausted),
		errors.Is(err, service.ErrAlreadyScheduled):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrNotOwner):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrStorageWrite):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "failed to store file"})
	default:
		// Password length violations come from the auth package but are
		// caller errors, not server faults.
		if isValidationError(err) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, auth.ErrPasswordLength)
}
