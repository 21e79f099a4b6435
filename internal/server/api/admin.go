package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Admin-only handlers. All routes here sit behind the admin TokenAuth
// middleware; the handlers themselves never re-check the namespace.

// HandleListUsers handles GET /api/admin/users.
func (h *Handler) HandleListUsers(c echo.Context) error {
	accounts, err := h.accounts.ListUsers(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}

	users := make([]echo.Map, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, echo.Map{
			"username":   a.Username,
			"lockdown":   a.Lockdown,
			"created_at": a.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

// HandleDeleteUser handles DELETE /api/admin/users/:username.
// Responds as soon as the account is locked; the purge drain runs in
// the background.
func (h *Handler) HandleDeleteUser(c echo.Context) error {
	username := c.Param("username")

	if err := h.accounts.ScheduleDeletion(c.Request().Context(), username); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"message":  "account scheduled for deletion",
		"username": username,
	})
}

// HandleCreateAdmin handles POST /api/admin/admins.
func (h *Handler) HandleCreateAdmin(c echo.Context) error {
	account, err := h.accounts.CreateAdmin(
		c.Request().Context(),
		c.FormValue("username"),
		c.FormValue("password"),
	)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"username": account.Username,
		"token":    account.Token,
	})
}

// HandleCreateKey handles POST /api/admin/keys.
// Form field: uses (defaults to 1).
func (h *Handler) HandleCreateKey(c echo.Context) error {
	uses := 1
	if v := c.FormValue("uses"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "uses must be a positive integer"})
		}
		uses = n
	}

	key, err := h.accounts.CreateKey(c.Request().Context(), uses)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"key":       key.Key,
		"uses_left": key.UsesLeft,
	})
}

// HandleListKeys handles GET /api/admin/keys.
func (h *Handler) HandleListKeys(c echo.Context) error {
	keys, err := h.accounts.ListKeys(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}

	out := make([]echo.Map, 0, len(keys))
	for _, k := range keys {
		out = append(out, echo.Map{
			"key":        k.Key,
			"uses_left":  k.UsesLeft,
			"created_at": k.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"keys": out})
}

// HandleDeleteKey handles DELETE /api/admin/keys/:key.
func (h *Handler) HandleDeleteKey(c echo.Context) error {
	if err := h.accounts.DeleteKey(c.Request().Context(), c.Param("key")); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "registration key deleted"})
}

// HandleAdminListFiles handles GET /api/admin/files.
// Query params: owner (optional filter), q, cursor, limit.
func (h *Handler) HandleAdminListFiles(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	files, next, err := h.uploads.List(
		c.Request().Context(),
		c.QueryParam("owner"),
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

// HandleStats handles GET /api/admin/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.uploads.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve stats"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_accounts":     stats.TotalAccounts,
		"total_uploads":      stats.TotalUploads,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanizeBytes(stats.StorageUsed),
	})
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
