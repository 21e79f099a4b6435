package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"stash/internal/server/database"
)

// Context keys for the resolved caller identity.
const (
	accountKey = "stash/account"
	adminKey   = "stash/is_admin"
)

// TokenResolver resolves a bearer token to an active account. Lookups
// filter locked-down accounts, so an account mid-purge is
// indistinguishable from a nonexistent one.
type TokenResolver func(ctx context.Context, token string) (*database.Account, error)

// PasswordAuthFunc authenticates a username/password pair.
type PasswordAuthFunc func(ctx context.Context, username, password string) (*database.Account, error)

// TokenAuth gates a route on a valid bearer token. The token is read
// from the Authorization header (Bearer scheme) or the "token" form
// field. Every rejection looks the same to the caller.
func TokenAuth(resolve TokenResolver, admin bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			account, err := resolve(c.Request().Context(), token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(accountKey, account)
			c.Set(adminKey, admin)
			return next(c)
		}
	}
}

// PasswordAuth gates a route on a valid username/password pair taken
// from the request form. Missing fields, unknown usernames, locked-down
// accounts and wrong passwords are rejected identically.
func PasswordAuth(authenticate PasswordAuthFunc, admin bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.FormValue("username")
			password := c.FormValue("password")
			if username == "" || password == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
			}

			account, err := authenticate(c.Request().Context(), username, password)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
			}

			c.Set(accountKey, account)
			c.Set(adminKey, admin)
			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.FormValue("token")
}

// currentAccount returns the account resolved by the auth middleware.
func currentAccount(c echo.Context) *database.Account {
	account, _ := c.Get(accountKey).(*database.Account)
	return account
}

// isAdmin reports whether the caller authenticated via the admin namespace.
func isAdmin(c echo.Context) bool {
	admin, _ := c.Get(adminKey).(bool)
	return admin
}
