// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware holds echo middleware for session handling.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-accounts/internal/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/services/session"
	"github.com/labstack/echo/v4"
)

// SessionReader parses the session cookie of a request.
type SessionReader interface {
	Parse(r *http.Request) (*session.Data, error)
}

// AccountLoader loads full account data.
type AccountLoader interface {
	FindByID(ctx context.Context, id int64) (*models.Account, error)
}

// LoadAccount puts the account of a valid session into the request context.
// Sessions of deleted or deactivated accounts are ignored.
func LoadAccount(sessions SessionReader, loader AccountLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			data, err := sessions.Parse(r)
			if err != nil || data == nil {
				return next(c)
			}

			acct, err := loader.FindByID(r.Context(), data.AccountID)
			if err != nil {
				slog.Debug("session account not loaded", "account_id", data.AccountID, "error", err)
				return next(c)
			}
			if !acct.IsActive {
				return next(c)
			}

			c.SetRequest(r.WithContext(auth.WithAccount(r.Context(), acct)))
			return next(c)
		}
	}
}

// RequireAuth rejects requests without an authenticated account.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !auth.IsAuthenticated(c.Request().Context()) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Please log in to view this page.")
		}
		return next(c)
	}
}

// RequireStaff rejects requests from accounts without staff rights.
func RequireStaff(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		acct := auth.GetAccount(c.Request().Context())
		if acct == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Please log in to view this page.")
		}
		if !acct.IsStaff {
			return echo.NewHTTPError(http.StatusForbidden, "You do not have permission to perform this action.")
		}
		return next(c)
	}
}
