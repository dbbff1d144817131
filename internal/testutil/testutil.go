// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/database"
	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestAccount creates an account in the database.
func NewTestAccount(t *testing.T, repo *repository.Repository, email string, active bool) *models.Account {
	t.Helper()
	acct := &models.Account{
		Email:        email,
		Name:         "Test User",
		PasswordHash: "not-a-real-hash",
		IsActive:     active,
	}
	require.NoError(t, repo.Create(context.Background(), acct))
	return acct
}

// WithChallenge stores a challenge on acct.
func WithChallenge(t *testing.T, repo *repository.Repository, acct *models.Account, purpose models.Purpose, token, code string, createdAt time.Time) {
	t.Helper()
	acct.Challenge = &models.Challenge{
		Purpose:   purpose,
		Token:     token,
		Code:      code,
		CreatedAt: createdAt,
	}
	require.NoError(t, repo.Save(context.Background(), acct))
}

// Clock is a settable time source for tests.
type Clock struct {
	T time.Time
}

// NewClock returns a clock fixed at a round UTC instant.
func NewClock() *Clock {
	return &Clock{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	return c.T
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithHeaders creates an Echo context with custom headers.
func NewEchoContextWithHeaders(e *echo.Echo, method, path string, body io.Reader, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
