// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/oliverandrich/go-accounts/internal/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/middleware"
	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/services/session"
	"codeberg.org/oliverandrich/go-accounts/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessions(t *testing.T) *session.Manager {
	t.Helper()
	m, err := session.NewManager(&config.SessionConfig{CookieName: "_session", MaxAge: 3600}, false)
	require.NoError(t, err)
	return m
}

// captured runs LoadAccount and returns the account seen by the next handler.
func captured(t *testing.T, sessions *session.Manager, loader middleware.AccountLoader, cookie *http.Cookie) *models.Account {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var seen *models.Account
	h := middleware.LoadAccount(sessions, loader)(func(c echo.Context) error {
		seen = auth.GetAccount(c.Request().Context())
		return nil
	})
	require.NoError(t, h(c))
	return seen
}

func TestLoadAccount(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	sessions := newSessions(t)
	acct := testutil.NewTestAccount(t, repo, "alice@example.com", true)

	cookie, err := sessions.Create(acct.ID, acct.Email)
	require.NoError(t, err)

	seen := captured(t, sessions, repo, cookie)
	require.NotNil(t, seen)
	assert.Equal(t, acct.ID, seen.ID)
}

func TestLoadAccount_NoCookie(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	assert.Nil(t, captured(t, newSessions(t), repo, nil))
}

func TestLoadAccount_TamperedCookie(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	cookie := &http.Cookie{Name: "_session", Value: "garbage"}
	assert.Nil(t, captured(t, newSessions(t), repo, cookie))
}

func TestLoadAccount_InactiveOrMissingAccount(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	sessions := newSessions(t)
	inactive := testutil.NewTestAccount(t, repo, "pending@example.com", false)

	cookie, err := sessions.Create(inactive.ID, inactive.Email)
	require.NoError(t, err)
	assert.Nil(t, captured(t, sessions, repo, cookie))

	cookie, err = sessions.Create(9999, "ghost@example.com")
	require.NoError(t, err)
	assert.Nil(t, captured(t, sessions, repo, cookie))
}

func TestRequireAuth(t *testing.T) {
	e := echo.New()
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/account", nil), httptest.NewRecorder())
	err := middleware.RequireAuth(next)(c)
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusUnauthorized, he.Code)

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	req = req.WithContext(auth.WithAccount(req.Context(), &models.Account{ID: 1}))
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	require.NoError(t, middleware.RequireAuth(next)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireStaff(t *testing.T) {
	e := echo.New()
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	tests := []struct {
		name   string
		acct   *models.Account
		status int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"regular account", &models.Account{ID: 1, IsActive: true}, http.StatusForbidden},
		{"staff", &models.Account{ID: 2, IsActive: true, IsStaff: true}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/accounts/1", nil)
			if tt.acct != nil {
				req = req.WithContext(auth.WithAccount(req.Context(), tt.acct))
			}
			rec := httptest.NewRecorder()
			err := middleware.RequireStaff(next)(e.NewContext(req, rec))

			if tt.status == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, http.StatusOK, rec.Code)
				return
			}
			var he *echo.HTTPError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, tt.status, he.Code)
		})
	}
}
