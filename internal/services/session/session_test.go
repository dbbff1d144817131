// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package session_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/services/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	signingKey = strings.Repeat("a1", 32)
	cipherKey  = strings.Repeat("7e", 32)
)

// newManager returns a manager for the "_accounts" cookie; tweak adjusts the config first.
func newManager(t *testing.T, secure bool, tweak func(*config.SessionConfig)) *session.Manager {
	t.Helper()
	cfg := &config.SessionConfig{
		CookieName: "_accounts",
		MaxAge:     7200,
		HashKey:    signingKey,
	}
	if tweak != nil {
		tweak(cfg)
	}
	mgr, err := session.NewManager(cfg, secure)
	require.NoError(t, err)
	return mgr
}

func requestWith(cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestNewManager_Keys(t *testing.T) {
	tests := []struct {
		name     string
		hashKey  string
		blockKey string
		wantErr  string
	}{
		{name: "signing only", hashKey: signingKey},
		{name: "signing and encryption", hashKey: signingKey, blockKey: cipherKey},
		{name: "generated signing key", hashKey: ""},
		{name: "hash not hex", hashKey: "zz-not-hex", wantErr: "invalid session hash key"},
		{name: "hash too short", hashKey: "a1b2c3d4", wantErr: "must be 32 bytes"},
		{name: "block not hex", hashKey: signingKey, blockKey: "zz-not-hex", wantErr: "invalid session block key"},
		{name: "block too short", hashKey: signingKey, blockKey: "a1b2c3d4", wantErr: "must be 32 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, err := session.NewManager(&config.SessionConfig{
				CookieName: "_accounts",
				MaxAge:     7200,
				HashKey:    tt.hashKey,
				BlockKey:   tt.blockKey,
			}, false)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, mgr)
		})
	}
}

func TestCreate_CookieAttributes(t *testing.T) {
	for _, secure := range []bool{false, true} {
		mgr := newManager(t, secure, nil)

		cookie, err := mgr.Create(501, "frieda@example.com")
		require.NoError(t, err)

		assert.Equal(t, "_accounts", cookie.Name)
		assert.NotEmpty(t, cookie.Value)
		assert.Equal(t, "/", cookie.Path)
		assert.Equal(t, 7200, cookie.MaxAge)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, secure, cookie.Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	mgr := newManager(t, false, nil)
	cookie, err := mgr.Create(501, "frieda@example.com")
	require.NoError(t, err)

	data, err := mgr.Parse(requestWith(cookie))
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, int64(501), data.AccountID)
	assert.Equal(t, "frieda@example.com", data.Email)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), data.ExpiresAt, time.Minute)
}

func TestParse_Encrypted(t *testing.T) {
	mgr := newManager(t, false, func(c *config.SessionConfig) { c.BlockKey = cipherKey })
	cookie, err := mgr.Create(502, "gustav@example.com")
	require.NoError(t, err)
	assert.NotContains(t, cookie.Value, "gustav")

	data, err := mgr.Parse(requestWith(cookie))
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, int64(502), data.AccountID)
}

// Unreadable cookies mean "anonymous", never an error.
func TestParse_Anonymous(t *testing.T) {
	mgr := newManager(t, false, nil)
	valid, err := mgr.Create(503, "hanna@example.com")
	require.NoError(t, err)

	tampered := *valid
	tampered.Value = valid.Value[:len(valid.Value)-4] + "QQQQ"

	foreign, err := newManager(t, false, func(c *config.SessionConfig) { c.HashKey = cipherKey }).
		Create(503, "hanna@example.com")
	require.NoError(t, err)

	tests := map[string]*http.Request{
		"no cookie": requestWith(),
		"garbage":   requestWith(&http.Cookie{Name: "_accounts", Value: "garbage"}),
		"tampered":  requestWith(&tampered),
		"other key": requestWith(foreign),
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			data, err := mgr.Parse(req)
			require.NoError(t, err)
			assert.Nil(t, data)
			assert.False(t, mgr.IsAuthenticated(req))
		})
	}
}

func TestParse_Expired(t *testing.T) {
	mgr := newManager(t, false, func(c *config.SessionConfig) { c.MaxAge = 1 })
	cookie, err := mgr.Create(504, "ingo@example.com")
	require.NoError(t, err)

	time.Sleep(2 * time.Second)

	data, err := mgr.Parse(requestWith(cookie))
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestIsAuthenticated(t *testing.T) {
	mgr := newManager(t, false, nil)
	cookie, err := mgr.Create(505, "jana@example.com")
	require.NoError(t, err)

	assert.True(t, mgr.IsAuthenticated(requestWith(cookie)))
}

func TestClear(t *testing.T) {
	for _, secure := range []bool{false, true} {
		cookie := newManager(t, secure, nil).Clear()

		assert.Equal(t, "_accounts", cookie.Name)
		assert.Empty(t, cookie.Value)
		assert.Equal(t, "/", cookie.Path)
		assert.Equal(t, -1, cookie.MaxAge)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, secure, cookie.Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	}
}
