// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session issues and reads signed session cookies.
package session

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"github.com/gorilla/securecookie"
)

const keyLength = 32

// Data is the payload stored in the session cookie.
type Data struct {
	ExpiresAt time.Time
	Email     string
	AccountID int64
}

// Manager creates, parses and clears session cookies.
type Manager struct {
	codec  *securecookie.SecureCookie
	name   string
	maxAge int
	secure bool
}

// NewManager creates a session manager. In development an empty hash key is
// replaced by a random one, which invalidates sessions on restart.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey, "hash")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		slog.Warn("session hash key not set, generating a random key")
		hashKey = securecookie.GenerateRandomKey(keyLength)
	}

	blockKey, err := decodeKey(cfg.BlockKey, "block")
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cfg.MaxAge)

	return &Manager{
		codec:  codec,
		name:   cfg.CookieName,
		maxAge: cfg.MaxAge,
		secure: secure,
	}, nil
}

func decodeKey(value, kind string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid session %s key: %w", kind, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("invalid session %s key: must be %d bytes, got %d", kind, keyLength, len(key))
	}
	return key, nil
}

// Create returns a signed cookie for the account.
func (m *Manager) Create(accountID int64, email string) (*http.Cookie, error) {
	data := Data{
		AccountID: accountID,
		Email:     email,
		ExpiresAt: time.Now().Add(time.Duration(m.maxAge) * time.Second),
	}

	encoded, err := m.codec.Encode(m.name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	return &http.Cookie{
		Name:     m.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Parse reads the session from the request. A missing, tampered or expired
// cookie yields nil data and no error.
func (m *Manager) Parse(r *http.Request) (*Data, error) {
	cookie, err := r.Cookie(m.name)
	if err != nil {
		return nil, nil //nolint:nilerr // no cookie means no session
	}

	var data Data
	if err := m.codec.Decode(m.name, cookie.Value, &data); err != nil {
		slog.Debug("session_decode_failed", "error", err)
		return nil, nil //nolint:nilerr // invalid cookies are treated as anonymous
	}

	if time.Now().After(data.ExpiresAt) {
		return nil, nil
	}

	return &data, nil
}

// IsAuthenticated reports whether the request carries a valid session.
func (m *Manager) IsAuthenticated(r *http.Request) bool {
	data, _ := m.Parse(r)
	return data != nil
}

// Clear returns a cookie that removes the session.
func (m *Manager) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
