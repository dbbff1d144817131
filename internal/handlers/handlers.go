// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers implements the JSON HTTP surface of the account service.
package handlers

import (
	"context"
	"net/http"

	"codeberg.org/oliverandrich/go-accounts/internal/services/account"
	"codeberg.org/oliverandrich/go-accounts/internal/services/session"
	"github.com/labstack/echo/v4"
)

// Pinger checks that the database answers.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ImageURLs turns stored image references into public URLs.
type ImageURLs interface {
	URL(ref string) string
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	accounts     *account.Service
	sessions     *session.Manager
	db           Pinger
	images       ImageURLs
	maxImageSize int64
}

// New creates a new Handlers instance. images may be nil when uploads are disabled.
func New(accounts *account.Service, sessions *session.Manager, db Pinger, images ImageURLs, maxImageSize int64) *Handlers {
	return &Handlers{
		accounts:     accounts,
		sessions:     sessions,
		db:           db,
		images:       images,
		maxImageSize: maxImageSize,
	}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	if h.db != nil {
		if err := h.db.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
