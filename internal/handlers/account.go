// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"codeberg.org/oliverandrich/go-accounts/internal/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/storage"
	"github.com/labstack/echo/v4"
)

// Account returns the logged-in account together with a CSRF token for later writes.
func (h *Handlers) Account(c echo.Context) error {
	acct := auth.GetAccount(c.Request().Context())
	if acct == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Please log in to view this page.")
	}

	token, _ := c.Get("csrf").(string)
	return c.JSON(http.StatusOK, Response{
		OK:        true,
		Message:   "Hello " + acct.Name + "!",
		Account:   h.view(acct),
		CSRFToken: token,
	})
}

// UpdateProfile changes the name and image of the logged-in account.
func (h *Handlers) UpdateProfile(c echo.Context) error {
	acct := auth.GetAccount(c.Request().Context())
	if acct == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Please log in to view this page.")
	}
	return h.updateProfile(c, acct.ID, acct.ID)
}

// StaffAccount shows any account to staff members.
func (h *Handlers) StaffAccount(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Not Found")
	}

	acct, err := h.accounts.Account(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, Response{OK: true, Account: h.view(acct)})
}

// StaffUpdateProfile changes the profile of the account in the path.
// The service decides whether the actor may do so.
func (h *Handlers) StaffUpdateProfile(c echo.Context) error {
	actor := auth.GetAccount(c.Request().Context())
	if actor == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Please log in to view this page.")
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Not Found")
	}
	return h.updateProfile(c, actor.ID, id)
}

func (h *Handlers) updateProfile(c echo.Context, actorID, accountID int64) error {
	image, err := h.readImage(c)
	if err != nil {
		return failure(c, http.StatusBadRequest, msgInvalidRequest, "The uploaded image could not be read.")
	}

	ctx := c.Request().Context()
	if err := h.accounts.UpdateProfile(ctx, actorID, accountID, c.FormValue("name"), image); err != nil {
		return fail(c, err)
	}

	acct, err := h.accounts.Account(ctx, accountID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, Response{
		OK:      true,
		Message: "Your profile has been updated.",
		Account: h.view(acct),
	})
}

// readImage returns the uploaded "image" file, or nil when none was sent.
// At most maxImageSize+1 bytes are read so oversized uploads are still detected.
func (h *Handlers) readImage(c echo.Context) ([]byte, error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	limit := h.maxImageSize
	if limit <= 0 {
		limit = storage.DefaultMaxSize
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return data, nil
}
