// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/services/account"
	"github.com/labstack/echo/v4"
)

// User-facing messages.
const (
	msgExpired        = "This link has expired or is invalid. Please try again."
	msgAlreadyActive  = "An account with this email is already registered and active."
	msgInactive       = "This email belongs to an account that is not active yet. Please complete your registration."
	msgCodeMismatch   = "The code is incorrect. Please try again."
	msgBadCredentials = "Email or password is incorrect."
	msgForbidden      = "You do not have permission to perform this action."
	msgDelivery       = "We could not send the email. Please try again later."
	msgInvalidRequest = "Some fields are not correct."
	msgInternal       = "Something went wrong. Please try again later."
	msgUnknownEmail   = "The email you entered is incorrect."
	msgWait           = "A code has already been sent to you. Please wait two minutes before requesting a new one."
)

// Response is the body of every JSON reply.
type Response struct {
	Account   *AccountView `json:"account,omitempty"`
	Message   string       `json:"message"`
	CSRFToken string       `json:"csrf_token,omitempty"`
	Errors    []string     `json:"errors,omitempty"`
	OK        bool         `json:"ok"`
}

// AccountView is the public representation of an account.
type AccountView struct {
	CreatedAt time.Time `json:"created_at"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	ImageURL  string    `json:"image_url,omitempty"`
	ID        int64     `json:"id"`
	IsStaff   bool      `json:"is_staff"`
}

func (h *Handlers) view(acct *models.Account) *AccountView {
	v := &AccountView{
		ID:        acct.ID,
		Email:     acct.Email,
		Name:      acct.Name,
		IsStaff:   acct.IsStaff,
		CreatedAt: acct.CreatedAt,
	}
	if h.images != nil && acct.Image != "" {
		v.ImageURL = h.images.URL(acct.Image)
	}
	return v
}

func success(c echo.Context, status int, message string) error {
	return c.JSON(status, Response{OK: true, Message: message})
}

func failure(c echo.Context, status int, message string, details ...string) error {
	return c.JSON(status, Response{OK: false, Message: message, Errors: details})
}

// statusFor maps a lifecycle error to an HTTP status and a user-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, account.ErrNotFoundOrExpired):
		return http.StatusNotFound, msgExpired
	case errors.Is(err, account.ErrAlreadyActive):
		return http.StatusConflict, msgAlreadyActive
	case errors.Is(err, account.ErrInactiveAccount):
		return http.StatusForbidden, msgInactive
	case errors.Is(err, account.ErrCodeMismatch):
		return http.StatusBadRequest, msgCodeMismatch
	case errors.Is(err, account.ErrInvalidCredentials):
		return http.StatusUnauthorized, msgBadCredentials
	case errors.Is(err, account.ErrForbidden):
		return http.StatusForbidden, msgForbidden
	case errors.Is(err, account.ErrDelivery):
		return http.StatusServiceUnavailable, msgDelivery
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// fail writes the JSON reply for err returned by the lifecycle service.
func fail(c echo.Context, err error) error {
	if ve, ok := account.IsValidation(err); ok {
		return failure(c, http.StatusBadRequest, msgInvalidRequest, ve.Messages...)
	}
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request_failed",
			"path", c.Path(),
			"error", err,
		)
	}
	return failure(c, status, message)
}

// ErrorHandler renders errors escaping the handlers, including routing and middleware errors.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := msgInternal
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		message = fmt.Sprint(he.Message)
	} else {
		slog.ErrorContext(c.Request().Context(), "unhandled_error", "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = failure(c, status, message)
	}
	if err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}
