// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/go-accounts/internal/services/account"
	"github.com/labstack/echo/v4"
)

// LoginRequest is the login form.
type LoginRequest struct {
	Email    string `form:"email" json:"email" validate:"required,email"`
	Password string `form:"password" json:"password" validate:"required"`
}

// RegisterRequest is the registration form.
type RegisterRequest struct {
	Name           string `form:"name" json:"name" validate:"required,max=100"`
	Email          string `form:"email" json:"email" validate:"required,email,max=100"`
	Password       string `form:"password" json:"password" validate:"required,max=100"`
	RepeatPassword string `form:"repeat_password" json:"repeat_password" validate:"required,eqfield=Password"`
}

// ForgotPasswordRequest asks for a password reset challenge.
type ForgotPasswordRequest struct {
	Email string `form:"email" json:"email" validate:"required,email"`
}

// bindRequest binds and validates req, writing the failure reply when it returns false.
func bindRequest(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, failure(c, http.StatusBadRequest, msgInvalidRequest)
	}
	if err := c.Validate(req); err != nil {
		return false, failure(c, http.StatusBadRequest, msgInvalidRequest, fieldMessages(err)...)
	}
	return true, nil
}

// Login checks the credentials and starts a session.
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}

	acct, cookie, err := h.accounts.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}

	c.SetCookie(cookie)
	return c.JSON(http.StatusOK, Response{
		OK:      true,
		Message: "Welcome back!",
		Account: h.view(acct),
	})
}

// Logout clears the session cookie.
func (h *Handlers) Logout(c echo.Context) error {
	c.SetCookie(h.sessions.Clear())
	return success(c, http.StatusOK, "You have been logged out.")
}

// Register starts or resumes a registration.
func (h *Handlers) Register(c echo.Context) error {
	var req RegisterRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}

	outcome, err := h.accounts.Register(c.Request().Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}

	switch outcome {
	case account.ChallengePending:
		return success(c, http.StatusOK, msgWait)
	case account.ChallengeResent:
		return success(c, http.StatusOK, "A new confirmation code has been sent to your email.")
	default:
		return success(c, http.StatusCreated, "A confirmation code has been sent to your email.")
	}
}

// ForgotPassword sends a password reset challenge.
func (h *Handlers) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}

	outcome, err := h.accounts.RequestPasswordReset(c.Request().Context(), req.Email)
	switch {
	case errors.Is(err, account.ErrNotFoundOrExpired):
		return failure(c, http.StatusNotFound, msgUnknownEmail)
	case err != nil:
		return fail(c, err)
	}

	if outcome == account.ChallengePending {
		return success(c, http.StatusOK, msgWait)
	}
	return success(c, http.StatusOK, "Email sent. Please check your inbox.")
}

// CSRF hands out the token that unsafe requests must echo in the X-CSRF-Token header.
func (h *Handlers) CSRF(c echo.Context) error {
	token, _ := c.Get("csrf").(string)
	return c.JSON(http.StatusOK, Response{OK: true, CSRFToken: token})
}

// PasswordRules lists the password requirements for registration and reset forms.
func (h *Handlers) PasswordRules(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{
		"rules": h.accounts.Policy().HelpTexts(),
	})
}
