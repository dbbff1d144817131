// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"github.com/labstack/echo/v4"
)

// CodeRequest carries the one-time code from the email.
type CodeRequest struct {
	Code string `form:"code" json:"code" validate:"required,len=6,numeric"`
}

// NewPasswordRequest sets a new password after a confirmed reset.
type NewPasswordRequest struct {
	Password       string `form:"password" json:"password" validate:"required,max=100"`
	RepeatPassword string `form:"repeat_password" json:"repeat_password" validate:"required"`
}

// ConfirmPage checks a registration link before the code form is shown.
func (h *Handlers) ConfirmPage(c echo.Context) error {
	if err := h.accounts.InspectChallenge(c.Request().Context(), c.Param("token"), models.PurposeRegistration); err != nil {
		return fail(c, err)
	}
	return success(c, http.StatusOK, "Enter the code from your email to complete the registration.")
}

// Confirm activates the account behind the link and logs it in.
func (h *Handlers) Confirm(c echo.Context) error {
	var req CodeRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}

	acct, cookie, err := h.accounts.ConfirmRegistration(c.Request().Context(), c.Param("token"), req.Code)
	if err != nil {
		return fail(c, err)
	}

	c.SetCookie(cookie)
	return c.JSON(http.StatusOK, Response{
		OK:      true,
		Message: "Your registration is complete. Welcome!",
		Account: h.view(acct),
	})
}

// ResetPage checks a password reset link before the code form is shown.
func (h *Handlers) ResetPage(c echo.Context) error {
	if err := h.accounts.InspectChallenge(c.Request().Context(), c.Param("token"), models.PurposePasswordReset); err != nil {
		return fail(c, err)
	}
	return success(c, http.StatusOK, "Enter the code from your email to reset your password.")
}

// ResetCode verifies the reset code without consuming the challenge.
func (h *Handlers) ResetCode(c echo.Context) error {
	var req CodeRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}

	if err := h.accounts.ConfirmResetCode(c.Request().Context(), c.Param("token"), req.Code); err != nil {
		return fail(c, err)
	}
	return success(c, http.StatusOK, "Enter your new password and save it.")
}

// SetPassword stores the new password and consumes the reset challenge.
func (h *Handlers) SetPassword(c echo.Context) error {
	var req NewPasswordRequest
	if ok, err := bindRequest(c, &req); !ok {
		return err
	}

	err := h.accounts.SetNewPassword(c.Request().Context(), c.Param("token"), req.Password, req.RepeatPassword)
	if err != nil {
		return fail(c, err)
	}
	return success(c, http.StatusOK, "Your password has been changed. You can log in now.")
}
