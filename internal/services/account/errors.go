// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account

import (
	"errors"
	"strings"
)

var (
	// ErrNotFoundOrExpired covers unknown emails, unknown tokens, wrong-purpose and expired challenges.
	ErrNotFoundOrExpired = errors.New("account: not found or expired")
	// ErrAlreadyActive is returned when registering an email that belongs to an active account.
	ErrAlreadyActive = errors.New("account: already registered and active")
	// ErrInactiveAccount is returned for password resets of accounts that never confirmed registration.
	ErrInactiveAccount = errors.New("account: registration not confirmed")
	// ErrCodeMismatch means the token was valid but the code was wrong. The challenge is kept.
	ErrCodeMismatch = errors.New("account: code mismatch")
	// ErrInvalidCredentials is returned for any failed login.
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	// ErrForbidden means the actor may not modify the target account.
	ErrForbidden = errors.New("account: forbidden")
	// ErrDelivery wraps notification failures after the store write succeeded.
	ErrDelivery = errors.New("account: notification delivery failed")
)

// ValidationError carries every problem found with the submitted input.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "validation failed"
	}
	return strings.Join(e.Messages, " ")
}

func invalid(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

// IsValidation reports whether err is a *ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
