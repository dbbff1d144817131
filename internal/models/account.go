// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models defines the persisted domain types.
package models

import (
	"strings"
	"time"
)

// Purpose tags what a challenge grants.
type Purpose string

const (
	PurposeRegistration  Purpose = "registration"
	PurposePasswordReset Purpose = "password_reset"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeRegistration || p == PurposePasswordReset
}

// Challenge is a one-time code and token pair issued for a single purpose.
// Token and code share one creation timestamp and expire together.
type Challenge struct {
	CreatedAt time.Time
	Purpose   Purpose
	Token     string
	Code      string
}

// Account is a registered email/password identity.
type Account struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Image        string // storage reference, empty if unset
	IsActive     bool
	IsStaff      bool
	Challenge    *Challenge // nil when no challenge is outstanding
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasChallenge reports whether a challenge of the given purpose is stored,
// regardless of its age.
func (a *Account) HasChallenge(purpose Purpose) bool {
	return a.Challenge != nil && a.Challenge.Purpose == purpose
}

// ClearChallenge drops the outstanding challenge.
func (a *Account) ClearChallenge() {
	a.Challenge = nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
