// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth provides authentication context helpers.
package auth

import (
	"context"

	"codeberg.org/oliverandrich/go-accounts/internal/ctxkeys"
	"codeberg.org/oliverandrich/go-accounts/internal/models"
)

// WithAccount returns a copy of ctx carrying the authenticated account.
func WithAccount(ctx context.Context, acct *models.Account) context.Context {
	return context.WithValue(ctx, ctxkeys.Account{}, acct)
}

// GetAccount returns the authenticated account from the context, or nil if not authenticated.
func GetAccount(ctx context.Context) *models.Account {
	if acct, ok := ctx.Value(ctxkeys.Account{}).(*models.Account); ok {
		return acct
	}
	return nil
}

// IsAuthenticated returns true if the context has an authenticated account.
func IsAuthenticated(ctx context.Context) bool {
	return GetAccount(ctx) != nil
}
