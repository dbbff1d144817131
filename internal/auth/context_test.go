// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/go-accounts/internal/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAccountContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, auth.GetAccount(ctx))
	assert.False(t, auth.IsAuthenticated(ctx))

	acct := &models.Account{ID: 7, Email: "alice@example.com"}
	ctx = auth.WithAccount(ctx, acct)
	assert.Same(t, acct, auth.GetAccount(ctx))
	assert.True(t, auth.IsAuthenticated(ctx))
}
