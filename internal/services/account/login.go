// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
)

// Login authenticates an active account and returns its session cookie.
// Unknown emails take as long as wrong passwords.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Account, *http.Cookie, error) {
	acct, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.CompareDummy(password)
		s.recorder.Record("login", "failed")
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}

	if err := s.hasher.Compare(acct.PasswordHash, password); err != nil || !acct.IsActive {
		slog.InfoContext(ctx, "login_failed", "account_id", acct.ID)
		s.recorder.Record("login", "failed")
		return nil, nil, ErrInvalidCredentials
	}

	cookie, err := s.sessions.Create(acct.ID, acct.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.InfoContext(ctx, "login_succeeded", "account_id", acct.ID)
	s.recorder.Record("login", "ok")
	return acct, cookie, nil
}

// Account loads an account by id.
func (s *Service) Account(ctx context.Context, id int64) (*models.Account, error) {
	acct, err := s.store.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFoundOrExpired
	}
	return acct, err
}
