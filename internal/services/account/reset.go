// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
)

// RequestPasswordReset issues a reset challenge for an active account unless a valid one
// is already outstanding.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (Outcome, error) {
	acct, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.recorder.Record("request_reset", "unknown_email")
		return 0, ErrNotFoundOrExpired
	}
	if err != nil {
		return 0, err
	}
	if !acct.IsActive {
		s.recorder.Record("request_reset", "inactive")
		return 0, ErrInactiveAccount
	}
	if s.tokens.ChallengeValid(acct.Challenge, models.PurposePasswordReset) {
		slog.InfoContext(ctx, "reset_challenge_pending", "account_id", acct.ID)
		s.recorder.Record("request_reset", ChallengePending.String())
		return ChallengePending, nil
	}

	if err := s.issueChallenge(ctx, acct, models.PurposePasswordReset); err != nil {
		return 0, fmt.Errorf("failed to issue reset challenge: %w", err)
	}

	ch := acct.Challenge
	if err := s.notifier.SendResetChallenge(ctx, acct.Email, ch.Code, ch.Token); err != nil {
		slog.ErrorContext(ctx, "reset_delivery_failed", "account_id", acct.ID, "error", err)
		s.recorder.Record("request_reset", "delivery_failed")
		return ChallengeSent, deliveryError(err)
	}

	slog.InfoContext(ctx, "reset_challenge_sent", "account_id", acct.ID)
	s.recorder.Record("request_reset", ChallengeSent.String())
	return ChallengeSent, nil
}

// ConfirmResetCode checks code against the reset challenge of tok. It does not mutate the
// account, so the same pair stays usable until expiry or until the password is set.
func (s *Service) ConfirmResetCode(ctx context.Context, tok, code string) error {
	if err := checkCode(code); err != nil {
		return err
	}

	acct, err := s.lookupByToken(ctx, tok, models.PurposePasswordReset)
	if err != nil {
		s.recorder.Record("confirm_reset", "expired")
		return err
	}
	if !codesEqual(acct.Challenge.Code, code) {
		s.recorder.Record("confirm_reset", "code_mismatch")
		return ErrCodeMismatch
	}

	s.recorder.Record("confirm_reset", "ok")
	return nil
}

// SetNewPassword replaces the password of the account owning tok and consumes the challenge.
func (s *Service) SetNewPassword(ctx context.Context, tok, password, confirm string) error {
	if password != confirm {
		return invalid("The passwords do not match.")
	}
	if messages := s.passwordMessages(password); len(messages) > 0 {
		return invalid(messages...)
	}

	acct, err := s.lookupByToken(ctx, tok, models.PurposePasswordReset)
	if err != nil {
		s.recorder.Record("set_password", "expired")
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	acct.PasswordHash = hash
	acct.ClearChallenge()
	if err := s.store.Save(ctx, acct); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}

	slog.InfoContext(ctx, "password_changed", "account_id", acct.ID)
	s.recorder.Record("set_password", "ok")
	return nil
}
