// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"github.com/go-playground/validator/v10"
)

// MaxNameLength is the longest accepted display name, in characters.
const MaxNameLength = 100

var validate = validator.New(validator.WithRequiredStructEnabled())

func checkName(name string) (string, []string) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return name, []string{"Name is required."}
	case utf8.RuneCountInString(name) > MaxNameLength:
		return name, []string{fmt.Sprintf("Name must be at most %d characters.", MaxNameLength)}
	}
	return name, nil
}

func checkEmail(email string) (string, []string) {
	email = models.NormalizeEmail(email)
	if err := validate.Var(email, "required,email,max=100"); err != nil {
		return email, []string{"Enter a valid email address."}
	}
	return email, nil
}

func checkCode(code string) error {
	if len(code) != 6 {
		return invalid("The code must be exactly 6 digits.")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return invalid("The code must contain digits only.")
		}
	}
	return nil
}

func codesEqual(stored, submitted string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

func deliveryError(err error) error {
	return fmt.Errorf("%w: %w", ErrDelivery, err)
}

// Register starts registration for email. A new inactive account is created with a
// registration challenge, or the stale challenge of a pending account is replaced.
// A delivery failure is returned wrapped in ErrDelivery alongside the outcome.
func (s *Service) Register(ctx context.Context, name, email, password string) (Outcome, error) {
	name, messages := checkName(name)
	email, emailMessages := checkEmail(email)
	messages = append(messages, emailMessages...)
	messages = append(messages, s.passwordMessages(password)...)
	if len(messages) > 0 {
		s.recorder.Record("register", "invalid")
		return 0, invalid(messages...)
	}

	acct, err := s.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		acct, err = s.createPending(ctx, name, email, password)
		if err != nil {
			return 0, err
		}
		if acct != nil {
			return s.sendRegistration(ctx, acct, ChallengeSent)
		}
		// Lost the insert race, continue with the winner.
		acct, err = s.store.FindByEmail(ctx, email)
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	}

	if acct.IsActive {
		s.recorder.Record("register", "already_active")
		return 0, ErrAlreadyActive
	}
	if s.tokens.ChallengeValid(acct.Challenge, models.PurposeRegistration) {
		slog.InfoContext(ctx, "register_challenge_pending", "account_id", acct.ID)
		s.recorder.Record("register", ChallengePending.String())
		return ChallengePending, nil
	}

	if err := s.issueChallenge(ctx, acct, models.PurposeRegistration); err != nil {
		return 0, fmt.Errorf("failed to issue registration challenge: %w", err)
	}
	return s.sendRegistration(ctx, acct, ChallengeResent)
}

// createPending inserts an inactive account. It returns nil, nil when another request
// created the email first.
func (s *Service) createPending(ctx context.Context, name, email, password string) (*models.Account, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for range maxIssueAttempts {
		ch, err := s.tokens.Issue(models.PurposeRegistration)
		if err != nil {
			return nil, err
		}
		acct, created, err := s.store.GetOrCreate(ctx, email, &models.Account{
			Name:         name,
			PasswordHash: hash,
			Challenge:    ch,
		})
		switch {
		case err == nil && created:
			return acct, nil
		case err == nil:
			return nil, nil
		case errors.Is(err, repository.ErrDuplicate):
			lastErr = err
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to create account: %w", lastErr)
}

func (s *Service) sendRegistration(ctx context.Context, acct *models.Account, outcome Outcome) (Outcome, error) {
	ch := acct.Challenge
	if err := s.notifier.SendRegistrationChallenge(ctx, acct.Email, ch.Code, ch.Token); err != nil {
		slog.ErrorContext(ctx, "register_delivery_failed", "account_id", acct.ID, "error", err)
		s.recorder.Record("register", "delivery_failed")
		return outcome, deliveryError(err)
	}
	slog.InfoContext(ctx, "register_challenge_sent", "account_id", acct.ID, "outcome", outcome.String())
	s.recorder.Record("register", outcome.String())
	return outcome, nil
}

// ConfirmRegistration activates the account owning tok when code matches its registration
// challenge and returns the session cookie for it. A wrong code keeps the challenge, so the
// user may retry until it expires.
func (s *Service) ConfirmRegistration(ctx context.Context, tok, code string) (*models.Account, *http.Cookie, error) {
	if err := checkCode(code); err != nil {
		return nil, nil, err
	}

	acct, err := s.lookupByToken(ctx, tok, models.PurposeRegistration)
	if err != nil {
		s.recorder.Record("confirm_registration", "expired")
		return nil, nil, err
	}
	if !codesEqual(acct.Challenge.Code, code) {
		slog.InfoContext(ctx, "confirm_registration_code_mismatch", "account_id", acct.ID)
		s.recorder.Record("confirm_registration", "code_mismatch")
		return nil, nil, ErrCodeMismatch
	}

	acct.IsActive = true
	acct.ClearChallenge()
	if err := s.store.Save(ctx, acct); err != nil {
		return nil, nil, fmt.Errorf("failed to activate account: %w", err)
	}

	cookie, err := s.sessions.Create(acct.ID, acct.Email)
	if err != nil {
		return acct, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.InfoContext(ctx, "registration_confirmed", "account_id", acct.ID)
	s.recorder.Record("confirm_registration", "ok")
	return acct, cookie, nil
}

// CreateStaff creates an active staff account. Used by the create-staff command.
func (s *Service) CreateStaff(ctx context.Context, name, email, password string) (*models.Account, error) {
	name, messages := checkName(name)
	email, emailMessages := checkEmail(email)
	messages = append(messages, emailMessages...)
	messages = append(messages, s.passwordMessages(password)...)
	if len(messages) > 0 {
		return nil, invalid(messages...)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	acct := &models.Account{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      true,
	}
	if err := s.store.Create(ctx, acct); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyActive
		}
		return nil, err
	}

	slog.InfoContext(ctx, "staff_created", "account_id", acct.ID)
	return acct, nil
}
