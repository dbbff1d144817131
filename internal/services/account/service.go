// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package account implements the email/password account lifecycle: registration with
// e-mail confirmation, login, password reset and profile updates.
package account

import (
	"context"
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"codeberg.org/oliverandrich/go-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/services/token"
	"golang.org/x/crypto/bcrypt"
)

// maxIssueAttempts bounds retries when a freshly minted token collides with a stored one.
const maxIssueAttempts = 3

// Store persists accounts.
type Store interface {
	FindByID(ctx context.Context, id int64) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByToken(ctx context.Context, token string) (*models.Account, error)
	Create(ctx context.Context, acct *models.Account) error
	Save(ctx context.Context, acct *models.Account) error
	GetOrCreate(ctx context.Context, email string, defaults *models.Account) (*models.Account, bool, error)
}

// Notifier delivers challenges to the account's e-mail address.
type Notifier interface {
	SendRegistrationChallenge(ctx context.Context, email, code, token string) error
	SendResetChallenge(ctx context.Context, email, code, token string) error
}

// Sessions establishes an authenticated session for an account.
type Sessions interface {
	Create(accountID int64, email string) (*http.Cookie, error)
}

// ImageStore keeps profile images.
type ImageStore interface {
	Save(ctx context.Context, accountID int64, payload []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Recorder counts lifecycle events.
type Recorder interface {
	Record(operation, result string)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string) {}

// Option configures a Service.
type Option func(*Service)

// WithPolicy replaces the default password policy.
func WithPolicy(p *auth.PasswordPolicy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h *auth.Hasher) Option {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithImageStore enables profile image uploads.
func WithImageStore(images ImageStore) Option {
	return func(s *Service) {
		s.images = images
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Service orchestrates the account lifecycle.
type Service struct {
	store    Store
	tokens   *token.Service
	policy   *auth.PasswordPolicy
	hasher   *auth.Hasher
	notifier Notifier
	sessions Sessions
	images   ImageStore
	recorder Recorder
}

// New creates a lifecycle service.
func New(store Store, tokens *token.Service, notifier Notifier, sessions Sessions, opts ...Option) *Service {
	s := &Service{
		store:    store,
		tokens:   tokens,
		policy:   auth.DefaultPasswordPolicy(),
		hasher:   auth.NewHasher(bcrypt.DefaultCost),
		notifier: notifier,
		sessions: sessions,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the password policy in effect.
func (s *Service) Policy() *auth.PasswordPolicy {
	return s.policy
}

// passwordMessages returns every policy violation of password.
func (s *Service) passwordMessages(password string) []string {
	res := s.policy.Validate(password)
	messages := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		messages = append(messages, e.Message)
	}
	return messages
}

// issueChallenge stores a fresh challenge on acct, retrying on token collisions.
func (s *Service) issueChallenge(ctx context.Context, acct *models.Account, purpose models.Purpose) error {
	var err error
	for range maxIssueAttempts {
		var ch *models.Challenge
		ch, err = s.tokens.Issue(purpose)
		if err != nil {
			return err
		}
		acct.Challenge = ch
		err = s.store.Save(ctx, acct)
		if !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
	}
	return err
}

// lookupByToken returns the account whose challenge for purpose is valid now.
func (s *Service) lookupByToken(ctx context.Context, tok string, purpose models.Purpose) (*models.Account, error) {
	acct, err := s.store.FindByToken(ctx, tok)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFoundOrExpired
	}
	if err != nil {
		return nil, err
	}
	if !s.tokens.ChallengeValid(acct.Challenge, purpose) {
		return nil, ErrNotFoundOrExpired
	}
	return acct, nil
}

// InspectChallenge reports whether tok names a valid challenge for purpose.
func (s *Service) InspectChallenge(ctx context.Context, tok string, purpose models.Purpose) error {
	_, err := s.lookupByToken(ctx, tok, purpose)
	return err
}
