// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token mints and checks the opaque tokens and numeric codes
// that make up a challenge.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/models"
)

const (
	// TokenLength is the number of random bytes in a token.
	TokenLength = 32
	// DefaultTTL is how long a challenge stays valid.
	DefaultTTL = 2 * time.Minute

	codeMin = 100000
	codeMax = 999999
)

var codeSpan = big.NewInt(codeMax - codeMin + 1)

// Service generates tokens and codes from an injectable random source and clock.
type Service struct {
	random io.Reader
	now    func() time.Time
	ttl    time.Duration
}

// Option customises the Service.
type Option func(*Service)

// WithRandom overrides the random source (crypto/rand by default).
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		if r != nil {
			s.random = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTTL overrides the challenge validity window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewService creates a token service.
func NewService(opts ...Option) *Service {
	s := &Service{
		random: rand.Reader,
		now:    time.Now,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time of the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// TTL returns the validity window.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// GenerateToken returns a URL-safe token carrying TokenLength random bytes.
func (s *Service) GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateCode returns a six digit code sampled uniformly from [100000, 999999].
func (s *Service) GenerateCode() (string, error) {
	n, err := rand.Int(s.random, codeSpan)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// IsValid reports whether something created at createdAt is still inside the window at now.
func (s *Service) IsValid(createdAt, now time.Time) bool {
	return now.Before(createdAt.Add(s.ttl))
}

// ChallengeValid reports whether ch exists, has the given purpose and has not expired.
func (s *Service) ChallengeValid(ch *models.Challenge, purpose models.Purpose) bool {
	return ch != nil && ch.Purpose == purpose && s.IsValid(ch.CreatedAt, s.now())
}

// Issue mints a fresh challenge for purpose, stamping token and code with one instant.
func (s *Service) Issue(purpose models.Purpose) (*models.Challenge, error) {
	tok, err := s.GenerateToken()
	if err != nil {
		return nil, err
	}
	code, err := s.GenerateCode()
	if err != nil {
		return nil, err
	}
	return &models.Challenge{
		Purpose:   purpose,
		Token:     tok,
		Code:      code,
		CreatedAt: s.now().UTC(),
	}, nil
}
