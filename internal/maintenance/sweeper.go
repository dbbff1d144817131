// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package maintenance periodically clears expired challenges.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep every five minutes.
const DefaultSchedule = "@every 5m"

// ChallengeStore removes challenges created before a cutoff.
type ChallengeStore interface {
	ClearExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}

// Counter receives the number of cleared challenges.
type Counter interface {
	ChallengesCleared(n int64)
}

// Sweeper clears challenges older than the TTL on a cron schedule. Expired challenges are
// already unusable, so the sweep only drops dead tokens from the table.
type Sweeper struct {
	store    ChallengeStore
	counter  Counter
	cron     *cron.Cron
	now      func() time.Time
	ttl      time.Duration
	schedule string
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for the cutoff.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSchedule overrides the cron specification.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithCounter reports cleared challenges.
func WithCounter(c Counter) Option {
	return func(s *Sweeper) {
		s.counter = c
	}
}

// NewSweeper creates a sweeper for challenges with the given ttl.
func NewSweeper(store ChallengeStore, ttl time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    store,
		now:      time.Now,
		ttl:      ttl,
		schedule: DefaultSchedule,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the sweep job and launches the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			slog.Warn("challenge_sweep_failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	slog.Info("challenge sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce clears every challenge created at or before now minus ttl.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	// A challenge created exactly ttl ago is already invalid.
	cutoff := s.now().Add(-s.ttl).Add(time.Nanosecond)
	n, err := s.store.ClearExpiredChallenges(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if s.counter != nil {
		s.counter.ChallengesCleared(n)
	}
	if n > 0 {
		slog.Info("expired_challenges_cleared", "count", n)
	}
	return n, nil
}
