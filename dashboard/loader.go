// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dashboard runs the initial data load of the signed-in view.
//
// The profile is fetched first and gates everything else: without it
// there is nothing to render. Once it arrives the buddy collections,
// notifications, and personalized challenges are fetched concurrently,
// each succeeding or failing on its own. Starting a new load cancels
// the previous one, and a cancelled load never publishes.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/studybuddy/api"
	"github.com/bureau-foundation/studybuddy/lib/schema"
)

var (
	// ErrSuperseded means a newer Load started before this one
	// finished.
	ErrSuperseded = errors.New("dashboard: superseded by a newer load")

	// ErrClosed means the Loader was closed.
	ErrClosed = errors.New("dashboard: loader closed")
)

// Gateway is the subset of *api.Client the Loader uses.
type Gateway interface {
	Profile(ctx context.Context) (*schema.ProfileResponse, error)
	PersonalizedChallenges(ctx context.Context) ([]schema.Challenge, error)
}

// Refresher is a collection owner that can reload itself, such as
// *buddies.Reconciler or *notify.Center.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config holds the parameters for New.
type Config struct {
	Gateway Gateway

	// Buddies and Notifications are optional.
	Buddies       Refresher
	Notifications Refresher

	Logger *slog.Logger
}

// Result is one completed load.
type Result struct {
	// Profile is nil when ProfileMissing is set.
	Profile *schema.ProfileResponse

	// ProfileMissing reports a 404 from the profile route: the user
	// has not created a study profile yet.
	ProfileMissing bool

	// Challenges is never empty when the profile loaded. On failure it
	// holds schema.FallbackChallenges and ChallengesErr is set.
	Challenges    []schema.Challenge
	ChallengesErr error

	BuddiesErr       error
	NotificationsErr error
}

// Loader runs dashboard loads. Safe for concurrent use.
type Loader struct {
	config Config
	logger *slog.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	closed     bool
	current    *Result
	listener   func(*Result)
}

// New returns a Loader.
func New(config Config) (*Loader, error) {
	if config.Gateway == nil {
		return nil, fmt.Errorf("dashboard: Gateway is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{config: config, logger: logger}, nil
}

// OnLoad sets the listener called with each completed, current load.
func (l *Loader) OnLoad(listener func(*Result)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listener = listener
}

// Current returns the most recent completed load, or nil.
func (l *Loader) Current() *Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Load cancels any load in progress and runs a new one. A profile
// failure other than 404 fails the load; the other parts degrade.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if l.cancel != nil {
		l.cancel()
	}
	l.generation++
	generation := l.generation
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()
	defer l.finish(generation, cancel)

	result := &Result{}
	profile, err := l.config.Gateway.Profile(ctx)
	if err := l.check(ctx, generation); err != nil {
		return nil, err
	}
	switch {
	case err == nil:
		result.Profile = profile
	case api.IsNotFound(err):
		result.ProfileMissing = true
		l.logger.Info("no study profile yet")
	default:
		return nil, fmt.Errorf("dashboard: loading profile: %w", err)
	}

	var wg sync.WaitGroup
	if l.config.Buddies != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.BuddiesErr = l.config.Buddies.Refresh(ctx)
		}()
	}
	if l.config.Notifications != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.NotificationsErr = l.config.Notifications.Refresh(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		challenges, err := l.config.Gateway.PersonalizedChallenges(ctx)
		if err != nil || len(challenges) == 0 {
			result.ChallengesErr = err
			challenges = schema.FallbackChallenges()
		}
		result.Challenges = challenges
	}()
	wg.Wait()

	if err := l.check(ctx, generation); err != nil {
		return nil, err
	}
	for part, partErr := range map[string]error{
		"buddies":       result.BuddiesErr,
		"notifications": result.NotificationsErr,
		"challenges":    result.ChallengesErr,
	} {
		if partErr != nil {
			l.logger.Warn("dashboard part failed", "part", part, "error", partErr)
		}
	}

	l.mu.Lock()
	if generation != l.generation || l.closed {
		l.mu.Unlock()
		return nil, ErrSuperseded
	}
	l.current = result
	listener := l.listener
	l.mu.Unlock()
	if listener != nil {
		listener(result)
	}
	return result, nil
}

// check reports why a load must stop, or nil to continue.
func (l *Loader) check(ctx context.Context, generation uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.closed:
		return ErrClosed
	case generation != l.generation:
		return ErrSuperseded
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return nil
}

func (l *Loader) finish(generation uint64, cancel context.CancelFunc) {
	cancel()
	l.mu.Lock()
	defer l.mu.Unlock()
	if generation == l.generation {
		l.cancel = nil
	}
}

// Close cancels any load in progress. Later loads fail with ErrClosed.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}
