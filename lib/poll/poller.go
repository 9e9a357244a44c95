// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package poll runs a fetch on a fixed interval with an explicit
// start/stop lifecycle, for collections the backend only exposes by
// polling (notifications, chat threads).
//
// Ticks are not serialized: every tick launches its own fetch, so a
// slow response never delays the next scheduled one. Results are
// applied one at a time in the order they arrive, which means the
// response that arrives last wins even if it was issued first. That
// trade is acceptable for the feeds this package serves; duplicate or
// skipped ticks during a slow refresh are harmless.
//
// Stop cancels in-flight fetches and guarantees that no result is
// applied after it returns, so a view that stops its poller on close
// is never mutated by a late response.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/studybuddy/lib/clock"
)

// Config configures a Poller.
type Config[T any] struct {
	// Name labels log lines.
	Name string

	// Interval between scheduled fetches. Required.
	Interval time.Duration

	// Fetch retrieves one result. It receives a context cancelled by
	// Stop. Required.
	Fetch func(ctx context.Context) (T, error)

	// Apply receives each successful result in arrival order. Calls
	// never overlap. Required.
	Apply func(T)

	// OnError receives failed fetches, serialized with Apply. Optional;
	// failures are logged either way.
	OnError func(error)

	// Immediate fetches once on Start instead of waiting a full
	// interval.
	Immediate bool

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Poller is a restartable scheduled fetch.
type Poller[T any] struct {
	config Config[T]
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	epoch   uint64
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}

	// applyMu serializes Apply/OnError and lets Stop wait out an
	// in-progress Apply.
	applyMu sync.Mutex
}

// New validates config and returns a stopped Poller.
func New[T any](config Config[T]) (*Poller[T], error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("poll: %s: Interval must be positive", config.Name)
	}
	if config.Fetch == nil || config.Apply == nil {
		return nil, fmt.Errorf("poll: %s: Fetch and Apply are required", config.Name)
	}
	pollClock := config.Clock
	if pollClock == nil {
		pollClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller[T]{
		config: config,
		clock:  pollClock,
		logger: logger.With("poller", config.Name),
	}, nil
}

// Start begins polling until Stop or until ctx is done. Calling Start
// on a running Poller is a no-op.
func (p *Poller[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}
	loopContext, cancel := context.WithCancel(ctx)
	p.epoch++
	p.cancel = cancel
	p.done = make(chan struct{})
	p.trigger = make(chan struct{}, 1)

	go p.loop(loopContext, p.epoch, p.trigger, p.done)
}

// Stop halts polling and cancels in-flight fetches. After Stop returns
// no further Apply or OnError call is made for fetches issued before
// it. Stop on a stopped Poller is a no-op.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return
	}
	p.epoch++
	p.cancel()
	p.cancel = nil
	done := p.done
	p.mu.Unlock()

	<-done
	// Any Apply that passed the epoch check before the bump finishes
	// before this returns.
	p.applyMu.Lock()
	p.applyMu.Unlock() //nolint:staticcheck // barrier
}

// Running reports whether the Poller is started.
func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Trigger requests an immediate out-of-schedule fetch. Does nothing
// when stopped. Never blocks; triggers requested while one is already
// pending coalesce.
func (p *Poller[T]) Trigger() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return
	}
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Refresh fetches once synchronously and applies the result, whether
// or not the Poller is running. The result is dropped if ctx is done by
// the time the fetch returns.
func (p *Poller[T]) Refresh(ctx context.Context) error {
	result, err := p.config.Fetch(ctx)

	p.applyMu.Lock()
	defer p.applyMu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		p.reportError(err)
		return err
	}
	p.config.Apply(result)
	return nil
}

func (p *Poller[T]) loop(ctx context.Context, epoch uint64, trigger <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := p.clock.NewTicker(p.config.Interval)
	defer ticker.Stop()

	if p.config.Immediate {
		p.spawn(ctx, epoch)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.spawn(ctx, epoch)
		case <-trigger:
			p.spawn(ctx, epoch)
		}
	}
}

func (p *Poller[T]) spawn(ctx context.Context, epoch uint64) {
	go func() {
		result, err := p.config.Fetch(ctx)
		p.deliver(epoch, result, err)
	}()
}

func (p *Poller[T]) deliver(epoch uint64, result T, err error) {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	current := p.epoch == epoch
	p.mu.Unlock()
	if !current {
		p.logger.Debug("dropping result from stopped poller")
		return
	}
	if err != nil {
		p.reportError(err)
		return
	}
	p.config.Apply(result)
}

// reportError runs with applyMu held.
func (p *Poller[T]) reportError(err error) {
	p.logger.Debug("poll fetch failed", "error", err)
	if p.config.OnError != nil {
		p.config.OnError(err)
	}
}
