// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify keeps the current user's notification list fresh by
// polling, and exposes the unread count and read transitions.
//
// Listeners are only called when the painted list actually changed.
// Each applied result is reduced to a canonical CBOR projection and
// hashed with BLAKE3; a poll that returns what is already shown
// publishes nothing.
//
// Marking read is optimistic: the notification is shown read at once
// and flipped back if the server refuses. A read the server has
// confirmed stays read even if a poll issued before the confirmation
// arrives afterwards.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/studybuddy/api"
	"github.com/bureau-foundation/studybuddy/buddies"
	"github.com/bureau-foundation/studybuddy/lib/clock"
	"github.com/bureau-foundation/studybuddy/lib/codec"
	"github.com/bureau-foundation/studybuddy/lib/poll"
	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// DefaultInterval is the notification poll period.
const DefaultInterval = 30 * time.Second

// DefaultLimit is the page size requested per poll, matching the
// backend default.
const DefaultLimit = 50

// Gateway is the subset of *api.Client the Center uses.
type Gateway interface {
	Notifications(ctx context.Context, query api.NotificationQuery) ([]schema.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID int64) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// ConnectionRefresher is implemented by *buddies.Reconciler.
type ConnectionRefresher interface {
	RefreshCollections(ctx context.Context, collections ...buddies.Collection) error
}

// Config holds the parameters for New.
type Config struct {
	Gateway Gateway

	// Connections, when set, is refreshed (connected buddies and
	// pending requests) whenever a poll brings a connection event not
	// seen before.
	Connections ConnectionRefresher

	// Interval defaults to DefaultInterval.
	Interval time.Duration

	// Limit defaults to DefaultLimit.
	Limit int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Snapshot is a copy of the notification state.
type Snapshot struct {
	// Notifications are newest first, with pending reads applied.
	Notifications []schema.Notification

	Unread int

	// Loaded reports that at least one fetch succeeded.
	Loaded bool

	// Err is the most recent fetch failure, cleared by the next
	// success. The previous list is kept.
	Err error

	UpdatedAt time.Time
}

// Error is a failed read transition. Error returns the server's
// message.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Center owns the notification list. Safe for concurrent use.
type Center struct {
	gateway     Gateway
	connections ConnectionRefresher
	limit       int
	clock       clock.Clock
	logger      *slog.Logger
	poller      *poll.Poller[[]schema.Notification]

	mu        sync.Mutex
	items     []schema.Notification
	loaded    bool
	err       error
	updatedAt time.Time
	digest    [32]byte

	// pendingRead holds ids shown read while the request is in flight.
	pendingRead map[int64]bool
	pendingAll  bool

	// confirmedRead holds ids the server acknowledged as read that a
	// poll has not yet reported read.
	confirmedRead map[int64]bool

	// seen holds connection-event ids already observed.
	seen map[int64]bool

	lifecycle context.Context
	cancel    context.CancelFunc

	listeners    map[uint64]func(Snapshot)
	nextListener uint64
}

// New creates a stopped Center.
func New(config Config) (*Center, error) {
	if config.Gateway == nil {
		return nil, fmt.Errorf("notify: Gateway is required")
	}
	interval := config.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	limit := config.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	centerClock := config.Clock
	if centerClock == nil {
		centerClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	center := &Center{
		gateway:       config.Gateway,
		connections:   config.Connections,
		limit:         limit,
		clock:         centerClock,
		logger:        logger,
		pendingRead:   make(map[int64]bool),
		confirmedRead: make(map[int64]bool),
		seen:          make(map[int64]bool),
		lifecycle:     context.Background(),
		listeners:     make(map[uint64]func(Snapshot)),
	}
	poller, err := poll.New(poll.Config[[]schema.Notification]{
		Name:      "notifications",
		Interval:  interval,
		Fetch:     center.fetch,
		Apply:     center.apply,
		OnError:   center.fail,
		Immediate: true,
		Clock:     centerClock,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	center.poller = poller
	return center, nil
}

// Start begins polling, fetching once immediately. Polling stops when
// Stop is called or ctx is done.
func (c *Center) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel == nil {
		c.lifecycle, c.cancel = context.WithCancel(ctx)
	}
	lifecycle := c.lifecycle
	c.mu.Unlock()
	c.poller.Start(lifecycle)
}

// Stop halts polling. No poll result is applied after Stop returns.
func (c *Center) Stop() {
	c.poller.Stop()
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.lifecycle = context.Background()
	}
	c.mu.Unlock()
}

// Running reports whether polling is active.
func (c *Center) Running() bool { return c.poller.Running() }

// Refresh fetches once and applies the result synchronously.
func (c *Center) Refresh(ctx context.Context) error {
	if err := c.poller.Refresh(ctx); err != nil {
		return fmt.Errorf("notify: refreshing notifications: %w", err)
	}
	return nil
}

// Trigger schedules an immediate poll when running.
func (c *Center) Trigger() { c.poller.Trigger() }

// Reset drops all state, as on logout.
func (c *Center) Reset() {
	c.mu.Lock()
	c.items = nil
	c.loaded = false
	c.err = nil
	c.updatedAt = time.Time{}
	c.pendingRead = make(map[int64]bool)
	c.pendingAll = false
	c.confirmedRead = make(map[int64]bool)
	c.seen = make(map[int64]bool)
	c.publishIfChangedLocked(true)
}

// OnChange registers listener and returns a function that removes
// it. Listeners run after the lock is released.
func (c *Center) OnChange(listener func(Snapshot)) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = listener
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Snapshot returns the current state.
func (c *Center) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// UnreadCount returns the number of unread notifications shown.
func (c *Center) UnreadCount() int {
	return c.Snapshot().Unread
}

func (c *Center) fetch(ctx context.Context) ([]schema.Notification, error) {
	return c.gateway.Notifications(ctx, api.NotificationQuery{Limit: c.limit})
}

func (c *Center) apply(items []schema.Notification) {
	c.mu.Lock()
	first := !c.loaded
	c.loaded = true
	c.err = nil
	c.updatedAt = c.clock.Now()
	c.items = items

	fresh := false
	for _, item := range items {
		if item.Read {
			delete(c.confirmedRead, item.ID)
		}
		if item.IsConnectionEvent() && !c.seen[item.ID] {
			c.seen[item.ID] = true
			if !item.Read {
				fresh = true
			}
		}
	}
	lifecycle := c.lifecycle
	c.publishIfChangedLocked(false)

	if fresh && !first && c.connections != nil {
		c.logger.Debug("connection event received, refreshing buddies")
		go func() {
			if err := c.connections.RefreshCollections(lifecycle, buddies.Connected, buddies.Requests); err != nil {
				c.logger.Warn("buddy refresh after connection event failed", "error", err)
			}
		}()
	}
}

func (c *Center) fail(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	c.mu.Lock()
	c.err = err
	c.publishIfChangedLocked(true)
}

// MarkRead marks one notification read. Already-read notifications
// are not sent again.
func (c *Center) MarkRead(ctx context.Context, notificationID int64) error {
	c.mu.Lock()
	if c.isReadLocked(notificationID) {
		c.mu.Unlock()
		return nil
	}
	c.pendingRead[notificationID] = true
	c.publishIfChangedLocked(false)

	err := c.gateway.MarkNotificationRead(ctx, notificationID)

	c.mu.Lock()
	delete(c.pendingRead, notificationID)
	if err == nil {
		c.confirmedRead[notificationID] = true
	}
	c.publishIfChangedLocked(false)
	if err != nil {
		c.logger.Info("marking notification read failed", "notification_id", notificationID, "error", err)
		return &Error{Op: "mark_read", Message: api.Message(err), Err: err}
	}
	return nil
}

// MarkAllRead marks every notification read.
func (c *Center) MarkAllRead(ctx context.Context) error {
	c.mu.Lock()
	c.pendingAll = true
	shown := make([]int64, 0, len(c.items))
	for _, item := range c.items {
		shown = append(shown, item.ID)
	}
	c.publishIfChangedLocked(false)

	err := c.gateway.MarkAllNotificationsRead(ctx)

	c.mu.Lock()
	c.pendingAll = false
	if err == nil {
		for _, id := range shown {
			c.confirmedRead[id] = true
		}
	}
	c.publishIfChangedLocked(false)
	if err != nil {
		c.logger.Info("marking all notifications read failed", "error", err)
		return &Error{Op: "mark_all_read", Message: api.Message(err), Err: err}
	}
	return nil
}

func (c *Center) isReadLocked(id int64) bool {
	if c.pendingAll || c.pendingRead[id] || c.confirmedRead[id] {
		return true
	}
	for _, item := range c.items {
		if item.ID == id {
			return item.Read
		}
	}
	return false
}

func (c *Center) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		Notifications: make([]schema.Notification, len(c.items)),
		Loaded:        c.loaded,
		Err:           c.err,
		UpdatedAt:     c.updatedAt,
	}
	for index, item := range c.items {
		item.Read = item.Read || c.pendingAll || c.pendingRead[item.ID] || c.confirmedRead[item.ID]
		if !item.Read {
			snapshot.Unread++
		}
		snapshot.Notifications[index] = item
	}
	return snapshot
}

// publishIfChangedLocked releases the lock and calls listeners if the
// painted list differs from the last published one. force publishes
// regardless, for changes outside the list such as a fetch error.
func (c *Center) publishIfChangedLocked(force bool) {
	snapshot := c.snapshotLocked()
	digest, err := digestOf(snapshot)
	if err != nil {
		c.logger.Warn("notification digest failed", "error", err)
		force = true
	}
	if !force && digest == c.digest {
		c.mu.Unlock()
		return
	}
	c.digest = digest
	listeners := make([]func(Snapshot), 0, len(c.listeners))
	for _, listener := range c.listeners {
		listeners = append(listeners, listener)
	}
	c.mu.Unlock()
	for _, listener := range listeners {
		listener(snapshot)
	}
}

// digestEntry is the canonical projection of a notification. Field
// order is fixed by the array encoding.
type digestEntry struct {
	_       struct{} `cbor:",toarray"`
	ID      int64
	Type    string
	Title   string
	Message string
	At      int64
	Read    bool
	Data    map[string]any
}

func digestOf(snapshot Snapshot) ([32]byte, error) {
	entries := make([]digestEntry, len(snapshot.Notifications))
	for index, item := range snapshot.Notifications {
		entries[index] = digestEntry{
			ID:      item.ID,
			Type:    item.Type,
			Title:   item.Title,
			Message: item.Message,
			At:      item.Timestamp.UnixNano(),
			Read:    item.Read,
			Data:    item.Data,
		}
	}
	encoded, err := codec.Marshal(struct {
		_       struct{} `cbor:",toarray"`
		Loaded  bool
		Entries []digestEntry
	}{Loaded: snapshot.Loaded, Entries: entries})
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(encoded), nil
}
