// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat lists conversations and follows a single conversation
// by polling it. The backend has no push channel for messages, so an
// open Thread fetches the newest page every few seconds until it is
// stopped.
package chat

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/studybuddy/lib/clock"
	"github.com/bureau-foundation/studybuddy/lib/poll"
	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// DefaultInterval is the poll period of an open thread.
const DefaultInterval = 3 * time.Second

// DefaultPageSize is the number of messages fetched per poll.
const DefaultPageSize = 50

// ErrEmptyMessage is returned by Send for blank content.
var ErrEmptyMessage = errors.New("chat: message is empty")

// Gateway is the subset of *api.Client the chat package uses.
type Gateway interface {
	Conversations(ctx context.Context) ([]schema.Conversation, error)
	Messages(ctx context.Context, buddyID int64, page, limit int) (*schema.MessagePage, error)
	SendMessage(ctx context.Context, buddyID int64, content string) (*schema.SendResult, error)
}

// Config holds the parameters for NewService.
type Config struct {
	Gateway Gateway

	// Interval is the thread poll period. Defaults to DefaultInterval.
	Interval time.Duration

	// PageSize defaults to DefaultPageSize.
	PageSize int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Service opens threads and lists conversations.
type Service struct {
	gateway  Gateway
	interval time.Duration
	pageSize int
	clock    clock.Clock
	logger   *slog.Logger
}

// NewService validates config and returns a Service.
func NewService(config Config) (*Service, error) {
	if config.Gateway == nil {
		return nil, fmt.Errorf("chat: Gateway is required")
	}
	service := &Service{
		gateway:  config.Gateway,
		interval: config.Interval,
		pageSize: config.PageSize,
		clock:    config.Clock,
		logger:   config.Logger,
	}
	if service.interval == 0 {
		service.interval = DefaultInterval
	}
	if service.pageSize <= 0 {
		service.pageSize = DefaultPageSize
	}
	if service.clock == nil {
		service.clock = clock.Real()
	}
	if service.logger == nil {
		service.logger = slog.Default()
	}
	return service, nil
}

// Conversations returns the conversation list, most recently active
// first.
func (s *Service) Conversations(ctx context.Context) ([]schema.Conversation, error) {
	conversations, err := s.gateway.Conversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("chat: listing conversations: %w", err)
	}
	slices.SortStableFunc(conversations, func(a, b schema.Conversation) int {
		return b.LastMessageTime.Compare(a.LastMessageTime.Time)
	})
	return conversations, nil
}

// Open returns a stopped Thread for the conversation with buddyID.
func (s *Service) Open(buddyID int64) (*Thread, error) {
	thread := &Thread{
		service: s,
		buddyID: buddyID,
	}
	poller, err := poll.New(poll.Config[*schema.MessagePage]{
		Name:     fmt.Sprintf("chat-%d", buddyID),
		Interval: s.interval,
		Fetch: func(ctx context.Context) (*schema.MessagePage, error) {
			return s.gateway.Messages(ctx, buddyID, 1, s.pageSize)
		},
		Apply:     thread.apply,
		OnError:   thread.fail,
		Immediate: true,
		Clock:     s.clock,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	thread.poller = poller
	return thread, nil
}

// ThreadSnapshot is the visible state of a Thread.
type ThreadSnapshot struct {
	BuddyID int64

	// Messages are oldest first.
	Messages []schema.ChatMessage

	// Total is the server's message count for the conversation.
	Total int

	// Older reports that pages beyond the fetched one exist.
	Older bool

	Loaded bool
	Err    error
}

// Thread follows one conversation. Safe for concurrent use.
type Thread struct {
	service *Service
	buddyID int64
	poller  *poll.Poller[*schema.MessagePage]

	mu       sync.Mutex
	snapshot ThreadSnapshot
	listener func(ThreadSnapshot)
}

// BuddyID returns the peer of this conversation.
func (t *Thread) BuddyID() int64 { return t.buddyID }

// OnChange sets the single listener, replacing any previous one.
func (t *Thread) OnChange(listener func(ThreadSnapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = listener
}

// Start begins polling the conversation.
func (t *Thread) Start(ctx context.Context) { t.poller.Start(ctx) }

// Stop ends polling. No result is applied after Stop returns.
func (t *Thread) Stop() { t.poller.Stop() }

// Running reports whether the thread is polling.
func (t *Thread) Running() bool { return t.poller.Running() }

// Refresh fetches the newest page once.
func (t *Thread) Refresh(ctx context.Context) error {
	if err := t.poller.Refresh(ctx); err != nil {
		return fmt.Errorf("chat: refreshing conversation %d: %w", t.buddyID, err)
	}
	return nil
}

// Snapshot returns the current state.
func (t *Thread) Snapshot() ThreadSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := t.snapshot
	snapshot.BuddyID = t.buddyID
	snapshot.Messages = slices.Clone(t.snapshot.Messages)
	return snapshot
}

// Send posts content to the conversation and refreshes the thread.
// Leading and trailing whitespace is trimmed; blank content is
// rejected without a request.
func (t *Thread) Send(ctx context.Context, content string) (*schema.SendResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	result, err := t.service.gateway.SendMessage(ctx, t.buddyID, content)
	if err != nil {
		return nil, fmt.Errorf("chat: sending to %d: %w", t.buddyID, err)
	}
	if t.poller.Running() {
		t.poller.Trigger()
	} else if err := t.Refresh(ctx); err != nil {
		t.service.logger.Debug("refresh after send failed", "buddy_id", t.buddyID, "error", err)
	}
	return result, nil
}

func (t *Thread) apply(page *schema.MessagePage) {
	messages := slices.Clone(page.Messages)
	slices.SortStableFunc(messages, func(a, b schema.ChatMessage) int {
		if order := a.Timestamp.Compare(b.Timestamp.Time); order != 0 {
			return order
		}
		return cmp.Compare(a.ID, b.ID)
	})

	t.mu.Lock()
	t.snapshot = ThreadSnapshot{
		BuddyID:  t.buddyID,
		Messages: messages,
		Total:    page.Total,
		Older:    page.HasNext,
		Loaded:   true,
	}
	t.notifyLocked()
}

func (t *Thread) fail(err error) {
	t.mu.Lock()
	t.snapshot.Err = err
	t.notifyLocked()
}

// notifyLocked releases the lock and calls the listener.
func (t *Thread) notifyLocked() {
	listener := t.listener
	snapshot := t.snapshot
	snapshot.Messages = slices.Clone(t.snapshot.Messages)
	t.mu.Unlock()
	if listener != nil {
		listener(snapshot)
	}
}

