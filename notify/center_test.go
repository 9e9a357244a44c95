// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/studybuddy/api"
	"github.com/bureau-foundation/studybuddy/buddies"
	"github.com/bureau-foundation/studybuddy/lib/clock"
	"github.com/bureau-foundation/studybuddy/lib/schema"
	"github.com/bureau-foundation/studybuddy/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu      sync.Mutex
	items   []schema.Notification
	listErr error
	readErr error
	queries []api.NotificationQuery
	reads   []int64
	readAll int
}

func (g *fakeGateway) set(items ...schema.Notification) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.items = items
}

func (g *fakeGateway) Notifications(_ context.Context, query api.NotificationQuery) ([]schema.Notification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, query)
	if g.listErr != nil {
		return nil, g.listErr
	}
	return append([]schema.Notification(nil), g.items...), nil
}

func (g *fakeGateway) MarkNotificationRead(_ context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reads = append(g.reads, id)
	return g.readErr
}

func (g *fakeGateway) MarkAllNotificationsRead(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.readAll++
	return g.readErr
}

type fakeRefresher struct {
	calls chan []buddies.Collection
}

func (r *fakeRefresher) RefreshCollections(_ context.Context, collections ...buddies.Collection) error {
	r.calls <- collections
	return nil
}

func note(id int64, kind string, read bool) schema.Notification {
	return schema.Notification{
		ID:        id,
		Type:      kind,
		Title:     "title",
		Message:   "message",
		Timestamp: schema.Timestamp{Time: epoch.Add(time.Duration(id) * time.Minute)},
		Read:      read,
	}
}

func newCenter(t *testing.T, config Config) *Center {
	t.Helper()
	center, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(center.Stop)
	return center
}

func TestRefreshCountsUnread(t *testing.T) {
	gateway := &fakeGateway{}
	gateway.set(note(3, schema.NotificationMessage, false), note(2, schema.NotificationSystem, true), note(1, schema.NotificationChallenge, false))
	center := newCenter(t, Config{Gateway: gateway})

	if err := center.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := center.UnreadCount(); got != 2 {
		t.Errorf("UnreadCount = %d, want 2", got)
	}
	if len(gateway.queries) != 1 || gateway.queries[0].Limit != DefaultLimit {
		t.Errorf("queries = %+v", gateway.queries)
	}
}

func TestListenersOnlySeeChanges(t *testing.T) {
	gateway := &fakeGateway{}
	gateway.set(note(1, schema.NotificationSystem, false))
	center := newCenter(t, Config{Gateway: gateway})

	published := 0
	center.OnChange(func(Snapshot) { published++ })

	for i := 0; i < 3; i++ {
		if err := center.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}
	if published != 1 {
		t.Errorf("published %d times for an unchanged list, want 1", published)
	}

	gateway.set(note(2, schema.NotificationSystem, false), note(1, schema.NotificationSystem, false))
	if err := center.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if published != 2 {
		t.Errorf("published %d times after a new notification, want 2", published)
	}
}

func TestPollerTicks(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	gateway := &fakeGateway{}
	gateway.set(note(1, schema.NotificationSystem, false))
	center := newCenter(t, Config{Gateway: gateway, Clock: fakeClock})

	snapshots := make(chan Snapshot, 10)
	center.OnChange(func(snapshot Snapshot) { snapshots <- snapshot })
	center.Start(context.Background())

	first := testutil.RequireReceive(t, snapshots, 5*time.Second, "immediate fetch")
	if first.Unread != 1 {
		t.Errorf("first unread = %d, want 1", first.Unread)
	}

	gateway.set(note(2, schema.NotificationSystem, false), note(1, schema.NotificationSystem, false))
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(DefaultInterval)
	second := testutil.RequireReceive(t, snapshots, 5*time.Second, "scheduled fetch")
	if second.Unread != 2 {
		t.Errorf("second unread = %d, want 2", second.Unread)
	}

	center.Stop()
	if center.Running() {
		t.Error("Running after Stop")
	}
}

func TestFetchFailureKeepsList(t *testing.T) {
	gateway := &fakeGateway{}
	gateway.set(note(1, schema.NotificationSystem, false))
	center := newCenter(t, Config{Gateway: gateway})
	if err := center.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	gateway.mu.Lock()
	gateway.listErr = &api.NetworkError{Method: http.MethodGet, Path: "/notifications", Err: errors.New("refused")}
	gateway.mu.Unlock()
	if err := center.Refresh(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	snapshot := center.Snapshot()
	if snapshot.Err == nil || len(snapshot.Notifications) != 1 || !snapshot.Loaded {
		t.Errorf("snapshot after failure = %+v", snapshot)
	}
}

func TestCancelledFetchKeepsState(t *testing.T) {
	gateway := &fakeGateway{}
	gateway.set(note(1, schema.NotificationSystem, false))
	center := newCenter(t, Config{Gateway: gateway})
	if err := center.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	gateway.mu.Lock()
	gateway.listErr = context.Canceled
	gateway.mu.Unlock()
	if err := center.Refresh(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Refresh = %v, want context.Canceled", err)
	}
	if snapshot := center.Snapshot(); snapshot.Err != nil || len(snapshot.Notifications) != 1 {
		t.Errorf("snapshot after cancelled fetch = %+v", snapshot)
	}
}

func TestMarkReadOptimisticAndRollback(t *testing.T) {
	gateway := &fakeGateway{}
	gateway.set(note(1, schema.NotificationSystem, false))
	center := newCenter(t, Config{Gateway: gateway})
	if err := center.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	t.Run("failure", func(t *testing.T) {
		gateway.readErr = &api.HTTPError{StatusCode: http.StatusNotFound, Message: "Notification not found"}
		var unread []int
		remove := center.OnChange(func(snapshot Snapshot) { unread = append(unread, snapshot.Unread) })
		defer remove()

		err := center.MarkRead(context.Background(), 1)
		var readError *Error
		if !errors.As(err, &readError) || readError.Message != "Notification not found" {
			t.Fatalf("MarkRead error = %v", err)
		}
		if len(unread) != 2 || unread[0] != 0 || unread[1] != 1 {
			t.Errorf("published unread counts = %v, want [0 1]", unread)
		}
	})

	t.Run("success survives a stale poll", func(t *testing.T) {
		gateway.readErr = nil
		if err := center.MarkRead(context.Background(), 1); err != nil {
			t.Fatalf("MarkRead: %v", err)
		}
		// The server has not caught up yet.
		if err := center.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if got := center.UnreadCount(); got != 0 {
			t.Errorf("UnreadCount = %d, want 0", got)
		}
		if err := center.MarkRead(context.Background(), 1); err != nil {
			t.Fatalf("second MarkRead: %v", err)
		}
		if len(gateway.reads) != 2 {
			t.Errorf("read calls = %v, want two (failed + succeeded)", gateway.reads)
		}
	})
}

func TestMarkAllRead(t *testing.T) {
	gateway := &fakeGateway{}
	gateway.set(note(2, schema.NotificationMessage, false), note(1, schema.NotificationSystem, false))
	center := newCenter(t, Config{Gateway: gateway})
	if err := center.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	gateway.readErr = &api.HTTPError{StatusCode: http.StatusInternalServerError, Message: "boom"}
	if err := center.MarkAllRead(context.Background()); err == nil {
		t.Fatal("expected failure")
	}
	if got := center.UnreadCount(); got != 2 {
		t.Errorf("UnreadCount after failed read-all = %d, want 2", got)
	}

	gateway.readErr = nil
	if err := center.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if got := center.UnreadCount(); got != 0 {
		t.Errorf("UnreadCount after read-all = %d, want 0", got)
	}
}

func TestConnectionEventRefreshesBuddies(t *testing.T) {
	gateway := &fakeGateway{}
	gateway.set(note(1, schema.NotificationConnectionRequest, false))
	refresher := &fakeRefresher{calls: make(chan []buddies.Collection, 4)}
	center := newCenter(t, Config{Gateway: gateway, Connections: refresher})

	if err := center.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	select {
	case <-refresher.calls:
		t.Fatal("first load should not trigger a buddy refresh")
	default:
	}

	gateway.set(note(2, schema.NotificationConnectionAccepted, false), note(1, schema.NotificationConnectionRequest, false))
	if err := center.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	collections := testutil.RequireReceive(t, refresher.calls, 5*time.Second, "buddy refresh")
	if len(collections) != 2 || collections[0] != buddies.Connected || collections[1] != buddies.Requests {
		t.Errorf("refreshed %v, want [connected requests]", collections)
	}

	if err := center.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	select {
	case <-refresher.calls:
		t.Error("an already seen event triggered another refresh")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNavigationTarget(t *testing.T) {
	for kind, want := range map[string]Tab{
		schema.NotificationConnectionRequest:  TabBuddies,
		schema.NotificationConnectionAccepted: TabBuddies,
		schema.NotificationMessage:            TabChats,
		schema.NotificationChallenge:          TabOverview,
		"something_new":                       TabOverview,
	} {
		if got := NavigationTarget(schema.Notification{Type: kind}); got != want {
			t.Errorf("NavigationTarget(%q) = %q, want %q", kind, got, want)
		}
	}
}
