// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/studybuddy/admin"
	"github.com/bureau-foundation/studybuddy/buddies"
	"github.com/bureau-foundation/studybuddy/internal/fakebackend"
	"github.com/bureau-foundation/studybuddy/lib/config"
	"github.com/bureau-foundation/studybuddy/lib/credstore"
	"github.com/bureau-foundation/studybuddy/lib/schema"
	"github.com/bureau-foundation/studybuddy/lib/secret"
	"github.com/bureau-foundation/studybuddy/lib/testutil"
	"github.com/bureau-foundation/studybuddy/session"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	backend *fakebackend.Backend
	baseURL string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := fakebackend.New(fakebackend.Config{})
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)
	return &fixture{backend: backend, baseURL: server.URL + "/api"}
}

func (f *fixture) config(t *testing.T) *config.Config {
	t.Helper()
	settings := config.Default()
	settings.BaseURL = f.baseURL
	settings.StatePath = filepath.Join(t.TempDir(), "state.db")
	return settings
}

// newApp assembles an App over an in-memory store.
func (f *fixture) newApp(t *testing.T) *App {
	t.Helper()
	return f.newAppWithStore(t, f.config(t), credstore.NewMemory())
}

func (f *fixture) newAppWithStore(t *testing.T, settings *config.Config, store *credstore.Store) *App {
	t.Helper()
	assembled, err := New(context.Background(), Options{Config: settings, Store: store, Logger: quiet})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { assembled.Close() })
	return assembled
}

func password(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("NewFromString: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func login(t *testing.T, assembled *App, email, value string) *schema.Identity {
	t.Helper()
	identity, err := assembled.Session.Login(context.Background(), email, password(t, value))
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return identity
}

func TestTwoUsersConnect(t *testing.T) {
	f := newFixture(t)
	aliceID := f.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw1", Interests: []string{"go"}})
	bobID := f.backend.AddUser(fakebackend.UserSpec{Username: "bob", Email: "bob@example.com", Password: "pw2", Interests: []string{"go"}})
	ctx := context.Background()

	alice := f.newApp(t)
	bob := f.newApp(t)
	login(t, alice, "alice@example.com", "pw1")
	login(t, bob, "bob@example.com", "pw2")

	if err := alice.Buddies.Refresh(ctx); err != nil {
		t.Fatalf("alice Refresh: %v", err)
	}
	if !alice.Buddies.Connectable(bobID) {
		t.Fatalf("bob status = %s, want not_connected", alice.Buddies.Status(bobID))
	}
	if err := alice.Buddies.Connect(ctx, bobID); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := alice.Buddies.Status(bobID); got != schema.StatusRequestSent {
		t.Errorf("after Connect status = %s", got)
	}

	// Bob's first notification load only establishes the baseline.
	if err := bob.Notifications.Refresh(ctx); err != nil {
		t.Fatalf("bob notifications: %v", err)
	}
	if got := bob.Notifications.UnreadCount(); got != 1 {
		t.Errorf("bob unread = %d, want 1", got)
	}
	if err := bob.Buddies.Refresh(ctx); err != nil {
		t.Fatalf("bob Refresh: %v", err)
	}
	requests := bob.Buddies.Snapshot().Requests
	if len(requests) != 1 || requests[0].FromUserID != aliceID {
		t.Fatalf("bob requests = %+v", requests)
	}
	if got := bob.Buddies.Status(aliceID); got != schema.StatusRequestReceived {
		t.Errorf("bob's view of alice = %s", got)
	}

	if err := bob.Buddies.AcceptRequest(ctx, requests[0].ID); err != nil {
		t.Fatalf("AcceptRequest: %v", err)
	}
	if got := bob.Buddies.Status(aliceID); got != schema.StatusConnected {
		t.Errorf("bob's view after accept = %s", got)
	}
	if len(bob.Buddies.Snapshot().Requests) != 0 {
		t.Errorf("request still listed after accept")
	}

	if err := alice.Notifications.Refresh(ctx); err != nil {
		t.Fatalf("alice notifications: %v", err)
	}
	accepted := alice.Notifications.Snapshot().Notifications
	if len(accepted) != 1 || accepted[0].Type != schema.NotificationConnectionAccepted {
		t.Errorf("alice notifications = %+v", accepted)
	}
	if err := alice.Buddies.RefreshCollections(ctx, buddies.Connected, buddies.Requests); err != nil {
		t.Fatalf("alice RefreshCollections: %v", err)
	}
	if got := alice.Buddies.Status(bobID); got != schema.StatusConnected {
		t.Errorf("alice's view after accept = %s", got)
	}
}

func TestExpiredTokenLogsOutWithoutSecondRequest(t *testing.T) {
	f := newFixture(t)
	userID := f.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw1"})
	ctx := context.Background()

	store := credstore.NewMemory()
	expired := f.backend.IssueToken(userID, -time.Hour)
	if err := store.Replace(ctx, credstore.Snapshot{
		Token: expired,
		User:  &schema.Identity{ID: userID, Username: "alice"},
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	assembled := f.newAppWithStore(t, f.config(t), store)
	state, err := assembled.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if state != session.StateLoggedOut {
		t.Fatalf("state = %s, want logged_out", state)
	}
	if store.Snapshot().HasEvidence() {
		t.Error("store still holds evidence after failed verification")
	}
	if got := assembled.Session.Current().RedirectPath; got != session.LoginPath {
		t.Errorf("redirect = %q, want %q", got, session.LoginPath)
	}
	if got := f.backend.CountRequests("GET", "/auth/me"); got != 1 {
		t.Errorf("/auth/me requests = %d, want 1", got)
	}
	if err := assembled.RequireSession(ctx); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("RequireSession = %v, want ErrNotAuthenticated", err)
	}
}

func TestServerRejectionEndsSession(t *testing.T) {
	f := newFixture(t)
	userID := f.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw1"})
	f.backend.AddUser(fakebackend.UserSpec{Username: "bob", Email: "bob@example.com", Password: "pw2"})
	ctx := context.Background()

	assembled := f.newApp(t)
	login(t, assembled, "alice@example.com", "pw1")
	if err := assembled.Buddies.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(assembled.Buddies.Snapshot().All) != 1 {
		t.Fatalf("all = %+v", assembled.Buddies.Snapshot().All)
	}

	changes := make(chan session.Change, 8)
	remove := assembled.Session.OnChange(func(change session.Change) { changes <- change })
	defer remove()

	f.backend.DeactivateUser(userID)
	assembled.Buddies.Refresh(ctx)

	change := testutil.RequireReceive[session.Change](t, changes, 5*time.Second, "no session change after 401")
	if change.State != session.StateLoggedOut || change.RedirectPath != session.ExpiredPath {
		t.Errorf("change = %+v", change)
	}
	if assembled.Store.Token() != "" {
		t.Error("token survived the 401")
	}
	if len(assembled.Buddies.Snapshot().All) != 0 {
		t.Error("buddy data survived logout")
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw1"})
	ctx := context.Background()
	settings := f.config(t)

	first, err := New(ctx, Options{Config: settings, Logger: quiet})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	login(t, first, "alice@example.com", "pw1")
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := New(ctx, Options{Config: settings, Logger: quiet})
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	defer second.Close()
	if err := second.RequireSession(ctx); err != nil {
		t.Fatalf("RequireSession: %v", err)
	}
	if identity := second.Session.Identity(); identity == nil || identity.Username != "alice" {
		t.Errorf("identity = %+v", identity)
	}
}

func TestAdminConsoleForbiddenForUsers(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw1"})
	f.backend.AddUser(fakebackend.UserSpec{Username: "root", Email: "root@example.com", Password: "pw0", Admin: true})
	ctx := context.Background()

	user := f.newApp(t)
	login(t, user, "alice@example.com", "pw1")
	if _, err := user.Admin.Stats(ctx); !errors.Is(err, admin.ErrForbidden) {
		t.Errorf("Stats as user = %v, want ErrForbidden", err)
	}
	if !user.Session.Authenticated() {
		t.Error("a 403 ended the session")
	}

	operator := f.newApp(t)
	if _, err := operator.Session.AdminLogin(ctx, "root@example.com", password(t, "pw0")); err != nil {
		t.Fatalf("AdminLogin: %v", err)
	}
	if !operator.Session.IsAdmin() {
		t.Fatal("admin session not confirmed")
	}
	overview := operator.Admin.Overview(ctx)
	if len(overview.Errs) != 0 {
		t.Fatalf("overview errors = %v", overview.Errs)
	}
	if overview.Stats.TotalUsers != 2 || len(overview.Users) != 2 {
		t.Errorf("overview = %+v", overview)
	}
}

func TestPasswordRecovery(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "old-pw1"})
	ctx := context.Background()
	assembled := f.newApp(t)

	if _, err := assembled.Recovery.RequestCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	code := f.backend.ResetCode("alice@example.com")
	if err := assembled.Recovery.VerifyCode(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if err := assembled.Recovery.Reset(ctx, "alice@example.com", code, password(t, "NewPw2x"), password(t, "NewPw2x")); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := f.backend.CountRequests("POST", "/auth/reset-password"); got != 1 {
		t.Fatalf("reset requests = %d, want 1", got)
	}
	if _, err := assembled.Session.Login(ctx, "alice@example.com", password(t, "old-pw1")); err == nil {
		t.Error("old password still accepted after reset")
	}
	login(t, assembled, "alice@example.com", "NewPw2x")
}

func TestDashboardLoad(t *testing.T) {
	f := newFixture(t)
	f.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw1", Specialization: "Math"})
	f.backend.AddUser(fakebackend.UserSpec{Username: "carol", Email: "carol@example.com", Password: "pw3", NoProfile: true})
	ctx := context.Background()

	alice := f.newApp(t)
	login(t, alice, "alice@example.com", "pw1")
	result, err := alice.Dashboard.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.ProfileMissing || result.Profile == nil || result.Profile.Profile.Specialization != "Math" {
		t.Errorf("profile = %+v missing=%v", result.Profile, result.ProfileMissing)
	}
	if result.ChallengesErr != nil || len(result.Challenges) == 0 {
		t.Errorf("challenges = %+v, err %v", result.Challenges, result.ChallengesErr)
	}

	f.backend.FailNext("GET", "/challenges/personalized", 500, "down")
	result, err = alice.Dashboard.Load(ctx)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if result.ChallengesErr == nil || result.Challenges[0].ID != "fallback-1" {
		t.Errorf("fallback challenges = %+v", result.Challenges)
	}

	carol := f.newApp(t)
	login(t, carol, "carol@example.com", "pw3")
	result, err = carol.Dashboard.Load(ctx)
	if err != nil {
		t.Fatalf("carol Load: %v", err)
	}
	if !result.ProfileMissing {
		t.Error("ProfileMissing not set for a user without a profile")
	}
}
