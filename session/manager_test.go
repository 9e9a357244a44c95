// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/studybuddy/api"
	"github.com/bureau-foundation/studybuddy/lib/credstore"
	"github.com/bureau-foundation/studybuddy/lib/schema"
	"github.com/bureau-foundation/studybuddy/lib/secret"
	"github.com/bureau-foundation/studybuddy/lib/testutil"
)

// fakeGateway records calls and dispatches to per-test functions. A
// call with no function configured fails the test.
type fakeGateway struct {
	t *testing.T

	mu     sync.Mutex
	calls  []string
	resets int

	login         func(context.Context, api.Credentials) (*api.AuthResult, error)
	adminLogin    func(context.Context, api.Credentials) (*api.AuthResult, error)
	signup        func(context.Context, api.Registration) (*api.AuthResult, error)
	logout        func(context.Context) error
	me            func(context.Context) (*schema.Identity, error)
	adminMe       func(context.Context) (*schema.Identity, error)
	updateProfile func(context.Context, schema.ProfileUpdate, *api.Picture) (*api.ProfileUpdateResult, error)
}

func (g *fakeGateway) record(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, name)
}

func (g *fakeGateway) called(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, call := range g.calls {
		if call == name {
			count++
		}
	}
	return count
}

func (g *fakeGateway) unexpected(name string) error {
	g.t.Errorf("unexpected gateway call %s", name)
	return fmt.Errorf("unexpected call %s", name)
}

func (g *fakeGateway) Login(ctx context.Context, credentials api.Credentials) (*api.AuthResult, error) {
	g.record("login")
	if g.login == nil {
		return nil, g.unexpected("login")
	}
	return g.login(ctx, credentials)
}

func (g *fakeGateway) AdminLogin(ctx context.Context, credentials api.Credentials) (*api.AuthResult, error) {
	g.record("admin_login")
	if g.adminLogin == nil {
		return nil, g.unexpected("admin_login")
	}
	return g.adminLogin(ctx, credentials)
}

func (g *fakeGateway) Signup(ctx context.Context, registration api.Registration) (*api.AuthResult, error) {
	g.record("signup")
	if g.signup == nil {
		return nil, g.unexpected("signup")
	}
	return g.signup(ctx, registration)
}

func (g *fakeGateway) Logout(ctx context.Context) error {
	g.record("logout")
	if g.logout == nil {
		return g.unexpected("logout")
	}
	return g.logout(ctx)
}

func (g *fakeGateway) AdminLogout(ctx context.Context) error {
	g.record("admin_logout")
	if g.logout == nil {
		return g.unexpected("admin_logout")
	}
	return g.logout(ctx)
}

func (g *fakeGateway) Me(ctx context.Context) (*schema.Identity, error) {
	g.record("me")
	if g.me == nil {
		return nil, g.unexpected("me")
	}
	return g.me(ctx)
}

func (g *fakeGateway) AdminMe(ctx context.Context) (*schema.Identity, error) {
	g.record("admin_me")
	if g.adminMe == nil {
		return nil, g.unexpected("admin_me")
	}
	return g.adminMe(ctx)
}

func (g *fakeGateway) UpdateProfile(ctx context.Context, update schema.ProfileUpdate) (*api.ProfileUpdateResult, error) {
	g.record("update_profile")
	if g.updateProfile == nil {
		return nil, g.unexpected("update_profile")
	}
	return g.updateProfile(ctx, update, nil)
}

func (g *fakeGateway) UpdateProfilePicture(ctx context.Context, update schema.ProfileUpdate, picture api.Picture) (*api.ProfileUpdateResult, error) {
	g.record("update_profile_picture")
	if g.updateProfile == nil {
		return nil, g.unexpected("update_profile_picture")
	}
	return g.updateProfile(ctx, update, &picture)
}

func (g *fakeGateway) ResetCookies() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resets++
}

func unauthorized(path string) error {
	return &api.HTTPError{StatusCode: http.StatusUnauthorized, Message: "Not authenticated", Method: http.MethodGet, Path: path}
}

func forbidden(path string) error {
	return &api.HTTPError{StatusCode: http.StatusForbidden, Message: "Admin access required", Method: http.MethodGet, Path: path}
}

func newTestManager(t *testing.T, gateway *fakeGateway, seed *credstore.Snapshot) (*Manager, *credstore.Store) {
	t.Helper()
	gateway.t = t
	store := credstore.NewMemory()
	if seed != nil {
		if err := store.Replace(context.Background(), *seed); err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}
	manager, err := New(Config{Gateway: gateway, Store: store})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return manager, store
}

func recordChanges(manager *Manager) func() []Change {
	var mu sync.Mutex
	var changes []Change
	manager.OnChange(func(change Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, change)
	})
	return func() []Change {
		mu.Lock()
		defer mu.Unlock()
		return append([]Change(nil), changes...)
	}
}

func password(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestBootstrapWithoutEvidenceMakesNoCalls(t *testing.T) {
	gateway := &fakeGateway{}
	manager, _ := newTestManager(t, gateway, nil)
	changes := recordChanges(manager)

	state, err := manager.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if state != StateLoggedOut {
		t.Fatalf("state = %v, want logged_out", state)
	}
	if len(gateway.calls) != 0 {
		t.Errorf("gateway calls = %v, want none", gateway.calls)
	}

	var states []State
	for _, change := range changes() {
		states = append(states, change.State)
	}
	want := []State{StateUnknown, StateNoEvidence, StateLoggedOut}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", states, want)
	}
}

func TestBootstrapExpiredTokenTearsDown(t *testing.T) {
	gateway := &fakeGateway{
		me: func(context.Context) (*schema.Identity, error) { return nil, unauthorized("/auth/me") },
	}
	manager, store := newTestManager(t, gateway, &credstore.Snapshot{
		Token: "expired",
		User:  &schema.Identity{ID: 1, Email: "ada@example.com"},
	})
	changes := recordChanges(manager)

	state, err := manager.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if state != StateLoggedOut {
		t.Fatalf("state = %v", state)
	}
	if store.Snapshot().HasEvidence() {
		t.Errorf("store still holds evidence: %+v", store.Snapshot())
	}
	if gateway.resets != 1 {
		t.Errorf("cookie resets = %d, want 1", gateway.resets)
	}
	all := changes()
	last := all[len(all)-1]
	if last.State != StateLoggedOut || last.RedirectPath != LoginPath {
		t.Errorf("last change = %+v", last)
	}
	if manager.Identity() != nil {
		t.Error("identity survived teardown")
	}
}

func TestBootstrapFailureKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"server error", &api.HTTPError{StatusCode: 500, Message: "boom"}},
		{"network", &api.NetworkError{Method: "GET", Path: "/auth/me", Err: errors.New("connection refused")}},
		{"parse", &api.ParseError{Method: "GET", Path: "/auth/me", Err: errors.New("not json")}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			gateway := &fakeGateway{
				me: func(context.Context) (*schema.Identity, error) { return nil, test.err },
			}
			manager, store := newTestManager(t, gateway, &credstore.Snapshot{Token: "t"})
			state, _ := manager.Bootstrap(context.Background())
			if state != StateLoggedOut || store.Snapshot().HasEvidence() {
				t.Errorf("state = %v, snapshot = %+v", state, store.Snapshot())
			}
		})
	}
}

func TestBootstrapServerIdentityWins(t *testing.T) {
	gateway := &fakeGateway{
		me: func(context.Context) (*schema.Identity, error) {
			return &schema.Identity{ID: 1, Username: "ada-renamed", Email: "ada@example.com"}, nil
		},
	}
	manager, store := newTestManager(t, gateway, &credstore.Snapshot{
		User: &schema.Identity{ID: 1, Username: "ada", Email: "ada@example.com"},
	})

	state, err := manager.Bootstrap(context.Background())
	if err != nil || state != StateAuthenticated {
		t.Fatalf("Bootstrap = %v, %v", state, err)
	}
	if got := manager.Identity().Username; got != "ada-renamed" {
		t.Errorf("identity username = %q", got)
	}
	if got := store.Snapshot().User.Username; got != "ada-renamed" {
		t.Errorf("stored username = %q", got)
	}
	if gateway.called("admin_me") != 0 {
		t.Error("admin endpoint used without admin flag")
	}
}

func TestBootstrapAdminFlag(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		gateway := &fakeGateway{
			adminMe: func(context.Context) (*schema.Identity, error) {
				return &schema.Identity{ID: 1, Email: "root@example.com", Admin: true}, nil
			},
		}
		manager, store := newTestManager(t, gateway, &credstore.Snapshot{AdminAuthenticated: true})
		if state, _ := manager.Bootstrap(context.Background()); state != StateAuthenticated {
			t.Fatalf("state = %v", state)
		}
		if !manager.IsAdmin() || !store.Snapshot().AdminAuthenticated {
			t.Error("admin session not retained")
		}
		if gateway.called("me") != 0 {
			t.Error("user endpoint used with admin flag set")
		}
	})

	t.Run("server no longer asserts admin", func(t *testing.T) {
		gateway := &fakeGateway{
			adminMe: func(context.Context) (*schema.Identity, error) {
				return &schema.Identity{ID: 1, Email: "root@example.com"}, nil
			},
		}
		manager, store := newTestManager(t, gateway, &credstore.Snapshot{AdminAuthenticated: true, Token: "t"})
		if state, _ := manager.Bootstrap(context.Background()); state != StateAuthenticated {
			t.Fatalf("state = %v", state)
		}
		if manager.IsAdmin() || store.Snapshot().AdminAuthenticated {
			t.Error("admin flag not corrected")
		}
	})
}

func TestBootstrapSupersededResultIsDiscarded(t *testing.T) {
	entered := make(chan struct{})
	var calls int
	var callsMu sync.Mutex
	gateway := &fakeGateway{
		me: func(ctx context.Context) (*schema.Identity, error) {
			callsMu.Lock()
			calls++
			first := calls == 1
			callsMu.Unlock()
			if first {
				close(entered)
				<-ctx.Done()
				// A stale failure must not tear down the newer session.
				return nil, unauthorized("/auth/me")
			}
			return &schema.Identity{ID: 2, Email: "new@example.com"}, nil
		},
	}
	manager, store := newTestManager(t, gateway, &credstore.Snapshot{Token: "t"})

	type outcome struct {
		state State
		err   error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		state, err := manager.Bootstrap(context.Background())
		firstDone <- outcome{state, err}
	}()
	testutil.RequireClosed(t, entered, 5*time.Second, "first verification did not start")

	state, err := manager.Bootstrap(context.Background())
	if err != nil || state != StateAuthenticated {
		t.Fatalf("second Bootstrap = %v, %v", state, err)
	}
	first := testutil.RequireReceive[outcome](t, firstDone, 5*time.Second, "first bootstrap did not return")
	if !errors.Is(first.err, ErrSuperseded) {
		t.Errorf("first bootstrap error = %v, want ErrSuperseded", first.err)
	}
	if manager.State() != StateAuthenticated || store.Snapshot().Token != "t" {
		t.Errorf("state = %v, snapshot = %+v", manager.State(), store.Snapshot())
	}
}

func TestBootstrapCallerCancelKeepsEvidence(t *testing.T) {
	gateway := &fakeGateway{
		me: func(ctx context.Context) (*schema.Identity, error) {
			<-ctx.Done()
			return nil, &api.NetworkError{Method: "GET", Path: "/auth/me", Err: ctx.Err()}
		},
	}
	manager, store := newTestManager(t, gateway, &credstore.Snapshot{Token: "t"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	state, err := manager.Bootstrap(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if state != StateUnknown {
		t.Errorf("state = %v, want unknown", state)
	}
	if store.Snapshot().Token != "t" {
		t.Error("cancelled bootstrap cleared credentials")
	}
}

func TestLoginStoresTokenOnlyWhenReturned(t *testing.T) {
	for _, token := range []string{"", "jwt-abc"} {
		t.Run(fmt.Sprintf("token=%q", token), func(t *testing.T) {
			gateway := &fakeGateway{
				login: func(_ context.Context, credentials api.Credentials) (*api.AuthResult, error) {
					if credentials.Password.String() != "Secret1" || !credentials.Remember {
						t.Errorf("credentials = %+v", credentials)
					}
					return &api.AuthResult{
						Token: token,
						User:  &schema.Identity{ID: 4, Username: "ada", Email: credentials.Email},
					}, nil
				},
			}
			manager, store := newTestManager(t, gateway, nil)
			identity, err := manager.Login(context.Background(), "ada@example.com", password(t, "Secret1"))
			if err != nil {
				t.Fatalf("Login: %v", err)
			}
			if identity.Email != "ada@example.com" {
				t.Errorf("email = %q", identity.Email)
			}
			if store.Snapshot().Token != token {
				t.Errorf("stored token = %q, want %q", store.Snapshot().Token, token)
			}
			if store.Snapshot().AdminAuthenticated {
				t.Error("user login set admin flag")
			}
			if manager.State() != StateAuthenticated {
				t.Errorf("state = %v", manager.State())
			}
			if gateway.called("me") != 0 {
				t.Error("identity fetched although login returned a user")
			}
		})
	}
}

func TestLoginFetchesIdentityWhenMissing(t *testing.T) {
	gateway := &fakeGateway{
		login: func(context.Context, api.Credentials) (*api.AuthResult, error) {
			return &api.AuthResult{Token: "jwt"}, nil
		},
		me: func(context.Context) (*schema.Identity, error) {
			return &schema.Identity{ID: 9, Email: "ada@example.com"}, nil
		},
	}
	manager, store := newTestManager(t, gateway, nil)
	identity, err := manager.Login(context.Background(), "ada@example.com", password(t, "Secret1"))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if identity.ID != 9 || store.Snapshot().User.ID != 9 || store.Snapshot().Token != "jwt" {
		t.Errorf("identity = %+v, snapshot = %+v", identity, store.Snapshot())
	}
}

func TestLoginFailureMutatesNothing(t *testing.T) {
	t.Run("rejected credentials", func(t *testing.T) {
		gateway := &fakeGateway{
			login: func(context.Context, api.Credentials) (*api.AuthResult, error) {
				return nil, &api.HTTPError{StatusCode: 401, Message: "Invalid credentials"}
			},
		}
		manager, store := newTestManager(t, gateway, nil)
		_, err := manager.Login(context.Background(), "ada@example.com", password(t, "Wrong1x"))
		if err == nil || err.Error() != "Invalid credentials" {
			t.Fatalf("error = %v", err)
		}
		var sessionErr *Error
		if !errors.As(err, &sessionErr) || !api.IsUnauthorized(err) {
			t.Errorf("error chain lost: %#v", err)
		}
		if store.Snapshot().HasEvidence() || manager.State() != StateUnknown {
			t.Errorf("state = %v, snapshot = %+v", manager.State(), store.Snapshot())
		}
	})

	t.Run("identity fetch fails after token issued", func(t *testing.T) {
		gateway := &fakeGateway{
			login: func(context.Context, api.Credentials) (*api.AuthResult, error) {
				return &api.AuthResult{Token: "half"}, nil
			},
			me: func(context.Context) (*schema.Identity, error) {
				return nil, &api.NetworkError{Method: "GET", Path: "/auth/me", Err: errors.New("reset")}
			},
		}
		manager, store := newTestManager(t, gateway, nil)
		if _, err := manager.Login(context.Background(), "ada@example.com", password(t, "Secret1")); err == nil {
			t.Fatal("expected error")
		}
		if store.Snapshot().Token != "" {
			t.Error("half-set token left in store")
		}
	})

	t.Run("validation", func(t *testing.T) {
		manager, _ := newTestManager(t, &fakeGateway{}, nil)
		_, err := manager.Login(context.Background(), " ", password(t, "Secret1"))
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("error = %v, want *ValidationError", err)
		}
	})
}

func TestAdminLogin(t *testing.T) {
	login := func(context.Context, api.Credentials) (*api.AuthResult, error) {
		return &api.AuthResult{User: &schema.Identity{ID: 1, Email: "root@example.com", Admin: true}}, nil
	}

	t.Run("confirmed", func(t *testing.T) {
		gateway := &fakeGateway{
			adminLogin: login,
			adminMe: func(context.Context) (*schema.Identity, error) {
				return &schema.Identity{ID: 1, Email: "root@example.com", Admin: true}, nil
			},
		}
		manager, store := newTestManager(t, gateway, nil)
		if _, err := manager.AdminLogin(context.Background(), "root@example.com", password(t, "Secret1")); err != nil {
			t.Fatalf("AdminLogin: %v", err)
		}
		if !manager.IsAdmin() || !store.Snapshot().AdminAuthenticated {
			t.Error("admin session not established")
		}
	})

	t.Run("re-check forbidden degrades to user", func(t *testing.T) {
		gateway := &fakeGateway{
			adminLogin: login,
			adminMe:    func(context.Context) (*schema.Identity, error) { return nil, forbidden("/admin/me") },
		}
		manager, store := newTestManager(t, gateway, nil)
		identity, err := manager.AdminLogin(context.Background(), "root@example.com", password(t, "Secret1"))
		if err != nil {
			t.Fatalf("AdminLogin: %v", err)
		}
		if identity.IsAdmin() || manager.IsAdmin() {
			t.Error("unconfirmed admin privilege kept")
		}
		if store.Snapshot().AdminAuthenticated {
			t.Error("admin flag left set")
		}
		if manager.State() != StateAuthenticated || store.Snapshot().User == nil {
			t.Errorf("base session lost: state %v", manager.State())
		}
		if gateway.resets != 0 {
			t.Error("privilege error reset cookies")
		}
	})
}

func TestSignup(t *testing.T) {
	t.Run("synthesized identity", func(t *testing.T) {
		gateway := &fakeGateway{
			signup: func(_ context.Context, registration api.Registration) (*api.AuthResult, error) {
				if registration.Username != "ada" || registration.Password.String() != "Secret1" {
					t.Errorf("registration = %+v", registration)
				}
				return &api.AuthResult{Message: "User created and logged in successfully"}, nil
			},
		}
		manager, store := newTestManager(t, gateway, nil)
		identity, err := manager.Signup(context.Background(), Registration{
			Username: " ada ", Email: "ada@example.com",
			Password: password(t, "Secret1"), Confirm: password(t, "Secret1"),
		})
		if err != nil {
			t.Fatalf("Signup: %v", err)
		}
		if identity.Username != "ada" || identity.Email != "ada@example.com" {
			t.Errorf("identity = %+v", identity)
		}
		if gateway.called("me") != 0 {
			t.Error("signup made an extra identity round trip")
		}
		if store.Snapshot().AdminAuthenticated {
			t.Error("signup set admin flag")
		}
	})

	t.Run("validation blocks request", func(t *testing.T) {
		gateway := &fakeGateway{}
		manager, _ := newTestManager(t, gateway, nil)
		_, err := manager.Signup(context.Background(), Registration{
			Username: "ada", Email: "ada@example.com",
			Password: password(t, "Secret1"), Confirm: password(t, "Secret2"),
		})
		var validation *ValidationError
		if !errors.As(err, &validation) || validation.Field != "confirm_password" {
			t.Fatalf("error = %v", err)
		}
		if len(gateway.calls) != 0 {
			t.Errorf("calls = %v", gateway.calls)
		}
	})
}

func TestLogoutAlwaysTearsDown(t *testing.T) {
	gateway := &fakeGateway{
		logout: func(context.Context) error {
			return &api.NetworkError{Method: "POST", Path: "/auth/logout", Err: errors.New("offline")}
		},
	}
	manager, store := newTestManager(t, gateway, &credstore.Snapshot{
		Token: "t", User: &schema.Identity{ID: 1}, AdminAuthenticated: true,
	})
	manager.Logout(context.Background())

	if manager.State() != StateLoggedOut {
		t.Errorf("state = %v", manager.State())
	}
	if snapshot := store.Snapshot(); snapshot.HasEvidence() {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if gateway.called("logout") != 1 {
		t.Error("logout not attempted")
	}
	if current := manager.Current(); current.RedirectPath != LoginPath || current.Reason != "Logged out" {
		t.Errorf("Current() = %+v, want the logout redirect", current)
	}
}

func TestHandleUnauthorized(t *testing.T) {
	gateway := &fakeGateway{
		login: func(_ context.Context, credentials api.Credentials) (*api.AuthResult, error) {
			return &api.AuthResult{Token: "t", User: &schema.Identity{ID: 1, Email: credentials.Email}}, nil
		},
	}
	manager, store := newTestManager(t, gateway, nil)
	if _, err := manager.Login(context.Background(), "ada@example.com", password(t, "Secret1")); err != nil {
		t.Fatal(err)
	}
	changes := recordChanges(manager)

	manager.HandleUnauthorized(&api.HTTPError{StatusCode: 401, Path: "/buddies/connected"})
	if manager.State() != StateLoggedOut || store.Snapshot().HasEvidence() {
		t.Fatalf("state = %v, snapshot = %+v", manager.State(), store.Snapshot())
	}
	got := changes()
	if len(got) != 1 || got[0].RedirectPath != ExpiredPath {
		t.Fatalf("changes = %+v", got)
	}

	if current := manager.Current(); current.RedirectPath != ExpiredPath {
		t.Errorf("Current().RedirectPath = %q, want %q", current.RedirectPath, ExpiredPath)
	}

	// Already logged out with nothing cached: no second redirect.
	manager.HandleUnauthorized(&api.HTTPError{StatusCode: 401, Path: "/notifications"})
	if len(changes()) != 1 {
		t.Errorf("redirect repeated: %+v", changes())
	}

	if _, err := manager.Login(context.Background(), "ada@example.com", password(t, "Secret1")); err != nil {
		t.Fatal(err)
	}
	if current := manager.Current(); current.RedirectPath != "" || current.Reason != "" {
		t.Errorf("Current() after login = %+v, want no redirect", current)
	}
}

func TestUpdateProfile(t *testing.T) {
	seed := &credstore.Snapshot{Token: "t", User: &schema.Identity{ID: 5, Username: "ada", Email: "ada@example.com", Admin: true}, AdminAuthenticated: true}
	verified := func(context.Context) (*schema.Identity, error) {
		return &schema.Identity{ID: 5, Username: "ada", Email: "ada@example.com", Admin: true}, nil
	}

	t.Run("requires session", func(t *testing.T) {
		manager, _ := newTestManager(t, &fakeGateway{}, nil)
		if _, err := manager.UpdateProfile(context.Background(), schema.ProfileUpdate{}, nil); !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("adopts echoed user", func(t *testing.T) {
		gateway := &fakeGateway{
			adminMe: verified,
			updateProfile: func(context.Context, schema.ProfileUpdate, *api.Picture) (*api.ProfileUpdateResult, error) {
				return &api.ProfileUpdateResult{User: &schema.Identity{ID: 5, Username: "ada2", Email: "ada@example.com"}}, nil
			},
		}
		manager, store := newTestManager(t, gateway, seed)
		manager.Bootstrap(context.Background())

		identity, err := manager.UpdateProfile(context.Background(), schema.ProfileUpdate{}, nil)
		if err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		if identity.Username != "ada2" || store.Snapshot().User.Username != "ada2" {
			t.Errorf("identity = %+v", identity)
		}
		if !manager.IsAdmin() {
			t.Error("admin assertion lost on profile update")
		}
		if gateway.called("me") != 0 {
			t.Error("refetched identity despite echoed user")
		}
	})

	t.Run("message-only response refetches identity", func(t *testing.T) {
		gateway := &fakeGateway{
			adminMe: verified,
			updateProfile: func(_ context.Context, _ schema.ProfileUpdate, picture *api.Picture) (*api.ProfileUpdateResult, error) {
				if picture == nil || picture.Filename != "me.png" {
					t.Errorf("picture = %+v", picture)
				}
				return &api.ProfileUpdateResult{Message: "Profile updated successfully"}, nil
			},
			me: func(context.Context) (*schema.Identity, error) {
				return &schema.Identity{ID: 5, Username: "ada3", Email: "ada@example.com"}, nil
			},
		}
		manager, _ := newTestManager(t, gateway, seed)
		manager.Bootstrap(context.Background())

		identity, err := manager.UpdateProfile(context.Background(), schema.ProfileUpdate{}, &api.Picture{Filename: "me.png"})
		if err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		if identity.Username != "ada3" || gateway.called("me") != 1 {
			t.Errorf("identity = %+v, me calls = %d", identity, gateway.called("me"))
		}
	})
}

func TestCheckAdminSession(t *testing.T) {
	responses := []error{nil, forbidden("/admin/me")}
	var index int
	gateway := &fakeGateway{
		adminMe: func(context.Context) (*schema.Identity, error) {
			err := responses[index]
			index++
			if err != nil {
				return nil, err
			}
			return &schema.Identity{ID: 1, Admin: true}, nil
		},
	}
	manager, store := newTestManager(t, gateway, &credstore.Snapshot{Token: "t", AdminAuthenticated: true})
	if state, _ := manager.Bootstrap(context.Background()); state != StateAuthenticated {
		t.Fatalf("state = %v", state)
	}

	admin, err := manager.CheckAdminSession(context.Background())
	if err != nil || admin {
		t.Fatalf("CheckAdminSession = %v, %v; want false after 403", admin, err)
	}
	if store.Snapshot().AdminAuthenticated {
		t.Error("admin flag not cleared")
	}
	if manager.State() != StateAuthenticated {
		t.Error("privilege error ended the session")
	}
}
