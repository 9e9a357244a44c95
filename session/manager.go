// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns the authenticated identity: the bootstrap state
// machine that decides on startup whether a cached session is still
// valid, and the auth actions (login, admin login, signup, logout,
// profile update) that move between logged-in and logged-out.
//
// The Manager is the only writer of the credential store. Every
// operation that starts a new session epoch (bootstrap, login, signup,
// logout, forced logout) advances a generation counter; an operation
// whose generation is stale when its network call returns discards
// its result and reports [ErrSuperseded] instead of overwriting fresher
// state.
//
// Bootstrap never calls an identity endpoint when the store holds no
// evidence of a session (no token, no cached user, no admin flag).
// Together with [Manager.HandleUnauthorized] ignoring 401s while
// logged out without evidence, this rules out a redirect loop between
// protected views and the login view.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bureau-foundation/studybuddy/api"
	"github.com/bureau-foundation/studybuddy/lib/credstore"
	"github.com/bureau-foundation/studybuddy/lib/schema"
	"github.com/bureau-foundation/studybuddy/lib/secret"
)

// Gateway is the subset of *api.Client the Manager uses.
type Gateway interface {
	Login(ctx context.Context, credentials api.Credentials) (*api.AuthResult, error)
	AdminLogin(ctx context.Context, credentials api.Credentials) (*api.AuthResult, error)
	Signup(ctx context.Context, registration api.Registration) (*api.AuthResult, error)
	Logout(ctx context.Context) error
	AdminLogout(ctx context.Context) error
	Me(ctx context.Context) (*schema.Identity, error)
	AdminMe(ctx context.Context) (*schema.Identity, error)
	UpdateProfile(ctx context.Context, update schema.ProfileUpdate) (*api.ProfileUpdateResult, error)
	UpdateProfilePicture(ctx context.Context, update schema.ProfileUpdate, picture api.Picture) (*api.ProfileUpdateResult, error)
	ResetCookies()
}

// Config holds the parameters for New.
type Config struct {
	Gateway Gateway
	Store   *credstore.Store

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Registration is the signup form.
type Registration struct {
	Username string
	Email    string
	Password *secret.Buffer
	Confirm  *secret.Buffer
}

// Manager runs the session state machine. Safe for concurrent use.
type Manager struct {
	gateway Gateway
	store   *credstore.Store
	logger  *slog.Logger

	mu              sync.Mutex
	state           State
	identity        *schema.Identity
	generation      uint64
	cancelBootstrap context.CancelFunc

	// redirect and reason are those of the last teardown, kept until
	// the next authenticated transition.
	redirect string
	reason   string

	sequence     uint64
	pending      []Change
	listeners    map[uint64]func(Change)
	nextListener uint64
}

// New creates a Manager in StateUnknown. Call Bootstrap before use.
func New(config Config) (*Manager, error) {
	if config.Gateway == nil || config.Store == nil {
		return nil, fmt.Errorf("session: Gateway and Store are required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		gateway:   config.Gateway,
		store:     config.Store,
		logger:    logger,
		listeners: make(map[uint64]func(Change)),
	}, nil
}

// OnChange registers listener for every subsequent transition and
// returns a function that removes it. Listeners run synchronously on
// the goroutine that caused the transition, after the Manager's lock
// is released, so they may call back into the Manager.
func (m *Manager) OnChange(listener func(Change)) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = listener
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns a copy of the current identity, or nil.
func (m *Manager) Identity() *schema.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneIdentity(m.identity)
}

// Authenticated reports whether the session is verified.
func (m *Manager) Authenticated() bool {
	return m.State() == StateAuthenticated
}

// IsAdmin reports an authenticated session that came through the admin
// login path and whose identity the server asserts is an admin.
func (m *Manager) IsAdmin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adminLocked()
}

// Current returns the latest state as a Change. While logged out after
// a teardown it carries that teardown's redirect and reason.
func (m *Manager) Current() Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Change{
		Sequence:     m.sequence,
		State:        m.state,
		Identity:     cloneIdentity(m.identity),
		Admin:        m.adminLocked(),
		RedirectPath: m.redirect,
		Reason:       m.reason,
	}
}

func (m *Manager) adminLocked() bool {
	return m.state == StateAuthenticated && m.identity != nil &&
		m.identity.IsAdmin() && m.store.Snapshot().AdminAuthenticated
}

// Bootstrap runs the state machine once. It returns the terminal state
// reached; a verification failure is an outcome (StateLoggedOut), not
// an error. The error is non-nil only when this run was superseded
// (ErrSuperseded), ctx was cancelled, or nothing could be decided.
//
// Starting a new Bootstrap cancels one still in flight.
func (m *Manager) Bootstrap(ctx context.Context) (State, error) {
	m.mu.Lock()
	generation := m.advanceLocked()
	bootstrapContext, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancelBootstrap = cancel

	m.setLocked(StateUnknown, nil, "", "")
	snapshot := m.store.Snapshot()
	if !snapshot.HasEvidence() {
		m.logger.Debug("no session evidence, skipping verification")
		m.setLocked(StateNoEvidence, nil, "", "")
		m.setLocked(StateLoggedOut, nil, "", "")
		m.cancelBootstrap = nil
		m.unlock()
		return StateLoggedOut, nil
	}
	m.setLocked(StateHasEvidence, snapshot.User, "", "")
	m.setLocked(StateVerifying, snapshot.User, "", "")
	m.unlock()

	verify, endpoint := m.gateway.Me, "/auth/me"
	if snapshot.AdminAuthenticated {
		verify, endpoint = m.gateway.AdminMe, "/admin/me"
	}
	identity, err := verify(api.WithToken(bootstrapContext, snapshot.Token))

	m.mu.Lock()
	if m.generation != generation {
		state := m.state
		m.mu.Unlock()
		m.logger.Debug("discarding superseded verification", "endpoint", endpoint)
		return state, ErrSuperseded
	}
	m.cancelBootstrap = nil

	if err != nil && ctx.Err() != nil {
		// The caller gave up; that says nothing about the session.
		m.setLocked(StateUnknown, nil, "", "")
		m.unlock()
		return StateUnknown, ctx.Err()
	}

	if err != nil {
		m.logger.Info("session verification failed, logging out",
			"endpoint", endpoint, "status", api.StatusOf(err), "error", err)
		m.teardownLocked(ctx, LoginPath, "Your session has ended. Please log in again.")
		m.unlock()
		return StateLoggedOut, nil
	}

	admin := snapshot.AdminAuthenticated && identity.IsAdmin()
	if snapshot.AdminAuthenticated && !admin {
		m.logger.Info("server no longer asserts admin privilege, clearing admin flag",
			"user_id", identity.ID)
	}
	verified := credstore.Snapshot{Token: snapshot.Token, User: identity, AdminAuthenticated: admin}
	if err := m.store.Replace(context.WithoutCancel(ctx), verified); err != nil {
		m.logger.Warn("persisting verified identity failed", "error", err)
	}
	m.setLocked(StateAuthenticated, identity, "", "")
	m.unlock()
	return StateAuthenticated, nil
}

// HandleUnauthorized is installed as the gateway's 401 handler. It tears
// the session down and publishes a change redirecting to the login
// surface. While logged out with no evidence it does nothing, so an
// unauthenticated view cannot bounce between states.
func (m *Manager) HandleUnauthorized(httpErr *api.HTTPError) {
	m.mu.Lock()
	if m.state == StateLoggedOut && !m.store.Snapshot().HasEvidence() {
		m.mu.Unlock()
		return
	}
	m.advanceLocked()
	m.logger.Info("session rejected by server, logging out",
		"method", httpErr.Method, "path", httpErr.Path, "request_id", httpErr.RequestID)
	m.teardownLocked(context.Background(), ExpiredPath, "Your session has expired. Please log in again.")
	m.unlock()
}

// Login authenticates through the user login path.
func (m *Manager) Login(ctx context.Context, email string, password *secret.Buffer) (*schema.Identity, error) {
	if err := ValidateLogin(email, password); err != nil {
		return nil, err
	}
	generation := m.begin()

	result, err := m.gateway.Login(api.WithToken(ctx, ""), api.Credentials{
		Email:    strings.TrimSpace(email),
		Password: password,
		Remember: true,
	})
	if err != nil {
		return nil, actionError("login", err)
	}
	identity, err := m.resolveIdentity(ctx, result)
	if err != nil {
		return nil, actionError("login", err)
	}
	snapshot := credstore.Snapshot{Token: result.Token, User: identity}
	if err := m.commit(ctx, generation, snapshot); err != nil {
		return nil, err
	}
	m.logger.Info("logged in", "user_id", identity.ID)
	return cloneIdentity(identity), nil
}

// AdminLogin authenticates through the admin login path, then asks the
// admin identity endpoint to confirm the privilege. If confirmation
// fails the login still succeeds, as a regular user session with the
// admin flag cleared; admin-only calls will then fail on their own.
func (m *Manager) AdminLogin(ctx context.Context, email string, password *secret.Buffer) (*schema.Identity, error) {
	if err := ValidateLogin(email, password); err != nil {
		return nil, err
	}
	generation := m.begin()

	result, err := m.gateway.AdminLogin(api.WithToken(ctx, ""), api.Credentials{
		Email:    strings.TrimSpace(email),
		Password: password,
		Remember: true,
	})
	if err != nil {
		return nil, actionError("admin login", err)
	}
	identity, err := m.resolveIdentity(ctx, result)
	if err != nil {
		return nil, actionError("admin login", err)
	}
	asserted := credstore.Snapshot{Token: result.Token, User: identity, AdminAuthenticated: true}
	if err := m.commit(ctx, generation, asserted); err != nil {
		return nil, err
	}

	confirmed, err := m.gateway.AdminMe(api.WithToken(ctx, result.Token))
	if err == nil && confirmed.IsAdmin() {
		if err := m.commit(ctx, generation, credstore.Snapshot{
			Token: result.Token, User: confirmed, AdminAuthenticated: true,
		}); err != nil {
			return nil, err
		}
		m.logger.Info("admin logged in", "user_id", confirmed.ID)
		return cloneIdentity(confirmed), nil
	}
	if err == nil {
		err = ErrNotAdmin
	}
	m.logger.Warn("admin privilege not confirmed, continuing as regular user",
		"user_id", identity.ID, "status", api.StatusOf(err), "error", err)

	degraded := identity.WithoutAdmin()
	if err := m.commit(ctx, generation, credstore.Snapshot{Token: result.Token, User: &degraded}); err != nil {
		return nil, err
	}
	return cloneIdentity(&degraded), nil
}

// Signup registers and logs in. The returned user (or one synthesized
// from the form when the response has none) becomes the identity
// without another round trip. Never sets the admin flag.
func (m *Manager) Signup(ctx context.Context, registration Registration) (*schema.Identity, error) {
	if err := ValidateSignup(registration); err != nil {
		return nil, err
	}
	generation := m.begin()

	username := strings.TrimSpace(registration.Username)
	email := strings.TrimSpace(registration.Email)
	result, err := m.gateway.Signup(api.WithToken(ctx, ""), api.Registration{
		Username: username,
		Email:    email,
		Password: registration.Password,
	})
	if err != nil {
		return nil, actionError("signup", err)
	}
	identity := result.User
	if identity == nil {
		identity = &schema.Identity{Username: username, Email: email}
	}
	if err := m.commit(ctx, generation, credstore.Snapshot{Token: result.Token, User: identity}); err != nil {
		return nil, err
	}
	m.logger.Info("signed up", "user_id", identity.ID)
	return cloneIdentity(identity), nil
}

// Logout ends the session. The backend call is best effort; local
// state always ends logged out.
func (m *Manager) Logout(ctx context.Context) {
	m.logout(ctx, m.gateway.Logout)
}

// AdminLogout is Logout through the admin path.
func (m *Manager) AdminLogout(ctx context.Context) {
	m.logout(ctx, m.gateway.AdminLogout)
}

func (m *Manager) logout(ctx context.Context, call func(context.Context) error) {
	m.begin()
	if err := call(ctx); err != nil {
		m.logger.Warn("logout request failed, clearing local session anyway", "error", err)
	}

	m.mu.Lock()
	m.advanceLocked()
	m.teardownLocked(ctx, LoginPath, "Logged out")
	m.unlock()
}

// UpdateProfile sends a profile update, with a picture when picture is
// non-nil. An updated user echoed by the backend is adopted when it
// carries the current user's id; otherwise the identity is fetched
// again. The server does not echo admin assertions, so those are kept.
func (m *Manager) UpdateProfile(ctx context.Context, update schema.ProfileUpdate, picture *api.Picture) (*schema.Identity, error) {
	m.mu.Lock()
	if m.state != StateAuthenticated || m.identity == nil {
		m.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	generation := m.generation
	current := *m.identity
	m.mu.Unlock()

	var result *api.ProfileUpdateResult
	var err error
	if picture != nil {
		result, err = m.gateway.UpdateProfilePicture(ctx, update, *picture)
	} else {
		result, err = m.gateway.UpdateProfile(ctx, update)
	}
	if err != nil {
		return nil, actionError("update profile", err)
	}

	identity := result.User
	if identity == nil || identity.ID == 0 || (current.ID != 0 && identity.ID != current.ID) {
		identity, err = m.gateway.Me(ctx)
		if err != nil {
			return nil, actionError("update profile", err)
		}
	}
	if identity.Role == "" {
		identity.Role = current.Role
	}
	identity.Admin = identity.Admin || current.Admin

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return nil, ErrSuperseded
	}
	if err := m.store.Update(ctx, func(snapshot *credstore.Snapshot) {
		snapshot.User = identity
	}); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("session: saving updated identity: %w", err)
	}
	m.setLocked(StateAuthenticated, identity, "", "")
	m.unlock()
	return cloneIdentity(identity), nil
}

// CheckAdminSession asks the server whether the session is still an
// admin's. A 401 or 403 clears the admin flag but leaves the session
// intact; privilege errors never log the user out.
func (m *Manager) CheckAdminSession(ctx context.Context) (bool, error) {
	if !m.Authenticated() {
		return false, ErrNotAuthenticated
	}
	identity, err := m.gateway.AdminMe(ctx)
	switch {
	case err == nil && identity.IsAdmin():
		return m.IsAdmin(), nil
	case err == nil, api.IsUnauthorized(err), api.IsForbidden(err):
		m.mu.Lock()
		if m.store.Snapshot().AdminAuthenticated {
			if updateErr := m.store.Update(ctx, func(snapshot *credstore.Snapshot) {
				snapshot.AdminAuthenticated = false
			}); updateErr != nil {
				m.logger.Warn("clearing admin flag failed", "error", updateErr)
			}
			m.setLocked(m.state, m.identity, "", "")
		}
		m.unlock()
		return false, nil
	default:
		return false, actionError("check admin session", err)
	}
}

func (m *Manager) resolveIdentity(ctx context.Context, result *api.AuthResult) (*schema.Identity, error) {
	if result.User != nil {
		return result.User, nil
	}
	return m.gateway.Me(api.WithToken(ctx, result.Token))
}

// begin starts a new session epoch for an auth action.
func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advanceLocked()
}

func (m *Manager) advanceLocked() uint64 {
	m.generation++
	if m.cancelBootstrap != nil {
		m.cancelBootstrap()
		m.cancelBootstrap = nil
	}
	return m.generation
}

// commit persists snapshot and enters StateAuthenticated, unless a
// newer epoch has started. The store is unchanged if persisting fails.
func (m *Manager) commit(ctx context.Context, generation uint64, snapshot credstore.Snapshot) error {
	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return ErrSuperseded
	}
	if err := m.store.Replace(ctx, snapshot); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("session: saving credentials: %w", err)
	}
	m.setLocked(StateAuthenticated, snapshot.User, "", "")
	m.unlock()
	return nil
}

// teardownLocked clears every credential at once and enters
// StateLoggedOut. The store clears its in-memory record even if
// persisting the clear fails.
func (m *Manager) teardownLocked(ctx context.Context, redirect, reason string) {
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("clearing persisted credentials failed", "error", err)
	}
	m.gateway.ResetCookies()
	m.setLocked(StateLoggedOut, nil, redirect, reason)
}

// setLocked records a transition to be published by unlock.
func (m *Manager) setLocked(state State, identity *schema.Identity, redirect, reason string) {
	m.state = state
	m.identity = cloneIdentity(identity)
	switch {
	case state == StateAuthenticated:
		m.redirect, m.reason = "", ""
	case redirect != "" || reason != "":
		m.redirect, m.reason = redirect, reason
	}
	m.sequence++
	m.pending = append(m.pending, Change{
		Sequence:     m.sequence,
		State:        state,
		Identity:     cloneIdentity(identity),
		Admin:        m.adminLocked(),
		RedirectPath: redirect,
		Reason:       reason,
	})
}

// unlock releases m.mu and then publishes the transitions recorded
// while it was held.
func (m *Manager) unlock() {
	pending := m.pending
	m.pending = nil
	listeners := make([]func(Change), 0, len(m.listeners))
	for _, listener := range m.listeners {
		listeners = append(listeners, listener)
	}
	m.mu.Unlock()

	for _, change := range pending {
		for _, listener := range listeners {
			listener(change)
		}
	}
}
