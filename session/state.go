// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/studybuddy/api"
	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// State is a node of the session state machine.
//
//	Unknown ──▶ NoEvidence ──────────────────▶ LoggedOut
//	   │
//	   └──────▶ HasEvidence ──▶ Verifying ──▶ Authenticated | LoggedOut
//
// Auth actions move between Authenticated and LoggedOut directly.
type State int

const (
	StateUnknown State = iota
	StateNoEvidence
	StateHasEvidence
	StateVerifying
	StateAuthenticated
	StateLoggedOut
)

var stateNames = [...]string{
	StateUnknown:       "unknown",
	StateNoEvidence:    "no_evidence",
	StateHasEvidence:   "has_evidence",
	StateVerifying:     "verifying",
	StateAuthenticated: "authenticated",
	StateLoggedOut:     "logged_out",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsTerminal reports whether the bootstrap machine stops in s.
func (s State) IsTerminal() bool {
	return s == StateAuthenticated || s == StateLoggedOut
}

// Redirect targets attached to logged-out changes.
const (
	LoginPath   = "/login"
	ExpiredPath = "/login?session_expired=true"
)

// Change is published to listeners on every transition.
type Change struct {
	// Sequence increases by one per transition. Listeners invoked
	// from concurrent transitions can use it to discard stale
	// changes.
	Sequence uint64

	State State

	// Identity is the current user, or nil when logged out. During
	// Verifying it is the cached snapshot, not yet confirmed.
	Identity *schema.Identity

	// Admin reports an admin session confirmed by the server.
	Admin bool

	// RedirectPath is set when a front end should navigate to the
	// login surface.
	RedirectPath string

	// Reason is a human-readable explanation for logged-out changes.
	Reason string
}

var (
	// ErrSuperseded means a newer bootstrap or auth action started
	// before this one finished; its result was discarded.
	ErrSuperseded = errors.New("session: superseded by a newer session operation")

	// ErrNotAuthenticated means the operation needs a session.
	ErrNotAuthenticated = errors.New("session: not logged in")

	// ErrNotAdmin means the server did not confirm admin privilege.
	ErrNotAdmin = errors.New("session: account is not an administrator")
)

// Error is a failed auth action. Error returns one human-readable
// sentence; the gateway error stays reachable through Unwrap.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func actionError(op string, err error) error {
	var validation *ValidationError
	if errors.As(err, &validation) || errors.Is(err, ErrSuperseded) {
		return err
	}
	return &Error{Op: op, Message: api.Message(err), Err: err}
}

func cloneIdentity(identity *schema.Identity) *schema.Identity {
	if identity == nil {
		return nil
	}
	copied := *identity
	if identity.Active != nil {
		active := *identity.Active
		copied.Active = &active
	}
	return &copied
}
