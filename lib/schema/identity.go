// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Role is the privilege level the server asserts for an identity.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the authenticated user. The server's verification
// response is authoritative; a cached copy exists only so a restarted
// client can paint before verification completes.
//
// The backend reports admin privilege either as a role string or as an
// is_admin boolean depending on the endpoint, so both are decoded and
// [Identity.IsAdmin] consults both.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`

	Role  Role `json:"role,omitempty"`
	Admin bool `json:"is_admin,omitempty"`

	// Active is nil when the endpoint does not report activation
	// status. The auth endpoints only return active accounts.
	Active *bool `json:"is_active,omitempty"`
}

// IsAdmin reports whether the identity carries an admin assertion.
func (identity Identity) IsAdmin() bool {
	return identity.Admin || identity.Role == RoleAdmin
}

// IsActive reports whether the account is active. Identities from
// endpoints that do not report status are treated as active.
func (identity Identity) IsActive() bool {
	return identity.Active == nil || *identity.Active
}

// IsZero reports whether the identity carries no identifying fields.
func (identity Identity) IsZero() bool {
	return identity.ID == 0 && identity.Username == "" && identity.Email == ""
}

// WithoutAdmin returns a copy with every admin assertion removed. Used
// when an admin login could not be confirmed by the server.
func (identity Identity) WithoutAdmin() Identity {
	identity.Admin = false
	if identity.Role == RoleAdmin {
		identity.Role = RoleUser
	}
	return identity
}
