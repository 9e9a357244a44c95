// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// ConnectionStatus is the relationship between the current user and a
// peer, from the current user's point of view.
type ConnectionStatus string

const (
	// StatusNotConnected means no request exists in either direction.
	StatusNotConnected ConnectionStatus = "not_connected"

	// StatusRequestSent means the current user has a pending request
	// to the peer.
	StatusRequestSent ConnectionStatus = "request_sent"

	// StatusRequestReceived means the peer has a pending request to
	// the current user.
	StatusRequestReceived ConnectionStatus = "request_received"

	// StatusConnected means a request was accepted in either
	// direction.
	StatusConnected ConnectionStatus = "connected"
)

// IsKnown reports whether s is one of the four defined statuses.
func (s ConnectionStatus) IsKnown() bool {
	switch s {
	case StatusNotConnected, StatusRequestSent, StatusRequestReceived, StatusConnected:
		return true
	}
	return false
}

// Normalize maps the empty string and unrecognized values to
// StatusNotConnected. Collections fetched from the connected-buddies
// endpoint omit the field entirely.
func (s ConnectionStatus) Normalize() ConnectionStatus {
	if s.IsKnown() {
		return s
	}
	return StatusNotConnected
}

// Buddy is a peer as it appears in the recommended, all, and connected
// collections. ID is the peer's user id and is the key the reconciler
// uses for cross-collection consistency.
type Buddy struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"userId,omitempty"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	Avatar         string     `json:"avatar,omitempty"`
	Specialization string     `json:"specialization,omitempty"`
	Level          string     `json:"level,omitempty"`
	Interests      StringList `json:"interests"`
	Schedule       string     `json:"schedule,omitempty"`
	Compatibility  float64    `json:"compatibility,omitempty"`

	ConnectionStatus ConnectionStatus `json:"connection_status"`
}

// RequestStatus is the lifecycle state of a connection request. The
// user-facing routes use accepted/declined; the admin routes use
// approved/rejected for the same terminal states.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestDeclined RequestStatus = "declined"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// IsTerminal reports whether the request can no longer change state.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestAccepted, RequestDeclined, RequestApproved, RequestRejected:
		return true
	}
	return false
}

// ConnectionRequest is an incoming pending request as listed by
// /buddies/requests. FromUserID is the requesting peer.
type ConnectionRequest struct {
	ID             int64         `json:"id"`
	FromUserID     int64         `json:"user_id"`
	ToUserID       int64         `json:"buddy_id,omitempty"`
	Username       string        `json:"username"`
	Avatar         string        `json:"avatar,omitempty"`
	Specialization string        `json:"specialization,omitempty"`
	Message        string        `json:"message,omitempty"`
	Status         RequestStatus `json:"status,omitempty"`
	CreatedAt      Timestamp     `json:"timestamp"`
}

// IsPending reports whether the request is still awaiting a decision.
// The requests endpoint only lists pending requests and may omit the
// status field.
func (r ConnectionRequest) IsPending() bool {
	return r.Status == "" || r.Status == RequestPending
}
