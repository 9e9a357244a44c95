// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Notification types emitted by the backend.
const (
	NotificationConnectionRequest  = "connection_request"
	NotificationConnectionAccepted = "connection_accepted"
	NotificationMessage            = "message"
	NotificationChallenge          = "challenge"
	NotificationSystem             = "system"
)

// Notification is a server-created notification record. The only
// field the client mutates is Read.
type Notification struct {
	ID        int64          `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Timestamp Timestamp      `json:"timestamp"`
	Read      bool           `json:"read"`
	Data      map[string]any `json:"data,omitempty"`
}

// IsConnectionEvent reports whether the notification signals a change
// in buddy relationships.
func (n Notification) IsConnectionEvent() bool {
	return n.Type == NotificationConnectionRequest || n.Type == NotificationConnectionAccepted
}
