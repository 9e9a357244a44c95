// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the wire types exchanged with the StudyBuddy
// REST backend. Go structs carry the JSON field names the backend
// emits; decoding is tolerant of the shapes the backend is known to
// produce (naive timestamps without a zone, interests as either a list
// or a comma-separated string, numeric or string identifiers).
//
// Key types:
//
//   - [Identity] -- the authenticated user as asserted by /auth/me or
//     /admin/me
//   - [Buddy], [ConnectionStatus] -- peers and their relationship to
//     the current user
//   - [ConnectionRequest], [RequestStatus] -- pending buddy requests
//   - [Notification] -- polled notification records
//   - [Profile], [ProfileUpdate] -- profile read and partial update
//   - [Conversation], [ChatMessage], [MessagePage] -- chat read/poll
//   - [Challenge] -- personalized challenges
//   - [AdminStats], [AdminUser], [AdminRequest] -- admin console
//
// This package depends on no other StudyBuddy packages.
package schema
