// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fakebackend

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const defaultNotificationLimit = 50

func (b *Backend) notificationRoutes(r chi.Router) {
	r.Get("/", b.listNotifications)
	r.Patch("/{notificationID}/read", b.markNotificationRead)
	r.Patch("/read-all", b.markAllNotificationsRead)
}

// Notify adds a notification for userID, as other backend features
// would.
func (b *Backend) Notify(userID int64, kind, title, message string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notifyLocked(userID, kind, title, message, nil)
}

func (b *Backend) notifyLocked(userID int64, kind, title, message string, data map[string]any) int64 {
	entry := &notification{
		id:        b.allocateLocked(),
		userID:    userID,
		kind:      kind,
		title:     title,
		message:   message,
		timestamp: b.now(),
		data:      data,
	}
	b.notifications[entry.id] = entry
	return entry.id
}

func (b *Backend) listNotifications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultNotificationLimit
	}
	offset, err := strconv.Atoi(query.Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	unreadOnly := query.Get("unread_only") == "true"

	b.mu.Lock()
	defer b.mu.Unlock()
	viewerID := userIDFrom(r)
	entries := make([]*notification, 0)
	for _, entry := range b.notifications {
		if entry.userID == viewerID && (!unreadOnly || !entry.read) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].timestamp.Equal(entries[j].timestamp) {
			return entries[i].timestamp.After(entries[j].timestamp)
		}
		return entries[i].id > entries[j].id
	})
	if offset > len(entries) {
		offset = len(entries)
	}
	entries = entries[offset:min(offset+limit, len(entries))]

	rows := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		row := map[string]any{
			"id":        entry.id,
			"type":      entry.kind,
			"title":     entry.title,
			"message":   entry.message,
			"timestamp": formatTime(entry.timestamp),
			"read":      entry.read,
		}
		if entry.data != nil {
			row["data"] = entry.data
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (b *Backend) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	notificationID, ok := pathID(r, "notificationID")
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, exists := b.notifications[notificationID]
	if !ok || !exists || entry.userID != userIDFrom(r) {
		writeError(w, http.StatusNotFound, "Notification not found")
		return
	}
	entry.read = true
	writeMessage(w, "Notification marked as read")
}

func (b *Backend) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	viewerID := userIDFrom(r)
	for _, entry := range b.notifications {
		if entry.userID == viewerID {
			entry.read = true
		}
	}
	writeMessage(w, "All notifications marked as read")
}
