// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fakebackend

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	defaultMessagePageSize = 50
	maxMessageLength       = 1000
)

func (b *Backend) chatRoutes(r chi.Router) {
	r.Get("/conversations", b.conversations)
	r.Get("/messages/{buddyID}", b.messagePage)
	r.Post("/send/{buddyID}", b.sendMessage)
}

// connectedLocked reports whether an approved link joins a and c.
func (b *Backend) connectedLocked(a, c int64) bool {
	link := b.linkLocked(a, c)
	return link != nil && link.status == "approved"
}

// peerLocked resolves the {buddyID} path parameter to a connected
// peer, writing the error response when it cannot.
func (b *Backend) peerLocked(w http.ResponseWriter, r *http.Request, viewerID int64) (*user, bool) {
	buddyID, ok := pathID(r, "buddyID")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid buddy id")
		return nil, false
	}
	peer, exists := b.users[buddyID]
	if !exists {
		writeError(w, http.StatusNotFound, "User not found")
		return nil, false
	}
	if !b.connectedLocked(viewerID, peer.id) {
		writeError(w, http.StatusForbidden, "You are not connected with this user")
		return nil, false
	}
	return peer, true
}

func (b *Backend) conversations(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	viewerID := userIDFrom(r)
	rows := make([]map[string]any, 0)
	for _, peer := range b.sortedUsersLocked() {
		if peer.id == viewerID || !b.connectedLocked(viewerID, peer.id) {
			continue
		}
		var last *message
		unread := 0
		for _, entry := range b.messages {
			if !between(entry, viewerID, peer.id) {
				continue
			}
			last = entry
			if entry.receiver == viewerID && !entry.read {
				unread++
			}
		}
		row := map[string]any{
			"id":                peer.id,
			"userId":            peer.id,
			"username":          peer.username,
			"avatar":            "",
			"last_message":      nil,
			"last_message_time": nil,
			"unread_count":      unread,
		}
		if peer.profile != nil {
			row["specialization"] = peer.profile.specialization
		}
		if last != nil {
			row["last_message"] = last.content
			row["last_message_time"] = formatTime(last.timestamp)
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}

func between(entry *message, a, c int64) bool {
	return (entry.sender == a && entry.receiver == c) || (entry.sender == c && entry.receiver == a)
}

func (b *Backend) messagePage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil || limit < 1 {
		limit = defaultMessagePageSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	viewerID := userIDFrom(r)
	peer, ok := b.peerLocked(w, r, viewerID)
	if !ok {
		return
	}

	thread := make([]*message, 0)
	for _, entry := range b.messages {
		if between(entry, viewerID, peer.id) {
			thread = append(thread, entry)
			if entry.receiver == viewerID {
				entry.read = true
			}
		}
	}
	sort.SliceStable(thread, func(i, j int) bool {
		if !thread[i].timestamp.Equal(thread[j].timestamp) {
			return thread[i].timestamp.After(thread[j].timestamp)
		}
		return thread[i].id > thread[j].id
	})

	total := len(thread)
	pages := (total + limit - 1) / limit
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	rows := make([]map[string]any, 0, end-start)
	for _, entry := range thread[start:end] {
		rows = append(rows, map[string]any{
			"id":         entry.id,
			"senderId":   entry.sender,
			"receiverId": entry.receiver,
			"content":    entry.content,
			"timestamp":  formatTime(entry.timestamp),
			"read":       entry.read,
			"type":       entry.kind,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": rows,
		"has_next": page < pages,
		"has_prev": page > 1,
		"page":     page,
		"pages":    pages,
		"total":    total,
	})
}

func (b *Backend) sendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
		Type    string `json:"type"`
	}
	if err := decodeJSON(r, &body); err != nil || strings.TrimSpace(body.Content) == "" {
		writeError(w, http.StatusBadRequest, "Message content is required")
		return
	}
	if body.Type == "" {
		body.Type = "text"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	sender := b.users[userIDFrom(r)]
	peer, ok := b.peerLocked(w, r, sender.id)
	if !ok {
		return
	}
	if len([]rune(body.Content)) > maxMessageLength {
		writeError(w, http.StatusBadRequest, "Message too long. Maximum 1000 characters allowed.")
		return
	}
	entry := &message{
		id:        b.allocateLocked(),
		sender:    sender.id,
		receiver:  peer.id,
		content:   body.Content,
		kind:      body.Type,
		timestamp: b.now(),
	}
	b.messages = append(b.messages, entry)
	b.notifyLocked(peer.id, "message", "New Message",
		"New message from "+sender.username, map[string]any{"sender_id": sender.id, "message_id": entry.id})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Message sent successfully",
		"message_id": entry.id,
	})
}
