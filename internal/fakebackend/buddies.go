// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fakebackend

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (b *Backend) buddyRoutes(r chi.Router) {
	r.Get("/recommended", b.recommendedBuddies)
	r.Get("/all", b.allBuddies)
	r.Get("/connected", b.connectedBuddies)
	r.Post("/connect", b.connect)
	r.Get("/requests", b.connectionRequests)
	r.Post("/requests/{requestID}/accept", b.acceptRequest)
	r.Post("/requests/{requestID}/decline", b.declineRequest)
}

func (b *Backend) sortedConnectionsLocked() []*connection {
	links := make([]*connection, 0, len(b.connections))
	for _, link := range b.connections {
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].id < links[j].id })
	return links
}

// linkLocked returns the connection between two users in either
// direction.
func (b *Backend) linkLocked(a, c int64) *connection {
	for _, link := range b.connections {
		if (link.from == a && link.to == c) || (link.from == c && link.to == a) {
			return link
		}
	}
	return nil
}

// statusLocked is the relationship from viewer's side.
func (b *Backend) statusLocked(viewer, peer int64) string {
	link := b.linkLocked(viewer, peer)
	switch {
	case link == nil:
		return "not_connected"
	case link.status == "approved":
		return "connected"
	case link.from == viewer:
		return "request_sent"
	default:
		return "request_received"
	}
}

func compatibility(a, c *profile) int {
	if a == nil || c == nil {
		return 0
	}
	score := 0
	if a.specialization != "" && strings.EqualFold(a.specialization, c.specialization) {
		score += 40
	}
	shared := 0
	for _, left := range a.interests {
		for _, right := range c.interests {
			if strings.EqualFold(left, right) {
				shared++
			}
		}
	}
	score += min(shared*20, 60)
	return score
}

func (b *Backend) buddyRowLocked(viewer *user, peer *user, status string) map[string]any {
	row := map[string]any{
		"id":             peer.id,
		"userId":         peer.id,
		"username":       peer.username,
		"email":          peer.email,
		"avatar":         "",
		"specialization": peer.profile.specialization,
		"level":          peer.profile.level,
		"interests":      append([]string{}, peer.profile.interests...),
		"schedule":       peer.profile.schedule,
		"compatibility":  compatibility(viewer.profile, peer.profile),
	}
	if status != "" {
		row["connection_status"] = status
	}
	return row
}

func (b *Backend) recommendedBuddies(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	viewer := b.users[userIDFrom(r)]
	if viewer.profile == nil {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	rows := make([]map[string]any, 0)
	for _, peer := range b.sortedUsersLocked() {
		if peer.id == viewer.id || peer.profile == nil || peer.admin || !peer.active {
			continue
		}
		if b.linkLocked(viewer.id, peer.id) != nil {
			continue
		}
		rows = append(rows, b.buddyRowLocked(viewer, peer, "not_connected"))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i]["compatibility"].(int) > rows[j]["compatibility"].(int)
	})
	writeJSON(w, http.StatusOK, rows)
}

func (b *Backend) allBuddies(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	viewer := b.users[userIDFrom(r)]
	rows := make([]map[string]any, 0)
	for _, peer := range b.sortedUsersLocked() {
		if peer.id == viewer.id || peer.profile == nil {
			continue
		}
		rows = append(rows, b.buddyRowLocked(viewer, peer, b.statusLocked(viewer.id, peer.id)))
	}
	writeJSON(w, http.StatusOK, rows)
}

func (b *Backend) connectedBuddies(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	viewer := b.users[userIDFrom(r)]
	rows := make([]map[string]any, 0)
	for _, link := range b.sortedConnectionsLocked() {
		if link.status != "approved" {
			continue
		}
		peerID := link.to
		if link.to == viewer.id {
			peerID = link.from
		} else if link.from != viewer.id {
			continue
		}
		peer, ok := b.users[peerID]
		if !ok || peer.profile == nil {
			continue
		}
		// The connected route omits connection_status.
		rows = append(rows, b.buddyRowLocked(viewer, peer, ""))
	}
	writeJSON(w, http.StatusOK, rows)
}

func (b *Backend) connect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BuddyID int64 `json:"buddy_id"`
	}
	if err := decodeJSON(r, &body); err != nil || body.BuddyID == 0 {
		writeError(w, http.StatusBadRequest, "buddy_id is required")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	viewer := b.users[userIDFrom(r)]
	peer, ok := b.users[body.BuddyID]
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if peer.id == viewer.id {
		writeError(w, http.StatusBadRequest, "Cannot connect with yourself")
		return
	}
	if b.linkLocked(viewer.id, peer.id) != nil {
		writeError(w, http.StatusBadRequest, "Connection already exists")
		return
	}
	link := &connection{id: b.allocateLocked(), from: viewer.id, to: peer.id, status: "pending", createdAt: b.now()}
	b.connections[link.id] = link
	b.notifyLocked(peer.id, "connection_request", "New Connection Request",
		viewer.username+" wants to connect with you", map[string]any{"user_id": viewer.id, "request_id": link.id})
	writeMessage(w, "Connection request sent successfully")
}

func (b *Backend) connectionRequests(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	viewerID := userIDFrom(r)
	rows := make([]map[string]any, 0)
	for _, link := range b.sortedConnectionsLocked() {
		if link.to != viewerID || link.status != "pending" {
			continue
		}
		sender, ok := b.users[link.from]
		if !ok || sender.profile == nil {
			continue
		}
		rows = append(rows, map[string]any{
			"id":             link.id,
			"user_id":        sender.id,
			"username":       sender.username,
			"avatar":         "",
			"specialization": sender.profile.specialization,
			"message":        "Wants to connect with you",
			"timestamp":      formatTime(link.createdAt),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

// pendingForLocked returns the pending request addressed to viewer.
func (b *Backend) pendingForLocked(r *http.Request, viewerID int64) *connection {
	requestID, ok := pathID(r, "requestID")
	if !ok {
		return nil
	}
	link, exists := b.connections[requestID]
	if !exists || link.to != viewerID || link.status != "pending" {
		return nil
	}
	return link
}

func (b *Backend) acceptRequest(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	viewer := b.users[userIDFrom(r)]
	link := b.pendingForLocked(r, viewer.id)
	if link == nil {
		writeError(w, http.StatusNotFound, "Connection request not found")
		return
	}
	link.status = "approved"
	b.notifyLocked(link.from, "connection_accepted", "Connection Accepted",
		viewer.username+" accepted your connection request", map[string]any{"user_id": viewer.id})
	writeMessage(w, "Connection request accepted")
}

func (b *Backend) declineRequest(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	link := b.pendingForLocked(r, userIDFrom(r))
	if link == nil {
		writeError(w, http.StatusNotFound, "Connection request not found")
		return
	}
	delete(b.connections, link.id)
	writeMessage(w, "Connection request declined")
}
