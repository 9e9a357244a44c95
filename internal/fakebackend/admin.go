// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fakebackend

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

func (b *Backend) adminRoutes(r chi.Router) {
	r.Post("/login", b.adminLogin)
	r.Post("/logout", b.logout)
	r.With(b.requireAuth).Get("/me", b.adminMe)

	r.Group(func(r chi.Router) {
		r.Use(b.requireAuth, b.requireAdmin)
		r.Get("/stats", b.adminStats)
		r.Get("/users", b.adminUsers)
		r.Get("/requests", b.adminRequests)
		r.Delete("/users/{userID}", b.adminDeleteUser)
		r.Put("/users/{userID}/status", b.adminSetStatus)
		r.Post("/approve-request/{requestID}", b.adminDecide("approved"))
		r.Post("/reject-request/{requestID}", b.adminDecide("rejected"))
	})
}

func (b *Backend) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		account := b.users[userIDFrom(r)]
		admin := account != nil && account.admin
		b.mu.Unlock()
		if !admin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) adminLogin(w http.ResponseWriter, r *http.Request) {
	account := b.checkCredentials(w, r)
	if account == nil {
		return
	}
	if !account.admin {
		writeError(w, http.StatusUnauthorized, "Invalid admin credentials")
		return
	}
	b.mu.Lock()
	account.lastLogin = b.now()
	b.startSessionLocked(w, account.id)
	identity := account.adminIdentity()
	b.mu.Unlock()

	response := map[string]any{"message": "Admin login successful", "user": identity}
	b.attachToken(response, account.id)
	writeJSON(w, http.StatusOK, response)
}

func (b *Backend) adminMe(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	account := b.users[userIDFrom(r)]
	identity := account.adminIdentity()
	admin := account.admin
	b.mu.Unlock()
	if !admin {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (b *Backend) adminStats(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var active, pending int
	for _, link := range b.connections {
		switch link.status {
		case "approved":
			active++
		case "pending":
			pending++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalUsers":        len(b.users),
		"activeBuddies":     active,
		"pendingRequests":   pending,
		"projectsCompleted": 0,
	})
}

func (b *Backend) adminUsers(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := make([]map[string]any, 0, len(b.users))
	for _, account := range b.sortedUsersLocked() {
		row := map[string]any{
			"id":         account.id,
			"username":   account.username,
			"email":      account.email,
			"is_admin":   account.admin,
			"is_active":  account.active,
			"created_at": formatTime(account.createdAt),
			"last_login": formatTime(account.lastLogin),
		}
		if account.profile != nil {
			row["profile"] = map[string]any{
				"specialization":  account.profile.specialization,
				"profile_picture": account.profile.picture,
			}
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (b *Backend) sortedUsersLocked() []*user {
	accounts := make([]*user, 0, len(b.users))
	for _, account := range b.users {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].id < accounts[j].id })
	return accounts
}

func (b *Backend) adminRequests(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := make([]map[string]any, 0)
	for _, link := range b.sortedConnectionsLocked() {
		if link.status != "pending" {
			continue
		}
		row := map[string]any{
			"id":         link.id,
			"user_id":    link.from,
			"buddy_id":   link.to,
			"status":     link.status,
			"created_at": formatTime(link.createdAt),
		}
		if from, ok := b.users[link.from]; ok {
			row["initiator"] = map[string]any{"username": from.username}
		}
		if to, ok := b.users[link.to]; ok {
			row["buddy_user"] = map[string]any{"username": to.username}
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (b *Backend) adminDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[userID]; !exists {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	delete(b.users, userID)
	for id, link := range b.connections {
		if link.from == userID || link.to == userID {
			delete(b.connections, id)
		}
	}
	for id, entry := range b.notifications {
		if entry.userID == userID {
			delete(b.notifications, id)
		}
	}
	for token, owner := range b.sessions {
		if owner == userID {
			delete(b.sessions, token)
		}
	}
	writeMessage(w, "User deleted successfully")
}

func (b *Backend) adminSetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil || (body.Status != "active" && body.Status != "inactive") {
		writeError(w, http.StatusBadRequest, "Status must be active or inactive")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	account, exists := b.users[userID]
	if !exists {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	account.active = body.Status == "active"
	writeMessage(w, "User status updated to "+body.Status)
}

func (b *Backend) adminDecide(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, ok := pathID(r, "requestID")
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid request id")
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		link, exists := b.connections[requestID]
		if !exists || link.status != "pending" {
			writeError(w, http.StatusNotFound, "Request not found")
			return
		}
		link.status = status
		writeMessage(w, "Request "+status)
	}
}
