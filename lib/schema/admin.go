// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// AdminStats is the body of GET /admin/stats.
type AdminStats struct {
	TotalUsers        int `json:"totalUsers"`
	ActiveBuddies     int `json:"activeBuddies"`
	PendingRequests   int `json:"pendingRequests"`
	ProjectsCompleted int `json:"projectsCompleted"`
}

// AdminUser is one row of GET /admin/users.
type AdminUser struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	IsActive  bool      `json:"is_active"`
	CreatedAt Timestamp `json:"created_at"`
	LastLogin Timestamp `json:"last_login"`

	Profile *AdminUserProfile `json:"profile,omitempty"`
}

// AdminUserProfile is the profile excerpt embedded in [AdminUser].
type AdminUserProfile struct {
	Specialization string `json:"specialization"`
	ProfilePicture string `json:"profile_picture"`
}

// AdminRequest is one row of GET /admin/requests.
type AdminRequest struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	BuddyID   int64         `json:"buddy_id"`
	Status    RequestStatus `json:"status"`
	CreatedAt Timestamp     `json:"created_at"`

	Initiator *AdminRequestParty `json:"initiator,omitempty"`
	BuddyUser *AdminRequestParty `json:"buddy_user,omitempty"`
}

// AdminRequestParty names one side of an [AdminRequest].
type AdminRequestParty struct {
	Username string `json:"username"`
}

// UserStatus is the activation state an admin can set.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)
