// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// AdminStats fetches GET /admin/stats.
func (c *Client) AdminStats(ctx context.Context) (*schema.AdminStats, error) {
	var stats schema.AdminStats
	if err := c.get(ctx, "/admin/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AdminUsers fetches GET /admin/users.
func (c *Client) AdminUsers(ctx context.Context) ([]schema.AdminUser, error) {
	var users []schema.AdminUser
	if err := c.get(ctx, "/admin/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AdminRequests fetches GET /admin/requests.
func (c *Client) AdminRequests(ctx context.Context) ([]schema.AdminRequest, error) {
	var requests []schema.AdminRequest
	if err := c.get(ctx, "/admin/requests", nil, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// DeleteUser removes an account. The backend refuses to delete the
// calling admin.
func (c *Client) DeleteUser(ctx context.Context, userID int64) (string, error) {
	return c.mutate(ctx, http.MethodDelete, fmt.Sprintf("/admin/users/%d", userID), nil)
}

// SetUserStatus activates or deactivates an account.
func (c *Client) SetUserStatus(ctx context.Context, userID int64, status schema.UserStatus) (string, error) {
	path := fmt.Sprintf("/admin/users/%d/status", userID)
	return c.mutate(ctx, http.MethodPut, path, map[string]schema.UserStatus{"status": status})
}

// ApproveRequest approves a connection request on the users' behalf.
func (c *Client) ApproveRequest(ctx context.Context, requestID int64) (string, error) {
	return c.mutate(ctx, http.MethodPost, fmt.Sprintf("/admin/approve-request/%d", requestID), nil)
}

// RejectRequest rejects a connection request on the users' behalf.
func (c *Client) RejectRequest(ctx context.Context, requestID int64) (string, error) {
	return c.mutate(ctx, http.MethodPost, fmt.Sprintf("/admin/reject-request/%d", requestID), nil)
}
