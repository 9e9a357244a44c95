// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// RecommendedBuddies fetches GET /buddies/recommended: peers with no
// connection or request in either direction, best match first.
func (c *Client) RecommendedBuddies(ctx context.Context) ([]schema.Buddy, error) {
	return c.buddyList(ctx, "/buddies/recommended")
}

// AllBuddies fetches GET /buddies/all: every other user with the
// current connection status.
func (c *Client) AllBuddies(ctx context.Context) ([]schema.Buddy, error) {
	return c.buddyList(ctx, "/buddies/all")
}

// ConnectedBuddies fetches GET /buddies/connected.
func (c *Client) ConnectedBuddies(ctx context.Context) ([]schema.Buddy, error) {
	return c.buddyList(ctx, "/buddies/connected")
}

func (c *Client) buddyList(ctx context.Context, path string) ([]schema.Buddy, error) {
	var buddies []schema.Buddy
	if err := c.get(ctx, path, nil, &buddies); err != nil {
		return nil, err
	}
	return buddies, nil
}

// Connect sends a connection request with POST /buddies/connect.
func (c *Client) Connect(ctx context.Context, buddyID int64) (string, error) {
	return c.mutate(ctx, http.MethodPost, "/buddies/connect", map[string]int64{"buddy_id": buddyID})
}

// ConnectionRequests fetches GET /buddies/requests: pending requests
// addressed to the current user.
func (c *Client) ConnectionRequests(ctx context.Context) ([]schema.ConnectionRequest, error) {
	var requests []schema.ConnectionRequest
	if err := c.get(ctx, "/buddies/requests", nil, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// AcceptRequest accepts a pending request.
func (c *Client) AcceptRequest(ctx context.Context, requestID int64) (string, error) {
	return c.decideRequest(ctx, requestID, "accept")
}

// DeclineRequest declines a pending request.
func (c *Client) DeclineRequest(ctx context.Context, requestID int64) (string, error) {
	return c.decideRequest(ctx, requestID, "decline")
}

func (c *Client) decideRequest(ctx context.Context, requestID int64, decision string) (string, error) {
	return c.mutate(ctx, http.MethodPost, fmt.Sprintf("/buddies/requests/%d/%s", requestID, decision), nil)
}
