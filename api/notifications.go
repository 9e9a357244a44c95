// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// NotificationQuery filters GET /notifications. Zero values use the
// backend defaults (50 newest, read and unread).
type NotificationQuery struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

func (q NotificationQuery) values() url.Values {
	values := url.Values{}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.UnreadOnly {
		values.Set("unread_only", "true")
	}
	return values
}

// Notifications fetches the current user's notifications, newest
// first.
func (c *Client) Notifications(ctx context.Context, query NotificationQuery) ([]schema.Notification, error) {
	var notifications []schema.Notification
	if err := c.get(ctx, "/notifications", query.values(), &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, notificationID int64) error {
	return c.send(ctx, http.MethodPatch, fmt.Sprintf("/notifications/%d/read", notificationID), nil, nil)
}

// MarkAllNotificationsRead marks every notification read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.send(ctx, http.MethodPatch, "/notifications/read-all", nil, nil)
}
