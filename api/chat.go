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

// Conversations fetches GET /chat/conversations, most recently active
// first.
func (c *Client) Conversations(ctx context.Context) ([]schema.Conversation, error) {
	var conversations []schema.Conversation
	if err := c.get(ctx, "/chat/conversations", nil, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// Messages fetches one page of the conversation with buddyID. Page
// numbers start at 1; zero page or limit uses the backend default.
// Fetching marks the peer's messages read server-side.
func (c *Client) Messages(ctx context.Context, buddyID int64, page, limit int) (*schema.MessagePage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var result schema.MessagePage
	if err := c.get(ctx, fmt.Sprintf("/chat/messages/%d", buddyID), query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendMessage posts a text message to buddyID.
func (c *Client) SendMessage(ctx context.Context, buddyID int64, content string) (*schema.SendResult, error) {
	var result schema.SendResult
	body := map[string]string{"content": content, "type": "text"}
	if err := c.send(ctx, http.MethodPost, fmt.Sprintf("/chat/send/%d", buddyID), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
