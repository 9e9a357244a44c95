// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Conversation is one entry of the chat conversation list, keyed by
// the peer.
type Conversation struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"userId"`
	Username        string    `json:"username"`
	Avatar          string    `json:"avatar,omitempty"`
	Specialization  string    `json:"specialization,omitempty"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime Timestamp `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
}

// ChatMessage is a single message in a conversation.
type ChatMessage struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    string    `json:"content"`
	Timestamp  Timestamp `json:"timestamp"`
	Read       bool      `json:"read"`
	Type       string    `json:"type"`
}

// MessagePage is one page of GET /chat/messages/{id}. Messages arrive
// newest first.
type MessagePage struct {
	Messages []ChatMessage `json:"messages"`
	HasNext  bool          `json:"has_next"`
	HasPrev  bool          `json:"has_prev"`
	Page     int           `json:"page"`
	Pages    int           `json:"pages"`
	Total    int           `json:"total"`
}

// SendResult is the body of POST /chat/send/{id}.
type SendResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID int64  `json:"message_id"`
}
