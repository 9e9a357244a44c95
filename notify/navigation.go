// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import "github.com/bureau-foundation/studybuddy/lib/schema"

// Tab is a top-level view a front end can switch to.
type Tab string

const (
	TabOverview Tab = "overview"
	TabBuddies  Tab = "buddies"
	TabChats    Tab = "chats"
)

// NavigationTarget returns the tab that shows what a notification is
// about.
func NavigationTarget(notification schema.Notification) Tab {
	switch notification.Type {
	case schema.NotificationConnectionRequest, schema.NotificationConnectionAccepted:
		return TabBuddies
	case schema.NotificationMessage:
		return TabChats
	default:
		return TabOverview
	}
}
