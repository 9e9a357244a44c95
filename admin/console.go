// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package admin wraps the administrator routes of the backend.
//
// A 403 from any admin route means the account lacks privilege; it is
// reported as [ErrForbidden] and leaves the session alone. A 401 is a
// dead session and is handled by the gateway's unauthorized hook like
// any other route.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/studybuddy/api"
	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// ErrForbidden means the server refused an admin route for lack of
// privilege.
var ErrForbidden = errors.New("admin: administrator privileges required")

// Gateway is the subset of *api.Client the Console uses.
type Gateway interface {
	AdminStats(ctx context.Context) (*schema.AdminStats, error)
	AdminUsers(ctx context.Context) ([]schema.AdminUser, error)
	AdminRequests(ctx context.Context) ([]schema.AdminRequest, error)
	DeleteUser(ctx context.Context, userID int64) (string, error)
	SetUserStatus(ctx context.Context, userID int64, status schema.UserStatus) (string, error)
	ApproveRequest(ctx context.Context, requestID int64) (string, error)
	RejectRequest(ctx context.Context, requestID int64) (string, error)
}

// Config holds the parameters for New.
type Config struct {
	Gateway Gateway
	Logger  *slog.Logger
}

// Console runs admin operations.
type Console struct {
	gateway Gateway
	logger  *slog.Logger
}

// New returns a Console.
func New(config Config) (*Console, error) {
	if config.Gateway == nil {
		return nil, fmt.Errorf("admin: Gateway is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{gateway: config.Gateway, logger: logger}, nil
}

func (c *Console) wrap(op string, err error) error {
	if api.IsForbidden(err) {
		c.logger.Warn("admin route refused", "op", op, "error", err)
		return fmt.Errorf("admin: %s: %w: %w", op, ErrForbidden, err)
	}
	return fmt.Errorf("admin: %s: %w", op, err)
}

// Stats returns the dashboard counters.
func (c *Console) Stats(ctx context.Context) (*schema.AdminStats, error) {
	stats, err := c.gateway.AdminStats(ctx)
	if err != nil {
		return nil, c.wrap("stats", err)
	}
	return stats, nil
}

// Users lists every account.
func (c *Console) Users(ctx context.Context) ([]schema.AdminUser, error) {
	users, err := c.gateway.AdminUsers(ctx)
	if err != nil {
		return nil, c.wrap("users", err)
	}
	return users, nil
}

// Requests lists connection requests awaiting moderation.
func (c *Console) Requests(ctx context.Context) ([]schema.AdminRequest, error) {
	requests, err := c.gateway.AdminRequests(ctx)
	if err != nil {
		return nil, c.wrap("requests", err)
	}
	return requests, nil
}

// DeleteUser removes an account and everything it owns.
func (c *Console) DeleteUser(ctx context.Context, userID int64) (string, error) {
	message, err := c.gateway.DeleteUser(ctx, userID)
	if err != nil {
		return "", c.wrap("delete user", err)
	}
	c.logger.Info("user deleted", "user_id", userID)
	return message, nil
}

// Activate marks an account active.
func (c *Console) Activate(ctx context.Context, userID int64) (string, error) {
	return c.setStatus(ctx, userID, schema.UserActive)
}

// Deactivate marks an account inactive.
func (c *Console) Deactivate(ctx context.Context, userID int64) (string, error) {
	return c.setStatus(ctx, userID, schema.UserInactive)
}

func (c *Console) setStatus(ctx context.Context, userID int64, status schema.UserStatus) (string, error) {
	message, err := c.gateway.SetUserStatus(ctx, userID, status)
	if err != nil {
		return "", c.wrap("set user status", err)
	}
	c.logger.Info("user status changed", "user_id", userID, "status", string(status))
	return message, nil
}

// Approve approves a pending connection request.
func (c *Console) Approve(ctx context.Context, requestID int64) (string, error) {
	message, err := c.gateway.ApproveRequest(ctx, requestID)
	if err != nil {
		return "", c.wrap("approve request", err)
	}
	return message, nil
}

// Reject rejects a pending connection request.
func (c *Console) Reject(ctx context.Context, requestID int64) (string, error) {
	message, err := c.gateway.RejectRequest(ctx, requestID)
	if err != nil {
		return "", c.wrap("reject request", err)
	}
	return message, nil
}

// Overview is everything the admin dashboard shows. Each part loads
// independently; a failed part has a nil value and an entry in Errs.
type Overview struct {
	Stats    *schema.AdminStats
	Users    []schema.AdminUser
	Requests []schema.AdminRequest

	Errs map[string]error
}

// Forbidden reports whether any part was refused for lack of
// privilege.
func (o Overview) Forbidden() bool {
	for _, err := range o.Errs {
		if errors.Is(err, ErrForbidden) {
			return true
		}
	}
	return false
}

// Overview fetches stats, users, and requests concurrently.
func (c *Console) Overview(ctx context.Context) Overview {
	var (
		overview = Overview{Errs: make(map[string]error)}
		mu       sync.Mutex
		wg       sync.WaitGroup
	)
	record := func(part string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			overview.Errs[part] = err
		}
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		stats, err := c.Stats(ctx)
		mu.Lock()
		overview.Stats = stats
		mu.Unlock()
		record("stats", err)
	}()
	go func() {
		defer wg.Done()
		users, err := c.Users(ctx)
		mu.Lock()
		overview.Users = users
		mu.Unlock()
		record("users", err)
	}()
	go func() {
		defer wg.Done()
		requests, err := c.Requests(ctx)
		mu.Lock()
		overview.Requests = requests
		mu.Unlock()
		record("requests", err)
	}()
	wg.Wait()
	return overview
}
