// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package app assembles a complete client from configuration: the
// credential store, the gateway reading its bearer token from the
// store, the session manager installed as the gateway's 401 handler,
// and the collection owners (buddies, notifications, chat, admin,
// dashboard) that sit on top of the gateway.
//
// When the session ends, for any reason, every collection owner is
// stopped and emptied so nothing from the previous user survives into
// the next login.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/studybuddy/admin"
	"github.com/bureau-foundation/studybuddy/api"
	"github.com/bureau-foundation/studybuddy/buddies"
	"github.com/bureau-foundation/studybuddy/chat"
	"github.com/bureau-foundation/studybuddy/dashboard"
	"github.com/bureau-foundation/studybuddy/lib/clock"
	"github.com/bureau-foundation/studybuddy/lib/config"
	"github.com/bureau-foundation/studybuddy/lib/credstore"
	"github.com/bureau-foundation/studybuddy/notify"
	"github.com/bureau-foundation/studybuddy/session"
)

// Options holds the parameters for New.
type Options struct {
	// Config is required.
	Config *config.Config

	// Store, when set, is used instead of opening Config.StatePath.
	// The caller keeps ownership.
	Store *credstore.Store

	// HTTPClient is copied by the gateway. Optional.
	HTTPClient *http.Client

	Clock  clock.Clock
	Logger *slog.Logger
}

// App is an assembled client.
type App struct {
	Config *config.Config
	Store  *credstore.Store
	Client *api.Client

	Session       *session.Manager
	Recovery      *session.Recovery
	Buddies       *buddies.Reconciler
	Notifications *notify.Center
	Chat          *chat.Service
	Admin         *admin.Console
	Dashboard     *dashboard.Loader

	logger        *slog.Logger
	ownsStore     bool
	removeSession func()
}

// New builds an App. The session is not bootstrapped; call Start.
func New(ctx context.Context, options Options) (*App, error) {
	if options.Config == nil {
		return nil, fmt.Errorf("app: Config is required")
	}
	if err := options.Config.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appClock := options.Clock
	if appClock == nil {
		appClock = clock.Real()
	}

	app := &App{Config: options.Config, Store: options.Store, logger: logger}
	if app.Store == nil {
		store, err := openStore(ctx, options.Config.StatePath, logger)
		if err != nil {
			return nil, err
		}
		app.Store = store
		app.ownsStore = true
	}

	if err := app.assemble(options, appClock); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func openStore(ctx context.Context, path string, logger *slog.Logger) (*credstore.Store, error) {
	store, err := credstore.Open(ctx, credstore.Config{Path: path, Logger: logger.With("component", "credstore")})
	if err != nil {
		return nil, fmt.Errorf("app: opening credential store: %w", err)
	}
	return store, nil
}

func (a *App) assemble(options Options, appClock clock.Clock) error {
	settings := options.Config
	logger := a.logger

	client, err := api.NewClient(api.ClientConfig{
		BaseURL:          settings.BaseURL,
		HTTPClient:       options.HTTPClient,
		Timeout:          settings.HTTP.Timeout.Std(),
		Tokens:           api.TokenFunc(a.Store.Token),
		Clock:            appClock,
		DisableCacheBust: settings.HTTP.DisableCacheBust,
		Logger:           logger.With("component", "gateway"),
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.Client = client

	a.Session, err = session.New(session.Config{
		Gateway: client,
		Store:   a.Store,
		Logger:  logger.With("component", "session"),
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	client.SetUnauthorizedHandler(a.Session.HandleUnauthorized)

	if a.Recovery, err = session.NewRecovery(client, logger.With("component", "recovery")); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	if a.Buddies, err = buddies.New(buddies.Config{
		Gateway: client,
		Clock:   appClock,
		Logger:  logger.With("component", "buddies"),
	}); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	if a.Notifications, err = notify.New(notify.Config{
		Gateway:     client,
		Connections: a.Buddies,
		Interval:    settings.Polling.Notifications.Std(),
		Clock:       appClock,
		Logger:      logger.With("component", "notify"),
	}); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	if a.Chat, err = chat.NewService(chat.Config{
		Gateway:  client,
		Interval: settings.Polling.Chat.Std(),
		Clock:    appClock,
		Logger:   logger.With("component", "chat"),
	}); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	if a.Admin, err = admin.New(admin.Config{Gateway: client, Logger: logger.With("component", "admin")}); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	if a.Dashboard, err = dashboard.New(dashboard.Config{
		Gateway:       client,
		Buddies:       a.Buddies,
		Notifications: a.Notifications,
		Logger:        logger.With("component", "dashboard"),
	}); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	a.removeSession = a.Session.OnChange(a.sessionChanged)
	return nil
}

func (a *App) sessionChanged(change session.Change) {
	if change.State != session.StateLoggedOut {
		return
	}
	a.Notifications.Stop()
	a.Notifications.Reset()
	a.Buddies.Reset()
	if change.RedirectPath != "" {
		a.logger.Info("session ended", "redirect", change.RedirectPath, "reason", change.Reason)
	}
}

// Start bootstraps the session. It never contacts the identity
// endpoints when the store holds no session evidence.
func (a *App) Start(ctx context.Context) (session.State, error) {
	return a.Session.Bootstrap(ctx)
}

// RequireSession bootstraps and fails unless a session is verified.
func (a *App) RequireSession(ctx context.Context) error {
	state, err := a.Start(ctx)
	if err != nil {
		return err
	}
	if state != session.StateAuthenticated {
		return session.ErrNotAuthenticated
	}
	return nil
}

// Close stops background work and releases the store if New opened
// it.
func (a *App) Close() error {
	var errs []error
	if a.removeSession != nil {
		a.removeSession()
	}
	if a.Dashboard != nil {
		a.Dashboard.Close()
	}
	if a.Notifications != nil {
		a.Notifications.Stop()
	}
	if a.ownsStore && a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: closing credential store: %w", err))
		}
	}
	return errors.Join(errs...)
}
