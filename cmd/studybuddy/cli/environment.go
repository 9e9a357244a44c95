// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/studybuddy/app"
	"github.com/bureau-foundation/studybuddy/lib/config"
)

// EnvStatePath names the environment variable that overrides the
// configured state path when --state is not given.
const EnvStatePath = "STUDYBUDDY_STATE"

// Environment holds the flags every command that talks to the backend
// shares, and turns them into an assembled client.
//
//	var params struct {
//	    cli.Environment
//	    cli.JSONOutput
//	}
//	client, logger, err := params.Open(ctx)
type Environment struct {
	ConfigPath string
	StatePath  string
	BaseURL    string
	LogLevel   string

	// NewLogger builds the command logger for a level. Nil uses
	// NewCommandLogger.
	NewLogger func(slog.Level) *slog.Logger
}

// AddFlags registers --config, --state, --base-url and --log-level.
func (e *Environment) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&e.ConfigPath, "config", "", "config file (default: $"+config.EnvConfigPath+")")
	flagSet.StringVar(&e.StatePath, "state", "", "credential database path (default: $"+EnvStatePath+" or the config file)")
	flagSet.StringVar(&e.BaseURL, "base-url", "", "backend API root, e.g. http://127.0.0.1:5000/api (overrides the config file)")
	flagSet.StringVar(&e.LogLevel, "log-level", "", "debug, info, warn or error (overrides the config file)")
}

// Settings loads the config file and applies flag overrides.
func (e *Environment) Settings() (*config.Config, error) {
	settings, err := config.Load(e.ConfigPath)
	if err != nil {
		return nil, Validation("%w", err)
	}
	if e.StatePath != "" {
		settings.StatePath = e.StatePath
	} else if path := os.Getenv(EnvStatePath); path != "" {
		settings.StatePath = path
	}
	if e.BaseURL != "" {
		settings.BaseURL = e.BaseURL
	}
	if e.LogLevel != "" {
		settings.Logging.Level = e.LogLevel
	}
	if err := settings.Validate(); err != nil {
		return nil, Validation("%w", err)
	}
	return settings, nil
}

// Open assembles the client. The returned logger honors the configured
// level. The caller closes the App.
func (e *Environment) Open(ctx context.Context) (*app.App, *slog.Logger, error) {
	settings, err := e.Settings()
	if err != nil {
		return nil, nil, err
	}
	level, err := config.ParseLevel(settings.Logging.Level)
	if err != nil {
		return nil, nil, Validation("%w", err)
	}
	newLogger := e.NewLogger
	if newLogger == nil {
		newLogger = NewCommandLogger
	}
	logger := newLogger(level)

	if err := os.MkdirAll(filepath.Dir(settings.StatePath), 0o700); err != nil {
		return nil, nil, Internal("creating state directory: %w", err)
	}
	client, err := app.New(ctx, app.Options{Config: settings, Logger: logger})
	if err != nil {
		return nil, nil, Internal("%w", err)
	}
	logger.Debug("client ready", "base_url", settings.BaseURL, "state", settings.StatePath)
	return client, logger, nil
}

// OpenSession opens the client and requires a verified session.
func (e *Environment) OpenSession(ctx context.Context) (*app.App, *slog.Logger, error) {
	client, logger, err := e.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := client.RequireSession(ctx); err != nil {
		client.Close()
		return nil, nil, &ToolError{
			Category: CategoryUnauthorized,
			Err:      fmt.Errorf("not logged in (run 'studybuddy login'): %w", err),
		}
	}
	return client, logger, nil
}
