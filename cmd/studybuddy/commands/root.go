// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the studybuddy command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/cli"
	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// Version is set at link time.
var Version = "dev"

// Root builds the complete command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "studybuddy",
		Description: `studybuddy: command-line client for the StudyBuddy service.

Find study partners, manage connection requests, follow notifications,
and chat with connected buddies. Credentials persist between runs in
the state database; run 'studybuddy login' once and every other
command reuses the session.`,
		Subcommands: []*cli.Command{
			loginCommand(),
			signupCommand(),
			logoutCommand(),
			whoamiCommand(),
			profileCommand(),
			buddiesCommand(),
			notificationsCommand(),
			chatCommand(),
			adminCommand(),
			passwordCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Fprintf(cli.Stdout, "studybuddy %s\n", Version)
					return nil
				},
			},
		},
	}
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(cli.Stdout, 2, 0, 2, ' ', 0)
}

// parseID parses a positional numeric id.
func parseID(args []string, index int, what string) (int64, error) {
	if len(args) <= index {
		return 0, cli.Validation("%s is required", what)
	}
	id, err := strconv.ParseInt(args[index], 10, 64)
	if err != nil || id < 1 {
		return 0, cli.Validation("%s must be a positive integer, got %q", what, args[index])
	}
	return id, nil
}

func requireArgs(args []string, count int, usage string) error {
	if len(args) != count {
		return cli.Validation("usage: %s", usage)
	}
	return nil
}

func formatTime(timestamp schema.Timestamp) string {
	if timestamp.IsZero() {
		return "-"
	}
	return timestamp.Local().Format(time.DateTime)
}
