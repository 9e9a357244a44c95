// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/studybuddy/api"
	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/cli"
	"github.com/bureau-foundation/studybuddy/lib/schema"
	"github.com/bureau-foundation/studybuddy/session"
)

func notificationsCommand() *cli.Command {
	return &cli.Command{
		Name:    "notifications",
		Summary: "Read and follow notifications",
		Subcommands: []*cli.Command{
			notificationsListCommand(),
			notificationsReadCommand(),
			notificationsReadAllCommand(),
			notificationsWatchCommand(),
		},
	}
}

type notificationsListParams struct {
	cli.Environment
	cli.JSONOutput
	Unread bool `flag:"unread" desc:"only unread notifications"`
	Limit  int  `flag:"limit,n" default:"50" desc:"maximum number of notifications"`
}

func notificationsListCommand() *cli.Command {
	var params notificationsListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List recent notifications, newest first",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "studybuddy notifications list [--unread] [--limit N]"); err != nil {
				return err
			}
			if params.Limit < 1 {
				return cli.Validation("--limit must be positive")
			}
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			notifications, err := client.Client.Notifications(ctx, api.NotificationQuery{
				Limit:      params.Limit,
				UnreadOnly: params.Unread,
			})
			if err != nil {
				return cli.Classify(err)
			}
			if done, err := params.EmitJSON(notifications); done {
				return err
			}
			if len(notifications) == 0 {
				fmt.Fprintln(cli.Stdout, "No notifications.")
				return nil
			}
			table := newTable()
			fmt.Fprintln(table, "ID\t \tTIME\tTYPE\tTITLE\tMESSAGE")
			for _, notification := range notifications {
				fmt.Fprintf(table, "%d\t%s\t%s\t%s\t%s\t%s\n",
					notification.ID, unreadMarker(notification), formatTime(notification.Timestamp),
					notification.Type, notification.Title, notification.Message)
			}
			return table.Flush()
		},
	}
}

func unreadMarker(notification schema.Notification) string {
	if notification.Read {
		return " "
	}
	return "*"
}

type notificationsReadParams struct {
	cli.Environment
}

func notificationsReadCommand() *cli.Command {
	var params notificationsReadParams
	return &cli.Command{
		Name:    "read",
		Summary: "Mark one notification read",
		Usage:   "studybuddy notifications read <notification-id>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("read", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 1, "studybuddy notifications read <notification-id>"); err != nil {
				return err
			}
			notificationID, err := parseID(args, 0, "notification id")
			if err != nil {
				return err
			}
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Notifications.MarkRead(ctx, notificationID); err != nil {
				return cli.Classify(err)
			}
			fmt.Fprintf(cli.Stdout, "Notification %d marked read\n", notificationID)
			return nil
		},
	}
}

type notificationsReadAllParams struct {
	cli.Environment
}

func notificationsReadAllCommand() *cli.Command {
	var params notificationsReadAllParams
	return &cli.Command{
		Name:    "read-all",
		Summary: "Mark every notification read",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("read-all", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "studybuddy notifications read-all"); err != nil {
				return err
			}
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Notifications.MarkAllRead(ctx); err != nil {
				return cli.Classify(err)
			}
			fmt.Fprintln(cli.Stdout, "All notifications marked read")
			return nil
		},
	}
}

type notificationsWatchParams struct {
	cli.Environment
}

func notificationsWatchCommand() *cli.Command {
	var params notificationsWatchParams
	return &cli.Command{
		Name:    "watch",
		Summary: "Follow notifications live in the terminal",
		Description: `Open a full-screen view of your notifications. The list is polled in
the background while the view is open and polling stops when it
closes. Keys: j/k move, enter marks the selected notification read,
a marks all read, r refreshes now, q quits.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("watch", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "studybuddy notifications watch"); err != nil {
				return err
			}
			client, logger, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			center := client.Notifications
			model := newWatchModel(ctx, center)
			defer model.Close()

			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			removeSession := client.Session.OnChange(func(change session.Change) {
				if change.State == session.StateLoggedOut {
					program.Send(sessionEndedMsg{reason: change.Reason})
				}
			})
			defer removeSession()

			center.Start(ctx)
			defer center.Stop()
			logger.Debug("notification watch started")

			final, err := program.Run()
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return cli.Internal("running notification view: %w", err)
			}
			if ended := final.(watchModel).ended; ended != "" {
				return &cli.ToolError{
					Category: cli.CategoryUnauthorized,
					Err:      fmt.Errorf("session ended: %s (run 'studybuddy login')", ended),
				}
			}
			return nil
		},
	}
}
