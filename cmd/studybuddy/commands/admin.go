// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/studybuddy/admin"
	"github.com/bureau-foundation/studybuddy/app"
	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/cli"
)

func adminCommand() *cli.Command {
	return &cli.Command{
		Name:    "admin",
		Summary: "Administer users and connection requests",
		Description: `Administrator commands. Log in with 'studybuddy admin login'; the
other commands fail with exit code 4 when the account lacks privilege.`,
		Subcommands: []*cli.Command{
			adminLoginCommand(),
			adminLogoutCommand(),
			adminStatsCommand(),
			adminUsersCommand(),
			adminRequestsCommand(),
			adminActionCommand("approve", "Approve a connection request", "request-id", (*admin.Console).Approve),
			adminActionCommand("reject", "Reject a connection request", "request-id", (*admin.Console).Reject),
			adminActionCommand("activate", "Reactivate a user account", "user-id", (*admin.Console).Activate),
			adminActionCommand("deactivate", "Deactivate a user account", "user-id", (*admin.Console).Deactivate),
			adminActionCommand("delete-user", "Delete a user and everything they own", "user-id", (*admin.Console).DeleteUser),
		},
	}
}

// adminError maps a privilege refusal to the forbidden category and
// everything else through Classify.
func adminError(err error) error {
	if errors.Is(err, admin.ErrForbidden) {
		return cli.Forbidden("administrator privileges required (run 'studybuddy admin login')")
	}
	return cli.Classify(err)
}

type adminLoginParams struct {
	cli.Environment
	cli.PasswordInput
	cli.JSONOutput
}

func adminLoginCommand() *cli.Command {
	var params adminLoginParams
	return &cli.Command{
		Name:    "login",
		Summary: "Log in as an administrator",
		Usage:   "studybuddy admin login <email> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("login", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 1, "studybuddy admin login <email>"); err != nil {
				return err
			}
			password, err := params.ReadPassword("Admin password: ")
			if err != nil {
				return err
			}
			defer password.Close()

			client, logger, err := params.Open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			identity, err := client.Session.AdminLogin(ctx, args[0], password)
			if err != nil {
				return cli.Classify(err)
			}
			logger.Info("admin logged in", "user_id", identity.ID)
			return printIdentity(&params.JSONOutput, identity, "Admin session for")
		},
	}
}

type adminLogoutParams struct {
	cli.Environment
}

func adminLogoutCommand() *cli.Command {
	var params adminLogoutParams
	return &cli.Command{
		Name:    "logout",
		Summary: "End the administrator session",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("logout", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "studybuddy admin logout"); err != nil {
				return err
			}
			client, _, err := params.Open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			client.Session.AdminLogout(ctx)
			fmt.Fprintln(cli.Stdout, "Logged out")
			return nil
		},
	}
}

type adminListParams struct {
	cli.Environment
	cli.JSONOutput
}

// openAdmin opens a verified session for an admin listing.
func openAdmin(ctx context.Context, params *adminListParams, args []string, usage string) (*app.App, error) {
	if err := requireArgs(args, 0, usage); err != nil {
		return nil, err
	}
	client, _, err := params.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func adminStatsCommand() *cli.Command {
	var params adminListParams
	return &cli.Command{
		Name:    "stats",
		Summary: "Show platform counters",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("stats", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			client, err := openAdmin(ctx, &params, args, "studybuddy admin stats")
			if err != nil {
				return err
			}
			defer client.Close()

			stats, err := client.Admin.Stats(ctx)
			if err != nil {
				return adminError(err)
			}
			if done, err := params.EmitJSON(stats); done {
				return err
			}
			table := newTable()
			fmt.Fprintf(table, "Users:\t%d\n", stats.TotalUsers)
			fmt.Fprintf(table, "Active buddies:\t%d\n", stats.ActiveBuddies)
			fmt.Fprintf(table, "Pending requests:\t%d\n", stats.PendingRequests)
			fmt.Fprintf(table, "Projects completed:\t%d\n", stats.ProjectsCompleted)
			return table.Flush()
		},
	}
}

func adminUsersCommand() *cli.Command {
	var params adminListParams
	return &cli.Command{
		Name:    "users",
		Summary: "List user accounts",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("users", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			client, err := openAdmin(ctx, &params, args, "studybuddy admin users")
			if err != nil {
				return err
			}
			defer client.Close()

			users, err := client.Admin.Users(ctx)
			if err != nil {
				return adminError(err)
			}
			sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
			if done, err := params.EmitJSON(users); done {
				return err
			}
			table := newTable()
			fmt.Fprintln(table, "ID\tUSERNAME\tEMAIL\tROLE\tSTATUS\tSPECIALIZATION\tLAST LOGIN")
			for _, user := range users {
				role, status, specialization := "user", "active", "-"
				if user.IsAdmin {
					role = "admin"
				}
				if !user.IsActive {
					status = "inactive"
				}
				if user.Profile != nil && user.Profile.Specialization != "" {
					specialization = user.Profile.Specialization
				}
				fmt.Fprintf(table, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					user.ID, user.Username, user.Email, role, status, specialization, formatTime(user.LastLogin))
			}
			return table.Flush()
		},
	}
}

func adminRequestsCommand() *cli.Command {
	var params adminListParams
	return &cli.Command{
		Name:    "requests",
		Summary: "List connection requests across all users",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("requests", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			client, err := openAdmin(ctx, &params, args, "studybuddy admin requests")
			if err != nil {
				return err
			}
			defer client.Close()

			requests, err := client.Admin.Requests(ctx)
			if err != nil {
				return adminError(err)
			}
			if done, err := params.EmitJSON(requests); done {
				return err
			}
			if len(requests) == 0 {
				fmt.Fprintln(cli.Stdout, "No connection requests.")
				return nil
			}
			table := newTable()
			fmt.Fprintln(table, "ID\tFROM\tTO\tSTATUS\tCREATED")
			for _, request := range requests {
				from, to := fmt.Sprint(request.UserID), fmt.Sprint(request.BuddyID)
				if request.Initiator != nil {
					from = request.Initiator.Username
				}
				if request.BuddyUser != nil {
					to = request.BuddyUser.Username
				}
				fmt.Fprintf(table, "%d\t%s\t%s\t%s\t%s\n",
					request.ID, from, to, request.Status, formatTime(request.CreatedAt))
			}
			return table.Flush()
		},
	}
}

type adminActionParams struct {
	cli.Environment
}

// adminActionCommand builds a command that runs one console mutation on
// a numeric id and prints the server's message.
func adminActionCommand(name, summary, what string, action func(*admin.Console, context.Context, int64) (string, error)) *cli.Command {
	var params adminActionParams
	usage := "studybuddy admin " + name + " <" + what + ">"
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   usage,
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams(name, &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 1, usage); err != nil {
				return err
			}
			id, err := parseID(args, 0, what)
			if err != nil {
				return err
			}
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			message, err := action(client.Admin, ctx, id)
			if err != nil {
				return adminError(err)
			}
			if message == "" {
				message = "Done"
			}
			fmt.Fprintln(cli.Stdout, message)
			return nil
		},
	}
}
