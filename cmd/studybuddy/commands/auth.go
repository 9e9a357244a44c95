// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/cli"
	"github.com/bureau-foundation/studybuddy/lib/schema"
	"github.com/bureau-foundation/studybuddy/session"
)

type loginParams struct {
	cli.Environment
	cli.PasswordInput
	cli.JSONOutput
}

func loginCommand() *cli.Command {
	var params loginParams
	return &cli.Command{
		Name:    "login",
		Summary: "Log in and save the session",
		Usage:   "studybuddy login <email> [flags]",
		Examples: []cli.Example{
			{Description: "Log in interactively", Command: "studybuddy login ada@example.com"},
			{Description: "Log in from a script", Command: "studybuddy login ada@example.com --password-file ~/.sbpass"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("login", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 1, "studybuddy login <email>"); err != nil {
				return err
			}
			password, err := params.ReadPassword("Password: ")
			if err != nil {
				return err
			}
			defer password.Close()

			client, logger, err := params.Open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			identity, err := client.Session.Login(ctx, args[0], password)
			if err != nil {
				return cli.Classify(err)
			}
			logger.Info("logged in", "user_id", identity.ID)
			return printIdentity(&params.JSONOutput, identity, "Logged in as")
		},
	}
}

type signupParams struct {
	cli.Environment
	cli.PasswordInput
	cli.JSONOutput
}

func signupCommand() *cli.Command {
	var params signupParams
	return &cli.Command{
		Name:    "signup",
		Summary: "Create an account and log in",
		Usage:   "studybuddy signup <username> <email> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("signup", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 2, "studybuddy signup <username> <email>"); err != nil {
				return err
			}
			password, confirm, err := params.ReadNewPassword()
			if err != nil {
				return err
			}
			defer password.Close()
			defer confirm.Close()

			client, _, err := params.Open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			identity, err := client.Session.Signup(ctx, session.Registration{
				Username: args[0],
				Email:    args[1],
				Password: password,
				Confirm:  confirm,
			})
			if err != nil {
				return cli.Classify(err)
			}
			return printIdentity(&params.JSONOutput, identity, "Signed up as")
		},
	}
}

type logoutParams struct {
	cli.Environment
}

func logoutCommand() *cli.Command {
	var params logoutParams
	return &cli.Command{
		Name:    "logout",
		Summary: "End the session and forget saved credentials",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("logout", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "studybuddy logout"); err != nil {
				return err
			}
			client, _, err := params.Open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			client.Session.Logout(ctx)
			fmt.Fprintln(cli.Stdout, "Logged out")
			return nil
		},
	}
}

type whoamiParams struct {
	cli.Environment
	cli.JSONOutput
}

func whoamiCommand() *cli.Command {
	var params whoamiParams
	return &cli.Command{
		Name:        "whoami",
		Summary:     "Show the logged-in user",
		Description: "Verify the saved session with the server and print the user it belongs to.",
		Flags:       func() *pflag.FlagSet { return cli.FlagsFromParams("whoami", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "studybuddy whoami"); err != nil {
				return err
			}
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			identity := client.Session.Identity()
			if client.Session.IsAdmin() {
				fmt.Fprintln(cli.Stderr, "(admin session)")
			}
			return printIdentity(&params.JSONOutput, identity, "Logged in as")
		},
	}
}

func printIdentity(output *cli.JSONOutput, identity *schema.Identity, verb string) error {
	if done, err := output.EmitJSON(identity); done {
		return err
	}
	fmt.Fprintf(cli.Stdout, "%s %s <%s> (id %d)\n", verb, identity.Username, identity.Email, identity.ID)
	return nil
}
