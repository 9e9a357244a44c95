// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/cli"
)

func passwordCommand() *cli.Command {
	return &cli.Command{
		Name:    "password",
		Summary: "Recover a forgotten password",
		Description: `Reset a password with an emailed code:

  1. 'studybuddy password forgot <email>' mails a six-digit code.
  2. 'studybuddy password verify <email> <code>' checks it (optional).
  3. 'studybuddy password reset <email> <code>' sets the new password.

None of these commands needs or changes the saved session.`,
		Subcommands: []*cli.Command{
			passwordForgotCommand(),
			passwordVerifyCommand(),
			passwordResetCommand(),
		},
	}
}

type passwordForgotParams struct {
	cli.Environment
}

func passwordForgotCommand() *cli.Command {
	var params passwordForgotParams
	return &cli.Command{
		Name:    "forgot",
		Summary: "Email a reset code",
		Usage:   "studybuddy password forgot <email>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("forgot", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 1, "studybuddy password forgot <email>"); err != nil {
				return err
			}
			client, _, err := params.Open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			message, err := client.Recovery.RequestCode(ctx, args[0])
			if err != nil {
				return cli.Classify(err)
			}
			if message == "" {
				message = "Reset code sent"
			}
			fmt.Fprintln(cli.Stdout, message)
			return nil
		},
	}
}

type passwordVerifyParams struct {
	cli.Environment
}

func passwordVerifyCommand() *cli.Command {
	var params passwordVerifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check a reset code",
		Usage:   "studybuddy password verify <email> <code>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("verify", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 2, "studybuddy password verify <email> <code>"); err != nil {
				return err
			}
			client, _, err := params.Open(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Recovery.VerifyCode(ctx, args[0], args[1]); err != nil {
				return cli.Classify(err)
			}
			fmt.Fprintln(cli.Stdout, "Code is valid")
			return nil
		},
	}
}

type passwordResetParams struct {
	cli.Environment
	cli.PasswordInput
}

func passwordResetCommand() *cli.Command {
	var params passwordResetParams
	return &cli.Command{
		Name:    "reset",
		Summary: "Set a new password using a reset code",
		Usage:   "studybuddy password reset <email> <code> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("reset", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 2, "studybuddy password reset <email> <code>"); err != nil {
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

			if err := client.Recovery.Reset(ctx, args[0], args[1], password, confirm); err != nil {
				return cli.Classify(err)
			}
			fmt.Fprintln(cli.Stdout, "Password reset. Log in with 'studybuddy login'.")
			return nil
		},
	}
}
