// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/studybuddy/chat"
	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/cli"
)

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:    "chat",
		Summary: "Message connected buddies",
		Subcommands: []*cli.Command{
			chatListCommand(),
			chatShowCommand(),
			chatSendCommand(),
		},
	}
}

type chatListParams struct {
	cli.Environment
	cli.JSONOutput
}

func chatListCommand() *cli.Command {
	var params chatListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List conversations with connected buddies",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "studybuddy chat list"); err != nil {
				return err
			}
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			conversations, err := client.Chat.Conversations(ctx)
			if err != nil {
				return cli.Classify(err)
			}
			if done, err := params.EmitJSON(conversations); done {
				return err
			}
			if len(conversations) == 0 {
				fmt.Fprintln(cli.Stdout, "No conversations. Connect with a buddy first.")
				return nil
			}
			table := newTable()
			fmt.Fprintln(table, "BUDDY\tUSERNAME\tUNREAD\tLAST\tMESSAGE")
			for _, conversation := range conversations {
				fmt.Fprintf(table, "%d\t%s\t%d\t%s\t%s\n",
					conversation.ID, conversation.Username, conversation.UnreadCount,
					formatTime(conversation.LastMessageTime), conversation.LastMessage)
			}
			return table.Flush()
		},
	}
}

type chatShowParams struct {
	cli.Environment
	cli.JSONOutput
}

func chatShowCommand() *cli.Command {
	var params chatShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "Print the latest messages of a conversation",
		Usage:   "studybuddy chat show <buddy-id>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("show", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 1, "studybuddy chat show <buddy-id>"); err != nil {
				return err
			}
			buddyID, err := parseID(args, 0, "buddy id")
			if err != nil {
				return err
			}
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			thread, err := client.Chat.Open(buddyID)
			if err != nil {
				return cli.Internal("%w", err)
			}
			if err := thread.Refresh(ctx); err != nil {
				return cli.Classify(err)
			}
			snapshot := thread.Snapshot()
			if done, err := params.EmitJSON(snapshot.Messages); done {
				return err
			}
			if len(snapshot.Messages) == 0 {
				fmt.Fprintln(cli.Stdout, "No messages yet.")
				return nil
			}
			if snapshot.Older {
				fmt.Fprintf(cli.Stdout, "(showing the latest %d of %d messages)\n", len(snapshot.Messages), snapshot.Total)
			}
			self := client.Session.Identity().ID
			for _, message := range snapshot.Messages {
				sender := "them"
				if message.SenderID == self {
					sender = "me"
				}
				fmt.Fprintf(cli.Stdout, "[%s] %-4s %s\n", formatTime(message.Timestamp), sender, message.Content)
			}
			return nil
		},
	}
}

type chatSendParams struct {
	cli.Environment
}

func chatSendCommand() *cli.Command {
	var params chatSendParams
	return &cli.Command{
		Name:    "send",
		Summary: "Send a message to a connected buddy",
		Usage:   "studybuddy chat send <buddy-id> <message...>",
		Examples: []cli.Example{
			{Command: `studybuddy chat send 7 "Library at 6?"`},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("send", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) < 2 {
				return cli.Validation("usage: studybuddy chat send <buddy-id> <message...>")
			}
			buddyID, err := parseID(args, 0, "buddy id")
			if err != nil {
				return err
			}
			content := strings.Join(args[1:], " ")
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			thread, err := client.Chat.Open(buddyID)
			if err != nil {
				return cli.Internal("%w", err)
			}
			result, err := thread.Send(ctx, content)
			if errors.Is(err, chat.ErrEmptyMessage) {
				return cli.Validation("message is empty")
			}
			if err != nil {
				return cli.Classify(err)
			}
			fmt.Fprintf(cli.Stdout, "Sent (message %d)\n", result.MessageID)
			return nil
		},
	}
}
