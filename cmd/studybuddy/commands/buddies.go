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

	"github.com/bureau-foundation/studybuddy/buddies"
	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/cli"
	"github.com/bureau-foundation/studybuddy/lib/schema"
)

func buddiesCommand() *cli.Command {
	return &cli.Command{
		Name:    "buddies",
		Summary: "Find study partners and manage connections",
		Subcommands: []*cli.Command{
			buddiesListCommand(),
			buddiesConnectCommand(),
			buddiesRequestsCommand(),
			buddiesDecideCommand("accept", "Accept a connection request"),
			buddiesDecideCommand("decline", "Decline a connection request"),
		},
	}
}

type buddiesListParams struct {
	cli.Environment
	cli.JSONOutput
	Collection string `flag:"collection,c" default:"recommended" desc:"recommended, all or connected"`
}

func parseCollection(name string) (buddies.Collection, error) {
	for _, collection := range buddies.Collections() {
		if collection.String() == name && collection != buddies.Requests {
			return collection, nil
		}
	}
	return 0, cli.Validation("unknown collection %q (want recommended, all or connected)", name)
}

func buddiesListCommand() *cli.Command {
	var params buddiesListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List buddies",
		Examples: []cli.Example{
			{Description: "Suggested partners, best match first", Command: "studybuddy buddies list"},
			{Description: "Everyone you are connected with", Command: "studybuddy buddies list -c connected"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "studybuddy buddies list [--collection NAME]"); err != nil {
				return err
			}
			collection, err := parseCollection(params.Collection)
			if err != nil {
				return err
			}
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Buddies.RefreshCollections(ctx, collection); err != nil {
				return cli.Classify(err)
			}
			snapshot := client.Buddies.Snapshot()
			var list []schema.Buddy
			switch collection {
			case buddies.Recommended:
				list = snapshot.Recommended
				if loadErr := snapshot.Loads[buddies.Recommended].Err; loadErr != nil {
					fmt.Fprintf(cli.Stderr, "recommendations unavailable: %v\n", cli.Classify(loadErr))
				}
			case buddies.All:
				list = snapshot.All
			case buddies.Connected:
				list = snapshot.Connected
			}
			if done, err := params.EmitJSON(list); done {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cli.Stdout, "No buddies.")
				return nil
			}
			table := newTable()
			fmt.Fprintln(table, "ID\tUSERNAME\tSPECIALIZATION\tLEVEL\tMATCH\tSTATUS\tINTERESTS")
			for _, buddy := range list {
				fmt.Fprintf(table, "%d\t%s\t%s\t%s\t%.0f%%\t%s\t%s\n",
					buddy.ID, buddy.Username, buddy.Specialization, buddy.Level,
					buddy.Compatibility, buddy.ConnectionStatus, strings.Join(buddy.Interests, ", "))
			}
			return table.Flush()
		},
	}
}

type buddiesConnectParams struct {
	cli.Environment
}

func buddiesConnectCommand() *cli.Command {
	var params buddiesConnectParams
	return &cli.Command{
		Name:    "connect",
		Summary: "Send a connection request",
		Usage:   "studybuddy buddies connect <buddy-id>",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("connect", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 1, "studybuddy buddies connect <buddy-id>"); err != nil {
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

			// Learn the current relationship so a pending or existing
			// connection is refused locally.
			if err := client.Buddies.RefreshCollections(ctx, buddies.All); err != nil {
				return cli.Classify(err)
			}
			if err := client.Buddies.Connect(ctx, buddyID); err != nil {
				if errors.Is(err, buddies.ErrNotConnectable) {
					return cli.Validation("cannot connect with %d: status is %s", buddyID, client.Buddies.Status(buddyID))
				}
				return cli.Classify(err)
			}
			fmt.Fprintf(cli.Stdout, "Connection request sent to %d\n", buddyID)
			return nil
		},
	}
}

type buddiesRequestsParams struct {
	cli.Environment
	cli.JSONOutput
}

func buddiesRequestsCommand() *cli.Command {
	var params buddiesRequestsParams
	return &cli.Command{
		Name:    "requests",
		Summary: "List incoming connection requests",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("requests", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "studybuddy buddies requests"); err != nil {
				return err
			}
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Buddies.RefreshCollections(ctx, buddies.Requests); err != nil {
				return cli.Classify(err)
			}
			requests := client.Buddies.Snapshot().Requests
			if done, err := params.EmitJSON(requests); done {
				return err
			}
			if len(requests) == 0 {
				fmt.Fprintln(cli.Stdout, "No pending requests.")
				return nil
			}
			table := newTable()
			fmt.Fprintln(table, "REQUEST\tFROM\tUSERNAME\tSPECIALIZATION\tSENT")
			for _, request := range requests {
				fmt.Fprintf(table, "%d\t%d\t%s\t%s\t%s\n",
					request.ID, request.FromUserID, request.Username, request.Specialization, formatTime(request.CreatedAt))
			}
			return table.Flush()
		},
	}
}

type buddiesDecideParams struct {
	cli.Environment
}

func buddiesDecideCommand(name, summary string) *cli.Command {
	var params buddiesDecideParams
	usage := "studybuddy buddies " + name + " <request-id>"
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   usage,
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams(name, &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 1, usage); err != nil {
				return err
			}
			requestID, err := parseID(args, 0, "request id")
			if err != nil {
				return err
			}
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			decide := client.Buddies.AcceptRequest
			if name == "decline" {
				decide = client.Buddies.DeclineRequest
			}
			if err := decide(ctx, requestID); err != nil {
				return cli.Classify(err)
			}
			fmt.Fprintf(cli.Stdout, "Request %d %sed\n", requestID, strings.TrimSuffix(name, "e"))
			return nil
		},
	}
}
