// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/studybuddy/api"
	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/cli"
	"github.com/bureau-foundation/studybuddy/lib/schema"
)

func profileCommand() *cli.Command {
	return &cli.Command{
		Name:        "profile",
		Summary:     "Show or edit your study profile",
		Subcommands: []*cli.Command{profileShowCommand(), profileUpdateCommand()},
	}
}

type profileShowParams struct {
	cli.Environment
	cli.JSONOutput
}

func profileShowCommand() *cli.Command {
	var params profileShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "Show your profile",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("show", &params) },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "studybuddy profile show"); err != nil {
				return err
			}
			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			profile, err := client.Client.Profile(ctx)
			if api.IsNotFound(err) {
				return cli.NotFound("no study profile yet (create one with 'studybuddy profile update')")
			}
			if err != nil {
				return cli.Classify(err)
			}
			if done, err := params.EmitJSON(profile); done {
				return err
			}
			table := newTable()
			fmt.Fprintf(table, "User:\t%s <%s>\n", profile.User.Username, profile.User.Email)
			fmt.Fprintf(table, "Specialization:\t%s\n", profile.Profile.Specialization)
			fmt.Fprintf(table, "Level:\t%s\n", profile.Profile.Level)
			fmt.Fprintf(table, "Interests:\t%s\n", strings.Join(profile.Profile.Interests, ", "))
			fmt.Fprintf(table, "Schedule:\t%s\n", profile.Profile.Schedule)
			fmt.Fprintf(table, "Bio:\t%s\n", profile.Profile.Bio)
			if profile.Profile.ProfilePicture != "" {
				fmt.Fprintf(table, "Picture:\t%s\n", profile.Profile.ProfilePicture)
			}
			return table.Flush()
		},
	}
}

type profileUpdateParams struct {
	cli.Environment
	cli.JSONOutput
	Bio            string   `flag:"bio" desc:"short biography"`
	Interests      []string `flag:"interests" desc:"comma-separated interests (replaces the list)"`
	Specialization string   `flag:"specialization" desc:"field of study"`
	Level          string   `flag:"level" desc:"Beginner, Intermediate or Advanced"`
	Schedule       string   `flag:"schedule" desc:"when you like to study"`
	Picture        string   `flag:"picture" desc:"image file to upload as the profile picture"`
}

// update converts the flags the user actually set into a partial
// update.
func (p *profileUpdateParams) update(flagSet *pflag.FlagSet) schema.ProfileUpdate {
	var update schema.ProfileUpdate
	set := func(name string, value string) *string {
		if flagSet.Changed(name) {
			return &value
		}
		return nil
	}
	update.Bio = set("bio", p.Bio)
	update.Specialization = set("specialization", p.Specialization)
	update.Level = set("level", p.Level)
	update.Schedule = set("schedule", p.Schedule)
	if flagSet.Changed("interests") {
		update.Interests = append([]string{}, p.Interests...)
	}
	return update
}

func profileUpdateCommand() *cli.Command {
	var params profileUpdateParams
	var flagSet *pflag.FlagSet
	return &cli.Command{
		Name:    "update",
		Summary: "Change profile fields",
		Description: `Change the profile fields given as flags; others are left as they are.
With --picture the update is sent as a multipart upload.`,
		Examples: []cli.Example{
			{Command: "studybuddy profile update --specialization Mathematics --interests algebra,topology"},
			{Command: "studybuddy profile update --picture ~/me.png"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet = cli.FlagsFromParams("update", &params)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, 0, "studybuddy profile update [flags]"); err != nil {
				return err
			}
			update := params.update(flagSet)
			if update.IsEmpty() && params.Picture == "" {
				return cli.Validation("nothing to update (see 'studybuddy profile update --help')")
			}

			var picture *api.Picture
			if params.Picture != "" {
				file, err := os.Open(params.Picture)
				if err != nil {
					return cli.Validation("opening picture: %w", err)
				}
				defer file.Close()
				picture = &api.Picture{Filename: filepath.Base(params.Picture), Content: file}
			}

			client, _, err := params.OpenSession(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			identity, err := client.Session.UpdateProfile(ctx, update, picture)
			if err != nil {
				return cli.Classify(err)
			}
			if done, err := params.EmitJSON(identity); done {
				return err
			}
			fmt.Fprintln(cli.Stdout, "Profile updated")
			return nil
		},
	}
}
