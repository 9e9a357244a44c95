// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/cli"
	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/commands"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		// Scripts branch on the exit code; see cli.ErrorCategory.
		var toolErr *cli.ToolError
		if errors.As(err, &toolErr) {
			os.Exit(toolErr.Code())
		}
		os.Exit(1)
	}
}

func run() error {
	// A development checkout keeps STUDYBUDDY_* settings in .env.
	if os.Getenv("STUDYBUDDY_ENV") == "dev" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cli.NewCommandLogger(slog.LevelInfo)
	return commands.Root().Execute(ctx, os.Args[1:], logger)
}
