// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/studybuddy/lib/secret"
)

// PasswordInput is embedded in params of commands that take a
// password. With --password-file the file is used ("-" reads the
// first line of stdin); otherwise the password is read from the
// terminal with echo disabled.
type PasswordInput struct {
	PasswordFile string `json:"-" flag:"password-file" desc:"read the password from this file instead of prompting"`
}

// ReadPassword returns the password as a secret buffer the caller must
// close.
func (p *PasswordInput) ReadPassword(prompt string) (*secret.Buffer, error) {
	if p.PasswordFile != "" {
		buffer, err := secret.ReadFromPath(p.PasswordFile)
		if err != nil {
			return nil, Validation("%w", err)
		}
		return buffer, nil
	}
	return promptSecret(prompt)
}

// ReadNewPassword prompts twice for a new password. With
// --password-file the one password read serves as its own
// confirmation.
func (p *PasswordInput) ReadNewPassword() (password, confirm *secret.Buffer, err error) {
	if p.PasswordFile != "" {
		if password, err = p.ReadPassword(""); err != nil {
			return nil, nil, err
		}
		if confirm, err = secret.NewFromString(password.String()); err != nil {
			password.Close()
			return nil, nil, Internal("copying password: %w", err)
		}
		return password, confirm, nil
	}
	if password, err = promptSecret("New password: "); err != nil {
		return nil, nil, err
	}
	if confirm, err = promptSecret("Confirm password: "); err != nil {
		password.Close()
		return nil, nil, err
	}
	return password, confirm, nil
}

func promptSecret(prompt string) (*secret.Buffer, error) {
	descriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(descriptor) {
		return nil, Validation("no terminal available for interactive password prompt (use --password-file)")
	}
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(descriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, Internal("reading password: %w", err)
	}
	buffer, err := secret.NewFromBytes(data)
	if err != nil {
		secret.Zero(data)
		return nil, Validation("%w", err)
	}
	return buffer, nil
}
