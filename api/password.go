// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/studybuddy/lib/secret"
)

// The password reset flow is unauthenticated: request a code by email,
// optionally check it, then submit it with the new password. Codes
// expire server-side after fifteen minutes.

// ForgotPassword asks the backend to email a reset code. The backend
// answers the same way whether or not the address is registered.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	response, err := c.Do(ctx, Request{
		Method:               http.MethodPost,
		Path:                 "/auth/forgotpassword",
		Body:                 map[string]string{"email": email},
		SkipUnauthorizedHook: true,
	})
	if err != nil {
		return "", err
	}
	message, _ := response.Fields["message"].(string)
	return message, nil
}

// VerifyResetCode checks a reset code without consuming it.
func (c *Client) VerifyResetCode(ctx context.Context, email, code string) error {
	_, err := c.Do(ctx, Request{
		Method:               http.MethodPost,
		Path:                 "/auth/verify-reset-code",
		Body:                 map[string]string{"email": email, "code": code},
		SkipUnauthorizedHook: true,
	})
	return err
}

// ResetPassword sets a new password using a reset code.
func (c *Client) ResetPassword(ctx context.Context, email, code string, password *secret.Buffer) error {
	if password == nil {
		return fmt.Errorf("api: /auth/reset-password: password is required")
	}
	_, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/reset-password",
		Body: map[string]string{
			"email":       email,
			"code":        code,
			"newPassword": password.String(),
		},
		SkipUnauthorizedHook: true,
	})
	return err
}
