// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/studybuddy/lib/secret"
)

// RecoveryGateway is the subset of *api.Client used for password
// recovery.
type RecoveryGateway interface {
	ForgotPassword(ctx context.Context, email string) (string, error)
	VerifyResetCode(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, code string, password *secret.Buffer) error
}

// Recovery runs the password reset flow. It never touches the session:
// the user logs in normally once the password is changed.
type Recovery struct {
	gateway RecoveryGateway
	logger  *slog.Logger
}

// NewRecovery returns a Recovery. A nil logger uses slog.Default().
func NewRecovery(gateway RecoveryGateway, logger *slog.Logger) (*Recovery, error) {
	if gateway == nil {
		return nil, fmt.Errorf("session: recovery gateway is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recovery{gateway: gateway, logger: logger}, nil
}

// RequestCode asks for a reset code to be mailed to email.
func (r *Recovery) RequestCode(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return "", err
	}
	message, err := r.gateway.ForgotPassword(ctx, email)
	if err != nil {
		return "", actionError("forgot_password", err)
	}
	return message, nil
}

// VerifyCode checks a reset code.
func (r *Recovery) VerifyCode(ctx context.Context, email, code string) error {
	email, code = strings.TrimSpace(email), strings.TrimSpace(code)
	if err := validateCode(email, code); err != nil {
		return err
	}
	if err := r.gateway.VerifyResetCode(ctx, email, code); err != nil {
		return actionError("verify_reset_code", err)
	}
	return nil
}

// Reset sets a new password. The new password must meet the reset
// policy and match confirm.
func (r *Recovery) Reset(ctx context.Context, email, code string, password, confirm *secret.Buffer) error {
	email, code = strings.TrimSpace(email), strings.TrimSpace(code)
	var errs []error
	if err := validateCode(email, code); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateResetPassword(password); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateConfirmation(password, confirm); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if err := r.gateway.ResetPassword(ctx, email, code, password); err != nil {
		return actionError("reset_password", err)
	}
	r.logger.Info("password reset", "email", email)
	return nil
}

func validateCode(email, code string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if code == "" {
		return &ValidationError{Field: "code", Message: "Reset code is required"}
	}
	return nil
}
