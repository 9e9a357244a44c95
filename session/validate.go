// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/bureau-foundation/studybuddy/lib/secret"
)

// ValidationError is a client-side form check that failed before any
// request was sent.
type ValidationError struct {
	// Field names the offending input: username, email, password, or
	// confirm_password.
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 6

// ValidateEmail checks the address shape the signup form accepts.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Message: "Email is invalid"}
	}
	return nil
}

// ValidatePassword checks the signup policy: at least six characters,
// one lowercase and one uppercase letter.
func ValidatePassword(password *secret.Buffer) error {
	if password == nil || !passwordPolicy(password.String(), false) {
		return &ValidationError{
			Field:   "password",
			Message: "Password must have at least 6 characters, 1 uppercase and 1 lowercase letter.",
		}
	}
	return nil
}

// ValidateResetPassword checks the stricter reset policy, which also
// requires a digit.
func ValidateResetPassword(password *secret.Buffer) error {
	if password == nil || !passwordPolicy(password.String(), true) {
		return &ValidationError{
			Field:   "password",
			Message: "Password must have at least 6 characters, 1 uppercase letter, 1 lowercase letter, and 1 number.",
		}
	}
	return nil
}

func passwordPolicy(password string, requireDigit bool) bool {
	if len([]rune(password)) < minPasswordLength {
		return false
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && (digit || !requireDigit)
}

// ValidateConfirmation checks that the confirmation matches.
func ValidateConfirmation(password, confirm *secret.Buffer) error {
	if password == nil || confirm == nil || !password.Equal(confirm) {
		return &ValidationError{Field: "confirm_password", Message: "Passwords do not match"}
	}
	return nil
}

// ValidateLogin checks that both login fields are present.
func ValidateLogin(email string, password *secret.Buffer) error {
	if strings.TrimSpace(email) == "" || password == nil || password.Len() == 0 {
		return &ValidationError{Field: "email", Message: "Email and password are required"}
	}
	return nil
}

// ValidateSignup runs every signup check and reports all failures.
// Use errors.As to reach the first *ValidationError.
func ValidateSignup(registration Registration) error {
	var errs []error
	if strings.TrimSpace(registration.Username) == "" {
		errs = append(errs, &ValidationError{Field: "username", Message: "Username is required"})
	}
	if err := ValidateEmail(registration.Email); err != nil {
		errs = append(errs, err)
	}
	if err := ValidatePassword(registration.Password); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateConfirmation(registration.Password, registration.Confirm); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
