// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/studybuddy/api"
)

// ErrorCategory classifies command errors so scripts can tell bad
// input from server refusals without parsing text.
type ErrorCategory string

const (
	CategoryValidation   ErrorCategory = "validation"
	CategoryUnauthorized ErrorCategory = "unauthorized"
	CategoryNotFound     ErrorCategory = "not_found"
	CategoryForbidden    ErrorCategory = "forbidden"
	CategoryConflict     ErrorCategory = "conflict"
	CategoryTransient    ErrorCategory = "transient"
	CategoryInternal     ErrorCategory = "internal"
)

// exitCodes maps categories to process exit codes.
var exitCodes = map[ErrorCategory]int{
	CategoryValidation:   2,
	CategoryUnauthorized: 3,
	CategoryForbidden:    4,
	CategoryNotFound:     5,
	CategoryConflict:     6,
	CategoryTransient:    7,
	CategoryInternal:     1,
}

// ToolError is a categorized command error. Use the category
// constructors rather than building one directly.
type ToolError struct {
	Category ErrorCategory
	Err      error
}

func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// Code is the process exit code for the error's category.
func (e *ToolError) Code() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

func Forbidden(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryForbidden, Err: fmt.Errorf(format, args...)}
}

func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// Classify wraps err in a ToolError whose category follows the
// gateway failure inside it. The message shown is the user-facing one
// from api.Message; the full chain stays reachable through Unwrap.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return err
	}
	category := CategoryInternal
	var networkErr *api.NetworkError
	switch status := api.StatusOf(err); {
	case status == http.StatusUnauthorized:
		category = CategoryUnauthorized
	case status == http.StatusForbidden:
		category = CategoryForbidden
	case status == http.StatusNotFound:
		category = CategoryNotFound
	case status == http.StatusConflict:
		category = CategoryConflict
	case status >= 400 && status < 500:
		category = CategoryValidation
	case status >= 500, errors.As(err, &networkErr):
		category = CategoryTransient
	}
	return &ToolError{Category: category, Err: &userMessage{message: messageOf(err), err: err}}
}

// messageOf prefers the error's own text when it is a user-facing
// action error, and the gateway's summary otherwise.
func messageOf(err error) string {
	var httpErr *api.HTTPError
	var networkErr *api.NetworkError
	var parseErr *api.ParseError
	if errors.As(err, &httpErr) || errors.As(err, &networkErr) || errors.As(err, &parseErr) {
		if message := api.Message(err); message != "" {
			return message
		}
	}
	return err.Error()
}

type userMessage struct {
	message string
	err     error
}

func (m *userMessage) Error() string { return m.message }

func (m *userMessage) Unwrap() error { return m.err }
