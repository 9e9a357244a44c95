// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// NetworkError means no HTTP response was received: the connection
// failed, the request was cancelled, or the body could not be read.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("api: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response. Message is the best-effort
// human-readable reason taken from the body's error, msg, or message
// field, falling back to the status text.
type HTTPError struct {
	StatusCode int
	Message    string
	Method     string
	Path       string
	RequestID  string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("api: %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// ParseError means a 2xx response did not carry the JSON shape the
// caller required.
type ParseError struct {
	Method string
	Path   string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("api: %s %s: unexpected response body: %v", e.Method, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errNotJSON = errors.New("body is not JSON")

// StatusOf returns the HTTP status carried by err, or 0 if err is not
// an *HTTPError.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool { return StatusOf(err) == http.StatusUnauthorized }

// IsForbidden reports whether err is a 403 response.
func IsForbidden(err error) bool { return StatusOf(err) == http.StatusForbidden }

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool { return StatusOf(err) == http.StatusNotFound }

// Message returns a single human-readable sentence for err, suitable
// for showing to a user. Transport details are not included.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The server took too long to respond"
	}
	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		return "Unable to reach the server"
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return "Unexpected response from the server"
	}
	return err.Error()
}
