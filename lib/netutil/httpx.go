// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds HTTP I/O helpers shared by the gateway and the
// test backend.
package netutil

import (
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON response body reads at 32 MB. The
// largest legitimate response (an admin user listing) is a few hundred
// kilobytes; the bound only guards against a misbehaving server.
const MaxResponseSize int64 = 32 << 20

// ErrResponseTooLarge is returned when a body exceeds MaxResponseSize.
var ErrResponseTooLarge = fmt.Errorf("netutil: response body exceeds %d bytes", MaxResponseSize)

// ReadResponse reads a response body up to MaxResponseSize. A body
// longer than the bound is an error rather than a silent truncation,
// since a truncated JSON document would otherwise surface as a
// confusing parse failure.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("netutil: reading response body: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}
