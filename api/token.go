// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import "context"

// TokenSource supplies the cached bearer token for each request. An
// empty string means no token is cached.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

type tokenOverrideKey struct{}

// WithToken returns a context whose requests authenticate with token
// instead of the client's TokenSource. An empty token sends no
// Authorization header at all. Login flows use this to verify a token
// before it is committed to the credential store.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenOverrideKey{}, token)
}

func tokenOverride(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenOverrideKey{}).(string)
	return token, ok
}

// ExtractToken finds a bearer token in an authentication response. The
// backend has shipped it under several names over time.
func ExtractToken(fields map[string]any) string {
	for _, key := range []string{"access_token", "token", "access"} {
		if token, ok := fields[key].(string); ok && token != "" {
			return token
		}
	}
	if data, ok := fields["data"].(map[string]any); ok {
		for _, key := range []string{"access_token", "token"} {
			if token, ok := data[key].(string); ok && token != "" {
				return token
			}
		}
	}
	return ""
}
