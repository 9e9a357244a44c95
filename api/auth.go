// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/studybuddy/lib/schema"
	"github.com/bureau-foundation/studybuddy/lib/secret"
)

// Credentials are the inputs to Login and AdminLogin. The password is
// read out of its buffer only while the request body is encoded.
type Credentials struct {
	Email    string
	Password *secret.Buffer

	// Remember asks the backend for a persistent session cookie.
	Remember bool
}

// Registration is the input to Signup.
type Registration struct {
	Username string
	Email    string
	Password *secret.Buffer
}

// AuthResult is what an authentication endpoint returned.
type AuthResult struct {
	Message string

	// User is nil when the response carried no identifiable user.
	User *schema.Identity

	// Token is empty when the backend relies on the session cookie
	// alone.
	Token string
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type signupBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates with POST /auth/login.
func (c *Client) Login(ctx context.Context, credentials Credentials) (*AuthResult, error) {
	return c.login(ctx, "/auth/login", credentials)
}

// AdminLogin authenticates with POST /admin/login. The backend rejects
// non-admin accounts with 401.
func (c *Client) AdminLogin(ctx context.Context, credentials Credentials) (*AuthResult, error) {
	return c.login(ctx, "/admin/login", credentials)
}

func (c *Client) login(ctx context.Context, path string, credentials Credentials) (*AuthResult, error) {
	if credentials.Password == nil {
		return nil, fmt.Errorf("api: %s: password is required", path)
	}
	return c.authenticate(ctx, path, loginBody{
		Email:    credentials.Email,
		Password: credentials.Password.String(),
		Remember: credentials.Remember,
	})
}

// Signup registers with POST /auth/signup. The backend logs the new
// account in as part of the same call.
func (c *Client) Signup(ctx context.Context, registration Registration) (*AuthResult, error) {
	if registration.Password == nil {
		return nil, fmt.Errorf("api: /auth/signup: password is required")
	}
	return c.authenticate(ctx, "/auth/signup", signupBody{
		Username: registration.Username,
		Email:    registration.Email,
		Password: registration.Password.String(),
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*AuthResult, error) {
	response, err := c.Do(ctx, Request{
		Method:               http.MethodPost,
		Path:                 path,
		Body:                 body,
		SkipUnauthorizedHook: true,
	})
	if err != nil {
		return nil, err
	}
	result := &AuthResult{
		Token: ExtractToken(response.Fields),
		User:  IdentityFromFields(response.Fields),
	}
	result.Message, _ = response.Fields["message"].(string)
	return result, nil
}

// Logout ends the session with POST /auth/logout.
func (c *Client) Logout(ctx context.Context) error {
	return c.logout(ctx, "/auth/logout")
}

// AdminLogout ends the session with POST /admin/logout.
func (c *Client) AdminLogout(ctx context.Context) error {
	return c.logout(ctx, "/admin/logout")
}

func (c *Client) logout(ctx context.Context, path string) error {
	_, err := c.Do(ctx, Request{Method: http.MethodPost, Path: path, SkipUnauthorizedHook: true})
	return err
}

// Me verifies the session with GET /auth/me.
func (c *Client) Me(ctx context.Context) (*schema.Identity, error) {
	return c.verify(ctx, "/auth/me")
}

// AdminMe verifies an admin session with GET /admin/me. The backend
// answers 401 (or 403) for a session that is not an admin's.
func (c *Client) AdminMe(ctx context.Context) (*schema.Identity, error) {
	return c.verify(ctx, "/admin/me")
}

func (c *Client) verify(ctx context.Context, path string) (*schema.Identity, error) {
	response, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, SkipUnauthorizedHook: true})
	if err != nil {
		return nil, err
	}
	identity := IdentityFromFields(response.Fields)
	if identity == nil {
		return nil, &ParseError{Method: http.MethodGet, Path: path, Err: fmt.Errorf("no identity in response")}
	}
	return identity, nil
}

// IdentityFromFields extracts a user from a response object: the "user"
// member if it is an identifiable object, else the root itself if the
// root is identifiable. An object is identifiable when it carries a
// non-zero id or an email. Returns nil when neither qualifies.
func IdentityFromFields(fields map[string]any) *schema.Identity {
	if nested, ok := fields["user"].(map[string]any); ok {
		if identity := decodeIdentity(nested); identity != nil {
			return identity
		}
	}
	return decodeIdentity(fields)
}

func decodeIdentity(object map[string]any) *schema.Identity {
	if len(object) == 0 {
		return nil
	}
	encoded, err := json.Marshal(object)
	if err != nil {
		return nil
	}
	var identity schema.Identity
	if err := json.Unmarshal(encoded, &identity); err != nil {
		return nil
	}
	if identity.ID == 0 && identity.Email == "" {
		return nil
	}
	return &identity
}
