// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"io"
	"net/http"

	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// ProfilePictureField is the multipart field the backend reads the
// uploaded picture from.
const ProfilePictureField = "profilePic"

// Picture is an image uploaded with a profile update.
type Picture struct {
	Filename string
	Content  io.Reader
}

// ProfileUpdateResult is what PUT /profile returned. The backend
// sometimes echoes the updated user and sometimes only a message.
type ProfileUpdateResult struct {
	Message string

	// User is the echoed user, or nil when the response carried no
	// identifiable user object.
	User *schema.Identity
}

// Profile fetches GET /profile.
func (c *Client) Profile(ctx context.Context) (*schema.ProfileResponse, error) {
	var profile schema.ProfileResponse
	if err := c.get(ctx, "/profile", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile sends a JSON PUT /profile.
func (c *Client) UpdateProfile(ctx context.Context, update schema.ProfileUpdate) (*ProfileUpdateResult, error) {
	return c.putProfile(ctx, Request{Method: http.MethodPut, Path: "/profile", Body: update})
}

// UpdateProfilePicture sends a multipart PUT /profile carrying the
// update's fields and one picture.
func (c *Client) UpdateProfilePicture(ctx context.Context, update schema.ProfileUpdate, picture Picture) (*ProfileUpdateResult, error) {
	return c.putProfile(ctx, Request{
		Method: http.MethodPut,
		Path:   "/profile",
		Form: &Multipart{
			Fields: update.FormFields(),
			Files: []FilePart{{
				Field:    ProfilePictureField,
				Filename: picture.Filename,
				Content:  picture.Content,
			}},
		},
	})
}

func (c *Client) putProfile(ctx context.Context, request Request) (*ProfileUpdateResult, error) {
	response, err := c.Do(ctx, request)
	if err != nil {
		return nil, err
	}
	result := &ProfileUpdateResult{User: IdentityFromFields(response.Fields)}
	result.Message, _ = response.Fields["message"].(string)
	return result, nil
}
