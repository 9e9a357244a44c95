// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"

	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// PersonalizedChallenges fetches GET /challenges/personalized.
func (c *Client) PersonalizedChallenges(ctx context.Context) ([]schema.Challenge, error) {
	var challenges []schema.Challenge
	if err := c.get(ctx, "/challenges/personalized", nil, &challenges); err != nil {
		return nil, err
	}
	return challenges, nil
}
