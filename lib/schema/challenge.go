// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Challenge is a personalized study challenge.
type Challenge struct {
	ID          FlexibleID `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Difficulty  string     `json:"difficulty"`
	Duration    string     `json:"duration"`
	XPReward    int        `json:"xp_reward"`
	Progress    int        `json:"progress"`
	Resources   []string   `json:"resources"`
}

// FallbackChallenges is shown when the personalized challenge fetch
// fails. The list is never empty so the dashboard always has something
// to render.
func FallbackChallenges() []Challenge {
	return []Challenge{{
		ID:          "fallback-1",
		Title:       "Complete 5 coding exercises",
		Description: "Practice your programming skills with daily exercises",
		Category:    "Programming",
		Difficulty:  "Beginner",
		Duration:    "5 days",
		XPReward:    200,
		Progress:    40,
		Resources:   []string{},
	}}
}
