// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"net/url"
	"regexp"
	"strings"
)

// Profile is the editable study profile of a user.
type Profile struct {
	Bio            string     `json:"bio"`
	Interests      StringList `json:"interests"`
	Specialization string     `json:"specialization"`
	Level          string     `json:"level"`
	Schedule       string     `json:"schedule"`

	// ProfilePicture is either an absolute URL or a path relative to
	// the backend host (e.g. "/uploads/profile_pics/3_me.png"). Empty
	// when no picture has been uploaded.
	ProfilePicture string `json:"profile_picture"`
}

// ProfileResponse is the body of GET /profile.
type ProfileResponse struct {
	User    Identity `json:"user"`
	Profile Profile  `json:"profile"`
}

// ProfileUpdate is a partial profile update. Nil fields are omitted
// from the request and left unchanged server-side.
type ProfileUpdate struct {
	Bio            *string  `json:"bio,omitempty"`
	Interests      []string `json:"interests,omitempty"`
	Specialization *string  `json:"specialization,omitempty"`
	Level          *string  `json:"level,omitempty"`
	Schedule       *string  `json:"schedule,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Bio == nil && u.Interests == nil && u.Specialization == nil &&
		u.Level == nil && u.Schedule == nil
}

// FormFields renders the update as multipart form fields. Interests are
// joined with ", " to match the server's storage format.
func (u ProfileUpdate) FormFields() map[string]string {
	fields := make(map[string]string)
	if u.Bio != nil {
		fields["bio"] = *u.Bio
	}
	if u.Interests != nil {
		fields["interests"] = strings.Join(u.Interests, ", ")
	}
	if u.Specialization != nil {
		fields["specialization"] = *u.Specialization
	}
	if u.Level != nil {
		fields["level"] = *u.Level
	}
	if u.Schedule != nil {
		fields["schedule"] = *u.Schedule
	}
	return fields
}

// Apply returns a copy of profile with every non-nil field of the
// update applied.
func (u ProfileUpdate) Apply(profile Profile) Profile {
	if u.Bio != nil {
		profile.Bio = *u.Bio
	}
	if u.Interests != nil {
		profile.Interests = append(StringList(nil), u.Interests...)
	}
	if u.Specialization != nil {
		profile.Specialization = *u.Specialization
	}
	if u.Level != nil {
		profile.Level = *u.Level
	}
	if u.Schedule != nil {
		profile.Schedule = *u.Schedule
	}
	return profile
}

const avatarPlaceholderBase = "https://placehold.co/100/ff0000/ffffff?text="

var nonLetters = regexp.MustCompile(`[^a-zA-Z\s]`)

// InitialsAvatar returns a placeholder avatar URL carrying up to two
// initials derived from username. A single word contributes its first
// two letters; multiple words contribute one letter each from the first
// two. Non-letters are ignored. Falls back to "US".
func InitialsAvatar(username string) string {
	cleaned := nonLetters.ReplaceAllString(strings.Join(strings.Fields(username), " "), "")
	words := strings.Fields(cleaned)

	var initials string
	switch len(words) {
	case 0:
	case 1:
		word := words[0]
		if len(word) > 2 {
			word = word[:2]
		}
		initials = strings.ToUpper(word)
	default:
		initials = strings.ToUpper(words[0][:1] + words[1][:1])
	}
	if initials == "" {
		initials = "US"
	}
	return avatarPlaceholderBase + url.QueryEscape(initials)
}

// ProfilePictureURL resolves the picture to display for a profile.
// Absolute URLs are returned unchanged; paths are resolved against the
// origin of baseURL (the API prefix is not part of upload paths). With
// no picture, the initials avatar for the identity is returned.
func ProfilePictureURL(baseURL string, profile Profile, identity Identity) string {
	picture := strings.TrimSpace(profile.ProfilePicture)
	if picture == "" {
		return InitialsAvatar(identity.Username)
	}
	if parsed, err := url.Parse(picture); err == nil && parsed.IsAbs() {
		return picture
	}
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		return picture
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host}
	return origin.String() + "/" + strings.TrimLeft(picture, "/")
}
