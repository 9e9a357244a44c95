// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fakebackend

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
)

const maxUploadBytes = 5 << 20

var allowedPictureExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// profileFields is the update accepted by PUT /profile in either
// encoding. Nil fields are left unchanged.
type profileFields struct {
	Bio            *string `json:"bio"`
	Interests      any     `json:"interests"`
	Specialization *string `json:"specialization"`
	Level          *string `json:"level"`
	Schedule       *string `json:"schedule"`
}

func (b *Backend) getProfile(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	account := b.users[userIDFrom(r)]
	if account.profile == nil {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	current := account.profile
	var picture any
	if current.picture != "" {
		picture = current.picture
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": account.identity(),
		"profile": map[string]any{
			"bio":             current.bio,
			"interests":       append([]string{}, current.interests...),
			"specialization":  current.specialization,
			"level":           current.level,
			"schedule":        current.schedule,
			"profile_picture": picture,
		},
	})
}

func (b *Backend) putProfile(w http.ResponseWriter, r *http.Request) {
	var fields profileFields
	var picture string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	userID := userIDFrom(r)

	switch mediaType {
	case "application/json":
		if err := decodeJSON(r, &fields); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid form data")
			return
		}
		fields = formFields(r)
		file, header, err := r.FormFile("profilePic")
		if err == nil {
			defer file.Close()
			name := path.Base(header.Filename)
			if !allowedPictureExtensions[strings.ToLower(path.Ext(name))] {
				writeError(w, http.StatusBadRequest, "Invalid file type")
				return
			}
			if _, err := io.Copy(io.Discard, file); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid file upload")
				return
			}
			picture = fmt.Sprintf("/uploads/profile_pics/%d_%s", userID, name)
		}
	default:
		writeError(w, http.StatusUnsupportedMediaType,
			"Unsupported media type. Use multipart/form-data for file uploads or application/json for data only.")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	account := b.users[userID]
	if account.profile == nil {
		account.profile = &profile{level: "Beginner"}
	}
	current := account.profile
	if fields.Bio != nil {
		current.bio = *fields.Bio
	}
	if interests, ok := interestList(fields.Interests); ok {
		current.interests = interests
	}
	if fields.Specialization != nil {
		current.specialization = *fields.Specialization
	}
	if fields.Level != nil {
		current.level = *fields.Level
	}
	if fields.Schedule != nil {
		current.schedule = *fields.Schedule
	}
	if picture != "" {
		current.picture = picture
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated successfully"})
}

func formFields(r *http.Request) profileFields {
	var fields profileFields
	value := func(name string) *string {
		if values, ok := r.MultipartForm.Value[name]; ok && len(values) > 0 {
			return &values[0]
		}
		return nil
	}
	fields.Bio = value("bio")
	fields.Specialization = value("specialization")
	fields.Level = value("level")
	fields.Schedule = value("schedule")
	if interests := value("interests"); interests != nil {
		fields.Interests = *interests
	}
	return fields
}

// interestList accepts the JSON array form and the comma-separated
// form the backend stores.
func interestList(raw any) ([]string, bool) {
	var parts []string
	switch value := raw.(type) {
	case string:
		parts = strings.Split(value, ",")
	case []any:
		for _, item := range value {
			if text, ok := item.(string); ok {
				parts = append(parts, text)
			}
		}
	default:
		return nil, false
	}
	interests := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			interests = append(interests, trimmed)
		}
	}
	return interests, true
}

// personalizedChallenges builds a short challenge list from the
// caller's specialization and interests.
func (b *Backend) personalizedChallenges(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	account := b.users[userIDFrom(r)]
	var specialization string
	var interests []string
	if account.profile != nil {
		specialization = account.profile.specialization
		interests = append(interests, account.profile.interests...)
	}
	b.mu.Unlock()

	if specialization == "" {
		specialization = "General Studies"
	}
	challenges := []map[string]any{{
		"id":          1,
		"title":       "Master the basics of " + specialization,
		"description": "Work through an introductory module in " + specialization,
		"category":    specialization,
		"difficulty":  "Beginner",
		"duration":    "7 days",
		"xp_reward":   250,
		"progress":    0,
		"resources":   []string{},
	}}
	for i, interest := range interests {
		if i == 2 {
			break
		}
		challenges = append(challenges, map[string]any{
			"id":          i + 2,
			"title":       "Study session: " + interest,
			"description": "Pair with a buddy for a focused session on " + interest,
			"category":    interest,
			"difficulty":  "Intermediate",
			"duration":    "3 days",
			"xp_reward":   150,
			"progress":    0,
			"resources":   []string{},
		})
	}
	writeJSON(w, http.StatusOK, challenges)
}
