// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fakebackend

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

const resetCodeTTL = 15 * time.Minute

var resetPasswordPattern = regexp.MustCompile(`[0-9]`)

func (b *Backend) authRoutes(r chi.Router) {
	r.Post("/signup", b.signup)
	r.Post("/login", b.login)
	r.Post("/logout", b.logout)
	r.With(b.requireAuth).Get("/me", b.me)
	r.Post("/forgotpassword", b.forgotPassword)
	r.Post("/verify-reset-code", b.verifyResetCode)
	r.Post("/reset-password", b.resetPassword)
}

func (u *user) identity() map[string]any {
	return map[string]any{"id": u.id, "username": u.username, "email": u.email}
}

func (u *user) adminIdentity() map[string]any {
	identity := u.identity()
	identity["is_admin"] = u.admin
	return identity
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

func (b *Backend) signup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	body.Username = strings.TrimSpace(body.Username)
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if body.Username == "" || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	b.mu.Lock()
	for _, existing := range b.users {
		if existing.email == body.Email {
			b.mu.Unlock()
			writeError(w, http.StatusBadRequest, "Email already registered")
			return
		}
		if existing.username == body.Username {
			b.mu.Unlock()
			writeError(w, http.StatusBadRequest, "Username already taken")
			return
		}
	}
	created := b.createUserLocked(body.Username, body.Email, hash)
	created.lastLogin = b.now()
	b.startSessionLocked(w, created.id)
	b.mu.Unlock()

	response := map[string]any{"message": "User registered successfully", "user": created.identity()}
	b.attachToken(response, created.id)
	writeJSON(w, http.StatusCreated, response)
}

func (b *Backend) attachToken(response map[string]any, userID int64) {
	if !b.disableTokens {
		response["access_token"] = b.IssueToken(userID, b.tokenTTL)
	}
}

// checkCredentials returns the matching active user or nil.
func (b *Backend) checkCredentials(w http.ResponseWriter, r *http.Request) *user {
	var body credentials
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return nil
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))

	b.mu.Lock()
	var match *user
	for _, candidate := range b.users {
		if candidate.email == email {
			match = candidate
			break
		}
	}
	b.mu.Unlock()

	if match == nil || bcrypt.CompareHashAndPassword(match.passwordHash, []byte(body.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return nil
	}
	if !match.active {
		writeError(w, http.StatusForbidden, "Account is deactivated")
		return nil
	}
	return match
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	account := b.checkCredentials(w, r)
	if account == nil {
		return
	}
	b.mu.Lock()
	account.lastLogin = b.now()
	b.startSessionLocked(w, account.id)
	b.mu.Unlock()

	response := map[string]any{"message": "Login successful", "user": account.identity()}
	b.attachToken(response, account.id)
	writeJSON(w, http.StatusOK, response)
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	b.endSession(w, r)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	account := b.users[userIDFrom(r)]
	identity := account.identity()
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, identity)
}

func (b *Backend) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil || strings.TrimSpace(body.Email) == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))

	b.mu.Lock()
	for _, candidate := range b.users {
		if candidate.email == email {
			b.resetCodes[email] = resetCode{code: newResetCode(), expires: b.now().Add(resetCodeTTL)}
			break
		}
	}
	b.mu.Unlock()

	// Same answer whether or not the address is registered.
	writeJSON(w, http.StatusOK, map[string]any{"message": "If this email is registered, a reset code has been sent"})
}

func newResetCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		panic("fakebackend: generating reset code: " + err.Error())
	}
	return fmt.Sprintf("%06d", n.Int64())
}

// validCodeLocked reports whether code is the live code for email.
func (b *Backend) validCodeLocked(email, code string) bool {
	stored, ok := b.resetCodes[email]
	return ok && stored.code == code && b.now().Before(stored.expires)
}

func (b *Backend) verifyResetCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	b.mu.Lock()
	valid := b.validCodeLocked(strings.ToLower(strings.TrimSpace(body.Email)), strings.TrimSpace(body.Code))
	b.mu.Unlock()
	if !valid {
		writeError(w, http.StatusBadRequest, "Invalid or expired code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Code verified"})
}

func (b *Backend) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if len(body.NewPassword) < 6 || !resetPasswordPattern.MatchString(body.NewPassword) {
		writeError(w, http.StatusBadRequest, "Password does not meet requirements")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(body.NewPassword), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.validCodeLocked(email, strings.TrimSpace(body.Code)) {
		writeError(w, http.StatusBadRequest, "Invalid or expired code")
		return
	}
	for _, candidate := range b.users {
		if candidate.email == email {
			candidate.passwordHash = hash
		}
	}
	delete(b.resetCodes, email)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password reset successfully"})
}
