// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fakebackend is an in-memory implementation of the StudyBuddy
// REST backend for tests. It serves every route the client uses under
// /api, authenticates with either a bearer JWT or a session cookie, and
// reproduces the backend's status codes and error bodies closely
// enough that client behavior against it matches production.
//
// Tests seed users with [Backend.AddUser], read reset codes with
// [Backend.ResetCode], mint expired tokens with [Backend.IssueToken],
// and inject one-shot failures with [Backend.FailNext].
package fakebackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SessionCookie is the name of the cookie carrying the server session.
const SessionCookie = "session"

const defaultTokenTTL = 24 * time.Hour

// timestampLayout matches the backend's naive ISO-8601 output.
const timestampLayout = "2006-01-02T15:04:05.000000"

// Config holds the parameters for New. Every field is optional.
type Config struct {
	// Secret signs bearer tokens. Defaults to a random value.
	Secret []byte

	// TokenTTL defaults to 24 hours.
	TokenTTL time.Duration

	// DisableTokens makes login and signup rely on the session cookie
	// alone, as the backend does when JWT issuance is turned off.
	DisableTokens bool

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

type user struct {
	id           int64
	username     string
	email        string
	passwordHash []byte
	admin        bool
	active       bool
	createdAt    time.Time
	lastLogin    time.Time
	profile      *profile
}

type profile struct {
	bio            string
	interests      []string
	specialization string
	level          string
	schedule       string
	picture        string
}

type connection struct {
	id        int64
	from      int64
	to        int64
	status    string
	createdAt time.Time
}

type notification struct {
	id        int64
	userID    int64
	kind      string
	title     string
	message   string
	timestamp time.Time
	read      bool
	data      map[string]any
}

type message struct {
	id        int64
	sender    int64
	receiver  int64
	content   string
	kind      string
	timestamp time.Time
	read      bool
}

type resetCode struct {
	code    string
	expires time.Time
}

type failure struct {
	status  int
	message string
}

// Backend is the fake server state. Safe for concurrent use.
type Backend struct {
	secret        []byte
	tokenTTL      time.Duration
	disableTokens bool
	now           func() time.Time
	logger        *slog.Logger
	router        chi.Router

	mu            sync.Mutex
	nextID        int64
	users         map[int64]*user
	sessions      map[string]int64
	connections   map[int64]*connection
	notifications map[int64]*notification
	messages      []*message
	resetCodes    map[string]resetCode
	failures      map[string]failure
	requests      []string
}

// New creates an empty Backend.
func New(config Config) *Backend {
	backend := &Backend{
		secret:        config.Secret,
		tokenTTL:      config.TokenTTL,
		disableTokens: config.DisableTokens,
		now:           config.Now,
		logger:        config.Logger,
		users:         make(map[int64]*user),
		sessions:      make(map[string]int64),
		connections:   make(map[int64]*connection),
		notifications: make(map[int64]*notification),
		resetCodes:    make(map[string]resetCode),
		failures:      make(map[string]failure),
	}
	if len(backend.secret) == 0 {
		backend.secret = []byte(uuid.NewString())
	}
	if backend.tokenTTL == 0 {
		backend.tokenTTL = defaultTokenTTL
	}
	if backend.now == nil {
		backend.now = time.Now
	}
	if backend.logger == nil {
		backend.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	backend.router = backend.routes()
	return backend
}

// Handler returns the HTTP handler serving /api.
func (b *Backend) Handler() http.Handler { return b.router }

func (b *Backend) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer, b.record, b.injectFailures)
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", b.authRoutes)
		r.Route("/admin", b.adminRoutes)
		r.Group(func(r chi.Router) {
			r.Use(b.requireAuth)
			r.Get("/profile", b.getProfile)
			r.Put("/profile", b.putProfile)
			r.Route("/buddies", b.buddyRoutes)
			r.Route("/notifications", b.notificationRoutes)
			r.Route("/chat", b.chatRoutes)
			r.Get("/challenges/personalized", b.personalizedChallenges)
		})
	})
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Resource not found")
	})
	return router
}

// UserSpec describes a seeded user.
type UserSpec struct {
	Username string
	Email    string
	Password string
	Admin    bool
	Inactive bool

	// NoProfile leaves the user without a study profile, so GET
	// /profile answers 404 and the user is absent from buddy lists.
	NoProfile bool

	Specialization string
	Interests      []string
}

// AddUser seeds a user and returns its id.
func (b *Backend) AddUser(spec UserSpec) int64 {
	hash, err := bcrypt.GenerateFromPassword([]byte(spec.Password), bcrypt.MinCost)
	if err != nil {
		panic("fakebackend: hashing password: " + err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	created := b.createUserLocked(spec.Username, spec.Email, hash)
	created.admin = spec.Admin
	created.active = !spec.Inactive
	if spec.NoProfile {
		created.profile = nil
	} else {
		created.profile.specialization = spec.Specialization
		created.profile.interests = append([]string(nil), spec.Interests...)
	}
	return created.id
}

func (b *Backend) createUserLocked(username, email string, hash []byte) *user {
	created := &user{
		id:           b.allocateLocked(),
		username:     username,
		email:        strings.ToLower(email),
		passwordHash: hash,
		active:       true,
		createdAt:    b.now(),
		profile:      &profile{level: "Beginner"},
	}
	b.users[created.id] = created
	return created
}

func (b *Backend) allocateLocked() int64 {
	b.nextID++
	return b.nextID
}

// IssueToken mints a bearer token for userID valid for ttl. A negative
// ttl yields an already expired token.
func (b *Backend) IssueToken(userID int64, ttl time.Duration) string {
	now := b.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		panic("fakebackend: signing token: " + err.Error())
	}
	return signed
}

// ResetCode returns the outstanding password reset code for email.
func (b *Backend) ResetCode(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resetCodes[strings.ToLower(email)].code
}

// FailNext makes the next request matching method and path (the path
// below /api, e.g. "/buddies/connect") fail with status and message.
func (b *Backend) FailNext(method, path string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" /api"+path] = failure{status: status, message: message}
}

// Requests returns "METHOD /path" for every request served, in order.
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

// CountRequests returns how many requests matched method and the path
// below /api.
func (b *Backend) CountRequests(method, path string) int {
	target := method + " /api" + path
	count := 0
	for _, request := range b.Requests() {
		if request == target {
			count++
		}
	}
	return count
}

// DeactivateUser marks a user inactive, ending its sessions.
func (b *Backend) DeactivateUser(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if target, ok := b.users[userID]; ok {
		target.active = false
	}
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		b.mu.Lock()
		injected, ok := b.failures[key]
		delete(b.failures, key)
		b.mu.Unlock()
		if ok {
			writeError(w, injected.status, injected.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type contextKey int

const userIDKey contextKey = iota

// requireAuth accepts a valid bearer token or session cookie belonging
// to an active user.
func (b *Backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := b.authenticate(r)
		if err != nil {
			b.logger.Debug("rejecting request", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func (b *Backend) authenticate(r *http.Request) (int64, error) {
	userID, err := b.principal(r)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	account, ok := b.users[userID]
	if !ok || !account.active {
		return 0, errors.New("unknown or inactive user")
	}
	return userID, nil
}

func (b *Backend) principal(r *http.Request) (int64, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return 0, errors.New("malformed authorization header")
		}
		return b.parseToken(strings.TrimSpace(token))
	}
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return 0, errors.New("no credentials")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.sessions[cookie.Value]
	if !ok {
		return 0, errors.New("unknown session")
	}
	return userID, nil
}

func (b *Backend) parseToken(token string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.now), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("parsing token: %w", err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID < 1 {
		return 0, errors.New("invalid subject")
	}
	return userID, nil
}

func userIDFrom(r *http.Request) int64 {
	userID, _ := r.Context().Value(userIDKey).(int64)
	return userID
}

// startSession sets a fresh session cookie for userID.
func (b *Backend) startSessionLocked(w http.ResponseWriter, userID int64) {
	id := uuid.NewString()
	b.sessions[id] = userID
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: id, Path: "/", HttpOnly: true})
}

func (b *Backend) endSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		b.mu.Lock()
		delete(b.sessions, cookie.Value)
		b.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

func decodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}
