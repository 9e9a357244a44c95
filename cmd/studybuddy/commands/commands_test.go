// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/studybuddy/cmd/studybuddy/cli"
	"github.com/bureau-foundation/studybuddy/internal/fakebackend"
	"github.com/bureau-foundation/studybuddy/lib/config"
	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// world is a fake backend shared by the users of one test.
type world struct {
	t       *testing.T
	backend *fakebackend.Backend
	baseURL string
}

func newWorld(t *testing.T) *world {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(cli.EnvStatePath, "")
	backend := fakebackend.New(fakebackend.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)
	return &world{t: t, backend: backend, baseURL: server.URL + "/api"}
}

// terminal is one user's command line: its own state database and
// password file.
type terminal struct {
	world        *world
	state        string
	passwordFile string
}

func (w *world) terminal(password string) *terminal {
	w.t.Helper()
	directory := w.t.TempDir()
	term := &terminal{
		world:        w,
		state:        filepath.Join(directory, "state.db"),
		passwordFile: filepath.Join(directory, "password"),
	}
	term.setPassword(password)
	return term
}

func (term *terminal) setPassword(password string) {
	term.world.t.Helper()
	if err := os.WriteFile(term.passwordFile, []byte(password+"\n"), 0o600); err != nil {
		term.world.t.Fatal(err)
	}
}

// run executes one command line and returns what it wrote to stdout.
func (term *terminal) run(args ...string) (string, error) {
	term.world.t.Helper()
	var stdout, stderr bytes.Buffer
	savedStdout, savedStderr := cli.Stdout, cli.Stderr
	cli.Stdout, cli.Stderr = &stdout, &stderr
	defer func() { cli.Stdout, cli.Stderr = savedStdout, savedStderr }()

	full := append(append([]string(nil), args...),
		"--base-url", term.world.baseURL,
		"--state", term.state,
		"--log-level", "error",
	)
	root := Root()
	root.Output = io.Discard
	err := root.Execute(context.Background(), full, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return stdout.String(), err
}

func (term *terminal) mustRun(args ...string) string {
	term.world.t.Helper()
	output, err := term.run(args...)
	if err != nil {
		term.world.t.Fatalf("studybuddy %s: %v", strings.Join(args, " "), err)
	}
	return output
}

func (term *terminal) login(email string) {
	term.world.t.Helper()
	term.mustRun("login", email, "--password-file", term.passwordFile)
}

func requireCategory(t *testing.T, err error, category cli.ErrorCategory) {
	t.Helper()
	var toolErr *cli.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %v (%T), want a %s ToolError", err, err, category)
	}
	if toolErr.Category != category {
		t.Fatalf("category = %s (%v), want %s", toolErr.Category, err, category)
	}
}

func TestLoginWhoamiLogout(t *testing.T) {
	world := newWorld(t)
	aliceID := world.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw-alice"})
	alice := world.terminal("pw-alice")

	output := alice.mustRun("login", "alice@example.com", "--password-file", alice.passwordFile)
	if want := fmt.Sprintf("Logged in as alice <alice@example.com> (id %d)", aliceID); !strings.Contains(output, want) {
		t.Errorf("login output = %q, want %q", output, want)
	}

	output = alice.mustRun("whoami", "--json")
	var identity schema.Identity
	if err := json.Unmarshal([]byte(output), &identity); err != nil {
		t.Fatalf("whoami --json: %v\n%s", err, output)
	}
	if identity.ID != aliceID || identity.Username != "alice" {
		t.Errorf("whoami = %+v", identity)
	}

	if output := alice.mustRun("logout"); !strings.Contains(output, "Logged out") {
		t.Errorf("logout output = %q", output)
	}
	_, err := alice.run("whoami")
	requireCategory(t, err, cli.CategoryUnauthorized)
}

func TestLoginWrongPassword(t *testing.T) {
	world := newWorld(t)
	world.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw-alice"})
	alice := world.terminal("not-it")

	_, err := alice.run("login", "alice@example.com", "--password-file", alice.passwordFile)
	if err == nil {
		t.Fatal("login with the wrong password succeeded")
	}
	if !strings.Contains(err.Error(), "Invalid credentials") {
		t.Errorf("error = %q, want the server's message", err)
	}
	_, err = alice.run("whoami")
	requireCategory(t, err, cli.CategoryUnauthorized)
}

func TestSignup(t *testing.T) {
	world := newWorld(t)
	carol := world.terminal("Secret123")

	output := carol.mustRun("signup", "carol", "carol@example.com", "--password-file", carol.passwordFile)
	if !strings.Contains(output, "Signed up as carol") {
		t.Errorf("signup output = %q", output)
	}
	if output := carol.mustRun("whoami"); !strings.Contains(output, "carol@example.com") {
		t.Errorf("whoami after signup = %q", output)
	}
}

func TestBuddiesAndChat(t *testing.T) {
	world := newWorld(t)
	aliceID := world.backend.AddUser(fakebackend.UserSpec{
		Username: "alice", Email: "alice@example.com", Password: "pw-alice",
		Specialization: "Mathematics", Interests: []string{"algebra"},
	})
	bobID := world.backend.AddUser(fakebackend.UserSpec{
		Username: "bob", Email: "bob@example.com", Password: "pw-bob",
		Specialization: "Mathematics", Interests: []string{"algebra"},
	})
	alice := world.terminal("pw-alice")
	bob := world.terminal("pw-bob")
	alice.login("alice@example.com")
	bob.login("bob@example.com")

	output := alice.mustRun("buddies", "list")
	if !strings.Contains(output, "bob") {
		t.Errorf("recommended buddies = %q, want bob", output)
	}
	// Same specialization plus one shared interest.
	if !strings.Contains(output, "60%") || strings.Contains(output, "%!") {
		t.Errorf("recommended buddies = %q, want a 60%% match", output)
	}
	output = alice.mustRun("buddies", "connect", fmt.Sprint(bobID))
	if !strings.Contains(output, "Connection request sent") {
		t.Errorf("connect output = %q", output)
	}
	_, err := alice.run("buddies", "connect", fmt.Sprint(bobID))
	requireCategory(t, err, cli.CategoryValidation)

	var requests []schema.ConnectionRequest
	if err := json.Unmarshal([]byte(bob.mustRun("buddies", "requests", "--json")), &requests); err != nil {
		t.Fatalf("requests --json: %v", err)
	}
	if len(requests) != 1 || requests[0].FromUserID != aliceID {
		t.Fatalf("requests = %+v, want one from alice", requests)
	}
	output = bob.mustRun("buddies", "accept", fmt.Sprint(requests[0].ID))
	if !strings.Contains(output, "accepted") {
		t.Errorf("accept output = %q", output)
	}
	if output := alice.mustRun("buddies", "list", "-c", "connected"); !strings.Contains(output, "bob") {
		t.Errorf("connected buddies = %q, want bob", output)
	}

	alice.mustRun("chat", "send", fmt.Sprint(bobID), "library", "at", "six?")
	if output := bob.mustRun("chat", "show", fmt.Sprint(aliceID)); !strings.Contains(output, "them library at six?") {
		t.Errorf("chat show = %q", output)
	}
	if output := bob.mustRun("chat", "list"); !strings.Contains(output, "alice") {
		t.Errorf("chat list = %q", output)
	}

	_, err = alice.run("buddies", "list", "-c", "everyone")
	requireCategory(t, err, cli.CategoryValidation)
}

func TestChatWithStrangerForbidden(t *testing.T) {
	world := newWorld(t)
	world.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw-alice"})
	bobID := world.backend.AddUser(fakebackend.UserSpec{Username: "bob", Email: "bob@example.com", Password: "pw-bob"})
	alice := world.terminal("pw-alice")
	alice.login("alice@example.com")

	_, err := alice.run("chat", "send", fmt.Sprint(bobID), "hi")
	requireCategory(t, err, cli.CategoryForbidden)
	if !strings.Contains(err.Error(), "not connected") {
		t.Errorf("error = %q", err)
	}
}

func TestNotifications(t *testing.T) {
	world := newWorld(t)
	aliceID := world.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw-alice"})
	first := world.backend.Notify(aliceID, schema.NotificationSystem, "Welcome", "Glad you are here")
	world.backend.Notify(aliceID, schema.NotificationChallenge, "New challenge", "Try the algebra set")
	alice := world.terminal("pw-alice")
	alice.login("alice@example.com")

	output := alice.mustRun("notifications", "list")
	for _, want := range []string{"Welcome", "New challenge"} {
		if !strings.Contains(output, want) {
			t.Errorf("list output missing %q:\n%s", want, output)
		}
	}

	alice.mustRun("notifications", "read", fmt.Sprint(first))
	var unread []schema.Notification
	if err := json.Unmarshal([]byte(alice.mustRun("notifications", "list", "--unread", "--json")), &unread); err != nil {
		t.Fatal(err)
	}
	if len(unread) != 1 || unread[0].Title != "New challenge" {
		t.Errorf("unread after read = %+v", unread)
	}

	alice.mustRun("notifications", "read-all")
	if output := alice.mustRun("notifications", "list", "--unread", "--json"); strings.TrimSpace(output) != "[]" {
		t.Errorf("unread after read-all = %q, want []", output)
	}

	_, err := alice.run("notifications", "read", "999")
	requireCategory(t, err, cli.CategoryNotFound)
}

func TestProfile(t *testing.T) {
	world := newWorld(t)
	world.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw-alice", NoProfile: true})
	alice := world.terminal("pw-alice")
	alice.login("alice@example.com")

	_, err := alice.run("profile", "show")
	requireCategory(t, err, cli.CategoryNotFound)

	_, err = alice.run("profile", "update")
	requireCategory(t, err, cli.CategoryValidation)

	alice.mustRun("profile", "update", "--specialization", "Physics", "--interests", "optics,waves")
	output := alice.mustRun("profile", "show")
	for _, want := range []string{"Physics", "optics, waves"} {
		if !strings.Contains(output, want) {
			t.Errorf("profile show missing %q:\n%s", want, output)
		}
	}
}

func TestAdmin(t *testing.T) {
	world := newWorld(t)
	world.backend.AddUser(fakebackend.UserSpec{Username: "root", Email: "root@example.com", Password: "pw-root", Admin: true})
	aliceID := world.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "pw-alice"})

	alice := world.terminal("pw-alice")
	alice.login("alice@example.com")
	_, err := alice.run("admin", "users")
	requireCategory(t, err, cli.CategoryForbidden)

	root := world.terminal("pw-root")
	root.mustRun("admin", "login", "root@example.com", "--password-file", root.passwordFile)
	if output := root.mustRun("admin", "stats"); !strings.Contains(output, "Users:") {
		t.Errorf("stats = %q", output)
	}
	if output := root.mustRun("admin", "users"); !strings.Contains(output, "alice") {
		t.Errorf("users = %q", output)
	}

	root.mustRun("admin", "deactivate", fmt.Sprint(aliceID))
	_, err = alice.run("whoami")
	requireCategory(t, err, cli.CategoryUnauthorized)
}

func TestPasswordRecovery(t *testing.T) {
	world := newWorld(t)
	world.backend.AddUser(fakebackend.UserSpec{Username: "alice", Email: "alice@example.com", Password: "old-password"})
	alice := world.terminal("NewPassword1")

	alice.mustRun("password", "forgot", "alice@example.com")
	code := world.backend.ResetCode("alice@example.com")
	if code == "" {
		t.Fatal("no reset code issued")
	}
	if output := alice.mustRun("password", "verify", "alice@example.com", code); !strings.Contains(output, "valid") {
		t.Errorf("verify output = %q", output)
	}
	alice.mustRun("password", "reset", "alice@example.com", code, "--password-file", alice.passwordFile)
	alice.login("alice@example.com")
}

func TestUnknownCommand(t *testing.T) {
	world := newWorld(t)
	term := world.terminal("unused")

	_, err := term.run("notifcations", "list")
	requireCategory(t, err, cli.CategoryValidation)
	if !strings.Contains(err.Error(), `did you mean "notifications"`) {
		t.Errorf("error = %q", err)
	}

	_, err = term.run("buddies", "connect", "seven")
	requireCategory(t, err, cli.CategoryValidation)
}
