// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bureau-foundation/studybuddy/lib/schema"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(context.Background(), Config{Path: path})
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEmptyStoreHasNoEvidence(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "creds.db"))
	if store.Snapshot().HasEvidence() {
		t.Errorf("fresh store has evidence: %+v", store.Snapshot())
	}
	if NewMemory().Snapshot().HasEvidence() {
		t.Error("memory store has evidence")
	}
}

func TestHasEvidence(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		want     bool
	}{
		{"empty", Snapshot{}, false},
		{"token only", Snapshot{Token: "t"}, true},
		{"user only", Snapshot{User: &schema.Identity{ID: 1}}, true},
		{"admin flag only", Snapshot{AdminAuthenticated: true}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.snapshot.HasEvidence(); got != test.want {
				t.Errorf("HasEvidence() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "creds.db")

	first, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = first.Update(ctx, func(snapshot *Snapshot) {
		snapshot.Token = "tok-1"
		snapshot.User = &schema.Identity{ID: 9, Username: "kim", Email: "kim@example.com"}
		snapshot.AdminAuthenticated = true
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := openTestStore(t, path)
	snapshot := second.Snapshot()
	if snapshot.Token != "tok-1" {
		t.Errorf("Token = %q, want tok-1", snapshot.Token)
	}
	if snapshot.User == nil || snapshot.User.Email != "kim@example.com" || snapshot.User.ID != 9 {
		t.Errorf("User = %+v", snapshot.User)
	}
	if !snapshot.AdminAuthenticated {
		t.Error("AdminAuthenticated not persisted")
	}
}

func TestClearRemovesEverythingOnDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "creds.db")

	store, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Replace(ctx, Snapshot{Token: "x", User: &schema.Identity{ID: 1}, AdminAuthenticated: true}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if store.Snapshot().HasEvidence() {
		t.Errorf("in-memory record not cleared: %+v", store.Snapshot())
	}
	store.Close()

	reopened := openTestStore(t, path)
	if reopened.Snapshot().HasEvidence() {
		t.Errorf("persisted record not cleared: %+v", reopened.Snapshot())
	}
}

func TestClearSucceedsInMemoryWhenDiskFails(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "creds.db"))
	if err := store.Replace(ctx, Snapshot{Token: "x", User: &schema.Identity{ID: 1}}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	// The pool may still hand out an idle connection to a cancelled
	// context, so the disk write may or may not fail. Either way the
	// in-memory record must be empty afterwards.
	_ = store.Clear(cancelled)
	if store.Snapshot().HasEvidence() {
		t.Errorf("Clear left credentials in memory: %+v", store.Snapshot())
	}
}

func TestUpdateDoesNotAliasCallerSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	user := &schema.Identity{ID: 1, Username: "a"}
	if err := store.Replace(ctx, Snapshot{User: user}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	user.Username = "mutated"

	if got := store.Snapshot().User.Username; got != "a" {
		t.Errorf("store aliased caller's identity: username = %q", got)
	}

	snapshot := store.Snapshot()
	snapshot.User.Username = "also mutated"
	if got := store.Snapshot().User.Username; got != "a" {
		t.Errorf("Snapshot aliased internal identity: username = %q", got)
	}
}

func TestConcurrentWritersLeaveWholeRecord(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "creds.db")
	store, err := Open(ctx, Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var wait sync.WaitGroup
	for index := 0; index < 20; index++ {
		index := index
		wait.Add(1)
		go func() {
			defer wait.Done()
			if index%3 == 0 {
				store.Clear(ctx)
				return
			}
			store.Replace(ctx, Snapshot{
				Token: "tok",
				User:  &schema.Identity{ID: int64(index)},
			})
		}()
	}
	wait.Wait()

	snapshot := store.Snapshot()
	if (snapshot.Token == "") != (snapshot.User == nil) {
		t.Errorf("half-written record in memory: %+v", snapshot)
	}
	store.Close()

	reopened := openTestStore(t, path)
	persisted := reopened.Snapshot()
	if (persisted.Token == "") != (persisted.User == nil) {
		t.Errorf("half-written record on disk: %+v", persisted)
	}
	if persisted.Token != snapshot.Token {
		t.Errorf("disk token %q differs from memory token %q", persisted.Token, snapshot.Token)
	}
}
