// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("Hunter2pass")
	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "Hunter2pass" {
		t.Errorf("String() = %q", got)
	}
	if buffer.Len() != len("Hunter2pass") {
		t.Errorf("Len() = %d", buffer.Len())
	}
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source byte %d not zeroed", index)
		}
	}
}

func TestNewFromBytesRejectsEmpty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestCloseIsIdempotentAndBlocksReads(t *testing.T) {
	buffer, err := NewFromString("x")
	if err != nil {
		t.Fatalf("NewFromString: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic reading closed buffer")
		}
	}()
	_ = buffer.String()
}

func TestEqual(t *testing.T) {
	first, _ := NewFromString("same")
	second, _ := NewFromString("same")
	third, _ := NewFromString("other")
	defer first.Close()
	defer second.Close()
	defer third.Close()

	if !first.Equal(second) {
		t.Error("equal secrets compare unequal")
	}
	if first.Equal(third) {
		t.Error("different secrets compare equal")
	}
}

func TestReadFromPath(t *testing.T) {
	directory := t.TempDir()

	path := filepath.Join(directory, "password")
	if err := os.WriteFile(path, []byte("  Secret1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	buffer, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath: %v", err)
	}
	defer buffer.Close()
	if buffer.String() != "Secret1" {
		t.Errorf("ReadFromPath = %q, want trimmed", buffer.String())
	}

	empty := filepath.Join(directory, "empty")
	if err := os.WriteFile(empty, []byte("\n\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFromPath(empty); err == nil {
		t.Error("expected error for whitespace-only file")
	}

	if _, err := ReadFromPath(filepath.Join(directory, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
