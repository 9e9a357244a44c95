// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds passwords read by the CLI outside the Go heap
// until the moment they are serialized into a login or signup request.
//
// A Buffer is an anonymous mmap region locked into RAM (never swapped)
// and excluded from core dumps. Close zeroes and unmaps it.
package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer is locked, non-dumpable memory holding one secret. Must not be
// copied. Reads after Close panic.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// NewFromBytes copies source into a new Buffer and zeroes source.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("secret: empty secret")
	}

	data, err := unix.Mmap(-1, 0, len(source), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: madvise: %w", err)
	}

	copy(data, source)
	Zero(source)
	return &Buffer{data: data}, nil
}

// NewFromString is NewFromBytes for callers that already hold the
// secret as a string (tests, flags). The string itself cannot be
// zeroed.
func NewFromString(source string) (*Buffer, error) {
	return NewFromBytes([]byte(source))
}

// String returns a heap copy of the secret. Call only at the JSON
// serialization boundary.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return string(b.data)
}

// Len returns the secret's length in bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Equal reports whether two buffers hold the same bytes.
func (b *Buffer) Equal(other *Buffer) bool {
	if b == other {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()
	if b.closed || other.closed {
		panic("secret: compare with closed buffer")
	}
	return bytes.Equal(b.data, other.data)
}

// Close zeroes and releases the memory. Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	Zero(b.data)

	var firstError error
	if err := unix.Munlock(b.data); err != nil {
		firstError = fmt.Errorf("secret: munlock: %w", err)
	}
	if err := unix.Munmap(b.data); err != nil && firstError == nil {
		firstError = fmt.Errorf("secret: munmap: %w", err)
	}
	b.data = nil
	return firstError
}

// Zero overwrites data with zeros.
func Zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}

// ReadFromPath reads a secret from a file, or the first line of stdin
// when path is "-". Surrounding whitespace (including the trailing
// newline files usually end with) is trimmed.
func ReadFromPath(path string) (*Buffer, error) {
	if path == "-" {
		return readFirstLine(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	defer Zero(data)
	return fromTrimmed(data, path)
}

func readFirstLine(reader io.Reader) (*Buffer, error) {
	scanner := bufio.NewScanner(reader)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("secret: reading stdin: %w", err)
		}
		return nil, fmt.Errorf("secret: stdin is empty")
	}
	data := scanner.Bytes()
	defer Zero(data)
	return fromTrimmed(data, "stdin")
}

func fromTrimmed(data []byte, source string) (*Buffer, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret: %s is empty", source)
	}
	return NewFromBytes(trimmed)
}
