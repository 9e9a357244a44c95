// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadResponse(t *testing.T) {
	data, err := ReadResponse(strings.NewReader(`{"ok":true}`))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("ReadResponse = %q", data)
	}
}

type endlessReader struct{}

func (endlessReader) Read(buffer []byte) (int, error) {
	for index := range buffer {
		buffer[index] = 'a'
	}
	return len(buffer), nil
}

func TestReadResponseRejectsOversizedBody(t *testing.T) {
	_, err := ReadResponse(io.LimitReader(endlessReader{}, MaxResponseSize+10))
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Errorf("error = %v, want ErrResponseTooLarge", err)
	}
}
