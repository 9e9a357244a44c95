// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp decodes the backend's ISO-8601 timestamps. The backend
// emits naive timestamps (no zone designator) for most records; those
// are interpreted as UTC. RFC 3339 timestamps with a zone are accepted
// as-is. JSON null and "" decode to the zero Timestamp.
type Timestamp struct {
	time.Time
}

// naiveLayouts are tried in order after RFC 3339 fails.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a backend timestamp string.
func ParseTimestamp(value string) (Timestamp, error) {
	if value == "" {
		return Timestamp{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return Timestamp{parsed}, nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return Timestamp{parsed}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("schema: unrecognized timestamp %q", value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("schema: timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON writes RFC 3339 with nanoseconds, or null for the zero
// value.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
