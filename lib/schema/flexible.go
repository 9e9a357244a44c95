// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// StringList decodes either a JSON array of strings or a single
// comma-separated string. Profile interests are stored server-side as
// a comma-separated column and some endpoints forward the raw column.
// Entries are trimmed and empty entries dropped.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (list *StringList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*list = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var joined string
		if err := json.Unmarshal(trimmed, &joined); err != nil {
			return fmt.Errorf("schema: string list: %w", err)
		}
		*list = SplitList(joined)
		return nil
	}
	var items []string
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return fmt.Errorf("schema: string list: %w", err)
	}
	result := make(StringList, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	*list = result
	return nil
}

// SplitList splits a comma-separated string into trimmed, non-empty
// entries.
func SplitList(joined string) StringList {
	var result StringList
	for _, item := range strings.Split(joined, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}

// FlexibleID holds an identifier the backend may emit as either a JSON
// number or a JSON string (challenge ids are "prog-1" from the
// generator but numeric from the database-backed routes).
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return err
		}
		*id = FlexibleID(value)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("schema: identifier must be a number or string: %w", err)
	}
	*id = FlexibleID(number.String())
	return nil
}
