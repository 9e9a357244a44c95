// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the binary encoding used for values the client
// persists or hashes: the cached identity in the credential store and
// the canonical form of polled collections fed to change detection.
//
// Encoding is CBOR with Core Deterministic Encoding (RFC 8949 §4.2), so
// equal values always produce identical bytes. Types tagged only with
// json struct tags encode under their JSON field names, which lets the
// wire types in lib/schema be stored without a second set of tags.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Timestamps are stored with full precision so a cached identity
	// or a digest input never loses sub-second ordering.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// any-typed targets (notification data payloads) decode to
		// map[string]any, matching what encoding/json produces.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored so
// values written by a newer client still load.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
