// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides datapress's standard CBOR encoding
// configuration.
//
// datapress uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: trigger event files, the JSONL
//     result log, and CLI --json output.
//   - CBOR for internal data: the artifact service socket protocol and
//     the artifact metadata sidecar files.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every datapress package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations (metadata files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the artifact socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR.
//     Examples: metadata sidecar files, socket protocol envelopes.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Examples: artifact listings
//     served over the socket and re-emitted by the CLI as JSON.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract.
package codec
