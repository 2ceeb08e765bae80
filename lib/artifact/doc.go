// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact implements content-addressable artifact storage for
// datapress pipeline outputs. It provides hashing, compression, object
// persistence, metadata, and named tags, plus the socket protocol and
// client that the artifact service and CLI build on.
//
// The package is organized in layers, each usable independently:
//
//   - Hashing: BLAKE3 with domain-separated keyed mode. The object
//     domain addresses content; the tag-name domain maps tag names to
//     filesystem paths. Separate domains prevent cross-domain
//     collisions.
//
//   - Compression: Transparent whole-object compression with three
//     codecs (none, LZ4, zstd). Object hashes are computed on
//     uncompressed bytes so identity is stable across compression
//     changes. Content-type heuristics select the codec automatically,
//     with caller override.
//
//   - Store: Local filesystem operations. Objects are stored as
//     self-describing files (fixed header + compressed payload) under
//     a two-level hex shard. Writes go through a temp directory and an
//     atomic rename; readers never see partial files. Reads verify the
//     object hash before returning content.
//
//   - Metadata: Per-artifact CBOR sidecar files recording the publish
//     name, content type, sizes, and provenance (the run that produced
//     the artifact).
//
//   - Tags: Mutable name-to-hash mappings. Publishing a dataset under
//     a workflow's artifact name moves the tag, so the name always
//     resolves to the most recent successful run's output while every
//     prior object remains addressable by hash.
//
//   - Local: The composition of store, metadata, tags, and ref index
//     behind one API. The runner publishes through a Local when it has
//     direct filesystem access to the store; the service wraps a Local
//     behind its Unix socket.
//
// All artifact references are object-domain BLAKE3 hashes. The short
// form (art- prefix + 12 hex chars) is used in user-facing contexts;
// the full 32-byte hash is stored in metadata.
//
// On-disk metadata uses CBOR (RFC 8949) with Core Deterministic
// Encoding via lib/codec for compactness and reproducibility.
package artifact
