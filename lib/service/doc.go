// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides shared infrastructure for datapress services.
//
// A datapress service is a standalone Go binary serving a Unix socket
// API with length-prefixed CBOR framing. This package extracts the
// scaffolding every service needs:
//
//   - Logging: the standard JSON slog handler writing to stderr.
//   - Token auth: a shared-secret token file read by both the service
//     and its clients, compared in constant time on every request.
//
// Services compose these utilities in their own main() function rather
// than subclassing a framework. The package provides building blocks,
// not a runtime.
package service
