// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for datapress
// components.
//
// Configuration is loaded from a single file specified by either the
// DATAPRESS_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// [Load] first reads a .env file from the working directory when one
// exists, so credentials such as DATAPRESS_MIRROR_ACCESS_KEY can live
// next to the checkout instead of in the shell profile. The .env file
// never overrides variables already set in the environment.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${DATAPRESS_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Artifact, Mirror, Python, Runner
//   - [Default] -- returns a Config with working defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other datapress packages.
package config
