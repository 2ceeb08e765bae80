// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// tokenBytes is the entropy of a generated service token. The token
// file holds the lowercase hex encoding, 64 characters plus a
// trailing newline.
const tokenBytes = 32

// LoadToken reads a service token from path. Surrounding whitespace
// (including the trailing newline most editors add) is stripped.
// Returns an error if the file is missing or holds only whitespace:
// an empty token would match any request that omits the token field.
func LoadToken(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return nil, fmt.Errorf("token file %s is empty", path)
	}
	return []byte(token), nil
}

// LoadOrCreateToken loads the token at path, generating and saving a
// fresh random one if the file does not exist. The new file has 0600
// permissions. Returns the token and whether it was newly generated.
func LoadOrCreateToken(path string) ([]byte, bool, error) {
	token, err := LoadToken(path)
	if err == nil {
		return token, false, nil
	}

	// Distinguish a missing file (expected on first start) from an
	// existing file that could not be used (empty, unreadable).
	// Never overwrite an existing file: another process may hold
	// the real token.
	if _, statErr := os.Stat(path); statErr == nil {
		return nil, false, err
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, false, fmt.Errorf("generating token: %w", err)
	}
	token = []byte(hex.EncodeToString(raw))
	if err := os.WriteFile(path, append(token, '\n'), 0600); err != nil {
		return nil, false, fmt.Errorf("writing token file: %w", err)
	}
	return token, true, nil
}

// VerifyToken reports whether provided matches expected. The
// comparison is constant-time.
func VerifyToken(expected, provided []byte) bool {
	return subtle.ConstantTimeCompare(expected, provided) == 1
}
