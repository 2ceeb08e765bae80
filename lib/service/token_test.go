// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  s3cret-token\n"), 0600); err != nil {
		t.Fatal(err)
	}

	token, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got, want := string(token), "s3cret-token"; got != want {
		t.Errorf("token = %q, want %q", got, want)
	}
}

func TestLoadTokenMissing(t *testing.T) {
	_, err := LoadToken(filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Fatal("expected error for missing token file")
	}
}

func TestLoadTokenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("\n\t \n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadToken(path)
	if err == nil {
		t.Fatal("expected error for whitespace-only token file")
	}
	if !strings.Contains(err.Error(), "empty") {
		t.Errorf("error = %q, want mention of empty file", err)
	}
}

func TestLoadOrCreateTokenGenerates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")

	token, generated, err := LoadOrCreateToken(path)
	if err != nil {
		t.Fatalf("LoadOrCreateToken: %v", err)
	}
	if !generated {
		t.Error("generated = false, want true for missing file")
	}
	if len(token) != tokenBytes*2 {
		t.Errorf("token length = %d, want %d hex characters", len(token), tokenBytes*2)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if got := info.Mode().Perm(); got != 0600 {
		t.Errorf("token file mode = %o, want 0600", got)
	}

	// A second call must load the same token, not mint a new one.
	again, generated, err := LoadOrCreateToken(path)
	if err != nil {
		t.Fatalf("LoadOrCreateToken (second call): %v", err)
	}
	if generated {
		t.Error("generated = true on second call, want false")
	}
	if !bytes.Equal(token, again) {
		t.Errorf("second load returned %q, want %q", again, token)
	}
}

func TestLoadOrCreateTokenRefusesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, _, err := LoadOrCreateToken(path)
	if err == nil {
		t.Fatal("expected error for existing empty token file")
	}

	// The unusable file must survive untouched.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "\n" {
		t.Errorf("token file was rewritten to %q", data)
	}
}

func TestVerifyToken(t *testing.T) {
	secret := []byte("correct-horse-battery-staple")

	if !VerifyToken(secret, []byte("correct-horse-battery-staple")) {
		t.Error("VerifyToken rejected a matching token")
	}
	if VerifyToken(secret, []byte("correct-horse-battery-stapl3")) {
		t.Error("VerifyToken accepted a mismatched token")
	}
	if VerifyToken(secret, nil) {
		t.Error("VerifyToken accepted a missing token")
	}
	if VerifyToken(secret, []byte("correct")) {
		t.Error("VerifyToken accepted a token prefix")
	}
}
