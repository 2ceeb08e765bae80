// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/datapress/lib/artifact"
	"github.com/bureau-foundation/datapress/lib/clock"
)

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 << 20, "5.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, test := range tests {
		if got := formatSize(test.bytes); got != test.want {
			t.Errorf("formatSize(%d) = %q, want %q", test.bytes, got, test.want)
		}
	}
}

func TestGuessContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		want     string
	}{
		{"air_quality_raw.csv", "text/csv"},
		{"DATA.CSV", "text/csv"},
		{"notebook.ipynb", "application/x-ipynb+json"},
		{"events.jsonl", "application/x-ndjson"},
		{"archive.tar", "application/x-tar"},
		{"noextension", ""},
		{"weights.xyz", ""},
	}
	for _, test := range tests {
		if got := guessContentType(test.filename); got != test.want {
			t.Errorf("guessContentType(%q) = %q, want %q", test.filename, got, test.want)
		}
	}
}

func TestTerminalSafe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/csv", true},
		{"text/plain", true},
		{"application/json", true},
		{"application/x-ndjson", true},
		{"application/octet-stream", false},
		{"image/png", false},
		{"", false},
	}
	for _, test := range tests {
		if got := terminalSafe(test.contentType); got != test.want {
			t.Errorf("terminalSafe(%q) = %v, want %v", test.contentType, got, test.want)
		}
	}
}

func TestConnectionOpen(t *testing.T) {
	t.Run("dir mode", func(t *testing.T) {
		conn := connection{dir: t.TempDir()}
		store, err := conn.open()
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, ok := store.(*artifact.Local); !ok {
			t.Fatalf("open returned %T, want *artifact.Local", store)
		}
	})

	t.Run("socket mode without token", func(t *testing.T) {
		conn := connection{socket: "/tmp/artifact.sock"}
		store, err := conn.open()
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, ok := store.(*artifact.Client); !ok {
			t.Fatalf("open returned %T, want *artifact.Client", store)
		}
	})

	t.Run("socket mode with token file", func(t *testing.T) {
		tokenPath := filepath.Join(t.TempDir(), "artifact.token")
		if err := os.WriteFile(tokenPath, []byte("secret-token\n"), 0o600); err != nil {
			t.Fatalf("writing token file: %v", err)
		}
		conn := connection{socket: "/tmp/artifact.sock", tokenFile: tokenPath}
		store, err := conn.open()
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, ok := store.(*artifact.Client); !ok {
			t.Fatalf("open returned %T, want *artifact.Client", store)
		}
	})

	t.Run("socket wins over dir", func(t *testing.T) {
		conn := connection{dir: t.TempDir(), socket: "/tmp/artifact.sock"}
		store, err := conn.open()
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, ok := store.(*artifact.Client); !ok {
			t.Fatalf("open returned %T, want *artifact.Client", store)
		}
	})

	t.Run("default dir under the user cache", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		var conn connection
		store, err := conn.open()
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, ok := store.(*artifact.Local); !ok {
			t.Fatalf("open returned %T, want *artifact.Local", store)
		}
	})
}

func TestConnectionFlagDefaults(t *testing.T) {
	t.Setenv("DATAPRESS_ARTIFACT_SOCKET", "/run/datapress/artifact.sock")
	t.Setenv("DATAPRESS_ARTIFACT_TOKEN", "/run/datapress/artifact.token")

	var conn connection
	flags := newFlagSet("test")
	conn.addFlags(flags)
	if err := flags.Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if conn.socket != "/run/datapress/artifact.sock" {
		t.Errorf("socket default = %q, want the environment value", conn.socket)
	}
	if conn.tokenFile != "/run/datapress/artifact.token" {
		t.Errorf("token default = %q, want the environment value", conn.tokenFile)
	}
	if conn.dir != "" {
		t.Errorf("dir default = %q, want empty", conn.dir)
	}

	// An explicit flag beats the environment default.
	var overridden connection
	flags = newFlagSet("test")
	overridden.addFlags(flags)
	if err := flags.Parse([]string{"--socket", "/tmp/other.sock"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if overridden.socket != "/tmp/other.sock" {
		t.Errorf("socket = %q, want the flag value", overridden.socket)
	}
}

func TestSubcommandArgValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		run  func([]string) error
		args []string
	}{
		{"fetch without ref", runFetch, nil},
		{"info without ref", runInfo, nil},
		{"exists without ref", runExists, nil},
		{"resolve without ref", runResolve, nil},
		{"tag with one argument", runTag, []string{"name-only"}},
		{"delete-tag without name", runDeleteTag, nil},
		{"store with two files", runStore, []string{"a.csv", "b.csv"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if err := test.run(test.args); err == nil {
				t.Fatal("expected a usage error, got nil")
			}
		})
	}
}

func TestRunDispatch(t *testing.T) {
	t.Parallel()

	if err := run([]string{"frobnicate"}); err == nil {
		t.Fatal("unknown subcommand should error")
	}
	if err := run([]string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
}

// TestCommandsAgainstLocalStore exercises the read-side subcommands
// against a seeded directory store. Subtests run in order: the last
// one deletes the publish name tag.
func TestCommandsAgainstLocalStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	local, err := artifact.OpenLocal(dir, clock.Real())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	content := []byte("Date;PM10\n2024-01-01;42\n")
	stored, err := local.Store(context.Background(), &artifact.StoreRequest{
		Name:        "preprocessed-air-quality-dataset",
		ContentType: "text/csv",
	}, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	t.Run("fetch to file by ref", func(t *testing.T) {
		outPath := filepath.Join(t.TempDir(), "out.csv")
		if err := runFetch([]string{"--dir", dir, "-o", outPath, stored.Ref}); err != nil {
			t.Fatalf("fetch: %v", err)
		}
		got, err := os.ReadFile(outPath)
		if err != nil {
			t.Fatalf("reading fetched file: %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("fetched content = %q, want %q", got, content)
		}
	})

	t.Run("fetch to file by name", func(t *testing.T) {
		outPath := filepath.Join(t.TempDir(), "named.csv")
		if err := runFetch([]string{"--dir", dir, "-o", outPath, "preprocessed-air-quality-dataset"}); err != nil {
			t.Fatalf("fetch: %v", err)
		}
		got, err := os.ReadFile(outPath)
		if err != nil {
			t.Fatalf("reading fetched file: %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Errorf("fetched content = %q, want %q", got, content)
		}
	})

	t.Run("exists by ref", func(t *testing.T) {
		if err := runExists([]string{"--dir", dir, stored.Ref}); err != nil {
			t.Fatalf("exists: %v", err)
		}
	})

	t.Run("exists missing sets exit code", func(t *testing.T) {
		err := runExists([]string{"--dir", dir, "no-such-ref"})
		var exit *exitError
		if !errors.As(err, &exit) {
			t.Fatalf("exists error = %v, want *exitError", err)
		}
		if exit.code != 1 {
			t.Errorf("exit code = %d, want 1", exit.code)
		}
	})

	t.Run("delete tag", func(t *testing.T) {
		if err := runDeleteTag([]string{"--dir", dir, "preprocessed-air-quality-dataset"}); err != nil {
			t.Fatalf("delete-tag: %v", err)
		}
		if err := runExists([]string{"--dir", dir, "preprocessed-air-quality-dataset"}); err == nil {
			t.Fatal("deleted tag still resolves")
		}
	})
}
