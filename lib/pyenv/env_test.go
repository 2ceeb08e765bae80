// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pyenv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeEnv lays out a directory shaped like a virtual environment
// (bin/python present) without invoking any interpreter.
func fakeEnv(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "venv")
	if err := os.MkdirAll(filepath.Join(dir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bin", "python"), nil, 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestCreateEnvReusesExisting(t *testing.T) {
	t.Parallel()

	dir := fakeEnv(t)

	// The interpreter path is bogus on purpose: reuse must not
	// invoke it.
	env, err := CreateEnv(context.Background(), "/nonexistent/python", dir)
	if err != nil {
		t.Fatalf("CreateEnv: %v", err)
	}
	if env.Dir != dir {
		t.Errorf("Dir = %q, want %q", env.Dir, dir)
	}
	want := filepath.Join(dir, "bin", "python")
	if env.Interpreter != want {
		t.Errorf("Interpreter = %q, want %q", env.Interpreter, want)
	}
}

func TestCreateEnvRejectsBrokenInterpreter(t *testing.T) {
	t.Parallel()

	// No existing environment and an interpreter that cannot run:
	// creation must fail rather than hand back a dead Env.
	dir := filepath.Join(t.TempDir(), "venv")
	_, err := CreateEnv(context.Background(), "/nonexistent/python", dir)
	if err == nil {
		t.Fatal("expected error for unrunnable interpreter")
	}
	if !strings.Contains(err.Error(), "creating virtual environment") {
		t.Errorf("error = %v, want creation context", err)
	}
}

func TestCreateEnvClearsStaleDirectory(t *testing.T) {
	t.Parallel()

	// A directory without bin/python is a half-built remnant. The
	// failed recreation must not leave the remnant file behind.
	dir := filepath.Join(t.TempDir(), "venv")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	remnant := filepath.Join(dir, "pyvenv.cfg")
	if err := os.WriteFile(remnant, []byte("home = /usr\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := CreateEnv(context.Background(), "/nonexistent/python", dir)
	if err == nil {
		t.Fatal("expected error for unrunnable interpreter")
	}
	if _, err := os.Stat(remnant); !os.IsNotExist(err) {
		t.Errorf("stale remnant %s survived recreation attempt", remnant)
	}
}

func TestEnviron(t *testing.T) {
	t.Parallel()

	env := &Env{Dir: "/srv/datapress/envs/air-quality"}
	bin := filepath.Join(env.Dir, "bin")

	t.Run("prepends bin to PATH", func(t *testing.T) {
		t.Parallel()
		result := env.Environ([]string{"PATH=/usr/bin:/bin", "HOME=/home/runner"})

		var path string
		for _, entry := range result {
			if strings.HasPrefix(entry, "PATH=") {
				path = entry
			}
		}
		want := "PATH=" + bin + string(os.PathListSeparator) + "/usr/bin:/bin"
		if path != want {
			t.Errorf("PATH entry = %q, want %q", path, want)
		}
	})

	t.Run("sets VIRTUAL_ENV", func(t *testing.T) {
		t.Parallel()
		result := env.Environ([]string{"PATH=/usr/bin"})
		if !contains(result, "VIRTUAL_ENV="+env.Dir) {
			t.Errorf("environ %v missing VIRTUAL_ENV", result)
		}
	})

	t.Run("replaces inherited VIRTUAL_ENV", func(t *testing.T) {
		t.Parallel()
		result := env.Environ([]string{"VIRTUAL_ENV=/somewhere/else", "PATH=/usr/bin"})
		if contains(result, "VIRTUAL_ENV=/somewhere/else") {
			t.Errorf("environ %v kept inherited VIRTUAL_ENV", result)
		}
		if !contains(result, "VIRTUAL_ENV="+env.Dir) {
			t.Errorf("environ %v missing replacement VIRTUAL_ENV", result)
		}
	})

	t.Run("drops PYTHONHOME", func(t *testing.T) {
		t.Parallel()
		result := env.Environ([]string{"PYTHONHOME=/usr", "PATH=/usr/bin"})
		for _, entry := range result {
			if strings.HasPrefix(entry, "PYTHONHOME=") {
				t.Errorf("environ %v kept PYTHONHOME", result)
			}
		}
	})

	t.Run("synthesizes PATH when base has none", func(t *testing.T) {
		t.Parallel()
		result := env.Environ([]string{"HOME=/home/runner"})
		if !contains(result, "PATH="+bin) {
			t.Errorf("environ %v missing synthesized PATH", result)
		}
	})

	t.Run("preserves unrelated entries", func(t *testing.T) {
		t.Parallel()
		result := env.Environ([]string{"PATH=/usr/bin", "LANG=C.UTF-8", "TERM=xterm"})
		if !contains(result, "LANG=C.UTF-8") || !contains(result, "TERM=xterm") {
			t.Errorf("environ %v dropped unrelated entries", result)
		}
	})
}

func contains(entries []string, want string) bool {
	for _, entry := range entries {
		if entry == want {
			return true
		}
	}
	return false
}
