// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pyenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Env is a provisioned Python virtual environment.
type Env struct {
	// Dir is the environment root (the directory passed to venv).
	Dir string

	// Interpreter is the environment's own python binary,
	// Dir/bin/python.
	Interpreter string
}

// CreateEnv creates a virtual environment at dir using the given
// interpreter, or reuses an existing one. An environment is
// considered intact when its bin/python exists; anything less is
// recreated from scratch rather than repaired.
func CreateEnv(ctx context.Context, interpreter, dir string) (*Env, error) {
	envPython := filepath.Join(dir, "bin", "python")

	if _, err := os.Stat(envPython); err == nil {
		return &Env{Dir: dir, Interpreter: envPython}, nil
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("creating environment parent: %w", err)
	}
	// venv builds into a half-populated directory without complaint,
	// so clear any remnant before recreating.
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clearing stale environment: %w", err)
	}

	if _, err := run(ctx, interpreter, []string{"-m", "venv", dir}, ""); err != nil {
		return nil, fmt.Errorf("creating virtual environment: %w", err)
	}

	if _, err := os.Stat(envPython); err != nil {
		return nil, fmt.Errorf("virtual environment at %s has no bin/python", dir)
	}
	return &Env{Dir: dir, Interpreter: envPython}, nil
}

// Install provisions the environment's package set: pip upgrades
// itself first, then installs the given requirement specifiers in one
// invocation. The upgrade-then-install order is fixed. Resolver
// behavior depends on the pip version, so the upgrade must land
// before any package is resolved. A nil or empty package list still
// performs the pip upgrade.
func (e *Env) Install(ctx context.Context, packages []string) error {
	if _, err := e.pip(ctx, "install", "--upgrade", "pip"); err != nil {
		return fmt.Errorf("upgrading pip: %w", err)
	}

	if len(packages) == 0 {
		return nil
	}

	args := append([]string{"install"}, packages...)
	if _, err := e.pip(ctx, args...); err != nil {
		return fmt.Errorf("installing packages: %w", err)
	}
	return nil
}

// pip runs a pip subcommand through the environment's interpreter
// (`python -m pip ...`), which is robust against environments created
// without a pip launcher script.
func (e *Env) pip(ctx context.Context, args ...string) (string, error) {
	return run(ctx, e.Interpreter, append([]string{"-m", "pip"}, args...), "")
}

// Environ returns a copy of base with the environment activated: the
// environment's bin directory is prepended to PATH, VIRTUAL_ENV is
// set, and PYTHONHOME is dropped (a leaked PYTHONHOME overrides the
// venv's stdlib resolution).
func (e *Env) Environ(base []string) []string {
	bin := filepath.Join(e.Dir, "bin")

	result := make([]string, 0, len(base)+2)
	sawPath := false
	for _, entry := range base {
		switch {
		case strings.HasPrefix(entry, "PATH="):
			result = append(result, "PATH="+bin+string(os.PathListSeparator)+entry[len("PATH="):])
			sawPath = true
		case strings.HasPrefix(entry, "VIRTUAL_ENV="), strings.HasPrefix(entry, "PYTHONHOME="):
			// Replaced or dropped below.
		default:
			result = append(result, entry)
		}
	}
	if !sawPath {
		result = append(result, "PATH="+bin)
	}
	result = append(result, "VIRTUAL_ENV="+e.Dir)
	return result
}
