// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pyenv provides typed access to the Python toolchain for
// workflow runtime provisioning. It centralizes interpreter
// resolution (versioned name first, then the generic names), pinned
// version verification, virtual environment creation, and pip
// installs, with uniform error formatting across all invocations.
//
// The provisioning sequence for a workflow runtime is:
//
//  1. FindInterpreter (or CheckInterpreter for a configured binary):
//     locate an interpreter whose major.minor version matches the pin
//  2. CreateEnv: create or reuse the virtual environment
//  3. Env.Install: upgrade pip, then install the package set
//  4. Env.Environ: inject the environment into step execution
//
// Every failure is fatal to the run. There is no version fallback and
// no install retry.
package pyenv

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// FindInterpreter locates a Python interpreter matching the pinned
// major.minor version. Candidates are tried in order: the versioned
// name ("python3.10" for pin "3.10"), then "python3", then "python".
// The first candidate on PATH whose reported version matches the pin
// wins. Returns the resolved binary path.
func FindInterpreter(ctx context.Context, version string) (string, error) {
	candidates := []string{"python" + version, "python3", "python"}

	var tried []string
	for _, name := range candidates {
		path, err := exec.LookPath(name)
		if err != nil {
			tried = append(tried, fmt.Sprintf("%s (not on PATH)", name))
			continue
		}
		if err := CheckInterpreter(ctx, path, version); err != nil {
			tried = append(tried, fmt.Sprintf("%s (%v)", name, err))
			continue
		}
		return path, nil
	}

	return "", fmt.Errorf("no python %s interpreter found: tried %s",
		version, strings.Join(tried, ", "))
}

// CheckInterpreter verifies that the binary at path reports exactly
// the pinned major.minor version. Used directly when the interpreter
// is configured rather than discovered.
func CheckInterpreter(ctx context.Context, path, version string) error {
	output, err := run(ctx, path, []string{"--version"}, "")
	if err != nil {
		return err
	}

	reported, err := ParseVersion(output)
	if err != nil {
		return err
	}
	if reported != version {
		return fmt.Errorf("interpreter is %s, workflow pins %s", reported, version)
	}
	return nil
}

// ParseVersion extracts the major.minor version from `python
// --version` output ("Python 3.10.12" → "3.10"). The patch level is
// discarded: workflows pin at major.minor granularity.
func ParseVersion(output string) (string, error) {
	fields := strings.Fields(output)
	if len(fields) < 2 || fields[0] != "Python" {
		return "", fmt.Errorf("unrecognized version output %q", strings.TrimSpace(output))
	}

	parts := strings.Split(fields[1], ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("unrecognized version %q", fields[1])
	}
	for _, part := range parts[:2] {
		if part == "" {
			return "", fmt.Errorf("unrecognized version %q", fields[1])
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return "", fmt.Errorf("unrecognized version %q", fields[1])
			}
		}
	}
	return parts[0] + "." + parts[1], nil
}

// run executes the binary with the given arguments and returns its
// stdout. Stderr is captured separately and included in error
// messages. Python writes `--version` to stdout since 3.4; older
// interpreters write it to stderr, so when stdout is empty the stderr
// text is returned instead. Version probing must be able to read (and
// then reject) a Python 2 binary.
func run(ctx context.Context, binary string, args []string, dir string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, binary, args...)
	command.Dir = dir
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", formatError(binary, args, &stderr, err)
	}
	if stdout.Len() == 0 {
		return stderr.String(), nil
	}
	return stdout.String(), nil
}

// formatError produces an error message for a failed command,
// preferring stderr output (which carries the actual python or pip
// error) over the generic exec error.
func formatError(binary string, args []string, stderr *bytes.Buffer, err error) error {
	commandString := binary + " " + strings.Join(args, " ")
	stderrText := strings.TrimSpace(stderr.String())
	if stderrText != "" {
		return fmt.Errorf("%s: %s", commandString, stderrText)
	}
	return fmt.Errorf("%s: %w", commandString, err)
}
