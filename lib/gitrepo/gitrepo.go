// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitrepo provides typed access to the git CLI for repository
// operations. datapress uses git to derive the changed paths of a push
// event when the event payload carries no per-commit file lists. All
// commands target a specific repository directory via the -C flag,
// which is automatically injected by all Repository methods.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// zeroHash is the all-zero object name git uses for the "before" side
// of a branch-creation push.
const zeroHash = "0000000000000000000000000000000000000000"

// Repository represents a git repository at a specific directory. All
// operations target this directory via "git -C <dir>". There is no
// default directory; callers must always specify which repository
// they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RunLocked executes a git command while holding an exclusive flock on
// lockPath, preventing concurrent git operations on the same
// repository (e.g., a fetch racing a diff during trigger evaluation).
// The lock file is created if missing and released when the command
// finishes.
//
// Returns combined stdout and stderr output because git writes
// progress information to stderr (e.g., "Fetching origin...",
// "* branch main -> FETCH_HEAD").
func (r *Repository) RunLocked(ctx context.Context, lockPath string, args ...string) (string, error) {
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return "", fmt.Errorf("opening lock file %s: %w", lockPath, err)
	}
	defer lockFile.Close()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return "", fmt.Errorf("locking %s: %w", lockPath, err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	fullArgs := append([]string{"-C", r.dir}, args...)
	var output bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &output
	command.Stderr = &output

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (output: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(output.String()))
	}
	return strings.TrimSpace(output.String()), nil
}

// Command returns an *exec.Cmd for a git command without running it.
// The caller gets full control over Stdin, Stdout, Stderr, and
// SysProcAttr before starting the process. The -C flag targeting
// this repository is automatically prepended.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", r.dir}, args...)
	return exec.CommandContext(ctx, "git", fullArgs...)
}

// ChangedFiles returns the paths touched between two commits, as
// reported by git diff --name-only, relative to the repository root.
// When before is empty or the zero hash (a branch-creation push),
// the files of the after commit itself are listed instead.
func (r *Repository) ChangedFiles(ctx context.Context, before, after string) ([]string, error) {
	if before == "" || before == zeroHash {
		return r.commitFiles(ctx, after)
	}

	output, err := r.Run(ctx, "diff", "--name-only", before, after)
	if err != nil {
		return nil, err
	}
	return splitPaths(output), nil
}

// commitFiles lists the paths touched by a single commit.
func (r *Repository) commitFiles(ctx context.Context, commit string) ([]string, error) {
	output, err := r.Run(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", commit)
	if err != nil {
		return nil, err
	}
	return splitPaths(output), nil
}

// splitPaths splits newline-separated git output into a path slice,
// dropping blank lines.
func splitPaths(output string) []string {
	var paths []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}
