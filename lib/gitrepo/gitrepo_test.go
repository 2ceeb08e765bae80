// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gitrepo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// runGit runs a git command in dir with a fixed identity, failing the
// test on error.
func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	command := exec.Command("git", args...)
	command.Dir = dir
	command.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test",
		"GIT_AUTHOR_EMAIL=test@test.local",
		"GIT_COMMITTER_NAME=Test",
		"GIT_COMMITTER_EMAIL=test@test.local",
	)
	output, err := command.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
	return string(output)
}

// initRepo creates a repository with one initial commit containing
// air_quality_raw.csv and returns its directory.
func initRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main", ".")

	if err := os.WriteFile(filepath.Join(dir, "air_quality_raw.csv"), []byte("Date;PM10\n01/07/2021;49\n"), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial")

	return dir
}

// head returns the current HEAD commit hash.
func head(t *testing.T, dir string) string {
	t.Helper()
	return strings.TrimSpace(runGit(t, dir, "rev-parse", "HEAD"))
}

func TestRepositoryRun(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	repo := NewRepository(dir)

	output, err := repo.Run(context.Background(), "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		t.Fatalf("Run(rev-parse): %v", err)
	}
	if got := strings.TrimSpace(output); got != "main" {
		t.Errorf("current branch = %q, want main", got)
	}
}

func TestRepositoryRunInvalidSubcommand(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	repo := NewRepository(dir)

	_, err := repo.Run(context.Background(), "not-a-real-command")
	if err == nil {
		t.Fatal("expected error for invalid git subcommand")
	}
	if !strings.Contains(err.Error(), dir) {
		t.Errorf("error = %v, want to contain repository dir %q", err, dir)
	}
}

func TestRepositoryRunNonexistentDirectory(t *testing.T) {
	t.Parallel()

	repo := NewRepository("/tmp/nonexistent-git-repo-abcxyz")

	_, err := repo.Run(context.Background(), "status")
	if err == nil {
		t.Fatal("expected error for nonexistent directory")
	}
}

func TestRepositoryCommand(t *testing.T) {
	t.Parallel()

	repo := NewRepository("/some/dir")

	cmd := repo.Command(context.Background(), "status", "--porcelain")

	// exec.Cmd.Args includes the program name as Args[0].
	expectedArgs := []string{"git", "-C", "/some/dir", "status", "--porcelain"}
	if !reflect.DeepEqual(cmd.Args, expectedArgs) {
		t.Errorf("cmd.Args = %v, want %v", cmd.Args, expectedArgs)
	}
}

func TestRepositoryDir(t *testing.T) {
	t.Parallel()

	repo := NewRepository("/path/to/repo")
	if repo.Dir() != "/path/to/repo" {
		t.Errorf("Dir() = %q, want %q", repo.Dir(), "/path/to/repo")
	}
}

func TestRepositoryRunLocked(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	repo := NewRepository(dir)
	lockPath := filepath.Join(t.TempDir(), "repo.lock")

	output, err := repo.RunLocked(context.Background(), lockPath, "branch", "--list")
	if err != nil {
		t.Fatalf("RunLocked(branch --list): %v", err)
	}
	if !strings.Contains(output, "main") {
		t.Errorf("branch list output = %q, want to contain 'main'", output)
	}

	// The lock file is created on first use and left in place.
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lock file not created: %v", err)
	}
}

func TestChangedFiles(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	before := head(t, dir)

	// Touch the dataset and add a new script in one commit.
	if err := os.WriteFile(filepath.Join(dir, "air_quality_raw.csv"), []byte("Date;PM10\n02/07/2021;53\n"), 0644); err != nil {
		t.Fatalf("rewrite csv: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "preprocessing"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "preprocessing", "transform.py"), []byte("print('hi')\n"), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "update dataset, add script")
	after := head(t, dir)

	repo := NewRepository(dir)
	paths, err := repo.ChangedFiles(context.Background(), before, after)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}

	want := []string{"air_quality_raw.csv", "preprocessing/transform.py"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("ChangedFiles = %v, want %v", paths, want)
	}
}

func TestChangedFilesIdenticalCommits(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	sha := head(t, dir)

	repo := NewRepository(dir)
	paths, err := repo.ChangedFiles(context.Background(), sha, sha)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("ChangedFiles between identical commits = %v, want empty", paths)
	}
}

func TestChangedFilesBranchCreation(t *testing.T) {
	t.Parallel()

	dir := initRepo(t)
	sha := head(t, dir)
	repo := NewRepository(dir)

	// A branch-creation push reports the zero hash as "before"; the
	// commit's own files are the changed set.
	for _, before := range []string{"", zeroHash} {
		paths, err := repo.ChangedFiles(context.Background(), before, sha)
		if err != nil {
			t.Fatalf("ChangedFiles(before=%q): %v", before, err)
		}
		want := []string{"air_quality_raw.csv"}
		if !reflect.DeepEqual(paths, want) {
			t.Errorf("ChangedFiles(before=%q) = %v, want %v", before, paths, want)
		}
	}
}
