// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bureau-foundation/datapress/lib/artifact"
	"github.com/bureau-foundation/datapress/lib/config"
	"github.com/bureau-foundation/datapress/lib/trigger"
	"github.com/bureau-foundation/datapress/lib/workflow"
)

func TestEventVariables(t *testing.T) {
	t.Parallel()

	t.Run("push event", func(t *testing.T) {
		t.Parallel()

		event := &trigger.Event{
			Type:   trigger.EventPush,
			Repo:   "karinda/air-quality",
			Ref:    "refs/heads/main",
			Before: "aaa111",
			After:  "bbb222",
			Sender: "karinda",
		}
		got := eventVariables(event)
		want := map[string]string{
			"EVENT_TYPE":   "push",
			"EVENT_REPO":   "karinda/air-quality",
			"EVENT_REF":    "refs/heads/main",
			"EVENT_BRANCH": "main",
			"EVENT_BEFORE": "aaa111",
			"EVENT_AFTER":  "bbb222",
			"EVENT_SENDER": "karinda",
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("variables = %v, want %v", got, want)
		}
	})

	t.Run("dispatch event omits empty fields", func(t *testing.T) {
		t.Parallel()

		dispatched := trigger.Dispatch(map[string]string{"SCRIPT": "alt.py"})
		got := eventVariables(&dispatched)
		want := map[string]string{"EVENT_TYPE": "dispatch"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("variables = %v, want %v", got, want)
		}
	})
}

func TestInputValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		arguments []string
		want      map[string]string
		wantError bool
	}{
		{
			name:      "single pair",
			arguments: []string{"SCRIPT=alt.py"},
			want:      map[string]string{"SCRIPT": "alt.py"},
		},
		{
			name:      "value containing equals",
			arguments: []string{"ARGS=--level=2"},
			want:      map[string]string{"ARGS": "--level=2"},
		},
		{
			name:      "later value wins",
			arguments: []string{"K=a", "K=b"},
			want:      map[string]string{"K": "b"},
		},
		{
			name:      "empty value allowed",
			arguments: []string{"K="},
			want:      map[string]string{"K": ""},
		},
		{
			name:      "missing equals",
			arguments: []string{"novalue"},
			wantError: true,
		},
		{
			name:      "empty key",
			arguments: []string{"=v"},
			wantError: true,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			values := inputValues{}
			var setErr error
			for _, argument := range testCase.arguments {
				if err := values.Set(argument); err != nil {
					setErr = err
					break
				}
			}
			if testCase.wantError {
				if setErr == nil {
					t.Fatal("expected Set error")
				}
				return
			}
			if setErr != nil {
				t.Fatalf("Set: %v", setErr)
			}
			if !reflect.DeepEqual(map[string]string(values), testCase.want) {
				t.Errorf("values = %v, want %v", values, testCase.want)
			}
		})
	}
}

func TestHasPublishStep(t *testing.T) {
	t.Parallel()

	runOnly := []workflow.Step{{Name: "a", Run: "true"}}
	if hasPublishStep(runOnly) {
		t.Error("run-only steps should not report a publish step")
	}

	withPublish := append(runOnly, workflow.Step{
		Name:    "b",
		Publish: &workflow.PublishSpec{Path: "out.csv", Artifact: "dataset"},
	})
	if !hasPublishStep(withPublish) {
		t.Error("publish step not detected")
	}
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	t.Run("local store when no socket is configured", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		cfg.Artifact.Dir = t.TempDir()
		cfg.Artifact.Socket = ""

		store, err := openStore(cfg)
		if err != nil {
			t.Fatalf("openStore: %v", err)
		}
		if _, ok := store.(*artifact.Local); !ok {
			t.Errorf("store = %T, want *artifact.Local", store)
		}
	})

	t.Run("client when a socket is configured", func(t *testing.T) {
		t.Parallel()

		cfg := config.Default()
		cfg.Artifact.Socket = "/run/datapress/artifact.sock"
		cfg.Artifact.TokenFile = ""

		store, err := openStore(cfg)
		if err != nil {
			t.Fatalf("openStore: %v", err)
		}
		if _, ok := store.(*artifact.Client); !ok {
			t.Errorf("store = %T, want *artifact.Client", store)
		}
	})

	t.Run("client reads the token file", func(t *testing.T) {
		t.Parallel()

		tokenPath := filepath.Join(t.TempDir(), "token")
		if err := os.WriteFile(tokenPath, []byte("secret-token\n"), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		cfg := config.Default()
		cfg.Artifact.Socket = "/run/datapress/artifact.sock"
		cfg.Artifact.TokenFile = tokenPath

		store, err := openStore(cfg)
		if err != nil {
			t.Fatalf("openStore: %v", err)
		}
		if _, ok := store.(*artifact.Client); !ok {
			t.Errorf("store = %T, want *artifact.Client", store)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("explicit path wins", func(t *testing.T) {
		directory := t.TempDir()
		path := filepath.Join(directory, "datapress.yaml")
		content := "paths:\n  root: " + filepath.Join(directory, "root") + "\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		cfg, err := loadConfig(path)
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.Paths.Root != filepath.Join(directory, "root") {
			t.Errorf("root = %q, want the file's value", cfg.Paths.Root)
		}
	})

	t.Run("environment variable", func(t *testing.T) {
		directory := t.TempDir()
		path := filepath.Join(directory, "datapress.yaml")
		content := "paths:\n  root: " + filepath.Join(directory, "root") + "\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		t.Setenv("DATAPRESS_CONFIG", path)

		cfg, err := loadConfig("")
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.Paths.Root != filepath.Join(directory, "root") {
			t.Errorf("root = %q, want the file's value", cfg.Paths.Root)
		}
	})

	t.Run("defaults without any config", func(t *testing.T) {
		t.Setenv("DATAPRESS_CONFIG", "")

		cfg, err := loadConfig("")
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.Paths.Root == "" {
			t.Error("default root should not be empty")
		}
		if cfg.Python.Version != "3.10" {
			t.Errorf("default python version = %q, want 3.10", cfg.Python.Version)
		}
	})
}

// testGit runs a git command in dir with a fixed identity.
func testGit(t *testing.T, dir string, args ...string) string {
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

func TestResolveChangedPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testGit(t, dir, "init", "-b", "main", ".")
	if err := os.WriteFile(filepath.Join(dir, "air_quality_raw.csv"), []byte("Date;PM10\n01/07/2021;49\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	testGit(t, dir, "add", ".")
	testGit(t, dir, "commit", "-m", "initial")
	before := strings.TrimSpace(testGit(t, dir, "rev-parse", "HEAD"))

	if err := os.WriteFile(filepath.Join(dir, "air_quality_raw.csv"), []byte("Date;PM10\n02/07/2021;53\n"), 0o644); err != nil {
		t.Fatalf("rewrite csv: %v", err)
	}
	testGit(t, dir, "add", ".")
	testGit(t, dir, "commit", "-m", "refresh export")
	after := strings.TrimSpace(testGit(t, dir, "rev-parse", "HEAD"))

	t.Run("derives paths from git", func(t *testing.T) {
		event := &trigger.Event{Type: trigger.EventPush, Before: before, After: after}
		resolveChangedPaths(context.Background(), event, dir, slog.Default())

		want := []string{"air_quality_raw.csv"}
		if got := event.ChangedPaths(); !reflect.DeepEqual(got, want) {
			t.Errorf("ChangedPaths() = %v, want %v", got, want)
		}
	})

	t.Run("delivered paths win", func(t *testing.T) {
		event := &trigger.Event{
			Type:    trigger.EventPush,
			Before:  before,
			After:   after,
			Commits: []trigger.Commit{{SHA: after, Modified: []string{"README.md"}}},
		}
		resolveChangedPaths(context.Background(), event, dir, slog.Default())

		want := []string{"README.md"}
		if got := event.ChangedPaths(); !reflect.DeepEqual(got, want) {
			t.Errorf("ChangedPaths() = %v, want %v", got, want)
		}
	})

	t.Run("dispatch events untouched", func(t *testing.T) {
		event := &trigger.Event{Type: trigger.EventDispatch}
		resolveChangedPaths(context.Background(), event, dir, slog.Default())
		if len(event.Commits) != 0 {
			t.Errorf("dispatch event grew commits: %v", event.Commits)
		}
	})

	t.Run("derivation failure leaves event as delivered", func(t *testing.T) {
		event := &trigger.Event{Type: trigger.EventPush, Before: before, After: after}
		resolveChangedPaths(context.Background(), event, t.TempDir(), slog.Default())
		if len(event.Commits) != 0 {
			t.Errorf("failed derivation grew commits: %v", event.Commits)
		}
	})
}
