// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package trigger provides the event model and trigger evaluation for
// datapress workflows. An event (a push to the watched repository, or
// a manual dispatch) is evaluated against a workflow's trigger rules
// to decide whether the workflow fires.
//
// Evaluation is default-deny and pure: an event type with no
// corresponding rule never fires, and Evaluate performs no IO. The
// path matcher supports `*` within a segment and `**` across
// segments; pattern syntax is checked by ValidateRules at load time,
// never at evaluation time.
package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// Event type strings. Any other value is carried verbatim and never
// fires a workflow.
const (
	// EventPush is a push to the watched repository.
	EventPush = "push"

	// EventDispatch is a manual run request. Dispatch events fire
	// every workflow that declares on.dispatch, unconditionally.
	EventDispatch = "dispatch"
)

// Event is a trigger event as delivered to the runner: a JSON file
// from a forge webhook relay, or a synthesized dispatch.
type Event struct {
	// Type discriminates the event: "push", "dispatch", or an
	// unknown value (which never fires).
	Type string `json:"type"`

	// Repo is the repository the event concerns, "owner/repo" form.
	Repo string `json:"repo,omitempty"`

	// Ref is the full git ref for push events, e.g.
	// "refs/heads/main".
	Ref string `json:"ref,omitempty"`

	// Before is the previous HEAD SHA for push events.
	Before string `json:"before,omitempty"`

	// After is the new HEAD SHA for push events.
	After string `json:"after,omitempty"`

	// Sender is the forge username that caused the event.
	Sender string `json:"sender,omitempty"`

	// Commits carries the push's commits with their per-commit path
	// lists. Some relays truncate or omit these; the runner can
	// derive changed paths from Before/After via git when they are
	// absent.
	Commits []Commit `json:"commits,omitempty"`

	// Inputs carries dispatch inputs: free-form key/value pairs
	// that become workflow variables (payload priority).
	Inputs map[string]string `json:"inputs,omitempty"`

	// ReceivedAt is the RFC3339 time the event was recorded.
	ReceivedAt string `json:"received_at,omitempty"`
}

// Commit is a single commit in a push event, with the paths it
// touched.
type Commit struct {
	SHA       string   `json:"sha"`
	Message   string   `json:"message,omitempty"`
	Author    string   `json:"author,omitempty"` // "Name <email>"
	Timestamp string   `json:"timestamp,omitempty"`
	Added     []string `json:"added,omitempty"`
	Modified  []string `json:"modified,omitempty"`
	Removed   []string `json:"removed,omitempty"`
}

// Dispatch returns a synthesized manual dispatch event carrying the
// given inputs. The runner uses this for --dispatch runs; tests use
// it to exercise dispatch evaluation.
func Dispatch(inputs map[string]string) Event {
	return Event{Type: EventDispatch, Inputs: inputs}
}

// ParseEvent parses an event file. The input is JSONC: JSON extended
// with // line comments, /* block comments */, and trailing commas,
// so fixture and hand-written event files can be annotated.
func ParseEvent(data []byte) (*Event, error) {
	stripped := jsonc.ToJSON(data)

	var event Event
	if err := json.Unmarshal(stripped, &event); err != nil {
		return nil, fmt.Errorf("parsing event: %w", err)
	}
	if event.Type == "" {
		return nil, errors.New("parsing event: missing type")
	}

	return &event, nil
}

// ReadEventFile reads a JSONC event file from disk and parses it.
func ReadEventFile(path string) (*Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	event, err := ParseEvent(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return event, nil
}

// Branch returns the branch name for push events: the ref with its
// refs/heads/ prefix stripped. Non-branch refs (tags) are returned
// as-is minus nothing, so branch rules simply won't match them.
func (e *Event) Branch() string {
	return strings.TrimPrefix(e.Ref, "refs/heads/")
}

// ChangedPaths returns the union of added, modified, and removed
// paths across all commits, deduplicated, in order of first
// appearance.
func (e *Event) ChangedPaths() []string {
	seen := make(map[string]bool)
	var paths []string

	add := func(list []string) {
		for _, path := range list {
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
		}
	}

	for _, commit := range e.Commits {
		add(commit.Added)
		add(commit.Modified)
		add(commit.Removed)
	}
	return paths
}
