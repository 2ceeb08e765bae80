// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Workflow runner for datapress. Reads a workflow definition, decides
// whether a trigger event fires it, and if so provisions the pinned
// Python runtime, executes the steps in order, and publishes declared
// artifacts. The first failing step halts the run; there is no retry.
//
// Usage:
//
//	datapress-runner [flags] <workflow.yaml>
//
// The trigger event comes from exactly one of two sources:
//
//   - --event path: a JSONC event file, typically written by a forge
//     webhook relay. Push events carry the changed paths that the
//     workflow's watch set is matched against.
//   - --dispatch: a synthesized manual dispatch event. Repeatable
//     --input key=value flags become dispatch inputs, which resolve
//     as workflow variables at payload priority.
//
// An event that does not fire the workflow is a clean no-op: the
// runner prints the reason and exits zero. Only validation problems,
// provisioning failures, and step failures exit non-zero.
//
// Step execution supports:
//
//   - run: shell commands via sh -c with inherited stdout/stderr
//   - publish: storing a file as a named artifact, either through a
//     running datapress-artifact-service socket or directly into the
//     local store
//   - timeout: per-step deadlines, with SIGTERM then SIGKILL against
//     the step's process group
//   - env: per-step environment with ${NAME} variable expansion
//
// Every run writes a JSONL record under the configured state
// directory, one line per lifecycle event (start, each step, the
// terminal outcome), synced line by line so a crash mid-run preserves
// everything up to the crash.
package main
