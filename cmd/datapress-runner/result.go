// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// runLog writes the structured JSONL run record. Each line is an
// independent JSON object, making the record:
//
//   - Crash-safe: a SIGKILL mid-run preserves all completed step
//     results. A single JSON file would be truncated and unparseable.
//   - Streamable: another process can tail the file for step-by-step
//     progress instead of waiting for completion.
//
// The record lives under the configured state directory, one file per
// run named by the run ID. All write methods are nil-safe no-ops so
// callers never need to guard against a disabled log.
type runLog struct {
	logger  *slog.Logger
	file    *os.File
	encoder *json.Encoder
}

// newRunLog creates a JSONL run record at the given path, truncating
// any existing content.
func newRunLog(path string, logger *slog.Logger) (*runLog, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating run record %s: %w", path, err)
	}
	return &runLog{
		logger:  logger,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Close flushes and closes the run record file.
func (r *runLog) Close() error {
	if r == nil {
		return nil
	}
	return r.file.Close()
}

// writeStart records the firing decision and the run parameters.
func (r *runLog) writeStart(workflowName, runID, eventType, reason string, matched []string, stepCount int) {
	if r == nil {
		return
	}
	r.write(runStartEntry{
		Type:      "start",
		Workflow:  workflowName,
		RunID:     runID,
		Event:     eventType,
		Reason:    reason,
		Matched:   matched,
		StepCount: stepCount,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeStep records the outcome of a single step. Ref carries the
// artifact reference for publish steps; output carries the captured
// tail of a run step's combined stdout and stderr.
func (r *runLog) writeStep(index int, name, status string, durationMS int64, stepError, ref, output string) {
	if r == nil {
		return
	}
	r.write(runStepEntry{
		Type:       "step",
		Index:      index,
		Name:       name,
		Status:     status,
		DurationMS: durationMS,
		Error:      stepError,
		Ref:        ref,
		Output:     output,
	})
}

// writeComplete records successful run completion with the artifact
// references published along the way.
func (r *runLog) writeComplete(durationMS int64, published []string) {
	if r == nil {
		return
	}
	r.write(runCompleteEntry{
		Type:       "complete",
		Status:     "ok",
		DurationMS: durationMS,
		Published:  published,
	})
}

// writeFailed records run failure.
func (r *runLog) writeFailed(failedStep, errorMessage string, durationMS int64) {
	if r == nil {
		return
	}
	r.write(runFailedEntry{
		Type:       "failed",
		Status:     "failed",
		Error:      errorMessage,
		FailedStep: failedStep,
		DurationMS: durationMS,
	})
}

func (r *runLog) write(entry any) {
	if err := r.encoder.Encode(entry); err != nil {
		r.logger.Warn("failed to write run record entry", "error", err)
		return
	}
	// Sync after each line so that partial records survive a crash
	// and are visible to readers tailing for progress immediately.
	if err := r.file.Sync(); err != nil {
		r.logger.Warn("failed to sync run record", "error", err)
	}
}

// JSONL entry types. Each struct documents exactly which fields appear
// in that line type. Separate structs (rather than one with omitempty
// everywhere) make the format explicit and self-documenting.

// runStartEntry is the first line, written once the trigger decision
// fires the workflow.
type runStartEntry struct {
	Type      string   `json:"type"`
	Workflow  string   `json:"workflow"`
	RunID     string   `json:"run_id"`
	Event     string   `json:"event"`
	Reason    string   `json:"reason"`
	Matched   []string `json:"matched,omitempty"`
	StepCount int      `json:"step_count"`
	Timestamp string   `json:"timestamp"`
}

// runStepEntry is written after each step completes.
type runStepEntry struct {
	Type       string `json:"type"`
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Ref        string `json:"ref,omitempty"`
	Output     string `json:"output,omitempty"`
}

// runCompleteEntry is the last line on successful run completion.
type runCompleteEntry struct {
	Type       string   `json:"type"`
	Status     string   `json:"status"`
	DurationMS int64    `json:"duration_ms"`
	Published  []string `json:"published,omitempty"`
}

// runFailedEntry is the last line when the run fails.
type runFailedEntry struct {
	Type       string `json:"type"`
	Status     string `json:"status"`
	Error      string `json:"error"`
	FailedStep string `json:"failed_step"`
	DurationMS int64  `json:"duration_ms"`
}
