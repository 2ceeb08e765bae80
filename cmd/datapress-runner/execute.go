// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/bureau-foundation/datapress/lib/artifact"
	"github.com/bureau-foundation/datapress/lib/workflow"
)

// artifactStore is the subset of the artifact API publish steps need.
// Both artifact.Local (in-process store) and artifact.Client (service
// socket) satisfy it.
type artifactStore interface {
	Store(ctx context.Context, request *artifact.StoreRequest, content io.Reader) (*artifact.StoreResponse, error)
}

// stepRunner carries the per-run context every step shares: where
// commands execute, the environment they see, and where publish steps
// send their files.
type stepRunner struct {
	// workdir is the directory run commands execute in and publish
	// paths resolve against.
	workdir string

	// environ is the base environment for run commands, including
	// the provisioned Python runtime when the workflow pins one.
	environ []string

	// gracePeriod is the default SIGTERM-to-SIGKILL window for steps
	// that do not set their own.
	gracePeriod time.Duration

	// outputTail is how many bytes of a run step's combined output
	// are kept for the run record. Zero disables capture.
	outputTail int

	// store receives published files. Nil when the workflow has no
	// publish steps.
	store artifactStore

	workflowName string
	runID        string
}

// stepResult captures the outcome of executing a single step.
type stepResult struct {
	status   string // "ok" or "failed"
	duration time.Duration
	err      error
	ref      string // artifact reference for publish steps
	output   string // captured output tail for run steps
}

// executeStep runs a single step: a shell command or an artifact
// publication. Returns the step result; the caller decides whether a
// failure halts the run.
func (r *stepRunner) executeStep(ctx context.Context, step workflow.Step, index, total int) stepResult {
	startTime := time.Now()

	stepContext := ctx
	if step.Timeout != "" {
		timeout, err := time.ParseDuration(step.Timeout)
		if err != nil {
			// Validate should have caught this, but fail loud if not.
			return stepResult{
				status:   "failed",
				duration: time.Since(startTime),
				err:      fmt.Errorf("invalid timeout %q: %w", step.Timeout, err),
			}
		}
		var cancel context.CancelFunc
		stepContext, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	gracePeriod := r.gracePeriod
	if step.GracePeriod != "" {
		parsed, err := time.ParseDuration(step.GracePeriod)
		if err != nil {
			// Validate should have caught this, but fail loud if not.
			return stepResult{
				status:   "failed",
				duration: time.Since(startTime),
				err:      fmt.Errorf("invalid grace_period %q: %w", step.GracePeriod, err),
			}
		}
		gracePeriod = parsed
	}

	if step.Run != "" {
		var tail *tailBuffer
		if r.outputTail > 0 {
			tail = newTailBuffer(r.outputTail)
		}
		exitCode, err := r.runShellCommand(stepContext, step.Run, step.Env, gracePeriod, tail)
		if err != nil {
			return stepResult{
				status:   "failed",
				duration: time.Since(startTime),
				err:      fmt.Errorf("run: %w", err),
				output:   tail.String(),
			}
		}
		if exitCode != 0 {
			return stepResult{
				status:   "failed",
				duration: time.Since(startTime),
				err:      fmt.Errorf("run: exit code %d", exitCode),
				output:   tail.String(),
			}
		}
		duration := time.Since(startTime)
		fmt.Printf("[run] step %d/%d: %s... ok (%s)\n", index+1, total, step.Name, formatDuration(duration))
		return stepResult{status: "ok", duration: duration, output: tail.String()}
	}

	if step.Publish != nil {
		response, err := r.publish(stepContext, step.Publish)
		if err != nil {
			return stepResult{
				status:   "failed",
				duration: time.Since(startTime),
				err:      fmt.Errorf("publish: %w", err),
			}
		}
		duration := time.Since(startTime)
		fmt.Printf("[run] step %d/%d: %s... published %s as %s (%s)\n",
			index+1, total, step.Name, step.Publish.Artifact, response.Ref, formatDuration(duration))
		return stepResult{status: "ok", duration: duration, ref: response.Ref}
	}

	// Validate rejects steps with neither run nor publish; fail loud
	// if one slips through.
	return stepResult{
		status:   "failed",
		duration: time.Since(startTime),
		err:      fmt.Errorf("step %q has no run command or publish spec", step.Name),
	}
}

// publish stores the step's file as a named artifact. The name moves
// to the new content unconditionally, so consumers resolving the name
// always get the latest run's output. A missing file fails the step.
func (r *stepRunner) publish(ctx context.Context, spec *workflow.PublishSpec) (*artifact.StoreResponse, error) {
	if r.store == nil {
		return nil, fmt.Errorf("no artifact store configured")
	}

	path := spec.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.workdir, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	contentType := spec.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	response, err := r.store.Store(ctx, &artifact.StoreRequest{
		Name:        spec.Artifact,
		ContentType: contentType,
		Filename:    filepath.Base(spec.Path),
		Description: spec.Description,
		Workflow:    r.workflowName,
		RunID:       r.runID,
	}, file)
	if err != nil {
		return nil, fmt.Errorf("storing %s: %w", spec.Path, err)
	}
	return response, nil
}

// runShellCommand executes a command via sh -c in the work directory
// with stdout and stderr inherited from the runner process (and teed
// into the tail buffer when one is given). The shell is resolved via
// PATH, not hardcoded to /bin/sh. Returns the exit code and any error
// (signals, context cancellation, etc.).
//
// The command runs in its own process group so that cancellation
// (timeout, interrupt) kills the shell and all its children. Without
// Setpgid only the shell receives the signal; child processes survive
// and hold open the inherited stdout/stderr file descriptors.
//
// When gracePeriod is zero, SIGKILL is sent immediately on
// cancellation. When positive, SIGTERM is sent first so the process
// can flush buffers and close files; SIGKILL follows if it has not
// exited within the grace period.
func (r *stepRunner) runShellCommand(ctx context.Context, command string, env map[string]string, gracePeriod time.Duration, tail *tailBuffer) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.workdir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if tail != nil {
		cmd.Stdout = io.MultiWriter(os.Stdout, tail)
		cmd.Stderr = io.MultiWriter(os.Stderr, tail)
	}

	// Put the command in its own process group so that signals reach
	// the shell and all its children (negative PID = all processes
	// in the group).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if gracePeriod > 0 {
		// Graceful: SIGTERM the process group first. A background
		// goroutine escalates to SIGKILL after the grace period if
		// the process has not exited.
		cmd.Cancel = func() error {
			processGroupID := -cmd.Process.Pid
			if err := syscall.Kill(processGroupID, syscall.SIGTERM); err != nil {
				// SIGTERM failed (process group already gone), escalate.
				return syscall.Kill(processGroupID, syscall.SIGKILL)
			}
			go func() {
				time.Sleep(gracePeriod)
				// The process group may have already exited; ESRCH
				// from a dead group is harmless.
				_ = syscall.Kill(processGroupID, syscall.SIGKILL)
			}()
			return nil
		}
	} else {
		// Immediate: SIGKILL the entire process group.
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	// Step-level environment variables go on top of the runner's
	// base environment (which already carries the provisioned
	// runtime's PATH).
	if len(env) > 0 {
		merged := make([]string, 0, len(r.environ)+len(env))
		merged = append(merged, r.environ...)
		for name, value := range env {
			merged = append(merged, name+"="+value)
		}
		cmd.Env = merged
	} else {
		cmd.Env = r.environ
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), nil
	}

	// Non-exit errors: context cancellation (timeout), signal, etc.
	return -1, err
}

// tailBuffer keeps the last limit bytes written to it. Stdout and
// stderr are copied by separate goroutines, so writes are locked.
type tailBuffer struct {
	mu        sync.Mutex
	limit     int
	data      []byte
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if len(b.data) > b.limit {
		excess := len(b.data) - b.limit
		copy(b.data, b.data[excess:])
		b.data = b.data[:b.limit]
		b.truncated = true
	}
	return len(p), nil
}

// String returns the captured tail. Nil-safe so step results can
// always read it, capture enabled or not.
func (b *tailBuffer) String() string {
	if b == nil {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

func formatDuration(duration time.Duration) string {
	return fmt.Sprintf("%.1fs", duration.Seconds())
}
