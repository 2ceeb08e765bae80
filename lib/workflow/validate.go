// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"regexp"
	"time"
)

// pythonVersionPattern matches a pinned interpreter version in
// major.minor form. Patch-level pins are deliberately unsupported:
// the provisioner compares against `python --version` output at
// major.minor granularity.
var pythonVersionPattern = regexp.MustCompile(`^\d+\.\d+$`)

// Validate checks a Workflow for structural issues. Returns a list of
// human-readable issue descriptions. An empty list means the workflow
// is valid.
//
// Structural checks include:
//   - At least one step is required
//   - Each step must have a non-empty, unique Name
//   - Each step must set exactly one of Run or Publish
//   - Timeout and GracePeriod are only valid on Run steps and must
//     be parseable by time.ParseDuration
//   - Publish steps must have Path and Artifact
//   - Runtime.Python (when set) must be major.minor
//   - A push rule must carry at least one path or branch pattern,
//     and no pattern may be empty
func (w *Workflow) Validate() []string {
	var issues []string

	if len(w.Steps) == 0 {
		issues = append(issues, "workflow has no steps (at least one step is required)")
	}

	seen := make(map[string]bool, len(w.Steps))
	for index, step := range w.Steps {
		prefix := fmt.Sprintf("steps[%d]", index)

		if step.Name == "" {
			issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
		} else {
			prefix = fmt.Sprintf("steps[%d] %q", index, step.Name)
			if seen[step.Name] {
				issues = append(issues, fmt.Sprintf("%s: duplicate step name", prefix))
			}
			seen[step.Name] = true
		}

		hasRun := step.Run != ""
		hasPublish := step.Publish != nil

		switch {
		case hasRun && hasPublish:
			issues = append(issues, fmt.Sprintf("%s: run and publish are mutually exclusive (set exactly one)", prefix))
		case !hasRun && !hasPublish:
			issues = append(issues, fmt.Sprintf("%s: must set either run or publish", prefix))
		}

		// Fields that are only meaningful for Run steps.
		if !hasRun {
			if step.Timeout != "" {
				issues = append(issues, fmt.Sprintf("%s: timeout is only valid on run steps", prefix))
			}
			if step.GracePeriod != "" {
				issues = append(issues, fmt.Sprintf("%s: grace_period is only valid on run steps", prefix))
			}
		}

		if hasPublish {
			if step.Publish.Path == "" {
				issues = append(issues, fmt.Sprintf("%s: publish.path is required", prefix))
			}
			if step.Publish.Artifact == "" {
				issues = append(issues, fmt.Sprintf("%s: publish.artifact is required", prefix))
			}
		}

		if step.Timeout != "" {
			if _, err := time.ParseDuration(step.Timeout); err != nil {
				issues = append(issues, fmt.Sprintf("%s: invalid timeout %q: %v", prefix, step.Timeout, err))
			}
		}
		if step.GracePeriod != "" {
			if _, err := time.ParseDuration(step.GracePeriod); err != nil {
				issues = append(issues, fmt.Sprintf("%s: invalid grace_period %q: %v", prefix, step.GracePeriod, err))
			}
		}
	}

	if w.Runtime != nil {
		if w.Runtime.Python != "" && !pythonVersionPattern.MatchString(w.Runtime.Python) {
			issues = append(issues, fmt.Sprintf("runtime.python %q must be major.minor (e.g. \"3.10\")", w.Runtime.Python))
		}
		for index, pkg := range w.Runtime.Packages {
			if pkg == "" {
				issues = append(issues, fmt.Sprintf("runtime.packages[%d]: empty package specifier", index))
			}
		}
	}

	if w.On.Push != nil {
		if len(w.On.Push.Paths) == 0 && len(w.On.Push.Branches) == 0 {
			issues = append(issues, "on.push must declare at least one of paths or branches")
		}
		for index, pattern := range w.On.Push.Paths {
			if pattern == "" {
				issues = append(issues, fmt.Sprintf("on.push.paths[%d]: empty pattern", index))
			}
		}
		for index, pattern := range w.On.Push.Branches {
			if pattern == "" {
				issues = append(issues, fmt.Sprintf("on.push.branches[%d]: empty pattern", index))
			}
		}
	}

	return issues
}
