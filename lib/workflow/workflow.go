// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

// Workflow is a complete workflow definition: what triggers a run,
// which runtime the steps need, and the ordered steps themselves.
// Definitions are authored as YAML files in the watched repository
// (conventionally under workflows/).
//
// Variable substitution (${NAME}) is applied to all string fields in
// steps before execution. Variables are resolved from declared
// defaults, the trigger event payload, and the process environment.
type Workflow struct {
	// Description is a human-readable summary of what this workflow
	// does (e.g., "Preprocess the raw air quality dataset").
	Description string `yaml:"description,omitempty"`

	// On declares what fires this workflow. A workflow without a
	// trigger section can never run from a push; it can still be
	// run by manual dispatch only when On.Dispatch is set, so a
	// fully empty On means the definition is inert.
	On Trigger `yaml:"on,omitempty"`

	// Runtime pins the interpreter and packages the run steps need.
	// When nil, steps execute against the bare host environment.
	Runtime *Runtime `yaml:"runtime,omitempty"`

	// Variables declares the variables this workflow expects, with
	// optional defaults and required flags. The runner validates
	// required variables before starting execution. This is the
	// declaration — actual values come from the event payload and
	// the process environment at runtime.
	Variables map[string]Variable `yaml:"variables,omitempty"`

	// Steps is the ordered list of steps to execute. At least one
	// step is required. Steps run strictly sequentially; the first
	// failing step halts the run.
	Steps []Step `yaml:"steps"`
}

// Trigger declares the events that fire a workflow. Evaluation is
// default-deny: an event type with no corresponding rule never fires.
type Trigger struct {
	// Push fires the workflow for push events whose changed paths
	// match the rule. Nil means push events never fire this
	// workflow.
	Push *PushRule `yaml:"push,omitempty"`

	// Dispatch enables manual runs. Every dispatch of a workflow
	// with a non-nil Dispatch rule fires, unconditionally. Authored
	// as "dispatch: {}" in YAML (a bare "dispatch:" parses as null
	// and leaves the rule nil).
	Dispatch *DispatchRule `yaml:"dispatch,omitempty"`
}

// PushRule scopes push events to branches and paths. A push fires the
// workflow when its ref matches Branches (empty means every ref) and
// its changed paths match Paths (empty means every path).
type PushRule struct {
	// Branches restricts the rule to pushes on matching branch
	// names (the ref with its refs/heads/ prefix stripped). Empty
	// means any branch.
	Branches []string `yaml:"branches,omitempty"`

	// Paths is the watch set: glob patterns matched against the
	// union of added, modified, and removed paths across the push's
	// commits. `*` matches within a path segment, `**` matches
	// across segments. Empty means no path restriction: any push on
	// a matching branch fires.
	Paths []string `yaml:"paths,omitempty"`
}

// DispatchRule marks a workflow as manually dispatchable. It carries
// no configuration; its presence is the rule.
type DispatchRule struct{}

// Runtime pins the Python interpreter and package set for a
// workflow's run steps. The runner provisions a virtual environment
// before the first step and injects it into every step's PATH.
type Runtime struct {
	// Python is the interpreter version the run steps need, in
	// major.minor form (e.g., "3.10"). The runner refuses to run
	// with a different interpreter version. Empty falls back to the
	// runner's configured default version.
	Python string `yaml:"python,omitempty"`

	// Packages is the list of pip requirement specifiers installed
	// into the environment after pip upgrades itself. Order is
	// preserved.
	Packages []string `yaml:"packages,omitempty"`
}

// Variable declares an expected variable for a workflow. Variables
// are informational for documentation and validation — the runner
// resolves actual values from the event payload and environment.
type Variable struct {
	// Description explains what this variable is for.
	Description string `yaml:"description,omitempty"`

	// Default is the fallback value when the variable is not
	// provided in any source. Empty string is a valid default.
	Default string `yaml:"default,omitempty"`

	// Required means the runner must fail if this variable has no
	// value from any source (including Default).
	Required bool `yaml:"required,omitempty"`
}

// Step is a single unit of work. Exactly one of Run or Publish must
// be set: a step either executes a shell command or publishes a file
// as a named artifact, never both.
type Step struct {
	// Name identifies the step in logs and the result log. Required
	// and unique within a workflow.
	Name string `yaml:"name"`

	// Run is a shell command executed with `sh -c` in the work
	// directory. A non-zero exit fails the step and halts the run.
	Run string `yaml:"run,omitempty"`

	// Publish stores a file from the work directory as a named
	// artifact. A missing file fails the step and halts the run.
	Publish *PublishSpec `yaml:"publish,omitempty"`

	// Env is additional environment for the command, on top of the
	// runner's environment and the provisioned runtime. Values
	// support ${NAME} expansion against workflow variables.
	Env map[string]string `yaml:"env,omitempty"`

	// Timeout bounds the command's execution (time.ParseDuration
	// syntax, e.g. "10m"). On expiry the command's process group is
	// killed and the step fails. Empty means no timeout. Only valid
	// on run steps.
	Timeout string `yaml:"timeout,omitempty"`

	// GracePeriod is the window between SIGTERM and SIGKILL when a
	// timed-out or canceled command is being stopped. Empty uses the
	// runner's configured default; "0s" means immediate SIGKILL.
	// Only valid on run steps.
	GracePeriod string `yaml:"grace_period,omitempty"`
}

// PublishSpec names the file a publish step stores and the artifact
// identity it stores it under.
type PublishSpec struct {
	// Path is the file to publish, relative to the work directory.
	Path string `yaml:"path"`

	// Artifact is the name the content is tagged with in the
	// artifact store. Publishing moves the name to the new content;
	// the name always resolves to exactly one artifact.
	Artifact string `yaml:"artifact"`

	// ContentType is the MIME type recorded in the artifact
	// metadata (e.g., "text/csv"). Defaults to
	// "application/octet-stream" when empty.
	ContentType string `yaml:"content_type,omitempty"`

	// Description is a human-readable note recorded in the artifact
	// metadata.
	Description string `yaml:"description,omitempty"`
}
