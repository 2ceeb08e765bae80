// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bureau-foundation/datapress/lib/artifact"
	"github.com/bureau-foundation/datapress/lib/clock"
	"github.com/bureau-foundation/datapress/lib/config"
	"github.com/bureau-foundation/datapress/lib/gitrepo"
	"github.com/bureau-foundation/datapress/lib/process"
	"github.com/bureau-foundation/datapress/lib/service"
	"github.com/bureau-foundation/datapress/lib/trigger"
	"github.com/bureau-foundation/datapress/lib/version"
	"github.com/bureau-foundation/datapress/lib/workflow"
	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")

	var (
		configPath string
		eventPath  string
		dispatch   bool
		workdir    string
	)
	inputs := inputValues{}
	flag.StringVar(&configPath, "config", "", "config file path (overrides DATAPRESS_CONFIG)")
	flag.StringVar(&eventPath, "event", "", "trigger event file (JSONC)")
	flag.BoolVar(&dispatch, "dispatch", false, "synthesize a manual dispatch event")
	flag.Var(inputs, "input", "dispatch input as key=value (repeatable, requires --dispatch)")
	flag.StringVar(&workdir, "workdir", ".", "directory run commands execute in and publish paths resolve against")
	flag.Parse()

	if showVersion {
		fmt.Printf("datapress-runner %s\n", version.Info())
		return nil
	}

	if flag.NArg() != 1 {
		return fmt.Errorf("usage: datapress-runner [flags] <workflow.yaml>")
	}
	workflowPath := flag.Arg(0)

	logger := service.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	// Load and validate the workflow definition.
	definition, err := workflow.ReadFile(workflowPath)
	if err != nil {
		return err
	}
	workflowName := workflow.NameFromPath(workflowPath)

	issues := definition.Validate()
	issues = append(issues, trigger.ValidateRules(definition.On)...)
	if len(issues) > 0 {
		return fmt.Errorf("workflow %q has validation errors:\n  %s", workflowName, strings.Join(issues, "\n  "))
	}

	// Build the trigger event from exactly one source.
	var event *trigger.Event
	switch {
	case eventPath != "" && dispatch:
		return fmt.Errorf("--event and --dispatch are mutually exclusive")
	case eventPath != "":
		if len(inputs) > 0 {
			return fmt.Errorf("--input requires --dispatch")
		}
		event, err = trigger.ReadEventFile(eventPath)
		if err != nil {
			return err
		}
	case dispatch:
		dispatched := trigger.Dispatch(inputs)
		event = &dispatched
	default:
		return fmt.Errorf("either --event or --dispatch is required")
	}

	// A relay may deliver a push without per-commit file lists. When
	// the work directory is a checkout of the pushed repository, the
	// changed paths can be derived from git history instead.
	resolveChangedPaths(ctx, event, workdir, logger)

	// Decide. A no-fire decision is a clean no-op, not an error.
	decision := trigger.Evaluate(definition.On, *event)
	if !decision.Fire {
		fmt.Printf("[run] %s: not firing: %s\n", workflowName, decision.Reason)
		return nil
	}
	fmt.Printf("[run] %s: firing: %s\n", workflowName, decision.Reason)
	for _, path := range decision.Matched {
		fmt.Printf("[run]   matched: %s\n", path)
	}

	// Resolve workflow variables. Event fields are ambient context at
	// the lowest payload priority; dispatch inputs are explicit
	// per-run values and override them.
	payload := eventVariables(event)
	for name, value := range event.Inputs {
		payload[name] = value
	}
	variables, err := workflow.ResolveVariables(definition.Variables, payload, os.Getenv)
	if err != nil {
		return err
	}

	runID := uuid.NewString()

	// Provision the pinned Python runtime before the run record is
	// opened: a missing interpreter or a failed install means no run
	// at all.
	environ := os.Environ()
	if definition.Runtime != nil {
		env, err := provisionRuntime(ctx, cfg, workflowName, definition.Runtime)
		if err != nil {
			return fmt.Errorf("provisioning runtime: %w", err)
		}
		environ = env.Environ(environ)
	}

	// Open the artifact store only when a step publishes.
	var store artifactStore
	if hasPublishStep(definition.Steps) {
		store, err = openStore(cfg)
		if err != nil {
			return fmt.Errorf("opening artifact store: %w", err)
		}
	}

	recordPath := filepath.Join(cfg.Paths.State, runID+".jsonl")
	record, err := newRunLog(recordPath, logger)
	if err != nil {
		return err
	}
	defer record.Close()

	runner := &stepRunner{
		workdir:      workdir,
		environ:      environ,
		gracePeriod:  cfg.GracePeriod(),
		outputTail:   cfg.Runner.OutputTail,
		store:        store,
		workflowName: workflowName,
		runID:        runID,
	}

	// Execute steps strictly in order. The first failure halts the
	// run; there is no retry and no continuation past a failed step.
	fmt.Printf("[run] %s: starting run %s (%d steps)\n", workflowName, runID, len(definition.Steps))
	runStart := time.Now()
	record.writeStart(workflowName, runID, event.Type, decision.Reason, decision.Matched, len(definition.Steps))

	var published []string
	for index, step := range definition.Steps {
		expandedStep, err := workflow.ExpandStep(step, variables)
		if err != nil {
			record.writeFailed(step.Name, err.Error(), time.Since(runStart).Milliseconds())
			return fmt.Errorf("expanding step %q: %w", step.Name, err)
		}

		result := runner.executeStep(ctx, expandedStep, index, len(definition.Steps))

		if result.status == "failed" {
			fmt.Printf("[run] step %d/%d: %s... failed: %v\n",
				index+1, len(definition.Steps), expandedStep.Name, result.err)
			record.writeStep(index, expandedStep.Name, "failed",
				result.duration.Milliseconds(), result.err.Error(), "", result.output)
			record.writeFailed(expandedStep.Name, result.err.Error(),
				time.Since(runStart).Milliseconds())
			return fmt.Errorf("step %q failed: %w", expandedStep.Name, result.err)
		}

		if result.ref != "" {
			published = append(published, result.ref)
		}
		record.writeStep(index, expandedStep.Name, result.status,
			result.duration.Milliseconds(), "", result.ref, result.output)
	}

	totalDuration := time.Since(runStart)
	fmt.Printf("[run] %s: complete (%s)\n", workflowName, formatDuration(totalDuration))
	record.writeComplete(totalDuration.Milliseconds(), published)
	return nil
}

// loadConfig resolves the runner configuration: an explicit --config
// path wins, then the DATAPRESS_CONFIG environment variable, then
// built-in defaults. The runner works with no config file at all;
// defaults put state, environments, and the artifact store under
// ~/.cache/datapress.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("DATAPRESS_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// openStore returns the artifact store publish steps write to: a
// service client when a socket is configured, otherwise the local
// store opened in process.
func openStore(cfg *config.Config) (artifactStore, error) {
	if cfg.Artifact.Socket != "" {
		if cfg.Artifact.TokenFile != "" {
			return artifact.NewClient(cfg.Artifact.Socket, cfg.Artifact.TokenFile)
		}
		return artifact.NewClientFromToken(cfg.Artifact.Socket, nil), nil
	}
	return artifact.OpenLocal(cfg.Artifact.Dir, clock.Real())
}

// hasPublishStep reports whether any step publishes an artifact.
func hasPublishStep(steps []workflow.Step) bool {
	for _, step := range steps {
		if step.Publish != nil {
			return true
		}
	}
	return false
}

// resolveChangedPaths derives a push's changed paths from the work
// directory's git history when the event carries no commit file
// lists. Derivation is best-effort: on failure the event is left as
// delivered and evaluation proceeds on whatever paths it carries.
func resolveChangedPaths(ctx context.Context, event *trigger.Event, workdir string, logger *slog.Logger) {
	if event.Type != trigger.EventPush || event.After == "" || len(event.ChangedPaths()) > 0 {
		return
	}
	paths, err := gitrepo.NewRepository(workdir).ChangedFiles(ctx, event.Before, event.After)
	if err != nil {
		logger.Warn("deriving changed paths from git", "error", err)
		return
	}
	event.Commits = append(event.Commits, trigger.Commit{SHA: event.After, Modified: paths})
}

// eventVariables converts trigger event fields to EVENT_-prefixed
// workflow variables, so steps can reference ${EVENT_BRANCH},
// ${EVENT_AFTER}, and friends. Empty fields are omitted.
func eventVariables(event *trigger.Event) map[string]string {
	fields := map[string]string{
		"EVENT_TYPE":   event.Type,
		"EVENT_REPO":   event.Repo,
		"EVENT_REF":    event.Ref,
		"EVENT_BRANCH": event.Branch(),
		"EVENT_BEFORE": event.Before,
		"EVENT_AFTER":  event.After,
		"EVENT_SENDER": event.Sender,
	}
	variables := make(map[string]string, len(fields))
	for name, value := range fields {
		if value != "" {
			variables[name] = value
		}
	}
	return variables
}

// inputValues collects repeated --input key=value flags.
type inputValues map[string]string

func (v inputValues) String() string {
	pairs := make([]string, 0, len(v))
	for key, value := range v {
		pairs = append(pairs, key+"="+value)
	}
	return strings.Join(pairs, ",")
}

func (v inputValues) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	v[key] = value
	return nil
}
