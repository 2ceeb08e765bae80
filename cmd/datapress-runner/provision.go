// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/datapress/lib/config"
	"github.com/bureau-foundation/datapress/lib/pyenv"
	"github.com/bureau-foundation/datapress/lib/workflow"
)

// provisionRuntime prepares the Python environment a workflow's
// runtime section pins: resolve an interpreter of exactly the pinned
// version, create or reuse the virtual environment, upgrade pip, then
// install the declared packages.
//
// Environments live under the configured envs directory keyed by
// workflow name and interpreter version, so repeat runs reuse the
// environment and pip only confirms already-satisfied requirements.
func provisionRuntime(ctx context.Context, cfg *config.Config, workflowName string, runtime *workflow.Runtime) (*pyenv.Env, error) {
	pythonVersion := runtime.Python
	if pythonVersion == "" {
		pythonVersion = cfg.Python.Version
	}

	var interpreter string
	if cfg.Python.Interpreter != "" {
		// An explicitly configured interpreter must still match the
		// pinned version; a mismatch is fatal, not a fallback.
		interpreter = cfg.Python.Interpreter
		if err := pyenv.CheckInterpreter(ctx, interpreter, pythonVersion); err != nil {
			return nil, err
		}
	} else {
		found, err := pyenv.FindInterpreter(ctx, pythonVersion)
		if err != nil {
			return nil, err
		}
		interpreter = found
	}

	envDir := filepath.Join(cfg.Paths.Envs, workflowName+"-"+pythonVersion)
	fmt.Printf("[run] provisioning python %s environment in %s\n", pythonVersion, envDir)
	env, err := pyenv.CreateEnv(ctx, interpreter, envDir)
	if err != nil {
		return nil, err
	}

	if len(runtime.Packages) > 0 {
		fmt.Printf("[run] installing packages: %s\n", strings.Join(runtime.Packages, ", "))
		if err := env.Install(ctx, runtime.Packages); err != nil {
			return nil, err
		}
	}

	return env, nil
}
