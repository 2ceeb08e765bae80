// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow provides parsing, validation, and variable
// expansion for datapress workflow definitions. A workflow is a
// trigger rule, an optional runtime pin, and an ordered sequence of
// steps (shell commands and artifact publications) executed by the
// runner.
//
// Definitions are authored on disk as YAML files. The typical flow:
//
//  1. ReadFile or Parse: YAML bytes → Workflow
//  2. Validate: structural checks (Run XOR Publish, required fields)
//  3. ResolveVariables: merge declarations + payload + environment
//  4. ExpandStep: substitute ${NAME} references in each step before
//     execution
package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse unmarshals a YAML workflow definition. Unknown fields are
// rejected: a typo like "pathes:" silently disabling a watch rule is
// exactly the failure mode strict parsing exists to prevent.
func Parse(data []byte) (*Workflow, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var definition Workflow
	if err := decoder.Decode(&definition); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("parsing workflow: empty definition")
		}
		return nil, fmt.Errorf("parsing workflow: %w", err)
	}

	return &definition, nil
}

// ReadFile reads a YAML workflow file from disk and parses it.
// Returns a descriptive error if the file cannot be read or the YAML
// is malformed.
func ReadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	definition, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return definition, nil
}

// NameFromPath extracts a workflow name from a file path by stripping
// the directory prefix and the file extension. For example,
// "examples/workflows/air-quality.yaml" returns "air-quality".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	extension := filepath.Ext(base)
	return strings.TrimSuffix(base, extension)
}
