// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the master configuration for datapress.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Artifact configures where published datasets go.
	Artifact ArtifactConfig `yaml:"artifact"`

	// Mirror configures the optional S3-compatible artifact mirror.
	Mirror MirrorConfig `yaml:"mirror"`

	// Python configures the interpreter used for script steps.
	Python PythonConfig `yaml:"python"`

	// Runner configures workflow execution.
	Runner RunnerConfig `yaml:"runner"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for datapress data.
	Root string `yaml:"root"`

	// State is where run records are written, one JSONL file per run.
	State string `yaml:"state"`

	// Envs is where provisioned Python environments are kept. Each
	// workflow gets a virtualenv keyed by its name and interpreter
	// version, reused across runs.
	Envs string `yaml:"envs"`
}

// ArtifactConfig configures dataset publishing. Exactly one of Dir
// and Socket is typically set: Dir opens the store in process, Socket
// talks to a running datapress-artifact-service.
type ArtifactConfig struct {
	// Dir is the local artifact store root.
	Dir string `yaml:"dir"`

	// Socket is the artifact service Unix socket path.
	Socket string `yaml:"socket"`

	// TokenFile is the service token file for Socket connections.
	TokenFile string `yaml:"token_file"`
}

// MirrorConfig configures the S3-compatible mirror of the artifact
// service. An empty endpoint disables mirroring. Credentials come
// from DATAPRESS_MIRROR_ACCESS_KEY and DATAPRESS_MIRROR_SECRET_KEY,
// never from the config file.
type MirrorConfig struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	UseSSL   bool   `yaml:"use_ssl"`
}

// PythonConfig configures the interpreter for script steps.
type PythonConfig struct {
	// Interpreter is an explicit interpreter path. Empty means
	// discover one matching Version on PATH.
	Interpreter string `yaml:"interpreter"`

	// Version is the required interpreter version as "major.minor".
	Version string `yaml:"version"`
}

// RunnerConfig configures workflow execution.
type RunnerConfig struct {
	// GracePeriod is how long a step's process group gets between
	// SIGTERM and SIGKILL on cancellation.
	GracePeriod string `yaml:"grace_period"`

	// OutputTail is how many bytes of step output are kept in the
	// run record.
	OutputTail int `yaml:"output_tail"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file; the file is still
// required for [Load].
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "datapress")

	return &Config{
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
			Envs:  filepath.Join(defaultRoot, "envs"),
		},
		Artifact: ArtifactConfig{
			Dir: filepath.Join(defaultRoot, "artifacts"),
		},
		Mirror: MirrorConfig{
			Bucket: "datapress-artifacts",
			UseSSL: true,
		},
		Python: PythonConfig{
			Version: "3.10",
		},
		Runner: RunnerConfig{
			GracePeriod: "10s",
			OutputTail:  64 * 1024,
		},
	}
}

// Load loads configuration from the DATAPRESS_CONFIG environment
// variable. A .env file in the working directory is read first when
// present, without overriding variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	configPath := os.Getenv("DATAPRESS_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("DATAPRESS_CONFIG environment variable not set; " +
			"set it to the path of your datapress.yaml config file, or use --config")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth: environment variables do not
// override config values. The only expansion performed is ${HOME} and
// similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"DATAPRESS_ROOT": c.Paths.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["DATAPRESS_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Envs = expandVars(c.Paths.Envs, vars)
	c.Artifact.Dir = expandVars(c.Artifact.Dir, vars)
	c.Artifact.Socket = expandVars(c.Artifact.Socket, vars)
	c.Artifact.TokenFile = expandVars(c.Artifact.TokenFile, vars)
	c.Python.Interpreter = expandVars(c.Python.Interpreter, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}

	if c.Artifact.Dir == "" && c.Artifact.Socket == "" {
		errs = append(errs, fmt.Errorf("artifact.dir or artifact.socket is required"))
	}

	if c.Mirror.Endpoint != "" && c.Mirror.Bucket == "" {
		errs = append(errs, fmt.Errorf("mirror.bucket is required when mirror.endpoint is set"))
	}

	if c.Python.Version != "" && !versionPattern.MatchString(c.Python.Version) {
		errs = append(errs, fmt.Errorf("python.version must be major.minor, got %q", c.Python.Version))
	}

	if c.Runner.GracePeriod != "" {
		if _, err := time.ParseDuration(c.Runner.GracePeriod); err != nil {
			errs = append(errs, fmt.Errorf("runner.grace_period: %v", err))
		}
	}
	if c.Runner.OutputTail < 0 {
		errs = append(errs, fmt.Errorf("runner.output_tail must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// GracePeriod returns the parsed grace period, falling back to the
// default when the field is empty or invalid. Validate reports the
// invalid case; this accessor never fails.
func (c *Config) GracePeriod() time.Duration {
	if c.Runner.GracePeriod == "" {
		return 10 * time.Second
	}
	parsed, err := time.ParseDuration(c.Runner.GracePeriod)
	if err != nil {
		return 10 * time.Second
	}
	return parsed
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		c.Paths.Envs,
		c.Artifact.Dir,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
