// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// datapress-artifact manages the artifact store from the command
// line: store and fetch dataset files, inspect metadata, and manage
// the mutable name tags that publishing moves.
//
// The CLI talks to a store in one of two modes. With --socket (or
// DATAPRESS_ARTIFACT_SOCKET) it connects to a running
// datapress-artifact-service over its Unix socket, reading the
// service token from --token-file (or DATAPRESS_ARTIFACT_TOKEN).
// Otherwise it opens the store directory in process: --dir when set,
// else the standard local store under the user cache directory.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/datapress/lib/artifact"
	"github.com/bureau-foundation/datapress/lib/clock"
	"github.com/bureau-foundation/datapress/lib/config"
	"github.com/bureau-foundation/datapress/lib/process"
	"github.com/bureau-foundation/datapress/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		process.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage(os.Stderr)
		return &exitError{code: 2}
	}

	switch args[0] {
	case "store":
		return runStore(args[1:])
	case "fetch":
		return runFetch(args[1:])
	case "info":
		return runInfo(args[1:])
	case "exists":
		return runExists(args[1:])
	case "resolve":
		return runResolve(args[1:])
	case "list":
		return runList(args[1:])
	case "tag":
		return runTag(args[1:])
	case "tags":
		return runTags(args[1:])
	case "delete-tag":
		return runDeleteTag(args[1:])
	case "status":
		return runStatus(args[1:])
	case "version", "-version", "--version":
		fmt.Printf("datapress-artifact %s\n", version.Info())
		return nil
	case "help", "-h", "--help":
		usage(os.Stdout)
		return nil
	default:
		return fmt.Errorf("unknown subcommand %q (run \"datapress-artifact help\")", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `datapress-artifact manages the datapress artifact store.

Usage:
  datapress-artifact <subcommand> [flags]

Subcommands:
  store       Store an artifact from a file or stdin
  fetch       Download an artifact to a file or stdout
  info        Show artifact metadata
  exists      Check whether an artifact exists
  resolve     Resolve a ref or tag to the full content hash
  list        List artifacts with optional filters
  tag         Create or update a mutable tag
  tags        List tags
  delete-tag  Delete a tag
  status      Show store status
  version     Print version information

Connection flags (accepted by every subcommand):
  --dir          local artifact store directory
  --socket       artifact service Unix socket path (overrides --dir)
  --token-file   service token file for socket connections

The socket and token paths default from DATAPRESS_ARTIFACT_SOCKET and
DATAPRESS_ARTIFACT_TOKEN. With neither --dir nor --socket set, the
store opens at the default local directory under the user cache.
`)
}

// exitError carries a process exit code for failures that have
// already been reported to the user.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// flagError converts a pflag parse failure, which pflag has already
// printed along with the flag usage, into a bare exit code so main
// does not report it a second time. pflag surfaces --help as
// ErrHelp; that is a clean exit.
func flagError(err error) error {
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return &exitError{code: 2}
}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet("datapress-artifact "+name, pflag.ContinueOnError)
}

// artifactAPI is the store surface shared by the in-process Local
// store and the socket Client. The status subcommand needs more than
// this and switches on the concrete type.
type artifactAPI interface {
	Store(ctx context.Context, request *artifact.StoreRequest, content io.Reader) (*artifact.StoreResponse, error)
	Fetch(ctx context.Context, ref string) (*artifact.FetchResult, error)
	Exists(ctx context.Context, ref string) (*artifact.ExistsResponse, error)
	Info(ctx context.Context, ref string) (*artifact.Metadata, error)
	Resolve(ctx context.Context, ref string) (*artifact.ResolveResponse, error)
	List(ctx context.Context, request *artifact.ListRequest) (*artifact.ListResponse, error)
	Tag(ctx context.Context, request *artifact.TagRequest) (*artifact.TagResponse, error)
	Tags(ctx context.Context, prefix string) (*artifact.TagsResponse, error)
	DeleteTag(ctx context.Context, name string) (*artifact.DeleteTagResponse, error)
}

// connection holds the store-selection flags shared by every
// subcommand.
type connection struct {
	dir       string
	socket    string
	tokenFile string
}

// addFlags registers the connection flags with dynamic defaults from
// the DATAPRESS_ARTIFACT_SOCKET and DATAPRESS_ARTIFACT_TOKEN
// environment variables.
func (c *connection) addFlags(flags *pflag.FlagSet) {
	socketDefault := os.Getenv("DATAPRESS_ARTIFACT_SOCKET")
	tokenDefault := os.Getenv("DATAPRESS_ARTIFACT_TOKEN")

	flags.StringVar(&c.dir, "dir", "", "local artifact store directory (default: the standard store under the user cache)")
	flags.StringVar(&c.socket, "socket", socketDefault, "artifact service socket path (overrides --dir)")
	flags.StringVar(&c.tokenFile, "token-file", tokenDefault, "service token file for socket connections")
}

// open connects to the store the flags name: the service socket when
// one is set, otherwise the local directory.
func (c *connection) open() (artifactAPI, error) {
	if c.socket != "" {
		if c.tokenFile != "" {
			return artifact.NewClient(c.socket, c.tokenFile)
		}
		return artifact.NewClientFromToken(c.socket, nil), nil
	}
	dir := c.dir
	if dir == "" {
		dir = config.Default().Artifact.Dir
	}
	return artifact.OpenLocal(dir, clock.Real())
}

// emitJSON writes a response as indented JSON to stdout, for the
// --json flag the read subcommands share.
func emitJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// guessContentType returns a MIME type based on the file extension.
// Returns empty string if the extension is not recognized.
func guessContentType(filename string) string {
	extension := strings.ToLower(filepath.Ext(filename))
	if extension == "" {
		return ""
	}

	types := map[string]string{
		".txt":     "text/plain",
		".csv":     "text/csv",
		".tsv":     "text/tab-separated-values",
		".json":    "application/json",
		".jsonl":   "application/x-ndjson",
		".xml":     "application/xml",
		".html":    "text/html",
		".md":      "text/markdown",
		".yaml":    "application/yaml",
		".yml":     "application/yaml",
		".parquet": "application/vnd.apache.parquet",
		".ipynb":   "application/x-ipynb+json",
		".png":     "image/png",
		".jpg":     "image/jpeg",
		".jpeg":    "image/jpeg",
		".svg":     "image/svg+xml",
		".pdf":     "application/pdf",
		".zip":     "application/zip",
		".gz":      "application/gzip",
		".tar":     "application/x-tar",
		".bin":     "application/octet-stream",
		".log":     "text/plain",
		".py":      "text/x-python",
		".go":      "text/x-go",
	}

	if contentType, ok := types[extension]; ok {
		return contentType
	}
	return ""
}

// terminalSafe reports whether content of this type can be written to
// an interactive terminal without corrupting it.
func terminalSafe(contentType string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	switch contentType {
	case "application/json", "application/x-ndjson", "application/yaml", "application/xml":
		return true
	}
	return false
}
