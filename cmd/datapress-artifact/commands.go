// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/bureau-foundation/datapress/lib/artifact"
	"github.com/bureau-foundation/datapress/lib/version"
)

func runStore(args []string) error {
	var conn connection
	var (
		name        string
		contentType string
		description string
		compression string
		labels      []string
		jsonOutput  bool
	)
	flags := newFlagSet("store")
	conn.addFlags(flags)
	flags.StringVar(&name, "name", "", "publish name; the name tag moves to the new artifact")
	flags.StringVar(&contentType, "content-type", "", "MIME content type (guessed from the filename if omitted)")
	flags.StringVar(&description, "description", "", "human-readable description")
	flags.StringVar(&compression, "compression", "", "force a compression codec: none, lz4, zstd (default: chosen from the content type)")
	flags.StringArrayVar(&labels, "label", nil, "label (repeatable)")
	flags.BoolVar(&jsonOutput, "json", false, "emit the store response as JSON")
	if err := flags.Parse(args); err != nil {
		return flagError(err)
	}
	if flags.NArg() > 1 {
		return fmt.Errorf("at most one file argument\n\nUsage: datapress-artifact store [file] [flags]")
	}

	// Content comes from the named file, or from stdin when no file
	// is given (or the file is "-").
	var content io.Reader = os.Stdin
	var filename string
	if flags.NArg() == 1 && flags.Arg(0) != "-" {
		path := flags.Arg(0)
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer file.Close()
		content = file
		filename = filepath.Base(path)
		if contentType == "" {
			contentType = guessContentType(filename)
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	store, err := conn.open()
	if err != nil {
		return err
	}

	response, err := store.Store(context.Background(), &artifact.StoreRequest{
		Name:        name,
		ContentType: contentType,
		Filename:    filename,
		Description: description,
		Labels:      labels,
		Compression: compression,
	}, content)
	if err != nil {
		return err
	}

	if jsonOutput {
		return emitJSON(response)
	}

	// Stdout carries only the ref so stores compose in pipelines;
	// anything else goes to stderr.
	if response.Deduplicated {
		fmt.Fprintln(os.Stderr, "content already stored")
	}
	fmt.Println(response.Ref)
	return nil
}

func runFetch(args []string) error {
	var conn connection
	var outputPath string
	flags := newFlagSet("fetch")
	conn.addFlags(flags)
	flags.StringVarP(&outputPath, "output", "o", "", "output file path (default: stdout)")
	if err := flags.Parse(args); err != nil {
		return flagError(err)
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("ref argument required\n\nUsage: datapress-artifact fetch <ref> [flags]")
	}

	store, err := conn.open()
	if err != nil {
		return err
	}

	result, err := store.Fetch(context.Background(), flags.Arg(0))
	if err != nil {
		return err
	}
	defer result.Content.Close()

	var output io.Writer
	if outputPath != "" {
		file, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer file.Close()
		output = file
	} else {
		contentType := result.Response.ContentType
		if term.IsTerminal(int(os.Stdout.Fd())) && !terminalSafe(contentType) {
			if contentType == "" {
				contentType = "binary"
			}
			return fmt.Errorf("refusing to write %s content to a terminal; use --output or redirect stdout", contentType)
		}
		output = os.Stdout
	}

	if _, err := io.Copy(output, result.Content); err != nil {
		return fmt.Errorf("writing content: %w", err)
	}
	return nil
}

func runInfo(args []string) error {
	var conn connection
	var jsonOutput bool
	flags := newFlagSet("info")
	conn.addFlags(flags)
	flags.BoolVar(&jsonOutput, "json", false, "emit metadata as JSON")
	if err := flags.Parse(args); err != nil {
		return flagError(err)
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("ref argument required\n\nUsage: datapress-artifact info <ref> [flags]")
	}

	store, err := conn.open()
	if err != nil {
		return err
	}

	meta, err := store.Info(context.Background(), flags.Arg(0))
	if err != nil {
		return err
	}

	if jsonOutput {
		return emitJSON(meta)
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Ref:\t%s\n", meta.Ref)
	fmt.Fprintf(writer, "Hash:\t%s\n", meta.Hash)
	if meta.Name != "" {
		fmt.Fprintf(writer, "Name:\t%s\n", meta.Name)
	}
	fmt.Fprintf(writer, "Content-Type:\t%s\n", meta.ContentType)
	fmt.Fprintf(writer, "Size:\t%s (%d bytes)\n", formatSize(meta.Size), meta.Size)
	if meta.Filename != "" {
		fmt.Fprintf(writer, "Filename:\t%s\n", meta.Filename)
	}
	if meta.Description != "" {
		fmt.Fprintf(writer, "Description:\t%s\n", meta.Description)
	}
	if len(meta.Labels) > 0 {
		fmt.Fprintf(writer, "Labels:\t%s\n", strings.Join(meta.Labels, ", "))
	}
	if meta.Workflow != "" {
		fmt.Fprintf(writer, "Workflow:\t%s\n", meta.Workflow)
	}
	if meta.RunID != "" {
		fmt.Fprintf(writer, "Run:\t%s\n", meta.RunID)
	}
	fmt.Fprintf(writer, "Compression:\t%s (%s on disk)\n", meta.Compression, formatSize(meta.StoredSize))
	fmt.Fprintf(writer, "Stored:\t%s\n", meta.StoredAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	writer.Flush()
	return nil
}

func runExists(args []string) error {
	var conn connection
	var jsonOutput bool
	flags := newFlagSet("exists")
	conn.addFlags(flags)
	flags.BoolVar(&jsonOutput, "json", false, "emit the exists response as JSON")
	if err := flags.Parse(args); err != nil {
		return flagError(err)
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("ref argument required\n\nUsage: datapress-artifact exists <ref> [flags]")
	}

	store, err := conn.open()
	if err != nil {
		return err
	}

	response, err := store.Exists(context.Background(), flags.Arg(0))
	if err != nil {
		return err
	}

	if jsonOutput {
		return emitJSON(response)
	}

	if response.Exists {
		fmt.Println(response.Ref)
		return nil
	}
	fmt.Fprintf(os.Stderr, "not found: %s\n", flags.Arg(0))
	return &exitError{code: 1}
}

func runResolve(args []string) error {
	var conn connection
	var jsonOutput bool
	flags := newFlagSet("resolve")
	conn.addFlags(flags)
	flags.BoolVar(&jsonOutput, "json", false, "emit the resolve response as JSON")
	if err := flags.Parse(args); err != nil {
		return flagError(err)
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("ref argument required\n\nUsage: datapress-artifact resolve <ref> [flags]")
	}

	store, err := conn.open()
	if err != nil {
		return err
	}

	response, err := store.Resolve(context.Background(), flags.Arg(0))
	if err != nil {
		return err
	}

	if jsonOutput {
		return emitJSON(response)
	}

	// The full hash is the stable scripting identity; short refs and
	// tag names both resolve to it.
	fmt.Println(response.Hash)
	return nil
}

func runList(args []string) error {
	var conn connection
	var (
		name        string
		label       string
		contentType string
		limit       int
		offset      int
		jsonOutput  bool
	)
	flags := newFlagSet("list")
	conn.addFlags(flags)
	flags.StringVar(&name, "name", "", "filter by publish name")
	flags.StringVar(&label, "label", "", "filter by label")
	flags.StringVar(&contentType, "content-type", "", "filter by content type")
	flags.IntVar(&limit, "limit", 0, "maximum results (0 means no limit)")
	flags.IntVar(&offset, "offset", 0, "skip this many results")
	flags.BoolVar(&jsonOutput, "json", false, "emit the list response as JSON")
	if err := flags.Parse(args); err != nil {
		return flagError(err)
	}

	store, err := conn.open()
	if err != nil {
		return err
	}

	response, err := store.List(context.Background(), &artifact.ListRequest{
		Name:        name,
		Label:       label,
		ContentType: contentType,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return emitJSON(response)
	}

	if len(response.Artifacts) == 0 {
		fmt.Println("No artifacts found.")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "REF\tNAME\tSIZE\tTYPE\tSTORED\n")
	for _, entry := range response.Artifacts {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			entry.Ref,
			entry.Name,
			formatSize(entry.Size),
			entry.ContentType,
			entry.StoredAt.UTC().Format("2006-01-02 15:04"),
		)
	}
	writer.Flush()

	if response.Total > len(response.Artifacts) {
		fmt.Fprintf(os.Stderr, "\nShowing %d of %d artifacts.\n",
			len(response.Artifacts), response.Total)
	}
	return nil
}

func runTag(args []string) error {
	var conn connection
	var (
		optimistic bool
		expected   string
		jsonOutput bool
	)
	flags := newFlagSet("tag")
	conn.addFlags(flags)
	flags.BoolVar(&optimistic, "optimistic", false, "overwrite an existing tag without a compare-and-swap check")
	flags.StringVar(&expected, "expected", "", "expected current target hash (compare-and-swap update)")
	flags.BoolVar(&jsonOutput, "json", false, "emit the tag response as JSON")
	if err := flags.Parse(args); err != nil {
		return flagError(err)
	}
	if flags.NArg() != 2 {
		return fmt.Errorf("name and ref arguments required\n\nUsage: datapress-artifact tag <name> <ref> [flags]")
	}

	store, err := conn.open()
	if err != nil {
		return err
	}

	response, err := store.Tag(context.Background(), &artifact.TagRequest{
		Name:             flags.Arg(0),
		Ref:              flags.Arg(1),
		Optimistic:       optimistic,
		ExpectedPrevious: expected,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return emitJSON(response)
	}

	fmt.Printf("%s → %s\n", response.Name, response.Ref)
	return nil
}

func runTags(args []string) error {
	var conn connection
	var (
		prefix     string
		jsonOutput bool
	)
	flags := newFlagSet("tags")
	conn.addFlags(flags)
	flags.StringVar(&prefix, "prefix", "", "filter tags by name prefix")
	flags.BoolVar(&jsonOutput, "json", false, "emit the tags response as JSON")
	if err := flags.Parse(args); err != nil {
		return flagError(err)
	}

	store, err := conn.open()
	if err != nil {
		return err
	}

	response, err := store.Tags(context.Background(), prefix)
	if err != nil {
		return err
	}

	if jsonOutput {
		return emitJSON(response)
	}

	if len(response.Tags) == 0 {
		fmt.Println("No tags found.")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "NAME\tREF\n")
	for _, record := range response.Tags {
		fmt.Fprintf(writer, "%s\t%s\n", record.Name, artifact.FormatRef(record.Target))
	}
	writer.Flush()
	return nil
}

func runDeleteTag(args []string) error {
	var conn connection
	flags := newFlagSet("delete-tag")
	conn.addFlags(flags)
	if err := flags.Parse(args); err != nil {
		return flagError(err)
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("tag name required\n\nUsage: datapress-artifact delete-tag <name> [flags]")
	}

	store, err := conn.open()
	if err != nil {
		return err
	}

	response, err := store.DeleteTag(context.Background(), flags.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("deleted: %s\n", response.Deleted)
	return nil
}

func runStatus(args []string) error {
	var conn connection
	var jsonOutput bool
	flags := newFlagSet("status")
	conn.addFlags(flags)
	flags.BoolVar(&jsonOutput, "json", false, "emit the status response as JSON")
	if err := flags.Parse(args); err != nil {
		return flagError(err)
	}

	// The status action is unauthenticated; build the socket client
	// directly so a missing token file does not block a liveness
	// check.
	var store artifactAPI
	if conn.socket != "" {
		store = artifact.NewClientFromToken(conn.socket, nil)
	} else {
		opened, err := conn.open()
		if err != nil {
			return err
		}
		store = opened
	}

	var response *artifact.StatusResponse
	switch api := store.(type) {
	case *artifact.Client:
		status, err := api.Status(context.Background())
		if err != nil {
			return err
		}
		response = status
	case *artifact.Local:
		artifacts, tags := api.Counts()
		response = &artifact.StatusResponse{
			Version:   version.Info(),
			Artifacts: artifacts,
			Tags:      tags,
		}
	}

	if jsonOutput {
		return emitJSON(response)
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Version:\t%s\n", response.Version)
	if response.UptimeSeconds > 0 {
		fmt.Fprintf(writer, "Uptime:\t%ds\n", response.UptimeSeconds)
	}
	fmt.Fprintf(writer, "Artifacts:\t%d\n", response.Artifacts)
	fmt.Fprintf(writer, "Tags:\t%d\n", response.Tags)
	writer.Flush()
	return nil
}
