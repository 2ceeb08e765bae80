// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/datapress/lib/artifact"
	"github.com/bureau-foundation/datapress/lib/clock"
)

var serviceTime = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

// startService runs an ArtifactService over a real Unix socket and
// returns the socket path. The listener drains and the socket is
// removed when the test finishes.
func startService(t *testing.T, token []byte) string {
	t.Helper()

	dir := t.TempDir()
	clk := clock.Fake(serviceTime)
	local, err := artifact.OpenLocal(filepath.Join(dir, "store"), clk)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}

	as := &ArtifactService{
		local:     local,
		token:     token,
		clock:     clk,
		startedAt: clk.Now(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	socketPath := filepath.Join(dir, "artifact.sock")
	ctx, cancel := context.WithCancel(context.Background())

	var serveErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr = as.serve(ctx, socketPath)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		if serveErr != nil {
			t.Errorf("serve: %v", serveErr)
		}
	})

	waitForSocket(t, socketPath)
	return socketPath
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if t.Context().Err() != nil {
			t.Fatalf("socket %s did not appear before test context expired", path)
		}
		runtime.Gosched()
	}
}

func TestServiceStoreAndFetch(t *testing.T) {
	socketPath := startService(t, nil)
	client := artifact.NewClientFromToken(socketPath, nil)
	ctx := context.Background()

	content := []byte("Date;PM10;SO2\n01/07/2021;49;22\n")
	stored, err := client.Store(ctx, &artifact.StoreRequest{
		Name:        "preprocessed-air-quality-dataset",
		ContentType: "text/csv",
		Filename:    "air_quality_preprocessing.csv",
	}, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if stored.Size != int64(len(content)) {
		t.Errorf("stored size = %d, want %d", stored.Size, len(content))
	}
	if !strings.HasPrefix(stored.Ref, "art-") {
		t.Errorf("ref = %q, want art- prefix", stored.Ref)
	}

	// Fetch by the published name.
	result, err := client.Fetch(ctx, "preprocessed-air-quality-dataset")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer result.Content.Close()

	got, err := io.ReadAll(result.Content)
	if err != nil {
		t.Fatalf("reading fetched content: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("fetched content = %q, want %q", got, content)
	}
	if result.Response.ContentType != "text/csv" {
		t.Errorf("content type = %q, want text/csv", result.Response.ContentType)
	}
	if result.Response.Filename != "air_quality_preprocessing.csv" {
		t.Errorf("filename = %q, want air_quality_preprocessing.csv", result.Response.Filename)
	}
	if result.Response.Hash != stored.Hash {
		t.Errorf("fetch hash = %q, want %q", result.Response.Hash, stored.Hash)
	}
}

func TestServiceStreamedRoundTrip(t *testing.T) {
	socketPath := startService(t, nil)
	client := artifact.NewClientFromToken(socketPath, nil)
	ctx := context.Background()

	// Larger than the embed threshold on both legs: the client
	// streams the upload in chunked frames, the service streams the
	// download as sized raw bytes.
	content := make([]byte, artifact.SmallArtifactThreshold*3+17)
	for i := range content {
		content[i] = byte(i % 251)
	}

	stored, err := client.Store(ctx, &artifact.StoreRequest{
		Name:        "bulk",
		ContentType: "application/octet-stream",
	}, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if stored.Size != int64(len(content)) {
		t.Errorf("stored size = %d, want %d", stored.Size, len(content))
	}

	result, err := client.Fetch(ctx, stored.Ref)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer result.Content.Close()

	if result.Response.Size != int64(len(content)) {
		t.Errorf("fetch size = %d, want %d", result.Response.Size, len(content))
	}
	got, err := io.ReadAll(result.Content)
	if err != nil {
		t.Fatalf("reading streamed content: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("streamed content mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

func TestServiceAuthentication(t *testing.T) {
	token := []byte("a-very-secret-service-token")
	socketPath := startService(t, token)
	ctx := context.Background()

	authed := artifact.NewClientFromToken(socketPath, token)
	if _, err := authed.Store(ctx, &artifact.StoreRequest{
		Name:        "ok",
		ContentType: "text/plain",
	}, strings.NewReader("hello")); err != nil {
		t.Fatalf("Store with valid token: %v", err)
	}

	anonymous := artifact.NewClientFromToken(socketPath, nil)
	_, err := anonymous.Exists(ctx, "ok")
	if err == nil {
		t.Fatal("expected access denied for missing token")
	}
	if !strings.Contains(err.Error(), "access denied") {
		t.Errorf("error = %q, want access denied", err)
	}

	wrong := artifact.NewClientFromToken(socketPath, []byte("wrong-token"))
	_, err = wrong.Fetch(ctx, "ok")
	if err == nil {
		t.Fatal("expected access denied for wrong token")
	}
	if !strings.Contains(err.Error(), "access denied") {
		t.Errorf("error = %q, want access denied", err)
	}

	// Status stays open without a token.
	status, err := anonymous.Status(ctx)
	if err != nil {
		t.Fatalf("Status without token: %v", err)
	}
	if status.Artifacts != 1 {
		t.Errorf("status artifacts = %d, want 1", status.Artifacts)
	}
	if status.Version == "" {
		t.Error("status version is empty")
	}
}

func TestServiceTagLifecycle(t *testing.T) {
	socketPath := startService(t, nil)
	client := artifact.NewClientFromToken(socketPath, nil)
	ctx := context.Background()

	stored, err := client.Store(ctx, &artifact.StoreRequest{
		ContentType: "text/csv",
	}, strings.NewReader("a;b\n1;2\n"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	tagged, err := client.Tag(ctx, &artifact.TagRequest{
		Name: "datasets/staging",
		Ref:  stored.Ref,
	})
	if err != nil {
		t.Fatalf("Tag: %v", err)
	}
	if tagged.Ref != stored.Ref {
		t.Errorf("tag ref = %q, want %q", tagged.Ref, stored.Ref)
	}

	resolved, err := client.Resolve(ctx, "datasets/staging")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Hash != stored.Hash {
		t.Errorf("resolved hash = %q, want %q", resolved.Hash, stored.Hash)
	}

	tags, err := client.Tags(ctx, "datasets/")
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(tags.Tags) != 1 || tags.Tags[0].Name != "datasets/staging" {
		t.Errorf("tags = %+v, want one entry named datasets/staging", tags.Tags)
	}

	deleted, err := client.DeleteTag(ctx, "datasets/staging")
	if err != nil {
		t.Fatalf("DeleteTag: %v", err)
	}
	if deleted.Deleted != "datasets/staging" {
		t.Errorf("deleted = %q, want datasets/staging", deleted.Deleted)
	}

	if _, err := client.Resolve(ctx, "datasets/staging"); err == nil {
		t.Fatal("expected resolve to fail after tag deletion")
	}
}

func TestServiceListAndInfo(t *testing.T) {
	socketPath := startService(t, nil)
	client := artifact.NewClientFromToken(socketPath, nil)
	ctx := context.Background()

	first, err := client.Store(ctx, &artifact.StoreRequest{
		Name:        "preprocessed-air-quality-dataset",
		ContentType: "text/csv",
		Labels:      []string{"run:run-0001"},
	}, strings.NewReader("a;b\n1;2\n"))
	if err != nil {
		t.Fatalf("Store first: %v", err)
	}
	if _, err := client.Store(ctx, &artifact.StoreRequest{
		Name:        "docs",
		ContentType: "text/plain",
	}, strings.NewReader("readme")); err != nil {
		t.Fatalf("Store second: %v", err)
	}

	listed, err := client.List(ctx, &artifact.ListRequest{Name: "preprocessed-air-quality-dataset"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if listed.Total != 1 {
		t.Fatalf("list total = %d, want 1", listed.Total)
	}
	if listed.Artifacts[0].Ref != first.Ref {
		t.Errorf("listed ref = %q, want %q", listed.Artifacts[0].Ref, first.Ref)
	}

	meta, err := client.Info(ctx, first.Ref)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if meta.Name != "preprocessed-air-quality-dataset" {
		t.Errorf("info name = %q, want preprocessed-air-quality-dataset", meta.Name)
	}
	if len(meta.Labels) != 1 || meta.Labels[0] != "run:run-0001" {
		t.Errorf("info labels = %v, want [run:run-0001]", meta.Labels)
	}
	if !meta.StoredAt.Equal(serviceTime) {
		t.Errorf("info stored_at = %v, want %v", meta.StoredAt, serviceTime)
	}

	exists, err := client.Exists(ctx, "docs")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists.Exists {
		t.Error("exists = false for stored artifact")
	}

	missing, err := client.Exists(ctx, "never-stored")
	if err != nil {
		t.Fatalf("Exists (missing): %v", err)
	}
	if missing.Exists {
		t.Error("exists = true for unknown reference")
	}
}

func TestServiceFetchNotFound(t *testing.T) {
	socketPath := startService(t, nil)
	client := artifact.NewClientFromToken(socketPath, nil)

	_, err := client.Fetch(context.Background(), "no-such-artifact")
	if err == nil {
		t.Fatal("expected error for unknown reference")
	}
	if !artifact.IsNotFound(err) {
		t.Errorf("IsNotFound = false for %q", err)
	}
}

func TestServiceUnknownAction(t *testing.T) {
	socketPath := startService(t, nil)

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := artifact.WriteMessage(conn, map[string]string{"action": "transmogrify"}); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	var response artifact.ErrorResponse
	if err := artifact.ReadMessage(conn, &response); err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if !strings.Contains(response.Error, "unknown action") {
		t.Errorf("error = %q, want unknown action", response.Error)
	}
}

func TestServiceMissingAction(t *testing.T) {
	socketPath := startService(t, nil)

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := artifact.WriteMessage(conn, map[string]string{"ref": "art-000000000000"}); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	var response artifact.ErrorResponse
	if err := artifact.ReadMessage(conn, &response); err != nil {
		t.Fatalf("reading response: %v", err)
	}
	if !strings.Contains(response.Error, "missing required field: action") {
		t.Errorf("error = %q, want missing action", response.Error)
	}
}
