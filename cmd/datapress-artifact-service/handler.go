// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/datapress/lib/artifact"
	"github.com/bureau-foundation/datapress/lib/codec"
	"github.com/bureau-foundation/datapress/lib/service"
	"github.com/bureau-foundation/datapress/lib/version"
)

// Connection timeout constants.
const (
	// readTimeout is how long we wait for the client to send its
	// initial CBOR message. A well-behaved client sends the request
	// immediately after connecting.
	readTimeout = 30 * time.Second

	// writeTimeout is how long we wait for a control message (error
	// responses, simple action results) to be written. Not used for
	// binary data streaming; those paths remove the deadline.
	writeTimeout = 10 * time.Second

	// mirrorTimeout bounds a single best-effort mirror upload.
	mirrorTimeout = 60 * time.Second
)

// serve starts accepting connections on the Unix socket and
// dispatches requests. Blocks until ctx is cancelled, then stops
// accepting new connections and waits for active handlers to
// complete.
func (as *ArtifactService) serve(ctx context.Context, socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	as.logger.Info("artifact socket listening", "path", socketPath)

	var activeConnections sync.WaitGroup

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			as.logger.Error("accept failed", "error", err)
			continue
		}

		activeConnections.Add(1)
		go func() {
			defer activeConnections.Done()
			as.handleConnection(ctx, conn)
		}()
	}

	activeConnections.Wait()
	return nil
}

// handleConnection processes one client request on a connection. The
// first message determines the action, and the handler manages the
// rest of the connection lifecycle (including binary streaming for
// store/fetch).
func (as *ArtifactService) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Read the first message. This is always a length-prefixed CBOR
	// message containing at minimum an "action" field.
	raw, err := artifact.ReadRawMessage(conn)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return
		}
		as.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	// Extract the action and token fields for routing and auth.
	var header struct {
		Action string `json:"action"`
		Token  []byte `json:"token"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		as.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		as.writeError(conn, "missing required field: action")
		return
	}

	// Status is unauthenticated: a pure liveness check that reveals
	// only version, uptime, and counts.
	if header.Action == artifact.ActionStatus {
		as.handleStatus(conn)
		return
	}

	if !as.authenticate(conn, header.Token) {
		return
	}

	switch header.Action {
	case artifact.ActionStore:
		as.handleStore(ctx, conn, raw)
	case artifact.ActionFetch:
		as.handleFetch(ctx, conn, raw)
	case artifact.ActionExists:
		as.handleExists(ctx, conn, raw)
	case artifact.ActionInfo:
		as.handleInfo(ctx, conn, raw)
	case artifact.ActionResolve:
		as.handleResolve(ctx, conn, raw)
	case artifact.ActionList:
		as.handleList(ctx, conn, raw)
	case artifact.ActionTag:
		as.handleTag(ctx, conn, raw)
	case artifact.ActionTags:
		as.handleTags(ctx, conn, raw)
	case artifact.ActionDeleteTag:
		as.handleDeleteTag(ctx, conn, raw)
	default:
		as.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
	}
}

// authenticate verifies the shared-secret token carried in the
// request. On failure, writes an error response to conn and returns
// false. When the service runs without a token file, every request
// passes.
func (as *ArtifactService) authenticate(conn net.Conn, provided []byte) bool {
	if as.token == nil {
		return true
	}
	if !service.VerifyToken(as.token, provided) {
		as.writeError(conn, "access denied: invalid or missing service token")
		return false
	}
	return true
}

// --- Store action ---

func (as *ArtifactService) handleStore(ctx context.Context, conn net.Conn, raw []byte) {
	var request artifact.StoreRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		as.writeError(conn, fmt.Sprintf("invalid store request: %v", err))
		return
	}

	var content io.Reader
	if request.Data == nil {
		// Large artifact: binary data follows the envelope. Remove
		// the read deadline; streaming can take a long time.
		conn.SetReadDeadline(time.Time{})
		content = artifact.DataReader(conn, request.Size)
	}

	response, err := as.local.Store(ctx, &request, content)
	if err != nil {
		as.writeError(conn, fmt.Sprintf("store failed: %v", err))
		return
	}

	as.logger.Info("artifact stored",
		"ref", response.Ref,
		"name", request.Name,
		"size", response.Size,
		"stored_size", response.StoredSize,
		"compression", response.Compression,
		"deduplicated", response.Deduplicated,
	)

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := artifact.WriteMessage(conn, response); err != nil {
		as.logger.Debug("failed to write store response", "error", err)
	}

	if as.mirror != nil {
		as.mirrorStored(ctx, response.Hash)
	}
}

// mirrorStored uploads a just-stored object to the S3 mirror. Mirror
// failures are logged, never surfaced to the client: the local store
// is the source of truth and the mirror is best-effort.
func (as *ArtifactService) mirrorStored(ctx context.Context, hash string) {
	meta, err := as.local.Info(ctx, hash)
	if err != nil {
		as.logger.Error("mirror: reading metadata", "hash", hash, "error", err)
		return
	}
	result, err := as.local.Fetch(ctx, hash)
	if err != nil {
		as.logger.Error("mirror: reading content", "ref", meta.Ref, "error", err)
		return
	}
	defer result.Content.Close()

	uploadCtx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()
	if err := as.mirror.Upload(uploadCtx, meta, result.Content); err != nil {
		as.logger.Error("mirror upload failed", "ref", meta.Ref, "error", err)
		return
	}

	as.logger.Info("artifact mirrored", "ref", meta.Ref)
}

// --- Fetch action ---

func (as *ArtifactService) handleFetch(ctx context.Context, conn net.Conn, raw []byte) {
	var request artifact.FetchRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		as.writeError(conn, fmt.Sprintf("invalid fetch request: %v", err))
		return
	}

	result, err := as.local.Fetch(ctx, request.Ref)
	if err != nil {
		as.writeError(conn, err.Error())
		return
	}
	defer result.Content.Close()

	response := result.Response

	if response.Size <= artifact.SmallArtifactThreshold {
		// Small artifact: embed the content in the response.
		content, err := io.ReadAll(result.Content)
		if err != nil {
			as.writeError(conn, fmt.Sprintf("reading content: %v", err))
			return
		}
		response.Data = content
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := artifact.WriteMessage(conn, &response); err != nil {
			as.logger.Debug("failed to write fetch response", "error", err)
		}
		return
	}

	// Large artifact: send the response header with Data nil, then
	// exactly Size raw bytes.
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := artifact.WriteMessage(conn, &response); err != nil {
		as.logger.Debug("failed to write fetch response header", "error", err)
		return
	}

	// Remove the write deadline; streaming can take a long time.
	conn.SetWriteDeadline(time.Time{})
	if _, err := io.Copy(conn, result.Content); err != nil {
		as.logger.Error("fetch stream failed", "ref", request.Ref, "error", err)
		// The connection is committed to the binary protocol. The
		// client sees io.ErrUnexpectedEOF when the connection closes.
	}
}

// --- Simple actions ---

func (as *ArtifactService) handleExists(ctx context.Context, conn net.Conn, raw []byte) {
	var request artifact.ExistsRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		as.writeError(conn, fmt.Sprintf("invalid exists request: %v", err))
		return
	}

	response, err := as.local.Exists(ctx, request.Ref)
	if err != nil {
		as.writeError(conn, err.Error())
		return
	}
	as.writeResult(conn, response)
}

func (as *ArtifactService) handleInfo(ctx context.Context, conn net.Conn, raw []byte) {
	var request artifact.InfoRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		as.writeError(conn, fmt.Sprintf("invalid info request: %v", err))
		return
	}

	meta, err := as.local.Info(ctx, request.Ref)
	if err != nil {
		as.writeError(conn, err.Error())
		return
	}
	as.writeResult(conn, meta)
}

func (as *ArtifactService) handleResolve(ctx context.Context, conn net.Conn, raw []byte) {
	var request artifact.ResolveRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		as.writeError(conn, fmt.Sprintf("invalid resolve request: %v", err))
		return
	}
	if request.Ref == "" {
		as.writeError(conn, "missing required field: ref")
		return
	}

	response, err := as.local.Resolve(ctx, request.Ref)
	if err != nil {
		as.writeError(conn, err.Error())
		return
	}
	as.writeResult(conn, response)
}

func (as *ArtifactService) handleStatus(conn net.Conn) {
	artifacts, tags := as.local.Counts()
	uptime := as.clock.Now().Sub(as.startedAt)

	as.writeResult(conn, artifact.StatusResponse{
		Version:       version.Short(),
		UptimeSeconds: int64(uptime.Seconds()),
		Artifacts:     artifacts,
		Tags:          tags,
	})
}

// --- List action ---

func (as *ArtifactService) handleList(ctx context.Context, conn net.Conn, raw []byte) {
	var request artifact.ListRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		as.writeError(conn, fmt.Sprintf("invalid list request: %v", err))
		return
	}

	response, err := as.local.List(ctx, &request)
	if err != nil {
		as.writeError(conn, err.Error())
		return
	}
	as.writeResult(conn, response)
}

// --- Tag actions ---

func (as *ArtifactService) handleTag(ctx context.Context, conn net.Conn, raw []byte) {
	var request artifact.TagRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		as.writeError(conn, fmt.Sprintf("invalid tag request: %v", err))
		return
	}

	if request.Name == "" {
		as.writeError(conn, "missing required field: name")
		return
	}
	if request.Ref == "" {
		as.writeError(conn, "missing required field: ref")
		return
	}

	response, err := as.local.Tag(ctx, &request)
	if err != nil {
		as.writeError(conn, err.Error())
		return
	}

	as.logger.Info("tag set", "tag", request.Name, "ref", response.Ref)

	as.writeResult(conn, response)
}

func (as *ArtifactService) handleTags(ctx context.Context, conn net.Conn, raw []byte) {
	var request artifact.TagsRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		as.writeError(conn, fmt.Sprintf("invalid tags request: %v", err))
		return
	}

	response, err := as.local.Tags(ctx, request.Prefix)
	if err != nil {
		as.writeError(conn, err.Error())
		return
	}
	as.writeResult(conn, response)
}

func (as *ArtifactService) handleDeleteTag(ctx context.Context, conn net.Conn, raw []byte) {
	var request artifact.DeleteTagRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		as.writeError(conn, fmt.Sprintf("invalid delete-tag request: %v", err))
		return
	}

	if request.Name == "" {
		as.writeError(conn, "missing required field: name")
		return
	}

	response, err := as.local.DeleteTag(ctx, request.Name)
	if err != nil {
		as.writeError(conn, err.Error())
		return
	}

	as.logger.Info("tag deleted", "tag", request.Name)

	as.writeResult(conn, response)
}

// --- Wire helpers ---

// writeError sends an ErrorResponse to the client.
func (as *ArtifactService) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := artifact.WriteMessage(conn, artifact.ErrorResponse{Error: message}); err != nil {
		as.logger.Debug("failed to write error response", "error", err)
	}
}

// writeResult sends a success result to the client. The value is
// encoded directly as a CBOR message with no wrapping envelope.
func (as *ArtifactService) writeResult(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := artifact.WriteMessage(conn, result); err != nil {
		as.logger.Debug("failed to write result", "error", err)
	}
}
