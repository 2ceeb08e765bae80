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
	"syscall"
	"time"

	"github.com/bureau-foundation/datapress/lib/artifact"
	"github.com/bureau-foundation/datapress/lib/clock"
	"github.com/bureau-foundation/datapress/lib/process"
	"github.com/bureau-foundation/datapress/lib/service"
	"github.com/bureau-foundation/datapress/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")

	// Service-specific flags.
	var (
		storeDir       string
		socketPath     string
		tokenPath      string
		mirrorEndpoint string
		mirrorBucket   string
		mirrorRegion   string
		mirrorSSL      bool
	)
	flag.StringVar(&storeDir, "store-dir", "", "artifact store root directory (required)")
	flag.StringVar(&socketPath, "socket", "", "Unix socket path to listen on (required)")
	flag.StringVar(&tokenPath, "token-file", "", "service token file, created with a fresh token if missing (optional; unset disables authentication)")
	flag.StringVar(&mirrorEndpoint, "mirror-endpoint", "", "S3-compatible endpoint for off-host mirroring, host:port without scheme (optional)")
	flag.StringVar(&mirrorBucket, "mirror-bucket", "datapress-artifacts", "bucket name for mirrored artifacts")
	flag.StringVar(&mirrorRegion, "mirror-region", "", "mirror bucket region")
	flag.BoolVar(&mirrorSSL, "mirror-ssl", true, "use TLS for mirror connections")
	flag.Parse()

	if showVersion {
		fmt.Printf("datapress-artifact-service %s\n", version.Info())
		return nil
	}

	if storeDir == "" {
		return fmt.Errorf("--store-dir is required")
	}
	if socketPath == "" {
		return fmt.Errorf("--socket is required")
	}

	logger := service.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	// Open the artifact store and rebuild the in-memory indexes from
	// the metadata on disk.
	local, err := artifact.OpenLocal(storeDir, clk)
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}
	artifacts, tags := local.Counts()
	logger.Info("artifact store opened",
		"dir", storeDir,
		"artifacts", artifacts,
		"tags", tags,
	)

	// Load the shared-secret service token, minting one on first
	// start. Clients read the same file. Without a token file the
	// socket's filesystem permissions are the only access control.
	var token []byte
	if tokenPath != "" {
		loaded, generated, err := service.LoadOrCreateToken(tokenPath)
		if err != nil {
			return fmt.Errorf("loading service token: %w", err)
		}
		token = loaded
		if generated {
			logger.Info("service token generated", "path", tokenPath)
		} else {
			logger.Info("service token loaded", "path", tokenPath)
		}
	}

	// Optionally connect the S3 mirror. The local store is the source
	// of truth: an unreachable mirror logs an error and the service
	// runs without it.
	var mirror *artifact.Mirror
	if mirrorEndpoint != "" {
		mirror, err = artifact.NewMirror(artifact.MirrorConfig{
			Endpoint:  mirrorEndpoint,
			AccessKey: os.Getenv("DATAPRESS_MIRROR_ACCESS_KEY"),
			SecretKey: os.Getenv("DATAPRESS_MIRROR_SECRET_KEY"),
			Region:    mirrorRegion,
			UseSSL:    mirrorSSL,
			Bucket:    mirrorBucket,
		})
		if err != nil {
			return fmt.Errorf("configuring mirror: %w", err)
		}
		if err := mirror.EnsureBucket(ctx); err != nil {
			logger.Error("mirror unavailable, continuing without it",
				"endpoint", mirrorEndpoint,
				"error", err,
			)
			mirror = nil
		} else {
			logger.Info("mirror connected",
				"endpoint", mirrorEndpoint,
				"bucket", mirrorBucket,
			)
		}
	}

	artifactService := &ArtifactService{
		local:     local,
		token:     token,
		mirror:    mirror,
		clock:     clk,
		startedAt: clk.Now(),
		logger:    logger,
	}

	// Start the socket listener in a goroutine.
	socketDone := make(chan error, 1)
	go func() {
		socketDone <- artifactService.serve(ctx, socketPath)
	}()

	logger.Info("artifact service running",
		"socket", socketPath,
		"artifacts", artifacts,
		"tags", tags,
		"mirror", mirrorEndpoint,
	)

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	// Wait for the socket listener to drain active connections.
	if err := <-socketDone; err != nil {
		logger.Error("socket listener error", "error", err)
	}

	return nil
}

// ArtifactService is the core service state.
type ArtifactService struct {
	local  *artifact.Local
	token  []byte           // nil disables request authentication
	mirror *artifact.Mirror // nil when no mirror endpoint is configured
	clock  clock.Clock

	startedAt time.Time

	logger *slog.Logger
}
