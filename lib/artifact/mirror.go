// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MirrorConfig describes an S3-compatible endpoint that receives a
// copy of every stored artifact. The mirror is an off-host backup:
// uploads are best-effort and never gate the local store.
type MirrorConfig struct {
	// Endpoint is the S3 host:port, without a scheme.
	Endpoint string

	// AccessKey and SecretKey authenticate against the endpoint.
	AccessKey string
	SecretKey string

	// Region for bucket creation. Defaults to us-east-1 when empty.
	Region string

	// UseSSL enables TLS to the endpoint.
	UseSSL bool

	// Bucket receives the mirrored objects.
	Bucket string
}

// Validate checks that the config names a usable endpoint.
func (c MirrorConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("mirror endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("mirror endpoint must not include a scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("mirror access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("mirror secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("mirror bucket is required")
	}
	return nil
}

// Mirror uploads artifact objects to an S3-compatible store. Objects
// are keyed by their content hash under an objects/ prefix, so mirror
// writes are idempotent and uploads of deduplicated content overwrite
// with identical bytes.
type Mirror struct {
	client *minio.Client
	bucket string
	region string
}

// NewMirror creates a mirror client for the configured endpoint. The
// endpoint is not contacted until EnsureBucket or Upload.
func NewMirror(cfg MirrorConfig) (*Mirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    region,
		Transport: mirrorTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating mirror client for %s: %w", cfg.Endpoint, err)
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		region: region,
	}, nil
}

// EnsureBucket creates the mirror bucket if it does not exist.
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("checking mirror bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region})
	if err != nil {
		return fmt.Errorf("creating mirror bucket %s: %w", m.bucket, err)
	}
	return nil
}

// Upload copies an artifact's uncompressed content to the mirror. The
// object key is objects/<hash hex>; metadata rides as S3 user
// metadata so mirrored objects are identifiable without the local
// metadata store.
func (m *Mirror) Upload(ctx context.Context, meta *Metadata, content io.Reader) error {
	key := "objects/" + meta.Hash.String()
	options := minio.PutObjectOptions{
		ContentType: meta.ContentType,
		UserMetadata: map[string]string{
			"datapress-ref":  meta.Ref,
			"datapress-name": meta.Name,
		},
	}
	if meta.Workflow != "" {
		options.UserMetadata["datapress-workflow"] = meta.Workflow
	}
	if meta.RunID != "" {
		options.UserMetadata["datapress-run"] = meta.RunID
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, content, meta.Size, options)
	if err != nil {
		return fmt.Errorf("uploading %s to mirror: %w", key, err)
	}
	return nil
}

// Exists checks the mirror for an object by content hash.
func (m *Mirror) Exists(ctx context.Context, hash Hash) (bool, error) {
	key := "objects/" + hash.String()
	_, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		response := minio.ToErrorResponse(err)
		if response.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("checking mirror for %s: %w", key, err)
	}
	return true, nil
}

func mirrorTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
