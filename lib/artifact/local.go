// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bureau-foundation/datapress/lib/clock"
)

// Local combines the object store, metadata store, tag store, and ref
// index behind one API whose method shapes mirror [Client]. Callers
// that can reach the store directory directly (the runner publishing
// on the same machine, the CLI in --dir mode) use a Local; everything
// else goes through the artifact service, which wraps a Local behind
// its Unix socket.
//
// Local serializes writes internally. Reads are safe for concurrent
// use.
type Local struct {
	store    *Store
	metadata *MetadataStore
	tags     *TagStore
	refIndex *RefIndex
	clock    clock.Clock

	// writeMu serializes Store+Metadata+RefIndex+Tag updates as one
	// unit so a concurrent reader never sees an object without its
	// metadata.
	writeMu sync.Mutex
}

// OpenLocal opens (creating if necessary) the artifact store rooted at
// dir and loads the tag and ref indexes. A nil clk defaults to the
// real clock; tests inject a fake.
func OpenLocal(dir string, clk clock.Clock) (*Local, error) {
	if clk == nil {
		clk = clock.Real()
	}

	store, err := NewStore(dir)
	if err != nil {
		return nil, err
	}

	metadata, err := NewMetadataStore(metadataRoot(dir))
	if err != nil {
		return nil, err
	}

	tags, err := NewTagStore(tagRoot(dir))
	if err != nil {
		return nil, err
	}

	refIndex := NewRefIndex()
	refMap, err := metadata.ScanRefs()
	if err != nil {
		return nil, fmt.Errorf("building ref index: %w", err)
	}
	refIndex.Build(refMap)

	return &Local{
		store:    store,
		metadata: metadata,
		tags:     tags,
		refIndex: refIndex,
		clock:    clk,
	}, nil
}

// metadataRoot returns the metadata directory for a store root.
func metadataRoot(dir string) string { return filepath.Join(dir, "metadata") }

// tagRoot returns the tag directory for a store root.
func tagRoot(dir string) string { return filepath.Join(dir, "tags") }

// Store ingests artifact content and records its metadata. Content
// comes from request.Data when set, otherwise from the content reader.
// When request.Name is set, the name's tag is moved to the new object
// unconditionally: publishing always makes the name resolve to the
// most recent artifact.
//
// The context is accepted for signature parity with [Client.Store];
// local writes are filesystem-bound and do not block on it.
func (l *Local) Store(ctx context.Context, request *StoreRequest, content io.Reader) (*StoreResponse, error) {
	var reader io.Reader
	switch {
	case request.Data != nil:
		reader = bytes.NewReader(request.Data)
	case content != nil:
		reader = content
	default:
		return nil, fmt.Errorf("store request carries no content")
	}

	var compressionOverride *CompressionTag
	if request.Compression != "" {
		tag, err := ParseCompressionTag(request.Compression)
		if err != nil {
			return nil, err
		}
		compressionOverride = &tag
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	result, err := l.store.Write(reader, request.ContentType, compressionOverride)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		Hash:        result.Hash,
		Ref:         result.Ref,
		Name:        request.Name,
		ContentType: request.ContentType,
		Filename:    request.Filename,
		Description: request.Description,
		Labels:      request.Labels,
		Workflow:    request.Workflow,
		RunID:       request.RunID,
		Size:        result.Size,
		StoredSize:  result.StoredSize,
		Compression: result.Compression.String(),
		StoredAt:    l.clock.Now(),
	}
	if err := l.metadata.Write(meta); err != nil {
		return nil, fmt.Errorf("persisting metadata: %w", err)
	}
	l.refIndex.Add(result.Hash)

	if request.Name != "" {
		if err := l.tags.Set(request.Name, result.Hash, nil, true, l.clock.Now()); err != nil {
			return nil, fmt.Errorf("tagging %q: %w", request.Name, err)
		}
	}

	return &StoreResponse{
		Ref:          result.Ref,
		Hash:         FormatHash(result.Hash),
		Size:         result.Size,
		StoredSize:   result.StoredSize,
		Compression:  result.Compression.String(),
		Deduplicated: result.Deduplicated,
	}, nil
}

// Resolve maps any reference form to a full object hash.
func (l *Local) Resolve(ctx context.Context, ref string) (*ResolveResponse, error) {
	hash, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}
	return &ResolveResponse{
		Ref:  FormatRef(hash),
		Hash: FormatHash(hash),
	}, nil
}

// resolve maps any reference form to a full object hash. Three forms
// are accepted, tried in order: a 64-char hex hash, a short art- ref,
// and a tag name.
func (l *Local) resolve(ref string) (Hash, error) {
	if len(ref) == 64 && isHex(ref) {
		hash, err := ParseHash(ref)
		if err != nil {
			return Hash{}, err
		}
		if !l.store.Exists(hash) {
			return Hash{}, fmt.Errorf("artifact %s not found", FormatRef(hash))
		}
		return hash, nil
	}

	if strings.HasPrefix(ref, RefPrefix) {
		return l.refIndex.Resolve(ref)
	}

	if record, exists := l.tags.Get(ref); exists {
		return record.Target, nil
	}
	return Hash{}, fmt.Errorf("no artifact or tag named %q", ref)
}

// FetchResult holds the metadata and content from a fetch operation.
// The caller MUST close Content when done; for socket fetches this
// releases the underlying connection.
type FetchResult struct {
	Response FetchResponse
	Content  io.ReadCloser
}

// Fetch loads an artifact by reference. The content has already been
// decompressed and hash-verified when this returns.
func (l *Local) Fetch(ctx context.Context, ref string) (*FetchResult, error) {
	hash, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}

	meta, err := l.metadata.Read(hash)
	if err != nil {
		return nil, err
	}

	content, err := l.store.ReadContent(hash)
	if err != nil {
		return nil, err
	}

	return &FetchResult{
		Response: FetchResponse{
			Size:        int64(len(content)),
			ContentType: meta.ContentType,
			Filename:    meta.Filename,
			Hash:        FormatHash(hash),
			Compression: meta.Compression,
		},
		Content: io.NopCloser(bytes.NewReader(content)),
	}, nil
}

// Exists reports whether a reference resolves to a stored artifact.
func (l *Local) Exists(ctx context.Context, ref string) (*ExistsResponse, error) {
	hash, err := l.resolve(ref)
	if err != nil {
		return &ExistsResponse{Exists: false}, nil
	}
	return &ExistsResponse{
		Exists: true,
		Ref:    FormatRef(hash),
		Hash:   FormatHash(hash),
	}, nil
}

// Info returns the full metadata record for a reference.
func (l *Local) Info(ctx context.Context, ref string) (*Metadata, error) {
	hash, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}
	return l.metadata.Read(hash)
}

// List returns metadata records matching the request filters, newest
// first.
func (l *Local) List(ctx context.Context, request *ListRequest) (*ListResponse, error) {
	all, err := l.metadata.ScanAll()
	if err != nil {
		return nil, err
	}

	var matched []Metadata
	for _, meta := range all {
		if request.Name != "" && meta.Name != request.Name {
			continue
		}
		if request.ContentType != "" && meta.ContentType != request.ContentType {
			continue
		}
		if request.Label != "" && !hasLabel(meta.Labels, request.Label) {
			continue
		}
		matched = append(matched, meta)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StoredAt.After(matched[j].StoredAt)
	})

	total := len(matched)

	if request.Offset > 0 {
		if request.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[request.Offset:]
		}
	}
	if request.Limit > 0 && len(matched) > request.Limit {
		matched = matched[:request.Limit]
	}

	return &ListResponse{Artifacts: matched, Total: total}, nil
}

// Tag creates or moves a tag to the artifact named by request.Ref.
// When request.ExpectedPrevious is set (and Optimistic is false), the
// move is compare-and-swap against that reference's hash.
func (l *Local) Tag(ctx context.Context, request *TagRequest) (*TagResponse, error) {
	if request.Name == "" {
		return nil, fmt.Errorf("tag name is required")
	}

	target, err := l.resolve(request.Ref)
	if err != nil {
		return nil, err
	}

	var expectedPrevious *Hash
	if request.ExpectedPrevious != "" {
		previous, err := l.resolve(request.ExpectedPrevious)
		if err != nil {
			return nil, fmt.Errorf("resolving expected previous: %w", err)
		}
		expectedPrevious = &previous
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	var previousRef string
	if existing, exists := l.tags.Get(request.Name); exists {
		previousRef = FormatRef(existing.Target)
	}

	if err := l.tags.Set(request.Name, target, expectedPrevious, request.Optimistic, l.clock.Now()); err != nil {
		return nil, err
	}

	return &TagResponse{
		Name:     request.Name,
		Ref:      FormatRef(target),
		Hash:     FormatHash(target),
		Previous: previousRef,
	}, nil
}

// Tags lists tags by optional name prefix, sorted by name.
func (l *Local) Tags(ctx context.Context, prefix string) (*TagsResponse, error) {
	records := l.tags.List(prefix)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	return &TagsResponse{Tags: records}, nil
}

// DeleteTag removes a tag by name. The tagged object and its metadata
// are kept.
func (l *Local) DeleteTag(ctx context.Context, name string) (*DeleteTagResponse, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := l.tags.Delete(name); err != nil {
		return nil, err
	}
	return &DeleteTagResponse{Deleted: name}, nil
}

// Counts returns the number of indexed artifacts and tags, for status
// reporting.
func (l *Local) Counts() (artifacts, tags int) {
	return l.refIndex.Len(), l.tags.Len()
}

// hasLabel reports whether labels contains the given label.
func hasLabel(labels []string, label string) bool {
	for _, candidate := range labels {
		if candidate == label {
			return true
		}
	}
	return false
}

// isHex reports whether s consists only of lowercase or uppercase hex
// digits.
func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
