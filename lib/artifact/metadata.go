// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/datapress/lib/codec"
)

// Metadata holds per-artifact details that supplement the stored
// object. Written when an artifact is published, read on fetch (to
// populate FetchResponse.ContentType and Filename) and on info (to
// return the full record to the client).
//
// The object file holds the physical payload; this struct holds the
// application-level record: the publish name, content type, and the
// provenance of the run that produced the artifact.
//
// Metadata crosses both serialization formats: CBOR for the sidecar
// files and socket protocol, JSON for CLI output. Per the lib/codec
// tag rules it therefore carries json tags only.
type Metadata struct {
	Hash        Hash      `json:"hash"`
	Ref         string    `json:"ref"`
	Name        string    `json:"name,omitempty"`
	ContentType string    `json:"content_type"`
	Filename    string    `json:"filename,omitempty"`
	Description string    `json:"description,omitempty"`
	Labels      []string  `json:"labels,omitempty"`
	Workflow    string    `json:"workflow,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
	Size        int64     `json:"size"`
	StoredSize  int64     `json:"stored_size"`
	Compression string    `json:"compression"`
	StoredAt    time.Time `json:"stored_at"`
}

// MetadataStore persists per-artifact metadata as sharded CBOR files
// on disk. Each metadata file is keyed by the artifact's object hash,
// using the same two-level sharding as the object files:
//
//	<root>/<hex[:2]>/<hex[2:4]>/<hash>.cbor
//
// MetadataStore is safe for concurrent reads. Writes must be
// serialized by the caller.
type MetadataStore struct {
	root string
}

// NewMetadataStore creates a MetadataStore rooted at the given
// directory. Creates the directory if it does not exist.
func NewMetadataStore(root string) (*MetadataStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating metadata directory %s: %w", root, err)
	}
	return &MetadataStore{root: root}, nil
}

// Write atomically persists metadata to disk. The file is written to a
// temporary location first, then renamed to the final sharded path, so
// readers never see a partially-written file.
func (m *MetadataStore) Write(meta *Metadata) error {
	data, err := codec.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding artifact metadata: %w", err)
	}

	finalPath := m.path(meta.Hash)

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating metadata shard directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(m.root, "metadata-*.cbor")
	if err != nil {
		return fmt.Errorf("creating temp metadata file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing metadata: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp metadata file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming metadata to %s: %w", finalPath, err)
	}

	success = true
	return nil
}

// Read loads metadata for the given object hash. Returns an error
// wrapping os.ErrNotExist if no metadata has been stored for this
// artifact.
func (m *MetadataStore) Read(hash Hash) (*Metadata, error) {
	data, err := os.ReadFile(m.path(hash))
	if err != nil {
		return nil, fmt.Errorf("reading metadata for %s: %w", FormatRef(hash), err)
	}

	var meta Metadata
	if err := codec.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", FormatRef(hash), err)
	}
	return &meta, nil
}

// Delete removes the metadata file for the given object hash. Returns
// nil if the file was removed or did not exist.
func (m *MetadataStore) Delete(hash Hash) error {
	if err := os.Remove(m.path(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing metadata for %s: %w", FormatRef(hash), err)
	}
	return nil
}

// ScanRefs walks the metadata directory and returns a mapping from
// short artifact references to their full object hashes. This reads
// only filenames, never file contents: the hash is recovered from the
// filename and the ref computed via FormatRef.
//
// The returned map uses slices as values to handle the unlikely case
// where multiple distinct hashes share the same 12-hex-char ref
// prefix. Called once at startup to build the in-memory ref index.
func (m *MetadataStore) ScanRefs() (map[string][]Hash, error) {
	result := make(map[string][]Hash)

	err := filepath.WalkDir(m.root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".cbor") {
			return nil
		}

		hexString := strings.TrimSuffix(name, ".cbor")
		hash, err := ParseHash(hexString)
		if err != nil {
			// Not a metadata file (e.g. a temp file left by a
			// crash). Skip it.
			return nil
		}

		ref := FormatRef(hash)
		result[ref] = append(result[ref], hash)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning metadata directory: %w", err)
	}

	return result, nil
}

// ScanAll walks the metadata directory, decodes every metadata file,
// and returns all records. Unlike ScanRefs this opens every file; it
// backs the list operation, which is fine at datapress scale (one
// record per published dataset version).
func (m *MetadataStore) ScanAll() ([]Metadata, error) {
	var results []Metadata

	err := filepath.WalkDir(m.root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".cbor") {
			return nil
		}

		// Skip files whose name is not a hash (temp files).
		hexString := strings.TrimSuffix(name, ".cbor")
		if _, err := ParseHash(hexString); err != nil {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading metadata %s: %w", path, err)
		}

		var meta Metadata
		if err := codec.Unmarshal(data, &meta); err != nil {
			return fmt.Errorf("decoding metadata %s: %w", path, err)
		}

		results = append(results, meta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning metadata directory: %w", err)
	}

	return results, nil
}

// path returns the sharded filesystem path for a metadata file.
func (m *MetadataStore) path(hash Hash) string {
	hex := FormatHash(hash)
	return filepath.Join(m.root, hex[:2], hex[2:4], hex+".cbor")
}
