// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Directory names within the store root.
const (
	objectDir = "objects"
	tmpDir    = "tmp"
)

// Object file format constants.
const (
	// objectVersion is the format version byte in the object magic.
	objectVersion = 1

	// objectHeaderSize is the fixed header: 8-byte magic + 1-byte
	// compression tag + 3 reserved bytes + 8-byte uncompressed size.
	// The reserved bytes keep the size field 4-byte aligned.
	objectHeaderSize = 20
)

// objectMagic is the 8-byte object file signature: "DPRESS" + version
// byte + reserved byte.
var objectMagic = [8]byte{'D', 'P', 'R', 'E', 'S', 'S', objectVersion, 0}

// Store manages the local object directory. It provides the write and
// read paths that tie hashing and compression to filesystem
// operations. Each object is a single self-describing file: a fixed
// header carrying the compression tag and uncompressed size, followed
// by the (possibly compressed) payload.
//
// The store is safe for concurrent reads but not concurrent writes to
// the same object. The caller (artifact service or runner) is
// responsible for serializing writes.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory. The
// directory structure is created if it does not exist.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, objectDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// WriteResult is returned by [Store.Write] with details about the
// stored object.
type WriteResult struct {
	// Hash is the object-domain BLAKE3 hash (the artifact identity).
	Hash Hash

	// Ref is the short artifact reference (art-<12 hex chars>).
	Ref string

	// Size is the uncompressed content size in bytes.
	Size int64

	// StoredSize is the payload size on disk after compression,
	// excluding the object header.
	StoredSize int64

	// Compression is the codec the payload was stored with. May be
	// CompressionNone even when another codec was requested, if the
	// content turned out to be incompressible.
	Compression CompressionTag

	// Deduplicated is true when an identical object was already
	// present and no new data was written.
	Deduplicated bool
}

// Write ingests content from r, compresses it, and writes it to disk
// as a single object. Returns details about the stored object.
//
// The contentType parameter drives compression auto-selection. Pass an
// empty string to always probe the content. If compressionOverride is
// non-nil, it overrides the auto-selected codec.
//
// Storing content that is already present is a no-op that returns the
// existing object's details with Deduplicated set.
func (s *Store) Write(r io.Reader, contentType string, compressionOverride *CompressionTag) (*WriteResult, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}

	if len(content) == 0 {
		return nil, fmt.Errorf("cannot store empty content")
	}

	hash := HashObject(content)

	// Dedup: same content produces the same hash, and the existing
	// object is identical by construction.
	if info, err := s.Stat(hash); err == nil {
		return &WriteResult{
			Hash:         hash,
			Ref:          FormatRef(hash),
			Size:         info.Size,
			StoredSize:   info.StoredSize,
			Compression:  info.Compression,
			Deduplicated: true,
		}, nil
	}

	var compression CompressionTag
	if compressionOverride != nil {
		compression = *compressionOverride
	} else {
		compression = SelectCompression(content, contentType)
	}

	payload, actualTag, err := compressWithFallback(content, compression)
	if err != nil {
		return nil, fmt.Errorf("compressing object: %w", err)
	}

	if err := s.writeObject(hash, payload, actualTag, int64(len(content))); err != nil {
		return nil, err
	}

	return &WriteResult{
		Hash:        hash,
		Ref:         FormatRef(hash),
		Size:        int64(len(content)),
		StoredSize:  int64(len(payload)),
		Compression: actualTag,
	}, nil
}

// WriteContent is a convenience wrapper that stores content from a
// byte slice.
func (s *Store) WriteContent(content []byte, contentType string) (*WriteResult, error) {
	return s.Write(bytes.NewReader(content), contentType, nil)
}

// Read loads an object, verifies its hash, and writes the uncompressed
// content to w. Returns the number of bytes written.
func (s *Store) Read(hash Hash, w io.Writer) (int64, error) {
	content, err := s.ReadContent(hash)
	if err != nil {
		return 0, err
	}
	written, err := w.Write(content)
	if err != nil {
		return int64(written), fmt.Errorf("writing object content: %w", err)
	}
	return int64(written), nil
}

// ReadContent loads an object into memory, decompresses it, and
// verifies that the content matches the requested hash before
// returning it. A hash mismatch means on-disk corruption and is always
// an error.
func (s *Store) ReadContent(hash Hash) ([]byte, error) {
	path := s.objectPath(hash)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %s not found in store: %w", FormatRef(hash), err)
		}
		return nil, fmt.Errorf("opening object %s: %w", FormatRef(hash), err)
	}
	defer file.Close()

	tag, size, err := readObjectHeader(file)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", FormatRef(hash), err)
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading object %s payload: %w", FormatRef(hash), err)
	}

	content, err := Decompress(payload, tag, int(size))
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", FormatRef(hash), err)
	}

	if actual := HashObject(content); actual != hash {
		return nil, fmt.Errorf("object %s failed verification: content hashes to %s",
			FormatRef(hash), FormatHash(actual))
	}

	return content, nil
}

// ObjectInfo describes a stored object without reading its payload.
type ObjectInfo struct {
	Hash        Hash
	Size        int64
	StoredSize  int64
	Compression CompressionTag
}

// Stat returns details about a stored object from its header. Returns
// an error wrapping os.ErrNotExist if the object is not stored.
func (s *Store) Stat(hash Hash) (*ObjectInfo, error) {
	path := s.objectPath(hash)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", FormatRef(hash), err)
	}
	defer file.Close()

	tag, size, err := readObjectHeader(file)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", FormatRef(hash), err)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stating object %s: %w", FormatRef(hash), err)
	}

	return &ObjectInfo{
		Hash:        hash,
		Size:        size,
		StoredSize:  fileInfo.Size() - objectHeaderSize,
		Compression: tag,
	}, nil
}

// Exists reports whether an object is present in the store.
func (s *Store) Exists(hash Hash) bool {
	_, err := os.Stat(s.objectPath(hash))
	return err == nil
}

// Delete removes an object from the store. Returns nil if the object
// was removed or did not exist. The caller is responsible for removing
// the associated metadata and any tags pointing at the object.
func (s *Store) Delete(hash Hash) error {
	if err := os.Remove(s.objectPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing object %s: %w", FormatRef(hash), err)
	}
	return nil
}

// writeObject writes an object file via atomic rename through the tmp
// directory.
func (s *Store) writeObject(hash Hash, payload []byte, tag CompressionTag, uncompressedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "object-*.bin")
	if err != nil {
		return fmt.Errorf("creating temp object file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	var header [objectHeaderSize]byte
	copy(header[:8], objectMagic[:])
	header[8] = byte(tag)
	binary.LittleEndian.PutUint64(header[12:20], uint64(uncompressedSize))

	if _, err := tmpFile.Write(header[:]); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing object header: %w", err)
	}
	if _, err := tmpFile.Write(payload); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing object payload: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp object file: %w", err)
	}

	finalPath := s.objectPath(hash)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating object shard directory: %w", err)
	}

	// A concurrent writer may have stored the same content between
	// the dedup check and this rename. The existing object is
	// identical by construction, so dropping ours is correct.
	if _, err := os.Stat(finalPath); err == nil {
		success = true
		os.Remove(tmpPath)
		return nil
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming object to %s: %w", finalPath, err)
	}

	success = true
	return nil
}

// readObjectHeader reads and validates the fixed object header from r,
// returning the compression tag and uncompressed size.
func readObjectHeader(r io.Reader) (CompressionTag, int64, error) {
	var header [objectHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, 0, fmt.Errorf("reading object header: %w", err)
	}

	var magic [8]byte
	copy(magic[:], header[:8])
	if magic != objectMagic {
		if bytes.Equal(magic[:6], objectMagic[:6]) {
			return 0, 0, fmt.Errorf("object version %d is not supported (this code supports version %d)",
				magic[6], objectVersion)
		}
		return 0, 0, fmt.Errorf("not a datapress object (invalid magic bytes)")
	}

	tag := CompressionTag(header[8])
	if tag > CompressionZstd {
		return 0, 0, fmt.Errorf("unsupported compression tag %d", tag)
	}

	size := binary.LittleEndian.Uint64(header[12:20])
	return tag, int64(size), nil
}

// objectPath returns the sharded filesystem path for an object.
// Objects are sharded by the first two bytes of the hash hex:
// objects/a3/f9/a3f9b2c1e7d4...
func (s *Store) objectPath(hash Hash) string {
	hex := FormatHash(hash)
	return filepath.Join(s.root, objectDir, hex[:2], hex[2:4], hex)
}

// compressWithFallback attempts to compress data with the given codec.
// If the data is incompressible, falls back to CompressionNone and
// returns the original data.
func compressWithFallback(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	if tag == CompressionNone {
		return data, CompressionNone, nil
	}

	compressed, err := Compress(data, tag)
	if err != nil {
		if IsIncompressible(err) {
			return data, CompressionNone, nil
		}
		return nil, 0, err
	}
	return compressed, tag, nil
}
