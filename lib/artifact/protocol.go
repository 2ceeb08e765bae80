// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bureau-foundation/datapress/lib/codec"
)

// Wire protocol constants.
const (
	// MaxMessageSize is the maximum size of a length-prefixed CBOR
	// message. 64KB is generous for request and response envelopes;
	// the largest realistic message is a StoreRequest with embedded
	// small-artifact data, which is capped separately by
	// SmallArtifactThreshold.
	MaxMessageSize = 64 * 1024

	// MaxFrameSize is the maximum size of a single data frame in
	// chunked transfer mode. Frames are length-prefixed with a 4-byte
	// uint32, so the theoretical limit is ~4GB. Capped at 1MB to keep
	// memory bounded.
	MaxFrameSize = 1024 * 1024

	// SmallArtifactThreshold is the content size at or below which
	// artifact data is embedded directly in the CBOR envelope (as a
	// byte string) instead of streamed after it. Covers typical
	// preprocessed CSV outputs in one message.
	SmallArtifactThreshold = 48 * 1024

	// SizeUnknown indicates the content size is not known upfront.
	// When Size is SizeUnknown the binary stream uses chunked framing
	// (length-prefixed frames with a zero-length terminator). When
	// Size >= 0 the receiver reads exactly that many raw bytes with
	// no framing overhead.
	SizeUnknown int64 = -1
)

// Protocol action names. Every request envelope carries one of these
// in its "action" field.
const (
	ActionStore     = "store"
	ActionFetch     = "fetch"
	ActionExists    = "exists"
	ActionInfo      = "info"
	ActionResolve   = "resolve"
	ActionList      = "list"
	ActionTag       = "tag"
	ActionTags      = "tags"
	ActionDeleteTag = "delete-tag"
	ActionStatus    = "status"
)

// Request envelopes travel only as CBOR, so they carry cbor tags per
// the lib/codec tag rules. Response types that the CLI re-emits as
// JSON carry json tags instead (fxamacker/cbor falls back to them).

// StoreRequest is sent by the client before uploading artifact
// content.
//
// For small artifacts the Data field holds the content as a CBOR byte
// string and Size is its length. For large artifacts Data is nil and
// the content follows the envelope as a binary stream: raw bytes when
// Size >= 0, length-prefixed frames when Size is SizeUnknown.
type StoreRequest struct {
	Action      string   `cbor:"action"`
	Token       []byte   `cbor:"token,omitempty"`
	Name        string   `cbor:"name,omitempty"`
	ContentType string   `cbor:"content_type,omitempty"`
	Filename    string   `cbor:"filename,omitempty"`
	Description string   `cbor:"description,omitempty"`
	Labels      []string `cbor:"labels,omitempty"`
	Workflow    string   `cbor:"workflow,omitempty"`
	RunID       string   `cbor:"run_id,omitempty"`

	// Compression optionally forces a codec by name ("none", "lz4",
	// "zstd"). Empty selects automatically from the content type.
	Compression string `cbor:"compression,omitempty"`

	Size int64  `cbor:"size"`
	Data []byte `cbor:"data,omitempty"`
}

// StoreResponse reports the outcome of a store operation.
type StoreResponse struct {
	Ref          string `json:"ref"`
	Hash         string `json:"hash"`
	Size         int64  `json:"size"`
	StoredSize   int64  `json:"stored_size"`
	Compression  string `json:"compression"`
	Deduplicated bool   `json:"deduplicated,omitempty"`
}

// FetchRequest asks for an artifact's content by reference: a full
// 64-char hash, a short art- ref, or a tag name.
type FetchRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token,omitempty"`
	Ref    string `cbor:"ref"`
}

// FetchResponse precedes the downloaded content. For small artifacts
// the Data field holds the content and no binary stream follows. For
// large artifacts Data is nil and exactly Size raw bytes follow.
type FetchResponse struct {
	Size        int64  `cbor:"size"`
	ContentType string `cbor:"content_type,omitempty"`
	Filename    string `cbor:"filename,omitempty"`
	Hash        string `cbor:"hash"`
	Compression string `cbor:"compression,omitempty"`
	Data        []byte `cbor:"data,omitempty"`
}

// ExistsRequest checks for an artifact without fetching it.
type ExistsRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token,omitempty"`
	Ref    string `cbor:"ref"`
}

// ExistsResponse reports presence. Ref and Hash are filled in when the
// artifact exists.
type ExistsResponse struct {
	Exists bool   `json:"exists"`
	Ref    string `json:"ref,omitempty"`
	Hash   string `json:"hash,omitempty"`
}

// InfoRequest asks for an artifact's full metadata record. The
// response is the Metadata struct itself.
type InfoRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token,omitempty"`
	Ref    string `cbor:"ref"`
}

// ResolveRequest resolves any reference form to a full hash.
type ResolveRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token,omitempty"`
	Ref    string `cbor:"ref"`
}

// ResolveResponse carries the resolved identity.
type ResolveResponse struct {
	Ref  string `json:"ref"`
	Hash string `json:"hash"`
}

// ListRequest queries stored artifacts with optional filters.
type ListRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token,omitempty"`

	// Name filters to artifacts published under this name.
	Name string `cbor:"name,omitempty"`

	// Label filters to artifacts carrying this label.
	Label string `cbor:"label,omitempty"`

	// ContentType filters by exact content type.
	ContentType string `cbor:"content_type,omitempty"`

	Limit  int `cbor:"limit,omitempty"`
	Offset int `cbor:"offset,omitempty"`
}

// ListResponse carries matching records, newest first.
type ListResponse struct {
	Artifacts []Metadata `json:"artifacts"`
	Total     int        `json:"total"`
}

// TagRequest creates or moves a tag.
type TagRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token,omitempty"`
	Name   string `cbor:"name"`
	Ref    string `cbor:"ref"`

	// Optimistic makes the write unconditional. When false and
	// ExpectedPrevious is set, the tag must currently point at
	// ExpectedPrevious (compare-and-swap).
	Optimistic       bool   `cbor:"optimistic,omitempty"`
	ExpectedPrevious string `cbor:"expected_previous,omitempty"`
}

// TagResponse reports the tag's new target and, when the tag already
// existed, its previous target.
type TagResponse struct {
	Name     string `json:"name"`
	Ref      string `json:"ref"`
	Hash     string `json:"hash"`
	Previous string `json:"previous,omitempty"`
}

// TagsRequest lists tags by optional name prefix.
type TagsRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token,omitempty"`
	Prefix string `cbor:"prefix,omitempty"`
}

// TagsResponse carries tag records sorted by name.
type TagsResponse struct {
	Tags []TagRecord `json:"tags"`
}

// DeleteTagRequest removes a tag by name. The underlying object and
// its metadata are kept.
type DeleteTagRequest struct {
	Action string `cbor:"action"`
	Token  []byte `cbor:"token,omitempty"`
	Name   string `cbor:"name"`
}

// DeleteTagResponse confirms the removal.
type DeleteTagResponse struct {
	Deleted string `json:"deleted"`
}

// StatusResponse is the reply to the unauthenticated status action: a
// liveness check revealing only uptime and counts.
type StatusResponse struct {
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Artifacts     int    `json:"artifacts"`
	Tags          int    `json:"tags"`
}

// ErrorResponse is sent by the service in place of any success
// response when a request fails.
type ErrorResponse struct {
	Error string `cbor:"error"`
}

// --- Length-prefixed CBOR messages ---
//
// CBOR messages are length-prefixed on the wire: a 4-byte big-endian
// uint32 length followed by that many bytes of CBOR data. The explicit
// prefix avoids the CBOR stream decoder's read-ahead buffering, which
// would consume bytes from the binary data stream that follows a store
// envelope.
//
// Wire layout for a store upload:
//
//	[4-byte length][CBOR StoreRequest][binary stream][4-byte length][CBOR StoreResponse]
//
// Wire layout for a fetch download:
//
//	[4-byte length][CBOR FetchRequest][4-byte length][CBOR FetchResponse][binary stream]

// WriteMessage encodes v as CBOR and writes it with a 4-byte length
// prefix.
func WriteMessage(w io.Writer, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(data)))
	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("writing message length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	return nil
}

// ReadRawMessage reads a length-prefixed CBOR message and returns its
// raw bytes. Rejects messages larger than MaxMessageSize.
func ReadRawMessage(r io.Reader) ([]byte, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return nil, fmt.Errorf("reading message length: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("message size %d exceeds maximum %d", length, MaxMessageSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}
	return data, nil
}

// ReadMessage reads a length-prefixed CBOR message and decodes it into
// v.
func ReadMessage(r io.Reader, v any) error {
	raw, err := ReadRawMessage(r)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	return nil
}

// --- Frame writer ---

// FrameWriter writes binary data as length-prefixed frames to an
// underlying writer. Each frame is a 4-byte big-endian uint32 length
// followed by that many bytes. Close writes a zero-length terminator
// frame to signal end-of-stream.
//
// FrameWriter implements io.WriteCloser. The caller writes arbitrary
// amounts of data; FrameWriter splits into frames of at most
// MaxFrameSize bytes.
type FrameWriter struct {
	writer io.Writer
	closed bool
}

// NewFrameWriter creates a frame writer that writes to w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{writer: w}
}

// Write splits p into frames of at most MaxFrameSize bytes and writes
// them to the underlying writer.
func (fw *FrameWriter) Write(p []byte) (int, error) {
	if fw.closed {
		return 0, fmt.Errorf("write to closed FrameWriter")
	}

	totalWritten := 0
	for len(p) > 0 {
		frameSize := len(p)
		if frameSize > MaxFrameSize {
			frameSize = MaxFrameSize
		}

		if err := fw.writeFrame(p[:frameSize]); err != nil {
			return totalWritten, err
		}
		totalWritten += frameSize
		p = p[frameSize:]
	}
	return totalWritten, nil
}

// Close writes the zero-length terminator frame. The underlying writer
// is NOT closed; the caller manages its lifecycle.
func (fw *FrameWriter) Close() error {
	if fw.closed {
		return nil
	}
	fw.closed = true

	var header [4]byte
	// header is already zero, which is the terminator.
	_, err := fw.writer.Write(header[:])
	return err
}

// writeFrame writes a single length-prefixed frame.
func (fw *FrameWriter) writeFrame(data []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := fw.writer.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := fw.writer.Write(data); err != nil {
		return fmt.Errorf("writing frame data: %w", err)
	}
	return nil
}

// --- Frame reader ---

// FrameReader reads binary data from a sequence of length-prefixed
// frames. Returns io.EOF after reading the zero-length terminator. A
// stream that ends without the terminator (connection dropped
// mid-transfer) returns io.ErrUnexpectedEOF, and keeps returning it:
// truncation must never look like a clean end of stream.
//
// FrameReader implements io.Reader and handles frame boundary crossing
// transparently.
type FrameReader struct {
	reader         io.Reader
	frameRemaining int

	// terminal holds the error every future Read returns once the
	// stream has ended: io.EOF after the terminator frame,
	// io.ErrUnexpectedEOF after truncation.
	terminal error
}

// NewFrameReader creates a frame reader that reads from r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{reader: r}
}

// Read fills p with data from the frame stream, reading across frame
// boundaries as needed.
func (fr *FrameReader) Read(p []byte) (int, error) {
	if fr.terminal != nil {
		return 0, fr.terminal
	}

	totalRead := 0
	for len(p) > 0 {
		// If the current frame is exhausted, read the next header.
		if fr.frameRemaining == 0 {
			var header [4]byte
			if _, err := io.ReadFull(fr.reader, header[:]); err != nil {
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					// Connection closed without terminator.
					fr.terminal = io.ErrUnexpectedEOF
					if totalRead > 0 {
						return totalRead, nil
					}
					return 0, fr.terminal
				}
				return totalRead, err
			}
			fr.frameRemaining = int(binary.BigEndian.Uint32(header[:]))
			if fr.frameRemaining == 0 {
				// Zero-length terminator.
				fr.terminal = io.EOF
				if totalRead > 0 {
					return totalRead, nil
				}
				return 0, io.EOF
			}
			if fr.frameRemaining > MaxFrameSize {
				return totalRead, fmt.Errorf("frame size %d exceeds maximum %d",
					fr.frameRemaining, MaxFrameSize)
			}
		}

		readSize := len(p)
		if readSize > fr.frameRemaining {
			readSize = fr.frameRemaining
		}

		bytesRead, err := fr.reader.Read(p[:readSize])
		totalRead += bytesRead
		p = p[bytesRead:]
		fr.frameRemaining -= bytesRead

		if err != nil {
			if err == io.EOF {
				// EOF mid-frame is truncation.
				fr.terminal = io.ErrUnexpectedEOF
				if totalRead > 0 {
					return totalRead, nil
				}
				return 0, fr.terminal
			}
			return totalRead, err
		}
	}
	return totalRead, nil
}

// --- Sized stream reader ---

// SizedReader reads exactly size bytes from the underlying reader,
// then returns io.EOF. This is the reader for sized transfers where
// the content length is known upfront and no framing is needed.
type SizedReader struct {
	reader    io.Reader
	remaining int64
}

// NewSizedReader wraps r to read exactly size bytes.
func NewSizedReader(r io.Reader, size int64) *SizedReader {
	return &SizedReader{reader: r, remaining: size}
}

// Read reads up to len(p) bytes, bounded by the remaining byte count.
func (sr *SizedReader) Read(p []byte) (int, error) {
	if sr.remaining <= 0 {
		return 0, io.EOF
	}

	if int64(len(p)) > sr.remaining {
		p = p[:sr.remaining]
	}

	bytesRead, err := sr.reader.Read(p)
	sr.remaining -= int64(bytesRead)

	if err == io.EOF && sr.remaining > 0 {
		return bytesRead, io.ErrUnexpectedEOF
	}
	if sr.remaining == 0 && err == nil {
		// All bytes consumed. The next read returns io.EOF.
		return bytesRead, nil
	}
	return bytesRead, err
}

// Remaining returns the number of bytes left to read.
func (sr *SizedReader) Remaining() int64 {
	return sr.remaining
}

// DataReader returns the appropriate io.Reader for a binary data
// stream based on the envelope's Size field. Size >= 0 gets a
// SizedReader; SizeUnknown gets a FrameReader.
//
// This is the receiver-side complement to the sender's choice of
// io.CopyN (sized) or FrameWriter (chunked).
func DataReader(r io.Reader, size int64) io.Reader {
	if size == SizeUnknown {
		return NewFrameReader(r)
	}
	return NewSizedReader(r, size)
}
