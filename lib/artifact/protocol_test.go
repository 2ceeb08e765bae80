// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/bureau-foundation/datapress/lib/codec"
)

func TestMessageRoundtrip(t *testing.T) {
	var buffer bytes.Buffer

	sent := &StoreRequest{
		Action:      ActionStore,
		Name:        "preprocessed-air-quality-dataset",
		ContentType: "text/csv",
		Filename:    "air_quality_preprocessing.csv",
		Workflow:    "air-quality",
		RunID:       "run-0001",
		Size:        42,
		Data:        []byte("embedded content for small artifacts here\n"),
	}
	if err := WriteMessage(&buffer, sent); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	var received StoreRequest
	if err := ReadMessage(&buffer, &received); err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	if received.Action != sent.Action {
		t.Errorf("Action = %q, want %q", received.Action, sent.Action)
	}
	if received.Name != sent.Name {
		t.Errorf("Name = %q, want %q", received.Name, sent.Name)
	}
	if received.Size != sent.Size {
		t.Errorf("Size = %d, want %d", received.Size, sent.Size)
	}
	if !bytes.Equal(received.Data, sent.Data) {
		t.Error("Data does not roundtrip")
	}
}

func TestMessageLengthPrefix(t *testing.T) {
	var buffer bytes.Buffer

	if err := WriteMessage(&buffer, &ExistsRequest{Action: ActionExists, Ref: "art-abc"}); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	raw := buffer.Bytes()
	if len(raw) < 4 {
		t.Fatalf("message too short: %d bytes", len(raw))
	}
	length := binary.BigEndian.Uint32(raw[:4])
	if int(length) != len(raw)-4 {
		t.Errorf("length prefix %d does not match body length %d", length, len(raw)-4)
	}
}

func TestReadRawMessageRejectsOversize(t *testing.T) {
	var buffer bytes.Buffer
	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], MaxMessageSize+1)
	buffer.Write(lengthPrefix[:])

	_, err := ReadRawMessage(&buffer)
	if err == nil {
		t.Fatal("ReadRawMessage should reject a message over MaxMessageSize")
	}
	if !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("error does not mention the size limit: %v", err)
	}
}

func TestReadRawMessageTruncatedBody(t *testing.T) {
	var buffer bytes.Buffer
	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], 100)
	buffer.Write(lengthPrefix[:])
	buffer.WriteString("only a few bytes")

	_, err := ReadRawMessage(&buffer)
	if err == nil {
		t.Fatal("ReadRawMessage should fail on a truncated body")
	}
}

func TestSmallArtifactFitsEnvelope(t *testing.T) {
	// A store request with the maximum embedded payload must stay
	// under the message size cap, or every small-artifact upload
	// would be rejected on read.
	request := &StoreRequest{
		Action:      ActionStore,
		Token:       bytes.Repeat([]byte("t"), 64),
		Name:        strings.Repeat("n", 256),
		ContentType: "application/octet-stream",
		Filename:    strings.Repeat("f", 255),
		Description: strings.Repeat("d", 1024),
		Labels:      []string{strings.Repeat("l", 64), strings.Repeat("m", 64)},
		Workflow:    strings.Repeat("w", 128),
		RunID:       strings.Repeat("r", 64),
		Size:        SmallArtifactThreshold,
		Data:        bytes.Repeat([]byte("x"), SmallArtifactThreshold),
	}

	var buffer bytes.Buffer
	if err := WriteMessage(&buffer, request); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	body := buffer.Len() - 4
	if body > MaxMessageSize {
		t.Errorf("maximum small-artifact envelope is %d bytes, exceeds MaxMessageSize %d",
			body, MaxMessageSize)
	}

	var received StoreRequest
	if err := ReadMessage(&buffer, &received); err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if len(received.Data) != SmallArtifactThreshold {
		t.Errorf("Data length = %d, want %d", len(received.Data), SmallArtifactThreshold)
	}
}

func TestFrameRoundtrip(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"small", 100},
		{"one_frame", MaxFrameSize},
		{"crosses_frames", MaxFrameSize + 12345},
		{"several_frames", 3*MaxFrameSize + 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			for i := range data {
				data[i] = byte(i % 251)
			}

			var buffer bytes.Buffer
			writer := NewFrameWriter(&buffer)
			written, err := writer.Write(data)
			if err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if written != len(data) {
				t.Fatalf("Write returned %d, want %d", written, len(data))
			}
			if err := writer.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			received, err := io.ReadAll(NewFrameReader(&buffer))
			if err != nil {
				t.Fatalf("reading frames failed: %v", err)
			}
			if !bytes.Equal(received, data) {
				t.Error("framed data does not roundtrip")
			}
		})
	}
}

func TestFrameWriterSplitsLargeWrites(t *testing.T) {
	data := make([]byte, 2*MaxFrameSize+100)

	var buffer bytes.Buffer
	writer := NewFrameWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Walk the frames: none may exceed MaxFrameSize, and the stream
	// must end with a zero-length terminator.
	raw := buffer.Bytes()
	offset := 0
	frames := 0
	sawTerminator := false
	for offset < len(raw) {
		if offset+4 > len(raw) {
			t.Fatalf("truncated frame header at offset %d", offset)
		}
		frameSize := int(binary.BigEndian.Uint32(raw[offset : offset+4]))
		offset += 4
		if frameSize == 0 {
			sawTerminator = true
			break
		}
		if frameSize > MaxFrameSize {
			t.Fatalf("frame %d is %d bytes, exceeds MaxFrameSize", frames, frameSize)
		}
		offset += frameSize
		frames++
	}
	if !sawTerminator {
		t.Error("frame stream does not end with a zero-length terminator")
	}
	if frames != 3 {
		t.Errorf("got %d frames, want 3", frames)
	}
}

func TestFrameWriterRejectsWriteAfterClose(t *testing.T) {
	writer := NewFrameWriter(&bytes.Buffer{})
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := writer.Write([]byte("late")); err == nil {
		t.Error("Write after Close should fail")
	}

	// Closing twice is a no-op.
	if err := writer.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestFrameReaderMissingTerminator(t *testing.T) {
	// A connection that drops before the terminator must surface an
	// error, not a silent short read.
	var buffer bytes.Buffer
	writer := NewFrameWriter(&buffer)
	if _, err := writer.Write([]byte("partial stream")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// No Close: the terminator is never written.

	reader := NewFrameReader(&buffer)
	data := make([]byte, 64)
	n, _ := reader.Read(data)
	if n != len("partial stream") {
		t.Fatalf("first read returned %d bytes, want %d", n, len("partial stream"))
	}

	_, err := reader.Read(data)
	if err != io.ErrUnexpectedEOF {
		t.Errorf("read after truncation = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestFrameReaderRejectsOversizeFrame(t *testing.T) {
	var buffer bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
	buffer.Write(header[:])

	reader := NewFrameReader(&buffer)
	_, err := reader.Read(make([]byte, 16))
	if err == nil {
		t.Fatal("FrameReader should reject a frame over MaxFrameSize")
	}
}

func TestSizedReaderExactBytes(t *testing.T) {
	payload := []byte("exactly these bytes, nothing more")
	trailing := []byte("trailing data that must not be consumed")

	source := bytes.NewReader(append(append([]byte{}, payload...), trailing...))
	reader := NewSizedReader(source, int64(len(payload)))

	received, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(received, payload) {
		t.Error("SizedReader did not return the exact payload")
	}
	if reader.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", reader.Remaining())
	}

	// The trailing bytes stay in the source.
	rest, err := io.ReadAll(source)
	if err != nil {
		t.Fatalf("reading trailing bytes failed: %v", err)
	}
	if !bytes.Equal(rest, trailing) {
		t.Error("SizedReader consumed bytes past its size")
	}
}

func TestSizedReaderShortSource(t *testing.T) {
	source := strings.NewReader("short")
	reader := NewSizedReader(source, 100)

	_, err := io.ReadAll(reader)
	if err != io.ErrUnexpectedEOF {
		t.Errorf("short source read = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestDataReaderSelectsFraming(t *testing.T) {
	if _, ok := DataReader(&bytes.Buffer{}, SizeUnknown).(*FrameReader); !ok {
		t.Error("DataReader(SizeUnknown) did not return a FrameReader")
	}
	if _, ok := DataReader(&bytes.Buffer{}, 42).(*SizedReader); !ok {
		t.Error("DataReader(42) did not return a SizedReader")
	}
}

func TestErrorResponseDetection(t *testing.T) {
	errorBytes, err := codec.Marshal(&ErrorResponse{Error: "artifact art-abc not found"})
	if err != nil {
		t.Fatalf("encoding error response: %v", err)
	}
	if err := checkError(errorBytes); err == nil {
		t.Fatal("checkError missed an error response")
	} else if !strings.Contains(err.Error(), "not found") {
		t.Errorf("checkError returned wrong message: %v", err)
	}

	successBytes, err := codec.Marshal(&StoreResponse{Ref: "art-abc", Hash: "00"})
	if err != nil {
		t.Fatalf("encoding success response: %v", err)
	}
	if err := checkError(successBytes); err != nil {
		t.Errorf("checkError flagged a success response: %v", err)
	}
}
