// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/bureau-foundation/datapress/lib/codec"
)

// Client timeouts.
const (
	// clientDialTimeout is the maximum time to wait for a connection
	// to the artifact service socket.
	clientDialTimeout = 5 * time.Second

	// clientResponseTimeout is how long the client waits for the
	// service to send a response after a request completes.
	clientResponseTimeout = 120 * time.Second
)

// Client communicates with the artifact service over its Unix socket.
// Each method opens a new connection, performs the request/response
// exchange, and closes the connection. Its method shapes mirror
// [Local], so callers can hold either behind a narrow interface.
//
// The protocol uses length-prefixed CBOR messages (4-byte uint32 +
// CBOR bytes) because artifact transfers interleave CBOR envelopes
// with raw binary streams that a CBOR stream decoder would consume.
//
// Token injection: when the client holds a service token, every
// request carries it in the "token" field.
type Client struct {
	socketPath string
	token      []byte
}

// NewClient creates an authenticated artifact client by reading the
// service token from tokenPath.
func NewClient(socketPath, tokenPath string) (*Client, error) {
	tokenBytes, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact service token from %s: %w", tokenPath, err)
	}
	token := bytes.TrimSpace(tokenBytes)
	if len(token) == 0 {
		return nil, fmt.Errorf("artifact service token file %s is empty", tokenPath)
	}
	return &Client{
		socketPath: socketPath,
		token:      token,
	}, nil
}

// NewClientFromToken creates a client with pre-loaded token bytes. A
// nil token sends unauthenticated requests (suitable for the status
// action or for services running without a token).
func NewClientFromToken(socketPath string, token []byte) *Client {
	return &Client{
		socketPath: socketPath,
		token:      token,
	}
}

// Store uploads an artifact to the service. Content at or below
// SmallArtifactThreshold is embedded in the request envelope; larger
// content is streamed after it. The request's Token, Size, and Data
// fields are managed by this method.
func (c *Client) Store(ctx context.Context, request *StoreRequest, content io.Reader) (*StoreResponse, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	request.Action = ActionStore
	request.Token = c.token

	var stream io.Reader
	if request.Data == nil && content != nil {
		// Buffer up to the embed threshold. If the content fits, it
		// rides in the envelope; otherwise what was buffered is
		// replayed ahead of the rest of the stream.
		buffered := make([]byte, SmallArtifactThreshold+1)
		n, err := io.ReadFull(content, buffered)
		switch err {
		case nil:
			// More than the threshold: stream everything.
			request.Size = SizeUnknown
			stream = io.MultiReader(bytes.NewReader(buffered[:n]), content)
		case io.EOF, io.ErrUnexpectedEOF:
			request.Data = buffered[:n]
			request.Size = int64(n)
		default:
			return nil, fmt.Errorf("reading content: %w", err)
		}
	} else if request.Data != nil {
		request.Size = int64(len(request.Data))
	}

	if err := WriteMessage(conn, request); err != nil {
		return nil, fmt.Errorf("writing store request: %w", err)
	}

	if stream != nil {
		frameWriter := NewFrameWriter(conn)
		if _, err := io.Copy(frameWriter, stream); err != nil {
			return nil, fmt.Errorf("streaming content: %w", err)
		}
		if err := frameWriter.Close(); err != nil {
			return nil, fmt.Errorf("closing content stream: %w", err)
		}
	}

	conn.SetReadDeadline(time.Now().Add(clientResponseTimeout))
	raw, err := ReadRawMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("reading store response: %w", err)
	}
	if err := checkError(raw); err != nil {
		return nil, err
	}

	var response StoreResponse
	if err := codec.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("decoding store response: %w", err)
	}
	return &response, nil
}

// Fetch downloads an artifact by reference. The caller MUST close
// FetchResult.Content when done to release the connection.
func (c *Client) Fetch(ctx context.Context, ref string) (*FetchResult, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	request := &FetchRequest{Action: ActionFetch, Token: c.token, Ref: ref}
	if err := WriteMessage(conn, request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing fetch request: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(clientResponseTimeout))
	raw, err := ReadRawMessage(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading fetch response: %w", err)
	}
	if err := checkError(raw); err != nil {
		conn.Close()
		return nil, err
	}

	var response FetchResponse
	if err := codec.Unmarshal(raw, &response); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decoding fetch response: %w", err)
	}

	// Small artifact: content embedded in the envelope.
	if response.Data != nil {
		conn.Close()
		return &FetchResult{
			Response: response,
			Content:  io.NopCloser(bytes.NewReader(response.Data)),
		}, nil
	}

	// Large artifact: the binary stream follows on the connection.
	// Closing the FetchResult closes the connection.
	conn.SetReadDeadline(time.Time{})
	return &FetchResult{
		Response: response,
		Content:  &connReader{reader: DataReader(conn, response.Size), conn: conn},
	}, nil
}

// Exists checks whether a reference resolves to a stored artifact.
func (c *Client) Exists(ctx context.Context, ref string) (*ExistsResponse, error) {
	var response ExistsResponse
	request := &ExistsRequest{Action: ActionExists, Token: c.token, Ref: ref}
	if err := c.call(ctx, ActionExists, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Info returns the full metadata record for a reference.
func (c *Client) Info(ctx context.Context, ref string) (*Metadata, error) {
	var response Metadata
	request := &InfoRequest{Action: ActionInfo, Token: c.token, Ref: ref}
	if err := c.call(ctx, ActionInfo, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Resolve maps any reference form to a full object hash.
func (c *Client) Resolve(ctx context.Context, ref string) (*ResolveResponse, error) {
	var response ResolveResponse
	request := &ResolveRequest{Action: ActionResolve, Token: c.token, Ref: ref}
	if err := c.call(ctx, ActionResolve, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// List queries stored artifacts with the request's filters. The
// request's Action and Token fields are managed by this method.
func (c *Client) List(ctx context.Context, request *ListRequest) (*ListResponse, error) {
	request.Action = ActionList
	request.Token = c.token
	var response ListResponse
	if err := c.call(ctx, ActionList, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Tag creates or moves a tag. The request's Action and Token fields
// are managed by this method.
func (c *Client) Tag(ctx context.Context, request *TagRequest) (*TagResponse, error) {
	request.Action = ActionTag
	request.Token = c.token
	var response TagResponse
	if err := c.call(ctx, ActionTag, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Tags lists tags by optional name prefix.
func (c *Client) Tags(ctx context.Context, prefix string) (*TagsResponse, error) {
	var response TagsResponse
	request := &TagsRequest{Action: ActionTags, Token: c.token, Prefix: prefix}
	if err := c.call(ctx, ActionTags, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// DeleteTag removes a tag by name.
func (c *Client) DeleteTag(ctx context.Context, name string) (*DeleteTagResponse, error) {
	var response DeleteTagResponse
	request := &DeleteTagRequest{Action: ActionDeleteTag, Token: c.token, Name: name}
	if err := c.call(ctx, ActionDeleteTag, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Status returns service liveness information. This action is
// unauthenticated.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var response StatusResponse
	request := map[string]any{"action": ActionStatus}
	if err := c.call(ctx, ActionStatus, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// call handles the common pattern: dial, send the request, read the
// response, check for a service error, decode into result.
func (c *Client) call(ctx context.Context, action string, request any, result any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := WriteMessage(conn, request); err != nil {
		return fmt.Errorf("%s: writing request: %w", action, err)
	}

	conn.SetReadDeadline(time.Now().Add(clientResponseTimeout))
	raw, err := ReadRawMessage(conn)
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", action, err)
	}
	if err := checkError(raw); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	if result != nil {
		if err := codec.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("%s: decoding response: %w", action, err)
		}
	}
	return nil
}

// dial establishes a connection to the artifact service socket.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: clientDialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to artifact service at %s: %w", c.socketPath, err)
	}
	return conn, nil
}

// checkError inspects raw CBOR bytes for an ErrorResponse. If the
// "error" field is present and non-empty, returns it as a
// ServiceError.
func checkError(raw []byte) error {
	var errorResponse ErrorResponse
	if err := codec.Unmarshal(raw, &errorResponse); err != nil {
		// Not decodable as an error envelope; the caller decodes
		// into the expected type.
		return nil
	}
	if errorResponse.Error != "" {
		return &ServiceError{Message: errorResponse.Error}
	}
	return nil
}

// ServiceError is returned when the artifact service responds with an
// error message.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// IsNotFound reports whether the error is a service error for a
// missing artifact, ref, or tag.
func IsNotFound(err error) bool {
	var serviceError *ServiceError
	if !errors.As(err, &serviceError) {
		return false
	}
	return strings.Contains(serviceError.Message, "not found") ||
		strings.Contains(serviceError.Message, "no artifact")
}

// connReader wraps an io.Reader and closes the underlying connection
// when Close is called. Used for streaming fetch responses where the
// connection must stay open until the caller finishes reading.
type connReader struct {
	reader io.Reader
	conn   net.Conn
}

func (cr *connReader) Read(p []byte) (int, error) {
	return cr.reader.Read(p)
}

func (cr *connReader) Close() error {
	return cr.conn.Close()
}
