// Package client implements the calling side: Find resolves a procedure
// name to a Handle, Call invokes it and blocks for the result.
//
// A Client owns one connection and issues one request at a time. Requests
// from several goroutines are serialized, never pipelined. After a
// Transport or ProtocolViolation error the connection is closed and every
// later request fails with that error.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"sync-rpc/codec"
	"sync-rpc/message"
	"sync-rpc/protocol"
	"sync-rpc/rpcerr"
	"sync-rpc/transport"
)

// Handle refers to a procedure on the connection it was found on.
type Handle struct {
	Index int
	owner *Client
}

type Client struct {
	conn    transport.Stream
	logger  *zap.Logger
	maxBody uint64

	// callMu serializes exchanges and is held across blocking I/O. mu only
	// guards err, so Close can still get through and interrupt a stuck call.
	callMu sync.Mutex
	mu     sync.Mutex
	err    error // sticky once the session is dead
}

var errClosed = errors.New("client closed")

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMaxBodySize bounds outgoing argument bodies and incoming result bodies.
func WithMaxBodySize(n uint64) Option {
	return func(c *Client) { c.maxBody = n }
}

// NewClient takes ownership of conn.
func NewClient(conn transport.Stream, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		logger:  zap.NewNop(),
		maxBody: protocol.DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to a server over TCP.
func Dial(ctx context.Context, address string, cfg transport.Config, opts ...Option) (*Client, error) {
	conn, err := transport.Dial(ctx, address, cfg)
	if err != nil {
		return nil, rpcerr.Transport(fmt.Errorf("dial %s: %w", address, err))
	}
	c := NewClient(conn, opts...)
	c.logger.Debug("rpc: connected", zap.String("addr", address))
	return c, nil
}

// Find resolves name. It fails with ErrNotFound when the server has no such
// procedure; the connection stays usable in that case.
func (c *Client) Find(ctx context.Context, name string) (Handle, error) {
	req, err := codec.EncodeFindRequest(name)
	if err != nil {
		return Handle{}, err
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return Handle{}, err
	}

	index, found, err := codec.DecodeFindResponse(resp)
	if err != nil {
		return Handle{}, c.fail(err)
	}
	if !found {
		return Handle{}, fmt.Errorf("%w: %q", rpcerr.ErrNotFound, name)
	}
	return Handle{Index: index, owner: c}, nil
}

// Call invokes the procedure behind h. A failure on the server side comes
// back as ErrRemoteFailure; argument problems are reported before anything
// is written.
func (c *Client) Call(ctx context.Context, h Handle, args message.Payload) (message.Payload, error) {
	if h.Index < 0 {
		return message.Payload{}, fmt.Errorf("%w: %w: %d", rpcerr.ErrInvalidArgument, rpcerr.ErrUnknownHandle, h.Index)
	}
	if h.owner != c {
		return message.Payload{}, fmt.Errorf("%w: %w: handle belongs to another connection", rpcerr.ErrInvalidArgument, rpcerr.ErrUnknownHandle)
	}
	if err := args.Validate(); err != nil {
		return message.Payload{}, fmt.Errorf("%w: %w", rpcerr.ErrInvalidArgument, err)
	}
	if uint64(len(args.Body)) > c.maxBody {
		return message.Payload{}, fmt.Errorf("%w: body of %d bytes exceeds %d", rpcerr.ErrInvalidArgument, len(args.Body), c.maxBody)
	}

	req, err := codec.EncodeCallRequest(h.Index, args)
	if err != nil {
		return message.Payload{}, err
	}

	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return message.Payload{}, err
	}

	result, err := codec.DecodeCallResponse(resp)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, rpcerr.ErrRemoteFailure):
		return message.Payload{}, err
	case errors.Is(err, rpcerr.ErrInconsistent):
		// the server claimed success with a malformed payload
		c.logger.Warn("rpc: inconsistent result", zap.Int("handle", h.Index), zap.Error(err))
		return message.Payload{}, fmt.Errorf("%w: %w", rpcerr.ErrRemoteFailure, err)
	}
	return message.Payload{}, c.fail(err)
}

// Close closes the connection. A call blocked on the peer fails with
// ErrTransport; later requests fail the same way.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil
	}
	c.err = rpcerr.Transport(errClosed)
	c.mu.Unlock()
	return c.conn.Close()
}

// roundTrip writes req and reads exactly one response frame.
func (c *Client) roundTrip(ctx context.Context, req *protocol.Frame) (*protocol.Frame, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.sessionErr(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reset := transport.ApplyContext(ctx, c.conn)
	defer reset()

	if err := protocol.Encode(c.conn, req); err != nil {
		return nil, c.failSession(ctx, err)
	}
	resp, err := protocol.Decode(c.conn, protocol.MaxResponseFrameSize(c.maxBody))
	if err != nil {
		return nil, c.failSession(ctx, err)
	}
	return resp, nil
}

func (c *Client) sessionErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) fail(err error) error {
	if !rpcerr.IsFatal(err) {
		return err
	}
	return c.failSession(context.Background(), err)
}

// failSession ends the session. A half-written request or an unread reply
// leaves the stream out of sync, so nothing can be sent on it again. If the
// session already ended, by Close for instance, that first error wins.
func (c *Client) failSession(ctx context.Context, err error) error {
	if ctxErr := contextCause(ctx, err); ctxErr != nil {
		err = fmt.Errorf("%w: %w", err, ctxErr)
	}

	c.mu.Lock()
	if c.err != nil {
		first := c.err
		c.mu.Unlock()
		return first
	}
	c.err = err
	c.mu.Unlock()

	c.conn.Close()
	c.logger.Warn("rpc: connection closed", zap.Error(err))
	return err
}

// contextCause reports the ctx error behind an I/O failure. A stream
// deadline taken from ctx can expire a moment before ctx itself does.
func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return nil
}
