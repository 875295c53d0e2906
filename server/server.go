// Package server implements the procedure registry and the dispatch loop.
//
// The server is strictly synchronous and serves one connection at a time:
//
//	Accept conn → ServeConn:
//	  loop: Decode frame → dispatch (FIND → Registry.Resolve | CALL → middleware → procedure)
//	        → Encode response → write it fully → next frame
//
// A response is always written completely before the next request is read.
// Per-request failures become FIND_RESPONSE(-1) or CALL_ERROR; only I/O
// errors and protocol violations end the connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sync-rpc/codec"
	"sync-rpc/message"
	"sync-rpc/middleware"
	"sync-rpc/protocol"
	"sync-rpc/registry"
	"sync-rpc/rpcerr"
	"sync-rpc/transport"
)

// Server owns one Registry and at most one connection at a time.
type Server struct {
	procs        *Registry
	middlewares  []middleware.Middleware
	logger       *zap.Logger
	maxBody      uint64
	readTimeout  time.Duration // doubles as idle timeout between requests
	writeTimeout time.Duration

	discovery     registry.Registry // nil if not advertising
	advertiseAddr string            // routable address published to discovery
	ttl           int64

	mu        sync.Mutex
	listener  net.Listener
	active    net.Conn
	published []string // procedure names currently advertised
	shutdown  atomic.Bool
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMaxBodySize bounds call and result bodies. Larger requests are a
// protocol violation; larger results are answered with CALL_ERROR.
func WithMaxBodySize(n uint64) Option {
	return func(s *Server) { s.maxBody = n }
}

// WithTimeouts arms a deadline before every read and every write on
// accepted connections. Zero disables either.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

// WithRegistry publishes every procedure to reg while serving. An empty
// advertiseAddr means the listener's address.
func WithRegistry(reg registry.Registry, advertiseAddr string, ttl int64) Option {
	return func(s *Server) {
		s.discovery = reg
		s.advertiseAddr = advertiseAddr
		s.ttl = ttl
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		procs:   NewRegistry(),
		logger:  zap.NewNop(),
		maxBody: protocol.DefaultMaxBodySize,
		ttl:     10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds or replaces a procedure. See Registry.Register.
func (s *Server) Register(name string, proc Procedure) error {
	return s.procs.Register(name, proc)
}

// Use appends a middleware around procedure invocation. Middlewares run in
// the order added; call Use before serving.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Addr returns the listener's address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe listens on the TCP address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln one at a time and runs the dispatch loop
// on each until it ends. It returns nil after Shutdown or once ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	defer ln.Close()

	stop := context.AfterFunc(ctx, s.closeListener)
	defer stop()

	if err := s.publish(ctx, ln.Addr()); err != nil {
		return err
	}

	s.logger.Info("rpc: serving",
		zap.Stringer("addr", ln.Addr()),
		zap.Strings("procedures", s.procs.Names()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			// Shutdown closes the listener, which surfaces here as an error.
			if s.shutdown.Load() || ctx.Err() != nil {
				return nil
			}
			return err
		}

		conn = transport.WithDeadlines(conn, s.readTimeout, s.writeTimeout)
		s.setActive(conn)
		remote := zap.Stringer("remote", conn.RemoteAddr())
		s.logger.Info("rpc: connection accepted", remote)

		err = s.ServeConn(ctx, conn)
		s.setActive(nil)
		if err != nil && !s.shutdown.Load() {
			s.logger.Warn("rpc: connection terminated", remote, zap.Error(err))
		} else {
			s.logger.Info("rpc: connection closed", remote)
		}
	}
}

// ServeConn runs the dispatch loop on one stream until the peer closes it,
// an I/O error occurs, or the peer violates the protocol. A clean close
// between frames, or ctx ending, returns nil. conn is closed on return.
func (s *Server) ServeConn(ctx context.Context, conn transport.Stream) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	handler := s.handler()
	maxFrame := protocol.MaxFrameSize(s.maxBody)

	for {
		req, err := protocol.Decode(conn, maxFrame)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		resp, err := s.dispatch(ctx, handler, req)
		if err != nil {
			return err
		}

		if err := protocol.Encode(conn, resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Shutdown stops advertising, closes the listener and drops the active
// connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)

	errs := []error{s.unpublish(ctx)}

	s.mu.Lock()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if s.active != nil {
		s.active.Close()
	}
	s.mu.Unlock()

	return errors.Join(errs...)
}

func (s *Server) dispatch(ctx context.Context, h middleware.HandlerFunc, f *protocol.Frame) (*protocol.Frame, error) {
	switch f.Type {
	case protocol.MsgFindRequest:
		return s.find(f)
	case protocol.MsgCallRequest:
		return s.call(ctx, h, f)
	}
	return nil, rpcerr.Protocolf("unexpected %v from client", f.Type)
}

func (s *Server) find(f *protocol.Frame) (*protocol.Frame, error) {
	name, err := codec.DecodeFindRequest(f)
	if err != nil {
		if rpcerr.IsFatal(err) {
			return nil, err
		}
		s.logger.Debug("rpc: find with invalid name", zap.Int("#name", len(name)), zap.Error(err))
		return codec.EncodeFindResponse(codec.NotFound)
	}

	index, ok := s.procs.Resolve(name)
	if !ok {
		s.logger.Debug("rpc: find miss", zap.String("procedure", name))
		return codec.EncodeFindResponse(codec.NotFound)
	}
	return codec.EncodeFindResponse(index)
}

func (s *Server) call(ctx context.Context, h middleware.HandlerFunc, f *protocol.Frame) (*protocol.Frame, error) {
	handle, args, err := codec.DecodeCallRequest(f)
	if rpcerr.IsFatal(err) {
		return nil, err
	}
	if handle < 0 {
		s.logger.Debug("rpc: call with negative handle", zap.Int("handle", handle))
		return codec.EncodeCallError(), nil
	}
	if err != nil {
		s.logger.Debug("rpc: call with inconsistent payload", zap.Int("handle", handle), zap.Error(err))
		return codec.EncodeCallError(), nil
	}

	name, ok := s.procs.Name(handle)
	if !ok {
		s.logger.Debug("rpc: call with unknown handle", zap.Int("handle", handle))
		return codec.EncodeCallError(), nil
	}

	result, err := h(ctx, &message.Request{Procedure: name, Handle: handle, Args: args})
	if err == nil && uint64(len(result.Body)) > s.maxBody {
		err = fmt.Errorf("%w: result body of %d bytes exceeds %d", rpcerr.ErrInvalidArgument, len(result.Body), s.maxBody)
	}
	resp, err := codec.EncodeCallResult(result, err)
	if err != nil {
		s.logger.Debug("rpc: call failed", zap.String("procedure", name), zap.Error(err))
	}
	return resp, nil
}

// handler builds the invocation chain: user middlewares around a panic
// guard around the registry.
func (s *Server) handler() middleware.HandlerFunc {
	invoke := func(ctx context.Context, req *message.Request) (message.Payload, error) {
		return s.procs.Invoke(ctx, req.Handle, req.Args)
	}
	return middleware.Chain(s.middlewares...)(middleware.Recover(s.logger)(invoke))
}

func (s *Server) publish(ctx context.Context, addr net.Addr) error {
	if s.discovery == nil {
		return nil
	}
	advertise := s.advertiseAddr
	if advertise == "" {
		advertise = addr.String()
	}

	s.mu.Lock()
	s.advertiseAddr = advertise
	s.mu.Unlock()

	for _, name := range s.procs.Names() {
		if err := s.discovery.Register(ctx, name, registry.Instance{Addr: advertise, Weight: 1}, s.ttl); err != nil {
			return fmt.Errorf("advertise %q: %w", name, err)
		}
		s.mu.Lock()
		s.published = append(s.published, name)
		s.mu.Unlock()
	}
	return nil
}

func (s *Server) unpublish(ctx context.Context) error {
	s.mu.Lock()
	names := s.published
	s.published = nil
	addr := s.advertiseAddr
	s.mu.Unlock()

	if s.discovery == nil {
		return nil
	}
	var errs []error
	for _, name := range names {
		if err := s.discovery.Deregister(ctx, name, addr); err != nil {
			errs = append(errs, fmt.Errorf("deregister %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) setActive(conn net.Conn) {
	s.mu.Lock()
	s.active = conn
	s.mu.Unlock()
	if conn != nil && s.shutdown.Load() {
		conn.Close()
	}
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
}
