// Package server runs the MCP transports: a stdio pump for the common
// case and a TCP accept loop for subagents and remote clients. Framing
// is newline-delimited JSON in both directions; request semantics live
// in the rpc handler.
package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/rpc"
)

// maxLineBytes caps a single request line.
const maxLineBytes = 10 << 20

// Server pumps requests between a transport and the handler.
type Server struct {
	handler *rpc.Handler
}

// New creates a server over the handler.
func New(handler *rpc.Handler) *Server {
	return &Server{handler: handler}
}

// ServeStdio reads requests from r and writes responses to w until EOF
// or ctx cancellation. A clean EOF returns nil.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	L_info("server: serving on stdio")
	return s.pump(ctx, r, w)
}

// ServeTCP binds addr and serves until ctx is cancelled. Bind failure is
// returned to the caller; each accepted connection runs its own pump.
func (s *Server) ServeTCP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves connections from ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	L_info("server: listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				L_info("server: shutting down")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// serveConn pumps one connection. Requests are handled strictly in
// arrival order; a call in flight when the peer disconnects has its
// result discarded with the connection.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	L_debug("server: connection open", "remote", remote)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	if err := s.pump(ctx, conn, conn); err != nil && ctx.Err() == nil {
		L_debug("server: connection error", "remote", remote, "error", err)
	}
	L_debug("server: connection closed", "remote", remote)
}

// pump is the shared read/dispatch/write loop. Responses are flushed
// per write so single-request clients never stall on buffering.
func (s *Server) pump(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	out := bufio.NewWriter(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp := s.handler.Handle(ctx, scanner.Bytes())
		if resp == nil {
			continue
		}

		if _, err := out.Write(resp); err != nil {
			return err
		}
		if err := out.WriteByte('\n'); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}
