package agi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/book-expert/logger"
)

// Server is a FastAGI listener. Every connection is one call and is served
// on its own goroutine.
type Server struct {
	addr    string
	handler *Handler
	log     *logger.Logger
	wg      sync.WaitGroup
}

// NewServer creates a FastAGI server on addr, e.g. ":4573".
func NewServer(addr string, handler *Handler, log *logger.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		log:     log,
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var listenConfig net.ListenConfig

	listener, err := listenConfig.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("fastagi listen: %w", err)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled, then waits
// for the calls in progress to finish.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.log.Info("FastAGI server listening on %s", listener.Addr())

	go func() {
		<-ctx.Done()
		s.log.Info("FastAGI server shutting down")

		_ = listener.Close()
	}()

	defer s.wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("fastagi accept: %w", err)
		}

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock any pending read when the server stops.
	go func() {
		<-connCtx.Done()

		_ = conn.Close()
	}()

	session := NewSession(conn, conn)

	err := session.ReadEnv()
	if err != nil {
		s.log.Warn("Dropping FastAGI connection from %s: %v", conn.RemoteAddr(), err)

		return
	}

	result := s.handler.Serve(connCtx, session)
	s.log.Info("Request %s finished with %s", session.Env(envRequest), result.Status)
}

// StdioCommand is the subcommand that selects stdio mode. Asterisk passes it
// as agi_arg_1 for AGI(picotts,agi,text,language,interrupt).
const StdioCommand = "agi"

// ServeStdio serves a single request over r and w, as when Asterisk starts
// the program through AGI(). A leading StdioCommand argument is skipped.
func ServeStdio(ctx context.Context, r io.Reader, w io.Writer, handler *Handler) (int, error) {
	session := NewSession(r, w)

	err := session.ReadEnv()
	if err != nil {
		return 1, err
	}

	if session.Env(argPrefix+"1") == StdioCommand {
		session.SkipArgs(1)
	}

	return handler.Serve(ctx, session).Code(), nil
}
