package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler serves one accepted connection. The connection is closed after it
// returns. logger carries request_id and remote fields.
type Handler func(ctx context.Context, conn net.Conn, logger *zap.Logger)

// Server is a TCP accept loop that runs one goroutine per connection and
// drains them on Stop.
type Server struct {
	name     string
	logger   *zap.Logger
	listener net.Listener

	// activeConns tracks connection goroutines for graceful shutdown
	activeConns sync.WaitGroup
	stopOnce    sync.Once
	serving     atomic.Bool
	loopDone    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// Listen binds address. Cancelling parent stops the server like Stop does,
// except that Serve's caller must still call Stop to wait for the drain.
func Listen(parent context.Context, address, name string, logger *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Server{
		name:     name,
		logger:   logger,
		listener: listener,
		loopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	context.AfterFunc(ctx, func() { listener.Close() })
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until the server is stopped. It returns nil
// after Stop or parent cancellation.
func (s *Server) Serve(h Handler) error {
	if !s.serving.CompareAndSwap(false, true) {
		return errors.New("server already serving")
	}
	defer close(s.loopDone)

	s.logger.Info("Listening",
		zap.String("server", s.name),
		zap.String("address", s.listener.Addr().String()))

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("Accept failed", zap.String("server", s.name), zap.Error(err))
			continue
		}

		s.activeConns.Add(1)
		go func() {
			defer s.activeConns.Done()
			s.serveConn(conn, h)
		}()
	}
}

// Stop closes the listener, cancels in-flight handlers and waits for them.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.listener.Close()
	})
	if s.serving.Load() {
		<-s.loopDone
	}
	s.activeConns.Wait()
}

func (s *Server) serveConn(conn net.Conn, h Handler) {
	logger := s.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("remote", conn.RemoteAddr().String()))

	defer func() {
		// Panic recovery - a bad request must not take down the server
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler", zap.Any("panic", r))
		}
		conn.Close()
	}()

	// a handler blocked on a silent peer ends when the server stops
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	h(s.ctx, conn, logger)
}
