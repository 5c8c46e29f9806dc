package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/salestore/internal/session"
)

// Config holds listener settings.
type Config struct {
	Addr    string // host:port to listen on
	Workers int    // concurrent sessions; at least 1
}

// Stats is a snapshot of server activity.
type Stats struct {
	Active        int64 // sessions being served
	Queued        int   // accepted connections waiting for a worker
	QueueCapacity int
	QueueResizes  int
	Served        int64 // sessions finished
}

// Server dispatches accepted connections to session workers.
type Server struct {
	cfg    Config
	svc    *session.Services
	logger *slog.Logger

	queue *Queue[net.Conn]

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	shutdown bool

	active atomic.Int64
	served atomic.Int64
}

// New creates a server. svc is shared by all sessions.
func New(cfg Config, svc *session.Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Server{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
		queue:  NewQueue[net.Conn](cfg.Workers),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or accepting fails.
// On return the listener, the queue and every open connection are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	s.logger.Info("server started",
		"addr", ln.Addr().String(),
		"workers", s.cfg.Workers,
	)

	g.Go(func() error {
		<-gctx.Done()
		ln.Close()
		s.queue.Close()
		s.closeConns()
		return nil
	})

	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})

	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			s.worker(gctx)
			return nil
		})
	}

	err := g.Wait()

	for {
		conn, ok := s.queue.TryPop()
		if !ok {
			break
		}
		conn.Close()
	}

	s.logger.Info("server stopped",
		"served", s.served.Load(),
	)
	return err
}

// Stats returns a snapshot of server activity.
func (s *Server) Stats() Stats {
	qs := s.queue.Stats()
	return Stats{
		Active:        s.active.Load(),
		Queued:        qs.Len,
		QueueCapacity: qs.Capacity,
		QueueResizes:  qs.Resizes,
		Served:        s.served.Load(),
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept failed, retrying", "error", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.queue.Push(conn) {
			conn.Close()
			return nil
		}
		s.logger.Debug("connection accepted",
			"remote", conn.RemoteAddr().String(),
			"queued", s.queue.Len(),
		)
	}
}

func (s *Server) worker(ctx context.Context) {
	for {
		conn, ok := s.queue.Pop()
		if !ok {
			return
		}
		s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if !s.track(conn) {
		return
	}
	defer s.untrack(conn)

	s.active.Add(1)
	defer s.active.Add(-1)
	defer s.served.Add(1)

	sess := session.New(conn, s.svc)
	if err := sess.Serve(ctx); err != nil {
		s.logger.Debug("session ended with error",
			"session", sess.ID(),
			"user", sess.User(),
			"error", err,
		)
	}
}

// track registers conn for shutdown. Returns false once shutdown started.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shutdown = true
	for conn := range s.conns {
		conn.Close()
	}
	if n := len(s.conns); n > 0 {
		s.logger.Info("closed open connections", "count", n)
	}
}
