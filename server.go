package bconn

import (
	"context"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrServerClosed is returned by [Server.Serve] after Shutdown.
var ErrServerClosed = errors.New("bconn: server closed")

// Server accepts connections and serves each one with a [Conn] on its own goroutine.
type Server[S any] struct {
	cfg    Config[S]
	shared S

	mu       sync.Mutex
	ln       net.Listener
	conns    map[*Conn[S]]struct{}
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer inits a server. Every connection shares cfg and the application value shared.
func NewServer[S any](cfg Config[S], shared S) *Server[S] {
	return &Server[S]{
		cfg:    cfg.withDefaults(),
		shared: shared,
		conns:  map[*Conn[S]]struct{}{},
	}
}

// Addr returns the address of the listener passed to Serve, nil before that.
func (s *Server[S]) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}

	return s.ln.Addr()
}

// Listen opens a listener for Serve and records it, so Addr reports the bound address before serving
// starts.
func (s *Server[S]) Listen(ctx context.Context, network, address string) (net.Listener, error) {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", address)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	return ln, nil
}

// Serve accepts connections from ln until it fails or Shutdown is called, ctx is the parent of all
// request contexts.
func (s *Server[S]) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isShutdown() {
				return ErrServerClosed
			}

			return errors.Wrap(err, "accept")
		}

		c := NewConn(ctx, s.cfg, s.shared, nc)
		if !s.track(c) {
			_ = c.Close()
			return ErrServerClosed
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)

			_ = c.Serve(ctx, nc)
		}()
	}
}

// Shutdown stops accepting, closes every open connection and waits for their read loops and for tasks
// of the scheduler when it supports waiting, or until ctx is done.
func (s *Server[S]) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	ln := s.ln
	conns := make([]*Conn[S], 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Wrap(cerr, "close listener")
		}
	}

	for _, c := range conns {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		if w, ok := s.cfg.Scheduler.(interface{ Wait() }); ok {
			w.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.CombineErrors(err, ctx.Err())
	}
}

func (s *Server[S]) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.shutdown
}

func (s *Server[S]) track(c *Conn[S]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return false
	}

	s.conns[c] = struct{}{}

	return true
}

func (s *Server[S]) untrack(c *Conn[S]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, c)
}
