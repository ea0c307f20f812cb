package bconn

import (
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// exchange is the [Responder] of one request slot. It accepts a single response and, with ordered
// responses, holds it back until every earlier slot was answered.
type exchange[S any] struct {
	conn   *Conn[S]
	ticket uint64
	done   atomic.Bool
}

func (e *exchange[S]) SendResponse(resp Response) error {
	b, err := resp.MarshalWire()
	if err != nil {
		return errors.Wrap(err, "marshal response")
	}

	if !e.done.CompareAndSwap(false, true) {
		return ErrAlreadyResponded
	}

	defer e.conn.seq.release(e.ticket)

	if err := e.conn.seq.await(e.ticket); err != nil {
		return err
	}

	return e.conn.write(b)
}

func (e *exchange[S]) SendError(c Code) error {
	return e.SendResponse(NewErrorResponse(c))
}

func (e *exchange[S]) RemoteAddr() netip.AddrPort { return e.conn.remote }

func (e *exchange[S]) responded() bool { return e.done.Load() }

// sequencer hands out consecutive tickets in parse order and lets the holder of a ticket write only when
// all lower tickets were released. A nil sequencer imposes no order.
type sequencer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	next   uint64
	turn   uint64
	closed bool
}

func newSequencer() *sequencer {
	s := &sequencer{}
	s.cond = sync.NewCond(&s.mu)

	return s
}

func (s *sequencer) reserve() uint64 {
	if s == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.next
	s.next++

	return t
}

func (s *sequencer) await(t uint64) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.turn != t && !s.closed {
		s.cond.Wait()
	}

	if s.closed {
		return ErrClosed
	}

	return nil
}

func (s *sequencer) release(t uint64) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turn == t {
		s.turn++
		s.cond.Broadcast()
	}
}

func (s *sequencer) close() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.cond.Broadcast()
}
