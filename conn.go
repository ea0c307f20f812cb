package bconn

import (
	"context"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/advdv/bconn"

// maxIdleBufferCap is the capacity above which an emptied connection buffer is released.
const maxIdleBufferCap = 64 << 10

var errIdleTimeout = errors.New("bconn: idle timeout")

// State of a connection.
type State int

const (
	StateAwaitingData State = iota
	StateBuffering
	StateDispatched
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingData:
		return "awaiting-data"
	case StateBuffering:
		return "buffering"
	case StateDispatched:
		return "dispatched"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the part of a network connection that a [Conn] owns: it writes responses to it and closes
// it. A net.Conn satisfies it.
type Transport interface {
	io.Writer
	io.Closer
	RemoteAddr() net.Addr
}

// Conn handles one client connection. Bytes fed to Receive accumulate in a buffer until the parser takes a
// complete request off its front, the request is then dispatched as a scheduled task while the connection
// keeps receiving. Receive must not be called concurrently; everything else is safe to call from
// dispatch tasks.
type Conn[S any] struct {
	cfg       Config[S]
	shared    S
	tracer    trace.Tracer
	transport Transport
	limiter   *rate.Limiter
	seq       *sequencer

	remote     netip.AddrPort
	remoteHost string
	remoteStr  string

	ctx    context.Context
	cancel context.CancelFunc

	// buf is only read and written from Receive.
	buf []byte

	smu      sync.Mutex
	state    State
	inflight int

	tasks  sync.WaitGroup
	wmu    sync.Mutex
	closed atomic.Bool
}

// NewConn sets up the handling of a freshly accepted connection. The remote address is captured once
// here. ctx is the parent of every request context; cancelling it does not close the connection, use
// Serve for that.
func NewConn[S any](ctx context.Context, cfg Config[S], shared S, transport Transport) *Conn[S] {
	cfg = cfg.withDefaults()

	c := &Conn[S]{
		cfg:       cfg,
		shared:    shared,
		tracer:    cfg.TracerProvider.Tracer(tracerName),
		transport: transport,
		state:     StateAwaitingData,
	}

	c.remote, c.remoteHost, c.remoteStr = peerOf(transport.RemoteAddr())
	c.ctx, c.cancel = context.WithCancel(ctx)

	if cfg.OrderedResponses {
		c.seq = newSequencer()
	}

	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	cfg.Metrics.connOpened()
	cfg.Logger.LogConnOpened(c.remoteStr)

	return c
}

// RemoteAddr returns the peer address, the zero value when the transport address is not an IP address.
func (c *Conn[S]) RemoteAddr() netip.AddrPort { return c.remote }

// RemoteHost returns the peer host as it is passed to the parser.
func (c *Conn[S]) RemoteHost() string { return c.remoteHost }

// State returns the current state of the connection.
func (c *Conn[S]) State() State {
	c.smu.Lock()
	defer c.smu.Unlock()

	return c.state
}

// Pending returns a copy of the bytes received but not yet part of a parsed request. It must be called
// from the goroutine that calls Receive.
func (c *Conn[S]) Pending() []byte {
	return append([]byte(nil), c.buf...)
}

// Receive appends chunk to the buffer and takes as many complete requests off its front as the parser
// finds, each one is dispatched. It returns [ErrClosed] after Close, malformed input is answered with an
// error response and not returned.
func (c *Conn[S]) Receive(chunk []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if len(chunk) == 0 {
		return nil
	}

	c.cfg.Metrics.received(len(chunk))
	c.buf = append(c.buf, chunk...)
	c.setState(StateBuffering)

	for len(c.buf) > 0 && !c.closed.Load() {
		res := c.cfg.Parser.Parse(c.buf, c.remoteHost)

		switch res.Outcome {
		case Parsed:
			if res.Request == nil || res.Consumed <= 0 || res.Consumed > len(c.buf) {
				c.cfg.Logger.LogDispatchFailure(c.remoteStr, errors.AssertionFailedf(
					"parser reported a request after consuming %d of %d bytes", res.Consumed, len(c.buf)))
				c.reject(c.seq.reserve(), CodeInternalServerError, false)
				c.resetBuffer()

				continue
			}

			n := copy(c.buf, c.buf[res.Consumed:])
			c.buf = c.buf[:n]
			c.handleRequest(res.Request)
		case MalformedInput:
			c.handleMalformed(res.Err)
		default:
			c.settle()
			return nil
		}
	}

	if len(c.buf) == 0 && cap(c.buf) > maxIdleBufferCap {
		c.buf = nil
	}

	c.settle()

	return nil
}

// SendResponse writes resp to the transport. Concurrent calls are written one after the other in the order
// they acquire the connection, the connection is not closed.
func (c *Conn[S]) SendResponse(resp Response) error {
	b, err := resp.MarshalWire()
	if err != nil {
		return errors.Wrap(err, "marshal response")
	}

	return c.write(b)
}

// SendError writes the minimal error response for code, see [NewErrorResponse].
func (c *Conn[S]) SendError(code Code) error {
	return c.SendResponse(NewErrorResponse(code))
}

// Close closes the transport and cancels the contexts of requests still being dispatched. Closing twice
// returns [ErrClosed].
func (c *Conn[S]) Close() error {
	return c.close(nil)
}

// Serve reads chunks from r and feeds them to Receive until the client stops sending, the idle timeout
// expires, ctx is done or the connection is closed otherwise. On end of input it waits for dispatches in
// flight before closing, so their responses still reach the client. It returns nil unless reading failed.
func (c *Conn[S]) Serve(ctx context.Context, r io.Reader) error {
	stop := context.AfterFunc(ctx, func() { _ = c.close(ctx.Err()) })
	defer stop()

	dl, _ := r.(interface{ SetReadDeadline(t time.Time) error })
	chunk := make([]byte, c.cfg.ReadSize)

	for {
		if dl != nil && c.cfg.IdleTimeout > 0 {
			if err := dl.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout)); err != nil {
				terr := transportErr("set read deadline", err)
				_ = c.close(terr)

				return terr
			}
		}

		n, err := r.Read(chunk)
		if n > 0 {
			if rerr := c.Receive(chunk[:n]); rerr != nil {
				return nil
			}
		}

		if c.closed.Load() {
			return nil
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			c.tasks.Wait()
			_ = c.close(nil)

			return nil
		case errors.Is(err, os.ErrDeadlineExceeded):
			_ = c.close(errIdleTimeout)

			return nil
		default:
			terr := transportErr("read", err)
			_ = c.close(terr)

			return terr
		}
	}
}

func (c *Conn[S]) handleRequest(req *Request) {
	c.cfg.Metrics.parsed()
	c.cfg.Logger.LogRequestParsed(c.remoteStr, req)

	ticket := c.seq.reserve()
	if c.limiter != nil && !c.limiter.Allow() {
		c.reject(ticket, CodeTooManyRequests, false)
		return
	}

	c.smu.Lock()
	c.inflight++
	c.state = StateDispatched
	c.smu.Unlock()
	c.tasks.Add(1)

	ex := &exchange[S]{conn: c, ticket: ticket}
	if !c.cfg.Scheduler.Schedule(func() { c.dispatch(req, ex) }) {
		c.taskDone()
		c.reject(ticket, CodeServiceUnavailable, false)
	}
}

func (c *Conn[S]) handleMalformed(merr *MalformedError) {
	if merr == nil {
		merr = Malformed(CodeBadRequest, "parser rejected the request")
	}

	c.cfg.Logger.LogMalformedRequest(c.remoteStr, merr)
	c.resetBuffer()

	if c.cfg.OnMalformed == MalformedCloseConn {
		c.reject(c.seq.reserve(), merr.Code, true)
		_ = c.close(merr)

		return
	}

	c.reject(c.seq.reserve(), merr.Code, false)
}

// dispatch runs on the scheduler. It never touches the buffer.
func (c *Conn[S]) dispatch(req *Request, ex *exchange[S]) {
	defer c.taskDone()

	start := time.Now()

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	ctx = c.cfg.Propagator.Extract(ctx, propagation.HeaderCarrier(req.Header))
	ctx, span := c.tracer.Start(ctx, req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
			attribute.String("client.address", c.remoteHost),
		))
	defer span.End()

	err := c.runDispatcher(ctx, req, ex)
	if err == nil && !ex.responded() {
		err = ErrNoResponse
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.cfg.Logger.LogDispatchFailure(c.remoteStr, err)

		if !ex.responded() {
			code := failureCode(err)
			if serr := ex.SendError(code); serr != nil {
				c.cfg.Logger.LogSendFailure(c.remoteStr, code, serr)
			}
		}
	}

	c.cfg.Metrics.dispatched(time.Since(start), err != nil)
}

func (c *Conn[S]) runDispatcher(ctx context.Context, req *Request, ex *exchange[S]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("bconn: dispatcher panicked: %v", r)
		}
	}()

	rc, err := c.cfg.ContextInit(ctx, req, c.shared)
	if err != nil {
		return errors.Wrap(err, "init request context")
	}

	return c.cfg.Dispatcher.Dispatch(rc, ex)
}

// reject answers a request slot with an error response without dispatching. With ordered responses the
// send waits for earlier responses, it then runs on its own goroutine unless wait is set.
func (c *Conn[S]) reject(ticket uint64, code Code, wait bool) {
	c.cfg.Metrics.rejected(code)

	ex := &exchange[S]{conn: c, ticket: ticket}
	send := func() {
		if err := ex.SendError(code); err != nil {
			c.cfg.Logger.LogSendFailure(c.remoteStr, code, err)
		}
	}

	if c.seq == nil || wait {
		send()
		return
	}

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		send()
	}()
}

func (c *Conn[S]) write(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	n, err := c.transport.Write(b)
	c.cfg.Metrics.sent(n)

	return transportErr("write", err)
}

func (c *Conn[S]) close(cause error) error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	c.cancel()
	c.seq.close()
	c.setState(StateClosed)

	err := transportErr("close", c.transport.Close())

	c.cfg.Metrics.connClosed()
	c.cfg.Logger.LogConnClosed(c.remoteStr, errors.CombineErrors(cause, err))

	return err
}

func (c *Conn[S]) resetBuffer() {
	c.buf = c.buf[:0]
}

func (c *Conn[S]) setState(s State) {
	c.smu.Lock()
	defer c.smu.Unlock()

	if c.state != StateClosed {
		c.state = s
	}
}

// settle derives the resting state after Receive handled a chunk.
func (c *Conn[S]) settle() {
	c.smu.Lock()
	defer c.smu.Unlock()

	switch {
	case c.state == StateClosed:
	case len(c.buf) > 0:
		c.state = StateBuffering
	case c.inflight > 0:
		c.state = StateDispatched
	default:
		c.state = StateAwaitingData
	}
}

func (c *Conn[S]) taskDone() {
	c.smu.Lock()
	c.inflight--
	if c.inflight == 0 && c.state == StateDispatched {
		c.state = StateAwaitingData
	}
	c.smu.Unlock()

	c.tasks.Done()
}

// peerOf captures the remote address once: as an address-port pair when it is an IP address, the host
// handed to the parser and the string used in logs.
func peerOf(addr net.Addr) (netip.AddrPort, string, string) {
	if addr == nil {
		return netip.AddrPort{}, "", "unknown"
	}

	str := addr.String()

	if tcp, ok := addr.(*net.TCPAddr); ok {
		ap := tcp.AddrPort()
		ap = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())

		return ap, ap.Addr().String(), str
	}

	if ap, err := netip.ParseAddrPort(str); err == nil {
		ap = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())

		return ap, ap.Addr().String(), str
	}

	if host, _, err := net.SplitHostPort(str); err == nil {
		return netip.AddrPort{}, host, str
	}

	return netip.AddrPort{}, str, str
}
