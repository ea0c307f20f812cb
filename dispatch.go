package bconn

import (
	"context"
	"net/netip"
	"time"
)

// RequestContext pairs a parsed request with the application-wide shared value S. The embedded context is
// created for this request only and is cancelled when its dispatch ends or the connection closes.
type RequestContext[S any] struct {
	context.Context
	Request *Request
	Shared  S
}

// WithContext returns a copy of rc that carries ctx.
func (rc RequestContext[S]) WithContext(ctx context.Context) RequestContext[S] {
	rc.Context = ctx
	return rc
}

// ContextInitFunc builds the request context for a parsed request. Returning an error fails the dispatch.
type ContextInitFunc[S any] func(ctx context.Context, req *Request, shared S) (RequestContext[S], error)

// StdContextInit pairs the request with the shared value as-is.
func StdContextInit[S any](ctx context.Context, req *Request, shared S) (RequestContext[S], error) {
	return RequestContext[S]{Context: ctx, Request: req, Shared: shared}, nil
}

// Responder sends the single response for one dispatched request.
type Responder interface {
	SendResponse(resp Response) error
	SendError(c Code) error
	RemoteAddr() netip.AddrPort
}

// Dispatcher turns a request into a response. It runs as a scheduled task, concurrently with the
// connection reading more bytes, and must send through w before it returns. A returned error is
// answered with an error response: the code of a wrapped [*Error] or 500.
type Dispatcher[S any] interface {
	Dispatch(rc RequestContext[S], w Responder) error
}

// DispatcherFunc allows casting a function to implement [Dispatcher].
type DispatcherFunc[S any] func(RequestContext[S], Responder) error

// Dispatch implements the [Dispatcher] interface.
func (f DispatcherFunc[S]) Dispatch(rc RequestContext[S], w Responder) error {
	return f(rc, w)
}

// Middleware for cross-cutting concerns around dispatching.
type Middleware[S any] func(Dispatcher[S]) Dispatcher[S]

// Wrap takes the inner dispatcher d and wraps it with middleware. The middleware provided first is called
// first and is the "outer" most wrapping, the middleware provided last will be the "inner most" wrapping
// (closest to the dispatcher).
func Wrap[S any](d Dispatcher[S], m ...Middleware[S]) Dispatcher[S] {
	wrapped := d
	for i := len(m) - 1; i >= 0; i-- {
		wrapped = m[i](wrapped)
	}

	return wrapped
}

// WithDeadline bounds the request context of every dispatch to timeout. A timeout of zero or less passes
// the context through unchanged.
func WithDeadline[S any](timeout time.Duration) Middleware[S] {
	return func(next Dispatcher[S]) Dispatcher[S] {
		if timeout <= 0 {
			return next
		}

		return DispatcherFunc[S](func(rc RequestContext[S], w Responder) error {
			ctx, cancel := context.WithTimeout(rc.Context, timeout)
			defer cancel()

			return next.Dispatch(rc.WithContext(ctx), w)
		})
	}
}
