// Package bconn provides the connection core of an HTTP/1.x server: it turns the arbitrary chunks of bytes
// that arrive on a client connection into complete requests and hands each one to application code that runs
// concurrently with the connection.
//
// # Overview
//
// A [Conn] owns the bytes received from one client. Every chunk passed to [Conn.Receive] is appended to a
// per-connection buffer and a [Parser] is asked to take a complete request off its front. A parser answers
// with one of three outcomes:
//
//   - [NeedsMoreData]: the buffer holds the start of a request, the connection waits for more bytes
//   - [Parsed]: a complete request was found, the bytes it used are dropped from the buffer
//   - [MalformedInput]: no amount of further bytes makes this a valid request
//
// Requests may be split over any number of chunks, and a single chunk may hold several pipelined requests.
// Whatever follows a parsed request stays in the buffer and is parsed next.
//
// A minimal example:
//
//	conn := bconn.NewConn(ctx, bconn.Config[*App]{
//	    Dispatcher: bconn.DispatcherFunc[*App](func(rc bconn.RequestContext[*App], w bconn.Responder) error {
//	        return w.SendResponse(bconn.NewResponse(http.StatusOK, nil, []byte("hello")))
//	    }),
//	}, app, netConn)
//
//	err := conn.Serve(ctx, netConn)
//
// # Dispatching
//
// Each parsed request is dispatched as a task on the configured [Scheduler]. The task receives a
// [RequestContext] that pairs the request with the application-wide shared value and a context that ends
// when the dispatch ends or the connection closes. The connection keeps reading while tasks run.
//
// A [Dispatcher] answers through its [Responder] exactly once. When it returns an error instead, the
// connection answers for it:
//
//   - [*Error] (created with [NewError]): the error's code
//   - a panic, or a return without a response: 500 Internal Server Error
//   - any other error: 500 Internal Server Error
//
// Responses of concurrent dispatches leave in the order they are sent. Set Config.OrderedResponses to
// write them in the order their requests were parsed, as HTTP/1.1 pipelining expects.
//
// # Malformed Input
//
// Malformed input is answered with a minimal error response built by [NewErrorResponse] and never reaches
// the dispatcher. The buffer is then discarded. Config.OnMalformed decides whether the connection stays
// open for a fresh request ([MalformedResetBuffer]) or is closed ([MalformedCloseConn]).
//
// # Handlers
//
// For application code that prefers writing into an http.ResponseWriter, a [Handler] writes into a
// buffered [ResponseWriter]. [ToDispatcher] converts it: the buffer is sent when the handler returns nil and
// is discarded when it returns an error, so a half-written response never reaches the client.
//
//	func getItem(rc bconn.RequestContext[*App], w bconn.ResponseWriter) error {
//	    item, err := rc.Shared.DB.GetItem(rc, rc.Request.Query.Get("id"))
//	    if err != nil {
//	        return bconn.NewError(bconn.CodeNotFound, err)
//	    }
//
//	    return json.NewEncoder(w).Encode(item)
//	}
//
// # Routing
//
// The core does not route. [ServeMux] is a dispatcher that does, with the patterns of [http.ServeMux]:
//
//	mux := bconn.NewServeMux[*App]()
//	mux.Use(requireAuth)
//	mux.Handle("GET /items/{id}", bconn.ToDispatcher(getItem, -1))
//	mux.Mount("/admin", adminDispatcher)
//
// Wildcard values are read with [PathValue]. Mounted dispatchers see the path with the mount prefix removed.
//
// # Middleware
//
// [Middleware] wraps dispatchers for cross-cutting concerns. [Wrap] applies them with the first one as the
// outer most wrapping. [WithDeadline] is provided to bound the time a dispatch may take.
//
// # Serving
//
// [Conn.Serve] drives a connection from a reader, closing it at end of input, on an idle timeout or when
// its context is done. [Server] accepts connections from a listener and serves each one on its own
// goroutine. Failures and lifecycle events are reported to a [Logger], counted by [Metrics] and traced
// through an OpenTelemetry tracer provider.
package bconn
