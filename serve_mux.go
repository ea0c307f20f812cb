package bconn

import (
	"context"
	"net/http"
	"net/url"
)

// ServeMux is a [Dispatcher] that routes requests to other dispatchers by the patterns of [http.ServeMux].
// Requests that match no pattern are answered the way [http.ServeMux] would: 404, 405 with an Allow
// header or a redirect to the cleaned path.
type ServeMux[S any] struct {
	mux         *http.ServeMux
	middlewares struct {
		captured bool
		buffered []Middleware[S]
	}
}

// NewServeMux creates a new, empty ServeMux.
func NewServeMux[S any]() *ServeMux[S] {
	return &ServeMux[S]{mux: http.NewServeMux()}
}

// Use allows providing of middleware. It applies to every dispatcher registered after it.
func (m *ServeMux[S]) Use(mw ...Middleware[S]) {
	m.ensureNoUseAfterHandle()
	m.middlewares.buffered = append(m.middlewares.buffered, mw...)
}

// HandleFunc routes the pattern to a function.
func (m *ServeMux[S]) HandleFunc(pattern string, d DispatcherFunc[S]) {
	m.Handle(pattern, d)
}

// Handle routes the pattern to a dispatcher. Patterns are those of [http.ServeMux], including methods and
// wildcards; wildcard values are read with [PathValue].
func (m *ServeMux[S]) Handle(pattern string, d Dispatcher[S]) {
	m.handle(pattern, Wrap(d, m.middlewares.buffered...))
}

// Dispatch implements [Dispatcher].
func (m *ServeMux[S]) Dispatch(rc RequestContext[S], w Responder) error {
	rt := &routing[S]{rc: rc, w: w}

	hr := (&http.Request{
		Method:     rc.Request.Method,
		URL:        requestURL(rc.Request),
		Proto:      rc.Request.Proto,
		Header:     rc.Request.Header,
		Host:       rc.Request.Host,
		RequestURI: rc.Request.Target,
	}).WithContext(context.WithValue(rc.Context, routingKey{}, rt))

	var fw fallbackWriter
	m.mux.ServeHTTP(&fw, hr)

	if rt.matched {
		return rt.err
	}

	return w.SendResponse(fw.response())
}

// requestURL keeps the escaping of the request target so escaped slashes stay inside a path segment. A
// request without a usable target is routed on its decoded path.
func requestURL(req *Request) *url.URL {
	if u, err := url.ParseRequestURI(req.Target); err == nil && u.Path == req.Path {
		return u
	}

	return &url.URL{Path: req.Path, RawQuery: req.Query.Encode()}
}

func (m *ServeMux[S]) handle(pattern string, d Dispatcher[S]) {
	m.middlewares.captured = true

	m.mux.Handle(pattern, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		rt, _ := r.Context().Value(routingKey{}).(*routing[S])
		if rt == nil {
			return
		}

		rt.matched = true
		rt.err = d.Dispatch(rt.rc.WithContext(context.WithValue(r.Context(), routedKey{}, r)), rt.w)
	}))
}

func (m *ServeMux[S]) ensureNoUseAfterHandle() {
	if m.middlewares.captured {
		panic("bconn: cannot call Use() after calling Handle")
	}
}

// PathValue returns the value of the named wildcard of the pattern that routed the dispatch, or the empty
// string when there is none.
func PathValue(ctx context.Context, name string) string {
	r, _ := ctx.Value(routedKey{}).(*http.Request)
	if r == nil {
		return ""
	}

	return r.PathValue(name)
}

type (
	routingKey struct{}
	routedKey  struct{}
)

// routing carries one dispatch through the http.ServeMux.
type routing[S any] struct {
	rc      RequestContext[S]
	w       Responder
	matched bool
	err     error
}

// fallbackWriter records what http.ServeMux answers when no pattern matched.
type fallbackWriter struct {
	header http.Header
	code   int
}

func (f *fallbackWriter) Header() http.Header {
	if f.header == nil {
		f.header = http.Header{}
	}

	return f.header
}

func (f *fallbackWriter) WriteHeader(code int) {
	if f.code == 0 {
		f.code = code
	}
}

func (f *fallbackWriter) Write(b []byte) (int, error) {
	f.WriteHeader(http.StatusOK)
	return len(b), nil
}

func (f *fallbackWriter) response() *BasicResponse {
	code := Code(f.code)
	if code == CodeUnknown {
		code = CodeNotFound
	}

	resp := NewErrorResponse(code)
	for _, k := range []string{"Allow", "Location"} {
		if v := f.header.Get(k); v != "" {
			resp.Header.Set(k, v)
		}
	}

	return resp
}
