package bconn

// Handler is application logic that writes its response into a buffered [ResponseWriter] and may return an
// error instead.
type Handler[S any] interface {
	ServeBConn(rc RequestContext[S], w ResponseWriter) error
}

// HandlerFunc allow casting a function to imple [Handler].
type HandlerFunc[S any] func(RequestContext[S], ResponseWriter) error

// ServeBConn implements the [Handler] interface.
func (f HandlerFunc[S]) ServeBConn(rc RequestContext[S], w ResponseWriter) error {
	return f(rc, w)
}

// ToDispatcher converts a handler into a [Dispatcher]. The handler writes into a fresh buffer that is sent
// as the response when it returns nil. When it returns an error the buffer is discarded: an [*Error] with
// a 4xx or 5xx code is answered with that code, any other error is returned so the connection logs it and
// answers 500.
func ToDispatcher[S any](h Handler[S], bufLimit int) Dispatcher[S] {
	return DispatcherFunc[S](func(rc RequestContext[S], w Responder) error {
		bresp := NewResponseBuffer(bufLimit)
		defer bresp.Free()

		if err := h.ServeBConn(rc, bresp); err != nil {
			bresp.Reset()

			if c := CodeOf(err); c.IsError() {
				return w.SendError(c)
			}

			return err
		}

		return w.SendResponse(bresp.Response())
	})
}
