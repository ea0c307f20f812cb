// Package example implements example middleware in an outside package.
package example

import (
	"context"
	"log/slog"

	"github.com/advdv/bconn"
)

// ctxKey type scopes middlware values.
type ctxKey string

// Middleware provides an example for middleware that adds a logger to the request context.
func Middleware[S any](logs *slog.Logger) bconn.Middleware[S] {
	return func(n bconn.Dispatcher[S]) bconn.Dispatcher[S] {
		return bconn.DispatcherFunc[S](func(rc bconn.RequestContext[S], w bconn.Responder) error {
			logs := logs.With(
				slog.String("method", rc.Request.Method),
				slog.String("path", rc.Request.Path),
				slog.String("remote", rc.Request.RemoteHost))

			return n.Dispatch(rc.WithContext(context.WithValue(rc.Context, ctxKey("slog"), logs)), w)
		})
	}
}

// Log returns the logger that was added by [Middleware], or nil.
func Log(ctx context.Context) *slog.Logger {
	v, _ := ctx.Value(ctxKey("slog")).(*slog.Logger)

	return v
}
