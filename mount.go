package bconn

import (
	"strings"
)

// Mount mounts a dispatcher on a sub-path pattern. The mounted dispatcher receives requests with the mount
// prefix stripped from the path. Middleware registered via Use() sees the original path; the strip happens
// after middleware.
func (m *ServeMux[S]) Mount(pattern string, d Dispatcher[S]) {
	method, path := splitMethodPattern(pattern)

	wrapped := Wrap(stripPrefix(path, d), m.middlewares.buffered...)

	m.handle(method+path, wrapped)
	m.handle(method+path+"/", wrapped)
}

// MountFunc mounts a function on a sub-path pattern, see [ServeMux.Mount].
func (m *ServeMux[S]) MountFunc(pattern string, d DispatcherFunc[S]) {
	m.Mount(pattern, d)
}

func splitMethodPattern(pattern string) (method, path string) {
	if idx := strings.LastIndex(pattern, "/"); idx > 0 {
		prefix := pattern[:idx]
		if spaceIdx := strings.Index(prefix, " "); spaceIdx >= 0 {
			return pattern[:spaceIdx+1], pattern[spaceIdx+1:]
		}
	}

	return "", pattern
}

func stripPrefix[S any](prefix string, d Dispatcher[S]) Dispatcher[S] {
	return DispatcherFunc[S](func(rc RequestContext[S], w Responder) error {
		p := strings.TrimPrefix(rc.Request.Path, prefix)
		if p == "" {
			p = "/"
		}

		req := *rc.Request
		req.Path = p
		rc.Request = &req

		return d.Dispatch(rc, w)
	})
}
