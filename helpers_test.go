package bconn_test

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/advdv/bconn"
	"github.com/stretchr/testify/require"
)

// fakeTransport records everything written to it.
type fakeTransport struct {
	mu       sync.Mutex
	out      bytes.Buffer
	closed   bool
	writeErr error
	addr     net.Addr
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{addr: &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 40100}}
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, net.ErrClosed
	}

	if t.writeErr != nil {
		return 0, t.writeErr
	}

	return t.out.Write(p)
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return net.ErrClosed
	}

	t.closed = true

	return nil
}

func (t *fakeTransport) RemoteAddr() net.Addr { return t.addr }

func (t *fakeTransport) Output() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.out.String()
}

func (t *fakeTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closed
}

// responses parses everything written so far as a sequence of responses.
func (t *fakeTransport) Responses(tb testing.TB) []*http.Response {
	tb.Helper()

	rd := bufio.NewReader(strings.NewReader(t.Output()))

	var resps []*http.Response
	for {
		if _, err := rd.Peek(1); err != nil {
			return resps
		}

		resp, err := http.ReadResponse(rd, nil)
		require.NoError(tb, err)

		body := new(bytes.Buffer)
		_, err = body.ReadFrom(resp.Body)
		require.NoError(tb, err)
		resp.Body.Close()
		resp.Header.Set("X-Test-Body", body.String())

		resps = append(resps, resp)
	}
}

// recordScheduler keeps tasks until the test runs them.
type recordScheduler struct {
	mu     sync.Mutex
	tasks  []func()
	refuse bool
}

func (s *recordScheduler) Schedule(task func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refuse {
		return false
	}

	s.tasks = append(s.tasks, task)

	return true
}

func (s *recordScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tasks)
}

func (s *recordScheduler) Task(i int) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tasks[i]
}

func (s *recordScheduler) RunAll() {
	for i := range s.Len() {
		s.Task(i)()
	}
}

// recordDispatcher answers every request with its path and remembers it.
type recordDispatcher struct {
	mu   sync.Mutex
	reqs []*bconn.Request
}

func (d *recordDispatcher) Dispatch(rc bconn.RequestContext[string], w bconn.Responder) error {
	d.mu.Lock()
	d.reqs = append(d.reqs, rc.Request)
	d.mu.Unlock()

	return w.SendResponse(bconn.NewResponse(http.StatusOK, nil, []byte(rc.Shared+":"+rc.Request.Path)))
}

func (d *recordDispatcher) Requests() []*bconn.Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*bconn.Request(nil), d.reqs...)
}

const (
	getFoo  = "GET /foo HTTP/1.1\r\nHost: example.com\r\n\r\n"
	postBar = "POST /bar?x=1 HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\nhello"
)

func newTestConn(tb testing.TB, cfg bconn.Config[string]) (*bconn.Conn[string], *fakeTransport) {
	tb.Helper()

	tr := newFakeTransport()

	return bconn.NewConn(tb.Context(), cfg, "app", tr), tr
}
