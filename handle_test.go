package bconn_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/advdv/bconn"
	"github.com/stretchr/testify/require"
)

type testShared struct {
	Greeting string
}

func handleGreet(rc bconn.RequestContext[testShared], w bconn.ResponseWriter) error {
	w.Header().Set("Is-Bar", "rab")
	w.WriteHeader(http.StatusCreated)

	fmt.Fprintf(w, `%s, at %s`, rc.Shared.Greeting, rc.Request.Path)

	switch rc.Request.Path {
	case "/trigger-error":
		return errors.New("triggered error")
	case "/trigger-404":
		return bconn.NewError(bconn.CodeNotFound, errors.New("nothing here"))
	}

	return nil
}

func dispatchGreet(tb testing.TB, path string) (*nopResponder, error) {
	tb.Helper()

	d := bconn.ToDispatcher(bconn.HandlerFunc[testShared](handleGreet), -1)
	rc, err := bconn.StdContextInit(context.Background(), &bconn.Request{Method: "GET", Path: path},
		testShared{Greeting: "hello foo"})
	require.NoError(tb, err)

	w := &nopResponder{}

	return w, d.Dispatch(rc, w)
}

func TestHandleBasic(t *testing.T) {
	w, err := dispatchGreet(t, "/bar")
	require.NoError(t, err)
	require.Len(t, w.sent, 1)

	resp, ok := w.sent[0].(*bconn.BasicResponse)
	require.True(t, ok)
	require.Equal(t, http.StatusCreated, resp.Status)
	require.Equal(t, `rab`, resp.Header.Get("Is-Bar"))
	require.Equal(t, `hello foo, at /bar`, string(resp.Body))
}

func TestHandleDefaultError(t *testing.T) {
	w, err := dispatchGreet(t, "/trigger-error")
	require.EqualError(t, err, "triggered error")
	require.Empty(t, w.sent, "unhandled errors are answered by the connection")
}

func TestHandleCodedError(t *testing.T) {
	w, err := dispatchGreet(t, "/trigger-404")
	require.NoError(t, err)
	require.Len(t, w.sent, 1)

	resp := w.sent[0].(*bconn.BasicResponse)
	require.Equal(t, http.StatusNotFound, resp.Status)
	require.Empty(t, resp.Header.Get("Is-Bar"))
	require.Equal(t, "Not Found\n", string(resp.Body))
}

func TestHandleOverConn(t *testing.T) {
	sched, tr := &recordScheduler{}, newFakeTransport()
	conn := bconn.NewConn(t.Context(), bconn.Config[testShared]{
		Dispatcher: bconn.ToDispatcher(bconn.HandlerFunc[testShared](handleGreet), 1024),
		Scheduler:  sched,
	}, testShared{Greeting: "hi"}, tr)

	require.NoError(t, conn.Receive([]byte(getFoo)))
	sched.RunAll()

	resps := tr.Responses(t)
	require.Len(t, resps, 1)
	require.Equal(t, http.StatusCreated, resps[0].StatusCode)
	require.Equal(t, "hi, at /foo", resps[0].Header.Get("X-Test-Body"))
}
