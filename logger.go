package bconn

import (
	"log"
	"sync/atomic"
	"testing"
)

// Logger can be implemented to get informed about important states of a connection. The remote
// argument is the peer address captured when the connection was made.
type Logger interface {
	LogConnOpened(remote string)
	LogConnClosed(remote string, err error)
	LogRequestParsed(remote string, req *Request)
	LogMalformedRequest(remote string, err *MalformedError)
	LogDispatchFailure(remote string, err error)
	LogSendFailure(remote string, code Code, err error)
}

type stdLogger struct{ *log.Logger }

func (l stdLogger) LogConnOpened(string) {}

func (l stdLogger) LogConnClosed(remote string, err error) {
	if err != nil {
		l.Logger.Printf("bconn: connection %s closed with error: %s", remote, err)
	}
}

func (l stdLogger) LogRequestParsed(string, *Request) {}

func (l stdLogger) LogMalformedRequest(remote string, err *MalformedError) {
	l.Logger.Printf("bconn: malformed request from %s: %s", remote, err)
}

func (l stdLogger) LogDispatchFailure(remote string, err error) {
	l.Logger.Printf("bconn: dispatch for %s failed: %s", remote, err)
}

func (l stdLogger) LogSendFailure(remote string, code Code, err error) {
	l.Logger.Printf("bconn: failed to send %d response to %s: %s", code, remote, err)
}

// NewStdLogger logs failures through a standard library logger. Connection lifecycle events are dropped.
func NewStdLogger(l *log.Logger) Logger {
	return stdLogger{l}
}

type nopLogger struct{}

func (nopLogger) LogConnOpened(string)                        {}
func (nopLogger) LogConnClosed(string, error)                 {}
func (nopLogger) LogRequestParsed(string, *Request)           {}
func (nopLogger) LogMalformedRequest(string, *MalformedError) {}
func (nopLogger) LogDispatchFailure(string, error)            {}
func (nopLogger) LogSendFailure(string, Code, error)          {}

// NopLogger discards everything.
func NopLogger() Logger { return nopLogger{} }

type TestLogger struct {
	tb testing.TB

	NumLogConnOpened       int64
	NumLogConnClosed       int64
	NumLogRequestParsed    int64
	NumLogMalformedRequest int64
	NumLogDispatchFailure  int64
	NumLogSendFailure      int64
}

func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) LogConnOpened(remote string) {
	atomic.AddInt64(&l.NumLogConnOpened, 1)
	l.tb.Logf("bconn: connection from %s", remote)
}

func (l *TestLogger) LogConnClosed(remote string, err error) {
	atomic.AddInt64(&l.NumLogConnClosed, 1)
	l.tb.Logf("bconn: connection %s closed: %v", remote, err)
}

func (l *TestLogger) LogRequestParsed(remote string, req *Request) {
	atomic.AddInt64(&l.NumLogRequestParsed, 1)
	l.tb.Logf("bconn: request for %q from %s fully parsed", req.Path, remote)
}

func (l *TestLogger) LogMalformedRequest(remote string, err *MalformedError) {
	atomic.AddInt64(&l.NumLogMalformedRequest, 1)
	l.tb.Logf("bconn: malformed request from %s: %s", remote, err)
}

func (l *TestLogger) LogDispatchFailure(remote string, err error) {
	atomic.AddInt64(&l.NumLogDispatchFailure, 1)
	l.tb.Logf("bconn: dispatch for %s failed: %s", remote, err)
}

func (l *TestLogger) LogSendFailure(remote string, code Code, err error) {
	atomic.AddInt64(&l.NumLogSendFailure, 1)
	l.tb.Logf("bconn: failed to send %d to %s: %s", code, remote, err)
}

var _ Logger = &TestLogger{}
