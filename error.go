package bconn

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Code mirrors the http status codes that the connection core can answer with on its own. Application code
// can use any other status code through [NewError], it is carried as-is.
type Code int

const (
	CodeUnknown                     Code = 0
	CodeOK                          Code = http.StatusOK                          // RFC 9110, 15.3.1
	CodeBadRequest                  Code = http.StatusBadRequest                  // RFC 9110, 15.5.1
	CodeNotFound                    Code = http.StatusNotFound                    // RFC 9110, 15.5.5
	CodeMethodNotAllowed            Code = http.StatusMethodNotAllowed            // RFC 9110, 15.5.6
	CodeRequestTimeout              Code = http.StatusRequestTimeout              // RFC 9110, 15.5.9
	CodeLengthRequired              Code = http.StatusLengthRequired              // RFC 9110, 15.5.12
	CodeRequestEntityTooLarge       Code = http.StatusRequestEntityTooLarge       // RFC 9110, 15.5.14
	CodeRequestURITooLong           Code = http.StatusRequestURITooLong           // RFC 9110, 15.5.15
	CodeTooManyRequests             Code = http.StatusTooManyRequests             // RFC 6585, 4
	CodeRequestHeaderFieldsTooLarge Code = http.StatusRequestHeaderFieldsTooLarge // RFC 6585, 5

	CodeInternalServerError     Code = http.StatusInternalServerError     // RFC 9110, 15.6.1
	CodeNotImplemented          Code = http.StatusNotImplemented          // RFC 9110, 15.6.2
	CodeServiceUnavailable      Code = http.StatusServiceUnavailable      // RFC 9110, 15.6.4
	CodeHTTPVersionNotSupported Code = http.StatusHTTPVersionNotSupported // RFC 9110, 15.6.6
)

// Text returns the reason phrase for the code, "Unknown" when there is none.
func (c Code) Text() string {
	if s := http.StatusText(int(c)); s != "" {
		return s
	}

	return "Unknown"
}

// IsError reports whether the code is a 4xx or 5xx status.
func (c Code) IsError() bool { return c >= 400 && c <= 599 }

var (
	// ErrClosed is returned by every operation on a connection after it was closed.
	ErrClosed = errors.New("bconn: connection closed")
	// ErrNoResponse is the failure recorded when a dispatcher returns without sending a response.
	ErrNoResponse = errors.New("bconn: dispatcher returned without a response")
	// ErrAlreadyResponded is returned when a second response is sent for the same request.
	ErrAlreadyResponded = errors.New("bconn: request already responded to")
)

// Error describes an http error.
type Error struct {
	code Code
	err  error
}

// NewError inits a new error given the error code.
func NewError(c Code, underlying error) *Error {
	return &Error{c, underlying}
}

func (e *Error) Code() Code    { return e.code }
func (e *Error) Unwrap() error { return e.err }
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.code.Text(), e.err.Error())
}

// CodeOf returns the error's status code if it is or wraps an [*Error] and
// [CodeUnknown] otherwise.
func CodeOf(err error) Code {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Code()
	}

	return CodeUnknown
}

// failureCode maps a dispatch failure onto the code that is sent to the client.
func failureCode(err error) Code {
	if c := CodeOf(err); c.IsError() {
		return c
	}

	return CodeInternalServerError
}

// MalformedError is reported by a [Parser] when the buffered bytes can never form a valid request.
type MalformedError struct {
	Code   Code
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed request (%d): %s", e.Code, e.Reason)
}

// Malformed builds a [MalformedError]. A code that is not a 4xx or 5xx status becomes 400.
func Malformed(c Code, format string, args ...any) *MalformedError {
	if !c.IsError() {
		c = CodeBadRequest
	}

	return &MalformedError{Code: c, Reason: fmt.Sprintf(format, args...)}
}

// TransportError wraps a failed read, write or close on the underlying connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "bconn: " + e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

func transportErr(op string, err error) error {
	if err == nil {
		return nil
	}

	return &TransportError{Op: op, Err: err}
}
