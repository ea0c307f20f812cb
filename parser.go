package bconn

import (
	"net/http"
	"net/url"
)

// Request is a fully received HTTP request as produced by a [Parser]. It does not alias the connection
// buffer it was parsed from.
type Request struct {
	Method     string
	Target     string // request-target as sent, e.g. "/items?id=1"
	Path       string
	Query      url.Values
	Proto      string
	Header     http.Header
	Host       string
	Body       []byte
	RemoteHost string

	// Close is set when the client asked for the connection to be closed after this request.
	Close bool
	// Complete is false for requests that were cut off. Parsers only hand out complete requests.
	Complete bool
	// RawSize is the number of buffered bytes this request was parsed from.
	RawSize int
}

// Outcome tells what a single parser invocation concluded about the buffer.
type Outcome int

const (
	// NeedsMoreData means the buffer holds the start of a request but not all of it.
	NeedsMoreData Outcome = iota
	// Parsed means a complete request was taken from the front of the buffer.
	Parsed
	// MalformedInput means no amount of further bytes turns the buffer into a valid request.
	MalformedInput
)

func (o Outcome) String() string {
	switch o {
	case NeedsMoreData:
		return "needs-more-data"
	case Parsed:
		return "parsed"
	case MalformedInput:
		return "malformed"
	default:
		return "unknown"
	}
}

// ParseResult is the variant returned by a [Parser].
type ParseResult struct {
	Outcome  Outcome
	Request  *Request        // set when Outcome is Parsed
	Consumed int             // bytes taken from the front of the buffer when Outcome is Parsed
	Err      *MalformedError // set when Outcome is MalformedInput
}

// NeedMore is the result for an incomplete buffer.
func NeedMore() ParseResult { return ParseResult{Outcome: NeedsMoreData} }

// Complete is the result for a request that was parsed from the first n bytes of the buffer.
func Complete(req *Request, n int) ParseResult {
	return ParseResult{Outcome: Parsed, Request: req, Consumed: n}
}

// Reject is the result for a buffer that can never become a valid request.
func Reject(err *MalformedError) ParseResult {
	return ParseResult{Outcome: MalformedInput, Err: err}
}

// Parser extracts requests from the bytes buffered for a connection. It is called again on every chunk
// with the full buffer, so it must be cheap on a growing buffer and must not retain buf.
type Parser interface {
	Parse(buf []byte, remoteHost string) ParseResult
}

// ParserFunc allows casting a function to implement [Parser].
type ParserFunc func(buf []byte, remoteHost string) ParseResult

// Parse implements the [Parser] interface.
func (f ParserFunc) Parse(buf []byte, remoteHost string) ParseResult { return f(buf, remoteHost) }
