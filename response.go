package bconn

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Response is anything that can be serialized into an HTTP/1.1 response message.
type Response interface {
	MarshalWire() ([]byte, error)
}

// BasicResponse is a complete response held in memory.
type BasicResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse inits a response, header may be nil.
func NewResponse(status int, header http.Header, body []byte) *BasicResponse {
	if header == nil {
		header = http.Header{}
	}

	return &BasicResponse{Status: status, Header: header, Body: body}
}

// NewErrorResponse builds the minimal plain-text response for a status code. It needs no request, so
// it can answer bytes that never became one.
func NewErrorResponse(c Code) *BasicResponse {
	if c == CodeUnknown {
		c = CodeInternalServerError
	}

	return NewResponse(int(c), http.Header{
		"Content-Type":           {"text/plain; charset=utf-8"},
		"X-Content-Type-Options": {"nosniff"},
	}, []byte(c.Text()+"\n"))
}

// MarshalWire implements [Response]. Content-Length is added when the status allows a body and the header
// does not set it.
func (r *BasicResponse) MarshalWire() ([]byte, error) {
	if r.Status < 100 || r.Status > 999 {
		return nil, errors.Newf("invalid status code %d", r.Status)
	}

	hdr := r.Header.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}

	if bodyAllowed(r.Status) {
		if hdr.Get("Content-Length") == "" && hdr.Get("Transfer-Encoding") == "" {
			hdr.Set("Content-Length", strconv.Itoa(len(r.Body)))
		}
	} else if len(r.Body) > 0 {
		return nil, errors.Newf("status %d does not allow a body", r.Status)
	}

	var b bytes.Buffer
	b.Grow(64 + len(r.Body))
	fmt.Fprintf(&b, "HTTP/1.1 %03d %s\r\n", r.Status, Code(r.Status).Text())

	if err := hdr.Write(&b); err != nil {
		return nil, errors.Wrap(err, "write header")
	}

	b.WriteString("\r\n")
	b.Write(r.Body)

	return b.Bytes(), nil
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}

	return true
}
