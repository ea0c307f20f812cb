package bconn

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
)

// ErrBufferFull is returned by [ResponseBuffer.Write] when the body would exceed the buffer limit.
var ErrBufferFull = errors.New("bconn: response buffer limit exceeded")

// ResponseWriter implements the http.ResponseWriter but the underlying bytes are buffered. This allows
// handlers and middleware to reset the writer and formulate a completely new response.
type ResponseWriter interface {
	http.ResponseWriter
	Reset()
	Free()
	Response() *BasicResponse
}

// ResponseBuffer is the [ResponseWriter] handed to a [Handler]. Its body lives in a pooled buffer that is
// returned with Free.
type ResponseBuffer struct {
	header      http.Header
	sent        http.Header
	status      int
	wroteHeader bool
	limit       int
	buf         *bytebufferpool.ByteBuffer
}

// NewResponseBuffer inits a response buffer. A negative limit means the body size is not bounded.
func NewResponseBuffer(limit int) *ResponseBuffer {
	return &ResponseBuffer{
		header: http.Header{},
		limit:  limit,
		buf:    bytebufferpool.Get(),
	}
}

// Header returns the header that will be sent. Changes after the first Write or WriteHeader are ignored.
func (w *ResponseBuffer) Header() http.Header { return w.header }

// WriteHeader records the status code and takes a snapshot of the header.
func (w *ResponseBuffer) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}

	w.wroteHeader = true
	w.status = status
	w.sent = w.header.Clone()
}

// Write buffers p, writing an implicit 200 header first.
func (w *ResponseBuffer) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		if w.header.Get("Content-Type") == "" && len(p) > 0 {
			w.header.Set("Content-Type", http.DetectContentType(p))
		}

		w.WriteHeader(http.StatusOK)
	}

	if w.limit >= 0 && w.buf.Len()+len(p) > w.limit {
		return 0, ErrBufferFull
	}

	return w.buf.Write(p)
}

// Reset discards the buffered body, status and header.
func (w *ResponseBuffer) Reset() {
	w.buf.Reset()
	w.header = http.Header{}
	w.sent = nil
	w.status = 0
	w.wroteHeader = false
}

// Free returns the buffer to the pool. The writer must not be used afterwards.
func (w *ResponseBuffer) Free() {
	if w.buf == nil {
		return
	}

	bytebufferpool.Put(w.buf)
	w.buf = nil
}

// Response copies the buffered state into a response that outlives the buffer.
func (w *ResponseBuffer) Response() *BasicResponse {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	return NewResponse(w.status, w.sent, append([]byte(nil), w.buf.B...))
}

var _ ResponseWriter = &ResponseBuffer{}
