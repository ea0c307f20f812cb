package bconn

import (
	"bufio"
	"bytes"
	"net/http"
	"strconv"
	"strings"
)

const (
	DefaultMaxRequestLineBytes = 8 << 10
	DefaultMaxHeaderBytes      = 32 << 10
	DefaultMaxBodyBytes        = 10 << 20
	DefaultMaxChunks           = 4 << 10

	maxChunkLine = 4 << 10
)

// HTTPParser is the default [Parser]. It frames HTTP/1.x requests (request line, headers up to the blank
// line, a body by Content-Length or chunked encoding) and leaves everything after the first complete
// request in the buffer.
type HTTPParser struct {
	MaxRequestLineBytes int
	MaxHeaderBytes      int
	MaxBodyBytes        int64
	// MaxChunks bounds the number of chunks of a chunked body, every parse call frames them again.
	MaxChunks int
}

// NewHTTPParser inits a parser with the default limits.
func NewHTTPParser() *HTTPParser {
	return &HTTPParser{
		MaxRequestLineBytes: DefaultMaxRequestLineBytes,
		MaxHeaderBytes:      DefaultMaxHeaderBytes,
		MaxBodyBytes:        DefaultMaxBodyBytes,
		MaxChunks:           DefaultMaxChunks,
	}
}

// Parse implements [Parser]. The header is parsed on every call but the body is only framed: a body that
// has not fully arrived is never read, so repeated calls on a growing buffer stay linear in its size.
func (p *HTTPParser) Parse(buf []byte, remoteHost string) ParseResult {
	start := skipEmptyLines(buf)
	if start > p.maxLine() {
		return Reject(Malformed(CodeBadRequest, "more than %d bytes of empty lines before the request line", p.maxLine()))
	}

	data := buf[start:]
	if len(data) == 0 || (len(data) == 1 && data[0] == '\r') {
		return NeedMore()
	}

	if merr := p.checkRequestLine(data); merr != nil {
		return Reject(merr)
	}

	end := headerEnd(data, p.maxHeader())
	switch {
	case end < 0 && len(data) > p.maxHeader():
		return Reject(Malformed(CodeRequestHeaderFieldsTooLarge, "no end of header within %d bytes", p.maxHeader()))
	case end < 0:
		return NeedMore()
	case end > p.maxHeader():
		return Reject(Malformed(CodeRequestHeaderFieldsTooLarge, "header of %d bytes exceeds %d", end, p.maxHeader()))
	}

	hreq, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(data[:end])))
	if err != nil {
		return Reject(Malformed(CodeBadRequest, "%v", err))
	}

	if hreq.ProtoMajor != 1 {
		return Reject(Malformed(CodeHTTPVersionNotSupported, "unsupported protocol %q", hreq.Proto))
	}

	var body []byte
	var bodyLen int
	if len(hreq.TransferEncoding) > 0 {
		n, merr := p.scanChunked(data[end:], nil)
		switch {
		case merr != nil:
			return Reject(merr)
		case n < 0:
			return NeedMore()
		}

		// second pass over a body that is known to be complete
		_, _ = p.scanChunked(data[end:], &body)
		bodyLen = n
	} else {
		if hreq.ContentLength > p.maxBody() {
			return Reject(Malformed(CodeRequestEntityTooLarge, "content length %d exceeds %d", hreq.ContentLength, p.maxBody()))
		}

		bodyLen = int(max(hreq.ContentLength, 0))
		if len(data)-end < bodyLen {
			return NeedMore()
		}

		if bodyLen > 0 {
			body = bytes.Clone(data[end : end+bodyLen])
		}
	}

	n := start + end + bodyLen

	return Complete(&Request{
		Method:     hreq.Method,
		Target:     hreq.RequestURI,
		Path:       hreq.URL.Path,
		Query:      hreq.URL.Query(),
		Proto:      hreq.Proto,
		Header:     hreq.Header,
		Host:       hreq.Host,
		Body:       body,
		RemoteHost: remoteHost,
		Close:      hreq.Close,
		Complete:   true,
		RawSize:    n,
	}, n)
}

// checkRequestLine rejects input early when the method is not a token or the request line is too long,
// before waiting for the rest of the header.
func (p *HTTPParser) checkRequestLine(data []byte) *MalformedError {
	for i := 0; i < len(data) && data[i] != ' '; i++ {
		if !isTokenChar(data[i]) {
			return Malformed(CodeBadRequest, "invalid method character %q", data[i])
		}
	}

	lineEnd := bytes.IndexByte(data, '\n')
	if lineEnd < 0 {
		lineEnd = len(data)
	}

	if lineEnd > p.maxLine() {
		return Malformed(CodeRequestURITooLong, "request line exceeds %d bytes", p.maxLine())
	}

	return nil
}

func (p *HTTPParser) maxLine() int {
	if p.MaxRequestLineBytes <= 0 {
		return DefaultMaxRequestLineBytes
	}

	return p.MaxRequestLineBytes
}

func (p *HTTPParser) maxHeader() int {
	if p.MaxHeaderBytes <= 0 {
		return DefaultMaxHeaderBytes
	}

	return p.MaxHeaderBytes
}

func (p *HTTPParser) maxBody() int64 {
	if p.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}

	return p.MaxBodyBytes
}

func (p *HTTPParser) maxChunks() int {
	if p.MaxChunks <= 0 {
		return DefaultMaxChunks
	}

	return p.MaxChunks
}

// scanChunked frames a chunked body (RFC 9112, section 7.1) and returns the number of bytes up to the end
// of its trailer section, or -1 while the body has not fully arrived. Chunk data is appended to body when it
// is not nil. Trailer fields are skipped.
func (p *HTTPParser) scanChunked(raw []byte, body *[]byte) (int, *MalformedError) {
	var total int64

	pos := 0
	for chunks := 0; ; chunks++ {
		line, next := cutLine(raw[pos:], maxChunkLine)
		switch {
		case next < 0 && len(raw)-pos > maxChunkLine:
			return -1, Malformed(CodeBadRequest, "chunk size line exceeds %d bytes", maxChunkLine)
		case next < 0:
			return -1, nil
		}

		size, merr := parseChunkSize(line)
		if merr != nil {
			return -1, merr
		}

		pos += next
		if size == 0 {
			break
		}

		if chunks >= p.maxChunks() {
			return -1, Malformed(CodeRequestEntityTooLarge, "body has more than %d chunks", p.maxChunks())
		}

		if total += size; total > p.maxBody() {
			return -1, Malformed(CodeRequestEntityTooLarge, "body exceeds %d bytes", p.maxBody())
		}

		if int64(len(raw)-pos) < size {
			return -1, nil
		}

		if body != nil {
			*body = append(*body, raw[pos:pos+int(size)]...)
		}

		pos += int(size)

		rest := raw[pos:]
		switch {
		case len(rest) >= 2 && rest[0] == '\r' && rest[1] == '\n':
			pos += 2
		case len(rest) >= 1 && rest[0] == '\n':
			pos++
		case len(rest) == 0, len(rest) == 1 && rest[0] == '\r':
			return -1, nil
		default:
			return -1, Malformed(CodeBadRequest, "chunk data not followed by a line break")
		}
	}

	for trailer := 0; ; {
		line, next := cutLine(raw[pos:], p.maxHeader())
		if next < 0 {
			if trailer+len(raw)-pos > p.maxHeader() {
				return -1, Malformed(CodeRequestHeaderFieldsTooLarge, "trailer exceeds %d bytes", p.maxHeader())
			}

			return -1, nil
		}

		pos += next
		if len(line) == 0 {
			return pos, nil
		}

		if trailer += next; trailer > p.maxHeader() {
			return -1, Malformed(CodeRequestHeaderFieldsTooLarge, "trailer exceeds %d bytes", p.maxHeader())
		}
	}
}

// cutLine returns the line at the front of b without its line break, and the offset just after it. The
// offset is -1 when no line break occurs within the first limit+1 bytes.
func cutLine(b []byte, limit int) ([]byte, int) {
	i := bytes.IndexByte(b[:min(len(b), limit+1)], '\n')
	if i < 0 {
		return nil, -1
	}

	return bytes.TrimSuffix(b[:i], []byte("\r")), i + 1
}

func parseChunkSize(line []byte) (int64, *MalformedError) {
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}

	hex := strings.TrimRight(string(line), " \t")
	if hex == "" || len(hex) > 15 || strings.TrimLeft(hex, "0123456789abcdefABCDEF") != "" {
		return 0, Malformed(CodeBadRequest, "invalid chunk size %q", line)
	}

	size, err := strconv.ParseInt(hex, 16, 64)
	if err != nil || size < 0 {
		return 0, Malformed(CodeBadRequest, "invalid chunk size %q", line)
	}

	return size, nil
}

// skipEmptyLines returns the offset of the first byte after any empty lines. RFC 9112 (section 2.2)
// asks servers to ignore at least one empty line received before the request line.
func skipEmptyLines(buf []byte) int {
	i := 0
	for i < len(buf) {
		switch {
		case buf[i] == '\n':
			i++
		case buf[i] == '\r' && i+1 < len(buf) && buf[i+1] == '\n':
			i += 2
		default:
			return i
		}
	}

	return i
}

// headerEnd returns the length of the header section including its terminating blank line, or -1. Only
// the first limit bytes (plus the blank line) are searched.
func headerEnd(data []byte, limit int) int {
	window := data[:min(len(data), limit+4)]

	end := -1
	if i := bytes.Index(window, []byte("\r\n\r\n")); i >= 0 {
		end = i + 4
		window = window[:end]
	}

	if i := bytes.Index(window, []byte("\n\n")); i >= 0 && (end < 0 || i+2 < end) {
		end = i + 2
	}

	return end
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}

	return strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0
}
