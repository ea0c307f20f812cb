package bconn_test

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/advdv/bconn"
	"github.com/stretchr/testify/require"
)

func TestHTTPParserComplete(t *testing.T) {
	p := bconn.NewHTTPParser()

	res := p.Parse([]byte(postBar), "203.0.113.7")
	require.Equal(t, bconn.Parsed, res.Outcome)
	require.Equal(t, len(postBar), res.Consumed)

	req := res.Request
	require.Equal(t, "POST", req.Method)
	require.Equal(t, "/bar?x=1", req.Target)
	require.Equal(t, "/bar", req.Path)
	require.Equal(t, "1", req.Query.Get("x"))
	require.Equal(t, "HTTP/1.1", req.Proto)
	require.Equal(t, "example.com", req.Host)
	require.Equal(t, "5", req.Header.Get("Content-Length"))
	require.Equal(t, "hello", string(req.Body))
	require.Equal(t, "203.0.113.7", req.RemoteHost)
	require.Equal(t, len(postBar), req.RawSize)
	require.True(t, req.Complete)
	require.False(t, req.Close)
}

func TestHTTPParserLeadingEmptyLines(t *testing.T) {
	raw := "\r\n\n" + getFoo

	res := bconn.NewHTTPParser().Parse([]byte(raw), "")
	require.Equal(t, bconn.Parsed, res.Outcome)
	require.Equal(t, len(raw), res.Consumed)
	require.Equal(t, "/foo", res.Request.Path)

	require.Equal(t, bconn.NeedsMoreData, bconn.NewHTTPParser().Parse([]byte("\r\n\r"), "").Outcome)
}

func TestHTTPParserPipelinedConsumesFirstOnly(t *testing.T) {
	res := bconn.NewHTTPParser().Parse([]byte(getFoo+postBar), "")
	require.Equal(t, bconn.Parsed, res.Outcome)
	require.Equal(t, len(getFoo), res.Consumed)
	require.Equal(t, "GET", res.Request.Method)
	require.Empty(t, res.Request.Body)
}

func TestHTTPParserEveryPrefixNeedsMore(t *testing.T) {
	for _, raw := range []string{
		getFoo,
		postBar,
		"POST /up HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n3\r\nabc\r\n0\r\n\r\n",
		"GET /lf HTTP/1.1\nHost: x\n\n",
	} {
		p := bconn.NewHTTPParser()
		for i := range len(raw) {
			res := p.Parse([]byte(raw[:i]), "")
			require.Equal(t, bconn.NeedsMoreData, res.Outcome, "prefix %q", raw[:i])
		}

		res := p.Parse([]byte(raw), "")
		require.Equal(t, bconn.Parsed, res.Outcome, "full %q", raw)
		require.Equal(t, len(raw), res.Consumed)
	}
}

func TestHTTPParserChunkedBody(t *testing.T) {
	raw := "POST /up HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n3\r\nabc\r\n0\r\n\r\n"

	res := bconn.NewHTTPParser().Parse([]byte(raw+getFoo), "")
	require.Equal(t, bconn.Parsed, res.Outcome)
	require.Equal(t, len(raw), res.Consumed)
	require.Equal(t, "helloabc", string(res.Request.Body))
}

func TestHTTPParserMalformed(t *testing.T) {
	small := &bconn.HTTPParser{MaxRequestLineBytes: 32, MaxHeaderBytes: 64, MaxBodyBytes: 4}

	for _, tt := range []struct {
		name   string
		parser bconn.Parser
		raw    string
		code   bconn.Code
	}{
		{"method with invalid character", bconn.NewHTTPParser(), "GE(T / HTTP/1.1\r\n\r\n", bconn.CodeBadRequest},
		{"garbage", bconn.NewHTTPParser(), "\x00\x01\x02", bconn.CodeBadRequest},
		{"missing protocol", bconn.NewHTTPParser(), "GET /\r\n\r\n", bconn.CodeBadRequest},
		{"bad header line", bconn.NewHTTPParser(), "GET / HTTP/1.1\r\nno colon here\r\n\r\n", bconn.CodeBadRequest},
		{"invalid content length", bconn.NewHTTPParser(), "POST / HTTP/1.1\r\nContent-Length: abc\r\n\r\n", bconn.CodeBadRequest},
		{"bad chunk size", bconn.NewHTTPParser(), "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n", bconn.CodeBadRequest},
		{"request line too long", small, "GET /" + strings.Repeat("a", 40), bconn.CodeRequestURITooLong},
		{"header too large", small, "GET / HTTP/1.1\r\nX-A: " + strings.Repeat("b", 80), bconn.CodeRequestHeaderFieldsTooLarge},
		{"declared body too large", small, "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\n", bconn.CodeRequestEntityTooLarge},
		{"chunked body too large", small, "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n", bconn.CodeRequestEntityTooLarge},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.parser.Parse([]byte(tt.raw), "")
			require.Equal(t, bconn.MalformedInput, res.Outcome, "outcome: %s", res.Outcome)
			require.NotNil(t, res.Err)
			require.Equal(t, tt.code, res.Err.Code, res.Err.Error())
			require.Zero(t, res.Consumed)
		})
	}
}

// feedInReads parses raw the way a connection does: growing the buffer by readSize bytes per call until the
// request is parsed. It returns the number of calls and the bytes allocated meanwhile.
func feedInReads(tb testing.TB, p bconn.Parser, raw []byte, readSize int) (int, uint64) {
	tb.Helper()

	buf := make([]byte, 0, len(raw))

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	calls := 0
	for off := 0; off < len(raw); off += readSize {
		buf = append(buf, raw[off:min(off+readSize, len(raw))]...)

		calls++
		res := p.Parse(buf, "")
		if off+readSize < len(raw) {
			require.Equal(tb, bconn.NeedsMoreData, res.Outcome, "after %d bytes", len(buf))
			continue
		}

		require.Equal(tb, bconn.Parsed, res.Outcome, "%v", res.Err)
		require.Equal(tb, len(raw), res.Consumed)
	}

	runtime.ReadMemStats(&after)

	return calls, after.TotalAlloc - before.TotalAlloc
}

func TestHTTPParserLargeBodyIsNotReread(t *testing.T) {
	const size = 4 << 20

	p := bconn.NewHTTPParser()
	body := bytes.Repeat([]byte("x"), size)

	t.Run("content length", func(t *testing.T) {
		raw := append([]byte(fmt.Sprintf("POST /up HTTP/1.1\r\nHost: x\r\nContent-Length: %d\r\n\r\n", size)), body...)

		calls, allocated := feedInReads(t, p, raw, 4<<10)
		require.Greater(t, calls, 1000)
		require.Less(t, allocated, uint64(64<<20), "reading the partial body on every call allocates quadratically")
	})

	t.Run("chunked", func(t *testing.T) {
		raw := []byte("POST /up HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n")
		for off := 0; off < size; off += 4 << 10 {
			raw = append(raw, "1000\r\n"...)
			raw = append(raw, body[off:off+4<<10]...)
			raw = append(raw, "\r\n"...)
		}
		raw = append(raw, "0\r\nX-Trailer: done\r\n\r\n"...)

		calls, allocated := feedInReads(t, p, raw, 4<<10)
		require.Greater(t, calls, 1000)
		require.Less(t, allocated, uint64(64<<20), "reading the partial body on every call allocates quadratically")

		res := p.Parse(raw, "")
		require.Equal(t, bconn.Parsed, res.Outcome)
		require.Equal(t, body, res.Request.Body)
	})
}

func TestHTTPParserChunkedFraming(t *testing.T) {
	for _, tt := range []struct {
		name string
		raw  string
		body string
	}{
		{"extension", "3;name=value\r\nabc\r\n0\r\n\r\n", "abc"},
		{"upper case hex", "A\r\n0123456789\r\n0\r\n\r\n", "0123456789"},
		{"line feeds only", "3\nabc\n0\n\n", "abc"},
		{"trailer", "3\r\nabc\r\n0\r\nX-Sum: 1\r\nX-Other: 2\r\n\r\n", "abc"},
		{"empty", "0\r\n\r\n", ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			raw := "POST /up HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" + tt.raw

			res := bconn.NewHTTPParser().Parse([]byte(raw+getFoo), "")
			require.Equal(t, bconn.Parsed, res.Outcome, "%v", res.Err)
			require.Equal(t, len(raw), res.Consumed)
			require.Equal(t, tt.body, string(res.Request.Body))
		})
	}
}

func TestHTTPParserChunkedMalformed(t *testing.T) {
	few := &bconn.HTTPParser{MaxChunks: 2}
	head := "POST /up HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n"

	for _, tt := range []struct {
		name   string
		parser bconn.Parser
		raw    string
		code   bconn.Code
	}{
		{"signed size", bconn.NewHTTPParser(), "+5\r\nhello\r\n", bconn.CodeBadRequest},
		{"empty size", bconn.NewHTTPParser(), "\r\n", bconn.CodeBadRequest},
		{"size overflow", bconn.NewHTTPParser(), "ffffffffffffffffff\r\n", bconn.CodeBadRequest},
		{"data longer than size", bconn.NewHTTPParser(), "3\r\nabcd\r\n", bconn.CodeBadRequest},
		{"size line without end", bconn.NewHTTPParser(), strings.Repeat("0", 5<<10), bconn.CodeBadRequest},
		{"too many chunks", few, "1\r\na\r\n1\r\nb\r\n1\r\nc\r\n", bconn.CodeRequestEntityTooLarge},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.parser.Parse([]byte(head+tt.raw), "")
			require.Equal(t, bconn.MalformedInput, res.Outcome, "outcome: %s", res.Outcome)
			require.Equal(t, tt.code, res.Err.Code, res.Err.Error())
		})
	}
}

func TestHTTPParserBoundsEmptyLines(t *testing.T) {
	p := &bconn.HTTPParser{MaxRequestLineBytes: 32}

	require.Equal(t, bconn.NeedsMoreData, p.Parse([]byte(strings.Repeat("\r\n", 16)), "").Outcome)

	res := p.Parse([]byte(strings.Repeat("\r\n", 17)), "")
	require.Equal(t, bconn.MalformedInput, res.Outcome)
	require.Equal(t, bconn.CodeBadRequest, res.Err.Code)

	res = p.Parse([]byte(strings.Repeat("\r\n", 16)+getFoo), "")
	require.Equal(t, bconn.Parsed, res.Outcome)
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "needs-more-data", bconn.NeedsMoreData.String())
	require.Equal(t, "parsed", bconn.Parsed.String())
	require.Equal(t, "malformed", bconn.MalformedInput.String())
}
