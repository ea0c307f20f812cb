package bconn_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/advdv/bconn"
	"github.com/stretchr/testify/require"
)

func parseOne(tb testing.TB, raw string) *bconn.Request {
	tb.Helper()

	res := bconn.NewHTTPParser().Parse([]byte(raw), "")
	require.Equal(tb, bconn.Parsed, res.Outcome, "%v", res.Err)

	return res.Request
}

func TestRequestCookies(t *testing.T) {
	req := parseOne(t, "GET / HTTP/1.1\r\nHost: x\r\n"+
		"Cookie: session=abc; theme=dark\r\n"+
		"Cookie: lang=nl\r\n"+
		"Cookie: =broken\r\n\r\n")

	cookies := req.Cookies()
	require.Len(t, cookies, 3)
	require.Equal(t, "session", cookies[0].Name)
	require.Equal(t, "abc", cookies[0].Value)

	c, err := req.Cookie("lang")
	require.NoError(t, err)
	require.Equal(t, "nl", c.Value)

	_, err = req.Cookie("missing")
	require.ErrorIs(t, err, http.ErrNoCookie)

	require.Empty(t, (&bconn.Request{}).Cookies())
}

func TestRequestForm(t *testing.T) {
	for _, tt := range []struct {
		name string
		ct   string
		body string
		want url.Values
	}{
		{"urlencoded", "application/x-www-form-urlencoded", "a=1&b=2&b=3&c=", url.Values{"a": {"1"}, "b": {"2", "3"}, "c": {""}}},
		{"no content type", "", "a=1", url.Values{"a": {"1"}}},
		{"json", "application/json; charset=utf-8", `{"name":"x","n":1,"tags":["a",2],"obj":{"k":true}}`, url.Values{
			"name": {"x"}, "n": {"1"}, "tags": {"a", "2"}, "obj": {`{"k":true}`},
		}},
		{"other media type", "text/plain", "a=1", url.Values{}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := &bconn.Request{Header: http.Header{}, Body: []byte(tt.body)}
			if tt.ct != "" {
				req.Header.Set("Content-Type", tt.ct)
			}

			form, err := req.Form()
			require.NoError(t, err)
			require.Equal(t, tt.want, form)
		})
	}
}

func TestRequestFormInvalid(t *testing.T) {
	bad := &bconn.Request{Header: http.Header{}, Body: []byte("a=%zz")}
	_, err := bad.Form()
	require.Equal(t, bconn.CodeBadRequest, bconn.CodeOf(err))

	badJSON := &bconn.Request{Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte("{")}
	_, err = badJSON.Form()
	require.Equal(t, bconn.CodeBadRequest, bconn.CodeOf(err))
}

func TestRequestValues(t *testing.T) {
	req := parseOne(t, "POST /submit?a=q&keep=1 HTTP/1.1\r\nHost: x\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\nContent-Length: 7\r\n\r\na=f&b=2")

	values, err := req.Values()
	require.NoError(t, err)
	require.Equal(t, url.Values{"a": {"f"}, "b": {"2"}, "keep": {"1"}}, values)
	require.Equal(t, "q", req.Query.Get("a"))
}

func TestRequestJSON(t *testing.T) {
	req := parseOne(t, "POST /items HTTP/1.1\r\nHost: x\r\n"+
		"Content-Type: application/json\r\nContent-Length: 24\r\n\r\n{\"id\":7,\"name\":\"widget\"}")

	var item struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, req.JSON(&item))
	require.Equal(t, 7, item.ID)
	require.Equal(t, "widget", item.Name)

	require.Equal(t, bconn.CodeBadRequest, bconn.CodeOf((&bconn.Request{Body: []byte("nope")}).JSON(&item)))
}
