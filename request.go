package bconn

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"

	"github.com/cockroachdb/errors"
)

// Cookies parses the Cookie header lines of the request. Lines that do not parse are skipped.
func (r *Request) Cookies() []*http.Cookie {
	var cookies []*http.Cookie
	for _, line := range r.Header.Values("Cookie") {
		parsed, err := http.ParseCookie(line)
		if err != nil {
			continue
		}

		cookies = append(cookies, parsed...)
	}

	return cookies
}

// Cookie returns the first cookie with the given name, or [http.ErrNoCookie].
func (r *Request) Cookie(name string) (*http.Cookie, error) {
	for _, c := range r.Cookies() {
		if c.Name == name {
			return c, nil
		}
	}

	return nil, http.ErrNoCookie
}

// Form parses the body as form values. A JSON object body (Content-Type application/json) has each
// top-level member turned into values: strings as-is, arrays one value per element and anything else as
// its JSON text. Other bodies are parsed as urlencoded unless their media type is something else entirely,
// those have no form values. A body that does not parse is a 400 [*Error].
func (r *Request) Form() (url.Values, error) {
	switch r.mediaType() {
	case "application/json":
		return r.jsonForm()
	case "", "application/x-www-form-urlencoded":
		form, err := url.ParseQuery(string(r.Body))
		if err != nil {
			return nil, NewError(CodeBadRequest, errors.Wrap(err, "parse form body"))
		}

		return form, nil
	default:
		return url.Values{}, nil
	}
}

// Values merges the query with the form values of the body. A key present in the form replaces the query's
// values for that key.
func (r *Request) Values() (url.Values, error) {
	form, err := r.Form()
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	for k, vs := range r.Query {
		values[k] = append([]string(nil), vs...)
	}

	for k, vs := range form {
		values[k] = vs
	}

	return values, nil
}

// JSON decodes the body into v. A body that does not decode is a 400 [*Error].
func (r *Request) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return NewError(CodeBadRequest, errors.Wrap(err, "decode json body"))
	}

	return nil
}

func (r *Request) mediaType() string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}

	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "invalid"
	}

	return mt
}

func (r *Request) jsonForm() (url.Values, error) {
	var members map[string]json.RawMessage
	if err := r.JSON(&members); err != nil {
		return nil, err
	}

	form := url.Values{}
	for k, raw := range members {
		var elems []json.RawMessage
		if json.Unmarshal(raw, &elems) == nil {
			form[k] = []string{}
			for _, elem := range elems {
				form.Add(k, jsonText(elem))
			}

			continue
		}

		form.Set(k, jsonText(raw))
	}

	return form, nil
}

// jsonText returns a JSON string unquoted and any other value as its JSON text.
func jsonText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	return string(raw)
}
