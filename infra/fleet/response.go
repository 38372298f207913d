package fleet

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

type Response struct {
	StatusCode int
	Header     http.Header
	Raw        []byte
}

// Text decodes the body using the charset advertised in Content-Type,
// falling back to UTF-8.
func (r *Response) Text() string {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return string(r.Raw)
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(r.Raw)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(r.Raw)
	}
	decoded, err := enc.NewDecoder().Bytes(r.Raw)
	if err != nil {
		return string(r.Raw)
	}
	return string(decoded)
}

func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Raw, v)
}
