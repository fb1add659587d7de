package matching

import (
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// decodeBody returns the body as UTF-8 text, decoding it from the charset
// named in contentType or, failing that, from fallback. Bodies that cannot be
// decoded are returned unchanged.
func decodeBody(body []byte, contentType, fallback string) string {
	name := charsetOf(contentType)
	if name == "" {
		name = fallback
	}
	if name == "" || isUTF8(name) {
		return string(body)
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return string(body)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(out)
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

func isUTF8(name string) bool {
	switch strings.ToLower(name) {
	case "utf-8", "utf8":
		return true
	default:
		return false
	}
}
