package engine

import (
	"net/http"

	"github.com/mock-server/mockserver-sub017/internal/id"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// CorrelationHeader carries a caller-supplied correlation id. When absent a
// new one is generated.
const CorrelationHeader = "X-Correlation-Id"

// DecodeRequest converts r and its already-read body into the live request
// model. Header names keep Go's canonical form; matching is case-insensitive.
func DecodeRequest(r *http.Request, body []byte) *expectation.HttpRequest {
	headers := expectation.FromValues(r.Header)
	if r.Host != "" {
		headers.Add(expectation.String("Host"), expectation.String(r.Host))
	}

	var cookies expectation.MultiValueMap
	for _, c := range r.Cookies() {
		cookies.Add(expectation.String(c.Name), expectation.String(c.Value))
	}

	correlation := r.Header.Get(CorrelationHeader)
	if correlation == "" {
		correlation = id.Correlation()
	}

	return &expectation.HttpRequest{
		Method:                r.Method,
		Path:                  r.URL.Path,
		QueryStringParameters: expectation.FromValues(r.URL.Query()),
		Headers:               headers,
		Cookies:               cookies,
		Body:                  body,
		// The server sets Close for HTTP/1.0 without keep-alive and for
		// "Connection: close".
		KeepAlive:     !r.Close,
		Secure:        r.TLS != nil,
		RemoteAddress: r.RemoteAddr,
		CorrelationID: correlation,
	}
}
