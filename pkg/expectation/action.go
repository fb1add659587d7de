package expectation

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ActionType identifies which action an Expectation carries.
type ActionType string

// Action types.
const (
	ActionRespond  ActionType = "RESPONSE"
	ActionForward  ActionType = "FORWARD"
	ActionError    ActionType = "ERROR"
	ActionCallback ActionType = "CALLBACK"
)

// HttpResponse is a canned response.
type HttpResponse struct {
	StatusCode   int           `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	ReasonPhrase string        `json:"reasonPhrase,omitempty" yaml:"reasonPhrase,omitempty"`
	Headers      MultiValueMap `json:"headers,omitzero" yaml:"headers,omitempty"`
	Cookies      MultiValueMap `json:"cookies,omitzero" yaml:"cookies,omitempty"`
	Body         *Body         `json:"body,omitempty" yaml:"body,omitempty"`
	Delay        *Delay        `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// Response returns a response with the given status code.
func Response(status int) *HttpResponse {
	return &HttpResponse{StatusCode: status}
}

// WithBody sets a string body and returns r.
func (r *HttpResponse) WithBody(body string) *HttpResponse {
	r.Body = StringBody(body)
	return r
}

// WithHeader adds a header and returns r.
func (r *HttpResponse) WithHeader(name string, values ...string) *HttpResponse {
	r.Headers.Add(String(name), Strings(values...)...)
	return r
}

// Status returns StatusCode, defaulting to 200.
func (r *HttpResponse) Status() int {
	if r.StatusCode == 0 {
		return 200
	}
	return r.StatusCode
}

// HttpForward proxies the request to another host.
type HttpForward struct {
	Host   string `json:"host" yaml:"host"`
	Port   int    `json:"port,omitempty" yaml:"port,omitempty"`
	Scheme string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Delay  *Delay `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// Forward returns a forward action.
func Forward(host string, port int, scheme string) *HttpForward {
	return &HttpForward{Host: host, Port: port, Scheme: scheme}
}

// URLScheme returns the lower-cased scheme, defaulting to http.
func (f *HttpForward) URLScheme() string {
	if f.Scheme == "" {
		return "http"
	}
	return strings.ToLower(f.Scheme)
}

// Address returns host:port, defaulting the port from the scheme.
func (f *HttpForward) Address() string {
	port := f.Port
	if port == 0 {
		port = 80
		if f.URLScheme() == "https" {
			port = 443
		}
	}
	return fmt.Sprintf("%s:%d", f.Host, port)
}

// HttpError damages the connection instead of responding.
type HttpError struct {
	DropConnection bool   `json:"dropConnection,omitempty" yaml:"dropConnection,omitempty"`
	ResponseBytes  string `json:"responseBytes,omitempty" yaml:"responseBytes,omitempty"`
	Delay          *Delay `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// Bytes decodes ResponseBytes.
func (e *HttpError) Bytes() ([]byte, error) {
	if e.ResponseBytes == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(e.ResponseBytes)
}

// HttpCallback hands the request to an external endpoint, which answers with
// an HttpResponse document.
type HttpCallback struct {
	URL   string `json:"url" yaml:"url"`
	Delay *Delay `json:"delay,omitempty" yaml:"delay,omitempty"`
}
