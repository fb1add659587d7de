package expectation

import (
	"encoding/base64"
	"encoding/json"
	"mime"
	"net"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SocketAddress is a pattern over the client's socket.
type SocketAddress struct {
	Host   string `json:"host,omitempty" yaml:"host,omitempty"`
	Port   int    `json:"port,omitempty" yaml:"port,omitempty"`
	Scheme string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
}

// RequestDefinition is a request pattern. Unset fields match anything.
type RequestDefinition struct {
	// Not inverts the result of the whole pattern.
	Not bool `json:"not,omitempty" yaml:"not,omitempty"`

	Method NottableString `json:"method,omitzero" yaml:"method,omitempty"`
	Path   NottableString `json:"path,omitzero" yaml:"path,omitempty"`

	// PathParameters are matched against the segments captured by {name}
	// placeholders in Path.
	PathParameters        MultiValueMap `json:"pathParameters,omitzero" yaml:"pathParameters,omitempty"`
	QueryStringParameters MultiValueMap `json:"queryStringParameters,omitzero" yaml:"queryStringParameters,omitempty"`
	Headers               MultiValueMap `json:"headers,omitzero" yaml:"headers,omitempty"`
	Cookies               MultiValueMap `json:"cookies,omitzero" yaml:"cookies,omitempty"`

	Body *Body `json:"body,omitempty" yaml:"body,omitempty"`

	KeepAlive     *bool          `json:"keepAlive,omitempty" yaml:"keepAlive,omitempty"`
	Secure        *bool          `json:"secure,omitempty" yaml:"secure,omitempty"`
	SocketAddress *SocketAddress `json:"socketAddress,omitempty" yaml:"socketAddress,omitempty"`
}

// Request starts a pattern for method and path literals; either may be empty.
func Request(method, path string) *RequestDefinition {
	return &RequestDefinition{Method: String(method), Path: String(path)}
}

// WithHeader adds a header pattern and returns d.
func (d *RequestDefinition) WithHeader(name NottableString, values ...NottableString) *RequestDefinition {
	d.Headers.Add(name, values...)
	return d
}

// WithQuery adds a query string parameter pattern and returns d.
func (d *RequestDefinition) WithQuery(name NottableString, values ...NottableString) *RequestDefinition {
	d.QueryStringParameters.Add(name, values...)
	return d
}

// WithCookie adds a cookie pattern and returns d.
func (d *RequestDefinition) WithCookie(name NottableString, values ...NottableString) *RequestDefinition {
	d.Cookies.Add(name, values...)
	return d
}

// WithBody sets the body pattern and returns d.
func (d *RequestDefinition) WithBody(body *Body) *RequestDefinition {
	d.Body = body
	return d
}

// String renders the pattern as compact JSON for messages.
func (d *RequestDefinition) String() string {
	if d == nil {
		return "{}"
	}
	data, err := json.Marshal(d)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return string(data)
}

// AsRequest renders the pattern's literal values as a live request. It is
// used to match one pattern against another, as the control plane does when
// selecting expectations to clear or retrieve.
func (d *RequestDefinition) AsRequest() *HttpRequest {
	if d == nil {
		return &HttpRequest{}
	}
	req := &HttpRequest{
		Method:                d.Method.Value,
		Path:                  d.Path.Value,
		QueryStringParameters: d.QueryStringParameters,
		Headers:               d.Headers,
		Cookies:               d.Cookies,
	}
	if d.Body != nil {
		req.Body, _ = d.Body.Bytes()
		if ct := d.Body.DefaultContentType(); ct != "" {
			req.Headers = cloneMap(req.Headers)
			if len(req.Headers.Get("Content-Type")) == 0 {
				req.Headers.Add(String("Content-Type"), String(ct))
			}
		}
	}
	if d.KeepAlive != nil {
		req.KeepAlive = *d.KeepAlive
	}
	if d.Secure != nil {
		req.Secure = *d.Secure
	}
	if d.SocketAddress != nil {
		req.RemoteAddress = net.JoinHostPort(d.SocketAddress.Host, strconv.Itoa(d.SocketAddress.Port))
	}
	return req
}

func cloneMap(m MultiValueMap) MultiValueMap {
	out := MultiValueMap{KeyMatchStyle: m.KeyMatchStyle}
	for _, e := range m.Entries {
		out.Entries = append(out.Entries, KeyToMultiValue{Name: e.Name, Values: append([]NottableString(nil), e.Values...)})
	}
	return out
}

// HttpRequest is a decoded live request.
type HttpRequest struct {
	Method                string        `json:"method"`
	Path                  string        `json:"path"`
	QueryStringParameters MultiValueMap `json:"queryStringParameters,omitzero"`
	Headers               MultiValueMap `json:"headers,omitzero"`
	Cookies               MultiValueMap `json:"cookies,omitzero"`
	Body                  []byte        `json:"-"`
	KeepAlive             bool          `json:"keepAlive"`
	Secure                bool          `json:"secure"`

	// RemoteAddress is the client's host:port.
	RemoteAddress string `json:"remoteAddress,omitempty"`

	// CorrelationID ties the request to its log entry.
	CorrelationID string `json:"logCorrelationId,omitempty"`
}

// ContentType returns the Content-Type header.
func (r *HttpRequest) ContentType() string {
	return r.Headers.First("Content-Type")
}

// Charset returns the charset parameter of the Content-Type header.
func (r *HttpRequest) Charset() string {
	ct := r.ContentType()
	if ct == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// BodyString returns the body as text.
func (r *HttpRequest) BodyString() string {
	return string(r.Body)
}

type httpRequestJSON HttpRequest

type httpRequestWire struct {
	*httpRequestJSON
	Body       string `json:"body,omitempty"`
	BodyBase64 string `json:"bodyBase64,omitempty"`
}

// MarshalJSON writes textual bodies as "body" and anything else base64
// encoded as "bodyBase64".
func (r HttpRequest) MarshalJSON() ([]byte, error) {
	wire := httpRequestWire{httpRequestJSON: (*httpRequestJSON)(&r)}
	if utf8.Valid(r.Body) {
		wire.Body = string(r.Body)
	} else {
		wire.BodyBase64 = base64.StdEncoding.EncodeToString(r.Body)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *HttpRequest) UnmarshalJSON(data []byte) error {
	wire := httpRequestWire{httpRequestJSON: (*httpRequestJSON)(r)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch {
	case wire.BodyBase64 != "":
		body, err := base64.StdEncoding.DecodeString(wire.BodyBase64)
		if err != nil {
			return err
		}
		r.Body = body
	case wire.Body != "":
		r.Body = []byte(wire.Body)
	default:
		r.Body = nil
	}
	return nil
}

// Host returns the host part of RemoteAddress.
func (r *HttpRequest) Host() string {
	host, _, err := net.SplitHostPort(r.RemoteAddress)
	if err != nil {
		return r.RemoteAddress
	}
	return host
}

// Port returns the port part of RemoteAddress, or 0.
func (r *HttpRequest) Port() int {
	_, port, err := net.SplitHostPort(r.RemoteAddress)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

// Scheme returns "https" for secure requests and "http" otherwise.
func (r *HttpRequest) Scheme() string {
	if r.Secure {
		return "https"
	}
	return "http"
}

// Summary is a short "METHOD path" description.
func (r *HttpRequest) Summary() string {
	return strings.TrimSpace(r.Method + " " + r.Path)
}
