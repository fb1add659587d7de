package matching

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// RequestMatcher is a compiled RequestDefinition.
type RequestMatcher struct {
	definition *expectation.RequestDefinition
	not        bool

	method     *StringMatcher
	path       *PathMatcher
	pathParams *MultiValueMatcher
	query      *MultiValueMatcher
	headers    *MultiValueMatcher
	cookies    *MultiValueMatcher
	body       *BodyMatcher
	keepAlive  *bool
	secure     *bool
	socket     *expectation.SocketAddress

	matched atomic.Int64
}

// Compile compiles a request pattern. A nil definition matches every request.
// Every configuration problem in the pattern is returned, joined.
func Compile(def *expectation.RequestDefinition, opts Options) (*RequestMatcher, error) {
	if def == nil {
		def = &expectation.RequestDefinition{}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	m := &RequestMatcher{
		definition: def,
		not:        def.Not,
		keepAlive:  def.KeepAlive,
		secure:     def.Secure,
		socket:     def.SocketAddress,
	}

	var errs []error
	if !def.Method.IsZero() {
		method, err := compileField("httpRequest.method", def.Method, true)
		errs = append(errs, err)
		m.method = &method
	}
	if !def.Path.IsZero() {
		path, err := CompilePath("httpRequest.path", def.Path)
		errs = append(errs, err)
		m.path = path
	}
	var err error
	m.pathParams, err = CompileMultiValue("httpRequest.pathParameters", def.PathParameters)
	errs = append(errs, err)
	m.query, err = CompileMultiValue("httpRequest.queryStringParameters", def.QueryStringParameters)
	errs = append(errs, err)
	m.headers, err = CompileMultiValue("httpRequest.headers", def.Headers)
	errs = append(errs, err)
	m.cookies, err = CompileMultiValue("httpRequest.cookies", def.Cookies)
	errs = append(errs, err)
	m.body, err = CompileBody("httpRequest.body", def.Body, opts)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// Definition returns the pattern the matcher was compiled from.
func (m *RequestMatcher) Definition() *expectation.RequestDefinition {
	return m.definition
}

// Matches reports whether req satisfies every sub-pattern. Sub-patterns are
// evaluated in a fixed order and the first failure ends the evaluation.
func (m *RequestMatcher) Matches(req *expectation.HttpRequest) bool {
	if req == nil {
		return false
	}
	ok := m.matchAll(req) != m.not
	if ok {
		m.matched.Add(1)
	}
	return ok
}

// MatchCount returns how many times Matches returned true.
func (m *RequestMatcher) MatchCount() int64 {
	return m.matched.Load()
}

func (m *RequestMatcher) matchAll(req *expectation.HttpRequest) bool {
	if m.method != nil && !m.method.Matches(req.Method) {
		return false
	}
	if !m.matchPath(req) {
		return false
	}
	if !m.query.ContainsAll(req.QueryStringParameters) {
		return false
	}
	if !m.headers.ContainsAll(req.Headers) {
		return false
	}
	if !m.cookies.ContainsAll(req.Cookies) {
		return false
	}
	if !m.body.Matches(req.Body, req.ContentType()) {
		return false
	}
	if m.keepAlive != nil && *m.keepAlive != req.KeepAlive {
		return false
	}
	if m.secure != nil && *m.secure != req.Secure {
		return false
	}
	return m.matchSocket(req)
}

func (m *RequestMatcher) matchPath(req *expectation.HttpRequest) bool {
	if m.path == nil {
		return m.pathParams == nil
	}
	ok, params := m.path.Match(req.Path)
	if !ok {
		return false
	}
	return m.pathParams.ContainsAll(params)
}

func (m *RequestMatcher) matchSocket(req *expectation.HttpRequest) bool {
	sa := m.socket
	if sa == nil {
		return true
	}
	if sa.Host != "" && !strings.EqualFold(sa.Host, req.Host()) {
		return false
	}
	if sa.Port != 0 && sa.Port != req.Port() {
		return false
	}
	if sa.Scheme != "" && !strings.EqualFold(sa.Scheme, req.Scheme()) {
		return false
	}
	return true
}
