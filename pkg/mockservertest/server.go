package mockservertest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mock-server/mockserver-sub017/pkg/config"
	"github.com/mock-server/mockserver-sub017/pkg/engine"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/logging"
	"github.com/mock-server/mockserver-sub017/pkg/verification"
)

// Server is a mock server bound to a test.
type Server struct {
	t       testing.TB
	engine  *engine.Server
	httpSrv *httptest.Server
}

// New starts a mock server and registers its shutdown with t.Cleanup.
// Metrics and the dashboard are disabled. opts are passed to
// engine.NewServer; a WithLogger option replaces the silent default.
func New(t testing.TB, opts ...engine.ServerOption) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Port = 0
	cfg.Metrics = false
	cfg.Dashboard = false

	opts = append([]engine.ServerOption{engine.WithLogger(logging.Nop())}, opts...)
	srv, err := engine.NewServer(cfg, opts...)
	if err != nil {
		t.Fatalf("mockservertest: %v", err)
	}

	s := &Server{
		t:       t,
		engine:  srv,
		httpSrv: httptest.NewServer(srv.Handler()),
	}
	t.Cleanup(s.Close)
	return s
}

// URL returns the base URL, without a trailing slash.
func (s *Server) URL() string {
	return s.httpSrv.URL
}

// Client returns an http.Client for the server.
func (s *Server) Client() *http.Client {
	return s.httpSrv.Client()
}

// Engine returns the underlying engine.Server.
func (s *Server) Engine() *engine.Server {
	return s.engine
}

// Close stops the server. It is safe to call more than once.
func (s *Server) Close() {
	s.httpSrv.Close()
}

// Expect stores the given expectations and returns the stored copies,
// which carry their assigned IDs.
func (s *Server) Expect(es ...*expectation.Expectation) []*expectation.Expectation {
	s.t.Helper()

	stored := make([]*expectation.Expectation, 0, len(es))
	for _, e := range es {
		added, err := s.engine.AddExpectation(e)
		if err != nil {
			s.t.Fatalf("mockservertest: adding expectation %s: %v", e, err)
		}
		stored = append(stored, added)
	}
	return stored
}

// When starts a Stub for the given request pattern.
func (s *Server) When(req *expectation.RequestDefinition) *Stub {
	return &Stub{server: s, exp: expectation.When(req)}
}

// Reset removes every expectation and recorded request.
func (s *Server) Reset() {
	s.engine.Reset()
}

// Requests returns the recorded requests, oldest first.
func (s *Server) Requests() []*expectation.HttpRequest {
	entries := s.engine.Requests().Snapshot()
	out := make([]*expectation.HttpRequest, 0, len(entries))
	for _, e := range entries {
		if e.Request != nil {
			out = append(out, e.Request)
		}
	}
	return out
}

// Verify reports an error on t unless the requests matching req were
// received the given number of times.
func (s *Server) Verify(t testing.TB, req *expectation.RequestDefinition, times verification.VerificationTimes) bool {
	t.Helper()

	result, err := s.engine.Verify(&verification.Verification{HttpRequest: req, Times: &times})
	if err != nil {
		t.Errorf("mockservertest: %v", err)
		return false
	}
	if !result.Passed {
		t.Errorf("%s", result.Message)
		return false
	}
	return true
}

// VerifySequence reports an error on t unless requests matching reqs were
// received in order.
func (s *Server) VerifySequence(t testing.TB, reqs ...*expectation.RequestDefinition) bool {
	t.Helper()

	result, err := s.engine.VerifySequence(&verification.Sequence{HttpRequests: reqs})
	if err != nil {
		t.Errorf("mockservertest: %v", err)
		return false
	}
	if !result.Passed {
		t.Errorf("%s", result.Message)
		return false
	}
	return true
}

// AssertCalled asserts that method and path were requested at least once.
func (s *Server) AssertCalled(t testing.TB, method, path string) bool {
	t.Helper()
	return s.Verify(t, expectation.Request(method, path), verification.AtLeast(1))
}

// AssertCalledTimes asserts that method and path were requested exactly n
// times.
func (s *Server) AssertCalledTimes(t testing.TB, method, path string, n int) bool {
	t.Helper()
	return s.Verify(t, expectation.Request(method, path), verification.Exactly(n))
}

// AssertNotCalled asserts that method and path were never requested.
func (s *Server) AssertNotCalled(t testing.TB, method, path string) bool {
	t.Helper()
	return s.Verify(t, expectation.Request(method, path), verification.Never())
}
