package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mock-server/mockserver-sub017/internal/storage"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/httputil"
	"github.com/mock-server/mockserver-sub017/pkg/requestlog"
	"github.com/mock-server/mockserver-sub017/pkg/verification"
)

type testEngine struct {
	store    *storage.ExpectationStore
	requests *requestlog.MemoryStore
	verifier *verification.Engine
}

func newTestEngine(opts ...storage.Option) *testEngine {
	requests := requestlog.NewMemoryStore(100)
	opts = append([]storage.Option{storage.WithRequestLog(requests)}, opts...)
	return &testEngine{
		store:    storage.New(opts...),
		requests: requests,
		verifier: verification.New(requests),
	}
}

func (e *testEngine) AddExpectation(exp *expectation.Expectation) (*expectation.Expectation, error) {
	return e.store.Add(exp, storage.CauseAPI)
}

func (e *testEngine) RemoveExpectation(id string) bool {
	return e.store.RemoveByID(id, storage.CauseAPI)
}

func (e *testEngine) ClearExpectations(pattern *expectation.RequestDefinition) (int, error) {
	return e.store.Clear(pattern, storage.CauseAPI)
}

func (e *testEngine) ActiveExpectations(pattern *expectation.RequestDefinition) ([]*expectation.Expectation, error) {
	return e.store.RetrieveActiveExpectations(pattern)
}

func (e *testEngine) Requests() requestlog.Store { return e.requests }

func (e *testEngine) Verify(v *verification.Verification) (*verification.Result, error) {
	return e.verifier.Verify(v)
}

func (e *testEngine) VerifySequence(s *verification.Sequence) (*verification.Result, error) {
	return e.verifier.VerifySequence(s)
}

func (e *testEngine) Reset() {
	e.store.Reset(storage.CauseAPI)
	e.requests.Clear()
}

func (e *testEngine) Status() *StatusResponse {
	return &StatusResponse{Status: "running", Ports: []int{1080}, Expectations: e.store.Len(), Requests: e.requests.Count()}
}

// receive simulates a request arriving at the mock port.
func (e *testEngine) receive(method, path string) *expectation.Expectation {
	return e.store.FindMatch(&expectation.HttpRequest{Method: method, Path: path})
}

type recordingMetrics struct {
	mu       sync.Mutex
	observed []string
}

func (m *recordingMetrics) ObserveControlRequest(endpoint string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed = append(m.observed, endpoint+" "+http.StatusText(status))
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorBody {
	t.Helper()
	var body httputil.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const twoExpectations = `[
  {"id": "users", "httpRequest": {"method": "GET", "path": "/users"}, "httpResponse": {"statusCode": 200, "body": "[]"}},
  {"httpRequest": {"method": "POST", "path": "/users"}, "httpResponse": {"statusCode": 201}, "times": {"remainingTimes": 1}}
]`

func TestCreateExpectations(t *testing.T) {
	eng := newTestEngine()
	s := NewServer(eng)

	rec := do(t, s, http.MethodPut, "/mockserver/expectation", twoExpectations)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var stored []*expectation.Expectation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	require.Len(t, stored, 2)
	assert.Equal(t, "users", stored[0].ID)
	assert.NotEmpty(t, stored[1].ID, "an ID is assigned")
	assert.Equal(t, 2, eng.store.Len())

	// A single object is accepted too.
	rec = do(t, s, http.MethodPut, "/mockserver/expectation",
		`{"id": "users", "httpRequest": {"path": "/users"}, "httpResponse": {"statusCode": 204}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, eng.store.Len(), "same ID replaces")
}

func TestCreateExpectations_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed", `{"httpRequest":`, http.StatusBadRequest, httputil.CodeInvalidJSON},
		{"empty", ``, http.StatusBadRequest, httputil.CodeValidation},
		{"empty array", `[]`, http.StatusBadRequest, httputil.CodeValidation},
		{"no action", `{"httpRequest": {"path": "/x"}}`, http.StatusBadRequest, httputil.CodeValidation},
		{"two actions", `{"httpResponse": {}, "httpForward": {"host": "h"}}`, http.StatusBadRequest, httputil.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine()
			rec := do(t, NewServer(eng), http.MethodPut, "/mockserver/expectation", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
			assert.Zero(t, eng.store.Len())
		})
	}
}

func TestCreateExpectations_BatchIsAllOrNothing(t *testing.T) {
	eng := newTestEngine()
	rec := do(t, NewServer(eng), http.MethodPut, "/mockserver/expectation", `[
  {"httpRequest": {"path": "/ok"}, "httpResponse": {}},
  {"httpRequest": {"path": "/bad"}, "httpResponse": {}, "times": {"remainingTimes": -1}}
]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Contains(t, body.Message, "expectation 1")
	assert.NotNil(t, body.Details)
	assert.Zero(t, eng.store.Len())
}

func TestCreateExpectations_Capacity(t *testing.T) {
	eng := newTestEngine(storage.WithMaxExpectations(1))
	rec := do(t, NewServer(eng), http.MethodPut, "/mockserver/expectation", twoExpectations)
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
	assert.Equal(t, httputil.CodeCapacity, decodeError(t, rec).Error)
}

func TestCreateExpectations_BodyTooLarge(t *testing.T) {
	rec := do(t, NewServer(newTestEngine(), WithMaxBodySize(16)), http.MethodPut, "/mockserver/expectation", twoExpectations)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestVerify(t *testing.T) {
	eng := newTestEngine()
	s := NewServer(eng)
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPut, "/mockserver/expectation", twoExpectations).Code)

	eng.receive("GET", "/users")
	eng.receive("GET", "/users")
	eng.receive("POST", "/users")

	rec := do(t, s, http.MethodPut, "/mockserver/verify",
		`{"httpRequest": {"method": "GET", "path": "/users"}, "times": {"atLeast": 2, "atMost": 2}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, s, http.MethodPut, "/mockserver/verify",
		`{"httpRequest": {"path": "/users"}, "times": {"atLeast": 4}}`)
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Contains(t, rec.Body.String(), "expected at least 4, found 3 matching")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	rec = do(t, s, http.MethodPut, "/mockserver/verify", `{"expectationId": "users", "times": {"atLeast": 2, "atMost": 2}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, s, http.MethodPut, "/mockserver/verify", `{"httpRequest": {"path": {"value": "(", "regex": true}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/mockserver/verify", ``)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifySequence(t *testing.T) {
	eng := newTestEngine()
	s := NewServer(eng)
	eng.receive("GET", "/a")
	eng.receive("GET", "/b")
	eng.receive("GET", "/c")

	rec := do(t, s, http.MethodPut, "/mockserver/verifySequence",
		`{"httpRequests": [{"path": "/a"}, {"path": "/c"}]}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, s, http.MethodPut, "/mockserver/verifySequence",
		`{"httpRequests": [{"path": "/c"}, {"path": "/a"}]}`)
	assert.Equal(t, http.StatusNotAcceptable, rec.Code)
	assert.Contains(t, rec.Body.String(), "request 2 of 2 not satisfied")
}

func TestRetrieve(t *testing.T) {
	eng := newTestEngine()
	s := NewServer(eng)
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPut, "/mockserver/expectation", twoExpectations).Code)
	eng.receive("GET", "/users")
	eng.receive("GET", "/missing")

	t.Run("requests", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/mockserver/retrieve", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var requests []*expectation.HttpRequest
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &requests))
		require.Len(t, requests, 2)
		assert.Equal(t, "/users", requests[0].Path)
	})

	t.Run("requests by pattern", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/mockserver/retrieve?type=requests", `{"path": "/missing"}`)
		var requests []*expectation.HttpRequest
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &requests))
		require.Len(t, requests, 1)
		assert.Equal(t, "/missing", requests[0].Path)
	})

	t.Run("log entries by expectation", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/mockserver/retrieve?type=log_entries", `{"id": "users"}`)
		var entries []*requestlog.Entry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Outcome.Matched)
	})

	t.Run("active expectations", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/mockserver/retrieve?type=active_expectations", `{"httpRequest": {"method": "POST", "path": "/users"}}`)
		var es []*expectation.Expectation
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &es))
		require.Len(t, es, 1)
		assert.Equal(t, 1, es[0].Times.RemainingTimes)
	})

	t.Run("active expectations as yaml", func(t *testing.T) {
		rec := do(t, s, http.MethodPut, "/mockserver/retrieve?type=active_expectations&format=yaml", `{"id": "users"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
		var es []*expectation.Expectation
		require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &es))
		require.Len(t, es, 1)
		assert.Equal(t, "users", es[0].ID)
	})

	t.Run("bad parameters", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/mockserver/retrieve?type=recordings", "").Code)
		assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/mockserver/retrieve?format=xml", "").Code)
		assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/mockserver/retrieve?format=yaml", "").Code)
		assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/mockserver/retrieve", "{").Code)
	})
}

func TestClear(t *testing.T) {
	setup := func(t *testing.T) (*testEngine, *Server) {
		eng := newTestEngine()
		s := NewServer(eng)
		require.Equal(t, http.StatusCreated, do(t, s, http.MethodPut, "/mockserver/expectation", twoExpectations).Code)
		eng.receive("GET", "/users")
		eng.receive("GET", "/other")
		return eng, s
	}

	t.Run("by pattern", func(t *testing.T) {
		eng, s := setup(t)
		rec := do(t, s, http.MethodPut, "/mockserver/clear", `{"method": "GET", "path": "/users"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp ClearResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, ClearResponse{ExpectationsRemoved: 1, RequestsRemoved: 1}, resp)
		assert.Equal(t, 1, eng.store.Len())
		assert.Equal(t, 1, eng.requests.Count())
	})

	t.Run("by id", func(t *testing.T) {
		eng, s := setup(t)
		rec := do(t, s, http.MethodPut, "/mockserver/clear?type=expectations", `{"id": "users"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		_, ok := eng.store.Get("users")
		assert.False(t, ok)
		assert.Equal(t, 2, eng.requests.Count(), "type=expectations leaves the log")
	})

	t.Run("log only", func(t *testing.T) {
		eng, s := setup(t)
		require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/mockserver/clear?type=log", "").Code)
		assert.Zero(t, eng.requests.Count())
		assert.Equal(t, 2, eng.store.Len())
	})

	t.Run("everything", func(t *testing.T) {
		eng, s := setup(t)
		require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/mockserver/clear", "").Code)
		assert.Zero(t, eng.requests.Count())
		assert.Zero(t, eng.store.Len())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, s := setup(t)
		assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPut, "/mockserver/clear?type=cookies", "").Code)
	})
}

func TestReset(t *testing.T) {
	eng := newTestEngine()
	s := NewServer(eng)
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPut, "/mockserver/expectation", twoExpectations).Code)
	eng.receive("GET", "/users")

	rec := do(t, s, http.MethodPut, "/mockserver/reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, eng.store.Len())
	assert.Zero(t, eng.requests.Count())
}

func TestStatusAndRouting(t *testing.T) {
	metrics := &recordingMetrics{}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics")
	})
	s := NewServer(newTestEngine(), WithMetrics(metrics), WithMetricsHandler(metricsHandler))

	for _, method := range []string{http.MethodGet, http.MethodPut} {
		rec := do(t, s, method, "/mockserver/status", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var status StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "running", status.Status)
		assert.Equal(t, []int{1080}, status.Ports)
	}

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/mockserver/health", "").Code)
	assert.Equal(t, "# metrics", do(t, s, http.MethodGet, "/mockserver/metrics", "").Body.String())
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/mockserver/expectation", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/mockserver/dashboard/ws", "").Code, "dashboard not enabled")

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Contains(t, metrics.observed, "GET /mockserver/status OK")
	assert.Contains(t, metrics.observed, "PUT /mockserver/status OK")
	assert.Contains(t, metrics.observed, "unmatched Not Found")
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(nil)
	require.NoError(t, err)
	assert.True(t, f.IsZero())

	f, err = ParseFilter([]byte(`{"id": "abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", f.ExpectationID)

	f, err = ParseFilter([]byte(`{"httpRequest": {"path": "/x"}}`))
	require.NoError(t, err)
	assert.Equal(t, "/x", f.Pattern.Path.Value)

	f, err = ParseFilter([]byte(`{"method": "GET"}`))
	require.NoError(t, err)
	assert.Equal(t, "GET", f.Pattern.Method.Value)

	_, err = ParseFilter([]byte(`{"id": 5}`))
	assert.Error(t, err)
}
