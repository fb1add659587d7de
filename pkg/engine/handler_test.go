package engine

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mock-server/mockserver-sub017/internal/storage"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/requestlog"
)

type recordedRequest struct {
	method string
	status int
}

type recordingMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (m *recordingMetrics) ObserveRequest(method string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method: method, status: status})
}

func (m *recordingMetrics) last() recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return recordedRequest{}
	}
	return m.requests[len(m.requests)-1]
}

type handlerFixture struct {
	store    *storage.ExpectationStore
	requests *requestlog.MemoryStore
	handler  *Handler
	metrics  *recordingMetrics
	server   *httptest.Server
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	requests := requestlog.NewMemoryStore(100)
	store := storage.New(storage.WithRequestLog(requests))
	h := NewHandler(store)
	m := &recordingMetrics{}
	h.SetMetrics(m)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &handlerFixture{store: store, requests: requests, handler: h, metrics: m, server: srv}
}

func (f *handlerFixture) add(t *testing.T, e *expectation.Expectation) *expectation.Expectation {
	t.Helper()
	out, err := f.store.Add(e, storage.CauseAPI)
	require.NoError(t, err)
	return out
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	host, port, err := net.SplitHostPort(strings.TrimPrefix(rawURL, "http://"))
	require.NoError(t, err)
	n, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, n
}

func TestHandler_Respond(t *testing.T) {
	f := newHandlerFixture(t)
	resp := expectation.Response(http.StatusCreated).WithBody(`{"id":1}`).WithHeader("X-Mock", "a", "b")
	resp.Body.ContentType = "application/json"
	resp.Cookies.Add(expectation.String("session"), expectation.String("abc"))
	f.add(t, expectation.When(expectation.Request("POST", "/orders")).Respond(resp))

	res, err := http.Post(f.server.URL+"/orders", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, `{"id":1}`, string(body))
	assert.Equal(t, []string{"a", "b"}, res.Header.Values("X-Mock"))
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	require.Len(t, res.Cookies(), 1)
	assert.Equal(t, "session", res.Cookies()[0].Name)
	assert.Equal(t, "abc", res.Cookies()[0].Value)

	entries := f.requests.Snapshot()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Outcome.Matched)
	assert.Equal(t, "hello", string(entries[0].Request.Body))
	assert.Equal(t, recordedRequest{method: "POST", status: http.StatusCreated}, f.metrics.last())
}

func TestHandler_RespondDefaultsAndHead(t *testing.T) {
	f := newHandlerFixture(t)
	f.add(t, expectation.When(expectation.Request("", "/text")).Respond(&expectation.HttpResponse{Body: expectation.StringBody("plain")}))

	res, err := http.Get(f.server.URL + "/text")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "plain", string(body))

	res, err = http.Head(f.server.URL + "/text")
	require.NoError(t, err)
	body, _ = io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, body)
}

func TestHandler_Unmatched(t *testing.T) {
	f := newHandlerFixture(t)
	f.add(t, expectation.When(expectation.Request("GET", "/known")).Respond(expectation.Response(200)))

	res, err := http.Get(f.server.URL + "/unknown")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Empty(t, body)

	entries := f.requests.Snapshot()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Outcome.Matched)
	assert.Equal(t, "/unknown", entries[0].Request.Path)
	assert.Equal(t, http.StatusNotFound, f.metrics.last().status)
}

func TestHandler_BodyTooLarge(t *testing.T) {
	f := newHandlerFixture(t)
	f.handler.SetMaxBodySize(8)
	f.add(t, expectation.When(nil).Respond(expectation.Response(200)))

	res, err := http.Post(f.server.URL+"/upload", "text/plain", strings.NewReader("more than eight bytes"))
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)
	assert.Zero(t, f.requests.Count())
}

func TestHandler_Delay(t *testing.T) {
	f := newHandlerFixture(t)
	resp := expectation.Response(200)
	resp.Delay = &expectation.Delay{TimeUnit: expectation.Milliseconds, Value: 50}
	f.add(t, expectation.When(expectation.Request("GET", "/slow")).Respond(resp))

	start := time.Now()
	res, err := http.Get(f.server.URL + "/slow")
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestHandler_TimesExhausted(t *testing.T) {
	f := newHandlerFixture(t)
	f.add(t, expectation.When(expectation.Request("GET", "/once")).
		Respond(expectation.Response(200)).
		WithTimes(expectation.Once()))

	statuses := make([]int, 0, 2)
	for range 2 {
		res, err := http.Get(f.server.URL + "/once")
		require.NoError(t, err)
		res.Body.Close()
		statuses = append(statuses, res.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, statuses)
}

func TestHandler_Forward(t *testing.T) {
	var (
		mu       sync.Mutex
		received *http.Request
		gotBody  string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = r
		gotBody = string(b)
		mu.Unlock()
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("from upstream"))
	}))
	defer upstream.Close()

	f := newHandlerFixture(t)
	host, port := hostPort(t, upstream.URL)
	f.add(t, expectation.When(expectation.Request("", "/proxy")).ForwardTo(expectation.Forward(host, port, "http")))

	req, err := http.NewRequest(http.MethodPut, f.server.URL+"/proxy?x=1", strings.NewReader("payload"))
	require.NoError(t, err)
	req.Header.Set(CorrelationHeader, "corr-1")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()

	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, "from upstream", string(body))
	assert.Equal(t, "yes", res.Header.Get("X-Upstream"))

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, received)
	assert.Equal(t, http.MethodPut, received.Method)
	assert.Equal(t, "/proxy", received.URL.Path)
	assert.Equal(t, "1", received.URL.Query().Get("x"))
	assert.Equal(t, "payload", gotBody)
	assert.Empty(t, received.Header.Get(CorrelationHeader))
	assert.NotEmpty(t, received.Header.Get("X-Forwarded-For"))
}

func TestHandler_ForwardFailure(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	host, port := hostPort(t, closed.URL)
	closed.Close()

	f := newHandlerFixture(t)
	f.add(t, expectation.When(nil).ForwardTo(expectation.Forward(host, port, "http")))

	res, err := http.Get(f.server.URL + "/anything")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
}

func TestHandler_Callback(t *testing.T) {
	var (
		mu             sync.Mutex
		got            expectation.HttpRequest
		gotCorrelation string
	)
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotCorrelation = r.Header.Get(CorrelationHeader)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"statusCode": 418, "headers": {"X-Callback": ["1"]}, "body": "teapot for ` + got.Path + `"}`))
	}))
	defer callback.Close()

	f := newHandlerFixture(t)
	f.add(t, &expectation.Expectation{
		HttpRequest:  expectation.Request("POST", "/cb"),
		HttpCallback: &expectation.HttpCallback{URL: callback.URL},
	})

	res, err := http.Post(f.server.URL+"/cb", "text/plain", strings.NewReader("ping"))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()

	assert.Equal(t, http.StatusTeapot, res.StatusCode)
	assert.Equal(t, "teapot for /cb", string(body))
	assert.Equal(t, "1", res.Header.Get("X-Callback"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "ping", string(got.Body))
	assert.Equal(t, "POST", got.Method)
	assert.NotEmpty(t, gotCorrelation)
	assert.Equal(t, got.CorrelationID, gotCorrelation)
}

func TestHandler_CallbackFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "error status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "invalid document",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callback := httptest.NewServer(tt.handler)
			defer callback.Close()

			f := newHandlerFixture(t)
			f.add(t, &expectation.Expectation{HttpCallback: &expectation.HttpCallback{URL: callback.URL}})

			res, err := http.Get(f.server.URL + "/cb")
			require.NoError(t, err)
			res.Body.Close()
			assert.Equal(t, http.StatusBadGateway, res.StatusCode)
		})
	}
}

func TestHandler_ErrorAction(t *testing.T) {
	f := newHandlerFixture(t)
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\npartial"
	f.add(t, &expectation.Expectation{
		HttpRequest: expectation.Request("GET", "/broken"),
		HttpError: &expectation.HttpError{
			DropConnection: true,
			ResponseBytes:  base64.StdEncoding.EncodeToString([]byte(raw)),
		},
	})

	conn, err := net.Dial("tcp", strings.TrimPrefix(f.server.URL, "http://"))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte("GET /broken HTTP/1.1\r\nHost: test\r\n\r\n"))
	require.NoError(t, err)
	got, err := io.ReadAll(bufio.NewReader(conn))
	require.NoError(t, err)
	assert.Equal(t, raw, string(got))
}

func TestHandler_ErrorActionWithoutBytes(t *testing.T) {
	f := newHandlerFixture(t)
	f.add(t, &expectation.Expectation{HttpError: &expectation.HttpError{DropConnection: true}})

	_, err := http.Get(f.server.URL + "/drop")
	require.Error(t, err)
}

func TestDecodeRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://mock.local/a/b?q=1&q=2&r=x", nil)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(CorrelationHeader, "corr-42")
	r.AddCookie(&http.Cookie{Name: "session", Value: "s1"})
	r.RemoteAddr = "10.0.0.1:5555"

	req := DecodeRequest(r, []byte(`{"a":1}`))

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/a/b", req.Path)
	assert.Equal(t, []string{"1", "2"}, req.QueryStringParameters.Get("q"))
	assert.Equal(t, "x", req.QueryStringParameters.First("r"))
	assert.Equal(t, "application/json", req.Headers.First("content-type"))
	assert.Equal(t, "mock.local", req.Headers.First("Host"))
	assert.Equal(t, "s1", req.Cookies.First("session"))
	assert.Equal(t, `{"a":1}`, req.BodyString())
	assert.Equal(t, "corr-42", req.CorrelationID)
	assert.Equal(t, "10.0.0.1:5555", req.RemoteAddress)
	assert.True(t, req.KeepAlive)
	assert.False(t, req.Secure)
}

func TestDecodeRequest_GeneratesCorrelationID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Close = true

	a := DecodeRequest(r, nil)
	b := DecodeRequest(r, nil)

	assert.NotEmpty(t, a.CorrelationID)
	assert.NotEqual(t, a.CorrelationID, b.CorrelationID)
	assert.False(t, a.KeepAlive)
}
