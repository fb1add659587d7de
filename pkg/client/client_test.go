package client

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mock-server/mockserver-sub017/pkg/config"
	"github.com/mock-server/mockserver-sub017/pkg/engine"
	"github.com/mock-server/mockserver-sub017/pkg/engine/api"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/verification"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Port = 0
	srv, err := engine.NewServer(cfg, engine.WithVersion("client-test"))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func hit(t *testing.T, url string) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	res.Body.Close()
	return res.StatusCode
}

func TestClient_UpsertAndRetrieve(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL + "/")

	stored, err := c.Upsert(
		expectation.When(expectation.Request("GET", "/a")).Respond(expectation.Response(200)).WithID("a"),
		expectation.When(expectation.Request("GET", "/b")).Respond(expectation.Response(201)).WithPriority(5),
	)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "a", stored[0].ID)
	assert.NotEmpty(t, stored[1].ID)

	active, err := c.RetrieveActiveExpectations(nil)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, stored[1].ID, active[0].ID, "higher priority first")

	active, err = c.RetrieveActiveExpectations(&api.Filter{Pattern: expectation.Request("GET", "/a")})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)

	doc, err := c.RetrieveActiveExpectationsYAML(&api.Filter{ExpectationID: "a"})
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(doc, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "a", decoded[0]["id"])

	assert.Equal(t, 200, hit(t, ts.URL+"/a"))
	assert.Equal(t, 201, hit(t, ts.URL+"/b"))
	assert.Equal(t, 404, hit(t, ts.URL+"/c"))

	requests, err := c.RetrieveRecordedRequests(nil)
	require.NoError(t, err)
	require.Len(t, requests, 3)
	assert.Equal(t, "/a", requests[0].Path)

	entries, err := c.RetrieveLogEntries(&api.Filter{ExpectationID: "a"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Outcome.Matched)
}

func TestClient_UpsertInvalid(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL)

	_, err := c.UpsertJSON([]byte(`{"httpRequest": {"path": "/x"}}`))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Message)
}

func TestClient_Verify(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL)

	_, err := c.Upsert(expectation.When(expectation.Request("", "/v")).Respond(expectation.Response(200)))
	require.NoError(t, err)
	assert.Equal(t, 200, hit(t, ts.URL+"/v"))
	assert.Equal(t, 404, hit(t, ts.URL+"/w"))

	once := verification.Once()
	require.NoError(t, c.Verify(&verification.Verification{
		HttpRequest: expectation.Request("", "/v"),
		Times:       &once,
	}))

	twice := verification.Exactly(2)
	err = c.Verify(&verification.Verification{
		HttpRequest: expectation.Request("", "/v"),
		Times:       &twice,
	})
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Message)

	require.NoError(t, c.VerifySequence(&verification.Sequence{
		HttpRequests: []*expectation.RequestDefinition{
			expectation.Request("", "/v"),
			expectation.Request("", "/w"),
		},
	}))
	err = c.VerifySequence(&verification.Sequence{
		HttpRequests: []*expectation.RequestDefinition{
			expectation.Request("", "/w"),
			expectation.Request("", "/v"),
		},
	})
	require.ErrorAs(t, err, &verr)
}

func TestClient_ClearAndReset(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL)

	_, err := c.Upsert(
		expectation.When(expectation.Request("", "/keep")).Respond(expectation.Response(200)),
		expectation.When(expectation.Request("", "/drop")).Respond(expectation.Response(200)),
	)
	require.NoError(t, err)
	hit(t, ts.URL+"/keep")
	hit(t, ts.URL+"/drop")

	result, err := c.Clear(&api.Filter{Pattern: expectation.Request("", "/drop")}, api.ClearAll)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExpectationsRemoved)
	assert.Equal(t, 1, result.RequestsRemoved)

	status, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, status.Expectations)
	assert.Equal(t, 1, status.Requests)
	assert.Equal(t, "client-test", status.Version)

	result, err = c.Clear(nil, api.ClearLog)
	require.NoError(t, err)
	assert.Zero(t, result.ExpectationsRemoved)
	assert.Equal(t, 1, result.RequestsRemoved)

	require.NoError(t, c.Reset())
	status, err = c.Status()
	require.NoError(t, err)
	assert.Zero(t, status.Expectations)

	_, err = c.Clear(nil, api.ClearType("bogus"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClient_ConnectionError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := New(url).Health()
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
}

func TestClient_Health(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, New(ts.URL).Health())
	assert.Equal(t, ts.URL, New(ts.URL+"/").BaseURL())
}
