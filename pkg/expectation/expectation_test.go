package expectation

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const orderDocument = `{
	"id": "orders",
	"priority": 5,
	"httpRequest": {
		"method": "GET",
		"path": "/orders/{id}",
		"pathParameters": {"id": [{"value": "[0-9]+", "regex": true}]},
		"headers": {"!X-Skip": "true"},
		"body": {"type": "JSON", "json": {"a": 1}}
	},
	"httpResponse": {
		"statusCode": 200,
		"headers": {"Content-Type": "application/json"},
		"body": "{\"id\": 1}",
		"delay": {"timeUnit": "MILLISECONDS", "value": 10}
	},
	"times": {"remainingTimes": 2},
	"timeToLive": {"timeUnit": "SECONDS", "timeToLive": 30}
}`

func TestParseExpectations_Single(t *testing.T) {
	es, err := ParseExpectations([]byte(orderDocument))
	require.NoError(t, err)
	require.Len(t, es, 1)

	e := es[0]
	assert.Equal(t, "orders", e.ID)
	assert.Equal(t, 5, e.Priority)
	assert.Equal(t, String("/orders/{id}"), e.HttpRequest.Path)
	assert.Equal(t, Regex("[0-9]+"), e.HttpRequest.PathParameters.Entries[0].Values[0])
	assert.Equal(t, Not("X-Skip"), e.HttpRequest.Headers.Entries[0].Name)
	assert.Equal(t, BodyJSON, e.HttpRequest.Body.Type)
	assert.Equal(t, ActionRespond, e.Action())
	assert.Equal(t, 10*time.Millisecond, e.HttpResponse.Delay.Duration())
	assert.Equal(t, 2, e.Times.RemainingTimes)
	assert.NoError(t, e.Validate())
}

func TestParseExpectations_ArrayAndEmpty(t *testing.T) {
	es, err := ParseExpectations([]byte(`[
		{"httpRequest": {"path": "/a"}, "httpResponse": {"statusCode": 204}},
		{"httpRequest": {"path": "/b"}, "httpForward": {"host": "example.com", "scheme": "HTTPS"}}
	]`))
	require.NoError(t, err)
	require.Len(t, es, 2)
	assert.Equal(t, ActionForward, es[1].Action())
	assert.Equal(t, "example.com:443", es[1].HttpForward.Address())

	es, err = ParseExpectations([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, es)

	_, err = ParseExpectations([]byte(`{"httpRequest":`))
	assert.Error(t, err)
}

func TestExpectation_YAML(t *testing.T) {
	doc := `
id: login
httpRequest:
  method: POST
  path: /login
  headers:
    Content-Type: application/json
  body:
    type: JSON
    json:
      user: alice
httpResponse:
  statusCode: 200
  body: welcome
times:
  remainingTimes: 1
`
	var e Expectation
	require.NoError(t, yaml.Unmarshal([]byte(doc), &e))

	assert.Equal(t, "login", e.ID)
	assert.Equal(t, String("POST"), e.HttpRequest.Method)
	assert.Equal(t, []string{"application/json"}, e.HttpRequest.Headers.Get("content-type"))
	assert.JSONEq(t, `{"user":"alice"}`, e.HttpRequest.Body.Value)
	assert.Equal(t, StringBody("welcome"), e.HttpResponse.Body)
	assert.NoError(t, e.Validate())
}

func TestExpectation_CloneIsDeep(t *testing.T) {
	orig := When(Request("GET", "/a").WithHeader(String("X"), String("1"))).
		Respond(Response(200).WithBody("ok")).
		WithTimes(Exactly(3))

	clone := orig.Clone()
	clone.HttpRequest.Headers.Entries[0].Values[0] = String("2")
	clone.Times.RemainingTimes = 0
	clone.HttpResponse.Body.Value = "changed"

	assert.Equal(t, "1", orig.HttpRequest.Headers.First("X"))
	assert.Equal(t, 3, orig.Times.RemainingTimes)
	assert.Equal(t, "ok", orig.HttpResponse.Body.Value)
	assert.Equal(t, orig.String(), orig.Clone().String())
}

func TestExpectation_Validate(t *testing.T) {
	tests := []struct {
		name  string
		e     *Expectation
		field string
	}{
		{"no action", When(Request("GET", "/")), "action"},
		{"two actions", When(nil).Respond(Response(200)).ForwardTo(Forward("h", 80, "")), "action"},
		{"negative times", When(nil).Respond(Response(200)).WithTimes(Exactly(-1)), "times.remainingTimes"},
		{"bad ttl unit", When(nil).Respond(Response(200)).WithTimeToLive(ExpiresAfter("FORTNIGHTS", 1)), "timeToLive.timeUnit"},
		{"bad status", When(nil).Respond(Response(42)), "httpResponse.statusCode"},
		{"bad header", When(nil).Respond(Response(200).WithHeader("bad header", "x")), "httpResponse.headers"},
		{"forward without host", When(nil).ForwardTo(&HttpForward{}), "httpForward.host"},
		{"forward bad scheme", When(nil).ForwardTo(Forward("h", 1, "ftp")), "httpForward.scheme"},
		{"error bad base64", &Expectation{HttpError: &HttpError{ResponseBytes: "%%"}}, "httpError.responseBytes"},
		{"relative callback", &Expectation{HttpCallback: &HttpCallback{URL: "/hook"}}, "httpCallback.url"},
		{"bad body type", When(Request("", "").WithBody(&Body{Type: "YAML"})).Respond(Response(200)), "httpRequest.body.type"},
		{"negative delay", When(nil).Respond(&HttpResponse{Delay: &Delay{Value: -1}}), "httpResponse.delay.value"},
		{"path parameters without path", When(&RequestDefinition{PathParameters: NewMultiValueMap("id", "1")}).Respond(Response(200)), "httpRequest.pathParameters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.e.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestTimeToLive_EndTime(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, created.Add(time.Second), ExpiresAfter(Seconds, 1).EndTime(created))
	assert.True(t, NeverExpires().EndTime(created).IsZero())

	var none *TimeToLive
	assert.True(t, none.EndTime(created).IsZero())
	assert.Equal(t, "unlimited", none.String())
	assert.Equal(t, "1 seconds", ExpiresAfter(Seconds, 1).String())
}

func TestTimeUnit_DurationSaturates(t *testing.T) {
	assert.Equal(t, 2*time.Hour, Hours.Duration(2))
	assert.Equal(t, 3*time.Millisecond, TimeUnit("fortnights").Duration(3))
	assert.Equal(t, time.Duration(math.MaxInt64), Days.Duration(200000))
	assert.Equal(t, time.Duration(math.MinInt64), Days.Duration(-200000))

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, ExpiresAfter(Days, 200000).EndTime(created).After(created))
}

func TestHttpRequest_JSONBody(t *testing.T) {
	req := HttpRequest{Method: "POST", Path: "/upload", Body: []byte("text")}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"body":"text"`)

	req.Body = []byte{0xff, 0xfe}
	data, err = json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"bodyBase64":"//4="`)

	var back HttpRequest
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []byte{0xff, 0xfe}, back.Body)
	assert.Equal(t, "POST /upload", back.Summary())
}

func TestHttpRequest_Accessors(t *testing.T) {
	req := &HttpRequest{
		Headers:       NewMultiValueMap("Content-Type", "text/plain; charset=ISO-8859-1"),
		RemoteAddress: "10.0.0.1:5000",
		Secure:        true,
	}
	assert.Equal(t, "ISO-8859-1", req.Charset())
	assert.Equal(t, "10.0.0.1", req.Host())
	assert.Equal(t, 5000, req.Port())
	assert.Equal(t, "https", req.Scheme())
}

func TestRequestDefinition_AsRequest(t *testing.T) {
	keepAlive := true
	def := Request("PUT", "/items").WithBody(JSONBody(`{"a":1}`))
	def.KeepAlive = &keepAlive
	def.SocketAddress = &SocketAddress{Host: "localhost", Port: 1080}

	req := def.AsRequest()
	assert.Equal(t, "PUT", req.Method)
	assert.Equal(t, "/items", req.Path)
	assert.Equal(t, `{"a":1}`, string(req.Body))
	assert.Equal(t, "application/json", req.ContentType())
	assert.True(t, req.KeepAlive)
	assert.Equal(t, "localhost:1080", req.RemoteAddress)
	assert.Empty(t, def.Headers.Entries, "pattern headers are not modified")
}
