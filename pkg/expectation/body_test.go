package expectation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBody_UnmarshalShorthands(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Body
	}{
		{"string", `"hello"`, Body{Type: BodyString, Value: "hello"}},
		{"untyped object is json", `{"a": 1}`, Body{Type: BodyJSON, Value: `{"a":1}`}},
		{"array is json", `[1, 2]`, Body{Type: BodyJSON, Value: `[1,2]`}},
		{"typed value", `{"type":"REGEX","value":"a.*","not":true}`, Body{Type: BodyRegex, Value: "a.*", Not: true}},
		{"type field", `{"type":"xpath","xpath":"/a/b"}`, Body{Type: BodyXPath, Value: "/a/b"}},
		{"embedded json", `{"type":"JSON","json":{"a":1},"matchType":"strict"}`, Body{Type: BodyJSON, Value: `{"a":1}`, MatchType: JSONStrict}},
		{"schema", `{"type":"JSON_SCHEMA","jsonSchema":{"type":"object"}}`, Body{Type: BodyJSONSchema, Value: `{"type":"object"}`}},
		{"binary", `{"type":"BINARY","base64Bytes":"AAE="}`, Body{Type: BodyBinary, Value: "AAE="}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Body
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBody_MarshalEmbedsJSON(t *testing.T) {
	data, err := json.Marshal(JSONBody(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"JSON","value":{"a":1}}`, string(data))

	data, err = json.Marshal(StringBody(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"STRING","value":"{\"a\":1}"}`, string(data))
}

func TestBody_Bytes(t *testing.T) {
	data, err := BinaryBody([]byte{0, 1}).Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1}, data)

	_, err = (&Body{Type: BodyBinary, Value: "%%"}).Bytes()
	assert.Error(t, err)

	var nilBody *Body
	data, err = nilBody.Bytes()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestBody_DefaultContentType(t *testing.T) {
	assert.Equal(t, "application/json", JSONBody("{}").DefaultContentType())
	assert.Equal(t, "application/octet-stream", BinaryBody(nil).DefaultContentType())
	assert.Equal(t, "", StringBody("x").DefaultContentType())
	assert.Equal(t, "text/csv", (&Body{Type: BodyString, ContentType: "text/csv"}).DefaultContentType())
}
