package expectation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMultiValueMap_Add(t *testing.T) {
	var m MultiValueMap
	m.Add(String("Accept"), String("text/html"))
	m.Add(String("accept"), String("application/json"))
	m.Add(String("X-Id"), String("1"))

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"text/html", "application/json"}, m.Get("ACCEPT"))
	assert.Equal(t, "1", m.First("x-id"))
	assert.Empty(t, m.First("missing"))
	assert.Equal(t, []string{"Accept", "X-Id"}, m.Names())
}

func TestFromValues_SortsKeys(t *testing.T) {
	m := FromValues(map[string][]string{"b": {"2"}, "a": {"1", "11"}})
	assert.Equal(t, []string{"a", "b"}, m.Names())
	assert.Equal(t, map[string][]string{"a": {"1", "11"}, "b": {"2"}}, m.ToValues())
}

func TestMultiValueMap_UnmarshalObjectForm(t *testing.T) {
	var m MultiValueMap
	err := json.Unmarshal([]byte(`{
		"keyMatchStyle": "MATCHING_KEY",
		"Accept": ["text/html", {"value": "x.*", "regex": true}],
		"!X-Skip": "true",
		"?X-Opt": "1"
	}`), &m)
	require.NoError(t, err)

	assert.Equal(t, KeyMatchMatchingKey, m.KeyMatchStyle)
	require.Len(t, m.Entries, 3)
	assert.Equal(t, String("Accept"), m.Entries[0].Name)
	assert.Equal(t, []NottableString{String("text/html"), Regex("x.*")}, m.Entries[0].Values)
	assert.Equal(t, Not("X-Skip"), m.Entries[1].Name)
	assert.Equal(t, []NottableString{String("true")}, m.Entries[1].Values)
	assert.True(t, m.Entries[2].Name.Optional)
}

func TestMultiValueMap_ArrayForm(t *testing.T) {
	var m MultiValueMap
	m.Add(Regex("X-.*"), String("1"))

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":{"value":"X-.*","regex":true},"values":["1"]}]`, string(data))

	var back MultiValueMap
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.Entries, back.Entries)
}

func TestMultiValueMap_ArrayFormPrefixedNames(t *testing.T) {
	var m MultiValueMap
	require.NoError(t, json.Unmarshal([]byte(`[
		{"name": "?X-Opt", "values": ["a"]},
		{"name": "!X-Skip", "values": ["!b"]}
	]`), &m))

	require.Len(t, m.Entries, 2)
	assert.Equal(t, NottableString{Value: "X-Opt", Optional: true}, m.Entries[0].Name)
	assert.Equal(t, Not("X-Skip"), m.Entries[1].Name)
	assert.Equal(t, []NottableString{Not("b")}, m.Entries[1].Values)
}

func TestMultiValueMap_LiteralPrefixRoundTrip(t *testing.T) {
	live := NewMultiValueMap("Sec-Fetch-User", "?1", "X-Note", "!important")

	data, err := json.Marshal(live)
	require.NoError(t, err)

	var back MultiValueMap
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, live.Entries, back.Entries)
	assert.Equal(t, "?1", back.First("sec-fetch-user"))
}

func TestMultiValueMap_MarshalObjectForm(t *testing.T) {
	m := MultiValueMap{KeyMatchStyle: KeyMatchMatchingKey}
	m.Add(Not("X-Skip"), String("true"))

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"keyMatchStyle":"MATCHING_KEY","!X-Skip":["true"]}`, string(data))
}

func TestMultiValueMap_YAML(t *testing.T) {
	var m MultiValueMap
	require.NoError(t, yaml.Unmarshal([]byte("Accept: text/html\n\"!X-Skip\": [\"true\"]\n"), &m))
	assert.Equal(t, []string{"text/html"}, m.Get("accept"))
	assert.Len(t, m.Entries, 2)
}
