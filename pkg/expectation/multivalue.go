package expectation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeyMatchStyle controls how the values of a matched key are compared.
type KeyMatchStyle string

const (
	// KeyMatchSubSet passes when any live value satisfies any pattern value.
	KeyMatchSubSet KeyMatchStyle = "SUB_SET"
	// KeyMatchMatchingKey passes when every live value satisfies some pattern value.
	KeyMatchMatchingKey KeyMatchStyle = "MATCHING_KEY"
)

const keyMatchStyleField = "keyMatchStyle"

// KeyToMultiValue is one entry of a MultiValueMap.
type KeyToMultiValue struct {
	Name   NottableString   `json:"name" yaml:"name"`
	Values []NottableString `json:"values,omitempty" yaml:"values,omitempty"`
}

// MultiValueMap is an ordered mapping from a key to one or more values. It is
// used for headers, cookies, query string and path parameters, both in
// patterns and in live requests.
type MultiValueMap struct {
	Entries       []KeyToMultiValue
	KeyMatchStyle KeyMatchStyle
}

// NewMultiValueMap builds a map from literal key/value pairs.
func NewMultiValueMap(pairs ...string) MultiValueMap {
	var m MultiValueMap
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Add(String(pairs[i]), String(pairs[i+1]))
	}
	return m
}

// FromValues builds a map from a map of literal values with sorted keys, such
// as http.Header or url.Values.
func FromValues(values map[string][]string) MultiValueMap {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	var m MultiValueMap
	for _, name := range names {
		m.Entries = append(m.Entries, KeyToMultiValue{Name: String(name), Values: Strings(values[name]...)})
	}
	return m
}

// IsZero reports whether the map has no entries.
func (m MultiValueMap) IsZero() bool {
	return len(m.Entries) == 0
}

// Len returns the number of entries.
func (m MultiValueMap) Len() int {
	return len(m.Entries)
}

// Add appends values to the entry whose key equals name, creating it if needed.
// Literal keys are compared case-insensitively.
func (m *MultiValueMap) Add(name NottableString, values ...NottableString) {
	for i := range m.Entries {
		if sameKey(m.Entries[i].Name, name) {
			m.Entries[i].Values = append(m.Entries[i].Values, values...)
			return
		}
	}
	m.Entries = append(m.Entries, KeyToMultiValue{Name: name, Values: values})
}

// Get returns the literal values of every entry whose key equals name,
// ignoring case.
func (m MultiValueMap) Get(name string) []string {
	var out []string
	for _, e := range m.Entries {
		if strings.EqualFold(e.Name.Value, name) {
			for _, v := range e.Values {
				out = append(out, v.Value)
			}
		}
	}
	return out
}

// First returns the first value for name, or "".
func (m MultiValueMap) First(name string) string {
	if values := m.Get(name); len(values) > 0 {
		return values[0]
	}
	return ""
}

// Names returns the literal key names in order.
func (m MultiValueMap) Names() []string {
	out := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = e.Name.Value
	}
	return out
}

// ToValues flattens the map into literal values keyed by literal names.
func (m MultiValueMap) ToValues() map[string][]string {
	out := make(map[string][]string, len(m.Entries))
	for _, e := range m.Entries {
		for _, v := range e.Values {
			out[e.Name.Value] = append(out[e.Name.Value], v.Value)
		}
	}
	return out
}

func sameKey(a, b NottableString) bool {
	if a.Not != b.Not || a.Regex != b.Regex || a.Optional != b.Optional {
		return false
	}
	if a.Regex {
		return a.Value == b.Value
	}
	return strings.EqualFold(a.Value, b.Value)
}

// MarshalJSON writes the object form ({"name": ["v1", "v2"]}) when every key
// can be spelled as a string, and the array form otherwise.
func (m MultiValueMap) MarshalJSON() ([]byte, error) {
	objectForm := true
	for _, e := range m.Entries {
		if _, ok := formatKey(e.Name); !ok {
			objectForm = false
			break
		}
	}
	if !objectForm {
		if m.KeyMatchStyle != "" && m.KeyMatchStyle != KeyMatchSubSet {
			return nil, fmt.Errorf("keyMatchStyle %s requires string keys", m.KeyMatchStyle)
		}
		entries := m.Entries
		if entries == nil {
			entries = []KeyToMultiValue{}
		}
		return json.Marshal(entries)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	if m.KeyMatchStyle != "" && m.KeyMatchStyle != KeyMatchSubSet {
		fmt.Fprintf(&buf, "%q:%q", keyMatchStyleField, m.KeyMatchStyle)
		first = false
	}
	for _, e := range m.Entries {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		name, _ := formatKey(e.Name)
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		values := e.Values
		if values == nil {
			values = []NottableString{}
		}
		vals, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(vals)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the object form, where values may be a single
// pattern or a list, and the array form of {"name", "values"} entries.
func (m *MultiValueMap) UnmarshalJSON(data []byte) error {
	data = trimSpace(data)
	*m = MultiValueMap{}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	switch data[0] {
	case '[':
		return json.Unmarshal(data, &m.Entries)
	case '{':
		return m.unmarshalObject(data)
	default:
		return fmt.Errorf("invalid multi-value map %s", data)
	}
}

func (m *MultiValueMap) unmarshalObject(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("invalid key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if name == keyMatchStyleField {
			if err := json.Unmarshal(raw, &m.KeyMatchStyle); err != nil {
				return fmt.Errorf("%s: %w", keyMatchStyleField, err)
			}
			continue
		}
		values, err := decodeValues(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		m.Entries = append(m.Entries, KeyToMultiValue{Name: parsePrefixed(name), Values: values})
	}
	_, err := dec.Token()
	return err
}

func decodeValues(raw json.RawMessage) ([]NottableString, error) {
	raw = trimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var values []NottableString
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, err
		}
		return values, nil
	}
	var single NottableString
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []NottableString{single}, nil
}

// MarshalYAML mirrors MarshalJSON.
func (m MultiValueMap) MarshalYAML() (interface{}, error) {
	return marshalYAMLViaJSON(m)
}

// UnmarshalYAML mirrors UnmarshalJSON.
func (m *MultiValueMap) UnmarshalYAML(node *yaml.Node) error {
	return unmarshalYAMLViaJSON(node, m)
}
