package expectation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// unmarshalYAMLViaJSON decodes a YAML node generically and feeds the result
// through the target's JSON decoder, so both document formats share one set
// of shorthand rules.
func unmarshalYAMLViaJSON(node *yaml.Node, target json.Unmarshaler) error {
	var generic interface{}
	if err := node.Decode(&generic); err != nil {
		return err
	}
	data, err := json.Marshal(normalizeYAML(generic))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	if err := target.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// marshalYAMLViaJSON produces a generic YAML value from a JSON encoding.
func marshalYAMLViaJSON(source json.Marshaler) (interface{}, error) {
	data, err := source.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return denormalizeNumbers(generic), nil
}

// normalizeYAML converts map[interface{}]interface{} values, which yaml.v3
// produces for non-string keys, into JSON-compatible maps.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}

func denormalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = denormalizeNumbers(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = denormalizeNumbers(val)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

func trimSpace(data []byte) []byte {
	return bytes.TrimSpace(data)
}

// rawString returns the string content of a JSON string token, or the compact
// JSON text of any other value.
func rawString(raw json.RawMessage) (string, error) {
	raw = trimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}
