package expectation

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// NottableString is a string pattern that can be negated and/or interpreted
// as a regular expression.
type NottableString struct {
	Value string
	Not   bool
	Regex bool

	// Optional is only meaningful for map keys: an absent optional key is a
	// pass, a present one must match.
	Optional bool
}

// String returns a literal pattern.
func String(value string) NottableString {
	return NottableString{Value: value}
}

// Not returns a negated literal pattern.
func Not(value string) NottableString {
	return NottableString{Value: value, Not: true}
}

// Regex returns a regular expression pattern.
func Regex(pattern string) NottableString {
	return NottableString{Value: pattern, Regex: true}
}

// NotRegex returns a negated regular expression pattern.
func NotRegex(pattern string) NottableString {
	return NottableString{Value: pattern, Not: true, Regex: true}
}

// Strings converts literal values to patterns.
func Strings(values ...string) []NottableString {
	out := make([]NottableString, len(values))
	for i, v := range values {
		out[i] = String(v)
	}
	return out
}

// IsZero reports whether the pattern is unset.
func (s NottableString) IsZero() bool {
	return s.Value == "" && !s.Not && !s.Regex && !s.Optional
}

// IsPlain reports whether the pattern is a plain literal.
func (s NottableString) IsPlain() bool {
	return !s.Not && !s.Regex && !s.Optional
}

// String renders the pattern the way it is written in map keys.
func (s NottableString) String() string {
	var b strings.Builder
	if s.Not {
		b.WriteByte('!')
	}
	if s.Optional {
		b.WriteByte('?')
	}
	if s.Regex {
		b.WriteString("/" + s.Value + "/")
	} else {
		b.WriteString(s.Value)
	}
	return b.String()
}

// nottableJSON is the object form of a NottableString.
type nottableJSON struct {
	Value    string `json:"value"`
	Not      bool   `json:"not,omitempty"`
	Regex    bool   `json:"regex,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// MarshalJSON writes plain literals as strings and everything else as an
// object. A literal starting with "!" or "?" is written as an object so it
// is not read back as prefixed.
func (s NottableString) MarshalJSON() ([]byte, error) {
	if s.IsPlain() && !hasPrefixChar(s.Value) {
		return json.Marshal(s.Value)
	}
	return json.Marshal(nottableJSON(s))
}

// UnmarshalJSON accepts either a string or {"value", "not", "regex", "optional"}.
// In the string form a leading "!" negates the pattern and a leading "?"
// makes it optional. The object form takes value literally.
func (s *NottableString) UnmarshalJSON(data []byte) error {
	data = trimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = NottableString{}
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = parsePrefixed(v)
		return nil
	case '{':
		var obj nottableJSON
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*s = NottableString(obj)
		return nil
	case 't', 'f', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		// Numbers and booleans in hand-written documents are taken literally.
		*s = NottableString{Value: string(data)}
		return nil
	default:
		return fmt.Errorf("invalid string pattern %s", data)
	}
}

// MarshalYAML mirrors MarshalJSON.
func (s NottableString) MarshalYAML() (interface{}, error) {
	if s.IsPlain() && !hasPrefixChar(s.Value) {
		return s.Value, nil
	}
	return nottableJSON(s), nil
}

// UnmarshalYAML mirrors UnmarshalJSON.
func (s *NottableString) UnmarshalYAML(node *yaml.Node) error {
	return unmarshalYAMLViaJSON(node, s)
}

// parsePrefixed decodes the string syntax shared by values and object-form
// map keys: a leading "!" negates and a leading "?" makes optional.
func parsePrefixed(raw string) NottableString {
	key := NottableString{}
	for len(raw) > 1 {
		switch raw[0] {
		case '!':
			key.Not = true
		case '?':
			key.Optional = true
		default:
			key.Value = raw
			return key
		}
		raw = raw[1:]
	}
	key.Value = raw
	return key
}

func hasPrefixChar(v string) bool {
	return len(v) > 1 && (v[0] == '!' || v[0] == '?')
}

// formatKey is the inverse of parsePrefixed; it reports false when the key cannot
// be written in object form.
func formatKey(key NottableString) (string, bool) {
	if key.Regex {
		return "", false
	}
	prefix := ""
	if key.Not {
		prefix += "!"
	}
	if key.Optional {
		prefix += "?"
	}
	if hasPrefixChar(key.Value) {
		return "", false
	}
	if key.Value == keyMatchStyleField {
		return "", false
	}
	return prefix + key.Value, true
}
