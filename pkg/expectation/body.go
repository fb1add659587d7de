package expectation

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// BodyType selects how a Body is compared.
type BodyType string

// Body types.
const (
	BodyString     BodyType = "STRING"
	BodyBinary     BodyType = "BINARY"
	BodyRegex      BodyType = "REGEX"
	BodyJSON       BodyType = "JSON"
	BodyJSONSchema BodyType = "JSON_SCHEMA"
	BodyXPath      BodyType = "XPATH"
	BodyJSONPath   BodyType = "JSON_PATH"
)

// valueFields maps each type to the field name its value may also be given
// under ({"type": "REGEX", "regex": "..."}).
var valueFields = map[BodyType]string{
	BodyString:     "string",
	BodyBinary:     "base64Bytes",
	BodyRegex:      "regex",
	BodyJSON:       "json",
	BodyJSONSchema: "jsonSchema",
	BodyXPath:      "xpath",
	BodyJSONPath:   "jsonPath",
}

// Valid reports whether t is a known body type.
func (t BodyType) Valid() bool {
	_, ok := valueFields[t]
	return ok
}

// JSONMatchType selects subset or strict JSON comparison.
type JSONMatchType string

// JSON match types.
const (
	JSONOnlyMatchingFields JSONMatchType = "ONLY_MATCHING_FIELDS"
	JSONStrict             JSONMatchType = "STRICT"
)

// Body is a body pattern in a RequestDefinition, or the body of an
// HttpResponse.
type Body struct {
	Type  BodyType
	Value string
	Not   bool

	// MatchType applies to JSON bodies; empty means the configured default.
	MatchType JSONMatchType

	// SubString makes a STRING body match when it is contained in the live body.
	SubString bool

	// ContentType is sent with response bodies and used to pick the charset
	// for STRING comparisons.
	ContentType string
}

// StringBody returns an exact string body.
func StringBody(value string) *Body {
	return &Body{Type: BodyString, Value: value}
}

// JSONBody returns a subset JSON body.
func JSONBody(value string) *Body {
	return &Body{Type: BodyJSON, Value: value}
}

// BinaryBody returns a binary body.
func BinaryBody(data []byte) *Body {
	return &Body{Type: BodyBinary, Value: base64.StdEncoding.EncodeToString(data)}
}

// Bytes returns the raw payload, decoding BINARY bodies from base64.
func (b *Body) Bytes() ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	if b.Type == BodyBinary {
		data, err := base64.StdEncoding.DecodeString(b.Value)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 body: %w", err)
		}
		return data, nil
	}
	return []byte(b.Value), nil
}

// DefaultContentType returns ContentType or a type inferred from the body kind.
func (b *Body) DefaultContentType() string {
	if b == nil {
		return ""
	}
	if b.ContentType != "" {
		return b.ContentType
	}
	switch b.Type {
	case BodyJSON, BodyJSONSchema:
		return "application/json"
	case BodyXPath:
		return "application/xml"
	case BodyBinary:
		return "application/octet-stream"
	default:
		return ""
	}
}

type bodyJSON struct {
	Type        BodyType        `json:"type"`
	Value       json.RawMessage `json:"value,omitempty"`
	Not         bool            `json:"not,omitempty"`
	MatchType   JSONMatchType   `json:"matchType,omitempty"`
	SubString   bool            `json:"subString,omitempty"`
	ContentType string          `json:"contentType,omitempty"`
}

// MarshalJSON writes {"type", "value", ...}; JSON documents are embedded as
// JSON rather than as strings.
func (b Body) MarshalJSON() ([]byte, error) {
	out := bodyJSON{
		Type:        b.Type,
		Not:         b.Not,
		MatchType:   b.MatchType,
		SubString:   b.SubString,
		ContentType: b.ContentType,
	}
	if (b.Type == BodyJSON || b.Type == BodyJSONSchema) && json.Valid([]byte(b.Value)) {
		out.Value = json.RawMessage(b.Value)
	} else {
		v, err := json.Marshal(b.Value)
		if err != nil {
			return nil, err
		}
		out.Value = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts:
//   - a string, meaning an exact STRING body
//   - an object with "type" and a value under "value" or the type's own field
//   - any other object or array, meaning a subset JSON body
func (b *Body) UnmarshalJSON(data []byte) error {
	data = trimSpace(data)
	*b = Body{}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	switch data[0] {
	case '"':
		b.Type = BodyString
		return json.Unmarshal(data, &b.Value)
	case '[':
		b.Type = BodyJSON
		v, err := rawString(data)
		b.Value = v
		return err
	case '{':
	default:
		return fmt.Errorf("invalid body %s", data)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	rawType, typed := fields["type"]
	if !typed {
		b.Type = BodyJSON
		v, err := rawString(data)
		b.Value = v
		return err
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return fmt.Errorf("body type: %w", err)
	}
	b.Type = BodyType(strings.ToUpper(typ))

	raw, ok := fields["value"]
	if !ok {
		raw = fields[valueFields[b.Type]]
	}
	v, err := rawString(raw)
	if err != nil {
		return fmt.Errorf("body value: %w", err)
	}
	b.Value = v

	for name, target := range map[string]interface{}{
		"not":         &b.Not,
		"matchType":   &b.MatchType,
		"subString":   &b.SubString,
		"contentType": &b.ContentType,
	} {
		if raw, ok := fields[name]; ok {
			if err := json.Unmarshal(raw, target); err != nil {
				return fmt.Errorf("body %s: %w", name, err)
			}
		}
	}
	b.MatchType = JSONMatchType(strings.ToUpper(string(b.MatchType)))
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (b Body) MarshalYAML() (interface{}, error) {
	return marshalYAMLViaJSON(b)
}

// UnmarshalYAML mirrors UnmarshalJSON.
func (b *Body) UnmarshalYAML(node *yaml.Node) error {
	return unmarshalYAMLViaJSON(node, b)
}
