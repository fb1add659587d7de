package matching

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BodyMatcher is a compiled body pattern.
type BodyMatcher struct {
	kind      expectation.BodyType
	not       bool
	subString bool
	strict    bool
	charset   string

	text     string
	raw      []byte
	re       *regexp.Regexp
	json     interface{}
	schema   *jsonschema.Schema
	xpath    etree.Path
	jsonPath jp.Expr

	source string
}

// CompileBody compiles a body pattern. A nil body compiles to nil, which
// matches every body.
func CompileBody(field string, b *expectation.Body, opts Options) (*BodyMatcher, error) {
	if b == nil {
		return nil, nil
	}
	invalid := func(format string, args ...interface{}) error {
		return &expectation.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
	}

	m := &BodyMatcher{
		kind:      b.Type,
		not:       b.Not,
		subString: b.SubString,
		charset:   opts.DefaultCharset,
		text:      b.Value,
		source:    b.Value,
	}
	switch b.Type {
	case expectation.BodyString:
	case expectation.BodyBinary:
		raw, err := b.Bytes()
		if err != nil {
			return nil, invalid("%v", err)
		}
		m.raw = raw
	case expectation.BodyRegex:
		re, err := regexp.Compile("^(?:" + b.Value + ")$")
		if err != nil {
			return nil, invalid("invalid regular expression %q: %v", b.Value, err)
		}
		m.re = re
	case expectation.BodyJSON:
		pattern, err := oj.Parse([]byte(b.Value))
		if err != nil {
			return nil, invalid("invalid JSON body pattern: %v", err)
		}
		m.json = pattern
		m.strict = opts.strictJSON(b)
	case expectation.BodyJSONSchema:
		schema, err := compileSchema(b.Value)
		if err != nil {
			return nil, invalid("invalid JSON schema: %v", err)
		}
		m.schema = schema
	case expectation.BodyXPath:
		path, err := etree.CompilePath(b.Value)
		if err != nil {
			return nil, invalid("invalid XPath expression %q: %v", b.Value, err)
		}
		m.xpath = path
	case expectation.BodyJSONPath:
		expr, err := jp.ParseString(b.Value)
		if err != nil {
			return nil, invalid("invalid JSONPath expression %q: %v", b.Value, err)
		}
		m.jsonPath = expr
	default:
		return nil, invalid("unknown body type %q", b.Type)
	}
	return m, nil
}

func compileSchema(source string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("schema.json", strings.NewReader(source)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

// Matches reports whether the live body satisfies the pattern. The not flag
// inverts the comparison only; a live body that cannot be parsed for a
// structural pattern never matches.
func (m *BodyMatcher) Matches(body []byte, contentType string) bool {
	if m == nil {
		return true
	}
	matched, parsed := m.compare(body, contentType)
	if !parsed {
		return false
	}
	return matched != m.not
}

func (m *BodyMatcher) compare(body []byte, contentType string) (matched, parsed bool) {
	switch m.kind {
	case expectation.BodyString:
		text := decodeBody(body, contentType, m.charset)
		if m.subString {
			return strings.Contains(text, m.text), true
		}
		return text == m.text, true
	case expectation.BodyBinary:
		return bytes.Equal(body, m.raw), true
	case expectation.BodyRegex:
		return m.re.MatchString(decodeBody(body, contentType, m.charset)), true
	case expectation.BodyJSON:
		actual, err := oj.Parse(body)
		if err != nil {
			return false, false
		}
		if m.strict {
			return jsonEqual(m.json, actual), true
		}
		return jsonContains(m.json, actual), true
	case expectation.BodyJSONSchema:
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var actual interface{}
		if err := dec.Decode(&actual); err != nil {
			return false, false
		}
		return m.schema.Validate(actual) == nil, true
	case expectation.BodyXPath:
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(body); err != nil || doc.Root() == nil {
			return false, false
		}
		return len(doc.FindElementsPath(m.xpath)) > 0, true
	case expectation.BodyJSONPath:
		data, err := oj.Parse(body)
		if err != nil {
			return false, false
		}
		return len(m.jsonPath.Get(data)) > 0, true
	default:
		return false, false
	}
}

func (m *BodyMatcher) String() string {
	if m == nil {
		return ""
	}
	prefix := ""
	if m.not {
		prefix = "not "
	}
	return fmt.Sprintf("%s%s %s", prefix, m.kind, m.source)
}
