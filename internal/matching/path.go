package matching

import (
	"strings"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// PathMatcher compares the request path. Literal paths may contain {name}
// placeholders, each matching one segment; the captured segments are exposed
// as path parameters.
type PathMatcher struct {
	str      StringMatcher
	segments []string
	params   bool
}

// CompilePath compiles a path pattern.
func CompilePath(field string, pattern expectation.NottableString) (*PathMatcher, error) {
	str, err := compileField(field, pattern, false)
	if err != nil {
		return nil, err
	}
	m := &PathMatcher{str: str}
	if !pattern.Regex && strings.Contains(pattern.Value, "{") {
		m.segments = splitPath(pattern.Value)
		for _, s := range m.segments {
			if isPlaceholder(s) {
				m.params = true
				break
			}
		}
	}
	return m, nil
}

// Match compares path and returns the captured parameters.
func (m *PathMatcher) Match(path string) (bool, expectation.MultiValueMap) {
	if !m.params {
		return m.str.Matches(path), expectation.MultiValueMap{}
	}
	params, ok := m.capture(path)
	if m.str.Negated() {
		return !ok, expectation.MultiValueMap{}
	}
	return ok, params
}

// capture extracts {name} segments from path.
func (m *PathMatcher) capture(path string) (expectation.MultiValueMap, bool) {
	var params expectation.MultiValueMap
	parts := splitPath(path)
	if len(parts) != len(m.segments) {
		return params, false
	}
	for i, seg := range m.segments {
		if isPlaceholder(seg) {
			params.Add(expectation.String(seg[1:len(seg)-1]), expectation.String(parts[i]))
			continue
		}
		if seg != parts[i] {
			return expectation.MultiValueMap{}, false
		}
	}
	return params, true
}

func (m *PathMatcher) String() string {
	return m.str.String()
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func isPlaceholder(seg string) bool {
	return len(seg) > 2 && strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}
