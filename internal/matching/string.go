package matching

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// StringMatcher is a compiled NottableString.
type StringMatcher struct {
	pattern    expectation.NottableString
	ignoreCase bool
	re         *regexp.Regexp
}

// CompileString compiles a pattern. Literal patterns compare case-insensitively
// when ignoreCase is set; regular expressions always match the whole
// candidate and keep their own case rules.
func CompileString(pattern expectation.NottableString, ignoreCase bool) (StringMatcher, error) {
	m := StringMatcher{pattern: pattern, ignoreCase: ignoreCase && !pattern.Regex}
	if pattern.Regex {
		re, err := regexp.Compile("^(?:" + pattern.Value + ")$")
		if err != nil {
			return m, fmt.Errorf("invalid regular expression %q: %w", pattern.Value, err)
		}
		m.re = re
	}
	return m, nil
}

// MatchString compiles pattern and tests candidate as a value.
func MatchString(pattern expectation.NottableString, candidate string) (bool, error) {
	m, err := CompileString(pattern, false)
	if err != nil {
		return false, err
	}
	return m.Matches(candidate), nil
}

// Matches applies the comparison and then the negation.
func (m StringMatcher) Matches(candidate string) bool {
	return m.collides(candidate) != m.pattern.Not
}

// collides is the comparison without negation.
func (m StringMatcher) collides(candidate string) bool {
	switch {
	case m.re != nil:
		return m.re.MatchString(candidate)
	case m.ignoreCase:
		return strings.EqualFold(m.pattern.Value, candidate)
	default:
		return m.pattern.Value == candidate
	}
}

// Negated reports whether the pattern is negated.
func (m StringMatcher) Negated() bool {
	return m.pattern.Not
}

// Optional reports whether the pattern is an optional key.
func (m StringMatcher) Optional() bool {
	return m.pattern.Optional
}

func (m StringMatcher) String() string {
	return m.pattern.String()
}

// compileField wraps compile errors in a ValidationError for field.
func compileField(field string, pattern expectation.NottableString, ignoreCase bool) (StringMatcher, error) {
	m, err := CompileString(pattern, ignoreCase)
	if err != nil {
		return m, &expectation.ValidationError{Field: field, Message: err.Error()}
	}
	return m, nil
}
