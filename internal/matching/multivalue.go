package matching

import (
	"fmt"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

// MultiValueMatcher is a compiled MultiValueMap pattern.
type MultiValueMatcher struct {
	entries []entryMatcher
	style   expectation.KeyMatchStyle
}

type entryMatcher struct {
	key    StringMatcher
	values []StringMatcher
}

// CompileMultiValue compiles a map pattern. An empty pattern compiles to nil,
// which matches every map.
func CompileMultiValue(field string, pattern expectation.MultiValueMap) (*MultiValueMatcher, error) {
	if pattern.IsZero() {
		return nil, nil
	}
	m := &MultiValueMatcher{style: pattern.KeyMatchStyle}
	for i, e := range pattern.Entries {
		entryField := fmt.Sprintf("%s[%d]", field, i)
		key, err := compileField(entryField+".name", e.Name, true)
		if err != nil {
			return nil, err
		}
		em := entryMatcher{key: key}
		for j, v := range e.Values {
			value, err := compileField(fmt.Sprintf("%s.values[%d]", entryField, j), v, false)
			if err != nil {
				return nil, err
			}
			em.values = append(em.values, value)
		}
		m.entries = append(m.entries, em)
	}
	return m, nil
}

// ContainsAll reports whether every pattern entry is satisfied by live.
//
// A non-negated key must match at least one live key, and the values of all
// matching live keys must satisfy the value patterns. A negated key is
// satisfied when no live key carries the literal key, or when the live keys
// that do carry none of the pattern values. An optional key is satisfied by
// its absence.
func (m *MultiValueMatcher) ContainsAll(live expectation.MultiValueMap) bool {
	if m == nil {
		return true
	}
	for _, e := range m.entries {
		if !e.satisfiedBy(live, m.style) {
			return false
		}
	}
	return true
}

// ContainsKeyValue reports whether live satisfies a single key pattern with
// the given value patterns. Keys and values follow the rules of ContainsAll:
// regular expressions, negation and optional keys apply, and any value
// pattern satisfied by a live value of the key is enough.
func ContainsKeyValue(live expectation.MultiValueMap, key expectation.NottableString, values ...expectation.NottableString) (bool, error) {
	km, err := CompileString(key, true)
	if err != nil {
		return false, err
	}
	e := entryMatcher{key: km}
	for _, v := range values {
		vm, err := CompileString(v, false)
		if err != nil {
			return false, err
		}
		e.values = append(e.values, vm)
	}
	return e.satisfiedBy(live, expectation.KeyMatchSubSet), nil
}

// unsatisfied returns the entries of pattern that live does not satisfy. A
// pattern with a style other than SUB_SET is returned whole when it fails.
func unsatisfied(pattern, live expectation.MultiValueMap) expectation.MultiValueMap {
	if pattern.KeyMatchStyle != "" && pattern.KeyMatchStyle != expectation.KeyMatchSubSet {
		return pattern
	}
	var missing expectation.MultiValueMap
	for _, e := range pattern.Entries {
		if ok, err := ContainsKeyValue(live, e.Name, e.Values...); err == nil && !ok {
			missing.Entries = append(missing.Entries, e)
		}
	}
	return missing
}

func (e entryMatcher) satisfiedBy(live expectation.MultiValueMap, style expectation.KeyMatchStyle) bool {
	var values []string
	found := false
	for _, le := range live.Entries {
		var hit bool
		if e.key.Negated() {
			hit = e.key.collides(le.Name.Value)
		} else {
			hit = e.key.Matches(le.Name.Value)
		}
		if !hit {
			continue
		}
		found = true
		for _, v := range le.Values {
			values = append(values, v.Value)
		}
	}

	if e.key.Negated() {
		if !found {
			return true
		}
		if len(e.values) == 0 {
			return false
		}
		return !valuesSatisfied(e.values, values, style)
	}
	if !found {
		return e.key.Optional()
	}
	return valuesSatisfied(e.values, values, style)
}

// valuesSatisfied compares the live values of one key against its value
// patterns. A negated value pattern is satisfied when no live value equals
// its underlying value.
func valuesSatisfied(patterns []StringMatcher, live []string, style expectation.KeyMatchStyle) bool {
	if len(patterns) == 0 {
		return true
	}
	if style == expectation.KeyMatchMatchingKey {
		if len(live) == 0 {
			return false
		}
		for _, lv := range live {
			ok := false
			for _, p := range patterns {
				if p.Matches(lv) {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
		return true
	}

	for _, p := range patterns {
		if p.Negated() {
			if noneCollide(p, live) {
				return true
			}
			continue
		}
		for _, lv := range live {
			if p.Matches(lv) {
				return true
			}
		}
	}
	return false
}

func noneCollide(p StringMatcher, live []string) bool {
	for _, lv := range live {
		if p.collides(lv) {
			return false
		}
	}
	return true
}
