package matching

import (
	"reflect"
)

// jsonContains reports whether every member of expected is present and equal
// in actual. Objects compare as subsets; arrays compare element by element in
// order and must have the same length.
func jsonContains(expected, actual interface{}) bool {
	switch e := expected.(type) {
	case map[string]interface{}:
		a, ok := actual.(map[string]interface{})
		if !ok {
			return false
		}
		for k, ev := range e {
			av, ok := a[k]
			if !ok || !jsonContains(ev, av) {
				return false
			}
		}
		return true
	case []interface{}:
		a, ok := actual.([]interface{})
		if !ok || len(a) != len(e) {
			return false
		}
		for i := range e {
			if !jsonContains(e[i], a[i]) {
				return false
			}
		}
		return true
	default:
		return valuesEqual(expected, actual)
	}
}

// jsonEqual reports whether expected and actual are deeply equal.
func jsonEqual(expected, actual interface{}) bool {
	switch e := expected.(type) {
	case map[string]interface{}:
		a, ok := actual.(map[string]interface{})
		if !ok || len(a) != len(e) {
			return false
		}
		for k, ev := range e {
			av, ok := a[k]
			if !ok || !jsonEqual(ev, av) {
				return false
			}
		}
		return true
	case []interface{}:
		a, ok := actual.([]interface{})
		if !ok || len(a) != len(e) {
			return false
		}
		for i := range e {
			if !jsonEqual(e[i], a[i]) {
				return false
			}
		}
		return true
	default:
		return valuesEqual(expected, actual)
	}
}

// valuesEqual compares two JSON scalars, treating numbers by value.
// Integers compare exactly; a float on either side compares as float64.
func valuesEqual(expected, actual interface{}) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if ei, ok := expected.(int64); ok {
		if ai, ok := actual.(int64); ok {
			return ei == ai
		}
	}
	if ef, ok := toFloat64(expected); ok {
		if af, ok := toFloat64(actual); ok {
			return ef == af
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

// toFloat64 converts numeric types to float64.
func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
