package assert

import (
	"reflect"
	"strings"
)

// shallowMatch reports whether item satisfies every field of the partial
// pattern. Array-valued pattern fields carry two semantics, resolved by
// inspecting the actual value's type rather than the expected value's:
//
//   - actual is also an array: the pattern must be a case-insensitive subset
//     of the actual ("scheduled on at least these days");
//   - actual is a scalar: the pattern is a case-insensitive "one of" set.
func shallowMatch(item map[string]any, pattern map[string]any) bool {
	if item == nil {
		return len(pattern) == 0
	}
	for key, want := range pattern {
		got, ok := item[key]
		if !ok {
			return false
		}
		if !matchField(got, want) {
			return false
		}
	}
	return true
}

func matchField(got, want any) bool {
	wantArr, wantIsArr := toAnySlice(want)
	if !wantIsArr {
		return equalValue(got, want)
	}

	if gotArr, ok := toAnySlice(got); ok {
		return foldSubset(wantArr, gotArr)
	}
	return foldOneOf(wantArr, got)
}

// foldSubset reports whether every element of want appears in got,
// case-insensitively for strings.
func foldSubset(want, got []any) bool {
	for _, w := range want {
		found := false
		for _, g := range got {
			if equalFold(w, g) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func foldOneOf(want []any, got any) bool {
	for _, w := range want {
		if equalFold(w, got) {
			return true
		}
	}
	return false
}

func equalFold(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.EqualFold(as, bs)
	}
	return equalValue(a, b)
}

// equalValue is type-sensitive equality, except that numeric types are
// unified first so a YAML int can compare equal to a JSON float64.
func equalValue(a, b any) bool {
	if af, ok := toNumber(a); ok {
		bf, ok := toNumber(b)
		return ok && af == bf
	}
	if _, ok := toNumber(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toAnySlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, 0, len(s))
		for _, e := range s {
			out = append(out, e)
		}
		return out, true
	default:
		return nil, false
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
