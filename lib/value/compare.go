package value

import (
	"math"
	"strings"
)

// StrictEqual reports whether a and b have the same kind and the same content.
// Containers are compared structurally.
func StrictEqual(a, b any) bool {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return false
	}
	switch ka {
	case KindNull:
		return true
	case KindBool:
		return a.(bool) == b.(bool)
	case KindNumber:
		return a.(float64) == b.(float64)
	case KindString:
		return a.(string) == b.(string)
	case KindArray:
		x, y := a.([]any), b.([]any)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !StrictEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	case KindObject:
		x, y := a.(map[string]any), b.(map[string]any)
		if len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !StrictEqual(xv, yv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// LooseEqual is equality with type coercion between numbers, numeric strings and booleans.
// nil only equals nil.
func LooseEqual(a, b any) bool {
	ka, kb := KindOf(a), KindOf(b)
	if ka == kb {
		return StrictEqual(a, b)
	}
	if ka == KindNull || kb == KindNull {
		return false
	}
	if ka == KindArray || ka == KindObject || kb == KindArray || kb == KindObject {
		return false
	}
	x, y := looseNumber(a), looseNumber(b)
	return !math.IsNaN(x) && !math.IsNaN(y) && x == y
}

// Compare orders a and b. Two strings compare lexicographically, every other
// combination numerically. ok is false when the values are not comparable.
func Compare(a, b any) (cmp int, ok bool) {
	if sa, isStr := a.(string); isStr {
		if sb, isStr := b.(string); isStr {
			return strings.Compare(sa, sb), true
		}
	}
	x, y := looseNumber(a), looseNumber(b)
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	default:
		return 0, true
	}
}
