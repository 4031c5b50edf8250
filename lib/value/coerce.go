package value

import (
	"math"
	"strconv"
	"strings"
)

// ToNumber coerces a canonical value into a number.
// Numbers are returned as is, strings are parsed (surrounding whitespace is ignored).
// Everything else is not coercible.
func ToNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		if n, err := Normalize(v); err == nil {
			if f, ok := n.(float64); ok {
				return f, true
			}
		}
		return 0, false
	}
}

// AsArray returns v as an array. A nil value is an empty array.
func AsArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return []any{}, true
	case []any:
		return t, true
	default:
		return nil, false
	}
}

// looseNumber converts like a dynamic language would when comparing mixed types.
// Non-convertible values yield NaN.
func looseNumber(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case float64:
		return t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// String renders a value the way it is matched by substring searches:
// numbers without trailing zeros, arrays as comma separated elements
// and objects as an opaque marker.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if math.Abs(t) >= 1e21 {
			return strconv.FormatFloat(t, 'g', -1, 64)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = String(item)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	default:
		if n, err := Normalize(v); err == nil && KindOf(n) != KindInvalid {
			return String(n)
		}
		return ""
	}
}
