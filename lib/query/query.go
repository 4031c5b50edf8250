package query

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/ValentinKolb/hkv/lib/db"
	"github.com/ValentinKolb/hkv/lib/value"
)

// Source provides the rows a query runs on. store.IStore implements it.
type Source interface {
	All(ctx context.Context) ([]db.Row, error)
	Get(ctx context.Context, key string) (any, error)
}

// Predicate is a user supplied filter for Custom
type Predicate func(ctx context.Context, row db.Row) (bool, error)

// --------------------------------------------------------------------------
// Row selection
// --------------------------------------------------------------------------

// rows returns the rows a query runs on: all rows of the source for an empty
// key, else the array stored under key read as a list of {id, value} objects.
func rows(ctx context.Context, src Source, op, key string) ([]db.Row, error) {
	if key == "" {
		return src.All(ctx)
	}

	stored, err := src.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	items, ok := value.AsArray(stored)
	if !ok {
		return nil, db.InvalidArgument(op, "value of %q is %s, expected an array", key, value.KindOf(stored))
	}

	result := make([]db.Row, 0, len(items))
	for _, item := range items {
		obj, isObj := item.(map[string]any)
		if !isObj {
			continue
		}
		row := db.Row{Value: obj["value"]}
		switch id := obj["id"].(type) {
		case string:
			row.ID = id
		case nil:
		default:
			row.ID = value.String(id)
		}
		result = append(result, row)
	}
	return result, nil
}

// filter keeps the rows with a value for which keep returns true
func filter(in []db.Row, keep func(row db.Row) bool) []db.Row {
	out := make([]db.Row, 0)
	for _, r := range in {
		if r.Value == nil {
			continue
		}
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// filterIDs keeps the rows with a non-empty id for which keep returns true, whatever their value
func filterIDs(in []db.Row, keep func(id string) bool) []db.Row {
	out := make([]db.Row, 0)
	for _, r := range in {
		if r.ID != "" && keep(r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// property returns the property of an object value
func property(v any, name string) (any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	p, ok := obj[name]
	return p, ok
}

// normalizeArg converts a caller supplied argument into a canonical value
func normalizeArg(op, name string, v any) (any, error) {
	n, err := value.Normalize(v)
	if err != nil {
		return nil, db.InvalidArgument(op, "%s: %v", name, err)
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Matchers
// --------------------------------------------------------------------------

// contains reports whether s contains the string form of term
func contains(s string, term any) bool {
	return strings.Contains(s, value.String(term))
}

// elementMatches is the loose element test of Search: equality or containment of the element's string form
func elementMatches(item, term any) bool {
	if value.StrictEqual(item, term) {
		return true
	}
	return item != nil && contains(value.String(item), term)
}

// stringElementMatches is the narrower element test of In: equality or containment in string elements
func stringElementMatches(item, term any) bool {
	if value.StrictEqual(item, term) {
		return true
	}
	s, ok := item.(string)
	return ok && contains(s, term)
}

func objectValues(v any) []any {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make([]any, 0, len(obj))
	for _, item := range obj {
		out = append(out, item)
	}
	return out
}

func anyOf(items []any, term any, match func(item, term any) bool) bool {
	for _, item := range items {
		if match(item, term) {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Combinators
// --------------------------------------------------------------------------

// Search matches rows by term, optionally scoped to a property of object values.
// At least one of term and property is required. With a property and a nil
// term every row having the property matches.
func Search(ctx context.Context, src Source, term any, prop string) ([]db.Row, error) {
	const op = "search"
	if term == nil && prop == "" {
		return nil, db.InvalidArgument(op, "at least one of term or property is required")
	}
	term, err := normalizeArg(op, "term", term)
	if err != nil {
		return nil, err
	}
	all, err := rows(ctx, src, op, "")
	if err != nil {
		return nil, err
	}

	return filter(all, func(r db.Row) bool {
		if prop != "" {
			pv, ok := property(r.Value, prop)
			if !ok {
				return false
			}
			if term == nil {
				return true
			}
			switch t := pv.(type) {
			case string:
				return value.StrictEqual(pv, term) || contains(t, term)
			case []any:
				return anyOf(t, term, elementMatches)
			case map[string]any:
				return anyOf(objectValues(t), term, elementMatches)
			default:
				return value.StrictEqual(pv, term)
			}
		}

		switch t := r.Value.(type) {
		case string:
			return contains(t, term)
		case []any:
			return anyOf(t, term, elementMatches)
		case map[string]any:
			return anyOf(objectValues(t), term, elementMatches)
		default:
			return value.StrictEqual(r.Value, term)
		}
	}), nil
}

// In is a narrower Search that can run on the array stored under key.
// Array elements match by equality only, without a property a nil term matches nothing.
func In(ctx context.Context, src Source, term any, prop, key string) ([]db.Row, error) {
	const op = "in"
	if term == nil && prop == "" {
		return nil, db.InvalidArgument(op, "at least one of term or property is required")
	}
	term, err := normalizeArg(op, "term", term)
	if err != nil {
		return nil, err
	}
	data, err := rows(ctx, src, op, key)
	if err != nil {
		return nil, err
	}

	return filter(data, func(r db.Row) bool {
		if prop != "" {
			pv, ok := property(r.Value, prop)
			if !ok {
				return false
			}
			if term == nil {
				return true
			}
			switch t := pv.(type) {
			case string:
				return value.StrictEqual(pv, term) || contains(t, term)
			case []any:
				return anyOf(t, term, value.StrictEqual)
			case map[string]any:
				return anyOf(objectValues(t), term, stringElementMatches)
			default:
				return value.StrictEqual(pv, term)
			}
		}

		if term == nil {
			return false
		}
		switch t := r.Value.(type) {
		case string:
			return contains(t, term)
		case []any:
			return anyOf(t, term, stringElementMatches)
		case map[string]any:
			return anyOf(objectValues(t), term, stringElementMatches)
		default:
			return false
		}
	}), nil
}

// Between keeps rows whose number (or number property) lies in [min, max].
// Non-number values never match, min > max yields no rows.
func Between(ctx context.Context, src Source, min, max float64, prop, key string) ([]db.Row, error) {
	const op = "between"
	if math.IsNaN(min) || math.IsNaN(max) {
		return nil, db.InvalidArgument(op, "min and max need to be numbers")
	}
	data, err := rows(ctx, src, op, key)
	if err != nil {
		return nil, err
	}

	return filter(data, func(r db.Row) bool {
		v := r.Value
		if prop != "" {
			pv, ok := property(r.Value, prop)
			if !ok {
				return false
			}
			v = pv
		}
		n, isNum := v.(float64)
		return isNum && n >= min && n <= max
	}), nil
}

// StartsWith keeps rows whose id starts with q. Rows with an empty id never match.
func StartsWith(ctx context.Context, src Source, q, key string) ([]db.Row, error) {
	data, err := rows(ctx, src, "startsWith", key)
	if err != nil {
		return nil, err
	}
	return filterIDs(data, func(id string) bool { return strings.HasPrefix(id, q) }), nil
}

// EndsWith keeps rows whose id ends with q. Rows with an empty id never match.
func EndsWith(ctx context.Context, src Source, q, key string) ([]db.Row, error) {
	data, err := rows(ctx, src, "endsWith", key)
	if err != nil {
		return nil, err
	}
	return filterIDs(data, func(id string) bool { return strings.HasSuffix(id, q) }), nil
}

// Regex keeps rows whose string value (or string property) matches pattern.
func Regex(ctx context.Context, src Source, pattern *regexp.Regexp, prop, key string) ([]db.Row, error) {
	const op = "regex"
	if pattern == nil {
		return nil, db.InvalidArgument(op, "pattern is required")
	}
	data, err := rows(ctx, src, op, key)
	if err != nil {
		return nil, err
	}

	return filter(data, func(r db.Row) bool {
		v := r.Value
		if prop != "" {
			pv, ok := property(r.Value, prop)
			if !ok {
				return false
			}
			v = pv
		}
		s, isStr := v.(string)
		return isStr && pattern.MatchString(s)
	}), nil
}

// Operators accepted by Compare
var Operators = []string{"==", "===", "!=", "!==", ">", "<", ">=", "<="}

// Compare keeps rows whose property compares to v with the operator.
// == and != coerce between numbers, numeric strings and booleans, === and !==
// compare strictly. Relational operators compare two strings lexicographically
// and everything else numerically.
func Compare(ctx context.Context, src Source, prop, operator string, v any, key string) ([]db.Row, error) {
	const op = "compare"
	if prop == "" {
		return nil, db.InvalidArgument(op, "property is required")
	}
	cmp, err := comparator(operator)
	if err != nil {
		return nil, err
	}
	v, err = normalizeArg(op, "value", v)
	if err != nil {
		return nil, err
	}
	data, err := rows(ctx, src, op, key)
	if err != nil {
		return nil, err
	}

	return filter(data, func(r db.Row) bool {
		pv, ok := property(r.Value, prop)
		return ok && cmp(pv, v)
	}), nil
}

func comparator(operator string) (func(a, b any) bool, error) {
	relational := func(test func(c int) bool) func(a, b any) bool {
		return func(a, b any) bool {
			c, ok := value.Compare(a, b)
			return ok && test(c)
		}
	}

	switch operator {
	case "==":
		return value.LooseEqual, nil
	case "===":
		return value.StrictEqual, nil
	case "!=":
		return func(a, b any) bool { return !value.LooseEqual(a, b) }, nil
	case "!==":
		return func(a, b any) bool { return !value.StrictEqual(a, b) }, nil
	case ">":
		return relational(func(c int) bool { return c > 0 }), nil
	case "<":
		return relational(func(c int) bool { return c < 0 }), nil
	case ">=":
		return relational(func(c int) bool { return c >= 0 }), nil
	case "<=":
		return relational(func(c int) bool { return c <= 0 }), nil
	default:
		return nil, db.InvalidArgument("compare", "invalid operator %q (expected one of %s)", operator, strings.Join(Operators, " "))
	}
}

// Custom keeps the rows for which fn returns true. fn is called sequentially
// in row order, the first error aborts the query.
func Custom(ctx context.Context, src Source, fn Predicate, key string) ([]db.Row, error) {
	const op = "custom"
	if fn == nil {
		return nil, db.InvalidArgument(op, "predicate is required")
	}
	data, err := rows(ctx, src, op, key)
	if err != nil {
		return nil, err
	}

	out := make([]db.Row, 0)
	for _, r := range data {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keep, err := fn(ctx, r)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, r)
		}
	}
	return out, nil
}
