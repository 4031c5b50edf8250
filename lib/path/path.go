// Package path splits dotted keys and reads, writes and deletes nested values
// inside canonical object values. It performs no I/O.
//
// A key like "user.profile.age" addresses the value at profile.age inside the
// row stored under "user". In normal keys mode the whole key is the row key.
// Only objects (map[string]any) are traversed; arrays are never created and
// never indexed.
package path

import "strings"

// Separator splits a dotted key into its segments
const Separator = "."

// Resolve splits key into the root key and the path inside the root value.
// With normalKeys the whole key is the root and the path is empty.
func Resolve(key string, normalKeys bool) (root string, segments []string) {
	if normalKeys {
		return key, nil
	}
	parts := strings.Split(key, Separator)
	return parts[0], parts[1:]
}

// Read returns the value at segments inside obj. ok is false when an
// intermediate value is missing or not an object. Empty segments address obj itself.
func Read(obj any, segments []string) (v any, ok bool) {
	cur := obj
	for _, seg := range segments {
		m, isMap := cur.(map[string]any)
		if !isMap {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Write returns obj with v stored at segments. Missing or non-object
// intermediates are replaced by empty objects, a non-object obj is treated as
// an empty object. Objects along the path are copied, obj itself is not modified.
// Empty segments replace obj by v.
func Write(obj any, segments []string, v any) any {
	if len(segments) == 0 {
		return v
	}
	src, _ := obj.(map[string]any)
	out := make(map[string]any, len(src)+1)
	for k, item := range src {
		out[k] = item
	}
	out[segments[0]] = Write(src[segments[0]], segments[1:], v)
	return out
}

// Delete returns obj without the value at segments. If an intermediate is
// missing the result equals obj. Objects along the path are copied. Empty
// segments delete obj itself, the result is nil.
func Delete(obj any, segments []string) any {
	if len(segments) == 0 {
		return nil
	}
	src, isMap := obj.(map[string]any)
	if !isMap {
		return obj
	}
	child, exists := src[segments[0]]
	if !exists {
		return obj
	}
	if len(segments) > 1 {
		if _, childIsMap := child.(map[string]any); !childIsMap {
			return obj
		}
	}

	out := make(map[string]any, len(src))
	for k, item := range src {
		out[k] = item
	}
	if len(segments) == 1 {
		delete(out, segments[0])
	} else {
		out[segments[0]] = Delete(child, segments[1:])
	}
	return out
}
