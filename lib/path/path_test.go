package path

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		key        string
		normalKeys bool
		root       string
		segments   []string
	}{
		{"user", false, "user", []string{}},
		{"user.profile.age", false, "user", []string{"profile", "age"}},
		{"user.profile.age", true, "user.profile.age", nil},
		{"a..b", false, "a", []string{"", "b"}},
		{"", false, "", []string{}},
	}
	for _, tt := range tests {
		root, segments := Resolve(tt.key, tt.normalKeys)
		assert.Equal(t, tt.root, root, tt.key)
		assert.Equal(t, tt.segments, segments, tt.key)
	}
}

func TestRead(t *testing.T) {
	obj := map[string]any{
		"profile": map[string]any{"age": 30.0, "tags": []any{"x"}},
		"name":    "bob",
		"nothing": nil,
	}

	v, ok := Read(obj, []string{"profile", "age"})
	assert.True(t, ok)
	assert.Equal(t, 30.0, v)

	v, ok = Read(obj, nil)
	assert.True(t, ok)
	assert.Equal(t, obj, v)

	v, ok = Read(obj, []string{"nothing"})
	assert.True(t, ok)
	assert.Nil(t, v)

	for _, segments := range [][]string{
		{"missing"},
		{"missing", "deeper"},
		{"name", "length"},          // string is not traversable
		{"profile", "tags", "0"},    // arrays are not indexed
		{"profile", "age", "value"}, // number is not traversable
	} {
		_, ok := Read(obj, segments)
		assert.False(t, ok, "%v", segments)
	}

	_, ok = Read("scalar", []string{"a"})
	assert.False(t, ok)
}

func TestWrite(t *testing.T) {
	obj := map[string]any{"a": map[string]any{"b": 1.0}, "keep": true}

	out := Write(obj, []string{"a", "c"}, 2.0)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1.0, "c": 2.0}, "keep": true}, out)
	// input untouched
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1.0}, "keep": true}, obj)

	// intermediates are created as objects
	out = Write(map[string]any{}, []string{"x", "y", "z"}, "v")
	assert.Equal(t, map[string]any{"x": map[string]any{"y": map[string]any{"z": "v"}}}, out)

	// non-object intermediates and roots are replaced
	out = Write(map[string]any{"x": 5.0}, []string{"x", "y"}, "v")
	assert.Equal(t, map[string]any{"x": map[string]any{"y": "v"}}, out)
	out = Write("scalar", []string{"y"}, "v")
	assert.Equal(t, map[string]any{"y": "v"}, out)
	out = Write(nil, []string{"y"}, "v")
	assert.Equal(t, map[string]any{"y": "v"}, out)

	// empty path replaces the whole value
	assert.Equal(t, "v", Write(obj, nil, "v"))
}

func TestDelete(t *testing.T) {
	obj := map[string]any{"a": map[string]any{"b": 1.0, "c": 2.0}, "d": 3.0}

	out := Delete(obj, []string{"a", "b"})
	assert.Equal(t, map[string]any{"a": map[string]any{"c": 2.0}, "d": 3.0}, out)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1.0, "c": 2.0}, "d": 3.0}, obj)

	out = Delete(obj, []string{"d"})
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1.0, "c": 2.0}}, out)

	// emptied objects stay
	out = Delete(map[string]any{"a": map[string]any{"b": 1.0}}, []string{"a", "b"})
	assert.Equal(t, map[string]any{"a": map[string]any{}}, out)

	// missing intermediates are a no-op
	assert.Equal(t, obj, Delete(obj, []string{"x", "y"}))
	assert.Equal(t, obj, Delete(obj, []string{"d", "y"}))
	assert.Equal(t, "scalar", Delete("scalar", []string{"y"}))

	assert.Nil(t, Delete(obj, nil))
}
