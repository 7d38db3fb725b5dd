package expr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapSource is a test Source backed by nested maps.
type mapSource map[string]any

func (m mapSource) Lookup(path []string) (any, error) {
	var cur any = map[string]any(m)
	for _, seg := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot descend with %q", seg)
		}
		cur, ok = node[seg]
		if !ok {
			return nil, fmt.Errorf("missing %q", seg)
		}
	}
	return cur, nil
}

func TestResolve_WholeTokenPreservesType(t *testing.T) {
	src := mapSource{"fetch": map[string]any{"count": 42, "items": []any{1, 2}}}

	val, err := Resolve("{{fetch.count}}", src)
	require.NoError(t, err)
	assert.Equal(t, 42, val)

	val, err = Resolve("{{ fetch.items }}", src)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, val)
}

func TestResolve_EmbeddedTokensStringify(t *testing.T) {
	src := mapSource{
		"user": map[string]any{"name": "ada", "tags": []any{"a", "b"}},
	}

	val, err := Resolve("hello {{user.name}}, tags={{user.tags}}", src)
	require.NoError(t, err)
	assert.Equal(t, `hello ada, tags=["a","b"]`, val)
}

func TestResolve_NestedStructures(t *testing.T) {
	src := mapSource{"start": map[string]any{"x": 10}}
	input := map[string]any{
		"url":  "https://api.test/items/{{start.x}}",
		"body": map[string]any{"value": "{{start.x}}"},
		"list": []any{"{{start.x}}", "literal"},
	}

	out, err := Resolve(input, src)
	require.NoError(t, err)
	resolved := out.(map[string]any)
	assert.Equal(t, "https://api.test/items/10", resolved["url"])
	assert.Equal(t, 10, resolved["body"].(map[string]any)["value"])
	assert.Equal(t, []any{10, "literal"}, resolved["list"])
}

func TestResolve_UnresolvedReferenceIsHardError(t *testing.T) {
	_, err := Resolve("{{missing.field}}", mapSource{})
	require.Error(t, err)

	var unres *UnresolvedReferenceError
	require.ErrorAs(t, err, &unres)
	assert.Equal(t, "missing.field", unres.Reference)
}

func TestResolve_Idempotent(t *testing.T) {
	src := mapSource{"a": map[string]any{"b": "value"}}
	input := map[string]any{"field": "prefix {{a.b}} suffix"}

	first, err := Resolve(input, src)
	require.NoError(t, err)
	second, err := Resolve(input, src)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_NullRendersInStrings(t *testing.T) {
	src := mapSource{"a": map[string]any{"b": nil}}
	val, err := Resolve("got: {{a.b}}", src)
	require.NoError(t, err)
	assert.Equal(t, "got: null", val)
}

func TestHasTemplates(t *testing.T) {
	assert.True(t, HasTemplates("{{a.b}}"))
	assert.True(t, HasTemplates(map[string]any{"k": []any{"x", "{{y}}"}}))
	assert.False(t, HasTemplates("plain"))
	assert.False(t, HasTemplates(map[string]any{"k": 1}))
}
