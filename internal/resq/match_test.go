package resq

import (
	"bytes"
	"log"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchArray(t *testing.T) {
	tests := []struct {
		name      string
		matcher   any
		candidate any
		exact     bool
		want      bool
	}{
		{name: "matcher not a list", matcher: 1, candidate: []any{2}, want: false},
		{name: "candidate not a list", matcher: []any{1}, candidate: 2, want: false},
		{name: "partial overlap", matcher: []any{"a"}, candidate: []any{"a", "b"}, want: true},
		{name: "partial single", matcher: []any{5}, candidate: []any{1, 2, 3, 4, 5}, want: true},
		{name: "partial none", matcher: []any{9}, candidate: []any{1, 2}, want: false},
		{name: "exact equal", matcher: []any{1, 2, 3}, candidate: []any{1, 2, 3}, exact: true, want: true},
		{name: "exact differs", matcher: []any{1, 2, 3}, candidate: []any{1, 2, 4}, exact: true, want: false},
		{name: "exact order ignored", matcher: []any{3, 2, 1}, candidate: []any{1, 2, 3}, exact: true, want: true},
		{name: "exact length differs", matcher: []any{1, 2}, candidate: []any{1, 2, 3}, exact: true, want: false},
		{name: "exact duplicates not counted", matcher: []any{1, 1}, candidate: []any{1, 2}, exact: true, want: true},
		{name: "NaN is included", matcher: []any{math.NaN()}, candidate: []any{math.NaN()}, want: true},
		{name: "objects compare by identity", matcher: []any{map[string]any{"a": 1}}, candidate: []any{map[string]any{"a": 1}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchArray(ValueOf(tt.matcher), ValueOf(tt.candidate), tt.exact))
		})
	}
}

func TestMatchObject(t *testing.T) {
	tests := []struct {
		name      string
		matcher   *Map
		candidate *Map
		exact     bool
		want      bool
	}{
		{name: "different value", matcher: obj("bar", true), candidate: obj("bar", false), want: false},
		{name: "empty candidate", matcher: obj("a", 1), candidate: obj(), want: false},
		{name: "empty matcher", matcher: obj(), candidate: obj("a", 1), want: true},
		{name: "empty matcher nil candidate", matcher: obj(), candidate: nil, want: true},
		{name: "nil candidate", matcher: obj("bar", true), candidate: nil, want: false},
		{name: "same value", matcher: obj("bar", true), candidate: obj("bar", true), want: true},
		{name: "subset", matcher: obj("a", 1), candidate: obj("a", 1, "b", 2), want: true},
		{name: "matcher key absent from candidate", matcher: obj("a", 1, "z", 2), candidate: obj("a", 1), want: true},
		{name: "no shared keys", matcher: obj("z", 1), candidate: obj("a", 1), want: false},
		{name: "one shared key fails", matcher: obj("a", 1, "b", 3), candidate: obj("a", 1, "b", 2), want: false},
		{name: "array value overlap", matcher: obj("tags", []any{"x"}), candidate: obj("tags", []any{"x", "y"}), want: true},
		{name: "nested partial", matcher: obj("foo", map[string]any{"bar": 1}), candidate: obj("foo", map[string]any{"bar": 1, "baz": 2}), want: true},
		{
			name:      "deep mismatch",
			matcher:   obj("foo", map[string]any{"bar": map[string]any{"deep": true}}),
			candidate: obj("foo", map[string]any{"bar": map[string]any{"deep": false}}),
			want:      false,
		},
		{
			name:      "deep match",
			matcher:   obj("foo", map[string]any{"bar": map[string]any{"deep": true}}),
			candidate: obj("foo", map[string]any{"bar": map[string]any{"deep": true}}),
			want:      true,
		},
		{name: "nested map against scalar", matcher: obj("foo", map[string]any{"a": 1}), candidate: obj("foo", 1), want: false},
		{name: "undefined on both sides", matcher: obj("a", Undefined), candidate: obj("a", Undefined), want: false},
		{name: "exact equal", matcher: obj("a", 1, "b", []any{1}), candidate: obj("b", []any{1}, "a", 1), exact: true, want: true},
		{name: "exact extra key", matcher: obj("a", 1), candidate: obj("a", 1, "b", 2), exact: true, want: false},
		{
			name:      "exact nested",
			matcher:   obj("foo", map[string]any{"bar": 1}),
			candidate: obj("foo", map[string]any{"bar": 1, "baz": 2}),
			exact:     true,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchObject(tt.matcher, tt.candidate, tt.exact))
		})
	}
}

func TestMatchObjectCycles(t *testing.T) {
	self := obj("name", "loop")
	self.Set("self", self)

	t.Run("cyclic candidate", func(t *testing.T) {
		matcher := obj("self", map[string]any{"self": map[string]any{"name": "loop"}})
		assert.False(t, MatchObject(matcher, self, false))
	})

	t.Run("shallow match on cyclic candidate", func(t *testing.T) {
		assert.True(t, MatchObject(obj("name", "loop"), self, false))
	})

	t.Run("exact on two cycles", func(t *testing.T) {
		other := obj("name", "loop")
		other.Set("self", other)
		assert.False(t, MatchObject(self, other, true))
	})

	t.Run("exact on itself", func(t *testing.T) {
		assert.True(t, MatchObject(self, self, true))
	})

	t.Run("cyclic values from Go maps", func(t *testing.T) {
		m := map[string]any{"name": "loop"}
		m["self"] = m
		v, ok := ValueOf(m).(*Map)
		require.True(t, ok)
		assert.False(t, MatchObject(obj("self", map[string]any{"self": map[string]any{"self": map[string]any{}}}), v, false))
	})
}

func TestFilterBy(t *testing.T) {
	tree := BuildTree(testVDOM())
	wrapper := FindSelectorInTree([]string{"TestWrapper"}, tree, nil)
	divs := FindSelectorInTree([]string{"TestWrapper", "div"}, tree, nil)

	t.Run("partial props", func(t *testing.T) {
		got := FilterBy(wrapper, FieldProps, map[string]any{"myProps": "test prop"}, false)
		require.Len(t, got, 1)
		assert.Equal(t, "TestWrapper", got[0].Name())
	})

	t.Run("exact state", func(t *testing.T) {
		got := FilterBy(divs, FieldState, map[string]any{"testState": true, "otherState": "foo"}, true)
		require.Len(t, got, 1)
		assert.Equal(t, map[string]any{"testState": true, "otherState": "foo"}, Export(got[0].State))
	})

	t.Run("exact state rejects subset", func(t *testing.T) {
		got := FilterBy(divs, FieldState, map[string]any{"testState": true}, true)
		assert.Empty(t, got)
	})

	t.Run("empty matcher keeps everything", func(t *testing.T) {
		got := FilterBy(divs, FieldState, map[string]any{}, false)
		assert.Equal(t, divs, got)
	})
}

func TestFilterByMatcherSharingBackingArray(t *testing.T) {
	backing := []any{1, 2, 3}
	nodes := []*Node{
		named("div", obj("a", []any{1}, "b", []any{1, 2, 3}), nil, element("div")),
		named("div", obj("a", []any{1}, "b", []any{1}), nil, element("div")),
	}

	got := FilterBy(nodes, FieldProps, map[string]any{"a": backing[:1], "b": backing}, true)

	require.Len(t, got, 1)
	assert.Same(t, nodes[0], got[0])
}

func TestFilterByNonObjectState(t *testing.T) {
	nodes := []*Node{
		named("div", nil, obj(), element("div")),
		named("div", obj("testProp", "some prop"), String("some state"), element("div")),
		named("div", obj("testProp", "some prop"), Bool(true), element("div")),
		named("div", nil, ValueOf([]any{1, 2, 3}), element("div")),
		named("div", nil, ValueOf([]any{1, 2, 3, 4, 5}), element("div")),
		named("div", nil, Number(123), element("div")),
	}

	tests := []struct {
		name    string
		matcher any
		want    int
	}{
		{name: "list", matcher: []int{1, 2, 3}, want: 2},
		{name: "number", matcher: 123, want: 1},
		{name: "string", matcher: "some state", want: 1},
		{name: "bool", matcher: true, want: 1},
		{name: "nil", matcher: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, FilterBy(nodes, FieldState, tt.matcher, false), tt.want)
		})
	}
}

func TestFilterByFunctionMatcher(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	nodes := []*Node{named("div", nil, obj("a", 1), nil)}

	got := FilterBy(nodes, FieldState, func() {}, false)

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Contains(t, buf.String(), "functions are not supported")
}
