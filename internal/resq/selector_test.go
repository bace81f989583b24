package resq

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchSelector(t *testing.T) {
	tests := []struct {
		selector string
		name     string
		match    bool
	}{
		{selector: "simpleNodeName", name: "simpleNodeName", match: true},
		{selector: "simpleNode", name: "simpleNodeName", match: false},
		{selector: "simpleWildcardNode*", name: "simpleWildcardNodeName", match: true},
		{selector: "simple*Node*", name: "simpleWildcardNodeName", match: true},
		{selector: "*Node*", name: "simpleWildcardNodeName", match: true},
		{selector: "special_characters", name: "node_with(special_characters)", match: true},
		{selector: "*", name: "anyNode", match: true},
		{selector: "*", name: "", match: true},
		{selector: "div", name: "", match: false},
		{selector: "My*", name: "MyComponent", match: true},
		{selector: "My*", name: "MyOtherThing", match: true},
		{selector: "My*", name: "NotMyComponent", match: false},
		{selector: "My*", name: "My", match: false},
		{selector: "**", name: "a", match: false},
		{selector: "**", name: "ab", match: true},
		{selector: "Foo", name: "withRouter(Foo)", match: true},
		{selector: "Foo", name: "withRouter(connect(Foo))", match: true},
		{selector: "withRouter", name: "withRouter(Foo)", match: false},
		{selector: "Foo", name: "broken(", match: false},
		{selector: "Foo", name: "empty()", match: false},
		{selector: "a.b", name: "a.b", match: true},
		{selector: "a.b", name: "axb", match: false},
		{selector: "[x]+", name: "[x]+", match: true},
	}

	for _, tt := range tests {
		verb := "matches"
		if !tt.match {
			verb = "rejects"
		}
		t.Run(fmt.Sprintf("%s %s %q", tt.selector, verb, tt.name), func(t *testing.T) {
			assert.Equal(t, tt.match, MatchSelector(tt.selector, tt.name))
		})
	}
}

func TestCompiledSelectorReuse(t *testing.T) {
	s := CompileSelector("Test*")

	assert.Equal(t, "Test*", s.String())
	assert.True(t, s.Match("TestName"))
	assert.True(t, s.Match("TestName-2"))
	assert.False(t, s.Match("NameTest"))
}

func TestStripHoC(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "MyComponent", want: "MyComponent", wantOK: true},
		{in: "withRouter(MyComponent)", want: "MyComponent", wantOK: true},
		{in: "a(b(c))", want: "c", wantOK: true},
		{in: "", want: "", wantOK: false},
		{in: "open(", want: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := StripHoC(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "TestWrapper span", want: []string{"TestWrapper", "span"}},
		{in: "  TestWrapper   span  ", want: []string{"TestWrapper", "span"}},
		{in: "App\tList", want: []string{"App\tList"}},
		{in: "A \t B", want: []string{"A", "B"}},
		{in: "", want: nil},
		{in: "   ", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSelector(tt.in))
		})
	}
}
