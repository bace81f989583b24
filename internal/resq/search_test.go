package resq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func styledTree() *Node {
	button := element("button")
	buttonNode := named("styled__Button", obj("testProp", "some prop"), nil, nil,
		named("button", nil, nil, button),
	)
	buttonNode.Identity = Identity{Kind: IdentityDescriptor, Descriptor: &Descriptor{
		DisplayName:       "styled__Button",
		StyledComponentID: "styled__Button-sc-1fuu6r1-1",
	}}

	divNode := named("styled__Div", obj("testProp", "another prop"), nil, nil,
		named("wrapper", nil, nil, nil,
			named("div", nil, nil, element("div"),
				named("MyButton", obj("someProp", "some prop value"), nil, element("button")),
			),
		),
	)
	divNode.Identity = Identity{Kind: IdentityDescriptor, Descriptor: &Descriptor{
		DisplayName:       "styled__Div",
		StyledComponentID: "styled__Div-sc-1fuu6r1-1",
	}}

	return anonymous(
		named("TestWrapper", obj("myProps", "test prop"), obj("initialized", true), element("div"),
			buttonNode,
			divNode,
		),
	)
}

func wildcardTree() *Node {
	return anonymous(
		named("TestWrapper", nil, nil, element("div"),
			named("TestName", obj("testProp", "some prop"), nil, element("span")),
			named("TestName-2", obj("testProp", "some prop 1"), nil, element("span")),
			named("NameTest", obj("testProp", "some prop 2"), obj("testState", true), element("span")),
			named("Nested", obj("testProp", "some prop 3"), nil, element("div"),
				named("div", obj("testProp", "some prop 4"), nil, element("div")),
			),
		),
	)
}

func TestFindInTree(t *testing.T) {
	tree := BuildTree(testVDOM())

	spans := FindInTree([]*Node{tree}, func(n *Node) bool { return n.Name() == "span" })
	assert.Len(t, spans, 2)

	none := FindInTree([]*Node{tree}, func(n *Node) bool { return false })
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestFindInTreeSkipsRoots(t *testing.T) {
	tree := BuildTree(testVDOM())

	all := FindInTree([]*Node{tree}, func(*Node) bool { return true })

	assert.Len(t, all, 6)
	assert.NotContains(t, all, tree)
}

func TestFindInTreeIterationCap(t *testing.T) {
	root := anonymous()
	cur := root
	for i := 0; i < MaxSearchIterations+500; i++ {
		next := anonymous()
		cur.Children = []*Node{next}
		cur = next
	}

	start := time.Now()
	found := FindInTree([]*Node{root}, func(*Node) bool { return true })

	assert.Len(t, found, MaxSearchIterations)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFindInTreeDeepChainOutputs(t *testing.T) {
	depth := 20000
	if testing.Short() {
		depth = 5000
	}
	leaf := element("span")
	root := anonymous()
	chain := []*Node{}
	cur := root
	for i := 0; i < depth; i++ {
		next := anonymous()
		cur.Children = []*Node{next}
		chain = append(chain, next)
		cur = next
	}
	cur.Children = []*Node{named("span", nil, nil, leaf)}

	start := time.Now()
	found := FindInTree([]*Node{root}, func(n *Node) bool { return n.Output == nil })

	require.Len(t, found, depth)
	assert.Less(t, time.Since(start), 2*time.Second)
	for i, n := range chain {
		if !assert.Same(t, leaf, n.Output, "node %d", i) {
			break
		}
	}
}

func TestFindInTreePrefersShallowestHandle(t *testing.T) {
	deep := element("deep")
	shallow := element("shallow")
	later := element("later")
	target := named("Target", nil, nil, nil,
		named("Wrapper", nil, nil, nil, named("deep", nil, nil, deep)),
		named("shallow", nil, nil, shallow),
		named("later", nil, nil, later),
	)

	found := FindInTree([]*Node{anonymous(target)}, func(n *Node) bool { return n.Name() == "Target" })

	require.Len(t, found, 1)
	assert.Same(t, shallow, found[0].Output)
}

func TestFindInTreeSelfReferencingChild(t *testing.T) {
	h := element("div")
	other := element("div")
	a := named("A", nil, nil, nil, named("Inner", nil, nil, nil, named("div", nil, nil, h)))
	a.Children = append(a.Children, a)
	b := named("B", nil, nil, nil, named("div", nil, nil, other))

	found := FindInTree([]*Node{anonymous(a, b)}, func(n *Node) bool { return n.Name() != "div" })

	require.Equal(t, []string{"A", "B", "Inner"}, names(found))
	assert.Same(t, h, found[0].Output)
	assert.Same(t, other, found[1].Output)
	assert.Same(t, h, found[2].Output)
}

func TestFindInTreeFillsOutputFromDescendants(t *testing.T) {
	tree := styledTree()

	found := FindSelectorInTree([]string{"styled__Div"}, tree, nil)

	require.Len(t, found, 1)
	h, ok := found[0].Output.(*Handle)
	require.True(t, ok, "output is taken from the nearest descendant host node")
	assert.Equal(t, "div", h.Tag)
}

func TestFindSelectorInTree(t *testing.T) {
	tests := []struct {
		name      string
		tree      func() *Node
		selectors []string
		want      []string
	}{
		{
			name:      "nested selectors",
			tree:      func() *Node { return BuildTree(testVDOM()) },
			selectors: []string{"TestWrapper", "span"},
			want:      []string{"span", "span"},
		},
		{
			name:      "divs below wrapper",
			tree:      func() *Node { return BuildTree(testVDOM()) },
			selectors: []string{"TestWrapper", "div"},
			want:      []string{"div", "div"},
		},
		{
			name:      "styled component",
			tree:      styledTree,
			selectors: []string{"TestWrapper", "styled__Button"},
			want:      []string{"styled__Button"},
		},
		{
			name:      "missing component",
			tree:      styledTree,
			selectors: []string{"AnyComponentDoesnotExist"},
			want:      []string{},
		},
		{
			name:      "wildcard",
			tree:      wildcardTree,
			selectors: []string{"TestWrapper", "Test*"},
			want:      []string{"TestName", "TestName-2"},
		},
		{
			name:      "star finds every descendant",
			tree:      wildcardTree,
			selectors: []string{"TestWrapper", "*"},
			want:      []string{"TestName", "TestName-2", "NameTest", "Nested", "div"},
		},
		{
			name:      "empty middle stage",
			tree:      func() *Node { return BuildTree(testVDOM()) },
			selectors: []string{"Missing", "span"},
			want:      []string{},
		},
		{
			name:      "no selectors",
			tree:      func() *Node { return BuildTree(testVDOM()) },
			selectors: nil,
			want:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindSelectorInTree(tt.selectors, tt.tree(), nil)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestFindSelectorInTreeFlatStar(t *testing.T) {
	children := []*Node{
		named("A", nil, nil, nil),
		named("B", nil, nil, nil),
		named("C", nil, nil, nil),
		named("D", nil, nil, nil),
		named("E", nil, nil, nil),
	}

	got := FindSelectorInTree([]string{"*"}, anonymous(children...), nil)

	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, names(got))
}

func TestFindSelectorInTreeCustomMatch(t *testing.T) {
	tree := BuildTree(testVDOM())

	got := FindSelectorInTree([]string{"TestWrapper"}, tree, func(n *Node) bool {
		return n.Name() == "span"
	})

	assert.Equal(t, []string{"span", "span"}, names(got))
}

func TestFindSelectorInTreeCustomMatchOnlyLastStage(t *testing.T) {
	tree := BuildTree(testVDOM())

	got := FindSelectorInTree([]string{"TestWrapper", "nothing"}, tree, func(n *Node) bool {
		return n.Name() == "div"
	})

	assert.Equal(t, []string{"div", "div"}, names(got))
}
