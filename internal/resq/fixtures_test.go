package resq

import (
	"strconv"
	"strings"
)

func fnType(name string) ElementType {
	return ElementType{Kind: TypeFunction, Name: name}
}

func tagType(tag string) ElementType {
	return ElementType{Kind: TypeString, Name: tag}
}

var handleRefs int

func element(tag string) *Handle {
	handleRefs++
	return &Handle{Kind: HandleElement, Tag: tag, Ref: handleRefs}
}

func textNode(text string) *Handle {
	handleRefs++
	return &Handle{Kind: HandleText, Text: text, Ref: handleRefs}
}

// obj builds a *Map from alternating keys and values.
func obj(kv ...any) *Map {
	m := NewMap()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i].(string), ValueOf(kv[i+1]))
	}
	return m
}

// linkSiblings chains fibers as siblings and returns the first.
func linkSiblings(fibers ...*Fiber) *Fiber {
	for i := 0; i+1 < len(fibers); i++ {
		fibers[i].Sibling = fibers[i+1]
	}
	if len(fibers) == 0 {
		return nil
	}
	return fibers[0]
}

// testVDOM mirrors a small rendered app:
//
//	TestWrapper > div > [span, span, div, "Foo bar"]
func testVDOM() *Fiber {
	inner := linkSiblings(
		&Fiber{
			Type:          tagType("span"),
			MemoizedProps: obj("testProp", "some prop"),
			MemoizedState: obj(),
			StateNode:     element("span"),
		},
		&Fiber{
			Type:          tagType("span"),
			MemoizedProps: obj("testProp", "some prop", "children", []any{map[string]any{}}),
			MemoizedState: obj("testState", true),
			StateNode:     element("span"),
		},
		&Fiber{
			Type:          tagType("div"),
			MemoizedProps: obj(),
			MemoizedState: obj("testState", true, "otherState", "foo"),
			StateNode:     element("div"),
		},
		&Fiber{
			MemoizedProps:   String("Foo bar"),
			MemoizedState:   obj("testState", true),
			StateNode:       textNode("Foo bar"),
			ConstructorName: "Object",
		},
	)
	div := &Fiber{
		Type:          tagType("div"),
		MemoizedProps: obj(),
		MemoizedState: obj(),
		StateNode:     element("div"),
		Child:         inner,
	}
	wrapper := &Fiber{
		Type:          fnType("TestWrapper"),
		MemoizedProps: obj("myProps", "test prop"),
		MemoizedState: obj("baseState", map[string]any{"initialized": true}),
		Child:         div,
	}
	return &Fiber{Child: wrapper, MemoizedProps: Null, MemoizedState: Null}
}

// fragmentVDOM renders FragmentComponent with several root children, one of
// which is itself a fragment.
func fragmentVDOM() *Fiber {
	nested := &Fiber{
		Type: fnType("NestedFragmentComponent"),
		Child: linkSiblings(
			&Fiber{Type: tagType("div"), MemoizedProps: obj(), MemoizedState: obj(), StateNode: element("div")},
			&Fiber{Type: tagType("div"), MemoizedProps: obj(), MemoizedState: obj(), StateNode: element("div")},
		),
	}
	children := linkSiblings(
		&Fiber{Type: tagType("div"), MemoizedProps: obj(), MemoizedState: obj(), StateNode: element("div")},
		&Fiber{Type: tagType("span"), MemoizedProps: obj("testProp", "some prop"), MemoizedState: obj(), StateNode: element("span")},
		&Fiber{Type: tagType("span"), MemoizedProps: obj("testProp", "some prop", "children", []any{map[string]any{}}), MemoizedState: obj("testState", true), StateNode: element("span")},
		&Fiber{MemoizedProps: obj(), MemoizedState: obj(), StateNode: textNode("text")},
		nested,
	)
	return &Fiber{Child: &Fiber{Type: fnType("FragmentComponent"), Child: children}}
}

func deepFiber(depth int) *Fiber {
	cur := &Fiber{Type: tagType("leaf"), MemoizedProps: obj()}
	for i := 0; i < depth; i++ {
		cur = &Fiber{Type: tagType("level-" + strconv.Itoa(i)), Child: cur, MemoizedProps: obj()}
	}
	return cur
}

// named builds a normalized node directly.
func named(name string, props, state Value, out Output, children ...*Node) *Node {
	if props == nil {
		props = NewMap()
	}
	if state == nil {
		state = NewMap()
	}
	if children == nil {
		children = []*Node{}
	}
	return &Node{
		Identity: Identity{Kind: IdentityComponent, Name: name},
		Props:    props,
		State:    state,
		Output:   out,
		Children: children,
	}
}

func anonymous(children ...*Node) *Node {
	return &Node{Props: NewMap(), State: NewMap(), Children: children}
}

// outline renders the shape of a normalized tree for comparisons.
func outline(n *Node) string {
	var b strings.Builder
	var walk func(*Node, int)
	walk = func(n *Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		name := n.Name()
		if name == "" {
			name = "<none>"
		}
		b.WriteString(name)
		b.WriteString("\n")
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(n, 0)
	return b.String()
}

func names(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name())
	}
	return out
}
