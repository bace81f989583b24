package resq

import "encoding/json"

const (
	// DefaultMaxDepth bounds how deep BuildTree recurses.
	DefaultMaxDepth = 1000
	// MaxSiblings bounds how many siblings are followed after a first child.
	MaxSiblings = 10000
)

// Node is one node of a normalized tree. Children form a finite, acyclic tree.
type Node struct {
	Identity   Identity
	Output     Output
	IsFragment bool
	State      Value
	Props      Value
	Children   []*Node
}

// Name returns the name selectors compare against.
func (n *Node) Name() string {
	if n == nil {
		return ""
	}
	return n.Identity.Selectable()
}

// Handles returns the node's rendered output as a flat list.
func (n *Node) Handles() []*Handle {
	if n == nil {
		return nil
	}
	switch out := n.Output.(type) {
	case *Handle:
		if out == nil {
			return nil
		}
		return []*Handle{out}
	case HandleList:
		return out
	default:
		return nil
	}
}

func (n *Node) MarshalJSON() ([]byte, error) {
	var output any
	switch out := n.Output.(type) {
	case *Handle:
		output = out
	case HandleList:
		output = out
	}
	return json.Marshal(struct {
		Name       Identity `json:"name"`
		Node       any      `json:"node"`
		IsFragment bool     `json:"isFragment"`
		State      any      `json:"state"`
		Props      any      `json:"props"`
		Children   []*Node  `json:"children"`
	}{
		Name:       n.Identity,
		Node:       output,
		IsFragment: n.IsFragment,
		State:      Export(n.State),
		Props:      Export(n.Props),
		Children:   n.Children,
	})
}

// emptyNode is the sentinel returned for absent, revisited or too-deep fibers.
func emptyNode() *Node {
	return &Node{
		Props:    NewMap(),
		State:    Undefined,
		Children: []*Node{},
	}
}

// Option configures tree construction and queries.
type Option func(*options)

type options struct {
	maxDepth int
}

func defaultOptions() options {
	return options{maxDepth: DefaultMaxDepth}
}

// WithMaxDepth bounds normalization recursion. A depth of zero or less yields
// an empty tree.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// BuildTree walks the fiber graph rooted at root and returns an owned,
// acyclic snapshot of it. It never fails: cycles, excess depth and excess
// siblings are cut off with empty sentinel nodes or by truncation.
func BuildTree(root *Fiber, opts ...Option) *Node {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return buildNode(root, o.maxDepth, map[*Fiber]struct{}{})
}

func buildNode(f *Fiber, depth int, visited map[*Fiber]struct{}) *Node {
	if f == nil || depth <= 0 {
		return emptyNode()
	}
	if _, ok := visited[f]; ok {
		return emptyNode()
	}
	visited[f] = struct{}{}

	node := &Node{
		Identity: resolveIdentity(f),
		Props:    normalizeProps(f.MemoizedProps),
		State:    normalizeState(f.MemoizedState),
	}

	chain := childChain(f.Child, visited)
	node.Children = make([]*Node, 0, len(chain))
	for _, c := range chain {
		node.Children = append(node.Children, buildNode(c, depth-1, visited))
	}

	if node.Identity.fromFunction && len(node.Children) > 1 {
		node.IsFragment = true
		list := HandleList{}
		for _, c := range node.Children {
			if h, ok := c.Output.(*Handle); ok && h != nil {
				list = append(list, h)
			}
		}
		node.Output = list
	} else {
		node.Output = hostOutput(f)
	}
	return node
}

// childChain collects first and its siblings. A sibling that was already
// built, or that already appeared earlier in this chain, ends the chain.
func childChain(first *Fiber, visited map[*Fiber]struct{}) []*Fiber {
	if first == nil {
		return nil
	}
	var chain []*Fiber
	inChain := map[*Fiber]struct{}{first: {}}
	if _, ok := visited[first]; !ok {
		chain = append(chain, first)
	}
	cur := first
	for i := 0; cur.Sibling != nil && i < MaxSiblings; i++ {
		next := cur.Sibling
		if _, ok := visited[next]; ok {
			break
		}
		if _, ok := inChain[next]; ok {
			break
		}
		inChain[next] = struct{}{}
		chain = append(chain, next)
		cur = next
	}
	return chain
}

// hostOutput returns the fiber's own host node, or its first child's.
func hostOutput(f *Fiber) Output {
	if f.StateNode.IsPlatform() {
		return f.StateNode
	}
	if f.Child != nil && f.Child.StateNode.IsPlatform() {
		return f.Child.StateNode
	}
	return nil
}

func normalizeProps(v Value) Value {
	if !truthy(v) {
		return NewMap()
	}
	switch x := v.(type) {
	case *Map:
		return x.without("children")
	default:
		return v
	}
}

func normalizeState(v Value) Value {
	if !truthy(v) {
		return Undefined
	}
	if m, ok := v.(*Map); ok {
		if base, ok := m.Get("baseState"); ok && base.Kind() != KindUndefined {
			return base
		}
	}
	return v
}
