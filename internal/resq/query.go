package resq

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoot means there was no component tree to search.
	ErrNoRoot = errors.New("resq: could not find an instance of React")
	// ErrNotFound means no node matched the selector.
	ErrNotFound = errors.New("resq: no component matches selector")
)

// Query is a selector bound to one normalized snapshot of a fiber graph.
type Query struct {
	selector  string
	selectors []string
	tree      *Node
}

// New normalizes the graph under root and prepares selector against it.
func New(selector string, root *Fiber, opts ...Option) *Query {
	return &Query{
		selector:  selector,
		selectors: ParseSelector(selector),
		tree:      BuildTree(root, opts...),
	}
}

// NewFromTree prepares selector against an already normalized tree.
func NewFromTree(selector string, tree *Node) *Query {
	return &Query{
		selector:  selector,
		selectors: ParseSelector(selector),
		tree:      tree,
	}
}

// Tree returns the snapshot the query runs against.
func (q *Query) Tree() *Node { return q.tree }

// Selectors returns the parsed selector tokens.
func (q *Query) Selectors() []string {
	return append([]string(nil), q.selectors...)
}

// Find returns the first match. The result keeps the full candidate list so
// later filters can pick a different node.
func (q *Query) Find() (*Result, error) {
	nodes := FindSelectorInTree(q.selectors, q.tree, nil)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, q.selector)
	}
	return &Result{node: nodes[0], candidates: nodes}, nil
}

// FindAll returns every match in breadth-first order.
func (q *Query) FindAll() Nodes {
	return Nodes(FindSelectorInTree(q.selectors, q.tree, nil))
}

// FindAllFunc runs the selector chain with match deciding the last stage. With
// an empty selector it returns every descendant of the root match accepts.
func (q *Query) FindAllFunc(match MatchFunc) Nodes {
	if len(q.selectors) == 0 {
		return Nodes(FindInTree([]*Node{q.tree}, match))
	}
	return Nodes(FindSelectorInTree(q.selectors, q.tree, match))
}

// Find returns the first node under root matching selector.
func Find(selector string, root *Fiber, opts ...Option) (*Result, error) {
	if root == nil {
		return nil, ErrNoRoot
	}
	return New(selector, root, opts...).Find()
}

// FindAll returns every node under root matching selector.
func FindAll(selector string, root *Fiber, opts ...Option) (Nodes, error) {
	if root == nil {
		return nil, ErrNoRoot
	}
	return New(selector, root, opts...).FindAll(), nil
}

// FilterOption configures ByProps and ByState.
type FilterOption func(*filterOptions)

type filterOptions struct {
	exact bool
}

// Exact switches a filter between partial and exact matching.
func Exact(exact bool) FilterOption {
	return func(o *filterOptions) {
		o.exact = exact
	}
}

func applyFilterOptions(opts []FilterOption) filterOptions {
	var o filterOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Result is a single query result. A Result with no node stands for "nothing
// matched the last filter" and reports empty props and undefined state.
type Result struct {
	node       *Node
	candidates []*Node
}

// Node returns the matched node, or nil.
func (r *Result) Node() *Node {
	if r == nil {
		return nil
	}
	return r.node
}

// Found reports whether the result holds a node.
func (r *Result) Found() bool {
	return r != nil && r.node != nil
}

// Candidates returns the list the result was drawn from.
func (r *Result) Candidates() Nodes {
	if r == nil {
		return nil
	}
	return append(Nodes(nil), r.candidates...)
}

func (r *Result) Identity() Identity {
	if !r.Found() {
		return Identity{}
	}
	return r.node.Identity
}

func (r *Result) Name() string {
	return r.Identity().Selectable()
}

func (r *Result) Output() Output {
	if !r.Found() {
		return nil
	}
	return r.node.Output
}

func (r *Result) IsFragment() bool {
	return r.Found() && r.node.IsFragment
}

func (r *Result) Props() Value {
	if !r.Found() {
		return NewMap()
	}
	return r.node.Props
}

func (r *Result) State() Value {
	if !r.Found() {
		return Undefined
	}
	return r.node.State
}

func (r *Result) Children() []*Node {
	if !r.Found() {
		return []*Node{}
	}
	return r.node.Children
}

// ByProps returns the first candidate whose props match matcher.
func (r *Result) ByProps(matcher any, opts ...FilterOption) *Result {
	return r.filter(FieldProps, matcher, opts)
}

// ByState returns the first candidate whose state matches matcher.
func (r *Result) ByState(matcher any, opts ...FilterOption) *Result {
	return r.filter(FieldState, matcher, opts)
}

func (r *Result) filter(field Field, matcher any, opts []FilterOption) *Result {
	var candidates []*Node
	if r != nil {
		candidates = r.candidates
	}
	o := applyFilterOptions(opts)
	matched := FilterBy(candidates, field, matcher, o.exact)
	out := &Result{candidates: candidates}
	if len(matched) > 0 {
		out.node = matched[0]
	}
	return out
}

func (r *Result) MarshalJSON() ([]byte, error) {
	if !r.Found() {
		return emptyNode().MarshalJSON()
	}
	return r.node.MarshalJSON()
}

// Nodes is an ordered list of query results.
type Nodes []*Node

// ByProps returns the nodes whose props match matcher.
func (ns Nodes) ByProps(matcher any, opts ...FilterOption) Nodes {
	o := applyFilterOptions(opts)
	return Nodes(FilterBy(ns, FieldProps, matcher, o.exact))
}

// ByState returns the nodes whose state matches matcher.
func (ns Nodes) ByState(matcher any, opts ...FilterOption) Nodes {
	o := applyFilterOptions(opts)
	return Nodes(FilterBy(ns, FieldState, matcher, o.exact))
}
