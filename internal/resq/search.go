package resq

// MaxSearchIterations bounds the number of dequeues in one breadth-first scan.
const MaxSearchIterations = 100000

// MatchFunc decides whether a node belongs in a search result.
type MatchFunc func(*Node) bool

// FindInTree scans breadth-first below roots and returns every descendant
// match accepts, in visiting order. Roots themselves are never tested. The
// scan stops after MaxSearchIterations dequeues and returns what it has.
// A match with no output takes the nearest host handle below it.
func FindInTree(roots []*Node, match MatchFunc) []*Node {
	results := []*Node{}
	queue := make([]*Node, 0, len(roots))
	queue = append(queue, roots...)
	visited := map[*Node]struct{}{}
	handles := handleIndex{}

	for head, iterations := 0, 0; head < len(queue) && iterations < MaxSearchIterations; iterations++ {
		n := queue[head]
		queue[head] = nil
		head++
		if n == nil {
			continue
		}
		if _, ok := visited[n]; ok {
			continue
		}
		visited[n] = struct{}{}

		for _, child := range n.Children {
			if child == nil {
				continue
			}
			if _, ok := visited[child]; ok {
				continue
			}
			if match(child) {
				if child.Output == nil {
					child.Output = handles.first(child.Children)
				}
				results = append(results, child)
			}
			queue = append(queue, child)
		}
	}
	return results
}

// handleHit is the shallowest handle in a subtree and its depth below the
// subtree root.
type handleHit struct {
	handle *Handle
	depth  int
}

// handleIndex memoizes the shallowest handle of every subtree it has walked,
// so repeated lookups over one tree cost a single pass.
type handleIndex map[*Node]handleHit

// first returns the handle a breadth-first walk of nodes and their
// descendants would reach first, or nil.
func (ix handleIndex) first(nodes []*Node) Output {
	for _, n := range nodes {
		if n != nil {
			ix.resolve(n)
		}
	}
	if hit := ix.shallowest(nodes, 0); hit.handle != nil {
		return hit.handle
	}
	return nil
}

// resolve fills ix for root and everything below it with an iterative
// post-order walk. A node reached again while still open counts as having
// no handle.
func (ix handleIndex) resolve(root *Node) {
	if _, ok := ix[root]; ok {
		return
	}
	open := map[*Node]struct{}{}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		if _, done := ix[n]; done {
			stack = stack[:len(stack)-1]
			continue
		}
		if h, ok := n.Output.(*Handle); ok && h != nil {
			ix[n] = handleHit{handle: h}
			stack = stack[:len(stack)-1]
			continue
		}
		if _, ok := open[n]; !ok {
			open[n] = struct{}{}
			for i := len(n.Children) - 1; i >= 0; i-- {
				c := n.Children[i]
				if c == nil {
					continue
				}
				if _, busy := open[c]; busy {
					continue
				}
				if _, done := ix[c]; !done {
					stack = append(stack, c)
				}
			}
			continue
		}
		ix[n] = ix.shallowest(n.Children, 1)
		delete(open, n)
		stack = stack[:len(stack)-1]
	}
}

// shallowest picks the resolved hit with the least depth among nodes; ties go
// to the earlier node, matching breadth-first order.
func (ix handleIndex) shallowest(nodes []*Node, offset int) handleHit {
	var best handleHit
	for _, n := range nodes {
		hit, ok := ix[n]
		if !ok || hit.handle == nil {
			continue
		}
		if best.handle == nil || hit.depth+offset < best.depth {
			best = handleHit{handle: hit.handle, depth: hit.depth + offset}
		}
	}
	return best
}

// FindSelectorInTree runs the selector chain against tree. Each stage searches
// below the previous stage's results, the first stage below tree. When match
// is non-nil it replaces name matching for the final stage.
func FindSelectorInTree(selectors []string, tree *Node, match MatchFunc) []*Node {
	results := []*Node{}
	if tree == nil {
		return results
	}
	for i, token := range selectors {
		roots := []*Node{tree}
		if i > 0 {
			roots = results
		}
		pred := selectorMatch(CompileSelector(token))
		if match != nil && i == len(selectors)-1 {
			pred = match
		}
		results = FindInTree(roots, pred)
	}
	return results
}

func selectorMatch(s *Selector) MatchFunc {
	return func(n *Node) bool {
		return s.Match(n.Name())
	}
}
