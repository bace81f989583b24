package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resq-mcp-server/internal/browser"
	"resq-mcp-server/internal/recorder"
	"resq-mcp-server/internal/resq"
)

const (
	defaultMaxResults = 50
	defaultMaxNodes   = 200
	maxHTMLLength     = 500
)

var sessionIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "Session whose page is queried",
}

var rootSelectorProperty = map[string]interface{}{
	"type":        "string",
	"description": "Optional CSS selector of the React container (default: the one found by wait-for-react, else a document scan)",
}

var maxDepthProperty = map[string]interface{}{
	"type":        "integer",
	"description": "Optional normalization depth limit (default from config, 1000)",
}

// findSchema is shared by resq-find and resq-find-all.
func findSchema(extra map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{
		"session_id": sessionIDProperty,
		"selector": map[string]interface{}{
			"type":        "string",
			"description": "Space-separated component names, outermost first. '*' is a wildcard inside a name: 'TodoList Todo*'",
		},
		"props": map[string]interface{}{
			"description": "Optional props matcher. Objects match by subset unless exact is set; arrays match by inclusion.",
		},
		"state": map[string]interface{}{
			"description": "Optional state matcher, same rules as props",
		},
		"exact": map[string]interface{}{
			"type":        "boolean",
			"description": "Require props/state to match exactly instead of by subset (default: false)",
		},
		"root_selector": rootSelectorProperty,
		"max_depth":     maxDepthProperty,
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   []string{"session_id", "selector"},
	}
}

// findRequest is the parsed argument set of resq-find and resq-find-all.
type findRequest struct {
	SessionID string
	Selector  string
	Props     interface{}
	HasProps  bool
	State     interface{}
	HasState  bool
	Exact     bool
	Options   browser.QueryOptions
}

func parseFindRequest(args map[string]interface{}) (findRequest, error) {
	req := findRequest{
		SessionID: getStringArg(args, "session_id"),
		Selector:  getStringArg(args, "selector"),
		Exact:     getBoolArg(args, "exact", false),
		Options:   queryOptions(args),
	}
	if req.SessionID == "" {
		return req, fmt.Errorf("session_id is required")
	}
	if req.Selector == "" {
		return req, fmt.Errorf("selector is required")
	}
	req.Props, req.HasProps = getMatcherArg(args, "props")
	req.State, req.HasState = getMatcherArg(args, "state")
	return req, nil
}

func (r findRequest) event(tool string) recorder.QueryEvent {
	evt := recorder.QueryEvent{
		Tool:     tool,
		Selector: r.Selector,
		Exact:    r.Exact,
	}
	if r.HasProps {
		evt.Props = r.Props
	}
	if r.HasState {
		evt.State = r.State
	}
	return evt
}

// findOne runs a single-result query. The props and state filters both
// apply, and the first candidate passing them is the match.
func findOne(q *resq.Query, req findRequest) (*resq.Node, resq.Nodes, error) {
	res, err := q.Find()
	if err != nil {
		return nil, nil, err
	}
	candidates := res.Candidates()
	matched := filterNodes(candidates, req)
	if len(matched) == 0 {
		return nil, candidates, nil
	}
	return matched[0], candidates, nil
}

func findAll(q *resq.Query, req findRequest) resq.Nodes {
	return filterNodes(q.FindAll(), req)
}

func filterNodes(nodes resq.Nodes, req findRequest) resq.Nodes {
	if req.HasProps {
		nodes = nodes.ByProps(req.Props, resq.Exact(req.Exact))
	}
	if req.HasState {
		nodes = nodes.ByState(req.State, resq.Exact(req.Exact))
	}
	return nodes
}

// WaitForReactTool blocks until the page has a React root.
type WaitForReactTool struct {
	sessions *browser.SessionManager
}

func (t *WaitForReactTool) Name() string { return "wait-for-react" }
func (t *WaitForReactTool) Description() string {
	return `Wait until the session's page has a mounted React root.

CALL THIS after create-session or any navigation before querying components.
resq-find and friends wait on their own when no root has been seen yet, but an
explicit wait gives a clear timeout instead of a failed query.

HOW IT WORKS:
- Polls the page every poll_interval (default 200ms)
- Looks for root_selector if given, otherwise scans for a React container
- Remembers the root on the session until the page navigates

Returns: {ready: true, root_selector, loaded_at} or {success: false, ready: false, error} on timeout.`
}
func (t *WaitForReactTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": sessionIDProperty,
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait (default from config, 5000)",
			},
			"root_selector": rootSelectorProperty,
		},
		"required": []string{"session_id"},
	}
}
func (t *WaitForReactTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sessionID := getStringArg(args, "session_id")
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	timeout := time.Duration(getIntArg(args, "timeout_ms", 0)) * time.Millisecond

	rc, err := t.sessions.WaitForReact(ctx, sessionID, timeout, getStringArg(args, "root_selector"))
	if err != nil {
		if errors.Is(err, browser.ErrReactTimeout) {
			return map[string]interface{}{
				"success":    false,
				"ready":      false,
				"session_id": sessionID,
				"error":      err.Error(),
			}, nil
		}
		return nil, err
	}

	return map[string]interface{}{
		"success":       true,
		"ready":         true,
		"session_id":    sessionID,
		"root_selector": rc.RootSelector,
		"loaded_at":     rc.LoadedAt,
	}, nil
}

// ResqFindTool returns the first component matching a selector.
type ResqFindTool struct {
	sessions *browser.SessionManager
	recorder *recorder.Recorder
}

func (t *ResqFindTool) Name() string { return "resq-find" }
func (t *ResqFindTool) Description() string {
	return `Find the first React component matching a selector, optionally filtered by props/state.

SELECTORS:
- "Button"              -> any component or host element named Button
- "TodoList TodoItem"   -> TodoItem somewhere below TodoList
- "Todo*"               -> wildcard inside a name
- Higher-order wrappers match by inner name: "Nav" matches withRouter(Nav)

FILTERS:
- props / state: subset match by default, exact: true for equality
- Filters pick the first candidate passing both, in breadth-first order

Returns: {found, candidates, query_id, match: {node_id, name, node, props, state, children}}.
node is the rendered host element (tag, id, testId, text); fragments return a list.
Set include_html to also get the element's outerHTML.`
}
func (t *ResqFindTool) InputSchema() map[string]interface{} {
	return findSchema(map[string]interface{}{
		"include_html": map[string]interface{}{
			"type":        "boolean",
			"description": "Include the matched element's outerHTML (default: false)",
		},
	})
}
func (t *ResqFindTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	req, err := parseFindRequest(args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	evt := req.event(t.Name())
	defer func() {
		evt.DurationMS = time.Since(start).Milliseconds()
		t.recorder.RecordQuery(req.SessionID, evt)
	}()

	q, err := t.sessions.Resq(ctx, req.SessionID, req.Selector, req.Options)
	if err != nil {
		evt.Error = err.Error()
		if isExpectedQueryError(err) {
			return notFound(req, err), nil
		}
		return nil, err
	}

	node, candidates, err := findOne(q, req)
	if err != nil {
		evt.Error = err.Error()
		if isExpectedQueryError(err) {
			return notFound(req, err), nil
		}
		return nil, err
	}

	payload := findPayload(req, q.Tree(), node, len(candidates))
	if node == nil {
		return payload, nil
	}
	evt.Matches = 1

	queryID, err := t.sessions.RecordMatches(ctx, req.SessionID, q.Tree(), []*resq.Node{node})
	if err != nil {
		return nil, err
	}
	evt.QueryID = queryID
	payload["query_id"] = queryID

	if getBoolArg(args, "include_html", false) {
		if h, ok := node.Output.(*resq.Handle); ok && h.IsPlatform() {
			match := payload["match"].(map[string]interface{})
			html, err := t.elementHTML(ctx, req.SessionID, h)
			if err != nil {
				match["html_error"] = formatJSError(err)
			} else {
				match["html"] = html
			}
		}
	}
	return payload, nil
}

func (t *ResqFindTool) elementHTML(ctx context.Context, sessionID string, h *resq.Handle) (string, error) {
	el, err := t.sessions.Element(ctx, sessionID, h)
	if err != nil {
		return "", err
	}
	html, err := el.HTML()
	if err != nil {
		return "", fmt.Errorf("read element html: %w", err)
	}
	if len(html) > maxHTMLLength {
		html = html[:maxHTMLLength] + "..."
	}
	return html, nil
}

func notFound(req findRequest, err error) map[string]interface{} {
	return map[string]interface{}{
		"success":    false,
		"found":      false,
		"session_id": req.SessionID,
		"selector":   req.Selector,
		"error":      err.Error(),
	}
}

func findPayload(req findRequest, tree *resq.Node, node *resq.Node, candidates int) map[string]interface{} {
	payload := map[string]interface{}{
		"success":    true,
		"found":      node != nil,
		"session_id": req.SessionID,
		"selector":   req.Selector,
		"candidates": candidates,
	}
	if node != nil {
		payload["match"] = nodeView(node, browser.NodeIDs(tree)[node])
	}
	return payload
}

// ResqFindAllTool returns every component matching a selector.
type ResqFindAllTool struct {
	sessions *browser.SessionManager
	recorder *recorder.Recorder
}

func (t *ResqFindAllTool) Name() string { return "resq-find-all" }
func (t *ResqFindAllTool) Description() string {
	return `Find all React components matching a selector, optionally filtered by props/state.

Same selector and filter rules as resq-find. Results are in breadth-first order
and every match carries a node_id that lines up with reify-react facts.

Matches are also recorded as react_match(SessionId, QueryId, NodeId) facts, so
query-facts can join them with react_component/react_prop.

Returns: {count, truncated, query_id, matches: [{node_id, name, node, props, state, children}]}`
}
func (t *ResqFindAllTool) InputSchema() map[string]interface{} {
	return findSchema(map[string]interface{}{
		"max_results": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum matches to return (default: 50)",
		},
	})
}
func (t *ResqFindAllTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	req, err := parseFindRequest(args)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	evt := req.event(t.Name())
	defer func() {
		evt.DurationMS = time.Since(start).Milliseconds()
		t.recorder.RecordQuery(req.SessionID, evt)
	}()

	q, err := t.sessions.Resq(ctx, req.SessionID, req.Selector, req.Options)
	if err != nil {
		evt.Error = err.Error()
		if isExpectedQueryError(err) {
			return notFound(req, err), nil
		}
		return nil, err
	}

	nodes := findAll(q, req)
	evt.Matches = len(nodes)

	queryID, err := t.sessions.RecordMatches(ctx, req.SessionID, q.Tree(), nodes)
	if err != nil {
		return nil, err
	}
	evt.QueryID = queryID

	payload := findAllPayload(req, q.Tree(), nodes, getIntArg(args, "max_results", defaultMaxResults))
	payload["query_id"] = queryID
	return payload, nil
}

func findAllPayload(req findRequest, tree *resq.Node, nodes resq.Nodes, limit int) map[string]interface{} {
	if limit <= 0 {
		limit = defaultMaxResults
	}
	ids := browser.NodeIDs(tree)
	matches := make([]map[string]interface{}, 0, min(limit, len(nodes)))
	for i, n := range nodes {
		if i >= limit {
			break
		}
		matches = append(matches, nodeView(n, ids[n]))
	}
	return map[string]interface{}{
		"success":    true,
		"session_id": req.SessionID,
		"selector":   req.Selector,
		"count":      len(nodes),
		"truncated":  len(nodes) > limit,
		"matches":    matches,
	}
}

// ResqTreeTool returns a compact outline of the component tree.
type ResqTreeTool struct {
	sessions *browser.SessionManager
}

func (t *ResqTreeTool) Name() string { return "resq-tree" }
func (t *ResqTreeTool) Description() string {
	return `Outline the page's React component tree: names, node ids, fragments and host tags.

USE THIS to discover component names before writing a selector. Props and state
are left out to keep the payload small; use resq-find for details.

Returns: {nodes, truncated, tree: {id, name, host, fragment, children: [...]}}`
}
func (t *ResqTreeTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": sessionIDProperty,
			"max_depth":  maxDepthProperty,
			"max_nodes": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum nodes in the outline (default: 200)",
			},
			"root_selector": rootSelectorProperty,
		},
		"required": []string{"session_id"},
	}
}
func (t *ResqTreeTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sessionID := getStringArg(args, "session_id")
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	tree, err := t.sessions.Tree(ctx, sessionID, queryOptions(args))
	if err != nil {
		if isExpectedQueryError(err) {
			return map[string]interface{}{"success": false, "session_id": sessionID, "error": err.Error()}, nil
		}
		return nil, err
	}

	root, count, truncated := outline(tree, getIntArg(args, "max_nodes", defaultMaxNodes))
	return map[string]interface{}{
		"success":    true,
		"session_id": sessionID,
		"nodes":      count,
		"truncated":  truncated,
		"tree":       root,
	}, nil
}

type outlineNode struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Host     string         `json:"host,omitempty"`
	Fragment bool           `json:"fragment,omitempty"`
	Children []*outlineNode `json:"children,omitempty"`
}

// outline walks the tree in pre-order, keeping at most maxNodes nodes.
func outline(tree *resq.Node, maxNodes int) (*outlineNode, int, bool) {
	if tree == nil {
		return nil, 0, false
	}
	if maxNodes <= 0 {
		maxNodes = defaultMaxNodes
	}
	ids := browser.NodeIDs(tree)
	count := 0
	truncated := false

	var walk func(n *resq.Node) *outlineNode
	walk = func(n *resq.Node) *outlineNode {
		count++
		out := &outlineNode{ID: ids[n], Name: n.Name(), Fragment: n.IsFragment}
		if n.Identity.Kind != resq.IdentityHost {
			if h, ok := n.Output.(*resq.Handle); ok && h != nil && h.Tag != "" {
				out.Host = h.Tag
			}
		}
		for _, c := range n.Children {
			if count >= maxNodes {
				truncated = true
				break
			}
			out.Children = append(out.Children, walk(c))
		}
		return out
	}
	return walk(tree), count, truncated
}

// ReifyReactTool converts the component tree into Mangle facts.
type ReifyReactTool struct {
	sessions *browser.SessionManager
	recorder *recorder.Recorder
}

func (t *ReifyReactTool) Name() string { return "reify-react" }
func (t *ReifyReactTool) Description() string {
	return `Extract the React component tree into Mangle facts for analysis.

Each call replaces the session's previous react_* facts.

EMITTED FACTS:
- react_component(SessionId, NodeId, Name, ParentId)
- react_prop(SessionId, NodeId, Key, Value)
- react_state(SessionId, NodeId, Key, Value)
- react_fragment(SessionId, NodeId)
- react_host(SessionId, NodeId, Tag, ElementId)

DERIVED (built-in rules, use evaluate-rule):
- react_ancestor(SessionId, AncestorId, DescendantId)
- react_stateful(SessionId, NodeId, Name)
- react_leaf(SessionId, NodeId, Name)

Booleans are stored as "true"/"false"; values that are not strings, numbers
or booleans are stored as JSON text.`
}
func (t *ReifyReactTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id":    sessionIDProperty,
			"root_selector": rootSelectorProperty,
			"max_depth":     maxDepthProperty,
		},
		"required": []string{"session_id"},
	}
}
func (t *ReifyReactTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sessionID := getStringArg(args, "session_id")
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	facts, err := t.sessions.ReifyReact(ctx, sessionID, queryOptions(args))
	if err != nil {
		return nil, err
	}

	byPredicate := make(map[string]int)
	for _, f := range facts {
		byPredicate[f.Predicate]++
	}
	t.recorder.Log("reify", sessionID, byPredicate)

	return map[string]interface{}{
		"session_id":   sessionID,
		"facts":        len(facts),
		"by_predicate": byPredicate,
	}, nil
}
