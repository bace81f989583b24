package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"resq-mcp-server/internal/mangle"
	"resq-mcp-server/internal/resq"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
)

var (
	// ErrUnknownSession is returned for session ids the manager never saw.
	ErrUnknownSession = errors.New("unknown session")
	// ErrDetachedSession is returned for persisted sessions with no live page.
	ErrDetachedSession = errors.New("session is detached; attach it to a live target first")
	// ErrReactTimeout is returned when React does not show up in time.
	ErrReactTimeout = errors.New("timed out waiting for react")
)

// ReactPredicates are the facts a reify replaces for its session.
var ReactPredicates = []string{
	"react_component",
	"react_prop",
	"react_state",
	"react_fragment",
	"react_host",
}

// QueryOptions scope a component query to part of the page.
type QueryOptions struct {
	// RootSelector picks the container element. Empty means the one recorded
	// by WaitForReact, then the configured default, then a document scan.
	RootSelector string
	// MaxDepth bounds normalization; zero uses the configured default.
	MaxDepth int
}

// WaitForReact polls the page until a React root is found. It records the
// result on the session so later queries reuse the same root selector.
func (m *SessionManager) WaitForReact(ctx context.Context, sessionID string, timeout time.Duration, rootSelector string) (*ReactContext, error) {
	page, err := m.livePage(sessionID)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = m.query.GetWaitTimeout()
	}
	if rootSelector == "" {
		rootSelector = m.query.RootSelector
	}

	probe := func(ctx context.Context) (bool, error) {
		res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
			JS:           reactReadyJS,
			JSArgs:       []interface{}{rootSelector},
			ByValue:      true,
			AwaitPromise: true,
		})
		if err != nil {
			return false, err
		}
		return res.Value.Bool(), nil
	}

	start := time.Now()
	err = pollUntil(ctx, timeout, m.query.GetPollInterval(), func(ctx context.Context) (bool, error) {
		ready, err := probe(ctx)
		if err != nil && ctx.Err() == nil {
			log.Printf("[session:%s] react probe failed: %v", sessionID, err)
		}
		return ready, nil
	})
	if err != nil {
		return nil, err
	}

	rc := &ReactContext{Loaded: true, RootSelector: rootSelector, LoadedAt: time.Now()}
	m.setReact(sessionID, rc)
	log.Printf("[session:%s] react ready after %s", sessionID, time.Since(start).Round(time.Millisecond))

	out := *rc
	return &out, nil
}

// pollUntil calls probe immediately and then every interval until it reports
// true. It returns ErrReactTimeout once timeout elapses, or the context's
// error when ctx ends first.
func pollUntil(ctx context.Context, timeout, interval time.Duration, probe func(context.Context) (bool, error)) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := probe(waitCtx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w after %s", ErrReactTimeout, timeout)
		case <-ticker.C:
		}
	}
}

// Snapshot serializes the fiber graph of a session's page and decodes it.
func (m *SessionManager) Snapshot(ctx context.Context, sessionID, rootSelector string) (*Snapshot, error) {
	page, err := m.livePage(sessionID)
	if err != nil {
		return nil, err
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           snapshotReactJS,
		JSArgs:       []interface{}{rootSelector, m.query.GetMaxFibers(), m.query.GetMaxValueDepth()},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot fiber tree: %w", err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal fiber snapshot: %w", err)
	}

	snap, err := decodeSnapshot(raw)
	if err != nil {
		return nil, err
	}
	if snap.Truncated {
		log.Printf("[session:%s] fiber snapshot truncated at %d fibers", sessionID, snap.Fibers)
	}
	return snap, nil
}

// rootFor resolves the root selector a query should use, waiting for React
// first when the session has not seen it since its last navigation.
func (m *SessionManager) rootFor(ctx context.Context, sessionID string, opts QueryOptions) (string, error) {
	if opts.RootSelector != "" {
		return opts.RootSelector, nil
	}
	if rc := m.React(sessionID); rc != nil {
		return rc.RootSelector, nil
	}
	rc, err := m.WaitForReact(ctx, sessionID, 0, "")
	if err != nil {
		return "", err
	}
	return rc.RootSelector, nil
}

func (m *SessionManager) maxDepth(opts QueryOptions) int {
	if opts.MaxDepth > 0 {
		return opts.MaxDepth
	}
	return m.query.GetMaxDepth()
}

// Tree returns the normalized component tree of a session's page.
func (m *SessionManager) Tree(ctx context.Context, sessionID string, opts QueryOptions) (*resq.Node, error) {
	root, err := m.rootFor(ctx, sessionID, opts)
	if err != nil {
		return nil, err
	}
	snap, err := m.Snapshot(ctx, sessionID, root)
	if err != nil {
		return nil, err
	}
	return resq.BuildTree(snap.Root, resq.WithMaxDepth(m.maxDepth(opts))), nil
}

// Resq snapshots the page and binds selector to the snapshot. The returned
// query can be run any number of times without touching the page again.
func (m *SessionManager) Resq(ctx context.Context, sessionID, selector string, opts QueryOptions) (*resq.Query, error) {
	tree, err := m.Tree(ctx, sessionID, opts)
	if err != nil {
		return nil, err
	}
	m.UpdateMetadata(sessionID, func(s Session) Session {
		s.LastActive = time.Now()
		return s
	})
	return resq.NewFromTree(selector, tree), nil
}

// Element resolves a handle from the session's latest snapshot to a live
// element. Handles from older snapshots are no longer valid.
func (m *SessionManager) Element(ctx context.Context, sessionID string, h *resq.Handle) (*rod.Element, error) {
	if !h.IsPlatform() {
		return nil, errors.New("handle does not reference a platform node")
	}
	page, err := m.livePage(sessionID)
	if err != nil {
		return nil, err
	}
	el, err := page.Context(ctx).Sleeper(rod.NotFoundSleeper).ElementByJS(rod.Eval(resolveHandleJS, h.Ref))
	if err != nil {
		return nil, fmt.Errorf("resolve handle %d: %w", h.Ref, err)
	}
	return el, nil
}

// ReifyReact replaces the session's component facts with facts derived from a
// fresh snapshot of its page.
func (m *SessionManager) ReifyReact(ctx context.Context, sessionID string, opts QueryOptions) ([]mangle.Fact, error) {
	if m.engine == nil {
		return nil, errors.New("mangle engine not configured")
	}
	tree, err := m.Tree(ctx, sessionID, opts)
	if err != nil {
		return nil, err
	}

	facts := ReactFacts(sessionID, tree, time.Now())
	if err := m.engine.RetractSession(ctx, sessionID, ReactPredicates...); err != nil {
		return nil, fmt.Errorf("retract react facts: %w", err)
	}
	if err := m.engine.AddFacts(ctx, facts); err != nil {
		return nil, fmt.Errorf("add react facts: %w", err)
	}
	log.Printf("[session:%s] reified %d react facts", sessionID, len(facts))
	return facts, nil
}

// RecordMatches stores a query's matches as react_match facts under a fresh
// query id. Node ids follow NodeIDs, so they agree with a reify of the same
// page state.
func (m *SessionManager) RecordMatches(ctx context.Context, sessionID string, tree *resq.Node, matches []*resq.Node) (string, error) {
	queryID := uuid.NewString()
	if m.engine == nil || len(matches) == 0 {
		return queryID, nil
	}
	if err := m.engine.AddFacts(ctx, MatchFacts(sessionID, queryID, tree, matches, time.Now())); err != nil {
		return "", fmt.Errorf("record matches: %w", err)
	}
	return queryID, nil
}

// NodeIDs numbers the nodes of a normalized tree in depth-first pre-order.
func NodeIDs(tree *resq.Node) map[*resq.Node]string {
	ids := make(map[*resq.Node]string)
	if tree == nil {
		return ids
	}
	stack := []*resq.Node{tree}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := ids[n]; seen {
			continue
		}
		ids[n] = "n" + strconv.Itoa(len(ids))
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return ids
}

// ReactFacts flattens a normalized tree into react_* facts for one session.
func ReactFacts(sessionID string, tree *resq.Node, now time.Time) []mangle.Fact {
	if tree == nil {
		return nil
	}
	ids := NodeIDs(tree)
	facts := make([]mangle.Fact, 0, len(ids)*3)
	add := func(predicate string, args ...interface{}) {
		facts = append(facts, mangle.Fact{
			Predicate: predicate,
			Args:      append([]interface{}{sessionID}, args...),
			Timestamp: now,
		})
	}

	var walk func(n *resq.Node, parent string)
	walk = func(n *resq.Node, parent string) {
		id := ids[n]
		add("react_component", id, n.Name(), parent)

		if props, ok := n.Props.(*resq.Map); ok {
			for _, k := range props.Keys() {
				v, _ := props.Get(k)
				add("react_prop", id, k, factValue(v))
			}
		}

		switch state := n.State.(type) {
		case *resq.Map:
			for _, k := range state.Keys() {
				v, _ := state.Get(k)
				add("react_state", id, k, factValue(v))
			}
		default:
			if n.State != nil && n.State.Kind() != resq.KindUndefined {
				add("react_state", id, "value", factValue(n.State))
			}
		}

		if n.IsFragment {
			add("react_fragment", id)
		}
		if n.Identity.Kind == resq.IdentityHost {
			if h, ok := n.Output.(*resq.Handle); ok && h != nil {
				add("react_host", id, h.Tag, h.ID)
			}
		}

		for _, c := range n.Children {
			walk(c, id)
		}
	}
	walk(tree, "")
	return facts
}

// MatchFacts builds react_match facts for matches found in tree.
func MatchFacts(sessionID, queryID string, tree *resq.Node, matches []*resq.Node, now time.Time) []mangle.Fact {
	ids := NodeIDs(tree)
	facts := make([]mangle.Fact, 0, len(matches))
	for _, n := range matches {
		id, ok := ids[n]
		if !ok {
			continue
		}
		facts = append(facts, mangle.Fact{
			Predicate: "react_match",
			Args:      []interface{}{sessionID, queryID, id},
			Timestamp: now,
		})
	}
	return facts
}

// factValue renders a props or state value as a fact argument. Strings,
// finite numbers and booleans pass through; everything else becomes JSON.
func factValue(v resq.Value) interface{} {
	switch x := v.(type) {
	case resq.String:
		return string(x)
	case resq.Number:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprintf("%v", resq.Export(x))
		}
		return f
	case resq.Bool:
		return bool(x)
	}
	if v == nil {
		return "undefined"
	}
	switch v.Kind() {
	case resq.KindUndefined:
		return "undefined"
	case resq.KindNull:
		return "null"
	}
	raw, err := json.Marshal(resq.Export(v))
	if err != nil {
		return v.Kind().String()
	}
	return string(raw)
}
