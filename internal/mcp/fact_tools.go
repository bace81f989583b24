package mcp

import (
	"context"
	"fmt"
	"strings"

	"resq-mcp-server/internal/mangle"
)

const defaultFactLimit = 100

func engineReady(engine *mangle.Engine) error {
	if engine == nil || !engine.Ready() {
		return fmt.Errorf("mangle engine unavailable")
	}
	return nil
}

// QueryFactsTool runs a Mangle query against the fact store.
type QueryFactsTool struct {
	engine *mangle.Engine
}

func (t *QueryFactsTool) Name() string { return "query-facts" }
func (t *QueryFactsTool) Description() string {
	return `Run a Mangle query over component facts and return variable bindings.

PREREQUISITE: reify-react (component facts) or resq-find-all (react_match facts).

EXAMPLES:
- react_component(S, N, "TodoItem", P).
- react_prop(S, N, "done", "true").
- react_match(S, "<query_id>", N).
- react_stateful(S, N, Name).

Uppercase names are variables; quoted strings and numbers are constants.
Booleans are stored as the strings "true" and "false".
The trailing period is optional.

Returns: {count, results: [{Var: value, ...}]}`
}
func (t *QueryFactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Mangle atom to query, e.g. react_component(S, N, \"App\", P).",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum rows to return (default: 100)",
			},
		},
		"required": []string{"query"},
	}
}
func (t *QueryFactsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query := normalizeQuery(getStringArg(args, "query"))
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if err := engineReady(t.engine); err != nil {
		return nil, err
	}

	rows, err := t.engine.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	limit := getIntArg(args, "limit", defaultFactLimit)
	if limit <= 0 {
		limit = defaultFactLimit
	}
	results := make([]map[string]interface{}, 0, min(limit, len(rows)))
	for i, row := range rows {
		if i >= limit {
			break
		}
		results = append(results, map[string]interface{}(row))
	}

	return map[string]interface{}{
		"query":     query,
		"count":     len(rows),
		"truncated": len(rows) > limit,
		"results":   results,
	}, nil
}

// EvaluateRuleTool returns every fact held for a predicate after evaluation.
type EvaluateRuleTool struct {
	engine *mangle.Engine
}

func (t *EvaluateRuleTool) Name() string { return "evaluate-rule" }
func (t *EvaluateRuleTool) Description() string {
	return `Evaluate the Mangle program and list the facts of one predicate.

Works for derived predicates (react_ancestor, react_stateful, react_leaf,
react_matched_component, or your own from submit-rule) and for stored ones.

Pass session_id to keep only that session's facts.

Returns: {predicate, count, facts: [{predicate, args}]}`
}
func (t *EvaluateRuleTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Predicate name, e.g. react_stateful",
			},
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional session filter on the first argument",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum facts to return (default: 100)",
			},
		},
		"required": []string{"predicate"},
	}
}
func (t *EvaluateRuleTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	predicate := strings.TrimSpace(getStringArg(args, "predicate"))
	if predicate == "" {
		return nil, fmt.Errorf("predicate is required")
	}
	if err := engineReady(t.engine); err != nil {
		return nil, err
	}

	facts, err := t.engine.Evaluate(ctx, predicate)
	if err != nil {
		return nil, err
	}

	if sessionID := getStringArg(args, "session_id"); sessionID != "" {
		kept := facts[:0]
		for _, f := range facts {
			if len(f.Args) > 0 && f.Args[0] == sessionID {
				kept = append(kept, f)
			}
		}
		facts = kept
	}

	limit := getIntArg(args, "limit", defaultFactLimit)
	if limit <= 0 {
		limit = defaultFactLimit
	}
	count := len(facts)
	if len(facts) > limit {
		facts = facts[:limit]
	}

	return map[string]interface{}{
		"predicate": predicate,
		"count":     count,
		"truncated": count > limit,
		"facts":     facts,
	}, nil
}

// SubmitRuleTool adds declarations and rules to the running program.
type SubmitRuleTool struct {
	engine *mangle.Engine
}

func (t *SubmitRuleTool) Name() string { return "submit-rule" }
func (t *SubmitRuleTool) Description() string {
	return `Add Mangle declarations and rules to the running program.

EXAMPLE:
  Decl disabled_button(S, N).
  disabled_button(S, N) :- react_component(S, N, "Button", _), react_prop(S, N, "disabled", "true").

Then call evaluate-rule with predicate disabled_button.

Returns: {status: "ok"} or an error if the rule does not parse or analyze.`
}
func (t *SubmitRuleTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"rule": map[string]interface{}{
				"type":        "string",
				"description": "Mangle source with Decl statements and rules",
			},
		},
		"required": []string{"rule"},
	}
}
func (t *SubmitRuleTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	rule := getStringArg(args, "rule")
	if strings.TrimSpace(rule) == "" {
		return nil, fmt.Errorf("rule is required")
	}
	if err := engineReady(t.engine); err != nil {
		return nil, err
	}
	if err := t.engine.AddRule(rule); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok"}, nil
}
