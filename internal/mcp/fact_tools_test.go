package mcp

import (
	"context"
	"testing"
	"time"

	"resq-mcp-server/internal/config"
	"resq-mcp-server/internal/mangle"
)

const testSessionID = "session-1"

func setupTestEngine(t *testing.T) *mangle.Engine {
	t.Helper()
	engine, err := mangle.NewEngine(config.MangleConfig{
		Enable:          true,
		FactBufferLimit: 1000,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	now := time.Now()
	facts := []mangle.Fact{
		{Predicate: "react_component", Args: []interface{}{testSessionID, "n0", "App", ""}, Timestamp: now},
		{Predicate: "react_component", Args: []interface{}{testSessionID, "n1", "TodoList", "n0"}, Timestamp: now},
		{Predicate: "react_component", Args: []interface{}{testSessionID, "n2", "TodoItem", "n1"}, Timestamp: now},
		{Predicate: "react_component", Args: []interface{}{testSessionID, "n3", "TodoItem", "n1"}, Timestamp: now},
		{Predicate: "react_component", Args: []interface{}{"other", "n0", "App", ""}, Timestamp: now},
		{Predicate: "react_state", Args: []interface{}{testSessionID, "n1", "filter", "all"}, Timestamp: now},
		{Predicate: "react_prop", Args: []interface{}{testSessionID, "n2", "done", true}, Timestamp: now},
		{Predicate: "react_prop", Args: []interface{}{testSessionID, "n3", "done", false}, Timestamp: now},
	}
	if err := engine.AddFacts(context.Background(), facts); err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}
	return engine
}

func TestQueryFactsTool(t *testing.T) {
	engine := setupTestEngine(t)
	tool := &QueryFactsTool{engine: engine}
	ctx := context.Background()

	t.Run("error on empty query", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]interface{}{}); err == nil {
			t.Error("expected error for empty query")
		}
	})

	t.Run("query by component name", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]interface{}{"query": `react_component(S, N, "TodoItem", P).`})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		resultMap := result.(map[string]interface{})
		if resultMap["count"].(int) != 2 {
			t.Errorf("expected 2 TodoItem rows, got %v", resultMap["count"])
		}
		rows := resultMap["results"].([]map[string]interface{})
		for _, row := range rows {
			if row["P"] != "n1" {
				t.Errorf("expected parent n1, got %v", row["P"])
			}
		}
	})

	t.Run("query tolerates missing trailing period", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]interface{}{"query": `react_component(S, N, Name, P)`})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if result.(map[string]interface{})["count"].(int) != 5 {
			t.Errorf("expected 5 rows, got %v", result.(map[string]interface{})["count"])
		}
	})

	t.Run("limit truncates rows", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]interface{}{"query": `react_component(S, N, Name, P).`, "limit": float64(2)})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		resultMap := result.(map[string]interface{})
		if len(resultMap["results"].([]map[string]interface{})) != 2 {
			t.Errorf("expected 2 rows, got %d", len(resultMap["results"].([]map[string]interface{})))
		}
		if resultMap["truncated"] != true {
			t.Error("expected truncated flag")
		}
	})

	t.Run("malformed query", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]interface{}{"query": "react_component(S,"}); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("no engine", func(t *testing.T) {
		noEngine := &QueryFactsTool{}
		if _, err := noEngine.Execute(ctx, map[string]interface{}{"query": "react_component(S, N, Name, P)."}); err == nil {
			t.Error("expected error without engine")
		}
	})
}

func TestEvaluateRuleTool(t *testing.T) {
	engine := setupTestEngine(t)
	tool := &EvaluateRuleTool{engine: engine}
	ctx := context.Background()

	t.Run("error on empty predicate", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]interface{}{}); err == nil {
			t.Error("expected error for empty predicate")
		}
	})

	t.Run("derived leaves", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]interface{}{"predicate": "react_leaf", "session_id": testSessionID})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		resultMap := result.(map[string]interface{})
		if resultMap["predicate"] != "react_leaf" {
			t.Errorf("expected predicate 'react_leaf', got %v", resultMap["predicate"])
		}
		if resultMap["count"].(int) != 2 {
			t.Errorf("expected 2 leaves, got %v", resultMap["count"])
		}
	})

	t.Run("session filter", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]interface{}{"predicate": "react_component", "session_id": "other"})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if result.(map[string]interface{})["count"].(int) != 1 {
			t.Errorf("expected 1 component for other session, got %v", result.(map[string]interface{})["count"])
		}
	})

	t.Run("stateful components", func(t *testing.T) {
		result, err := tool.Execute(ctx, map[string]interface{}{"predicate": "react_stateful"})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		facts := result.(map[string]interface{})["facts"].([]mangle.Fact)
		if len(facts) != 1 || facts[0].Args[2] != "TodoList" {
			t.Errorf("expected TodoList to be stateful, got %v", facts)
		}
	})
}

func TestSubmitRuleTool(t *testing.T) {
	engine := setupTestEngine(t)
	tool := &SubmitRuleTool{engine: engine}
	ctx := context.Background()

	t.Run("error on empty rule", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]interface{}{}); err == nil {
			t.Error("expected error for empty rule")
		}
	})

	t.Run("submit valid rule", func(t *testing.T) {
		rule := `
Decl done_item(S, N).
done_item(S, N) :- react_component(S, N, "TodoItem", _), react_prop(S, N, "done", "true").
`
		result, err := tool.Execute(ctx, map[string]interface{}{"rule": rule})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if result.(map[string]interface{})["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", result)
		}

		eval := &EvaluateRuleTool{engine: engine}
		out, err := eval.Execute(ctx, map[string]interface{}{"predicate": "done_item"})
		if err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
		facts := out.(map[string]interface{})["facts"].([]mangle.Fact)
		if len(facts) != 1 || facts[0].Args[1] != "n2" {
			t.Errorf("expected n2 to be the done item, got %v", facts)
		}
	})

	t.Run("invalid rule", func(t *testing.T) {
		if _, err := tool.Execute(ctx, map[string]interface{}{"rule": "this is not mangle"}); err == nil {
			t.Error("expected error for invalid rule")
		}
	})
}
