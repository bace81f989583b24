package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"resq-mcp-server/internal/browser"
	"resq-mcp-server/internal/resq"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"react_leaf(S, N, Name)", "react_leaf(S, N, Name)."},
		{"react_leaf(S, N, Name).", "react_leaf(S, N, Name)."},
		{"  react_leaf(S, N, Name).  ", "react_leaf(S, N, Name)."},
	}
	for _, tt := range tests {
		if got := normalizeQuery(tt.in); got != tt.want {
			t.Errorf("normalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetIntArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want int
	}{
		{"missing", map[string]interface{}{}, 7},
		{"int", map[string]interface{}{"n": 3}, 3},
		{"int64", map[string]interface{}{"n": int64(4)}, 4},
		{"float64", map[string]interface{}{"n": float64(5)}, 5},
		{"numeric string", map[string]interface{}{"n": " 6 "}, 6},
		{"bad string", map[string]interface{}{"n": "six"}, 7},
		{"other type", map[string]interface{}{"n": true}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getIntArg(tt.args, "n", 7); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestGetBoolArg(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]interface{}
		fallback bool
		want     bool
	}{
		{"missing uses fallback", map[string]interface{}{}, true, true},
		{"bool", map[string]interface{}{"b": true}, false, true},
		{"string true", map[string]interface{}{"b": "true"}, false, true},
		{"string false", map[string]interface{}{"b": "false"}, true, false},
		{"unparseable", map[string]interface{}{"b": "yes please"}, true, true},
		{"number", map[string]interface{}{"b": float64(1)}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getBoolArg(tt.args, "b", tt.fallback); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestGetStringArg(t *testing.T) {
	args := map[string]interface{}{"s": "text", "n": float64(2), "nil": nil}
	if got := getStringArg(args, "s"); got != "text" {
		t.Errorf("expected text, got %q", got)
	}
	if got := getStringArg(args, "n"); got != "2" {
		t.Errorf("expected 2, got %q", got)
	}
	if got := getStringArg(args, "nil"); got != "" {
		t.Errorf("expected empty string for nil, got %q", got)
	}
	if got := getStringArg(args, "missing"); got != "" {
		t.Errorf("expected empty string for missing, got %q", got)
	}
}

func TestGetMatcherArg(t *testing.T) {
	args := map[string]interface{}{
		"props": map[string]interface{}{"a": 1},
		"state": nil,
		"list":  []interface{}{"x"},
		"empty": map[string]interface{}{},
	}

	if _, ok := getMatcherArg(args, "missing"); ok {
		t.Error("absent matcher should not be set")
	}
	if _, ok := getMatcherArg(args, "state"); ok {
		t.Error("null matcher should not be set")
	}
	for _, key := range []string{"props", "list", "empty"} {
		if v, ok := getMatcherArg(args, key); !ok || v == nil {
			t.Errorf("expected %s matcher to be set", key)
		}
	}
}

func TestArgString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{[]string{"first", "second"}, "first"},
		{[]string{}, ""},
		{42, "42"},
	}
	for _, tt := range tests {
		if got := argString(tt.in); got != tt.want {
			t.Errorf("argString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsExpectedQueryError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{browser.ErrReactTimeout, true},
		{fmt.Errorf("wrapped: %w", browser.ErrNoReactRoot), true},
		{fmt.Errorf("%w: %q", resq.ErrNotFound, "Nav"), true},
		{resq.ErrNoRoot, true},
		{browser.ErrUnknownSession, false},
		{context.Canceled, false},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := isExpectedQueryError(tt.err); got != tt.want {
			t.Errorf("isExpectedQueryError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestFormatJSError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"type error", errors.New("eval failed: TypeError: x is undefined"), "TypeError: x is undefined"},
		{"reference error", errors.New("ReferenceError:   foo is not defined"), "ReferenceError: foo is not defined"},
		{"deadline", context.DeadlineExceeded, "Script execution timed out"},
		{"short", errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatJSError(tt.err); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	long := formatJSError(errors.New(strings.Repeat("x", 300)))
	if len(long) != 200 || !strings.HasSuffix(long, "...") {
		t.Errorf("expected truncated message of 200 chars, got %d", len(long))
	}
}

func TestNodeView(t *testing.T) {
	if view := nodeView(nil, "n0"); view["found"] != false {
		t.Errorf("expected found=false for nil node, got %v", view)
	}

	tree := todoTree()
	list := tree.Children[0]
	view := nodeView(list, "n1")
	if view["node_id"] != "n1" {
		t.Errorf("expected node_id n1, got %v", view["node_id"])
	}
	children, ok := view["children"].([]string)
	if !ok || len(children) != 3 || children[0] != "Todo" {
		t.Errorf("expected three Todo children, got %v", view["children"])
	}
	if view["is_fragment"] != true {
		t.Errorf("expected TodoList to be a fragment")
	}
	handles, ok := view["node"].(resq.HandleList)
	if !ok || len(handles) != 3 {
		t.Errorf("expected a list of three handles, got %v", view["node"])
	}

	if _, ok := nodeView(list, "")["node_id"]; ok {
		t.Error("expected no node_id when id is empty")
	}
}
