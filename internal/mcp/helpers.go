package mcp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"resq-mcp-server/internal/browser"
	"resq-mcp-server/internal/resq"
)

func getStringArg(args map[string]interface{}, key string) string {
	return getStringFromMap(args, key)
}

func getStringFromMap(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getIntArg(args map[string]interface{}, key string, fallback int) int {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
		return fallback
	default:
		return fallback
	}
}

// getBoolArg extracts a boolean argument with default.
func getBoolArg(args map[string]interface{}, key string, fallback bool) bool {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getMatcherArg returns a props/state matcher. Absent and null arguments
// yield ok=false; anything else is passed through for deep matching.
func getMatcherArg(args map[string]interface{}, key string) (interface{}, bool) {
	val, ok := args[key]
	if !ok || val == nil {
		return nil, false
	}
	return val, true
}

func asInt(v interface{}) int {
	switch value := v.(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func argString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	default:
		return fmt.Sprintf("%v", value)
	}
}

// normalizeQuery makes a query tolerant of a missing trailing period.
func normalizeQuery(query string) string {
	query = strings.TrimSpace(query)
	if query != "" && !strings.HasSuffix(query, ".") {
		query += "."
	}
	return query
}

// queryOptions reads the root_selector and max_depth arguments shared by the
// resq tools.
func queryOptions(args map[string]interface{}) browser.QueryOptions {
	return browser.QueryOptions{
		RootSelector: getStringArg(args, "root_selector"),
		MaxDepth:     getIntArg(args, "max_depth", 0),
	}
}

// isExpectedQueryError reports errors that are answered with a structured
// failure instead of a tool error: no React on the page yet, or nothing matched.
func isExpectedQueryError(err error) bool {
	return errors.Is(err, browser.ErrReactTimeout) ||
		errors.Is(err, browser.ErrNoReactRoot) ||
		errors.Is(err, resq.ErrNotFound) ||
		errors.Is(err, resq.ErrNoRoot)
}

// formatJSError trims in-page evaluation errors to the JavaScript message.
func formatJSError(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	for _, kind := range []string{"ReferenceError:", "TypeError:", "SyntaxError:"} {
		if strings.Contains(errStr, kind) {
			parts := strings.SplitN(errStr, kind, 2)
			return kind + " " + strings.TrimSpace(parts[1])
		}
	}

	if strings.Contains(errStr, "context deadline exceeded") {
		return "Script execution timed out"
	}

	if len(errStr) > 200 {
		return errStr[:197] + "..."
	}
	return errStr
}

// handleView renders a node's output for tool payloads.
func handleView(out resq.Output) interface{} {
	switch h := out.(type) {
	case *resq.Handle:
		if h == nil {
			return nil
		}
		return h
	case resq.HandleList:
		return h
	default:
		return nil
	}
}

// nodeView is the compact form of a matched node: its own fields and the
// names of its direct children, never the whole subtree.
func nodeView(n *resq.Node, id string) map[string]interface{} {
	if n == nil {
		return map[string]interface{}{"found": false}
	}
	children := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, c.Name())
	}
	view := map[string]interface{}{
		"name":        n.Identity,
		"node":        handleView(n.Output),
		"is_fragment": n.IsFragment,
		"props":       resq.Export(n.Props),
		"state":       resq.Export(n.State),
		"children":    children,
	}
	if id != "" {
		view["node_id"] = id
	}
	return view
}
