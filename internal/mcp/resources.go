package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"resq-mcp-server/internal/mangle"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"resq://about",
			"resq About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info, selector syntax and the fact vocabulary."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"resq://session/{sessionId}/components{?limit}",
			"Session Components",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("The react_component facts of a session's last reify-react."),
		),
		s.handleSessionComponentsResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":    s.cfg.Server.Name,
		"version": s.cfg.Server.Version,
		"notes": []string{
			"Selectors are space-separated component names, outermost first; '*' is a wildcard inside a name.",
			"props/state filters match by subset unless exact is set.",
			"reify-react replaces a session's react_component/react_prop/react_state/react_fragment/react_host facts.",
			"resq-find-all records react_match(SessionId, QueryId, NodeId); node ids agree with reify-react for the same page state.",
			"Navigation resets a session's React readiness and drops its component facts.",
		},
		"tools":        s.ToolNames(),
		"timestamp_ms": time.Now().UnixMilli(),
	}

	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func (s *Server) handleSessionComponentsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("mangle engine unavailable")
	}

	sessionID := argString(request.Params.Arguments["sessionId"])
	if sessionID == "" {
		return nil, fmt.Errorf("missing sessionId")
	}
	limit := asInt(argString(request.Params.Arguments["limit"]))
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}

	components := sessionComponents(s.engine, sessionID, limit)

	payload := map[string]interface{}{
		"session_id": sessionID,
		"limit":      limit,
		"count":      len(components),
		"components": components,
	}
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

type componentRow struct {
	NodeID   string `json:"node_id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// sessionComponents lists a session's react_component facts in tree order.
func sessionComponents(engine *mangle.Engine, sessionID string, limit int) []componentRow {
	facts := engine.SessionFacts(sessionID, "react_component")
	out := make([]componentRow, 0, min(limit, len(facts)))
	for _, f := range facts {
		if len(out) >= limit {
			break
		}
		if len(f.Args) < 4 {
			continue
		}
		out = append(out, componentRow{
			NodeID:   argString(f.Args[1]),
			Name:     argString(f.Args[2]),
			ParentID: argString(f.Args[3]),
		})
	}
	return out
}
