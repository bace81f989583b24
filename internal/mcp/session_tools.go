package mcp

import (
	"context"
	"fmt"

	"resq-mcp-server/internal/browser"
)

type ListSessionsTool struct {
	sessions *browser.SessionManager
}

func (t *ListSessionsTool) Name() string { return "list-sessions" }
func (t *ListSessionsTool) Description() string {
	return `List the browser sessions this server tracks.

Each session is one page. Pass its id as session_id to wait-for-react,
resq-find, resq-find-all, resq-tree and reify-react.

react_ready is true once a React root has been found on the page. It goes
back to false when the page navigates, together with the session's react_*
facts.

Returns: {sessions: [{id, target_id, url, title, status, react_ready}]}`
}
func (t *ListSessionsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListSessionsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"sessions": t.sessions.List()}, nil
}

type CreateSessionTool struct {
	sessions *browser.SessionManager
}

func (t *CreateSessionTool) Name() string { return "create-session" }
func (t *CreateSessionTool) Description() string {
	return `Open a page in a fresh incognito context and track it as a session.

Requires a running browser (launch-browser, or browser.auto_start).
Give url to load the React app right away; navigation waits for the load event
but not for React to mount, so follow with wait-for-react.

Returns: {session: {id, url, status}}`
}
func (t *CreateSessionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "Optional URL to navigate after opening the session",
			},
		},
	}
}
func (t *CreateSessionTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := getStringArg(args, "url")
	if url == "" {
		url = "about:blank"
	}

	sess, err := t.sessions.CreateSession(ctx, url)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"session": sess}, nil
}

type AttachSessionTool struct {
	sessions *browser.SessionManager
}

func (t *AttachSessionTool) Name() string { return "attach-session" }
func (t *AttachSessionTool) Description() string {
	return `Track an already open Chrome tab as a session, by its CDP target id.

Use this for a tab opened by hand or by another tool (chrome://inspect lists
target ids). The page is not reloaded; React state stays as it is.

Returns: {session: {id, target_id, url, title}}`
}
func (t *AttachSessionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"target_id": map[string]interface{}{
				"type":        "string",
				"description": "CDP TargetID to attach",
			},
		},
		"required": []string{"target_id"},
	}
}
func (t *AttachSessionTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	targetID := getStringArg(args, "target_id")
	if targetID == "" {
		return nil, fmt.Errorf("target_id is required")
	}

	sess, err := t.sessions.Attach(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"session": sess}, nil
}

// LaunchBrowserTool starts Chrome using the configured launch command.
type LaunchBrowserTool struct {
	sessions *browser.SessionManager
}

func (t *LaunchBrowserTool) Name() string { return "launch-browser" }
func (t *LaunchBrowserTool) Description() string {
	return `Connect to Chrome, or launch it, using browser.debugger_url or browser.launch.

Does nothing when a browser is already connected. Typical flow:
launch-browser, create-session, wait-for-react, then resq-find or resq-tree.

Returns: {status: "started"|"already_connected", control_url}`
}
func (t *LaunchBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *LaunchBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if t.sessions.IsConnected() {
		return map[string]interface{}{
			"status":      "already_connected",
			"control_url": t.sessions.ControlURL(),
		}, nil
	}

	if err := t.sessions.Start(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":      "started",
		"control_url": t.sessions.ControlURL(),
	}, nil
}

// ShutdownBrowserTool stops the managed Chrome instance and clears sessions.
type ShutdownBrowserTool struct {
	sessions *browser.SessionManager
}

func (t *ShutdownBrowserTool) Name() string { return "shutdown-browser" }
func (t *ShutdownBrowserTool) Description() string {
	return `Close every tracked page and the browser.

Component facts from reify-react and resq-find-all stay in the fact store
until the session is reified again, so query-facts keeps working.

Returns: {status: "stopped"}`
}
func (t *ShutdownBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ShutdownBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if err := t.sessions.Shutdown(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status": "stopped",
	}, nil
}

