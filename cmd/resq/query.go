package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"resq-mcp-server/internal/config"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run one component query against a page and print the result as JSON",
	Long: `Opens --url in Chrome, waits for React and runs a resq query.

Examples:
  resq query --url http://localhost:3000 --selector "TodoList TodoItem"
  resq query --url http://localhost:3000 --selector Button --props '{"disabled":true}' --all`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().String("url", "", "Page to open (required)")
	queryCmd.Flags().String("selector", "", "Component selector, outermost name first (required)")
	queryCmd.Flags().String("props", "", "JSON props matcher")
	queryCmd.Flags().String("state", "", "JSON state matcher")
	queryCmd.Flags().Bool("exact", false, "Match props/state exactly instead of by subset")
	queryCmd.Flags().Bool("all", false, "Return every match instead of the first")
	queryCmd.Flags().String("root-selector", "", "CSS selector of the React container")
	queryCmd.Flags().Duration("timeout", 0, "How long to wait for React (default from config)")
	queryCmd.Flags().String("debugger-url", "", "Attach to a running Chrome instead of launching one")
	_ = queryCmd.MarkFlagRequired("url")
	_ = queryCmd.MarkFlagRequired("selector")
}

func runQuery(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil && !errors.Is(err, config.ErrNoBrowserEndpoint) {
		return fmt.Errorf("load config: %w", err)
	}
	if err := prepareQueryBrowser(cmd, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	args, err := queryArgs(cmd)
	if err != nil {
		return err
	}
	url, _ := cmd.Flags().GetString("url")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	all, _ := cmd.Flags().GetBool("all")

	ctx := cmd.Context()
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if err := a.sessions.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	session, err := a.sessions.CreateSession(ctx, url)
	if err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	args["session_id"] = session.ID

	ready, err := a.server.ExecuteTool(ctx, "wait-for-react", map[string]interface{}{
		"session_id":    session.ID,
		"timeout_ms":    timeout.Milliseconds(),
		"root_selector": args["root_selector"],
	})
	if err != nil {
		return err
	}
	if ok, _ := ready.(map[string]interface{})["ready"].(bool); !ok {
		return writeJSON(cmd, ready)
	}

	tool := "resq-find"
	if all {
		tool = "resq-find-all"
	}
	result, err := a.server.ExecuteTool(ctx, tool, args)
	if err != nil {
		return err
	}
	return writeJSON(cmd, result)
}

// prepareQueryBrowser points the browser config at something it can start:
// --debugger-url, the configured endpoint, or a local Chrome found by Rod.
// One-shot queries never persist sessions.
func prepareQueryBrowser(cmd *cobra.Command, cfg *config.Config) error {
	cfg.Browser.SessionStore = ""
	if u, _ := cmd.Flags().GetString("debugger-url"); u != "" {
		cfg.Browser.DebuggerURL = u
		return nil
	}
	if cfg.Browser.DebuggerURL != "" || len(cfg.Browser.Launch) > 0 {
		return nil
	}
	bin, ok := launcher.LookPath()
	if !ok {
		return fmt.Errorf("no Chrome found; set browser.launch or pass --debugger-url")
	}
	log.Printf("launching %s", bin)
	cfg.Browser.Launch = []string{bin}
	return nil
}

// queryArgs builds resq-find arguments from the command flags.
func queryArgs(cmd *cobra.Command) (map[string]interface{}, error) {
	selector, _ := cmd.Flags().GetString("selector")
	exact, _ := cmd.Flags().GetBool("exact")
	rootSelector, _ := cmd.Flags().GetString("root-selector")

	args := map[string]interface{}{
		"selector": selector,
		"exact":    exact,
	}
	if rootSelector != "" {
		args["root_selector"] = rootSelector
	}
	for _, key := range []string{"props", "state"} {
		raw, _ := cmd.Flags().GetString(key)
		m, err := parseMatcher(raw)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", key, err)
		}
		if m != nil {
			args[key] = m
		}
	}
	return args, nil
}

// parseMatcher decodes a JSON matcher flag. An empty flag means no matcher.
func parseMatcher(raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

