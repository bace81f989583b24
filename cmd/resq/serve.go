package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resq MCP server",
	Long: `Starts the MCP server with the browser session, component query and fact tools.

Transports:
- stdio (default): logs go to server.log_file so stdout stays a clean JSON-RPC channel.
- SSE: set --sse-port (or mcp.sse_port) to serve /sse and /message over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("sse-port", 0, "Optional SSE port override (falls back to config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, wsDir, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port, _ := cmd.Flags().GetInt("sse-port"); port != 0 {
		cfg.MCP.SSEPort = port
	}

	// stderr interferes with the stdio protocol
	if cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	}
	if wsDir != "" {
		log.Printf("using workspace %s", wsDir)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if cfg.Browser.AutoStart {
		if err := a.sessions.Start(ctx); err != nil {
			return fmt.Errorf("initialize Rod session manager: %w", err)
		}
	} else {
		log.Printf("browser auto-start disabled; use launch-browser or attach-session later")
	}

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting resq MCP SSE server on port %d", cfg.MCP.SSEPort)
		startErr = a.server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting resq MCP stdio server")
		startErr = a.server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		return fmt.Errorf("server exited with error: %w", startErr)
	}
	return nil
}
