package main

import (
	"context"
	"fmt"
	"log"

	"resq-mcp-server/internal/browser"
	"resq-mcp-server/internal/config"
	"resq-mcp-server/internal/mangle"
	mcpserver "resq-mcp-server/internal/mcp"
	"resq-mcp-server/internal/recorder"
)

// app holds the components shared by serve and query.
type app struct {
	cfg      config.Config
	engine   *mangle.Engine
	sessions *browser.SessionManager
	recorder *recorder.Recorder
	server   *mcpserver.Server
}

func newApp(cfg config.Config) (*app, error) {
	engine, err := mangle.NewEngine(cfg.Mangle)
	if err != nil {
		return nil, fmt.Errorf("initialize mangle engine: %w", err)
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enable {
		rec, err = recorder.NewRecorder(cfg.Recorder.Dir)
		if err != nil {
			return nil, fmt.Errorf("initialize recorder: %w", err)
		}
		path, err := rec.Start()
		if err != nil {
			return nil, fmt.Errorf("start recorder: %w", err)
		}
		log.Printf("recording queries to %s", path)
	}

	sessions := browser.NewSessionManager(cfg.Browser, cfg.Query, engine)
	server, err := mcpserver.NewServer(cfg, sessions, engine, rec)
	if err != nil {
		_ = rec.Close()
		return nil, fmt.Errorf("initialize MCP server: %w", err)
	}

	return &app{
		cfg:      cfg,
		engine:   engine,
		sessions: sessions,
		recorder: rec,
		server:   server,
	}, nil
}

func (a *app) Close(ctx context.Context) {
	if a.sessions.IsConnected() {
		if err := a.sessions.Shutdown(ctx); err != nil {
			log.Printf("browser shutdown: %v", err)
		}
	}
	if err := a.recorder.Close(); err != nil {
		log.Printf("close recorder: %v", err)
	}
}
