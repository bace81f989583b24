package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"resq-mcp-server/internal/config"
	"resq-mcp-server/internal/mangle"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// Session describes the public metadata for a tracked browser context.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	Status     string    `json:"status,omitempty"`
	ReactReady bool      `json:"react_ready"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// ReactContext records where React was found on a session's page. It is
// reset whenever the main frame navigates.
type ReactContext struct {
	Loaded       bool      `json:"loaded"`
	RootSelector string    `json:"root_selector,omitempty"`
	LoadedAt     time.Time `json:"loaded_at"`
}

type sessionRecord struct {
	meta   Session
	page   *rod.Page
	react  *ReactContext
	cancel context.CancelFunc
}

// SessionManager owns the detached Chrome instance and tracks active sessions.
type SessionManager struct {
	cfg        config.BrowserConfig
	query      config.QueryConfig
	engine     EngineSink
	mu         sync.RWMutex
	browser    *rod.Browser
	sessions   map[string]*sessionRecord
	controlURL string
}

// EngineSink is the part of the fact engine the browser layer writes to.
type EngineSink interface {
	AddFacts(ctx context.Context, facts []mangle.Fact) error
	RetractSession(ctx context.Context, sessionID string, predicates ...string) error
}

func NewSessionManager(cfg config.BrowserConfig, query config.QueryConfig, sink EngineSink) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		query:    query,
		engine:   sink,
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to an existing Chrome or launches a new one using Rod's launcher.
func (m *SessionManager) Start(ctx context.Context) error {
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		log.Printf("Stale browser connection detected, reconnecting...")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.mu.Lock()
		for _, rec := range m.sessions {
			if rec.cancel != nil {
				rec.cancel()
			}
		}
		m.sessions = make(map[string]*sessionRecord)
		m.mu.Unlock()
	}

	if err := m.loadSessions(); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		url, err := m.launch()
		if err != nil {
			return err
		}
		controlURL = url
	}

	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.mu.Lock()
	m.browser = browser
	m.controlURL = controlURL
	m.mu.Unlock()
	log.Printf("Browser connected at %s", controlURL)
	return nil
}

func (m *SessionManager) launch() (string, error) {
	bin := m.cfg.Launch[0]
	l := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
	for _, raw := range m.cfg.Launch[1:] {
		name, val, hasVal := splitFlag(raw)
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	url, err := l.Launch()
	if err == nil {
		return url, nil
	}

	// Let Rod pick the port and defaults.
	alt, altErr := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless()).Launch()
	if altErr != nil {
		return "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
	}
	return alt, nil
}

// ControlURL returns the WebSocket debugger URL for the connected browser.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is currently connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes tracked pages and the underlying browser.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, record := range m.sessions {
		if record.cancel != nil {
			record.cancel()
		}
		if record.page != nil {
			_ = record.page.Close()
		}
		delete(m.sessions, id)
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	log.Printf("Browser shutdown complete")
	return err
}

// List returns lightweight metadata for all known sessions.
func (m *SessionManager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Session, 0, len(m.sessions))
	for _, record := range m.sessions {
		results = append(results, record.snapshot())
	}
	return results
}

// CreateSession opens a new page in an incognito context and tracks it.
func (m *SessionManager) CreateSession(ctx context.Context, url string) (*Session, error) {
	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		log.Printf("warning: failed to set viewport: %v", err)
	}

	if url != "" {
		if err := page.Timeout(m.cfg.NavigationTimeout()).Navigate(url); err != nil {
			log.Printf("warning: navigate %s: %v", url, err)
		} else {
			_ = page.Timeout(m.cfg.NavigationTimeout()).WaitLoad()
		}
	}

	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		URL:        url,
		Status:     "active",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	m.track(meta, page)
	_ = m.persistSessions()

	return &meta, nil
}

// Attach binds to an existing target by TargetID.
func (m *SessionManager) Attach(ctx context.Context, targetID string) (*Session, error) {
	m.mu.RLock()
	browser := m.browser
	m.mu.RUnlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	page, err := browser.PageFromTarget(proto.TargetTargetID(targetID))
	if err != nil {
		return nil, fmt.Errorf("attach to target %s: %w", targetID, err)
	}

	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   targetID,
		Status:     "attached",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}
	if info, err := page.Info(); err == nil {
		meta.URL = info.URL
		meta.Title = info.Title
	}

	m.track(meta, page)
	_ = m.persistSessions()
	return &meta, nil
}

// track registers a live page and starts watching its navigations.
func (m *SessionManager) track(meta Session, page *rod.Page) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: page, cancel: cancel}
	m.mu.Unlock()

	m.watchNavigation(ctx, meta.ID, page)
}

// watchNavigation invalidates a session's React context and its component
// facts whenever the main frame navigates.
func (m *SessionManager) watchNavigation(ctx context.Context, sessionID string, page *rod.Page) {
	wait := page.Context(ctx).EachEvent(func(ev *proto.PageFrameNavigated) {
		if ev.Frame == nil || ev.Frame.ParentID != "" {
			return
		}
		now := time.Now()

		m.mu.Lock()
		if rec, ok := m.sessions[sessionID]; ok {
			if rec.react != nil {
				log.Printf("[session:%s] navigation reset react context (new URL: %s)", sessionID, ev.Frame.URL)
			}
			rec.react = nil
			rec.meta.URL = ev.Frame.URL
			rec.meta.LastActive = now
		}
		m.mu.Unlock()

		if m.engine == nil {
			return
		}
		if err := m.engine.RetractSession(ctx, sessionID, append(ReactPredicates, "current_url")...); err != nil {
			log.Printf("[session:%s] retract on navigation: %v", sessionID, err)
		}
		facts := []mangle.Fact{{
			Predicate: "current_url",
			Args:      []interface{}{sessionID, ev.Frame.URL},
			Timestamp: now,
		}}
		if err := m.engine.AddFacts(ctx, facts); err != nil {
			log.Printf("[session:%s] navigation fact error: %v", sessionID, err)
		}
	})
	go wait()
}

// Page returns the underlying Rod page for a session when present.
func (m *SessionManager) Page(sessionID string) (*rod.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return rec.page, true
}

// livePage is Page with errors for unknown and detached sessions.
func (m *SessionManager) livePage(sessionID string) (*rod.Page, error) {
	page, ok := m.Page(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if page == nil {
		return nil, fmt.Errorf("%w: %s", ErrDetachedSession, sessionID)
	}
	return page, nil
}

// UpdateMetadata allows tools to refresh metadata such as URL or title.
func (m *SessionManager) UpdateMetadata(sessionID string, updater func(Session) Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	rec.meta = updater(rec.meta)
}

// GetSession returns the current session metadata when available.
func (m *SessionManager) GetSession(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return rec.snapshot(), true
}

// React returns a copy of the session's React context, or nil when React has
// not been detected since the last navigation.
func (m *SessionManager) React(sessionID string) *ReactContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok || rec.react == nil {
		return nil
	}
	rc := *rec.react
	return &rc
}

func (m *SessionManager) setReact(sessionID string, rc *ReactContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[sessionID]; ok {
		rec.react = rc
		rec.meta.LastActive = time.Now()
	}
}

func (r *sessionRecord) snapshot() Session {
	s := r.meta
	s.ReactReady = r.react != nil && r.react.Loaded
	return s
}

// persistSessions writes session metadata to disk for continuity across restarts.
func (m *SessionManager) persistSessions() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	m.mu.RLock()
	sessions := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		sessions = append(sessions, rec.meta)
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.cfg.SessionStore), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.cfg.SessionStore, data, 0o644)
}

// loadSessions loads persisted metadata without attaching to pages.
func (m *SessionManager) loadSessions() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	data, err := os.ReadFile(m.cfg.SessionStore)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sessions {
		if _, live := m.sessions[s.ID]; live {
			continue
		}
		// attach-session rebinds a detached session to a live target.
		s.Status = "detached"
		s.ReactReady = false
		m.sessions[s.ID] = &sessionRecord{meta: s}
	}
	return nil
}

// splitFlag turns "--name=value" into its name and value.
func splitFlag(raw string) (name, value string, hasValue bool) {
	return strings.Cut(strings.TrimLeft(raw, "-"), "=")
}
