package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level resq config.
	WorkspaceDirName = ".resq"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for the resq MCP server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Browser  BrowserConfig  `yaml:"browser"`
	MCP      MCPConfig      `yaml:"mcp"`
	Mangle   MangleConfig   `yaml:"mangle"`
	Query    QueryConfig    `yaml:"query"`
	Recorder RecorderConfig `yaml:"recorder"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command (e.g., ["chrome", "--remote-debugging-port=9222"]).
	Launch []string `yaml:"launch"`
	// AutoStart controls whether the server launches/attaches to Chrome at startup.
	AutoStart bool `yaml:"auto_start"`
	// Headless controls whether Chrome runs in headless mode (default: true).
	Headless *bool `yaml:"headless"`
	// Default navigation timeout (e.g., "15s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	// Default timeout when attaching to an existing target (e.g., "10s").
	DefaultAttachTimeout string `yaml:"default_attach_timeout"`
	// Optional path to persist session metadata between server restarts.
	SessionStore string `yaml:"session_store"`
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// MangleConfig controls the embedded deductive engine.
type MangleConfig struct {
	Enable bool `yaml:"enable"`
	// SchemaPath points at an extra .mg file loaded after the built-in React schema.
	SchemaPath      string `yaml:"schema_path"`
	DisableBuiltin  bool   `yaml:"disable_builtin_rules"`
	FactBufferLimit int    `yaml:"fact_buffer_limit"`
}

// QueryConfig bounds component queries and the React readiness wait.
type QueryConfig struct {
	// MaxDepth bounds how deep the component tree is normalized (default: 1000).
	MaxDepth int `yaml:"max_depth"`
	// WaitTimeout is how long wait-for-react polls before giving up (e.g., "5s").
	WaitTimeout string `yaml:"wait_timeout"`
	// PollInterval is the delay between readiness probes (e.g., "200ms").
	PollInterval string `yaml:"poll_interval"`
	// RootSelector pins the React container; empty scans the document.
	RootSelector string `yaml:"root_selector"`
	// MaxFibers caps how many fibers one snapshot serializes.
	MaxFibers int `yaml:"max_fibers"`
	// MaxValueDepth caps how deep props/state values are serialized.
	MaxValueDepth int `yaml:"max_value_depth"`
}

// RecorderConfig controls the JSONL query recorder.
type RecorderConfig struct {
	Enable bool   `yaml:"enable"`
	Dir    string `yaml:"dir"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "resq-mcp",
			Version: "0.1.0",
			LogFile: "resq-mcp.log",
		},
		Browser: BrowserConfig{
			AutoStart:                true,
			DefaultNavigationTimeout: "15s",
			DefaultAttachTimeout:     "10s",
			SessionStore:             "sessions.json",
			ViewportWidth:            1920,
			ViewportHeight:           1080,
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
		Mangle: MangleConfig{
			Enable:          true,
			FactBufferLimit: 8192,
		},
		Query: QueryConfig{
			MaxDepth:      1000,
			WaitTimeout:   "5s",
			PollInterval:  "200ms",
			MaxFibers:     200000,
			MaxValueDepth: 32,
		},
		Recorder: RecorderConfig{
			Enable: false,
			Dir:    "data/recordings",
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .resq/config.yaml file.
// Returns the workspace root directory (parent of .resq/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace merges config layers:
//
//	DefaultConfig() <- .resq/config.yaml <- explicit --config <- CLI flags
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .resq/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "schemas"),
		filepath.Join(wsDir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# resq project-level configuration
# Values here override defaults but are overridden by --config and CLI flags.

# query:
#   root_selector: "#root"
#   max_depth: 1000
#   wait_timeout: "10s"

# mangle:
#   schema_path: ".resq/schemas/project.mg"

# recorder:
#   enable: true
#   dir: "data/recordings"

# browser:
#   headless: false
#   viewport_width: 1280
#   viewport_height: 720
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	gitignoreContent := "# Runtime data (logs, sessions, recordings)\ndata/\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Browser.SessionStore = resolve(cfg.Browser.SessionStore)
	cfg.Mangle.SchemaPath = resolve(cfg.Mangle.SchemaPath)
	cfg.Recorder.Dir = resolve(cfg.Recorder.Dir)
	return cfg
}

// ErrNoBrowserEndpoint is returned by Validate when auto_start is set but
// there is nothing to connect to or launch.
var ErrNoBrowserEndpoint = errors.New("browser.debugger_url or browser.launch must be provided")

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Browser.AutoStart {
		if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
			return ErrNoBrowserEndpoint
		}
	}
	if c.Query.MaxDepth < 0 {
		return errors.New("query.max_depth must not be negative")
	}
	if c.Query.MaxFibers < 0 || c.Query.MaxValueDepth < 0 {
		return errors.New("query.max_fibers and query.max_value_depth must not be negative")
	}
	return nil
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return parseDuration(b.DefaultNavigationTimeout, 15*time.Second)
}

// AttachTimeout returns the parsed attach timeout with a sane default.
func (b BrowserConfig) AttachTimeout() time.Duration {
	return parseDuration(b.DefaultAttachTimeout, 10*time.Second)
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

// GetMaxDepth returns the normalization depth limit (default: 1000).
func (q QueryConfig) GetMaxDepth() int {
	if q.MaxDepth <= 0 {
		return 1000
	}
	return q.MaxDepth
}

// GetWaitTimeout returns the readiness timeout with a sane default.
func (q QueryConfig) GetWaitTimeout() time.Duration {
	return parseDuration(q.WaitTimeout, 5*time.Second)
}

// GetPollInterval returns the readiness poll interval with a sane default.
func (q QueryConfig) GetPollInterval() time.Duration {
	return parseDuration(q.PollInterval, 200*time.Millisecond)
}

// GetMaxFibers returns the snapshot fiber cap (default: 200000).
func (q QueryConfig) GetMaxFibers() int {
	if q.MaxFibers <= 0 {
		return 200000
	}
	return q.MaxFibers
}

// GetMaxValueDepth returns the props/state serialization depth (default: 32).
func (q QueryConfig) GetMaxValueDepth() int {
	if q.MaxValueDepth <= 0 {
		return 32
	}
	return q.MaxValueDepth
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
