package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	MaxRotatedFiles = 3
	RecordingDir    = "data/recordings"
	filePrefix      = "run_"
)

// Event is a single line of a recording.
type Event struct {
	Timestamp time.Time   `json:"ts"`
	Type      string      `json:"type"`
	RunID     string      `json:"run_id"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data"`
}

// QueryEvent describes one executed component query.
type QueryEvent struct {
	Tool       string                 `json:"tool"`
	Selector   string                 `json:"selector,omitempty"`
	Props      interface{}            `json:"props,omitempty"`
	State      interface{}            `json:"state,omitempty"`
	Exact      bool                   `json:"exact,omitempty"`
	Matches    int                    `json:"matches"`
	QueryID    string                 `json:"query_id,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
	Error      string                 `json:"error,omitempty"`
}

// Recorder writes query events to rotating JSONL files, one per run.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
	runID    string
}

// NewRecorder creates a recorder rooted at basePath, creating the directory
// if needed.
func NewRecorder(basePath string) (*Recorder, error) {
	if basePath == "" {
		basePath = RecordingDir
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	return &Recorder{
		basePath: basePath,
	}, nil
}

// Start opens a new recording under a fresh run id and returns the id. Older
// recordings beyond MaxRotatedFiles are removed first.
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
		r.encoder = nil
	}

	if err := r.rotate(); err != nil {
		return "", fmt.Errorf("rotate recordings: %w", err)
	}

	runID := uuid.NewString()
	path := filepath.Join(r.basePath, filePrefix+runID+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create recording: %w", err)
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	r.runID = runID
	return runID, nil
}

// RunID returns the id of the open recording, or "" when none is open.
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return ""
	}
	return r.runID
}

// Path returns the file of the open recording.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return ""
	}
	return r.file.Name()
}

// Log writes an event to the open recording. It is a no-op on a nil or
// closed recorder.
func (r *Recorder) Log(eventType, sessionID string, data interface{}) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}

	evt := Event{
		Timestamp: time.Now(),
		Type:      eventType,
		RunID:     r.runID,
		SessionID: sessionID,
		Data:      data,
	}

	_ = r.encoder.Encode(evt)
}

// RecordQuery logs a query event.
func (r *Recorder) RecordQuery(sessionID string, q QueryEvent) {
	r.Log("query", sessionID, q)
}

// rotate keeps the newest MaxRotatedFiles-1 recordings so the next one fits.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	type recording struct {
		name string
		mod  time.Time
	}
	var runs []recording

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" || !strings.HasPrefix(e.Name(), filePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, recording{e.Name(), info.ModTime()})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].mod.After(runs[j].mod)
	})

	keep := MaxRotatedFiles - 1
	for i := keep; i < len(runs); i++ {
		_ = os.Remove(filepath.Join(r.basePath, runs[i].name))
	}
	return nil
}

// Close finishes the open recording.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.encoder = nil
		return err
	}
	return nil
}
