package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// FileExt is the extension of session log files.
const FileExt = ".ndjson"

// Recorder receives run events.
type Recorder interface {
	Record(Event) error
	Close() error
}

// Discard drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Event) error { return nil }
func (discard) Close() error { return nil }

// FileRecorder appends events to a file, one JSON object per line.
type FileRecorder struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Create opens a new log in dir named after the current time and testID.
func Create(dir, testID string) (*FileRecorder, error) {
	name := time.Now().UTC().Format("20060102T150405Z")
	if id := unsafeName.ReplaceAllString(testID, "_"); id != "" {
		name += "-" + id
	}
	return Open(filepath.Join(dir, name+FileExt))
}

// Open appends to the log at path, creating it and its directory if needed.
func Open(path string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating session log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	return &FileRecorder{f: f, path: path}, nil
}

// Record writes e as a single line.
func (r *FileRecorder) Record(e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", e.Kind, err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return os.ErrClosed
	}
	_, err = r.f.Write(line)
	return err
}

// Close closes the file. Later calls to Record fail with os.ErrClosed.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

func (r *FileRecorder) Path() string { return r.path }
