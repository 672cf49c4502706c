// Package cache persists prompttester state in a small key-value store.
//
// Every backend namespaces its keys with Prefix and treats storage failures
// as non-fatal: a failed write is logged and dropped, a failed read looks
// like a missing key.
package cache

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Prefix namespaces every key written by prompttester.
const Prefix = "prompttester:"

// Persisted keys.
const (
	KeyTests        = "tests"
	KeyActiveTestID = "activeTestId"
	KeyThresholds   = "thresholds"
)

// SnapshotKey returns the key under which the latest snapshot of testID is stored.
func SnapshotKey(testID string) string {
	return "snapshot:" + testID
}

// Store is a best-effort key-value store for JSON values and plain strings.
type Store interface {
	// Load decodes the value stored under key into v. It reports false when
	// the key is absent or cannot be read.
	Load(key string, v any) bool
	// Save encodes v as JSON and stores it under key.
	Save(key string, v any)
	LoadString(key string) (string, bool)
	SaveString(key, value string)
}

// rawKV is the storage primitive each backend provides. Keys passed to it
// are already prefixed.
type rawKV interface {
	get(key string) (string, bool, error)
	put(key, value string) error
}

// codec implements Store on top of a rawKV, swallowing and logging failures.
type codec struct {
	raw    rawKV
	logger *slog.Logger
}

func newCodec(raw rawKV, logger *slog.Logger) codec {
	if logger == nil {
		logger = slog.Default()
	}
	return codec{raw: raw, logger: logger}
}

func (c codec) Load(key string, v any) bool {
	s, ok := c.LoadString(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		c.logger.Warn("discarding unreadable stored value", "key", key, "error", err)
		return false
	}
	return true
}

func (c codec) Save(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cannot encode value for storage", "key", key, "error", err)
		return
	}
	c.SaveString(key, string(data))
}

func (c codec) LoadString(key string) (string, bool) {
	s, ok, err := c.raw.get(Prefix + key)
	if err != nil {
		c.logger.Warn("store read failed", "key", key, "error", err)
		return "", false
	}
	return s, ok
}

func (c codec) SaveString(key, value string) {
	if err := c.raw.put(Prefix+key, value); err != nil {
		c.logger.Warn("store write failed", "key", key, "error", err)
	}
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	codec
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{data: make(map[string]string)}
	s.codec = newCodec(s, nil)
	return s
}

func (s *MemoryStore) get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Keys returns the stored keys, including Prefix.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*DirStore)(nil)
)
