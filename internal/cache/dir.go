package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DirStore keeps one JSON file per key in a directory. File names are the
// SHA-256 of the key so any key is a safe file name.
type DirStore struct {
	codec
	dir string
	mu  sync.Mutex
}

// NewDirStore creates a store rooted at dir. The directory is created on first write.
func NewDirStore(dir string, logger *slog.Logger) *DirStore {
	s := &DirStore{dir: dir}
	s.codec = newCodec(s, logger)
	return s
}

func (s *DirStore) get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (s *DirStore) put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	// Write then rename so readers never see a partial file.
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0644); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	return os.Rename(tmp, s.path(key))
}

// Clear removes the store directory after checking that it holds only store files.
func (s *DirStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading store directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			return fmt.Errorf("store directory contains subdirectories - refusing to delete for safety")
		}
		if filepath.Ext(entry.Name()) != ".json" {
			return fmt.Errorf("store directory contains non-store files - refusing to delete for safety")
		}
	}

	return os.RemoveAll(s.dir)
}

func (s *DirStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}
