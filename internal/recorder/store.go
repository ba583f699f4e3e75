package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// PayloadStore writes raw payloads under {root}/{ext}/{titleID}.{ext}.
type PayloadStore struct {
	fs   afero.Fs
	root string
}

func NewPayloadStore(fs afero.Fs, root string) *PayloadStore {
	return &PayloadStore{fs: fs, root: root}
}

// Path returns where the payload for titleID would be written.
func (s *PayloadStore) Path(titleID, ext string) string {
	return filepath.Join(s.root, ext, titleID+"."+ext)
}

// Save writes payload, replacing any existing file for the same title ID.
func (s *PayloadStore) Save(titleID, ext string, payload []byte) (string, error) {
	path := s.Path(titleID, ext)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create payload directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, payload, 0o644); err != nil {
		return "", fmt.Errorf("failed to write payload %s: %w", path, err)
	}
	return path, nil
}

// DiscoveryLog is the append-only "{titleID}: {url}" record of every find.
type DiscoveryLog struct {
	mu   sync.Mutex
	file afero.File
	path string
}

// OpenDiscoveryLog opens path for appending, creating it and its directory
// if needed.
func OpenDiscoveryLog(fs afero.Fs, path string) (*DiscoveryLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create discovery log directory: %w", err)
		}
	}
	f, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open discovery log: %w", err)
	}
	return &DiscoveryLog{file: f, path: path}, nil
}

// Append writes one line. Lines from concurrent callers never interleave.
func (l *DiscoveryLog) Append(titleID, url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := fmt.Fprintf(l.file, "%s: %s\n", titleID, url); err != nil {
		return fmt.Errorf("failed to append to %s: %w", l.path, err)
	}
	return nil
}

func (l *DiscoveryLog) Path() string {
	return l.path
}

func (l *DiscoveryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("failed to sync discovery log: %w", err)
	}
	return l.file.Close()
}
