package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/linkscope/linkscope/pkg/types"
)

// FileStore is a Repository backed by a JSON array in a single file. Every
// change rewrites the file through a temp file and rename, so a crash leaves
// either the old or the new contents.
type FileStore struct {
	mu      sync.Mutex
	path    string
	max     int
	entries []types.HistoryEntry
}

// OpenFile loads path, creating nothing until the first write. A missing
// file is an empty history. When maxEntries > 0 only the newest maxEntries
// entries are kept.
func OpenFile(path string, maxEntries int) (*FileStore, error) {
	fsx := &FileStore{path: path, max: maxEntries}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fsx, nil
	case err != nil:
		return nil, fmt.Errorf("history: reading %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fsx.entries); err != nil {
			return nil, fmt.Errorf("history: parsing %s: %w", path, err)
		}
	}
	slog.Info("history: loaded", "path", path, "entries", len(fsx.entries))
	return fsx, nil
}

func (f *FileStore) Append(e types.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := append(slices.Clone(f.entries), e)
	if f.max > 0 && len(next) > f.max {
		next = next[len(next)-f.max:]
	}
	return f.commit(next)
}

func (f *FileStore) List() ([]types.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.entries), nil
}

func (f *FileStore) Remove(ts time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, ok := removeOne(slices.Clone(f.entries), ts)
	if !ok {
		return false, nil
	}
	return true, f.commit(next)
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commit(nil)
}

// commit writes next to disk and, only on success, makes it current.
// Callers hold f.mu.
func (f *FileStore) commit(next []types.HistoryEntry) error {
	if next == nil {
		next = []types.HistoryEntry{}
	}
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encoding: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("history: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("history: writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("history: closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("history: replacing %s: %w", f.path, err)
	}
	f.entries = next
	return nil
}
