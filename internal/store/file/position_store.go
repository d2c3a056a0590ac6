// Package file implements the position store as a single JSON document on
// local disk. The book is small (a handful of positions), so the full
// state is rewritten atomically after every cycle.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alanyoungcy/gembot/internal/domain"
)

// PositionStore implements domain.PositionStore over one JSON file.
type PositionStore struct {
	path string
}

// NewPositionStore creates a store writing to the given path. The parent
// directory is created if missing.
func NewPositionStore(path string) (*PositionStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file: create store dir %s: %w", dir, err)
		}
	}
	return &PositionStore{path: path}, nil
}

// Load reads the persisted book state. A missing file is a fresh start,
// not an error.
func (s *PositionStore) Load(_ context.Context) (domain.BookState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.BookState{}, nil
		}
		return domain.BookState{}, fmt.Errorf("file: read %s: %w", s.path, err)
	}

	var state domain.BookState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.BookState{}, fmt.Errorf("file: decode %s: %w", s.path, err)
	}
	return state, nil
}

// Save writes the full book state. The write goes through a temp file and
// rename so a crash mid-write never leaves a truncated document behind.
func (s *PositionStore) Save(_ context.Context, state domain.BookState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file: replace %s: %w", s.path, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
