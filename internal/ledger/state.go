package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"Divvy/internal/model"
)

// LoadState reads the ledger state from a JSON file. Returns nil if the file doesn't exist.
func LoadState(filePath string) (*model.LedgerState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var state model.LedgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return &state, nil
}

// SaveState writes the ledger state to a JSON file, replacing it atomically.
func SaveState(filePath string, state *model.LedgerState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}

// FileStore persists snapshots to a JSON state file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (s *FileStore) Save(state *model.LedgerState) error {
	return SaveState(s.Path, state)
}

// Open restores the ledger from path, or creates a fresh one owned by owner when no
// state file exists yet. The returned ledger saves back to path after every mutation.
func Open(path string, owner model.Address, opts Options) (*Ledger, error) {
	state, err := LoadState(path)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	opts.Store = NewFileStore(path)
	if state == nil {
		return New(owner, opts)
	}
	return Restore(state, opts)
}
