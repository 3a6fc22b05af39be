package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/zigvm/internal/logging"
)

// schemaVersion is the current config store schema version.
const schemaVersion = 1

// Store reads and writes the config store file.
type Store struct {
	path   string
	logger logging.Logger
}

// New creates a store backed by the given file path.
// A nil logger defaults to a no-op logger.
func New(path string, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the store's file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current state from disk.
// A missing file yields a fresh empty state. A corrupt file also
// yields a fresh state, with a warning, so a damaged store never
// blocks the tool.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read config store: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("config store is corrupt, reinitializing", "path", s.path, "error", err)
		return NewState(), nil
	}

	if state.Installs == nil {
		state.Installs = make(map[string]*InstalledVersion)
	}
	return &state, nil
}

// Save writes the state to disk atomically.
// Uses write-then-rename so a crash mid-write never corrupts the
// previous valid state.
func (s *Store) Save(state *State) error {
	state.Version = schemaVersion

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config store: %w", err)
	}

	if err := writeFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("write config store: %w", err)
	}
	return nil
}

// Update loads the state, applies fn, and saves the result.
// If fn returns an error nothing is written.
func (s *Store) Update(fn func(*State) error) error {
	state, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.Save(state)
}

// Get returns the record for a version, or nil if absent.
func (s *Store) Get(version string) (*InstalledVersion, error) {
	state, err := s.Load()
	if err != nil {
		return nil, err
	}
	return state.Installs[version], nil
}

// writeFileAtomic writes data to path via a temporary file and rename,
// then syncs the containing directory for durability.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return fmt.Errorf("write temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up temp file on error
		return fmt.Errorf("rename temporary file: %w", err)
	}

	// Sync directory for durability
	df, err := os.Open(dir)
	if err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			df.Close()
			return fmt.Errorf("sync directory: %w", syncErr)
		}
		df.Close()
	}

	return nil
}
