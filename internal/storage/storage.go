package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/models"
)

// JSONStorage keeps the ledger in a single JSON file.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
}

// Data is the on-disk ledger document.
type Data struct {
	LastUpdated time.Time         `json:"last_updated"`
	Positions   []models.Position `json:"positions"`
}

// NewJSONStorage creates a JSON-backed ledger at path. A missing file is an
// empty ledger; an unreadable one is an error.
func NewJSONStorage(path string) (*JSONStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	s := &JSONStorage{filepath: path}
	if _, err := os.Stat(path); err == nil {
		if _, err := s.LoadPositions(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}
	return s, nil
}

// LoadPositions reads the ledger.
func (s *JSONStorage) LoadPositions() ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.filepath)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Position{}, nil
	}
	if err != nil {
		return nil, err
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.filepath, err)
	}
	for i := range data.Positions {
		if err := data.Positions[i].Validate(); err != nil {
			return nil, fmt.Errorf("ledger entry %d: %w", i, err)
		}
	}
	if data.Positions == nil {
		data.Positions = []models.Position{}
	}
	return data.Positions, nil
}

// SavePositions replaces the ledger. The document is written to a temp file
// and renamed over the old one.
func (s *JSONStorage) SavePositions(positions []models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if positions == nil {
		positions = []models.Position{}
	}
	raw, err := json.MarshalIndent(Data{LastUpdated: time.Now().UTC(), Positions: positions}, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filepath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return err
	}

	// Atomic rename
	if err := os.Rename(tmpFile, s.filepath); err != nil {
		_ = os.Remove(tmpFile)
		return err
	}
	return nil
}

// Close is a no-op for file storage.
func (s *JSONStorage) Close() error { return nil }

// Path returns the ledger file location.
func (s *JSONStorage) Path() string { return s.filepath }
