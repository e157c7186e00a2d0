// Package storage persists the position ledger.
package storage

import (
	"fmt"
	"strings"

	"github.com/eddiefleurent/ivcrush/internal/models"
)

// Interface defines the contract for position ledger persistence.
//
// Implementations must be safe for concurrent use - callers can assume all methods
// are goroutine-safe. The ledger is written whole: SavePositions replaces the
// stored list, and LoadPositions returns it in insertion order.
type Interface interface {
	LoadPositions() ([]models.Position, error)
	SavePositions(positions []models.Position) error
	Close() error
}

// Backend names.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// NewStorage creates the configured storage backend.
func NewStorage(backend, path string) (Interface, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendJSON:
		return NewJSONStorage(path)
	case BackendSQLite:
		return NewSQLiteStorage(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*SQLiteStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
