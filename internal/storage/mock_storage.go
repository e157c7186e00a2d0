package storage

import (
	"sync"

	"github.com/eddiefleurent/ivcrush/internal/models"
)

// MockStorage implements Interface in memory for testing
type MockStorage struct {
	saveError     error
	loadError     error
	positions     []models.Position
	saveCallCount int
	loadCallCount int
	mu            sync.Mutex
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{}
}

// LoadPositions returns a copy of the stored ledger.
func (m *MockStorage) LoadPositions() ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCallCount++
	if m.loadError != nil {
		return nil, m.loadError
	}
	return append([]models.Position{}, m.positions...), nil
}

// SavePositions stores a copy of the ledger unless a save error is set.
func (m *MockStorage) SavePositions(positions []models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCallCount++
	if m.saveError != nil {
		return m.saveError
	}
	m.positions = append([]models.Position{}, positions...)
	return nil
}

// Close is a no-op.
func (m *MockStorage) Close() error { return nil }

// Mock control methods for testing

// SetSaveError makes subsequent saves fail.
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// SetLoadError makes subsequent loads fail.
func (m *MockStorage) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadError = err
}

// GetSaveCallCount returns how many times SavePositions was called.
func (m *MockStorage) GetSaveCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCallCount
}

// GetLoadCallCount returns how many times LoadPositions was called.
func (m *MockStorage) GetLoadCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCallCount
}

// Seed preloads the ledger without counting a save.
func (m *MockStorage) Seed(positions ...models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = append(m.positions, positions...)
}
