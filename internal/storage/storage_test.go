package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/ivcrush/internal/models"
)

func testPosition(id, symbol string) models.Position {
	return *models.NewPosition(id, symbol, models.StrategyCalendar, 2, 1.10, 110, 150,
		models.Greeks{Delta: 0.01, Theta: 0.04, Vega: 0.09}, "technology")
}

// TestInterface runs the common contract against every backend
func TestInterface(t *testing.T) {
	backends := map[string]func(t *testing.T) Interface{
		"MockStorage": func(t *testing.T) Interface { return NewMockStorage() },
		"JSONStorage": func(t *testing.T) Interface {
			s, err := NewStorage(BackendJSON, filepath.Join(t.TempDir(), "ledger", "positions.json"))
			require.NoError(t, err)
			return s
		},
		"SQLiteStorage": func(t *testing.T) Interface {
			s, err := NewStorage(BackendSQLite, filepath.Join(t.TempDir(), "positions.db"))
			require.NoError(t, err)
			return s
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			testInterface(t, s)
		})
	}
}

func testInterface(t *testing.T, s Interface) {
	positions, err := s.LoadPositions()
	require.NoError(t, err)
	assert.Empty(t, positions)

	first, second := testPosition("pos-b", "AAPL"), testPosition("pos-a", "MSFT")
	require.NoError(t, second.Close("earnings passed"))
	require.NoError(t, s.SavePositions([]models.Position{first, second}))

	positions, err = s.LoadPositions()
	require.NoError(t, err)
	require.Len(t, positions, 2)
	// Insertion order, not ID order.
	assert.Equal(t, "pos-b", positions[0].ID)
	assert.Equal(t, "pos-a", positions[1].ID)
	assert.Equal(t, models.StateClosed, positions[1].State)
	assert.Equal(t, "earnings passed", positions[1].ExitReason)
	assert.Equal(t, first.Greeks, positions[0].Greeks)
	assert.Equal(t, "technology", positions[0].Sector)
	assert.True(t, first.EntryDate.Equal(positions[0].EntryDate))

	// Mutating the returned slice must not change what is stored.
	positions[0].Contracts = 99
	reloaded, err := s.LoadPositions()
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded[0].Contracts)

	require.NoError(t, s.SavePositions(nil))
	positions, err = s.LoadPositions()
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestJSONStorage_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	s, err := NewJSONStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.SavePositions([]models.Position{testPosition("pos-1", "NVDA")}))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	reopened, err := NewJSONStorage(path)
	require.NoError(t, err)
	positions, err := reopened.LoadPositions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "NVDA", positions[0].Symbol)
}

func TestJSONStorage_RejectsCorruptLedger(t *testing.T) {
	dir := t.TempDir()

	garbled := filepath.Join(dir, "garbled.json")
	require.NoError(t, os.WriteFile(garbled, []byte("{not json"), 0o600))
	_, err := NewJSONStorage(garbled)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"positions":[{"id":"x","symbol":"AAPL","contracts":0}]}`), 0o600))
	_, err = NewJSONStorage(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger entry 0")
}

func TestSQLiteStorage_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.db")
	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.SavePositions([]models.Position{testPosition("pos-1", "AMD"), testPosition("pos-2", "TSLA")}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()
	positions, err := reopened.LoadPositions()
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "TSLA", positions[1].Symbol)
}

func TestNewStorage_UnknownBackend(t *testing.T) {
	_, err := NewStorage("postgres", "x")
	assert.Error(t, err)
	_, err = NewStorage(BackendJSON, "")
	assert.Error(t, err)
}

func TestMockStorage_ErrorInjection(t *testing.T) {
	m := NewMockStorage()
	boom := errors.New("disk full")

	m.SetSaveError(boom)
	assert.ErrorIs(t, m.SavePositions([]models.Position{testPosition("pos-1", "AAPL")}), boom)
	m.SetSaveError(nil)

	m.SetLoadError(boom)
	_, err := m.LoadPositions()
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1, m.GetSaveCallCount())
	assert.Equal(t, 1, m.GetLoadCallCount())

	m.SetLoadError(nil)
	m.Seed(testPosition("pos-2", "AAPL"))
	positions, err := m.LoadPositions()
	require.NoError(t, err)
	assert.Len(t, positions, 1)
	assert.Equal(t, 1, m.GetSaveCallCount())
}
