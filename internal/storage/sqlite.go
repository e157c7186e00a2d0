package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eddiefleurent/ivcrush/internal/models"
)

// SQLiteStorage keeps the ledger in an embedded SQLite database. Each
// position is stored as a JSON document with a few indexed columns.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStorage{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS positions (
		seq INTEGER NOT NULL,
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		strategy_type TEXT NOT NULL,
		state TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_positions_seq ON positions(seq);
	CREATE INDEX IF NOT EXISTS idx_positions_symbol_state ON positions(symbol, state);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LoadPositions reads the ledger in insertion order.
func (s *SQLiteStorage) LoadPositions() ([]models.Position, error) {
	rows, err := s.db.Query(`SELECT data FROM positions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	defer rows.Close()

	positions := []models.Position{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		var p models.Position
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decoding position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// SavePositions replaces the ledger in one transaction.
func (s *SQLiteStorage) SavePositions(positions []models.Position) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM positions`); err != nil {
		return fmt.Errorf("clearing positions: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO positions (seq, id, symbol, strategy_type, state, data)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range positions {
		var raw []byte
		if raw, err = json.Marshal(p); err != nil {
			return fmt.Errorf("encoding position %s: %w", p.ID, err)
		}
		if _, err = stmt.Exec(i, p.ID, p.Symbol, string(p.StrategyType), string(p.State), string(raw)); err != nil {
			return fmt.Errorf("inserting position %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
