// Package storage provides SQLite-backed persistence for runtime settings.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/densityscanner/settings.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "densityscanner", "settings.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings_kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS exchange_settings (
			exchange   TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      REAL NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (exchange, key)
		)`,
		`CREATE TABLE IF NOT EXISTS blacklist (
			scope      TEXT NOT NULL,
			ticker     TEXT NOT NULL,
			listed     INTEGER NOT NULL DEFAULT 1,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (scope, ticker)
		)`,
		`CREATE TABLE IF NOT EXISTS ticker_overrides (
			scope      TEXT NOT NULL,
			ticker     TEXT NOT NULL,
			min_size   REAL NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (scope, ticker)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func now() int64 { return time.Now().UnixNano() }

func (s *Storage) SetValue(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings_kv (key, value, updated_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, now())
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Values() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings_kv`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		values[k] = v
	}
	return values, rows.Err()
}

func (s *Storage) SetExchangeValue(exchange, key string, value float64) error {
	_, err := s.db.Exec(`
		INSERT INTO exchange_settings (exchange, key, value, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(exchange, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		exchange, key, value, now())
	if err != nil {
		return fmt.Errorf("failed to save %s.%s: %w", exchange, key, err)
	}
	return nil
}

func (s *Storage) ExchangeValues() (map[string]map[string]float64, error) {
	rows, err := s.db.Query(`SELECT exchange, key, value FROM exchange_settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]float64)
	for rows.Next() {
		var exchange, key string
		var value float64
		if err := rows.Scan(&exchange, &key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan exchange setting: %w", err)
		}
		if out[exchange] == nil {
			out[exchange] = make(map[string]float64)
		}
		out[exchange][key] = value
	}
	return out, rows.Err()
}

func (s *Storage) AddBlacklist(scope, ticker string) error {
	return s.setListed(scope, ticker, true)
}

// RemoveBlacklist records the removal rather than deleting the row, so a
// removed default stays removed.
func (s *Storage) RemoveBlacklist(scope, ticker string) error {
	return s.setListed(scope, ticker, false)
}

func (s *Storage) setListed(scope, ticker string, listed bool) error {
	_, err := s.db.Exec(`
		INSERT INTO blacklist (scope, ticker, listed, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(scope, ticker) DO UPDATE SET listed=excluded.listed, updated_at=excluded.updated_at`,
		scope, ticker, boolToInt(listed), now())
	if err != nil {
		return fmt.Errorf("failed to update blacklist: %w", err)
	}
	return nil
}

func (s *Storage) Blacklists() (map[string]map[string]bool, error) {
	rows, err := s.db.Query(`SELECT scope, ticker, listed FROM blacklist`)
	if err != nil {
		return nil, fmt.Errorf("failed to query blacklist: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]bool)
	for rows.Next() {
		var scope, ticker string
		var listed int
		if err := rows.Scan(&scope, &ticker, &listed); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist: %w", err)
		}
		if out[scope] == nil {
			out[scope] = make(map[string]bool)
		}
		out[scope][ticker] = listed != 0
	}
	return out, rows.Err()
}

func (s *Storage) SetTickerOverride(scope, ticker string, minSize float64) error {
	_, err := s.db.Exec(`
		INSERT INTO ticker_overrides (scope, ticker, min_size, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(scope, ticker) DO UPDATE SET min_size=excluded.min_size, updated_at=excluded.updated_at`,
		scope, ticker, minSize, now())
	if err != nil {
		return fmt.Errorf("failed to save ticker override: %w", err)
	}
	return nil
}

// RemoveTickerOverride stores a zero minimum, which readers treat as removed.
func (s *Storage) RemoveTickerOverride(scope, ticker string) error {
	return s.SetTickerOverride(scope, ticker, 0)
}

func (s *Storage) TickerOverrides() (map[string]map[string]float64, error) {
	rows, err := s.db.Query(`SELECT scope, ticker, min_size FROM ticker_overrides`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticker overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]float64)
	for rows.Next() {
		var scope, ticker string
		var minSize float64
		if err := rows.Scan(&scope, &ticker, &minSize); err != nil {
			return nil, fmt.Errorf("failed to scan ticker override: %w", err)
		}
		if out[scope] == nil {
			out[scope] = make(map[string]float64)
		}
		out[scope][ticker] = minSize
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
