package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SqliteBackend stores the collection in a single SQLite table. Position
// keeps insertion order so a reload lists records exactly as before.
//
// Tables:
//
//	users(position, id, data)  PRIMARY KEY (position)
type SqliteBackend struct {
	mu sync.Mutex
	db *sql.DB
}

func NewSqliteBackend(dbPath string) (*SqliteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS users (
		position INTEGER PRIMARY KEY,
		id INTEGER,
		data TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteBackend{db: db}, nil
}

func (s *SqliteBackend) Close() error {
	return s.db.Close()
}

func (s *SqliteBackend) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT data FROM users ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rec, err := DecodeRecord([]byte(raw))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Save replaces the table contents in one transaction.
func (s *SqliteBackend) Save(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM users"); err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO users (position, id, data) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range records {
		var id any
		if n, ok := rec.ID(); ok {
			id = n
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(i, id, string(b)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
