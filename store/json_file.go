package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JsonFileBackend stores the whole collection as one pretty-printed JSON
// array. Every save overwrites the file in full.
//
// Layout:
//
//	[
//	  {
//	    "id": 1,
//	    "name": "Ada"
//	  }
//	]
type JsonFileBackend struct {
	mu   sync.Mutex
	path string
}

func NewJsonFileBackend(path string) (*JsonFileBackend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &JsonFileBackend{path: path}, nil
}

// Path returns the file the collection is written to.
func (s *JsonFileBackend) Path() string {
	return s.path
}

// Load reads the collection. A missing file is an empty collection; a
// malformed file is reported so the caller can decide to start empty.
func (s *JsonFileBackend) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, err
	}
	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("malformed data file %s: %w", s.path, err)
	}
	return records, nil
}

func (s *JsonFileBackend) Save(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if records == nil {
		records = []Record{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o644)
}

func (s *JsonFileBackend) Close() error {
	return nil
}
