// Package store holds the in-memory user collection and the backends it is
// persisted to.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"strconv"
)

var (
	// ErrNotFound is returned when no record carries the requested id.
	ErrNotFound = errors.New("user not found")

	// ErrNotObject is returned when a payload is valid JSON but not an object.
	ErrNotObject = errors.New("payload is not a JSON object")
)

// Record is a single user entry. Apart from "id" every field is opaque
// client data stored verbatim.
type Record map[string]any

// ID returns the integer id of the record. Any integral JSON number counts.
func (r Record) ID() (int, bool) {
	switch v := r["id"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case json.Number:
		if n, err := strconv.Atoi(v.String()); err == nil {
			return n, true
		}
		// 1.0 and 1e0 name the same id as 1.
		if f, err := v.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int(f), true
		}
	}
	return 0, false
}

// clone returns a shallow copy. Nested values are never mutated once stored.
func (r Record) clone() Record {
	return maps.Clone(r)
}

// Backend is the interface that all persistence backends must implement.
// It operates on the whole collection at once; there is no incremental write.
type Backend interface {
	// Load returns the persisted collection in stored order.
	Load() ([]Record, error)

	// Save replaces the persisted collection with records.
	Save(records []Record) error

	// Close releases any resources held by the backend.
	Close() error
}

// DecodeRecord parses a request payload. Numbers are kept as json.Number so
// they are written back exactly as received.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid JSON: trailing data after value")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Record(obj), nil
}

// decodeRecords parses a persisted JSON array of records.
func decodeRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var records []Record
	if err := dec.Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}
