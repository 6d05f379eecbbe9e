package store

import (
	"log/slog"
	"slices"
	"sync"
)

// Sink receives a snapshot of the collection after every mutation.
type Sink interface {
	Persist(records []Record)
}

// Users is the ordered in-memory user collection. Insertion order is list
// order. Stored records are replaced, never modified in place, so snapshots
// handed to the Sink can share them. Safe for concurrent use.
type Users struct {
	mu      sync.RWMutex
	records []Record
	sink    Sink
}

// NewUsers returns an empty collection. sink may be nil, in which case
// mutations are kept in memory only.
func NewUsers(sink Sink) *Users {
	return &Users{records: []Record{}, sink: sink}
}

// Load replaces the collection with the backend's contents. Any read or
// parse failure leaves an empty collection; it is logged, never returned.
func (u *Users) Load(b Backend) {
	records, err := b.Load()
	if err != nil {
		slog.Warn("failed to load users, starting with an empty collection", "error", err)
		records = nil
	}

	// Records without an integer id are kept so they survive the next save;
	// no id lookup can reach them.
	loaded := make([]Record, 0, len(records))
	for i, rec := range records {
		if _, ok := rec.ID(); !ok {
			slog.Warn("stored user has no integer id", "position", i)
		}
		loaded = append(loaded, rec)
	}

	u.mu.Lock()
	u.records = loaded
	u.mu.Unlock()

	slog.Info("users loaded", "count", len(loaded))
}

// Len returns the number of records.
func (u *Users) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.records)
}

// NextID returns one more than the largest id, or 1 for an empty collection.
func (u *Users) NextID() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.nextID()
}

func (u *Users) nextID() int {
	maxID := 0
	for _, rec := range u.records {
		if id, ok := rec.ID(); ok && id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// List returns every record in collection order.
func (u *Users) List() []Record {
	return u.Filter(nil)
}

// Filter returns the records matching keep, in collection order. A nil keep
// matches everything.
func (u *Users) Filter(keep func(Record) bool) []Record {
	u.mu.RLock()
	defer u.mu.RUnlock()
	result := []Record{}
	for _, rec := range u.records {
		if keep == nil || keep(rec) {
			result = append(result, rec.clone())
		}
	}
	return result
}

// Find looks up a record by id.
func (u *Users) Find(id int) (Record, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	i := u.findIndex(id)
	if i < 0 {
		return nil, false
	}
	return u.records[i].clone(), true
}

// FindIndex returns the position of the record with id, or -1.
func (u *Users) FindIndex(id int) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.findIndex(id)
}

func (u *Users) findIndex(id int) int {
	return slices.IndexFunc(u.records, func(rec Record) bool {
		recID, ok := rec.ID()
		return ok && recID == id
	})
}

// Create assigns the next id and appends the record in one step, so two
// concurrent creates never receive the same id. Any "id" in payload is
// overwritten.
func (u *Users) Create(payload Record) Record {
	u.mu.Lock()
	defer u.mu.Unlock()

	rec := payload.clone()
	rec["id"] = u.nextID()
	u.records = append(u.records, rec)
	u.persist()
	return rec.clone()
}

// Upsert merges payload into the record with id, or appends a new record
// when none exists. The stored id is always the given id. created reports
// whether a record was appended.
func (u *Users) Upsert(id int, payload Record) (rec Record, created bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	i := u.findIndex(id)
	if i < 0 {
		rec = payload.clone()
		rec["id"] = id
		u.records = append(u.records, rec)
		created = true
	} else {
		rec = merge(u.records[i], payload, id)
		u.records[i] = rec
	}
	u.persist()
	return rec.clone(), created
}

// Patch shallow-merges payload into the record with id. The id itself cannot
// be changed through a patch. Unknown ids return ErrNotFound and leave the
// collection untouched.
func (u *Users) Patch(id int, payload Record) (Record, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	i := u.findIndex(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	rec := merge(u.records[i], payload, id)
	u.records[i] = rec
	u.persist()
	return rec.clone(), nil
}

// Delete removes the record with id, keeping the order of the rest.
func (u *Users) Delete(id int) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	i := u.findIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	u.records = slices.Delete(u.records, i, i+1)
	u.persist()
	return nil
}

// persist hands a snapshot to the sink. Called with u.mu held so snapshots
// reach the sink in mutation order; the sink must not block.
func (u *Users) persist() {
	if u.sink == nil {
		return
	}
	u.sink.Persist(slices.Clone(u.records))
}

func merge(existing, payload Record, id int) Record {
	rec := existing.clone()
	for k, v := range payload {
		rec[k] = v
	}
	rec["id"] = id
	return rec
}
