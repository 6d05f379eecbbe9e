package store_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/simple-user-server/store"
)

type recordingSink struct {
	mu        sync.Mutex
	snapshots [][]store.Record
}

func (s *recordingSink) Persist(records []store.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, records)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func seeded(t *testing.T, sink store.Sink, records ...store.Record) *store.Users {
	t.Helper()
	b := store.NewMemoryBackend()
	require.NoError(t, b.Save(records))
	u := store.NewUsers(sink)
	u.Load(b)
	return u
}

func TestUsersNextID(t *testing.T) {
	u := store.NewUsers(nil)
	assert.Equal(t, 1, u.NextID())

	u = seeded(t, nil, store.Record{"id": 4}, store.Record{"id": 9}, store.Record{"id": 2})
	assert.Equal(t, 10, u.NextID())
}

func TestUsersCreate(t *testing.T) {
	sink := &recordingSink{}
	u := seeded(t, sink, store.Record{"id": 5, "name": "E"})

	rec := u.Create(store.Record{"id": 1, "name": "Ada"})

	id, _ := rec.ID()
	assert.Equal(t, 6, id, "client id must be overwritten by the next id")
	assert.Equal(t, "Ada", rec["name"])
	assert.Equal(t, 2, u.Len())
	assert.Equal(t, 1, sink.count())

	next := u.Create(store.Record{"name": "Bob"})
	nextID, _ := next.ID()
	assert.Greater(t, nextID, id)
}

func TestUsersCreateConcurrent(t *testing.T) {
	u := store.NewUsers(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.Create(store.Record{"name": "racer"})
		}()
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, id := range ids(t, u.List()) {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, 50)
}

func TestUsersUpsert(t *testing.T) {
	sink := &recordingSink{}
	u := seeded(t, sink, store.Record{"id": 1, "name": "A", "age": 20})

	t.Run("existing", func(t *testing.T) {
		rec, created := u.Upsert(1, store.Record{"id": 99, "age": 21, "city": "Oslo"})
		assert.False(t, created)
		assert.Equal(t, store.Record{"id": 1, "name": "A", "age": 21, "city": "Oslo"}, rec)
		assert.Equal(t, 1, u.Len())
	})

	t.Run("missing", func(t *testing.T) {
		rec, created := u.Upsert(42, store.Record{"name": "New"})
		assert.True(t, created)
		assert.Equal(t, store.Record{"id": 42, "name": "New"}, rec)
		assert.Equal(t, []int{1, 42}, ids(t, u.List()))
	})

	assert.Equal(t, 2, sink.count())
}

func TestUsersPatch(t *testing.T) {
	sink := &recordingSink{}
	u := seeded(t, sink, store.Record{"id": 1, "name": "A", "age": 20})

	t.Run("missing", func(t *testing.T) {
		_, err := u.Patch(2, store.Record{"name": "B"})
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.Equal(t, 1, u.Len())
		assert.Equal(t, 0, sink.count())
	})

	t.Run("merges and protects id", func(t *testing.T) {
		rec, err := u.Patch(1, store.Record{"id": 500, "age": 30})
		require.NoError(t, err)
		assert.Equal(t, store.Record{"id": 1, "name": "A", "age": 30}, rec)

		got, ok := u.Find(1)
		require.True(t, ok)
		assert.Equal(t, rec, got)
		assert.Equal(t, -1, u.FindIndex(500))
	})
}

func TestUsersDelete(t *testing.T) {
	sink := &recordingSink{}
	u := seeded(t, sink, store.Record{"id": 1}, store.Record{"id": 2}, store.Record{"id": 3})

	require.NoError(t, u.Delete(2))
	assert.Equal(t, []int{1, 3}, ids(t, u.List()))
	assert.Equal(t, 1, u.FindIndex(3))

	assert.ErrorIs(t, u.Delete(2), store.ErrNotFound)
	assert.Equal(t, 1, sink.count())
}

func TestUsersFilter(t *testing.T) {
	u := seeded(t, nil,
		store.Record{"id": 1, "name": "A", "age": 20},
		store.Record{"id": 2, "name": "B", "age": 30},
	)

	result := u.Filter(func(rec store.Record) bool { return rec["name"] == "B" })
	assert.Equal(t, []int{2}, ids(t, result))

	assert.Empty(t, u.Filter(func(store.Record) bool { return false }))
	assert.NotNil(t, u.Filter(func(store.Record) bool { return false }))
}

func TestUsersReturnsCopies(t *testing.T) {
	u := seeded(t, nil, store.Record{"id": 1, "name": "A"})

	rec, ok := u.Find(1)
	require.True(t, ok)
	rec["name"] = "mutated"

	again, _ := u.Find(1)
	assert.Equal(t, "A", again["name"])
}

func TestUsersSnapshotsAreStable(t *testing.T) {
	sink := &recordingSink{}
	u := seeded(t, sink, store.Record{"id": 1, "name": "A"})

	_, err := u.Patch(1, store.Record{"name": "B"})
	require.NoError(t, err)
	_, err = u.Patch(1, store.Record{"name": "C"})
	require.NoError(t, err)

	require.Equal(t, 2, sink.count())
	assert.Equal(t, "B", sink.snapshots[0][0]["name"])
	assert.Equal(t, "C", sink.snapshots[1][0]["name"])
}

func TestUsersLoad(t *testing.T) {
	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "users.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"oops":`), 0o644))
		b, err := store.NewJsonFileBackend(path)
		require.NoError(t, err)

		u := store.NewUsers(nil)
		u.Load(b)
		assert.Equal(t, 0, u.Len())
	})

	t.Run("missing file", func(t *testing.T) {
		b, err := store.NewJsonFileBackend(filepath.Join(t.TempDir(), "users.json"))
		require.NoError(t, err)

		u := store.NewUsers(nil)
		u.Load(b)
		assert.Equal(t, 0, u.Len())
		assert.Equal(t, 1, u.NextID())
	})

	t.Run("records without id are kept but unreachable", func(t *testing.T) {
		sink := &recordingSink{}
		u := seeded(t, sink, store.Record{"id": 1}, store.Record{"name": "orphan"}, store.Record{"id": "x"})
		require.Equal(t, 3, u.Len())
		assert.Equal(t, 2, u.NextID())

		_, found := u.Find(0)
		assert.False(t, found)

		u.Create(store.Record{"name": "new"})
		require.Equal(t, 1, sink.count())
		saved := sink.snapshots[0]
		require.Len(t, saved, 4)
		assert.Equal(t, "orphan", saved[1]["name"])
		assert.Equal(t, "x", saved[2]["id"])
	})

	t.Run("fractional form ids", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "users.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"id":1.0,"name":"A"},{"id":2e0,"name":"B"}]`), 0o644))
		b, err := store.NewJsonFileBackend(path)
		require.NoError(t, err)

		u := store.NewUsers(nil)
		u.Load(b)
		require.Equal(t, 2, u.Len())

		rec, found := u.Find(1)
		require.True(t, found)
		assert.Equal(t, "A", rec["name"])
		assert.Equal(t, 3, u.NextID())

		u.Create(store.Record{"name": "C"})
		require.NoError(t, b.Save(u.List()))

		records, err := b.Load()
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, ids(t, records))
		assert.Equal(t, "A", records[0]["name"])
	})

	t.Run("round trip", func(t *testing.T) {
		b, err := store.NewJsonFileBackend(filepath.Join(t.TempDir(), "users.json"))
		require.NoError(t, err)

		u := store.NewUsers(nil)
		u.Create(store.Record{"name": "A", "age": 20})
		u.Create(store.Record{"name": "B", "nested": map[string]any{"k": "v"}})
		u.Upsert(10, store.Record{"name": "J"})
		require.NoError(t, b.Save(u.List()))

		reloaded := store.NewUsers(nil)
		reloaded.Load(b)

		assert.Equal(t, ids(t, u.List()), ids(t, reloaded.List()))
		for i, rec := range reloaded.List() {
			assert.Equal(t, u.List()[i]["name"], rec["name"])
		}
		assert.Equal(t, map[string]any{"k": "v"}, reloaded.List()[1]["nested"])
	})
}
