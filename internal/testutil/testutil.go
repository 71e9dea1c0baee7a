// Package testutil provides shared test helpers: an in-memory store fake and
// temporary SQLite databases.
package testutil

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/halvard/bragi/internal/apperr"
	"github.com/halvard/bragi/internal/models"
	"github.com/halvard/bragi/internal/store"
)

// FakeStore is an in-memory store.Store for tests. It supports error
// injection and counts fetch calls so batch behavior can be asserted.
type FakeStore struct {
	mu      sync.Mutex
	records map[int64]models.Record
	nextID  int64

	// FetchErr, when set, is returned by every FetchBatch call.
	FetchErr error
	// ApplyErr, when set, is returned by every ApplyMutation call.
	ApplyErr error

	FetchCalls int
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{records: make(map[int64]models.Record), nextID: 1}
}

// Add inserts a record, assigning an id if unset, and returns the id.
func (f *FakeStore) Add(rec models.Record) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = f.nextID
	}
	if rec.ID >= f.nextID {
		f.nextID = rec.ID + 1
	}
	if rec.ModifiedAt.IsZero() {
		rec.ModifiedAt = time.Now().UTC()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.ModifiedAt
	}
	f.records[rec.ID] = rec
	return rec.ID
}

// Get returns a copy of the stored record.
func (f *FakeStore) Get(id int64) (models.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

// FetchBatch implements store.Store.
func (f *FakeStore) FetchBatch(ctx context.Context, filter models.ScanFilter, offset, limit int) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}

	ids := make([]int64, 0, len(f.records))
	for id, rec := range f.records {
		if rec.Trashed && !filter.IncludeTrashed {
			continue
		}
		if rec.Archived && !filter.IncludeArchived {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]models.Record, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, f.records[id])
	}
	return out, nil
}

// ModifiedAt implements store.Store.
func (f *FakeStore) ModifiedAt(_ context.Context, id int64) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return time.Time{}, apperr.ErrNotFound
	}
	return rec.ModifiedAt, nil
}

// ApplyMutation implements store.Store.
func (f *FakeStore) ApplyMutation(_ context.Context, id int64, changes models.FieldChanges) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ApplyErr != nil {
		return time.Time{}, f.ApplyErr
	}
	rec, ok := f.records[id]
	if !ok {
		return time.Time{}, apperr.ErrNotFound
	}
	if changes.Title != nil {
		rec.Title = *changes.Title
	}
	if changes.Body != nil {
		rec.Body = *changes.Body
	}
	if changes.Tags != nil {
		rec.Tags = changes.Tags
	}
	if changes.Trashed != nil {
		rec.Trashed = *changes.Trashed
	}
	if changes.Archived != nil {
		rec.Archived = *changes.Archived
	}
	if changes.Pinned != nil {
		rec.Pinned = *changes.Pinned
	}
	rec.ModifiedAt = rec.ModifiedAt.Add(time.Millisecond) // strictly advancing
	f.records[id] = rec
	return rec.ModifiedAt, nil
}

// Verify FakeStore satisfies store.Store at compile time.
var _ store.Store = (*FakeStore)(nil)

// TestDB creates a temporary SQLite store that is automatically cleaned up.
func TestDB(t *testing.T) *store.SQLite {
	t.Helper()
	f, err := os.CreateTemp("", "bragi-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	st, err := store.Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
