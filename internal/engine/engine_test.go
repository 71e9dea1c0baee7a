package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/halvard/bragi/internal/apperr"
	"github.com/halvard/bragi/internal/models"
	"github.com/halvard/bragi/internal/search"
	"github.com/halvard/bragi/internal/testutil"
)

func newTestEngine(t *testing.T) (*Engine, *testutil.FakeStore) {
	t.Helper()
	st := testutil.NewFakeStore()
	return New(st, Options{}), st
}

func seed(st *testutil.FakeStore) {
	st.Add(models.Record{ID: 1, Title: "Bear sightings", Body: "notes on bears", Tags: []string{"wildlife"}})
	st.Add(models.Record{ID: 2, Title: "Groceries", Body: "honey for the bear", Tags: []string{"errands"}})
	st.Add(models.Record{ID: 3, Title: "Weekly plan", Body: "nothing relevant"})
}

func TestSearch_RanksAndCaches(t *testing.T) {
	eng, st := newTestEngine(t)
	seed(st)

	first, err := eng.Search(context.Background(), models.Query{Text: "bear"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if first.Cached {
		t.Error("first search reported as cached")
	}
	if len(first.Results) != 2 || first.Results[0].Record.ID != 1 {
		t.Fatalf("Results = %+v, want records 1 (title match) then 2", first.Results)
	}

	second, err := eng.Search(context.Background(), models.Query{Text: "bear"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !second.Cached {
		t.Error("repeat search missed the cache")
	}
	if calls := st.FetchCalls; calls != 1 {
		t.Errorf("FetchCalls = %d, want 1 (second search served from cache)", calls)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	eng, st := newTestEngine(t)
	seed(st)

	q := models.Query{Text: "bear honey"}
	first, err := eng.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := eng.Search(context.Background(), q)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(again.Results) != len(first.Results) {
			t.Fatalf("result count changed between identical searches")
		}
		for j := range first.Results {
			if again.Results[j].Record.ID != first.Results[j].Record.ID ||
				again.Results[j].Score != first.Results[j].Score {
				t.Fatalf("ordering or scores changed between identical searches")
			}
		}
	}
}

func TestSearch_InvalidQuery(t *testing.T) {
	eng, _ := newTestEngine(t)

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, err := eng.Search(context.Background(), models.Query{Text: "bear", From: &from, To: &to})
	if !errors.Is(err, apperr.ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery for inverted date range", err)
	}

	_, err = eng.Search(context.Background(), models.Query{Text: "bear", Limit: 9999})
	if !errors.Is(err, apperr.ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery for oversized limit", err)
	}
}

func TestSearch_Pagination(t *testing.T) {
	eng, st := newTestEngine(t)
	for i := 0; i < 10; i++ {
		st.Add(models.Record{Body: "bear"})
	}

	pageOne, err := eng.Search(context.Background(), models.Query{Text: "bear", Limit: 4})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	pageTwo, err := eng.Search(context.Background(), models.Query{Text: "bear", Limit: 4, Offset: 4})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if pageOne.Total != 10 || pageTwo.Total != 10 {
		t.Errorf("Total = (%d, %d), want 10 on every page", pageOne.Total, pageTwo.Total)
	}
	if len(pageOne.Results) != 4 || len(pageTwo.Results) != 4 {
		t.Fatalf("page sizes = (%d, %d), want 4", len(pageOne.Results), len(pageTwo.Results))
	}
	if pageOne.Results[0].Record.ID == pageTwo.Results[0].Record.ID {
		t.Error("pages overlap")
	}
	if !pageTwo.Cached {
		t.Error("second page should hit the cache entry shared across pages")
	}

	past, err := eng.Search(context.Background(), models.Query{Text: "bear", Offset: 100})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(past.Results) != 0 || past.Total != 10 {
		t.Errorf("offset past end: len = %d, total = %d, want 0 and 10", len(past.Results), past.Total)
	}
}

func TestMutate_InvalidatesCache(t *testing.T) {
	eng, st := newTestEngine(t)
	seed(st)

	if _, err := eng.Search(context.Background(), models.Query{Text: "bear"}); err != nil {
		t.Fatal(err)
	}
	if eng.CacheLen() == 0 {
		t.Fatal("search did not populate the cache")
	}

	body := "updated text about a bear"
	res, err := eng.Mutate(context.Background(), models.MutationIntent{
		ID:      3,
		Changes: models.FieldChanges{Body: &body},
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if !res.Applied {
		t.Fatal("mutation without expected timestamp not applied")
	}
	if eng.CacheLen() != 0 {
		t.Error("content mutation left cache entries behind")
	}

	// Record 3 now matches the standing query.
	after, err := eng.Search(context.Background(), models.Query{Text: "bear"})
	if err != nil {
		t.Fatal(err)
	}
	if after.Cached {
		t.Error("search after mutation served from cache")
	}
	if len(after.Results) != 3 {
		t.Errorf("len(Results) = %d, want 3 (mutated record now matches)", len(after.Results))
	}
}

func TestMutate_FlagOnlyInvalidatesByID(t *testing.T) {
	eng, st := newTestEngine(t)
	seed(st)

	// Two cached queries: one referencing record 1, one not.
	if _, err := eng.Search(context.Background(), models.Query{Text: "sightings"}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Search(context.Background(), models.Query{Text: "weekly"}); err != nil {
		t.Fatal(err)
	}
	if eng.CacheLen() != 2 {
		t.Fatalf("CacheLen = %d, want 2", eng.CacheLen())
	}

	pinned := true
	res, err := eng.Mutate(context.Background(), models.MutationIntent{
		ID:      1,
		Changes: models.FieldChanges{Pinned: &pinned},
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if !res.Applied {
		t.Fatal("flag mutation not applied")
	}
	if eng.CacheLen() != 1 {
		t.Errorf("CacheLen = %d, want 1 (only the entry referencing record 1 dropped)", eng.CacheLen())
	}
}

func TestMutate_ConflictSurfacedAsResult(t *testing.T) {
	eng, st := newTestEngine(t)
	id := st.Add(models.Record{Title: "draft"})

	stale := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	title := "mine"
	res, err := eng.Mutate(context.Background(), models.MutationIntent{
		ID:               id,
		Changes:          models.FieldChanges{Title: &title},
		ExpectedModified: &stale,
	})
	if err != nil {
		t.Fatalf("Mutate: conflict must not be an error, got %v", err)
	}
	if res.Applied {
		t.Fatal("stale mutation applied")
	}
	if res.CurrentModified.IsZero() {
		t.Error("conflict result missing the store's current timestamp")
	}
}

func TestMutate_TagWarningsSurfaced(t *testing.T) {
	eng, st := newTestEngine(t)
	id := st.Add(models.Record{Title: "draft"})

	res, err := eng.Mutate(context.Background(), models.MutationIntent{
		ID:      id,
		Changes: models.FieldChanges{Tags: []string{"Work", "work", " "}},
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if !res.Applied {
		t.Fatal("mutation with tag warnings must still apply")
	}
	if len(res.Warnings) != 1 {
		t.Errorf("len(Warnings) = %d, want 1", len(res.Warnings))
	}
	rec, _ := st.Get(id)
	if len(rec.Tags) != 1 || rec.Tags[0] != "Work" {
		t.Errorf("stored Tags = %v, want [Work]", rec.Tags)
	}
}

func TestMutate_Validation(t *testing.T) {
	eng, st := newTestEngine(t)
	id := st.Add(models.Record{})

	if _, err := eng.Mutate(context.Background(), models.MutationIntent{ID: 0}); !errors.Is(err, apperr.ErrInvalidQuery) {
		t.Errorf("missing id: err = %v, want ErrInvalidQuery", err)
	}
	if _, err := eng.Mutate(context.Background(), models.MutationIntent{ID: id}); !errors.Is(err, apperr.ErrInvalidQuery) {
		t.Errorf("empty changes: err = %v, want ErrInvalidQuery", err)
	}
}

// stallingStore serves its first batch and then blocks the scan until
// released, so a mutation can complete while that scan is in flight.
type stallingStore struct {
	*testutil.FakeStore
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStore) FetchBatch(ctx context.Context, filter models.ScanFilter, offset, limit int) ([]models.Record, error) {
	if s.calls.Add(1) == 2 {
		close(s.entered)
		<-s.release
	}
	return s.FakeStore.FetchBatch(ctx, filter, offset, limit)
}

func TestSearch_AfterMutationNeverReturnsStaleContent(t *testing.T) {
	st := &stallingStore{
		FakeStore: testutil.NewFakeStore(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	st.Add(models.Record{ID: 1, Body: "old bear content"})
	st.Add(models.Record{ID: 2, Body: "filler"})
	eng := New(st, Options{Scanner: search.ScannerConfig{BatchSize: 1}})

	// First search reads record 1 before the mutation, then stalls.
	stale := make(chan struct{})
	go func() {
		defer close(stale)
		_, _ = eng.Search(context.Background(), models.Query{Text: "bear"})
	}()
	<-st.entered

	body := "nothing relevant now"
	res, err := eng.Mutate(context.Background(), models.MutationIntent{
		ID:      1,
		Changes: models.FieldChanges{Body: &body},
	})
	if err != nil || !res.Applied {
		t.Fatalf("Mutate: applied=%v err=%v", res != nil && res.Applied, err)
	}

	// A search issued after the mutation completed must not share the
	// still-running pre-mutation scan.
	after, err := eng.Search(context.Background(), models.Query{Text: "bear"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range after.Results {
		if r.Record.Body == "old bear content" {
			t.Fatal("search issued after a completed mutation returned pre-mutation content")
		}
	}
	if len(after.Results) != 0 {
		t.Errorf("len(Results) = %d, want 0 (record no longer matches)", len(after.Results))
	}

	close(st.release)
	<-stale

	// The stale flight must not have poisoned the cache either.
	final, err := eng.Search(context.Background(), models.Query{Text: "bear"})
	if err != nil {
		t.Fatal(err)
	}
	if len(final.Results) != 0 {
		t.Errorf("len(Results) = %d after stale scan finished, want 0", len(final.Results))
	}
}

func TestInvalidateAll(t *testing.T) {
	eng, st := newTestEngine(t)
	seed(st)

	if _, err := eng.Search(context.Background(), models.Query{Text: "bear"}); err != nil {
		t.Fatal(err)
	}
	eng.InvalidateAll()
	if eng.CacheLen() != 0 {
		t.Errorf("CacheLen = %d after InvalidateAll, want 0", eng.CacheLen())
	}
}
