package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/halvard/bragi/internal/models"
	"github.com/halvard/bragi/internal/testutil"
)

func strptr(s string) *string { return &s }

func TestCheckAndApply_NoExpectedAlwaysApplies(t *testing.T) {
	st := testutil.NewFakeStore()
	id := st.Add(models.Record{Title: "before"})
	g := New(st)

	res, err := g.CheckAndApply(context.Background(), models.MutationIntent{
		ID:      id,
		Changes: models.FieldChanges{Title: strptr("after")},
	})
	if err != nil {
		t.Fatalf("CheckAndApply: %v", err)
	}
	if !res.Applied {
		t.Fatal("mutation without expected timestamp was not applied")
	}
	rec, _ := st.Get(id)
	if rec.Title != "after" {
		t.Errorf("Title = %q, want %q", rec.Title, "after")
	}
	if !res.NewModified.Equal(rec.ModifiedAt) {
		t.Errorf("NewModified = %v, want %v", res.NewModified, rec.ModifiedAt)
	}
}

func TestCheckAndApply_MatchingTimestampApplies(t *testing.T) {
	st := testutil.NewFakeStore()
	id := st.Add(models.Record{Title: "before"})
	g := New(st)

	current, err := st.ModifiedAt(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.CheckAndApply(context.Background(), models.MutationIntent{
		ID:               id,
		Changes:          models.FieldChanges{Title: strptr("after")},
		ExpectedModified: &current,
	})
	if err != nil {
		t.Fatalf("CheckAndApply: %v", err)
	}
	if !res.Applied {
		t.Fatal("mutation with matching timestamp was not applied")
	}
	if !res.NewModified.After(current) {
		t.Errorf("NewModified %v should advance past %v", res.NewModified, current)
	}
}

func TestCheckAndApply_StaleTimestampConflicts(t *testing.T) {
	st := testutil.NewFakeStore()
	id := st.Add(models.Record{Title: "before"})
	g := New(st)

	stale, _ := st.ModifiedAt(context.Background(), id)

	// Another writer updates the record first.
	if _, err := st.ApplyMutation(context.Background(), id, models.FieldChanges{Title: strptr("theirs")}); err != nil {
		t.Fatal(err)
	}
	current, _ := st.ModifiedAt(context.Background(), id)

	res, err := g.CheckAndApply(context.Background(), models.MutationIntent{
		ID:               id,
		Changes:          models.FieldChanges{Title: strptr("mine")},
		ExpectedModified: &stale,
	})
	if err != nil {
		t.Fatalf("CheckAndApply: %v", err)
	}
	if res.Applied {
		t.Fatal("stale mutation was applied")
	}
	if !res.CurrentModified.Equal(current) {
		t.Errorf("CurrentModified = %v, want %v", res.CurrentModified, current)
	}
	rec, _ := st.Get(id)
	if rec.Title != "theirs" {
		t.Errorf("Title = %q, store must be untouched on conflict", rec.Title)
	}
}

func TestCheckAndApply_FutureTimestampConflicts(t *testing.T) {
	st := testutil.NewFakeStore()
	id := st.Add(models.Record{Title: "before"})
	g := New(st)

	current, _ := st.ModifiedAt(context.Background(), id)
	future := current.Add(time.Hour)

	res, err := g.CheckAndApply(context.Background(), models.MutationIntent{
		ID:               id,
		Changes:          models.FieldChanges{Title: strptr("after")},
		ExpectedModified: &future,
	})
	if err != nil {
		t.Fatalf("CheckAndApply: %v", err)
	}
	if res.Applied {
		t.Error("mismatched timestamp applied; comparison must be equality, not ordering")
	}
}

func TestCheckAndApply_ConcurrentPairOneWinner(t *testing.T) {
	st := testutil.NewFakeStore()
	id := st.Add(models.Record{Title: "before"})
	g := New(st)

	expected, _ := st.ModifiedAt(context.Background(), id)

	const writers = 8
	applied := make([]bool, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := g.CheckAndApply(context.Background(), models.MutationIntent{
				ID:               id,
				Changes:          models.FieldChanges{Title: strptr("writer")},
				ExpectedModified: &expected,
			})
			if err != nil {
				t.Errorf("writer %d: %v", i, err)
				return
			}
			applied[i] = res.Applied
		}(i)
	}
	wg.Wait()

	var wins int
	for _, a := range applied {
		if a {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("%d writers applied against the same expected timestamp, want exactly 1", wins)
	}
}

func TestCheckAndApply_UnknownRecord(t *testing.T) {
	st := testutil.NewFakeStore()
	g := New(st)

	ts := time.Now()
	if _, err := g.CheckAndApply(context.Background(), models.MutationIntent{
		ID:               42,
		Changes:          models.FieldChanges{Title: strptr("x")},
		ExpectedModified: &ts,
	}); err == nil {
		t.Error("CheckAndApply on a missing record should error")
	}
}

func TestCheckAndApply_StoreErrorWrapped(t *testing.T) {
	st := testutil.NewFakeStore()
	id := st.Add(models.Record{})
	want := errors.New("write failed")
	st.ApplyErr = want
	g := New(st)

	_, err := g.CheckAndApply(context.Background(), models.MutationIntent{
		ID:      id,
		Changes: models.FieldChanges{Title: strptr("x")},
	})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want wrapped %v", err, want)
	}
}

func TestGuard_LockMapDoesNotLeak(t *testing.T) {
	st := testutil.NewFakeStore()
	g := New(st)

	for i := int64(1); i <= 50; i++ {
		st.Add(models.Record{ID: i})
		if _, err := g.CheckAndApply(context.Background(), models.MutationIntent{
			ID:      i,
			Changes: models.FieldChanges{Title: strptr("x")},
		}); err != nil {
			t.Fatal(err)
		}
	}

	g.mu.Lock()
	n := len(g.locks)
	g.mu.Unlock()
	if n != 0 {
		t.Errorf("len(locks) = %d after all mutations finished, want 0", n)
	}
}
