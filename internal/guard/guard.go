// Package guard enforces optimistic-concurrency semantics for record
// mutation.
//
// The check-then-apply sequence holds an exclusive section scoped to the
// target record's identifier only, so mutations of unrelated records never
// block each other.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/halvard/bragi/internal/models"
)

// Store is the slice of the store boundary the guard needs.
type Store interface {
	ModifiedAt(ctx context.Context, id int64) (time.Time, error)
	ApplyMutation(ctx context.Context, id int64, changes models.FieldChanges) (time.Time, error)
}

// Result is the outcome of a guarded apply. A conflict is a first-class
// result, not an error.
type Result struct {
	// Applied reports whether the mutation was written.
	Applied bool
	// NewModified is the store's modification timestamp after a successful
	// apply.
	NewModified time.Time
	// CurrentModified is the store's timestamp that defeated the intent's
	// expected value; set only on conflict.
	CurrentModified time.Time
}

// Guard serializes check-then-apply per record id.
type Guard struct {
	store Store

	mu    sync.Mutex
	locks map[int64]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Guard over store.
func New(store Store) *Guard {
	return &Guard{store: store, locks: make(map[int64]*recordLock)}
}

// CheckAndApply applies the intent under the record's exclusive section.
//
// Without an expected timestamp the mutation always applies (last-write-wins).
// With one, the store's current timestamp is read immediately before apply
// and compared by equality; ordering comparisons would let clock skew or
// backdating pass silently. Any mismatch yields a conflict result and the
// mutation is not applied.
func (g *Guard) CheckAndApply(ctx context.Context, intent models.MutationIntent) (*Result, error) {
	l := g.acquire(intent.ID)
	defer g.release(intent.ID, l)

	if intent.ExpectedModified != nil {
		current, err := g.store.ModifiedAt(ctx, intent.ID)
		if err != nil {
			return nil, fmt.Errorf("guard: read modification timestamp: %w", err)
		}
		if !current.Equal(*intent.ExpectedModified) {
			return &Result{CurrentModified: current}, nil
		}
	}

	ts, err := g.store.ApplyMutation(ctx, intent.ID, intent.Changes)
	if err != nil {
		return nil, fmt.Errorf("guard: apply mutation: %w", err)
	}
	return &Result{Applied: true, NewModified: ts}, nil
}

// acquire locks the record's mutex, creating it on first use. The refcount
// lets release delete idle locks so the map does not grow with the corpus.
func (g *Guard) acquire(id int64) *recordLock {
	g.mu.Lock()
	l, ok := g.locks[id]
	if !ok {
		l = &recordLock{}
		g.locks[id] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return l
}

func (g *Guard) release(id int64, l *recordLock) {
	l.mu.Unlock()

	g.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(g.locks, id)
	}
	g.mu.Unlock()
}
