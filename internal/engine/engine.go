// Package engine coordinates tokenization, scanning, caching, and guarded
// mutation behind the two operations the request-handling layer consumes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/halvard/bragi/internal/apperr"
	"github.com/halvard/bragi/internal/cache"
	"github.com/halvard/bragi/internal/guard"
	"github.com/halvard/bragi/internal/models"
	"github.com/halvard/bragi/internal/search"
	"github.com/halvard/bragi/internal/signature"
	"github.com/halvard/bragi/internal/store"
	"github.com/halvard/bragi/internal/tags"
)

// Options configures a new Engine. Zero values fall back to defaults.
type Options struct {
	Scorer  search.ScorerConfig
	Scanner search.ScannerConfig
	Cache   cache.Config
	Clock   cache.Clock
	Logger  *slog.Logger
}

// Engine is the search and mutation core.
type Engine struct {
	store   store.Store
	scanner *search.Scanner
	cache   *cache.Cache
	guard   *guard.Guard
	tok     search.Tokenizer
	flight  singleflight.Group
	logger  *slog.Logger
}

// New creates an Engine over the given store.
func New(st store.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scorer := search.NewScorer(opts.Scorer)
	return &Engine{
		store:   st,
		scanner: search.NewScanner(st, scorer, opts.Scanner),
		cache:   cache.New(opts.Cache, opts.Clock, logger),
		guard:   guard.New(st),
		tok:     scorer.Tokenizer(),
		logger:  logger,
	}
}

// SearchResponse is a ranked result page.
type SearchResponse struct {
	Results []models.ScoredResult `json:"results"`
	Total   int                   `json:"total"`
	Cached  bool                  `json:"cached"`
}

// Search validates and normalizes the query, consults the cache, and on a
// miss scans and scores the corpus. Concurrent identical queries share one
// scan. Repeated invocation with no intervening mutation returns identical
// ordering and scores.
func (e *Engine) Search(ctx context.Context, q models.Query) (*SearchResponse, error) {
	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidQuery, err)
	}

	tokens := e.tok.Tokenize(q.Text)
	sig := signature.For(tokens, q)

	// Snapshot the generation before the cache lookup. Keying the flight by
	// it keeps a search issued after a completed invalidation from joining a
	// scan that read pre-invalidation data.
	gen := e.cache.Generation()

	if results, ok := e.cache.Get(sig); ok {
		return page(results, q, true), nil
	}

	v, err, _ := e.flight.Do(fmt.Sprintf("%d:%s", gen, sig), func() (any, error) {
		results, err := e.scanner.Scan(ctx, q, tokens)
		if err != nil {
			return nil, err
		}
		// A rejected Put means an invalidation ran mid-scan; the results
		// are still correct for this caller, just not cacheable.
		if !e.cache.Put(sig, results, gen) {
			e.logger.Debug("search: result not cached, invalidated during scan",
				slog.String("signature", sig[:12]))
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return page(v.([]models.ScoredResult), q, false), nil
}

// page slices the full ranked list down to the query's offset and limit.
func page(results []models.ScoredResult, q models.Query, cached bool) *SearchResponse {
	total := len(results)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	out := make([]models.ScoredResult, end-start)
	copy(out, results[start:end])
	return &SearchResponse{Results: out, Total: total, Cached: cached}
}

// MutateResult is the outcome of a mutation request. Warnings from tag
// sanitization accompany both outcomes and never block the operation.
type MutateResult struct {
	Applied         bool      `json:"applied"`
	NewModified     time.Time `json:"new_modified,omitempty"`
	CurrentModified time.Time `json:"current_modified,omitempty"`
	Warnings        []string  `json:"warnings,omitempty"`
}

// Mutate sanitizes the intent's tags, applies it under the concurrency
// guard, and invalidates affected cache entries. Content-bearing changes
// clear the whole cache: a changed title, body, or tag set can make the
// record match standing queries it previously did not.
func (e *Engine) Mutate(ctx context.Context, intent models.MutationIntent) (*MutateResult, error) {
	if intent.ID <= 0 {
		return nil, fmt.Errorf("%w: record id is required", apperr.ErrInvalidQuery)
	}
	if intent.Changes.Empty() {
		return nil, fmt.Errorf("%w: mutation has no field changes", apperr.ErrInvalidQuery)
	}

	var warnings []string
	if intent.Changes.Tags != nil {
		accepted, warns := tags.Sanitize(intent.Changes.Tags)
		intent.Changes.Tags = accepted
		warnings = warns
	}

	res, err := e.guard.CheckAndApply(ctx, intent)
	if err != nil {
		return nil, err
	}
	if !res.Applied {
		e.logger.Info("mutate: conflict",
			slog.Int64("id", intent.ID),
			slog.Time("current_modified", res.CurrentModified))
		return &MutateResult{CurrentModified: res.CurrentModified, Warnings: warnings}, nil
	}

	if intent.Changes.TouchesContent() {
		e.cache.Clear()
	} else {
		e.cache.InvalidateIDs([]int64{intent.ID})
	}

	return &MutateResult{Applied: true, NewModified: res.NewModified, Warnings: warnings}, nil
}

// InvalidateFor removes cached results referencing any of the given records.
func (e *Engine) InvalidateFor(ids []int64) {
	e.cache.InvalidateIDs(ids)
}

// InvalidateAll clears the result cache. Used when the affected record set
// cannot be determined, such as after out-of-band writes to the database.
func (e *Engine) InvalidateAll() {
	e.cache.Clear()
}

// StartSweep runs the advisory cache sweep until ctx is cancelled.
func (e *Engine) StartSweep(ctx context.Context, interval time.Duration) {
	e.cache.StartSweep(ctx, interval)
}

// CacheLen reports resident cache entries; exposed for readiness and tests.
func (e *Engine) CacheLen() int {
	return e.cache.Len()
}
