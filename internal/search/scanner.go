package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/halvard/bragi/internal/models"
)

// BatchSource streams candidate records from the store in bounded batches.
// Consumers depend on this narrow interface rather than the concrete store
// type to facilitate testing with fakes.
type BatchSource interface {
	FetchBatch(ctx context.Context, filter models.ScanFilter, offset, limit int) ([]models.Record, error)
}

// ScannerConfig holds corpus scanning options.
type ScannerConfig struct {
	// BatchSize bounds how many records are held in memory per store call.
	BatchSize int
	// MinScoreThreshold drops results scoring below it when positive.
	MinScoreThreshold float64
}

// DefaultScannerConfig returns the default scanning options.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{BatchSize: 200}
}

// Scanner streams records from the store, applies structural filters before
// scoring, and yields ranked results. A scan is restartable: every call
// begins at the first record, and no cursor state is retained between calls.
type Scanner struct {
	src    BatchSource
	scorer *Scorer
	cfg    ScannerConfig
}

// NewScanner creates a Scanner over src.
func NewScanner(src BatchSource, scorer *Scorer, cfg ScannerConfig) *Scanner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultScannerConfig().BatchSize
	}
	return &Scanner{src: src, scorer: scorer, cfg: cfg}
}

// Scan streams the corpus and returns every qualifying result, sorted by the
// query's sort key. An empty result is not an error. The scan stops promptly
// when ctx is cancelled, returning the context error.
//
// With an empty token sequence the query degenerates to a structural filter:
// all filter-passing records qualify with a zero score and recency ordering.
func (sc *Scanner) Scan(ctx context.Context, q models.Query, queryTokens []string) ([]models.ScoredResult, error) {
	filter := models.ScanFilter{
		IncludeTrashed:  q.IncludeTrashed,
		IncludeArchived: q.IncludeArchived,
	}

	var out []models.ScoredResult
	for offset := 0; ; offset += sc.cfg.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		batch, err := sc.src.FetchBatch(ctx, filter, offset, sc.cfg.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("search: fetch batch at offset %d: %w", offset, err)
		}

		for _, rec := range batch {
			if !sc.passesFilters(rec, q) {
				continue
			}
			res := sc.scorer.Score(queryTokens, rec)
			if len(queryTokens) > 0 && res.Score <= 0 {
				continue
			}
			if sc.cfg.MinScoreThreshold > 0 && res.Score < sc.cfg.MinScoreThreshold {
				continue
			}
			out = append(out, res)
		}

		if len(batch) < sc.cfg.BatchSize {
			break
		}
	}

	sortResults(out, q.Sort)
	return out, nil
}

// passesFilters applies the structural filters that are checked before any
// scoring work. Encrypted bodies cannot be scored and never match.
func (sc *Scanner) passesFilters(rec models.Record, q models.Query) bool {
	if rec.Encrypted {
		return false
	}
	if rec.Trashed && !q.IncludeTrashed {
		return false
	}
	if rec.Archived && !q.IncludeArchived {
		return false
	}
	if q.From != nil && rec.ModifiedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && rec.ModifiedAt.After(*q.To) {
		return false
	}
	return matchesTagFilter(rec, q)
}

func matchesTagFilter(rec models.Record, q models.Query) bool {
	if len(q.Tags) == 0 {
		return true
	}
	for _, want := range q.Tags {
		found := recordHasTag(rec, strings.TrimPrefix(want, string(TagMarker)), false)
		if q.TagMode == models.TagModeAll && !found {
			return false
		}
		if q.TagMode != models.TagModeAll && found {
			return true
		}
	}
	return q.TagMode == models.TagModeAll
}

// sortResults orders results deterministically: primary key per the sort key,
// ties broken by most-recently-modified first, then smallest identifier.
func sortResults(results []models.ScoredResult, key models.SortKey) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		switch key {
		case models.SortModified:
			if !a.Record.ModifiedAt.Equal(b.Record.ModifiedAt) {
				return a.Record.ModifiedAt.After(b.Record.ModifiedAt)
			}
		case models.SortCreated:
			if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
				return a.Record.CreatedAt.After(b.Record.CreatedAt)
			}
		default:
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if !a.Record.ModifiedAt.Equal(b.Record.ModifiedAt) {
				return a.Record.ModifiedAt.After(b.Record.ModifiedAt)
			}
		}
		return a.Record.ID < b.Record.ID
	})
}
