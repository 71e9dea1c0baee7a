package models

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// TagMode selects how a tag filter combines multiple tags.
type TagMode string

// Tag filter modes.
const (
	TagModeAny TagMode = "any"
	TagModeAll TagMode = "all"
)

// SortKey selects result ordering.
type SortKey string

// Sort keys.
const (
	SortRelevance SortKey = "relevance"
	SortModified  SortKey = "modified"
	SortCreated   SortKey = "created"
)

// Query is a normalized search request. It is immutable once constructed and
// forms the basis of the cache key.
type Query struct {
	Text            string
	Tags            []string
	TagMode         TagMode
	From            *time.Time
	To              *time.Time
	IncludeArchived bool
	IncludeTrashed  bool
	Sort            SortKey
	Limit           int
	Offset          int
}

// Normalize fills in defaulted fields and canonicalizes the tag filter.
// It must be called before Validate.
func (q *Query) Normalize() {
	// "#work" and "work" name the same tag; canonicalizing here keeps them
	// from producing distinct cache signatures.
	for i, t := range q.Tags {
		q.Tags[i] = strings.TrimPrefix(strings.TrimSpace(t), "#")
	}
	if q.TagMode == "" {
		q.TagMode = TagModeAny
	}
	if q.Sort == "" {
		q.Sort = SortRelevance
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// Validate checks the filter combination. A query that fails validation is
// rejected before any store access.
func (q *Query) Validate() error {
	if err := validation.ValidateStruct(q,
		validation.Field(&q.TagMode, validation.In(TagModeAny, TagModeAll)),
		validation.Field(&q.Sort, validation.In(SortRelevance, SortModified, SortCreated)),
		validation.Field(&q.Limit, validation.Min(1), validation.Max(500)),
		validation.Field(&q.Offset, validation.Min(0)),
	); err != nil {
		return err
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return fmt.Errorf("date range: from %s is after to %s", q.From.Format(time.RFC3339), q.To.Format(time.RFC3339))
	}
	return nil
}
