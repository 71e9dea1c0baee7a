// Package models defines the domain types for Bragi.
package models

import "time"

// Record is a transient, read-only snapshot of one note row from the store.
type Record struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Trashed    bool      `json:"trashed"`
	Archived   bool      `json:"archived"`
	Pinned     bool      `json:"pinned"`
	Encrypted  bool      `json:"encrypted"`
	Tags       []string  `json:"tags,omitempty"`
}

// FieldChanges holds the proposed changes of a mutation. Nil pointers mean
// "leave the field as is"; a nil Tags slice means the tag set is unchanged.
type FieldChanges struct {
	Title    *string  `json:"title,omitempty"`
	Body     *string  `json:"body,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Trashed  *bool    `json:"trashed,omitempty"`
	Archived *bool    `json:"archived,omitempty"`
	Pinned   *bool    `json:"pinned,omitempty"`
}

// Empty reports whether the change set modifies nothing.
func (c FieldChanges) Empty() bool {
	return c.Title == nil && c.Body == nil && c.Tags == nil &&
		c.Trashed == nil && c.Archived == nil && c.Pinned == nil
}

// TouchesContent reports whether the change set can alter which queries the
// record matches. Flag-only changes cannot.
func (c FieldChanges) TouchesContent() bool {
	return c.Title != nil || c.Body != nil || c.Tags != nil
}

// MutationIntent is one write request against a single record.
// If ExpectedModified is set, the mutation must be rejected unless it equals
// the store's current modification timestamp at apply time.
type MutationIntent struct {
	ID               int64
	Changes          FieldChanges
	ExpectedModified *time.Time
}

// ScoredResult is one ranked search hit.
// Invariant: MatchedTerms is non-empty whenever Score > 0.
type ScoredResult struct {
	Record       Record   `json:"record"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	Snippets     []string `json:"snippets,omitempty"`
	TitleMatches int      `json:"title_matches"`
	BodyMatches  int      `json:"body_matches"`
}

// ScanFilter is the structural filter pushed down to the store when
// streaming candidate batches.
type ScanFilter struct {
	IncludeTrashed  bool
	IncludeArchived bool
}
