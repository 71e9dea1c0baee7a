package api

import (
	"time"

	"github.com/halvard/bragi/internal/models"
)

// SearchResponse wraps one ranked result page.
type SearchResponse struct {
	Results []models.ScoredResult `json:"results"`
	Total   int                   `json:"total"`
	Cached  bool                  `json:"cached"`
}

// MutateRequest is the request body for PATCH /notes/{id}. Absent fields are
// left unchanged; ExpectedModified, when present, must equal the record's
// current modification timestamp or the mutation is rejected.
type MutateRequest struct {
	Title            *string    `json:"title,omitempty"`
	Body             *string    `json:"body,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	Trashed          *bool      `json:"trashed,omitempty"`
	Archived         *bool      `json:"archived,omitempty"`
	Pinned           *bool      `json:"pinned,omitempty"`
	ExpectedModified *time.Time `json:"expected_modified,omitempty"`
}

// MutateResponse reports the outcome of a mutation.
type MutateResponse struct {
	Applied         bool       `json:"applied"`
	NewModified     *time.Time `json:"new_modified,omitempty"`
	CurrentModified *time.Time `json:"current_modified,omitempty"`
	Warnings        []string   `json:"warnings,omitempty"`
}

// InvalidateRequest names the records whose cached results must be dropped.
type InvalidateRequest struct {
	IDs []int64 `json:"ids"`
}
