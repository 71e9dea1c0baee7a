// Package store defines the row-oriented data source boundary and its SQLite
// adapter.
package store

import (
	"context"
	"time"

	"github.com/halvard/bragi/internal/models"
)

// Store is the read/write boundary to the note database. The core treats it
// as opaque and relies on it for no transactional guarantees beyond the
// single calls below.
type Store interface {
	// FetchBatch returns up to limit records starting at offset, ordered by
	// id. A short batch signals the end of the corpus.
	FetchBatch(ctx context.Context, filter models.ScanFilter, offset, limit int) ([]models.Record, error)

	// ModifiedAt returns the record's current modification timestamp.
	ModifiedAt(ctx context.Context, id int64) (time.Time, error)

	// ApplyMutation writes the field changes and returns the new
	// modification timestamp.
	ApplyMutation(ctx context.Context, id int64, changes models.FieldChanges) (time.Time, error)
}
