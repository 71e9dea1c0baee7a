package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/halvard/bragi/internal/apperr"
	"github.com/halvard/bragi/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	trashed     INTEGER NOT NULL DEFAULT 0,
	archived    INTEGER NOT NULL DEFAULT 0,
	pinned      INTEGER NOT NULL DEFAULT 0,
	encrypted   INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	modified_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_modified ON notes(modified_at);
`

// SQLite adapts a note database to the Store interface. Timestamps are
// stored as integer nanoseconds since the epoch so the equality comparison
// of the concurrency guard survives the round trip exactly.
type SQLite struct {
	conn *sql.DB
	now  func() time.Time
}

// Verify *SQLite satisfies Store at compile time.
var _ Store = (*SQLite)(nil)

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", errors.Join(apperr.ErrStoreUnavailable, err))
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{conn: conn, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// FetchBatch returns up to limit records starting at offset, ordered by id.
func (s *SQLite) FetchBatch(ctx context.Context, filter models.ScanFilter, offset, limit int) ([]models.Record, error) {
	where := make([]string, 0, 2)
	if !filter.IncludeTrashed {
		where = append(where, "trashed = 0")
	}
	if !filter.IncludeArchived {
		where = append(where, "archived = 0")
	}
	q := `SELECT id, title, body, tags, trashed, archived, pinned, encrypted, created_at, modified_at FROM notes`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id LIMIT ? OFFSET ?"

	rows, err := s.conn.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: fetch batch: %w", errors.Join(apperr.ErrStoreUnavailable, err))
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var (
			rec                                   models.Record
			tagsJSON                              string
			trashed, archived, pinned, encrypted  int
			createdNS, modifiedNS                 int64
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Body, &tagsJSON,
			&trashed, &archived, &pinned, &encrypted, &createdNS, &modifiedNS); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
			rec.Tags = nil
		}
		rec.Trashed = trashed != 0
		rec.Archived = archived != 0
		rec.Pinned = pinned != 0
		rec.Encrypted = encrypted != 0
		rec.CreatedAt = time.Unix(0, createdNS).UTC()
		rec.ModifiedAt = time.Unix(0, modifiedNS).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ModifiedAt returns the record's current modification timestamp.
func (s *SQLite) ModifiedAt(ctx context.Context, id int64) (time.Time, error) {
	var ns int64
	err := s.conn.QueryRowContext(ctx, `SELECT modified_at FROM notes WHERE id = ?`, id).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("store: record %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("store: modified at: %w", errors.Join(apperr.ErrStoreUnavailable, err))
	}
	return time.Unix(0, ns).UTC(), nil
}

// ApplyMutation writes the field changes and stamps a new modification time.
func (s *SQLite) ApplyMutation(ctx context.Context, id int64, changes models.FieldChanges) (time.Time, error) {
	set := make([]string, 0, 7)
	args := make([]any, 0, 8)
	if changes.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *changes.Title)
	}
	if changes.Body != nil {
		set = append(set, "body = ?")
		args = append(args, *changes.Body)
	}
	if changes.Tags != nil {
		tagsJSON, _ := json.Marshal(changes.Tags)
		set = append(set, "tags = ?")
		args = append(args, string(tagsJSON))
	}
	if changes.Trashed != nil {
		set = append(set, "trashed = ?")
		args = append(args, boolInt(*changes.Trashed))
	}
	if changes.Archived != nil {
		set = append(set, "archived = ?")
		args = append(args, boolInt(*changes.Archived))
	}
	if changes.Pinned != nil {
		set = append(set, "pinned = ?")
		args = append(args, boolInt(*changes.Pinned))
	}

	ts := s.now().UTC()
	set = append(set, "modified_at = ?")
	args = append(args, ts.UnixNano())
	args = append(args, id)

	res, err := s.conn.ExecContext(ctx,
		`UPDATE notes SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: apply mutation: %w", errors.Join(apperr.ErrStoreUnavailable, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("store: rows affected: %w", err)
	}
	if affected == 0 {
		return time.Time{}, fmt.Errorf("store: record %d: %w", id, apperr.ErrNotFound)
	}
	return time.Unix(0, ts.UnixNano()).UTC(), nil
}

// Insert adds a record and returns its assigned id. Used for seeding fresh
// databases and in tests; the core itself never creates records.
func (s *SQLite) Insert(ctx context.Context, rec models.Record) (int64, error) {
	tagsJSON, _ := json.Marshal(rec.Tags)
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}
	modified := rec.ModifiedAt
	if modified.IsZero() {
		modified = created
	}
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO notes (title, body, tags, trashed, archived, pinned, encrypted, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Title, rec.Body, string(tagsJSON),
		boolInt(rec.Trashed), boolInt(rec.Archived), boolInt(rec.Pinned), boolInt(rec.Encrypted),
		created.UnixNano(), modified.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("store: insert: %w", errors.Join(apperr.ErrStoreUnavailable, err))
	}
	return res.LastInsertId()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
