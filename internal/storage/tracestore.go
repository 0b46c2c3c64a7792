package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/agentpilot/agentpilot/internal/core"
	"github.com/agentpilot/agentpilot/pkg/models"
)

// TraceStore is the append-only store of decision/outcome records. Old
// records are compacted down to their metadata projection; compaction is a
// one-way move into the archive table, never reversed and never a deletion
// of the record as a whole.
type TraceStore interface {
	Append(rec models.TraceRecord) error
	Compact(olderThan time.Time) (int, error)
	Query(filter models.TraceFilter) ([]models.TraceRecord, error)
	Close() error
}

// traceTSFormat is the TEXT timestamp format for the ts columns. The
// fractional part is fixed-width so lexicographic comparison in SQL matches
// chronological order; RFC3339Nano trims trailing zeros and breaks that at
// second boundaries.
const traceTSFormat = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteTraceStore struct {
	db *sql.DB
}

// NewTraceStore opens (creating if necessary) the SQLite trace store at the
// given path and applies pending schema migrations.
func NewTraceStore(path string) (TraceStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &core.StorageError{Op: "opening database", Err: err}
	}
	// One writer at a time keeps physical appends serialized.
	db.SetMaxOpenConns(1)

	if err := migrateTraces(db); err != nil {
		_ = db.Close()
		return nil, &core.StorageError{Op: "migrating schema", Err: err}
	}
	return &sqliteTraceStore{db: db}, nil
}

// Append durably inserts one record. A ULID is assigned when the record has
// no id; an existing id is kept so callers can correlate externally.
func (s *sqliteTraceStore) Append(rec models.TraceRecord) error {
	if rec.Decision == "" {
		return &core.StorageError{Op: "appending record", Err: fmt.Errorf("decision must not be empty")}
	}
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO traces (id, ts, category, decision, outcome, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC().Format(traceTSFormat),
		rec.Category,
		rec.Decision,
		rec.Outcome,
		rec.Payload,
	)
	if err != nil {
		return &core.StorageError{Op: "appending record", Err: err}
	}
	return nil
}

// Compact moves every live record older than the threshold into the archive,
// keeping only the metadata projection and discarding the payload. The move
// happens in one transaction and returns the number of records compacted.
// Running twice with the same threshold compacts nothing the second time:
// the originals are already gone.
//
// Compact requires exclusive access to the store; callers must not run it
// while iterating an open Query result.
func (s *sqliteTraceStore) Compact(olderThan time.Time) (int, error) {
	cutoff := olderThan.UTC().Format(traceTSFormat)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, &core.StorageError{Op: "compacting: begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.Exec(`
		INSERT INTO trace_archive (id, ts, category, decision, outcome)
		SELECT id, ts, category, decision, outcome FROM traces WHERE ts < ?
	`, cutoff)
	if err != nil {
		return 0, &core.StorageError{Op: "compacting: archiving records", Err: err}
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return 0, &core.StorageError{Op: "compacting: counting archived records", Err: err}
	}

	if _, err := tx.Exec(`DELETE FROM traces WHERE ts < ?`, cutoff); err != nil {
		return 0, &core.StorageError{Op: "compacting: removing originals", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &core.StorageError{Op: "compacting: commit", Err: err}
	}
	return int(moved), nil
}

// Query returns records matching the filter from both the live and archive
// areas, newest first. Archived records carry Compacted=true and no payload.
func (s *sqliteTraceStore) Query(filter models.TraceFilter) ([]models.TraceRecord, error) {
	where, args := buildTraceWhere(filter)

	query := fmt.Sprintf(`
		SELECT id, ts, category, decision, outcome, payload, 0 AS compacted FROM traces %s
		UNION ALL
		SELECT id, ts, category, decision, outcome, '' AS payload, 1 AS compacted FROM trace_archive %s
		ORDER BY ts DESC
	`, where, where)
	args = append(args, args...)

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &core.StorageError{Op: "querying records", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var records []models.TraceRecord
	for rows.Next() {
		var rec models.TraceRecord
		var ts string
		var compacted int
		if err := rows.Scan(&rec.ID, &ts, &rec.Category, &rec.Decision, &rec.Outcome, &rec.Payload, &compacted); err != nil {
			return nil, &core.StorageError{Op: "querying records: scan", Err: err}
		}
		rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, &core.StorageError{Op: "querying records: parse timestamp", Err: err}
		}
		rec.Compacted = compacted == 1
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "querying records", Err: err}
	}
	return records, nil
}

// buildTraceWhere builds the shared WHERE clause for the live and archive
// selects.
func buildTraceWhere(filter models.TraceFilter) (string, []any) {
	var clauses []string
	var args []any

	if filter.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	if filter.Since != nil {
		clauses = append(clauses, "ts >= ?")
		args = append(args, filter.Since.UTC().Format(traceTSFormat))
	}
	if filter.Until != nil {
		clauses = append(clauses, "ts < ?")
		args = append(args, filter.Until.UTC().Format(traceTSFormat))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// Close closes the underlying database handle.
func (s *sqliteTraceStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &core.StorageError{Op: "closing database", Err: err}
	}
	return nil
}
