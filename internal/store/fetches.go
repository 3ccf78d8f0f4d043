package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"feedplay/internal/prefetch"
)

// FetchEntry is one persisted prefetch ledger row.
type FetchEntry struct {
	ID        int64
	SessionID string
	prefetch.FetchRecord
}

// FetchFilter narrows ListFetches. Zero fields match everything.
type FetchFilter struct {
	SessionID string
	Outcome   prefetch.Outcome
	Limit     int
}

// RecordFetch appends one finished prefetch task to the ledger.
func (s *Store) RecordFetch(ctx context.Context, sessionID string, rec prefetch.FetchRecord) error {
	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}
	_, err := s.execWithRetry(ctx, `INSERT INTO prefetch_fetches
		(session_id, url, outcome, started_at, finished_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, rec.URL, string(rec.Outcome), formatTime(rec.Started), formatTime(rec.Finished),
		rec.Duration().Milliseconds(), errText,
	)
	if err != nil {
		return fmt.Errorf("insert prefetch record: %w", err)
	}
	return nil
}

// ListFetches returns ledger rows in insertion order, keeping the most
// recent Limit rows when a limit is set.
func (s *Store) ListFetches(ctx context.Context, filter FetchFilter) ([]FetchEntry, error) {
	ctx = ensureContext(ctx)
	var (
		clauses []string
		args    []any
	)
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}
	query := "SELECT id, session_id, url, outcome, started_at, finished_at, error FROM prefetch_fetches"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	query = "SELECT * FROM (" + query + ") ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prefetch ledger: %w", err)
	}
	defer rows.Close()

	var out []FetchEntry
	for rows.Next() {
		var (
			entry             FetchEntry
			outcome           string
			started, finished string
			errText           sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.URL, &outcome, &started, &finished, &errText); err != nil {
			return nil, fmt.Errorf("scan prefetch record: %w", err)
		}
		entry.Outcome = prefetch.Outcome(outcome)
		entry.Started = parseTime(started)
		entry.Finished = parseTime(finished)
		entry.Error = errText.String
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Recorder returns a prefetch.Recorder that stamps rows with sessionID.
func (s *Store) Recorder(sessionID string) prefetch.Recorder {
	return sessionRecorder{store: s, sessionID: sessionID}
}

type sessionRecorder struct {
	store     *Store
	sessionID string
}

func (r sessionRecorder) RecordFetch(ctx context.Context, rec prefetch.FetchRecord) error {
	return r.store.RecordFetch(ctx, r.sessionID, rec)
}
