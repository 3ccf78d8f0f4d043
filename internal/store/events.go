package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"feedplay/internal/analytics"
)

// EventFilter narrows ListEvents. Zero fields match everything.
type EventFilter struct {
	SessionID string
	VideoID   string
	Type      analytics.EventType
	// Limit keeps the most recent rows; zero means no limit.
	Limit int
}

// EventCount aggregates events of one type.
type EventCount struct {
	Type   analytics.EventType `json:"type"`
	Count  int                 `json:"count"`
	Videos int                 `json:"videos"`
	First  time.Time           `json:"first"`
	Last   time.Time           `json:"last"`
}

// SessionSummary describes one recorded session.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Events    int       `json:"events"`
	Started   time.Time `json:"started"`
	Ended     time.Time `json:"ended"`
}

// FlushEvents satisfies analytics.Flusher.
func (s *Store) FlushEvents(ctx context.Context, events []analytics.Event) error {
	return s.AppendEvents(ctx, events)
}

// AppendEvents inserts events in one transaction.
func (s *Store) AppendEvents(ctx context.Context, events []analytics.Event) error {
	if len(events) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin events tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO analytics_events
			(session_id, event_type, video_id, post_id, occurred_at, metadata_json)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare event insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range events {
			var meta any
			if len(e.Metadata) > 0 {
				encoded, err := json.Marshal(e.Metadata)
				if err != nil {
					return fmt.Errorf("encode metadata for %s: %w", e.Type, err)
				}
				meta = string(encoded)
			}
			if _, err := stmt.ExecContext(ctx, e.SessionID, string(e.Type), e.VideoID, e.PostID, formatTime(e.Timestamp), meta); err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
		}
		return tx.Commit()
	})
}

// ListEvents returns matching events in chronological order.
func (s *Store) ListEvents(ctx context.Context, filter EventFilter) ([]analytics.Event, error) {
	ctx = ensureContext(ctx)
	where, args := eventWhere(filter)
	query := "SELECT session_id, event_type, video_id, post_id, occurred_at, metadata_json FROM analytics_events" +
		where + " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []analytics.Event
	for rows.Next() {
		var (
			e          analytics.Event
			eventType  string
			occurredAt string
			meta       *string
		)
		if err := rows.Scan(&e.SessionID, &eventType, &e.VideoID, &e.PostID, &occurredAt, &meta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = analytics.EventType(eventType)
		e.Timestamp = parseTime(occurredAt)
		if meta != nil && *meta != "" {
			if err := json.Unmarshal([]byte(*meta), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	slices.Reverse(events)
	return events, nil
}

// EventSummary counts events per type, optionally for one session.
func (s *Store) EventSummary(ctx context.Context, sessionID string) ([]EventCount, error) {
	ctx = ensureContext(ctx)
	where, args := eventWhere(EventFilter{SessionID: sessionID})
	rows, err := s.db.QueryContext(ctx,
		"SELECT event_type, COUNT(*), COUNT(DISTINCT video_id), MIN(occurred_at), MAX(occurred_at) FROM analytics_events"+
			where+" GROUP BY event_type ORDER BY event_type", args...)
	if err != nil {
		return nil, fmt.Errorf("query event summary: %w", err)
	}
	defer rows.Close()

	var out []EventCount
	for rows.Next() {
		var (
			c           EventCount
			eventType   string
			first, last string
		)
		if err := rows.Scan(&eventType, &c.Count, &c.Videos, &first, &last); err != nil {
			return nil, fmt.Errorf("scan event summary: %w", err)
		}
		c.Type = analytics.EventType(eventType)
		c.First = parseTime(first)
		c.Last = parseTime(last)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListSessions returns recorded sessions, most recent first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	ctx = ensureContext(ctx)
	query := `SELECT session_id, COUNT(*), MIN(occurred_at), MAX(occurred_at)
		FROM analytics_events GROUP BY session_id ORDER BY MAX(occurred_at) DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			summary     SessionSummary
			first, last string
		)
		if err := rows.Scan(&summary.SessionID, &summary.Events, &first, &last); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		summary.Started = parseTime(first)
		summary.Ended = parseTime(last)
		out = append(out, summary)
	}
	return out, rows.Err()
}

func eventWhere(filter EventFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.VideoID != "" {
		clauses = append(clauses, "video_id = ?")
		args = append(args, filter.VideoID)
	}
	if filter.Type != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, string(filter.Type))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
