package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/rbtsched/core/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schedule_events (
    id         TEXT PRIMARY KEY,
    ts         INTEGER NOT NULL,
    type       TEXT NOT NULL,
    session_id TEXT,
    rbt_id     TEXT,
    client_id  TEXT,
    record     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS schedule_events_session ON schedule_events (session_id, ts);
CREATE INDEX IF NOT EXISTS schedule_events_rbt ON schedule_events (rbt_id, ts);
CREATE INDEX IF NOT EXISTS schedule_events_client ON schedule_events (client_id, ts);
CREATE TRIGGER IF NOT EXISTS schedule_events_no_update BEFORE UPDATE ON schedule_events
BEGIN SELECT RAISE(ABORT, 'schedule events are immutable'); END;
CREATE TRIGGER IF NOT EXISTS schedule_events_no_delete BEFORE DELETE ON schedule_events
BEGIN SELECT RAISE(ABORT, 'schedule events are immutable'); END;
`

// SQLiteStore persists events in SQLite. Triggers reject UPDATE and DELETE
// at the database level.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append inserts ev in a single statement.
func (s *SQLiteStore) Append(ctx context.Context, ev model.ScheduleEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedule_events (id, ts, type, session_id, rbt_id, client_id, record) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.CreatedAt.UnixNano(), string(ev.Type), ev.SessionID, ev.RBTID, ev.ClientID, string(b))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", ErrDuplicate, ev.ID)
	}
	return err
}

func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]model.ScheduleEvent, error) {
	var (
		where []string
		args  []any
	)
	if len(q.Types) > 0 {
		marks := make([]string, len(q.Types))
		for i, t := range q.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(marks, ",")+")")
	}
	for _, f := range [...]struct{ col, val string }{
		{"session_id", q.SessionID}, {"rbt_id", q.RBTID}, {"client_id", q.ClientID},
	} {
		if f.val != "" {
			where = append(where, f.col+" = ?")
			args = append(args, f.val)
		}
	}
	if !q.Start.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, q.End.UnixNano())
	}
	query := `SELECT record FROM schedule_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ts, id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.ScheduleEvent
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var ev model.ScheduleEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("%w: unmarshal event: %v", ErrCorrupt, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
