// Package sqlite implements the scheduling repositories on SQLite through the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/store"
	"github.com/kilianp07/rbtsched/infra/store/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS providers (
    id     TEXT PRIMARY KEY,
    name   TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS teams (
    id             TEXT PRIMARY KEY,
    client_id      TEXT NOT NULL,
    rbt_ids        TEXT NOT NULL,
    primary_rbt_id TEXT NOT NULL,
    effective_ns   INTEGER NOT NULL,
    end_ns         INTEGER,
    active         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS teams_client ON teams (client_id, active, effective_ns);
CREATE TABLE IF NOT EXISTS sessions (
    id                  TEXT PRIMARY KEY,
    client_id           TEXT NOT NULL,
    rbt_id              TEXT NOT NULL,
    start_ns            INTEGER NOT NULL,
    end_ns              INTEGER NOT NULL,
    status              TEXT NOT NULL,
    location            TEXT NOT NULL DEFAULT '',
    notes               TEXT NOT NULL DEFAULT '',
    cancellation_reason TEXT NOT NULL DEFAULT '',
    completion_notes    TEXT NOT NULL DEFAULT '',
    rescheduled_from    TEXT NOT NULL DEFAULT '',
    created_by          TEXT NOT NULL DEFAULT '',
    created_ns          INTEGER NOT NULL DEFAULT 0,
    updated_ns          INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS sessions_client ON sessions (client_id, start_ns);
CREATE INDEX IF NOT EXISTS sessions_rbt ON sessions (rbt_id, start_ns);
CREATE INDEX IF NOT EXISTS sessions_window ON sessions (start_ns, end_ns);
`

// ErrDuplicate is returned when creating a record whose id already exists.
var ErrDuplicate = errors.New("sqlite: duplicate id")

// DB holds the connection shared by the repositories.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// every connection to :memory: is a distinct database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// Repositories returns the repositories backed by d.
func (d *DB) Repositories() store.Repositories {
	return store.Repositories{
		Sessions:  &SessionStore{db: d.db},
		Teams:     &TeamStore{db: d.db},
		Providers: &ProviderStore{db: d.db},
	}
}

// Import upserts a fixture in one transaction.
func (d *DB) Import(ctx context.Context, seed memory.Seed) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, p := range seed.Providers {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO providers (id, name, active) VALUES (?, ?, ?)`,
			p.ID, p.Name, p.Active); err != nil {
			return fmt.Errorf("import provider %s: %w", p.ID, err)
		}
	}
	for _, t := range seed.Teams {
		if err := writeTeam(ctx, tx, "INSERT OR REPLACE", t); err != nil {
			return fmt.Errorf("import team %s: %w", t.ID, err)
		}
	}
	for _, s := range seed.Sessions {
		if s.End.IsZero() {
			s.End = s.Start.Add(model.SessionDuration)
		}
		if err := writeSession(ctx, tx, "INSERT OR REPLACE", s); err != nil {
			return fmt.Errorf("import session %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func toNS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNS(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func isUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// SessionStore implements store.SessionRepository.
type SessionStore struct {
	db *sql.DB
}

const sessionCols = `id, client_id, rbt_id, start_ns, end_ns, status, location, notes,
cancellation_reason, completion_notes, rescheduled_from, created_by, created_ns, updated_ns`

func writeSession(ctx context.Context, ex execer, verb string, s model.Session) error {
	_, err := ex.ExecContext(ctx, verb+` INTO sessions (`+sessionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ClientID, s.RBTID, toNS(s.Start), toNS(s.End), string(s.Status), s.Location, s.Notes,
		s.CancellationReason, s.CompletionNotes, s.RescheduledFrom, s.CreatedBy, toNS(s.CreatedAt), toNS(s.UpdatedAt))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (model.Session, error) {
	var (
		s                           model.Session
		status                      string
		start, end, created, update int64
	)
	err := sc.Scan(&s.ID, &s.ClientID, &s.RBTID, &start, &end, &status, &s.Location, &s.Notes,
		&s.CancellationReason, &s.CompletionNotes, &s.RescheduledFrom, &s.CreatedBy, &created, &update)
	if err != nil {
		return s, err
	}
	s.Status = model.SessionStatus(status)
	s.Start, s.End = fromNS(start), fromNS(end)
	s.CreatedAt, s.UpdatedAt = fromNS(created), fromNS(update)
	return s, nil
}

func (s *SessionStore) query(ctx context.Context, where string, args ...any) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE `+where+` ORDER BY start_ns, id`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]model.Session, 0)
	for rows.Next() {
		ss, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

func (s *SessionStore) FindByID(ctx context.Context, id string) (model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	ss, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, store.ErrNotFound
	}
	return ss, err
}

func (s *SessionStore) FindByClientID(ctx context.Context, clientID string) ([]model.Session, error) {
	return s.query(ctx, `client_id = ?`, clientID)
}

func (s *SessionStore) FindByRBTID(ctx context.Context, rbtID string) ([]model.Session, error) {
	return s.query(ctx, `rbt_id = ?`, rbtID)
}

func (s *SessionStore) FindActiveByDateRange(ctx context.Context, start, end time.Time) ([]model.Session, error) {
	return s.query(ctx, `status != ? AND start_ns < ? AND end_ns > ?`,
		string(model.StatusCancelled), end.UnixNano(), start.UnixNano())
}

func (s *SessionStore) CheckConflicts(ctx context.Context, clientID, rbtID string, start, end time.Time, excludeID string) ([]model.Session, error) {
	return s.query(ctx, `(client_id = ? OR rbt_id = ?) AND id != ? AND status != ? AND start_ns < ? AND end_ns > ?`,
		clientID, rbtID, excludeID, string(model.StatusCancelled), end.UnixNano(), start.UnixNano())
}

func (s *SessionStore) Create(ctx context.Context, ss model.Session) error {
	err := writeSession(ctx, s.db, "INSERT", ss)
	if isUnique(err) {
		return fmt.Errorf("%w: session %s", ErrDuplicate, ss.ID)
	}
	return err
}

func (s *SessionStore) Update(ctx context.Context, ss model.Session) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET client_id = ?, rbt_id = ?, start_ns = ?, end_ns = ?,
status = ?, location = ?, notes = ?, cancellation_reason = ?, completion_notes = ?, rescheduled_from = ?,
created_by = ?, created_ns = ?, updated_ns = ? WHERE id = ?`,
		ss.ClientID, ss.RBTID, toNS(ss.Start), toNS(ss.End), string(ss.Status), ss.Location, ss.Notes,
		ss.CancellationReason, ss.CompletionNotes, ss.RescheduledFrom, ss.CreatedBy, toNS(ss.CreatedAt),
		toNS(ss.UpdatedAt), ss.ID)
	return affected(res, err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// TeamStore implements store.TeamRepository.
type TeamStore struct {
	db *sql.DB
}

func writeTeam(ctx context.Context, ex execer, verb string, t model.Team) error {
	ids, err := json.Marshal(t.RBTIDs)
	if err != nil {
		return err
	}
	var end any
	if t.EndDate != nil {
		end = toNS(*t.EndDate)
	}
	_, err = ex.ExecContext(ctx, verb+` INTO teams (id, client_id, rbt_ids, primary_rbt_id, effective_ns, end_ns, active)
VALUES (?, ?, ?, ?, ?, ?, ?)`, t.ID, t.ClientID, string(ids), t.PrimaryRBTID, toNS(t.EffectiveDate), end, t.Active)
	return err
}

func (s *TeamStore) FindActiveByClientID(ctx context.Context, clientID string) (model.Team, error) {
	var (
		t         model.Team
		ids       string
		effective int64
		end       sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, client_id, rbt_ids, primary_rbt_id, effective_ns, end_ns, active
FROM teams WHERE client_id = ? AND active = 1 ORDER BY effective_ns DESC, id DESC LIMIT 1`, clientID).
		Scan(&t.ID, &t.ClientID, &ids, &t.PrimaryRBTID, &effective, &end, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Team{}, store.ErrNotFound
	}
	if err != nil {
		return model.Team{}, err
	}
	if err := json.Unmarshal([]byte(ids), &t.RBTIDs); err != nil {
		return model.Team{}, fmt.Errorf("decode rbt_ids of team %s: %w", t.ID, err)
	}
	t.EffectiveDate = fromNS(effective)
	if end.Valid {
		e := fromNS(end.Int64)
		t.EndDate = &e
	}
	return t, nil
}

func (s *TeamStore) Create(ctx context.Context, t model.Team) error {
	err := writeTeam(ctx, s.db, "INSERT", t)
	if isUnique(err) {
		return fmt.Errorf("%w: team %s", ErrDuplicate, t.ID)
	}
	return err
}

func (s *TeamStore) Update(ctx context.Context, t model.Team) error {
	ids, err := json.Marshal(t.RBTIDs)
	if err != nil {
		return err
	}
	var end any
	if t.EndDate != nil {
		end = toNS(*t.EndDate)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE teams SET client_id = ?, rbt_ids = ?, primary_rbt_id = ?,
effective_ns = ?, end_ns = ?, active = ? WHERE id = ?`,
		t.ClientID, string(ids), t.PrimaryRBTID, toNS(t.EffectiveDate), end, t.Active, t.ID)
	return affected(res, err)
}

// ProviderStore implements store.ProviderRepository.
type ProviderStore struct {
	db *sql.DB
}

func (s *ProviderStore) FindByID(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	err := s.db.QueryRowContext(ctx, `SELECT id, name, active FROM providers WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Provider{}, store.ErrNotFound
	}
	return p, err
}
