/*
Package sqlite provides the SQLite-backed persistence layer.

PURPOSE:
  Owns all database access for the attendance calendar: user profiles,
  absence/presence events, per-month administrator notes and the log of
  dispatched monthly reports. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  profiles:      Users known to the calendar, with the admin flag driving
                 report recipient resolution
  events:        Absence/presence records, one row per event, category in
                 the storage vocabulary
  monthly_notes: Free-form administrator note per user per month
  report_runs:   One row per dispatched monthly report, used for scheduler
                 dedup (at most one scheduled send per month)

TIME REPRESENTATION:
  All instants are TEXT columns in RFC3339, normalized to UTC by every
  writer. With the uniform Z offset, lexicographic comparison in SQL
  matches chronological order and range scans stay index-friendly; a mixed
  offset would break that, so non-UTC instants must never be persisted.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/presenze.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - calendar/aggregate.go: consumes the rows loaded here
  - api/handlers.go: the HTTP layer on top of this store
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gci/presenze/calendar"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateReportRun is returned when a report run for the same month and
// trigger has already been recorded.
var ErrDuplicateReportRun = errors.New("report already dispatched for this month")

// Store implements all persistence for the calendar service using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Users known to the calendar
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_admin
		ON profiles(is_admin) WHERE is_admin;

	-- Absence/presence events, category in the storage vocabulary
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		starts_at TEXT NOT NULL,
		ends_at TEXT NOT NULL,
		permesso_hours INTEGER NOT NULL DEFAULT 0,
		note TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Month loads filter on the start instant (hot path)
	CREATE INDEX IF NOT EXISTS idx_events_starts_at
		ON events(starts_at);
	CREATE INDEX IF NOT EXISTS idx_events_user_starts
		ON events(user_id, starts_at);

	-- Administrator note per user per month
	CREATE TABLE IF NOT EXISTS monthly_notes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		note TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(user_id, year, month)
	);

	CREATE INDEX IF NOT EXISTS idx_monthly_notes_period
		ON monthly_notes(year, month);

	-- Audit log of report dispatches, failed ones included
	CREATE TABLE IF NOT EXISTS report_runs (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		trigger_kind TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'sent',
		recipients TEXT NOT NULL,
		error TEXT,
		sent_at TEXT NOT NULL
	);

	-- At most one live (pending or sent) run per month and trigger; failed
	-- runs do not block a retry
	CREATE UNIQUE INDEX IF NOT EXISTS idx_report_runs_live
		ON report_runs(year, month, trigger_kind) WHERE status != 'failed';
	CREATE INDEX IF NOT EXISTS idx_report_runs_period
		ON report_runs(year, month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PROFILES
// =============================================================================

// Profile is a user known to the calendar.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveProfile inserts or updates a profile.
func (s *Store) SaveProfile(ctx context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO profiles (id, name, email, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			is_admin = excluded.is_admin,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, nullString(p.Email), p.IsAdmin, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// GetProfile loads a single profile by id.
func (s *Store) GetProfile(ctx context.Context, id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, is_admin, created_at, updated_at
		FROM profiles WHERE id = ?
	`, id)

	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

// ListProfiles returns all profiles sorted by name.
func (s *Store) ListProfiles(ctx context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, is_admin, created_at, updated_at
		FROM profiles ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// AdminEmails returns the email addresses of admin profiles, skipping admins
// without one. Sorted for deterministic recipient lists.
func (s *Store) AdminEmails(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT email FROM profiles
		WHERE is_admin AND email IS NOT NULL AND email != ''
		ORDER BY email ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan admin email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// DisplayNames returns the id-to-name map for all profiles.
func (s *Store) DisplayNames(ctx context.Context) (map[string]string, error) {
	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.Name
	}
	return names, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var (
		p         Profile
		email     sql.NullString
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&p.ID, &p.Name, &email, &p.IsAdmin, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan profile: %w", err)
	}
	p.Email = email.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return p, nil
}

// =============================================================================
// EVENTS
// =============================================================================

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, e calendar.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO events (id, user_id, type, starts_at, ends_at, permesso_hours, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.UserID, e.Type, e.StartsAt, e.EndsAt, e.PermessoHours, nullString(e.Note), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// UpdateEvent rewrites an existing event's mutable fields.
func (s *Store) UpdateEvent(ctx context.Context, e calendar.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE events
		SET type = ?, starts_at = ?, ends_at = ?, permesso_hours = ?, note = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, query,
		e.Type, e.StartsAt, e.EndsAt, e.PermessoHours, nullString(e.Note), now, e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEvent removes an event by id.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetEvent loads a single event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (calendar.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, starts_at, ends_at, permesso_hours, note
		FROM events WHERE id = ?
	`, id)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return calendar.Event{}, ErrNotFound
	}
	return e, err
}

// ListEventsStartingIn returns events whose start instant falls in
// [from, to), ordered by start. RFC3339 text compares chronologically, so
// the range scan happens in SQL.
func (s *Store) ListEventsStartingIn(ctx context.Context, from, to time.Time) ([]calendar.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, type, starts_at, ends_at, permesso_hours, note
		FROM events
		WHERE starts_at >= ? AND starts_at < ?
		ORDER BY starts_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []calendar.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// EventsForMonth returns events attributed to the month, i.e. starting
// inside it in loc's wall clock.
func (s *Store) EventsForMonth(ctx context.Context, year, month int, loc *time.Location) ([]calendar.Event, error) {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0)
	return s.ListEventsStartingIn(ctx, from, to)
}

func scanEvent(row rowScanner) (calendar.Event, error) {
	var (
		e    calendar.Event
		note sql.NullString
	)
	err := row.Scan(&e.ID, &e.UserID, &e.Type, &e.StartsAt, &e.EndsAt, &e.PermessoHours, &note)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan event: %w", err)
	}
	e.Note = note.String
	return e, nil
}

// =============================================================================
// MONTHLY NOTES
// =============================================================================

// MonthlyNote is a free-form administrator annotation for one user and month.
type MonthlyNote struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Note      string    `json:"note"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveMonthlyNote inserts or replaces the note for (user, year, month).
// An empty note deletes the row.
func (s *Store) SaveMonthlyNote(ctx context.Context, n MonthlyNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(n.Note) == "" {
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM monthly_notes WHERE user_id = ? AND year = ? AND month = ?",
			n.UserID, n.Year, n.Month)
		if err != nil {
			return fmt.Errorf("failed to clear monthly note: %w", err)
		}
		return nil
	}

	query := `
		INSERT INTO monthly_notes (id, user_id, year, month, note, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, year, month) DO UPDATE SET
			note = excluded.note,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query, n.ID, n.UserID, n.Year, n.Month, n.Note, now)
	if err != nil {
		return fmt.Errorf("failed to save monthly note: %w", err)
	}
	return nil
}

// MonthlyNotes returns the user-id-to-note map for one month.
func (s *Store) MonthlyNotes(ctx context.Context, year, month int) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, note FROM monthly_notes WHERE year = ? AND month = ?",
		year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly notes: %w", err)
	}
	defer rows.Close()

	notes := make(map[string]string)
	for rows.Next() {
		var userID, note string
		if err := rows.Scan(&userID, &note); err != nil {
			return nil, fmt.Errorf("failed to scan monthly note: %w", err)
		}
		notes[userID] = note
	}
	return notes, rows.Err()
}

// =============================================================================
// REPORT RUNS
// =============================================================================

// Report run triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Report run statuses. A run is written as pending before the message goes
// out and transitions to sent or failed afterwards.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// ReportRun records one report dispatch attempt.
type ReportRun struct {
	ID         string    `json:"id"`
	Year       int       `json:"year"`
	Month      int       `json:"month"`
	Trigger    string    `json:"trigger"`
	Status     string    `json:"status"`
	Recipients []string  `json:"recipients"`
	Error      string    `json:"error,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// RecordReportRun logs a dispatch attempt. A second non-failed run for the
// same month and trigger violates the unique index and returns
// ErrDuplicateReportRun.
func (s *Store) RecordReportRun(ctx context.Context, run ReportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO report_runs (id, year, month, trigger_kind, status, recipients, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	status := run.Status
	if status == "" {
		status = StatusSent
	}
	sentAt := run.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Year, run.Month, run.Trigger, status,
		strings.Join(run.Recipients, ","),
		nullString(run.Error),
		sentAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateReportRun
		}
		return fmt.Errorf("failed to record report run: %w", err)
	}
	return nil
}

// UpdateReportRunStatus moves a recorded run to its final status, keeping
// the delivery error when there was one.
func (s *Store) UpdateReportRunStatus(ctx context.Context, id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE report_runs SET status = ?, error = ? WHERE id = ?",
		status, nullString(errMsg), id)
	if err != nil {
		return fmt.Errorf("failed to update report run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ScheduledRunExists reports whether a scheduled report for (year, month)
// is pending or already went out. Failed runs do not count, so the
// scheduler retries after a delivery error.
func (s *Store) ScheduledRunExists(ctx context.Context, year, month int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM report_runs WHERE year = ? AND month = ? AND trigger_kind = ? AND status != ?",
		year, month, TriggerScheduled, StatusFailed,
	).Scan(&count)
	return count > 0, err
}

// ListReportRuns returns all recorded runs, newest first.
func (s *Store) ListReportRuns(ctx context.Context) ([]ReportRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, year, month, trigger_kind, status, recipients, error, sent_at
		FROM report_runs ORDER BY sent_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query report runs: %w", err)
	}
	defer rows.Close()

	var runs []ReportRun
	for rows.Next() {
		var (
			run        ReportRun
			recipients string
			runErr     sql.NullString
			sentAt     string
		)
		if err := rows.Scan(&run.ID, &run.Year, &run.Month, &run.Trigger, &run.Status, &recipients, &runErr, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan report run: %w", err)
		}
		if recipients != "" {
			run.Recipients = strings.Split(recipients, ",")
		}
		run.Error = runErr.String
		run.SentAt, _ = time.Parse(time.RFC3339, sentAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// MONTHLY SUMMARY
// =============================================================================

// MonthlyRows loads the month's events, names and notes and aggregates them
// into summary rows. This is the single entry point the report pipeline and
// the summary endpoint share.
func (s *Store) MonthlyRows(ctx context.Context, year, month int, cfg calendar.Config) ([]calendar.MonthlyRow, error) {
	events, err := s.EventsForMonth(ctx, year, month, cfg.Location)
	if err != nil {
		return nil, err
	}
	names, err := s.DisplayNames(ctx)
	if err != nil {
		return nil, err
	}
	notes, err := s.MonthlyNotes(ctx, year, month)
	if err != nil {
		return nil, err
	}
	return calendar.Summarize(events, names, notes, year, month, cfg), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
