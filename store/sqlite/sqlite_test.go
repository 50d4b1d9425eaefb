package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gci/presenze/calendar"
	"github.com/gci/presenze/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedProfile(t *testing.T, store *sqlite.Store, id, name, email string, admin bool) {
	t.Helper()
	err := store.SaveProfile(context.Background(), sqlite.Profile{
		ID: id, Name: name, Email: email, IsAdmin: admin,
	})
	require.NoError(t, err)
}

// =============================================================================
// PROFILE TESTS
// =============================================================================

func TestStore_ProfileRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedProfile(t, store, "u1", "Mario Rossi", "mario@example.com", false)

	p, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Mario Rossi", p.Name)
	assert.Equal(t, "mario@example.com", p.Email)
	assert.False(t, p.IsAdmin)
}

func TestStore_ProfileUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedProfile(t, store, "u1", "Mario Rossi", "", false)
	seedProfile(t, store, "u1", "Mario Rossi", "mario@example.com", true)

	p, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)
	assert.Equal(t, "mario@example.com", p.Email)

	profiles, err := store.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 1, "upsert must not duplicate the row")
}

func TestStore_GetProfile_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestStore_AdminEmails(t *testing.T) {
	// GIVEN: two admins (one without email) and a regular user
	// WHEN: resolving report recipients
	// THEN: only the addressable admin's email comes back

	store := newTestStore(t)
	ctx := context.Background()

	seedProfile(t, store, "u1", "Mario Rossi", "mario@example.com", false)
	seedProfile(t, store, "u2", "Anna Bianchi", "anna@example.com", true)
	seedProfile(t, store, "u3", "Luca Verdi", "", true)

	emails, err := store.AdminEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"anna@example.com"}, emails)
}

// =============================================================================
// EVENT TESTS
// =============================================================================

func TestStore_EventCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := calendar.Event{
		ID:       "evt-1",
		UserID:   "u1",
		Type:     "FERIE",
		StartsAt: "2025-03-03T00:00:00Z",
		EndsAt:   "2025-03-05T00:00:00Z",
		Note:     "settimana bianca",
	}
	require.NoError(t, store.CreateEvent(ctx, event))

	got, err := store.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, event, got)

	event.Type = "MALATTIA"
	event.Note = ""
	require.NoError(t, store.UpdateEvent(ctx, event))

	got, err = store.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "MALATTIA", got.Type)
	assert.Empty(t, got.Note)

	require.NoError(t, store.DeleteEvent(ctx, "evt-1"))
	_, err = store.GetEvent(ctx, "evt-1")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestStore_UpdateEvent_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateEvent(context.Background(), calendar.Event{ID: "missing", Type: "FERIE"})
	assert.ErrorIs(t, err, sqlite.ErrNotFound)

	err = store.DeleteEvent(context.Background(), "missing")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestStore_EventsForMonth(t *testing.T) {
	// GIVEN: events in February, March and April
	// WHEN: loading March
	// THEN: only events starting in March come back, in start order

	store := newTestStore(t)
	ctx := context.Background()

	for _, e := range []calendar.Event{
		{ID: "feb", UserID: "u1", Type: "FERIE", StartsAt: "2025-02-28T00:00:00Z", EndsAt: "2025-03-01T00:00:00Z"},
		{ID: "mar-2", UserID: "u1", Type: "MALATTIA", StartsAt: "2025-03-20T00:00:00Z", EndsAt: "2025-03-21T00:00:00Z"},
		{ID: "mar-1", UserID: "u1", Type: "FERIE", StartsAt: "2025-03-03T00:00:00Z", EndsAt: "2025-03-04T00:00:00Z"},
		{ID: "apr", UserID: "u1", Type: "FERIE", StartsAt: "2025-04-01T00:00:00Z", EndsAt: "2025-04-02T00:00:00Z"},
	} {
		require.NoError(t, store.CreateEvent(ctx, e))
	}

	events, err := store.EventsForMonth(ctx, 2025, 3, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "mar-1", events[0].ID)
	assert.Equal(t, "mar-2", events[1].ID)
}

// =============================================================================
// MONTHLY NOTE TESTS
// =============================================================================

func TestStore_MonthlyNotes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	note := sqlite.MonthlyNote{ID: "n1", UserID: "u1", Year: 2025, Month: 3, Note: "straordinari"}
	require.NoError(t, store.SaveMonthlyNote(ctx, note))

	notes, err := store.MonthlyNotes(ctx, 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "straordinari"}, notes)

	// Same (user, period) replaces rather than duplicates.
	note.ID = "n2"
	note.Note = "straordinari approvati"
	require.NoError(t, store.SaveMonthlyNote(ctx, note))

	notes, err = store.MonthlyNotes(ctx, 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, "straordinari approvati", notes["u1"])
	assert.Len(t, notes, 1)
}

func TestStore_MonthlyNote_EmptyClears(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMonthlyNote(ctx, sqlite.MonthlyNote{
		ID: "n1", UserID: "u1", Year: 2025, Month: 3, Note: "da rimuovere",
	}))
	require.NoError(t, store.SaveMonthlyNote(ctx, sqlite.MonthlyNote{
		ID: "n2", UserID: "u1", Year: 2025, Month: 3, Note: "  ",
	}))

	notes, err := store.MonthlyNotes(ctx, 2025, 3)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

// =============================================================================
// REPORT RUN TESTS
// =============================================================================

func TestStore_ReportRuns_ScheduledDedup(t *testing.T) {
	// GIVEN: a scheduled report for February already went out
	// WHEN: recording a second scheduled run for the same month
	// THEN: the store rejects it, while a manual resend still succeeds

	store := newTestStore(t)
	ctx := context.Background()

	run := sqlite.ReportRun{
		ID: "run-1", Year: 2025, Month: 2,
		Trigger:    sqlite.TriggerScheduled,
		Recipients: []string{"hr@example.com"},
	}
	require.NoError(t, store.RecordReportRun(ctx, run))

	run.ID = "run-2"
	err := store.RecordReportRun(ctx, run)
	assert.ErrorIs(t, err, sqlite.ErrDuplicateReportRun)

	run.ID = "run-3"
	run.Trigger = sqlite.TriggerManual
	assert.NoError(t, store.RecordReportRun(ctx, run))

	exists, err := store.ScheduledRunExists(ctx, 2025, 2)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ScheduledRunExists(ctx, 2025, 3)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_ReportRuns_ManualDedup(t *testing.T) {
	// GIVEN: a manual report for February already went out
	// WHEN: recording a second manual run for the same month
	// THEN: the store rejects it

	store := newTestStore(t)
	ctx := context.Background()

	run := sqlite.ReportRun{
		ID: "run-1", Year: 2025, Month: 2,
		Trigger:    sqlite.TriggerManual,
		Recipients: []string{"hr@example.com"},
	}
	require.NoError(t, store.RecordReportRun(ctx, run))

	run.ID = "run-2"
	err := store.RecordReportRun(ctx, run)
	assert.ErrorIs(t, err, sqlite.ErrDuplicateReportRun)
}

func TestStore_ReportRuns_FailedRunAllowsRetry(t *testing.T) {
	// GIVEN: a scheduled run that failed to deliver
	// WHEN: the scheduler checks the month and records a fresh run
	// THEN: the failed row neither counts as sent nor blocks the retry

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordReportRun(ctx, sqlite.ReportRun{
		ID: "run-1", Year: 2025, Month: 2,
		Trigger:    sqlite.TriggerScheduled,
		Status:     sqlite.StatusFailed,
		Recipients: []string{"hr@example.com"},
		Error:      "smtp: connection refused",
	}))

	exists, err := store.ScheduledRunExists(ctx, 2025, 2)
	require.NoError(t, err)
	assert.False(t, exists, "failed run must not count as dispatched")

	require.NoError(t, store.RecordReportRun(ctx, sqlite.ReportRun{
		ID: "run-2", Year: 2025, Month: 2,
		Trigger:    sqlite.TriggerScheduled,
		Status:     sqlite.StatusPending,
		Recipients: []string{"hr@example.com"},
	}))

	exists, err = store.ScheduledRunExists(ctx, 2025, 2)
	require.NoError(t, err)
	assert.True(t, exists, "pending run counts as live")
}

func TestStore_UpdateReportRunStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordReportRun(ctx, sqlite.ReportRun{
		ID: "run-1", Year: 2025, Month: 2,
		Trigger:    sqlite.TriggerManual,
		Status:     sqlite.StatusPending,
		Recipients: []string{"hr@example.com"},
	}))

	require.NoError(t, store.UpdateReportRunStatus(ctx, "run-1", sqlite.StatusFailed, "smtp: timeout"))

	runs, err := store.ListReportRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sqlite.StatusFailed, runs[0].Status)
	assert.Equal(t, "smtp: timeout", runs[0].Error)

	err = store.UpdateReportRunStatus(ctx, "missing", sqlite.StatusSent, "")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestStore_ListReportRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordReportRun(ctx, sqlite.ReportRun{
		ID: "run-1", Year: 2025, Month: 1, Trigger: sqlite.TriggerScheduled,
		Recipients: []string{"a@example.com", "b@example.com"},
		SentAt:     time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.RecordReportRun(ctx, sqlite.ReportRun{
		ID: "run-2", Year: 2025, Month: 2, Trigger: sqlite.TriggerManual,
		Recipients: []string{"a@example.com"},
		SentAt:     time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
	}))

	runs, err := store.ListReportRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID, "newest first")
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, runs[1].Recipients)
	assert.Equal(t, sqlite.StatusSent, runs[0].Status, "status defaults to sent")
	assert.Empty(t, runs[0].Error)
}

// =============================================================================
// MONTHLY SUMMARY TESTS
// =============================================================================

func TestStore_MonthlyRows(t *testing.T) {
	// GIVEN: a profile, a vacation, a permit and an admin note in March
	// WHEN: building the monthly rows
	// THEN: one aggregated row carries days, hours and the note

	store := newTestStore(t)
	ctx := context.Background()

	seedProfile(t, store, "u1", "Mario Rossi", "", false)

	require.NoError(t, store.CreateEvent(ctx, calendar.Event{
		ID: "e1", UserID: "u1", Type: "FERIE",
		StartsAt: "2025-03-03T00:00:00Z", EndsAt: "2025-03-05T00:00:00Z",
	}))
	require.NoError(t, store.CreateEvent(ctx, calendar.Event{
		ID: "e2", UserID: "u1", Type: "PERMESSO_ENTRATA_ANTICIPATA",
		StartsAt: "2025-03-10T00:00:00Z", EndsAt: "2025-03-10T00:00:00Z",
		PermessoHours: 2,
	}))
	require.NoError(t, store.SaveMonthlyNote(ctx, sqlite.MonthlyNote{
		ID: "n1", UserID: "u1", Year: 2025, Month: 3, Note: "ok",
	}))

	rows, err := store.MonthlyRows(ctx, 2025, 3, calendar.Config{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "Mario Rossi", row.Name)
	assert.Equal(t, 2, row.FerieDays)
	assert.Equal(t, 2.0, row.PermEntrata)
	assert.Equal(t, "ok", row.Notes)
}
