/*
aggregate.go - event classification and monthly aggregation

PURPOSE:
  Turns raw event rows into the two derived shapes the report pipeline needs:

  BuildDaysByUser: per-user, per-day DayInfo buckets for one month, driving
  the mini-calendar strip. An event belongs to the month iff the wall-clock
  date of its start instant falls inside it; events spanning a month boundary
  are attributed solely by their start date (scope limitation, not a bug).

  Summarize: per-user MonthlyRow totals, the in-process equivalent of the
  aggregation view the summary table used to read. Day-granularity events
  contribute the days of their [start, end) range clipped to the month;
  permit events contribute hours split by subtype.

ERROR HANDLING:
  The store is an external collaborator, so malformed rows are filtered, not
  fatal: an unparseable start instant skips the record, an unrecognized
  category sets no flags (logged at debug level for observability). A single
  bad row never aborts a report.
*/
package calendar

import (
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

// classify matches a raw category string case-insensitively against the
// storage vocabulary, tolerating historical spelling variants: anything
// containing STUDIO is a study permit, anything containing PERMESSO, ENTRATA
// or USCITA is an entry/exit permit.
func classify(rawType string) DayClass {
	t := strings.ToUpper(rawType)
	switch {
	case t == string(StorageFerie):
		return ClassFerie
	case t == string(StorageMalattia):
		return ClassMalattia
	case strings.Contains(t, "STUDIO"):
		return ClassStudio
	case strings.Contains(t, "PERMESSO"), strings.Contains(t, "ENTRATA"), strings.Contains(t, "USCITA"):
		return ClassPermesso
	default:
		return ClassNone
	}
}

// startDate resolves the event's start instant to a wall-clock date in loc.
// ok is false when the instant is missing or unparseable.
func startDate(e Event, loc *time.Location) (time.Time, bool) {
	t, ok := parseInstant(e.StartsAt)
	if !ok {
		return time.Time{}, false
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
}

func parseInstant(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// =============================================================================
// DAY BUCKETS
// =============================================================================

// BuildDaysByUser buckets events into per-user, per-day DayInfo for the
// target month. Flags are idempotent (OR'd); hours accumulate across events
// on the same day.
func BuildDaysByUser(events []Event, year, month int, cfg Config) map[string]map[int]DayInfo {
	byUser := make(map[string]map[int]DayInfo)
	loc := cfg.location()

	for _, e := range events {
		day, ok := startDate(e, loc)
		if !ok {
			continue
		}
		if day.Year() != year || int(day.Month()) != month {
			continue
		}

		class := classify(e.Type)
		if class == ClassNone {
			// Smart working carries no flag in the day strip; anything else
			// unmatched is a vocabulary miss worth surfacing.
			if !strings.EqualFold(e.Type, string(StorageSmartWorking)) {
				logrus.WithFields(logrus.Fields{
					"event_id": e.ID,
					"type":     e.Type,
				}).Debug("unrecognized event category, no flags set")
			}
			continue
		}

		days := byUser[e.UserID]
		if days == nil {
			days = make(map[int]DayInfo)
			byUser[e.UserID] = days
		}

		info := days[day.Day()]
		hours := cfg.ToHours(e.PermessoHours)

		switch class {
		case ClassFerie:
			info.Ferie = true
		case ClassMalattia:
			info.Malattia = true
		case ClassStudio:
			info.Studio = true
			info.StudioHours += hours
		case ClassPermesso:
			info.Perm = true
			info.PermHours += hours
		}

		days[day.Day()] = info
	}

	return byUser
}

// =============================================================================
// MONTHLY SUMMARY
// =============================================================================

// userTotals accumulates raw per-user counters before row assembly.
type userTotals struct {
	ferieDays    map[int]bool
	smartDays    map[int]bool
	malattiaDays map[int]bool
	permEntrata  int
	permUscita   int
	permStudio   int
}

func newUserTotals() *userTotals {
	return &userTotals{
		ferieDays:    make(map[int]bool),
		smartDays:    make(map[int]bool),
		malattiaDays: make(map[int]bool),
	}
}

// Summarize derives one MonthlyRow per user with activity in the target
// month. names maps user id to display name (missing users fall back to the
// id); notes maps user id to the administrator note for that month. Rows are
// sorted by display name for deterministic output.
func Summarize(events []Event, names map[string]string, notes map[string]string, year, month int, cfg Config) []MonthlyRow {
	loc := cfg.location()
	totals := make(map[string]*userTotals)

	byID := func(uid string) *userTotals {
		t := totals[uid]
		if t == nil {
			t = newUserTotals()
			totals[uid] = t
		}
		return t
	}

	for _, e := range events {
		start, ok := startDate(e, loc)
		if !ok {
			continue
		}
		if start.Year() != year || int(start.Month()) != month {
			continue
		}

		t := strings.ToUpper(e.Type)
		switch classify(e.Type) {
		case ClassFerie:
			markDays(byID(e.UserID).ferieDays, start, e, month, loc)
		case ClassMalattia:
			markDays(byID(e.UserID).malattiaDays, start, e, month, loc)
		case ClassStudio:
			byID(e.UserID).permStudio += e.PermessoHours
		case ClassPermesso:
			if strings.Contains(t, "USCITA") {
				byID(e.UserID).permUscita += e.PermessoHours
			} else {
				byID(e.UserID).permEntrata += e.PermessoHours
			}
		case ClassNone:
			if t == string(StorageSmartWorking) {
				markDays(byID(e.UserID).smartDays, start, e, month, loc)
			}
		}
	}

	// Users with an admin note but no events still get a row.
	for uid := range notes {
		if notes[uid] != "" {
			byID(uid)
		}
	}

	rows := make([]MonthlyRow, 0, len(totals))
	for uid, t := range totals {
		name := names[uid]
		if name == "" {
			name = uid
		}
		rows = append(rows, MonthlyRow{
			UserID:       uid,
			Name:         name,
			Year:         year,
			Month:        month,
			FerieDays:    len(t.ferieDays),
			SmartDays:    len(t.smartDays),
			MalattiaDays: len(t.malattiaDays),
			PermEntrata:  cfg.ToHours(t.permEntrata),
			PermUscita:   cfg.ToHours(t.permUscita),
			PermStudio:   cfg.ToHours(t.permStudio),
			Notes:        notes[uid],
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].UserID < rows[j].UserID
	})

	return rows
}

// markDays records the days of the event's [start, end) range that fall
// inside the target month. Day events persist an exclusive next-day end; a
// missing or malformed end counts as a single day.
func markDays(set map[int]bool, start time.Time, e Event, month int, loc *time.Location) {
	end := start.AddDate(0, 0, 1)
	if t, ok := parseInstant(e.EndsAt); ok {
		t = t.In(loc)
		endDay := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if endDay.After(start) {
			end = endDay
		}
	}

	for d := start; d.Before(end) && int(d.Month()) == month; d = d.AddDate(0, 0, 1) {
		set[d.Day()] = true
	}
}
