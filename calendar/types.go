/*
Package calendar provides the core domain logic of the shared HR calendar:
leave categories, the Italian holiday calendar, and the monthly aggregation
that turns raw absence events into per-user day buckets and summary rows.

KEY CONCEPTS IN THIS FILE (types.go):
  - UIType/StorageType: the two category vocabularies (see mapper.go)
  - Event: a raw absence/presence record as the backing store hands it over
  - DayInfo: per-user, per-day category flags and permit-hour accumulators
  - MonthlyRow: per-user monthly totals feeding the summary table
  - Config: per-deployment knobs threaded into aggregation

DESIGN PRINCIPLES:
  1. Everything here is pure computation: no I/O, no shared mutable state.
     Derived values (DayInfo, MonthlyRow) are recomputed per request and
     discarded; nothing is cached across reports.
  2. The display precedence between categories is a single ordered constant
     so the calendar UI and the emailed report can never disagree.
  3. Hour accounting goes through decimal.Decimal to keep the minutes-vs-
     hours conversion exact.

SEE ALSO:
  - mapper.go: UI <-> storage vocabulary bijection
  - holidays.go: Italian national holidays incl. the Easter-derived one
  - aggregate.go: day bucketing and monthly summarization
*/
package calendar

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVENT - raw record shape at the store boundary
// =============================================================================

// Event is an absence/presence record as persisted. Instants are RFC3339
// strings because the store is the external owner of this data and the
// aggregator must tolerate (skip) records it cannot parse.
//
// PermessoHours is set (> 0) if and only if Type is one of the permit
// categories; it is a rounded positive integer number of hours, minimum 1.
type Event struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Type          string `json:"type"`
	StartsAt      string `json:"starts_at"`
	EndsAt        string `json:"ends_at,omitempty"`
	PermessoHours int    `json:"permesso_hours,omitempty"`
	Note          string `json:"note,omitempty"`
}

// =============================================================================
// DAY INFO - one user, one calendar day
// =============================================================================

// DayInfo collects the category flags and permit-hour accumulators for a
// single (user, day) bucket. Flags are OR'd across events; hours accumulate.
type DayInfo struct {
	Ferie    bool
	Malattia bool
	Perm     bool // permessi entrata/uscita
	Studio   bool // permessi studio

	PermHours   float64
	StudioHours float64
}

// DayClass is the display class a day resolves to once precedence is applied.
type DayClass int

const (
	ClassNone DayClass = iota
	ClassFerie
	ClassMalattia
	ClassStudio
	ClassPermesso
)

// Precedence is the fixed display ordering when multiple flags are set on the
// same day. Both the calendar UI coloring and the emailed mini calendar must
// resolve through this list; do not reorder.
var Precedence = []DayClass{ClassFerie, ClassMalattia, ClassStudio, ClassPermesso}

// Class resolves the DayInfo to a single display class using Precedence.
func (d DayInfo) Class() DayClass {
	for _, c := range Precedence {
		switch c {
		case ClassFerie:
			if d.Ferie {
				return c
			}
		case ClassMalattia:
			if d.Malattia {
				return c
			}
		case ClassStudio:
			if d.Studio {
				return c
			}
		case ClassPermesso:
			if d.Perm {
				return c
			}
		}
	}
	return ClassNone
}

// IsZero reports whether no event touched this day.
func (d DayInfo) IsZero() bool {
	return !d.Ferie && !d.Malattia && !d.Perm && !d.Studio
}

// =============================================================================
// MONTHLY ROW - per-user totals for one month
// =============================================================================

// MonthlyRow is the derived per-user summary for one (year, month). Rows are
// ephemeral: recomputed per request, never persisted.
type MonthlyRow struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`

	FerieDays    int `json:"ferie_days"`
	SmartDays    int `json:"smart_days"`
	MalattiaDays int `json:"malattia_days"`

	PermEntrata float64 `json:"perm_entrata_count"`
	PermUscita  float64 `json:"perm_uscita_count"`
	PermStudio  float64 `json:"perm_studio_count"`

	// Notes is the administrator-entered free text for this user and month,
	// independent of events.
	Notes string `json:"notes,omitempty"`
}

// PermTotal returns the summed entrata+uscita permit hours, the figure shown
// in the report's "Permessi (ore)" column.
func (r MonthlyRow) PermTotal() float64 {
	return r.PermEntrata + r.PermUscita
}

// =============================================================================
// CONFIG - per-deployment aggregation knobs
// =============================================================================

// Config carries the deployment-level choices that used to live in file-level
// constants. It is passed explicitly into every aggregation call.
type Config struct {
	// Location is the reference timezone used to resolve an instant to a
	// wall-clock calendar date. Defaults to UTC when nil.
	Location *time.Location

	// PermCountsAreMinutes indicates the stored permesso_hours values are
	// actually minutes and must be divided by 60. Historical deployments
	// disagreed on this; it is now a single explicit source of truth.
	PermCountsAreMinutes bool
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// ToHours converts a stored permit count to hours under this configuration,
// rounded to two decimal places.
func (c Config) ToHours(stored int) float64 {
	d := decimal.NewFromInt(int64(stored))
	if c.PermCountsAreMinutes {
		d = d.Div(decimal.NewFromInt(60))
	}
	f, _ := d.Round(2).Float64()
	return f
}
