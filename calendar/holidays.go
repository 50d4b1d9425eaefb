/*
holidays.go - Italian national holiday calendar

PURPOSE:
  Computes the fixed national holiday set for a year plus Lunedì dell'Angelo
  (the day after Easter Sunday). Used by the calendar UI for day shading and
  exposed through the API so clients never hardcode the list.

EASTER:
  Easter Sunday is computed with the Gauss/Meeus ecclesiastical algorithm for
  the Gregorian calendar, valid for any Gregorian-era year. The function is
  total and cheap; callers may memoize per year but nothing here does.
*/
package calendar

import (
	"fmt"
	"time"
)

// fixedHolidays are the nine fixed-date national holidays.
var fixedHolidays = []struct {
	Month time.Month
	Day   int
	Name  string
}{
	{time.January, 1, "Capodanno"},
	{time.January, 6, "Epifania"},
	{time.April, 25, "Liberazione"},
	{time.May, 1, "Festa del lavoro"},
	{time.June, 2, "Festa della Repubblica"},
	{time.August, 15, "Ferragosto"},
	{time.November, 1, "Tutti i Santi"},
	{time.December, 8, "Immacolata Concezione"},
	{time.December, 25, "Natale"},
}

// EasterSunday returns the month and day of Easter Sunday for the given year.
func EasterSunday(year int) (time.Month, int) {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Month(month), day
}

// ItalianHolidays returns the national holidays of a year as a map from ISO
// date (YYYY-MM-DD, no time component) to holiday name: the nine fixed dates
// plus Lunedì dell'Angelo, Easter Sunday + 1 day.
func ItalianHolidays(year int) map[string]string {
	m := make(map[string]string, len(fixedHolidays)+1)
	for _, h := range fixedHolidays {
		m[isoDate(year, h.Month, h.Day)] = h.Name
	}

	em, ed := EasterSunday(year)
	pasquetta := time.Date(year, em, ed, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	m[isoDate(pasquetta.Year(), pasquetta.Month(), pasquetta.Day())] = "Lunedì dell'Angelo"

	return m
}

// IsHoliday reports whether the given date is a national holiday and, if so,
// its name.
func IsHoliday(t time.Time) (string, bool) {
	name, ok := ItalianHolidays(t.Year())[isoDate(t.Year(), t.Month(), t.Day())]
	return name, ok
}

func isoDate(year int, month time.Month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
}
