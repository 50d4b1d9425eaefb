/*
Package report renders the monthly summary email.

PURPOSE:
  Produces a single self-contained HTML document from pre-aggregated monthly
  rows plus (optionally) the raw event list for the per-user mini calendar.
  The output is handed as-is to the mail transport as the message body.

EMAIL CLIENT COMPATIBILITY:
  Mail clients - Outlook in particular - ignore most modern CSS, so the
  document uses table-based layout and inline styles only: no stylesheet, no
  script, no flex/grid.

DETERMINISM:
  Identical inputs produce byte-identical output. No timestamps, no random
  content, map iteration never reaches the string builder unordered.

ESCAPING:
  Every user-supplied string (names, notes) is HTML-escaped before
  interpolation. This is a correctness requirement: a display name must never
  be able to inject markup into the administrators' inbox.

SEE ALSO:
  - calendar/aggregate.go: produces the rows and day buckets consumed here
*/
package report

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/gci/presenze/calendar"
)

// Palette, aligned with the web UI's CSS variables.
const (
	colorFerie    = "#e53935"
	colorMalattia = "#d81b60"
	colorPermesso = "#1e88e5"
	colorStudio   = "#f9a825"
	colorNeutral  = "#e5e7eb"
	colorBorder   = "#cbd5e1"
	colorText     = "#1f2933"
	colorSurface  = "#f8fafc"
	colorMuted    = "#4b5563"
)

// classColor maps a resolved day class to its cell color.
func classColor(c calendar.DayClass) string {
	switch c {
	case calendar.ClassFerie:
		return colorFerie
	case calendar.ClassMalattia:
		return colorMalattia
	case calendar.ClassStudio:
		return colorStudio
	case calendar.ClassPermesso:
		return colorPermesso
	default:
		return colorNeutral
	}
}

// RenderMonthly renders the monthly summary report for (year, month): a title
// line, one summary row per MonthlyRow, a per-user mini calendar built from
// events, and a color legend. With no rows it renders a well-formed table
// holding a single "no data" placeholder row.
func RenderMonthly(rows []calendar.MonthlyRow, year, month int, events []calendar.Event, cfg calendar.Config) string {
	mm := fmt.Sprintf("%02d", month)
	title := fmt.Sprintf("Riepilogo mese %s/%d", mm, year)
	daysByUser := calendar.BuildDaysByUser(events, year, month, cfg)

	var body strings.Builder
	for _, r := range rows {
		name := r.Name
		if name == "" {
			name = r.UserID
		}
		body.WriteString("<tr>")
		cellLeft(&body, html.EscapeString(name))
		cellCenter(&body, formatHours(float64(r.FerieDays)))
		cellCenter(&body, formatHours(float64(r.MalattiaDays)))
		cellCenter(&body, formatHours(r.PermTotal()))
		cellCenter(&body, formatHours(r.PermStudio))
		cellLeft(&body, notesHTML(r.Notes))
		fmt.Fprintf(&body, `<td style="padding:6px;border-bottom:1px solid %s;">%s</td>`,
			colorBorder, miniCalendar(daysByUser[r.UserID], year, month))
		body.WriteString("</tr>")
	}

	tableBody := body.String()
	if tableBody == "" {
		tableBody = `<tr><td colspan="7" style="padding:12px;text-align:center;color:#6b7280;">Nessun dato per il mese selezionato.</td></tr>`
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<div style="font-family:system-ui,-apple-system,Segoe UI,Roboto,Arial,sans-serif;font-size:13px;color:%s;">`, colorText)
	fmt.Fprintf(&b, `<h2 style="margin:0 0 12px;">%s</h2>`, html.EscapeString(title))
	fmt.Fprintf(&b, `<p style="margin:0 0 10px;color:%s;">Riepilogo delle presenze e dei permessi per il mese di %s/%d.</p>`, colorMuted, mm, year)

	fmt.Fprintf(&b, `<div style="border:1px solid %s;border-radius:10px;overflow:hidden;">`, colorBorder)
	b.WriteString(`<table width="100%" cellpadding="0" cellspacing="0" border="0" style="border-collapse:collapse;">`)
	b.WriteString(`<thead>`)
	fmt.Fprintf(&b, `<tr style="background:%s;color:%s;">`, colorSurface, colorText)
	headerCell(&b, "left", "Utente")
	headerCell(&b, "center", "Ferie (gg)")
	headerCell(&b, "center", "Malattia (gg)")
	headerCell(&b, "center", "Permessi (ore)")
	headerCell(&b, "center", "Permessi Studio (ore)")
	headerCell(&b, "left", "Note")
	headerCell(&b, "left", "Calendario")
	b.WriteString(`</tr></thead>`)
	fmt.Fprintf(&b, `<tbody>%s</tbody>`, tableBody)
	b.WriteString(`</table>`)

	b.WriteString(legend())
	b.WriteString(`</div></div>`)

	return b.String()
}

// miniCalendar renders one compact colored cell per day of the month plus a
// textual legend below listing the non-neutral days.
func miniCalendar(infoByDay map[int]calendar.DayInfo, year, month int) string {
	daysInMonth := daysIn(year, month)
	mm := fmt.Sprintf("%02d", month)

	var cells strings.Builder
	var legendParts []string

	for d := 1; d <= daysInMonth; d++ {
		info := infoByDay[d]
		class := info.Class()

		if class != calendar.ClassNone {
			dateStr := fmt.Sprintf("%02d/%s", d, mm)
			switch class {
			case calendar.ClassFerie:
				legendParts = append(legendParts, dateStr+" F")
			case calendar.ClassMalattia:
				legendParts = append(legendParts, dateStr+" M")
			case calendar.ClassStudio:
				legendParts = append(legendParts, dateStr+" S"+hoursSuffix(info.StudioHours))
			case calendar.ClassPermesso:
				legendParts = append(legendParts, dateStr+" P"+hoursSuffix(info.PermHours))
			}
		}

		fmt.Fprintf(&cells,
			`<td width="10" height="10" style="padding:0;margin:0;"><div style="width:10px;height:10px;background:%s;border-radius:2px;margin-right:1px;">&nbsp;</div></td>`,
			classColor(class))
	}

	out := fmt.Sprintf(
		`<table cellpadding="0" cellspacing="0" border="0" style="border-collapse:collapse;"><tr>%s</tr></table>`,
		cells.String())
	if len(legendParts) > 0 {
		out += fmt.Sprintf(`<div style="margin-top:2px;font-size:11px;color:%s;">%s</div>`,
			colorMuted, strings.Join(legendParts, " · "))
	}
	return out
}

// legend renders the color legend footer explaining the four codes.
func legend() string {
	entries := []struct {
		color, label string
	}{
		{colorFerie, "F = Ferie"},
		{colorMalattia, "M = Malattia"},
		{colorPermesso, "P = Permesso Entrata/Uscita"},
		{colorStudio, "S = Permesso Studio"},
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<p style="text-align:center;margin-top:8px;font-size:11px;color:%s;">`, colorMuted)
	for i, e := range entries {
		if i > 0 {
			b.WriteString(`&nbsp;&bull;&nbsp;`)
		}
		fmt.Fprintf(&b,
			`<span style="display:inline-block;width:10px;height:10px;background:%s;border-radius:2px;margin-right:3px;"></span> %s`,
			e.color, e.label)
	}
	b.WriteString(`</p>`)
	return b.String()
}

// notesHTML escapes an administrator note and converts literal newlines into
// line breaks.
func notesHTML(notes string) string {
	if notes == "" {
		return ""
	}
	escaped := html.EscapeString(notes)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

// hoursSuffix formats the optional "(Nh)" annotation in the day legend.
func hoursSuffix(h float64) string {
	if h == 0 {
		return ""
	}
	return "(" + formatHours(h) + "h)"
}

// formatHours renders an hour total without trailing zeros: 4 not 4.00,
// 1.5 not 1.50.
func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

func headerCell(b *strings.Builder, align, label string) {
	fmt.Fprintf(b, `<th align="%s" style="padding:10px;border-bottom:1px solid %s;">%s</th>`, align, colorBorder, label)
}

func cellLeft(b *strings.Builder, content string) {
	fmt.Fprintf(b, `<td style="padding:8px 10px;border-bottom:1px solid %s;">%s</td>`, colorBorder, content)
}

func cellCenter(b *strings.Builder, content string) {
	fmt.Fprintf(b, `<td style="padding:8px 6px;border-bottom:1px solid %s;text-align:center;">%s</td>`, colorBorder, content)
}

// daysIn returns the number of days in the month.
func daysIn(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
			return 29
		}
		return 28
	default:
		return 0
	}
}
