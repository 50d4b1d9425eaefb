/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

CATEGORIES:
  Event categories travel in the UI vocabulary; the handlers translate to
  the storage vocabulary before touching the store and back before
  responding.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - calendar/mapper.go: UI/storage category mapping
*/
package api

// ProfileRequest creates or updates a user profile.
type ProfileRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// EventRequest creates or updates a calendar event. Type uses the UI
// vocabulary. Dates are YYYY-MM-DD; EndDate is inclusive and only
// meaningful for day-granularity categories. Hours applies to permits.
type EventRequest struct {
	UserID    string  `json:"user_id"`
	Type      string  `json:"type"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date,omitempty"`
	Hours     float64 `json:"hours,omitempty"`
	Note      string  `json:"note,omitempty"`
}

// EventDTO is an event as returned to the frontend, category in the UI
// vocabulary. Unknown stored categories pass through unmapped.
type EventDTO struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Type          string `json:"type"`
	StartsAt      string `json:"starts_at"`
	EndsAt        string `json:"ends_at"`
	PermessoHours int    `json:"permesso_hours,omitempty"`
	Note          string `json:"note,omitempty"`
}

// NoteRequest sets the administrator note for one user and month. An empty
// note clears it.
type NoteRequest struct {
	UserID string `json:"user_id"`
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Note   string `json:"note"`
}

// ReportRequest triggers a monthly report dispatch.
type ReportRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// ReportRunDTO describes one report dispatch attempt.
type ReportRunDTO struct {
	ID         string   `json:"id"`
	Year       int      `json:"year"`
	Month      int      `json:"month"`
	Trigger    string   `json:"trigger"`
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	Recipients []string `json:"recipients"`
	SentAt     string   `json:"sent_at"`
}

// HolidayDTO is one national holiday.
type HolidayDTO struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// ErrorResponse is the standard error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
