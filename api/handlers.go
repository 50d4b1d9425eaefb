/*
handlers.go - HTTP API handlers for the attendance calendar

PURPOSE:
  Exposes the calendar via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Profiles:
    GET    /api/profiles               List all profiles
    POST   /api/profiles               Create/update profile
    GET    /api/profiles/{id}          Get profile

  Events:
    GET    /api/events?year=&month=    Events attributed to a month,
                                       optionally filtered by user_id/type
    POST   /api/events                 Create event
    PUT    /api/events/{id}            Update event
    DELETE /api/events/{id}            Delete event

  Calendar data:
    GET    /api/summary?year=&month=   Aggregated monthly rows
    GET    /api/holidays?year=         National holidays for a year
    GET    /api/notes?year=&month=     Admin notes for a month
    POST   /api/notes                  Set/clear an admin note

  Reports:
    POST   /api/reports/monthly          Dispatch the report (secret-gated)
    GET    /api/reports/monthly/preview  Render without sending
    GET    /api/reports/runs             Dispatch history

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (category vocabulary, date shapes, permit hours)
  3. Call domain logic (store, aggregator, dispatcher)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing/wrong dispatch secret
  - 404: Resource not found
  - 409: Report already dispatched for the month
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Background report trigger
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gci/presenze/calendar"
	"github.com/gci/presenze/mail"
	"github.com/gci/presenze/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Dispatcher *mail.Dispatcher
	Cfg        calendar.Config

	// Shared secret gating report dispatch. Empty disables the endpoint.
	CronSecret string
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, dispatcher *mail.Dispatcher, cfg calendar.Config, cronSecret string) *Handler {
	return &Handler{
		Store:      store,
		Dispatcher: dispatcher,
		Cfg:        cfg,
		CronSecret: cronSecret,
	}
}

// =============================================================================
// PROFILE HANDLERS
// =============================================================================

// ListProfiles returns all profiles.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Store.ListProfiles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list profiles", err)
		return
	}
	if profiles == nil {
		profiles = []sqlite.Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

// GetProfile returns one profile by id.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.Store.GetProfile(r.Context(), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Profile not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SaveProfile creates or updates a profile.
func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	err := h.Store.SaveProfile(r.Context(), sqlite.Profile{
		ID:      req.ID,
		Name:    req.Name,
		Email:   req.Email,
		IsAdmin: req.IsAdmin,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save profile", err)
		return
	}

	p, err := h.Store.GetProfile(r.Context(), req.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load saved profile", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// ListEvents returns the events attributed to a month, categories in the UI
// vocabulary. Optional user_id and type query parameters narrow the result;
// type accepts the UI vocabulary.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	year, month, ok := monthParams(w, r)
	if !ok {
		return
	}

	events, err := h.Store.EventsForMonth(r.Context(), year, month, h.Cfg.Location)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events", err)
		return
	}

	userFilter := r.URL.Query().Get("user_id")
	typeFilter := r.URL.Query().Get("type")
	var wantType string
	if typeFilter != "" {
		wantType = strings.ToUpper(strings.TrimSpace(typeFilter))
		if storage, ok := calendar.ToStorage(calendar.UIType(wantType)); ok {
			wantType = string(storage)
		}
	}

	dtos := make([]EventDTO, 0, len(events))
	for _, e := range events {
		if userFilter != "" && e.UserID != userFilter {
			continue
		}
		if wantType != "" && e.Type != wantType {
			continue
		}
		dtos = append(dtos, toEventDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEvent validates and stores a new event.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	event, err := h.eventFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	event.ID = fmt.Sprintf("evt-%d", time.Now().UnixNano())

	if err := h.Store.CreateEvent(r.Context(), event); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create event", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(event))
}

// UpdateEvent rewrites an existing event.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	event, err := h.eventFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	event.ID = id

	err = h.Store.UpdateEvent(r.Context(), event)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Event not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update event", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(event))
}

// DeleteEvent removes an event.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.Store.DeleteEvent(r.Context(), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Event not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete event", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// eventFromRequest validates an EventRequest and shapes it for storage:
// permits collapse to a single instant with at least one hour, day events
// carry an exclusive next-day end.
func (h *Handler) eventFromRequest(req EventRequest) (calendar.Event, error) {
	if req.UserID == "" {
		return calendar.Event{}, errors.New("user_id is required")
	}

	uiType := calendar.UIType(strings.ToUpper(strings.TrimSpace(req.Type)))
	storageType, ok := calendar.ToStorage(uiType)
	if !ok {
		return calendar.Event{}, fmt.Errorf("unknown event type %q", req.Type)
	}

	loc := h.Cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation("2006-01-02", req.StartDate, loc)
	if err != nil {
		return calendar.Event{}, errors.New("invalid start_date format (use YYYY-MM-DD)")
	}

	event := calendar.Event{
		UserID: req.UserID,
		Type:   string(storageType),
		Note:   strings.TrimSpace(req.Note),
	}

	if calendar.IsPermesso(uiType) {
		hours := int(math.Round(req.Hours))
		if hours < 1 {
			hours = 1
		}
		event.PermessoHours = hours
		event.StartsAt = start.UTC().Format(time.RFC3339)
		event.EndsAt = event.StartsAt
		return event, nil
	}

	end := start
	if req.EndDate != "" {
		end, err = time.ParseInLocation("2006-01-02", req.EndDate, loc)
		if err != nil {
			return calendar.Event{}, errors.New("invalid end_date format (use YYYY-MM-DD)")
		}
	}
	if end.Before(start) {
		return calendar.Event{}, errors.New("end_date before start_date")
	}

	// Instants are stored in UTC so string comparison in the store matches
	// chronological order.
	event.StartsAt = start.UTC().Format(time.RFC3339)
	event.EndsAt = end.AddDate(0, 0, 1).UTC().Format(time.RFC3339)
	return event, nil
}

func toEventDTO(e calendar.Event) EventDTO {
	typ := e.Type
	if ui, ok := calendar.ToUI(calendar.StorageType(e.Type)); ok {
		typ = string(ui)
	}
	return EventDTO{
		ID:            e.ID,
		UserID:        e.UserID,
		Type:          typ,
		StartsAt:      e.StartsAt,
		EndsAt:        e.EndsAt,
		PermessoHours: e.PermessoHours,
		Note:          e.Note,
	}
}

// =============================================================================
// SUMMARY AND HOLIDAY HANDLERS
// =============================================================================

// GetSummary returns the aggregated monthly rows.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	year, month, ok := monthParams(w, r)
	if !ok {
		return
	}

	rows, err := h.Store.MonthlyRows(r.Context(), year, month, h.Cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build summary", err)
		return
	}
	if rows == nil {
		rows = []calendar.MonthlyRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// ListHolidays returns the national holidays for a year, sorted by date.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year query parameter is required", nil)
		return
	}

	holidays := calendar.ItalianHolidays(year)
	dtos := make([]HolidayDTO, 0, len(holidays))
	for date, name := range holidays {
		dtos = append(dtos, HolidayDTO{Date: date, Name: name})
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Date < dtos[j].Date })
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// NOTE HANDLERS
// =============================================================================

// ListNotes returns the admin notes for a month as a user-id-to-note map.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	year, month, ok := monthParams(w, r)
	if !ok {
		return
	}

	notes, err := h.Store.MonthlyNotes(r.Context(), year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// SaveNote sets or clears the admin note for one user and month.
func (h *Handler) SaveNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || !validMonth(req.Year, req.Month) {
		writeError(w, http.StatusBadRequest, "user_id, year and month are required", nil)
		return
	}

	err := h.Store.SaveMonthlyNote(r.Context(), sqlite.MonthlyNote{
		ID:     fmt.Sprintf("note-%d", time.Now().UnixNano()),
		UserID: req.UserID,
		Year:   req.Year,
		Month:  req.Month,
		Note:   req.Note,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save note", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": true})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// DispatchReport renders and sends the monthly report. Gated by the shared
// secret so only the cron caller or an operator can trigger mail.
func (h *Handler) DispatchReport(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "Invalid or missing secret", nil)
		return
	}

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !validMonth(req.Year, req.Month) {
		writeError(w, http.StatusBadRequest, "year and month are required", nil)
		return
	}

	run, err := h.Dispatcher.Dispatch(r.Context(), req.Year, req.Month, sqlite.TriggerManual)
	if errors.Is(err, mail.ErrNoRecipients) {
		writeError(w, http.StatusBadRequest, "No report recipients available", nil)
		return
	}
	if errors.Is(err, sqlite.ErrDuplicateReportRun) {
		writeError(w, http.StatusConflict, "Report already dispatched for this month", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to dispatch report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportRunDTO(run))
}

// PreviewReport renders the report HTML without sending it.
func (h *Handler) PreviewReport(w http.ResponseWriter, r *http.Request) {
	year, month, ok := monthParams(w, r)
	if !ok {
		return
	}

	html, err := h.Dispatcher.Render(r.Context(), year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render report", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

// ListReportRuns returns the dispatch history, newest first.
func (h *Handler) ListReportRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListReportRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list report runs", err)
		return
	}

	dtos := make([]ReportRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toReportRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func toReportRunDTO(run sqlite.ReportRun) ReportRunDTO {
	return ReportRunDTO{
		ID:         run.ID,
		Year:       run.Year,
		Month:      run.Month,
		Trigger:    run.Trigger,
		Status:     run.Status,
		Error:      run.Error,
		Recipients: run.Recipients,
		SentAt:     run.SentAt.Format(time.RFC3339),
	}
}

// authorized checks the dispatch secret, accepted either as a bearer token
// or in the X-Cron-Secret header. An unset secret disables dispatch.
func (h *Handler) authorized(r *http.Request) bool {
	if h.CronSecret == "" {
		return false
	}
	if r.Header.Get("X-Cron-Secret") == h.CronSecret {
		return true
	}
	auth := r.Header.Get("Authorization")
	return auth != "" && strings.TrimPrefix(auth, "Bearer ") == h.CronSecret
}

// =============================================================================
// HELPERS
// =============================================================================

// monthParams parses the year and month query parameters, writing a 400 on
// failure.
func monthParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	year, err1 := strconv.Atoi(r.URL.Query().Get("year"))
	month, err2 := strconv.Atoi(r.URL.Query().Get("month"))
	if err1 != nil || err2 != nil || !validMonth(year, month) {
		writeError(w, http.StatusBadRequest, "year and month query parameters are required", nil)
		return 0, 0, false
	}
	return year, month, true
}

func validMonth(year, month int) bool {
	return year >= 1 && month >= 1 && month <= 12
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
