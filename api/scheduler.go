/*
scheduler.go - Automated monthly report scheduler

PURPOSE:
  Periodically checks whether today is the monthly report day (the second
  Monday of the month) and, if so, dispatches the previous month's report
  exactly once.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - The report_runs table dedups: a scheduled run already recorded for a
    month short-circuits, so restarts or long uptimes never double-send
  - Date decisions use the service timezone, not the host clock's zone

USAGE:
  scheduler := NewReportScheduler(store, dispatcher, loc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: DispatchReport endpoint (manual trigger)
  - mail/mail.go: the Dispatcher doing the actual send
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gci/presenze/mail"
	"github.com/gci/presenze/store/sqlite"
)

// ReportScheduler dispatches the monthly report on the second Monday.
type ReportScheduler struct {
	Store         *sqlite.Store
	Dispatcher    *mail.Dispatcher
	Location      *time.Location
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReportScheduler creates a new scheduler.
func NewReportScheduler(store *sqlite.Store, dispatcher *mail.Dispatcher, loc *time.Location) *ReportScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportScheduler{
		Store:         store,
		Dispatcher:    dispatcher,
		Location:      loc,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *ReportScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		logrus.Info("report scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	logrus.WithField("interval", rs.CheckInterval).Info("report scheduler started")
}

// Stop stops the scheduler.
func (rs *ReportScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		logrus.Info("report scheduler stopped")
	}
}

func (rs *ReportScheduler) run() {
	defer rs.wg.Done()

	// Check immediately on start
	rs.checkAndDispatch()

	for {
		select {
		case <-rs.ticker.C:
			rs.checkAndDispatch()
		case <-rs.stop:
			return
		}
	}
}

func (rs *ReportScheduler) checkAndDispatch() {
	now := time.Now().In(rs.Location)
	if !IsReportDay(now) {
		return
	}

	year, month := PreviousMonth(now)
	ctx := context.Background()

	sent, err := rs.Store.ScheduledRunExists(ctx, year, month)
	if err != nil {
		logrus.WithError(err).Error("failed to check report run log")
		return
	}
	if sent {
		return
	}

	logrus.WithFields(logrus.Fields{
		"year":  year,
		"month": month,
	}).Info("report day, dispatching previous month")

	_, err = rs.Dispatcher.Dispatch(ctx, year, month, sqlite.TriggerScheduled)
	if errors.Is(err, sqlite.ErrDuplicateReportRun) {
		// Another instance won the race; the run log already has the row.
		return
	}
	if err != nil {
		logrus.WithError(err).Error("scheduled report dispatch failed")
	}
}

// IsReportDay reports whether t falls on the second Monday of its month.
func IsReportDay(t time.Time) bool {
	return t.Weekday() == time.Monday && t.Day() >= 8 && t.Day() <= 14
}

// PreviousMonth returns the year and month preceding t's month.
func PreviousMonth(t time.Time) (int, int) {
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	prev := firstOfMonth.AddDate(0, 0, -1)
	return prev.Year(), int(prev.Month())
}
