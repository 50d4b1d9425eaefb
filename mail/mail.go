/*
Package mail delivers the monthly report.

PURPOSE:
  Wraps SMTP delivery behind a small Sender interface and layers the
  Dispatcher on top: resolve recipients, render the report for a month,
  record a pending run, send, mark the run sent or failed. The HTTP layer
  and the background scheduler
  both go through the Dispatcher so manual and scheduled sends share one
  code path.

RECIPIENT RESOLUTION:
  Admin profiles with a non-empty email address, sorted. When no admin is
  addressable the Dispatcher falls back to the statically configured
  recipient list; with neither, dispatch fails rather than silently
  dropping the report.

SEE ALSO:
  - report/render.go: produces the HTML body sent here
  - api/scheduler.go: the second-Monday trigger calling Dispatch
*/
package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	gomail "gopkg.in/gomail.v2"

	"github.com/gci/presenze/calendar"
	"github.com/gci/presenze/report"
	"github.com/gci/presenze/store/sqlite"
)

// ErrNoRecipients is returned when neither admin profiles nor the configured
// fallback yield an address to send to.
var ErrNoRecipients = errors.New("no report recipients available")

// Sender delivers one HTML message.
type Sender interface {
	Send(to []string, subject, htmlBody string) error
}

// =============================================================================
// SMTP SENDER
// =============================================================================

// SMTPConfig holds the SMTP endpoint and the From address.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail through a plain SMTP endpoint.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates a sender for the given endpoint.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers a single HTML message to all recipients.
func (s *SMTPSender) Send(to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher assembles and delivers the monthly report.
type Dispatcher struct {
	store              *sqlite.Store
	sender             Sender
	cfg                calendar.Config
	fallbackRecipients []string
}

// NewDispatcher wires the dispatcher. fallbackRecipients is used when no
// admin profile carries an email address.
func NewDispatcher(store *sqlite.Store, sender Sender, cfg calendar.Config, fallbackRecipients []string) *Dispatcher {
	return &Dispatcher{
		store:              store,
		sender:             sender,
		cfg:                cfg,
		fallbackRecipients: fallbackRecipients,
	}
}

// Recipients resolves the report's recipient list.
func (d *Dispatcher) Recipients(ctx context.Context) ([]string, error) {
	emails, err := d.store.AdminEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve admin recipients: %w", err)
	}
	if len(emails) > 0 {
		return emails, nil
	}
	if len(d.fallbackRecipients) > 0 {
		return d.fallbackRecipients, nil
	}
	return nil, ErrNoRecipients
}

// Render builds the report HTML for (year, month) without sending it.
func (d *Dispatcher) Render(ctx context.Context, year, month int) (string, error) {
	rows, err := d.store.MonthlyRows(ctx, year, month, d.cfg)
	if err != nil {
		return "", fmt.Errorf("failed to aggregate month: %w", err)
	}
	events, err := d.store.EventsForMonth(ctx, year, month, d.cfg.Location)
	if err != nil {
		return "", fmt.Errorf("failed to load month events: %w", err)
	}
	return report.RenderMonthly(rows, year, month, events, d.cfg), nil
}

// Dispatch renders and sends the report for (year, month) and records the
// run. trigger is sqlite.TriggerScheduled or sqlite.TriggerManual.
//
// The run row is written as pending BEFORE the send: if the process dies
// mid-delivery the row survives and blocks a second send, and the unique
// index turns a concurrent duplicate into ErrDuplicateReportRun up front.
// Failed sends keep their row, marked failed with the delivery error.
func (d *Dispatcher) Dispatch(ctx context.Context, year, month int, trigger string) (sqlite.ReportRun, error) {
	recipients, err := d.Recipients(ctx)
	if err != nil {
		return sqlite.ReportRun{}, err
	}

	htmlBody, err := d.Render(ctx, year, month)
	if err != nil {
		return sqlite.ReportRun{}, err
	}

	run := sqlite.ReportRun{
		ID:         fmt.Sprintf("run-%d", time.Now().UnixNano()),
		Year:       year,
		Month:      month,
		Trigger:    trigger,
		Status:     sqlite.StatusPending,
		Recipients: recipients,
		SentAt:     time.Now().UTC(),
	}
	if err := d.store.RecordReportRun(ctx, run); err != nil {
		return sqlite.ReportRun{}, err
	}

	subject := fmt.Sprintf("Riepilogo mese %02d/%d", month, year)
	if err := d.sender.Send(recipients, subject, htmlBody); err != nil {
		if updateErr := d.store.UpdateReportRunStatus(ctx, run.ID, sqlite.StatusFailed, err.Error()); updateErr != nil {
			logrus.WithError(updateErr).Warn("failed to mark report run as failed")
		}
		return sqlite.ReportRun{}, err
	}

	if err := d.store.UpdateReportRunStatus(ctx, run.ID, sqlite.StatusSent, ""); err != nil {
		// The mail already went out; losing the status flip is the lesser harm.
		logrus.WithError(err).WithFields(logrus.Fields{
			"year":  year,
			"month": month,
		}).Warn("report sent but run not marked sent")
	}
	run.Status = sqlite.StatusSent

	logrus.WithFields(logrus.Fields{
		"year":       year,
		"month":      month,
		"trigger":    trigger,
		"recipients": len(recipients),
	}).Info("monthly report dispatched")

	return run, nil
}
