package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicdesk/agenda-bot/internal/conversation"
	"github.com/clinicdesk/agenda-bot/internal/schedule"
	"github.com/clinicdesk/agenda-bot/pkg/logging"
)

// Scheduler periodically scans for appointments due in 24 hours that have
// not been reminded yet and notifies each patient once. Sends happen before
// marking: a failed send leaves the row unmarked so the next tick retries
// it. At-least-once delivery, with a duplicate possible only when marking
// fails after a successful send.
type Scheduler struct {
	store        schedule.Store
	transport    conversation.Transport
	logger       *logging.Logger
	loc          *time.Location
	now          func() time.Time
	interval     time.Duration
	initialDelay time.Duration
	storeTimeout time.Duration
}

type Params struct {
	Store        schedule.Store
	Transport    conversation.Transport
	Logger       *logging.Logger
	Location     *time.Location
	Now          func() time.Time // test hook; defaults to time.Now
	Interval     time.Duration    // defaults to 30s
	InitialDelay time.Duration    // defaults to 60s, avoids racing service startup
	StoreTimeout time.Duration    // defaults to 5s
}

func NewScheduler(p Params) *Scheduler {
	if p.Logger == nil {
		p.Logger = logging.Default()
	}
	if p.Location == nil {
		p.Location = time.FixedZone("-03", -3*60*60)
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Interval <= 0 {
		p.Interval = 30 * time.Second
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 60 * time.Second
	}
	if p.StoreTimeout <= 0 {
		p.StoreTimeout = 5 * time.Second
	}
	return &Scheduler{
		store:        p.Store,
		transport:    p.Transport,
		logger:       p.Logger,
		loc:          p.Location,
		now:          p.Now,
		interval:     p.Interval,
		initialDelay: p.InitialDelay,
		storeTimeout: p.StoreTimeout,
	}
}

// Run blocks until ctx is canceled. An in-flight scan is allowed to finish
// before Run returns; cancellation is only observed between scans.
func (s *Scheduler) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.initialDelay):
	}

	s.Scan(scanContext(ctx, s.storeTimeout))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopping")
			return
		case <-ticker.C:
			s.Scan(scanContext(ctx, s.storeTimeout))
		}
	}
}

// scanContext detaches the scan from shutdown cancellation but keeps it
// bounded, so a scan underway when the process stops can run to completion.
func scanContext(ctx context.Context, timeout time.Duration) context.Context {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), 4*timeout)
	_ = cancel // bounded by the timeout itself
	return detached
}

// Scan performs one reminder pass. Errors are logged, never fatal: the next
// tick gets another chance.
func (s *Scheduler) Scan(ctx context.Context) {
	dueDate := s.now().In(s.loc).Add(24 * time.Hour).Format("2006-01-02")

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	targets, err := s.store.AppointmentsDueOn(sctx, dueDate)
	cancel()
	if err != nil {
		s.logger.Error("reminder scan query failed", "due_date", dueDate, "error", err)
		return
	}

	for _, t := range targets {
		if err := s.remind(ctx, t); err != nil {
			s.logger.Error("reminder failed",
				"appointment_id", t.AppointmentID, "chat_id", t.ChatID, "error", err)
		}
	}
}

func (s *Scheduler) remind(ctx context.Context, t schedule.ReminderTarget) error {
	msg := fmt.Sprintf(
		"Olá %s, lembrete do seu compromisso marcado para o dia %s às %s. Por favor, confirme, remarque ou cancele sua consulta.",
		t.PatientName, displayDate(t.Date), displayTime(t.Time),
	)

	if err := s.transport.SendMessage(ctx, t.ChatID, msg); err != nil {
		// Unmarked on purpose: the next tick retries this appointment.
		return fmt.Errorf("send reminder: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.store.MarkReminderSent(sctx, t.AppointmentID); err != nil {
		// The patient already got the message; a mark failure here means
		// they may get it again next tick. Preferred over losing reminders.
		return fmt.Errorf("mark reminder sent: %w", err)
	}

	s.logger.Info("reminder sent", "appointment_id", t.AppointmentID, "chat_id", t.ChatID)
	return nil
}

// displayDate renders 2006-01-02 in the local DD/MM/YYYY convention.
func displayDate(date string) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return d.Format("02/01/2006")
}

// displayTime trims seconds for display: 09:00:00 -> 09:00.
func displayTime(timeOfDay string) string {
	if len(timeOfDay) >= 5 {
		return timeOfDay[:5]
	}
	return timeOfDay
}
