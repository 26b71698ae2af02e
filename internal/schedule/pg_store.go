package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DB is the subset of pgxpool.Pool the store uses; pgxmock satisfies it in
// tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgStore struct {
	db DB
}

func NewPgStore(db DB) *PgStore {
	return &PgStore{db: db}
}

const uniqueViolation = "23505"

// wrapErr translates driver failures into the store's error vocabulary.
// Every non-row error counts as infrastructure failure, so callers can
// never mistake an outage for an empty result.
func wrapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrSlotTaken)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

// Helpers

func formatDate(d time.Time) string {
	return d.Format("2006-01-02")
}

// formatClock renders a TIME column value as HH:MM:SS.
func formatClock(t pgtype.Time) string {
	secs := t.Microseconds / 1_000_000
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a   Appointment
		d   time.Time
		tod pgtype.Time
	)
	if err := row.Scan(&a.ID, &a.PatientID, &d, &tod, &a.ReminderSent); err != nil {
		return nil, err
	}
	a.Date = formatDate(d)
	a.Time = formatClock(tod)
	return &a, nil
}

// Interface methods

func (s *PgStore) PatientByChat(ctx context.Context, chatID int64) (*Patient, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, chat_id, name
		FROM patients
		WHERE chat_id = $1
	`, chatID)

	var p Patient
	if err := row.Scan(&p.ID, &p.ChatID, &p.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, wrapErr("patient by chat", err)
	}
	return &p, nil
}

func (s *PgStore) AppointmentForChat(ctx context.Context, chatID int64) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT a.id, a.patient_id, a.appointment_date, a.appointment_time, a.reminder_sent
		FROM appointments a
		JOIN patients p ON a.patient_id = p.id
		WHERE p.chat_id = $1
	`, chatID)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoAppointment
		}
		return nil, wrapErr("appointment for chat", err)
	}
	return appt, nil
}

func (s *PgStore) AppointmentForPatient(ctx context.Context, patientID uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, patient_id, appointment_date, appointment_time, reminder_sent
		FROM appointments
		WHERE patient_id = $1
	`, patientID)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoAppointment
		}
		return nil, wrapErr("appointment for patient", err)
	}
	return appt, nil
}

func (s *PgStore) InsertAppointment(ctx context.Context, patientID uuid.UUID, date, timeOfDay string) (*Appointment, error) {
	id := uuid.New()

	row := s.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, appointment_date, appointment_time, reminder_sent)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id, patient_id, appointment_date, appointment_time, reminder_sent
	`, id, patientID, date, timeOfDay)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, wrapErr("insert appointment", err)
	}
	return appt, nil
}

func (s *PgStore) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM appointments WHERE id = $1
	`, id)
	if err != nil {
		return wrapErr("delete appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoAppointment
	}
	return nil
}

// Reschedule moves the appointment in one transaction: the old slot is
// recorded in appointment_history, then date/time are updated in place and
// the reminder flag cleared so the new date gets its own reminder. The
// unique slot index turns a lost race into ErrSlotTaken instead of a
// double booking.
func (s *PgStore) Reschedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Appointment, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, wrapErr("reschedule begin", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO appointment_history (appointment_id, old_date, old_time, new_date, new_time)
		SELECT id, appointment_date, appointment_time, $2, $3
		FROM appointments
		WHERE id = $1
	`, id, newDate, newTime)
	if err != nil {
		return nil, wrapErr("reschedule history", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2,
		    appointment_time = $3,
		    reminder_sent = FALSE
		WHERE id = $1
		RETURNING id, patient_id, appointment_date, appointment_time, reminder_sent
	`, id, newDate, newTime)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoAppointment
		}
		return nil, wrapErr("reschedule update", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("reschedule commit", err)
	}
	return appt, nil
}

func (s *PgStore) CountAtSlot(ctx context.Context, date, timeOfDay string) (int, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE appointment_date = $1 AND appointment_time = $2
	`, date, timeOfDay)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, wrapErr("count at slot", err)
	}
	return n, nil
}

func (s *PgStore) TimesForDate(ctx context.Context, date string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT appointment_time FROM appointments
		WHERE appointment_date = $1
		ORDER BY appointment_time ASC
	`, date)
	if err != nil {
		return nil, wrapErr("times for date", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var tod pgtype.Time
		if err := rows.Scan(&tod); err != nil {
			return nil, wrapErr("times for date scan", err)
		}
		times = append(times, formatClock(tod))
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("times for date rows", err)
	}
	return times, nil
}

func (s *PgStore) AppointmentsDueOn(ctx context.Context, date string) ([]ReminderTarget, error) {
	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.appointment_date, a.appointment_time, p.name, p.chat_id
		FROM appointments a
		JOIN patients p ON a.patient_id = p.id
		WHERE a.appointment_date = $1 AND a.reminder_sent = FALSE
	`, date)
	if err != nil {
		return nil, wrapErr("appointments due on", err)
	}
	defer rows.Close()

	var due []ReminderTarget
	for rows.Next() {
		var (
			t   ReminderTarget
			d   time.Time
			tod pgtype.Time
		)
		if err := rows.Scan(&t.AppointmentID, &d, &tod, &t.PatientName, &t.ChatID); err != nil {
			return nil, wrapErr("appointments due on scan", err)
		}
		t.Date = formatDate(d)
		t.Time = formatClock(tod)
		due = append(due, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("appointments due on rows", err)
	}
	return due, nil
}

func (s *PgStore) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET reminder_sent = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return wrapErr("mark reminder sent", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoAppointment
	}
	return nil
}

func (s *PgStore) AppendDialogue(ctx context.Context, rec DialogueRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO dialogues (chat_id, user_message, bot_response)
		VALUES ($1, $2, $3)
	`, rec.ChatID, rec.UserMessage, rec.BotResponse)
	if err != nil {
		return wrapErr("append dialogue", err)
	}
	return nil
}
