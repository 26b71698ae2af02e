package schedule

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PgStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewPgStore(mock), mock
}

func clock(h, m, s int) pgtype.Time {
	return pgtype.Time{
		Microseconds: int64(h*3600+m*60+s) * 1_000_000,
		Valid:        true,
	}
}

func TestPgCountAtSlot(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM appointments")).
		WithArgs("2024-01-15", "09:00:00").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	n, err := store.CountAtSlot(context.Background(), "2024-01-15", "09:00:00")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgAppointmentForChat(t *testing.T) {
	store, mock := newMockStore(t)

	apptID := uuid.New()
	patientID := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "patient_id", "appointment_date", "appointment_time", "reminder_sent"}).
		AddRow(apptID, patientID, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), clock(9, 0, 0), false)

	mock.ExpectQuery("SELECT a.id, a.patient_id").
		WithArgs(int64(42)).
		WillReturnRows(rows)

	appt, err := store.AppointmentForChat(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, apptID, appt.ID)
	assert.Equal(t, "2024-01-15", appt.Date)
	assert.Equal(t, "09:00:00", appt.Time)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgAppointmentForChatNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT a.id, a.patient_id").
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.AppointmentForChat(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNoAppointment)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestPgInsertSlotConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_slot_key"})

	_, err := store.InsertAppointment(context.Background(), uuid.New(), "2024-01-15", "09:00:00")
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestPgOutageIsDistinguishable(t *testing.T) {
	store, mock := newMockStore(t)
	connDown := errors.New("connection refused")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM appointments")).
		WillReturnError(connDown)

	_, err := store.CountAtSlot(context.Background(), "2024-01-15", "09:00:00")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestPgTimesForDate(t *testing.T) {
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"appointment_time"}).
		AddRow(clock(8, 0, 0)).
		AddRow(clock(9, 0, 0))

	mock.ExpectQuery("SELECT appointment_time FROM appointments").
		WithArgs("2024-01-15").
		WillReturnRows(rows)

	times, err := store.TimesForDate(context.Background(), "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00:00", "09:00:00"}, times)
}

func TestPgReschedule(t *testing.T) {
	store, mock := newMockStore(t)
	apptID := uuid.New()
	patientID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointment_history").
		WithArgs(apptID, "2024-01-20", "10:00:00").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(apptID, "2024-01-20", "10:00:00").
		WillReturnRows(pgxmock.NewRows([]string{"id", "patient_id", "appointment_date", "appointment_time", "reminder_sent"}).
			AddRow(apptID, patientID, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), clock(10, 0, 0), false))
	mock.ExpectCommit()

	appt, err := store.Reschedule(context.Background(), apptID, "2024-01-20", "10:00:00")
	require.NoError(t, err)
	assert.Equal(t, apptID, appt.ID)
	assert.Equal(t, "2024-01-20", appt.Date)
	assert.False(t, appt.ReminderSent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgMarkReminderSent(t *testing.T) {
	store, mock := newMockStore(t)
	apptID := uuid.New()

	mock.ExpectExec("UPDATE appointments SET reminder_sent").
		WithArgs(apptID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkReminderSent(context.Background(), apptID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgAppendDialogue(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO dialogues").
		WithArgs(int64(42), "quero remarcar", "Certo, para qual data?").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.AppendDialogue(context.Background(), DialogueRecord{
		ChatID:      42,
		UserMessage: "quero remarcar",
		BotResponse: "Certo, para qual data?",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
