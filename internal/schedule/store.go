package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrNoAppointment   = errors.New("no appointment on record")

	// ErrSlotTaken reports that the target (date, time) pair is already
	// occupied. Raised by the unique slot index, so it holds even if two
	// writers pass the availability check concurrently.
	ErrSlotTaken = errors.New("slot already taken")

	// ErrStoreUnavailable marks transient infrastructure failures. Callers
	// must never fold it into "not found" or "no free slot".
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Store contains every persistence interaction the bot needs.
type Store interface {
	PatientByChat(ctx context.Context, chatID int64) (*Patient, error)
	AppointmentForChat(ctx context.Context, chatID int64) (*Appointment, error)
	AppointmentForPatient(ctx context.Context, patientID uuid.UUID) (*Appointment, error)

	InsertAppointment(ctx context.Context, patientID uuid.UUID, date, timeOfDay string) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// Reschedule moves an appointment in place, clears its reminder flag and
	// appends the previous slot to the history table, preserving the
	// appointment's identity across the move.
	Reschedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Appointment, error)

	// Availability reads.
	CountAtSlot(ctx context.Context, date, timeOfDay string) (int, error)
	TimesForDate(ctx context.Context, date string) ([]string, error)

	// Reminder scan: appointments on the given date not yet reminded,
	// joined with the patient's transport identity.
	AppointmentsDueOn(ctx context.Context, date string) ([]ReminderTarget, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error

	AppendDialogue(ctx context.Context, rec DialogueRecord) error
}
