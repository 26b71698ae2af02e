package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Dates and times of day travel as canonical strings through the whole
// system: dates as "2006-01-02", times as "15:04:05". A slot is one
// (date, time) pair; at most one appointment may occupy it.

type Patient struct {
	ID     uuid.UUID
	ChatID int64 // transport identity (Telegram chat id)
	Name   string
}

type Appointment struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	Date         string // 2006-01-02
	Time         string // 15:04:05
	ReminderSent bool
}

// ReminderTarget is the appointment-patient join row consumed by the
// reminder scan: everything needed to address one notification.
type ReminderTarget struct {
	AppointmentID uuid.UUID
	Date          string
	Time          string
	PatientName   string
	ChatID        int64
}

// DialogueRecord is one turn of the append-only conversation audit log.
type DialogueRecord struct {
	ChatID      int64
	UserMessage string
	BotResponse string
	CreatedAt   time.Time
}
