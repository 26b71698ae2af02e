package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and cmd/simulate. It
// enforces the same one-appointment-per-slot rule as the Postgres unique
// index.
type MemoryStore struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]*Patient
	appointments map[uuid.UUID]*Appointment
	dialogues    []DialogueRecord

	// failWith, when set, makes every call return that error. Lets tests
	// simulate a store outage.
	failWith error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients:     make(map[uuid.UUID]*Patient),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

// FailWith switches the whole store into a failure mode; nil restores it.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// AddPatient registers a patient for tests and the simulator.
func (m *MemoryStore) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.patients[p.ID] = &cp
}

// Dialogues returns a copy of the audit log.
func (m *MemoryStore) Dialogues() []DialogueRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DialogueRecord, len(m.dialogues))
	copy(out, m.dialogues)
	return out
}

// Appointments returns a snapshot of all appointments.
func (m *MemoryStore) Appointments() []Appointment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Appointment, 0, len(m.appointments))
	for _, a := range m.appointments {
		out = append(out, *a)
	}
	return out
}

func (m *MemoryStore) PatientByChat(ctx context.Context, chatID int64) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, p := range m.patients {
		if p.ChatID == chatID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (m *MemoryStore) AppointmentForChat(ctx context.Context, chatID int64) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, p := range m.patients {
		if p.ChatID != chatID {
			continue
		}
		return m.appointmentForPatientLocked(p.ID)
	}
	return nil, ErrNoAppointment
}

func (m *MemoryStore) AppointmentForPatient(ctx context.Context, patientID uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.appointmentForPatientLocked(patientID)
}

func (m *MemoryStore) appointmentForPatientLocked(patientID uuid.UUID) (*Appointment, error) {
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNoAppointment
}

func (m *MemoryStore) InsertAppointment(ctx context.Context, patientID uuid.UUID, date, timeOfDay string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, a := range m.appointments {
		if a.Date == date && a.Time == timeOfDay {
			return nil, ErrSlotTaken
		}
	}
	appt := &Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		Date:      date,
		Time:      timeOfDay,
	}
	m.appointments[appt.ID] = appt
	cp := *appt
	return &cp, nil
}

func (m *MemoryStore) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.appointments[id]; !ok {
		return ErrNoAppointment
	}
	delete(m.appointments, id)
	return nil
}

func (m *MemoryStore) Reschedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	appt, ok := m.appointments[id]
	if !ok {
		return nil, ErrNoAppointment
	}
	for _, a := range m.appointments {
		if a.ID != id && a.Date == newDate && a.Time == newTime {
			return nil, ErrSlotTaken
		}
	}
	appt.Date = newDate
	appt.Time = newTime
	appt.ReminderSent = false
	cp := *appt
	return &cp, nil
}

func (m *MemoryStore) CountAtSlot(ctx context.Context, date, timeOfDay string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	n := 0
	for _, a := range m.appointments {
		if a.Date == date && a.Time == timeOfDay {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) TimesForDate(ctx context.Context, date string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var times []string
	for _, a := range m.appointments {
		if a.Date == date {
			times = append(times, a.Time)
		}
	}
	sort.Strings(times)
	return times, nil
}

func (m *MemoryStore) AppointmentsDueOn(ctx context.Context, date string) ([]ReminderTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var due []ReminderTarget
	for _, a := range m.appointments {
		if a.Date != date || a.ReminderSent {
			continue
		}
		p, ok := m.patients[a.PatientID]
		if !ok {
			continue
		}
		due = append(due, ReminderTarget{
			AppointmentID: a.ID,
			Date:          a.Date,
			Time:          a.Time,
			PatientName:   p.Name,
			ChatID:        p.ChatID,
		})
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Time < due[j].Time })
	return due, nil
}

func (m *MemoryStore) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	appt, ok := m.appointments[id]
	if !ok {
		return ErrNoAppointment
	}
	appt.ReminderSent = true
	return nil
}

func (m *MemoryStore) AppendDialogue(ctx context.Context, rec DialogueRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.dialogues = append(m.dialogues, rec)
	return nil
}
