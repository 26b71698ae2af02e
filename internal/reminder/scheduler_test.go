package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/agenda-bot/internal/schedule"
	"github.com/clinicdesk/agenda-bot/pkg/logging"
)

type recordingTransport struct {
	mu       sync.Mutex
	sent     []string
	failWith error
}

func (r *recordingTransport) SendMessage(ctx context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.sent = append(r.sent, text)
	return nil
}

func (r *recordingTransport) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	copy(out, r.sent)
	return out
}

var scanNow = time.Date(2024, 1, 9, 15, 0, 0, 0, time.FixedZone("-03", -3*60*60))

func newScanFixture(t *testing.T) (*Scheduler, *schedule.MemoryStore, *recordingTransport, schedule.Appointment) {
	t.Helper()

	store := schedule.NewMemoryStore()
	transport := &recordingTransport{}

	patient := schedule.Patient{ID: uuid.New(), ChatID: 42, Name: "Maria Souza"}
	store.AddPatient(patient)
	// Due tomorrow relative to scanNow.
	appt, err := store.InsertAppointment(context.Background(), patient.ID, "2024-01-10", "09:00:00")
	require.NoError(t, err)

	sched := NewScheduler(Params{
		Store:     store,
		Transport: transport,
		Logger:    logging.New("error"),
		Location:  scanNow.Location(),
		Now:       func() time.Time { return scanNow },
	})

	return sched, store, transport, *appt
}

func TestScanSendsAndMarks(t *testing.T) {
	sched, store, transport, appt := newScanFixture(t)

	sched.Scan(context.Background())

	msgs := transport.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Maria Souza")
	assert.Contains(t, msgs[0], "10/01/2024")
	assert.Contains(t, msgs[0], "09:00")
	assert.NotContains(t, msgs[0], "09:00:00", "display time drops seconds")

	appts := store.Appointments()
	require.Len(t, appts, 1)
	assert.Equal(t, appt.ID, appts[0].ID)
	assert.True(t, appts[0].ReminderSent)
}

func TestScanIsIdempotent(t *testing.T) {
	sched, _, transport, _ := newScanFixture(t)

	sched.Scan(context.Background())
	sched.Scan(context.Background())
	sched.Scan(context.Background())

	assert.Len(t, transport.messages(), 1, "a marked appointment is never reminded again")
}

func TestScanSkipsAppointmentsOutsideDueDate(t *testing.T) {
	sched, store, transport, _ := newScanFixture(t)
	other := schedule.Patient{ID: uuid.New(), ChatID: 43, Name: "João Lima"}
	store.AddPatient(other)
	// Two days out: date-only comparison, not a rolling window.
	_, err := store.InsertAppointment(context.Background(), other.ID, "2024-01-11", "09:00:00")
	require.NoError(t, err)

	sched.Scan(context.Background())

	require.Len(t, transport.messages(), 1)
	assert.Contains(t, transport.messages()[0], "Maria Souza")
}

func TestFailedSendLeavesUnmarkedForRetry(t *testing.T) {
	sched, store, transport, _ := newScanFixture(t)
	transport.failWith = errors.New("telegram timeout")

	sched.Scan(context.Background())

	assert.Empty(t, transport.messages())
	assert.False(t, store.Appointments()[0].ReminderSent)

	// Transport recovers: the next tick delivers the reminder.
	transport.failWith = nil
	sched.Scan(context.Background())

	assert.Len(t, transport.messages(), 1)
	assert.True(t, store.Appointments()[0].ReminderSent)
}

func TestScanSurvivesStoreOutage(t *testing.T) {
	sched, store, transport, _ := newScanFixture(t)
	store.FailWith(schedule.ErrStoreUnavailable)

	sched.Scan(context.Background())
	assert.Empty(t, transport.messages())

	store.FailWith(nil)
	sched.Scan(context.Background())
	assert.Len(t, transport.messages(), 1)
}

func TestRunHonorsInitialDelayAndShutdown(t *testing.T) {
	store := schedule.NewMemoryStore()
	transport := &recordingTransport{}
	sched := NewScheduler(Params{
		Store:        store,
		Transport:    transport,
		Logger:       logging.New("error"),
		Location:     scanNow.Location(),
		Now:          func() time.Time { return scanNow },
		Interval:     10 * time.Millisecond,
		InitialDelay: time.Hour, // never reached in this test
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	assert.Empty(t, transport.messages(), "no scan before the initial delay elapses")
}
