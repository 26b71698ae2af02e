package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/agenda-bot/internal/nlu"
	"github.com/clinicdesk/agenda-bot/internal/redislock"
	"github.com/clinicdesk/agenda-bot/internal/schedule"
	"github.com/clinicdesk/agenda-bot/pkg/logging"
)

type sessionState int

const (
	awaitingNewDate sessionState = iota
	awaitingAltConfirm
)

// session is the ephemeral per-chat state of one reschedule exchange. It
// exists only between "I want to reschedule" and the terminal turn, and is
// owned exclusively by that chat's turns.
type session struct {
	state         sessionState
	appointmentID uuid.UUID
	originalTime  string // inherited when the patient gives a date without a time
	attempts      int    // failed date parses so far

	// Proposed alternative awaiting an explicit yes/no.
	altDate string
	altTime string
}

// Engine drives one conversation turn per inbound message: classify the
// intent, walk the reschedule state machine, and hand outcomes to the
// composer. Turns for different chats run concurrently; turns for the same
// chat are serialized.
type Engine struct {
	store          schedule.Store
	avail          *schedule.Availability
	locker         redislock.Locker
	composer       *Composer
	logger         *logging.Logger
	loc            *time.Location
	now            func() time.Time
	maxDateRetries int
	storeTimeout   time.Duration

	mu       sync.Mutex
	sessions map[int64]*session
	chatMu   map[int64]*sync.Mutex
}

type EngineParams struct {
	Store          schedule.Store
	Locker         redislock.Locker
	Composer       *Composer
	Logger         *logging.Logger
	Location       *time.Location
	Now            func() time.Time // test hook; defaults to time.Now
	MaxDateRetries int              // defaults to 3
	StoreTimeout   time.Duration    // defaults to 5s
}

func NewEngine(p EngineParams) *Engine {
	if p.Logger == nil {
		p.Logger = logging.Default()
	}
	if p.Location == nil {
		p.Location = time.FixedZone("-03", -3*60*60)
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.MaxDateRetries <= 0 {
		p.MaxDateRetries = 3
	}
	if p.StoreTimeout <= 0 {
		p.StoreTimeout = 5 * time.Second
	}
	return &Engine{
		store:          p.Store,
		avail:          schedule.NewAvailability(p.Store),
		locker:         p.Locker,
		composer:       p.Composer,
		logger:         p.Logger,
		loc:            p.Location,
		now:            p.Now,
		maxDateRetries: p.MaxDateRetries,
		storeTimeout:   p.StoreTimeout,
		sessions:       make(map[int64]*session),
		chatMu:         make(map[int64]*sync.Mutex),
	}
}

// HandleMessage processes one inbound message as a complete unit of work.
// Errors are reported to the caller for logging; the patient always gets
// some reply before this returns.
func (e *Engine) HandleMessage(ctx context.Context, chatID int64, text string) error {
	lock := e.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	// Global escape hatch, honored in every state.
	if strings.TrimSpace(strings.ToLower(text)) == "/cancel" {
		e.dropSession(chatID)
		e.composer.Finish(ctx, chatID, text, directiveExchangeAborted)
		return nil
	}

	if sess := e.getSession(chatID); sess != nil {
		switch sess.state {
		case awaitingAltConfirm:
			return e.handleAltConfirm(ctx, chatID, text, sess)
		default:
			return e.handleNewDate(ctx, chatID, text, sess)
		}
	}

	return e.handleIntent(ctx, chatID, text)
}

func (e *Engine) handleIntent(ctx context.Context, chatID int64, text string) error {
	intent := nlu.Classify(text)
	e.logger.Info("intent classified", "chat_id", chatID, "intent", intent)

	sctx, cancel := e.storeCtx(ctx)
	appt, err := e.store.AppointmentForChat(sctx, chatID)
	cancel()
	if err != nil {
		if errors.Is(err, schedule.ErrNoAppointment) || errors.Is(err, schedule.ErrPatientNotFound) {
			e.composer.Finish(ctx, chatID, text, directiveNoAppointment)
			return nil
		}
		e.composer.Say(ctx, chatID, storeTroubleReply)
		return fmt.Errorf("load appointment for chat %d: %w", chatID, err)
	}

	switch intent {
	case nlu.IntentConfirm:
		e.composer.Finish(ctx, chatID, text, directiveConfirmed)

	case nlu.IntentCancel:
		dctx, cancel := e.storeCtx(ctx)
		err := e.store.DeleteAppointment(dctx, appt.ID)
		cancel()
		if err != nil {
			e.composer.Say(ctx, chatID, storeTroubleReply)
			return fmt.Errorf("cancel appointment %s: %w", appt.ID, err)
		}
		e.composer.Finish(ctx, chatID, text, directiveCanceled)

	case nlu.IntentReschedule:
		e.setSession(chatID, &session{
			state:         awaitingNewDate,
			appointmentID: appt.ID,
			originalTime:  appt.Time,
		})
		e.composer.Prompt(ctx, chatID, directiveAskNewDate)

	default:
		e.composer.Finish(ctx, chatID, text, directiveAskClarify)
	}
	return nil
}

func (e *Engine) handleNewDate(ctx context.Context, chatID int64, text string, sess *session) error {
	parsed, err := nlu.NormalizeDateTime(text, e.now().In(e.loc))
	if err != nil {
		sess.attempts++
		if sess.attempts >= e.maxDateRetries {
			e.dropSession(chatID)
			e.composer.Finish(ctx, chatID, text, directiveGiveUpDate)
			return nil
		}
		e.composer.Say(ctx, chatID, invalidDateReply)
		return nil
	}

	newTime := parsed.Time
	if !parsed.HasTime {
		newTime = sess.originalTime
	}

	return e.bookSlot(ctx, chatID, text, sess, parsed.Date, newTime)
}

func (e *Engine) handleAltConfirm(ctx context.Context, chatID int64, text string, sess *session) error {
	if nlu.Classify(text) == nlu.IntentConfirm {
		return e.bookSlot(ctx, chatID, text, sess, sess.altDate, sess.altTime)
	}
	// Anything short of an explicit yes leaves the appointment untouched.
	e.dropSession(chatID)
	e.composer.Finish(ctx, chatID, text, directiveAltDeclined)
	return nil
}

// bookSlot runs the availability check and the conditional move as one
// critical section under the per-slot lock, so two chats racing for the
// same (date, time) cannot both book it.
func (e *Engine) bookSlot(ctx context.Context, chatID int64, inbound string, sess *session, date, timeOfDay string) error {
	var (
		booked  *schedule.Appointment
		altSlot string
		altOK   bool
	)

	err := e.locker.WithSlotLock(ctx, date, timeOfDay, func(lctx context.Context) error {
		sctx, cancel := e.storeCtx(lctx)
		defer cancel()

		free, err := e.avail.CheckAvailability(sctx, date, timeOfDay)
		if err != nil {
			return err
		}

		if free {
			appt, err := e.store.Reschedule(sctx, sess.appointmentID, date, timeOfDay)
			switch {
			case err == nil:
				booked = appt
				return nil
			case errors.Is(err, schedule.ErrSlotTaken):
				// Raced past the check anyway; fall through to the
				// alternative-slot path.
			default:
				return err
			}
		}

		slot, ok, err := e.avail.FindNextAvailableSlot(sctx, date)
		if err != nil {
			return err
		}
		altSlot, altOK = slot, ok
		return nil
	})

	if err != nil {
		if errors.Is(err, redislock.ErrLockNotAcquired) {
			// Another conversation holds this slot right now. Session stays
			// alive so the patient can simply try again.
			e.composer.Say(ctx, chatID, slotBusyReply)
			return nil
		}
		// Transient store trouble: tell the patient, keep the session, let
		// their next message retry.
		e.composer.Say(ctx, chatID, storeTroubleReply)
		return fmt.Errorf("book slot %s %s for chat %d: %w", date, timeOfDay, chatID, err)
	}

	if booked != nil {
		e.dropSession(chatID)
		e.composer.Finish(ctx, chatID, inbound, directiveRescheduled(booked.Date, booked.Time))
		e.logger.Info("appointment rescheduled",
			"chat_id", chatID, "appointment_id", booked.ID, "date", booked.Date, "time", booked.Time)
		return nil
	}

	if altOK {
		sess.state = awaitingAltConfirm
		sess.altDate, sess.altTime = date, altSlot
		e.composer.Prompt(ctx, chatID, directiveOfferSlot(date, altSlot))
		return nil
	}

	e.dropSession(chatID)
	e.composer.Finish(ctx, chatID, inbound, directiveDayFull(date))
	return nil
}

// Session registry. The map mutex guards registry access only; per-chat
// turn serialization comes from chatLock.

func (e *Engine) getSession(chatID int64) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[chatID]
}

func (e *Engine) setSession(chatID int64, s *session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[chatID] = s
}

func (e *Engine) dropSession(chatID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, chatID)
}

func (e *Engine) chatLock(chatID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.chatMu[chatID]
	if !ok {
		m = &sync.Mutex{}
		e.chatMu[chatID] = m
	}
	return m
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.storeTimeout)
}
