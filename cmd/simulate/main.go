package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/agenda-bot/internal/conversation"
	"github.com/clinicdesk/agenda-bot/internal/redislock"
	"github.com/clinicdesk/agenda-bot/internal/schedule"
	"github.com/clinicdesk/agenda-bot/pkg/logging"
)

// The simulator drives many concurrent reschedule conversations against
// an in-memory store to exercise the slot-locking path under contention.
// Every chat asks for the same date, so at most ten of them can win a
// slot on the working-hours grid.

type SimConfig struct {
	Chats      int
	TargetDate string
	Verbose    bool
}

type OperationMetrics struct {
	Total     int64
	Errors    int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, err error) {
	atomic.AddInt64(&om.Total, 1)
	if err != nil {
		atomic.AddInt64(&om.Errors, 1)
	}
	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p95
}

// sinkTransport swallows outbound messages, optionally echoing them.
type sinkTransport struct {
	verbose bool
	sent    int64
}

func (s *sinkTransport) SendMessage(ctx context.Context, chatID int64, text string) error {
	atomic.AddInt64(&s.sent, 1)
	if s.verbose {
		log.Printf("-> chat %d: %s", chatID, text)
	}
	return nil
}

// literalGenerator skips the LLM and returns the directive itself.
type literalGenerator struct{}

func (literalGenerator) Generate(ctx context.Context, directive string) (string, error) {
	return directive, nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := SimConfig{}
	flag.IntVar(&cfg.Chats, "chats", 50, "number of concurrent chats")
	flag.StringVar(&cfg.TargetDate, "date", "", "contested date, DD/MM/YYYY (default: a week out)")
	flag.BoolVar(&cfg.Verbose, "v", false, "log every outbound message")
	flag.Parse()

	if cfg.TargetDate == "" {
		cfg.TargetDate = time.Now().AddDate(0, 0, 7).Format("02/01/2006")
	}
	log.Printf("simulator starting: chats=%d target=%s", cfg.Chats, cfg.TargetDate)

	store := schedule.NewMemoryStore()
	transport := &sinkTransport{verbose: cfg.Verbose}
	logger := logging.New("error")

	engine := conversation.NewEngine(conversation.EngineParams{
		Store:    store,
		Locker:   redislock.NewLocalLocker(),
		Composer: conversation.NewComposer(literalGenerator{}, transport, store, logger),
		Logger:   logger,
	})

	// Every chat starts with an appointment far in the past on a
	// distinct slot, then asks to move to the contested date.
	slots := schedule.WorkingHours()
	for i := 0; i < cfg.Chats; i++ {
		p := schedule.Patient{ID: uuid.New(), ChatID: int64(i + 1), Name: fmt.Sprintf("Paciente %03d", i+1)}
		store.AddPatient(p)
		date := time.Now().AddDate(0, 0, -(i/len(slots) + 1)).Format("2006-01-02")
		if _, err := store.InsertAppointment(context.Background(), p.ID, date, slots[i%len(slots)]); err != nil {
			log.Fatalf("seed chat %d: %v", p.ChatID, err)
		}
	}

	metrics := &OperationMetrics{}
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Chats; i++ {
		chatID := int64(i + 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runConversation(engine, metrics, chatID, cfg.TargetDate)
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	report(store, transport, metrics, cfg, elapsed)
}

func runConversation(engine *conversation.Engine, metrics *OperationMetrics, chatID int64, targetDate string) {
	ctx := context.Background()
	turns := []string{
		"quero remarcar minha consulta",
		targetDate,
		"sim", // accept an offered alternative, harmless otherwise
	}

	for _, turn := range turns {
		// Jitter so the lock sees interleaved, not lockstep, traffic.
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)

		t0 := time.Now()
		err := engine.HandleMessage(ctx, chatID, turn)
		metrics.Record(time.Since(t0), err)
	}
}

func report(store *schedule.MemoryStore, transport *sinkTransport, metrics *OperationMetrics, cfg SimConfig, elapsed time.Duration) {
	appts := store.Appointments()

	perSlot := make(map[string]int)
	for _, a := range appts {
		perSlot[a.Date+" "+a.Time]++
	}
	doubles := 0
	for _, n := range perSlot {
		if n > 1 {
			doubles++
		}
	}

	// How many chats landed somewhere on the contested date.
	target := parseBR(cfg.TargetDate)
	won := 0
	for _, a := range appts {
		if a.Date == target {
			won++
		}
	}

	avg, min, max, p95 := metrics.Stats()

	log.Printf("done in %s", elapsed)
	log.Printf("turns: total=%d errors=%d messages_sent=%d", metrics.Total, metrics.Errors, atomic.LoadInt64(&transport.sent))
	log.Printf("latency: avg=%s min=%s max=%s p95=%s", avg, min, max, p95)
	log.Printf("contested date %s: %d/%d chats booked (grid holds %d)",
		cfg.TargetDate, won, cfg.Chats, len(schedule.WorkingHours()))
	if doubles > 0 {
		log.Fatalf("INVARIANT VIOLATED: %d slots double-booked", doubles)
	}
	log.Println("no double bookings")
}

func parseBR(d string) string {
	parts := strings.Split(d, "/")
	if len(parts) != 3 {
		return d
	}
	return fmt.Sprintf("%s-%s-%s", parts[2], parts[1], parts[0])
}
