package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/agenda-bot/internal/db"
	"github.com/clinicdesk/agenda-bot/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	patients, err := seedPatients(context.Background(), pool, 200)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, patients, 14); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		// Synthetic chat IDs, well clear of real Telegram ranges.
		chatID := int64(1_000_000_000) + int64(i)
		name := gofakeit.Name()

		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, chat_id, name)
			VALUES ($1, $2, $3)
		`, id, chatID, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("patients seeded")
	return ids, nil
}

// seedAppointments fills the next `days` working days with bookings, at
// most one patient per slot, leaving a scattering of slots open so next
// available slot searches have something to find.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, patients []uuid.UUID, days int) error {
	log.Printf("seeding appointments across %d days", days)

	slots := schedule.WorkingHours()
	next := 0

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	booked := 0
	for day := 1; day <= days && next < len(patients); day++ {
		date := time.Now().AddDate(0, 0, day).Format("2006-01-02")
		for _, slot := range slots {
			if next >= len(patients) {
				break
			}
			// Leave roughly a quarter of the grid open.
			if gofakeit.Number(1, 4) == 1 {
				continue
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, patient_id, appointment_date, appointment_time, reminder_sent)
				VALUES ($1, $2, $3, $4, FALSE)
			`, uuid.New(), patients[next], date, slot)
			if err != nil {
				return fmt.Errorf("insert appointment %s %s: %w", date, slot, err)
			}
			next++
			booked++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("appointments seeded: %d", booked)
	return nil
}
