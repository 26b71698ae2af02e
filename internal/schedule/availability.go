package schedule

import (
	"context"
	"fmt"
)

// The working-hours grid: hourly slots from 08:00 to 17:00 inclusive.
// A fixed constant, never derived from store state, so an empty day
// always offers 08:00 first.
const (
	gridFirstHour = 8
	gridLastHour  = 17
)

// WorkingHours returns the ten on-the-hour slot times considered by
// availability search, ascending.
func WorkingHours() []string {
	hours := make([]string, 0, gridLastHour-gridFirstHour+1)
	for h := gridFirstHour; h <= gridLastHour; h++ {
		hours = append(hours, fmt.Sprintf("%02d:00:00", h))
	}
	return hours
}

// Availability answers slot questions against the shared calendar. It is
// read-only; writers must hold the per-slot lock around check+book.
type Availability struct {
	store Store
}

func NewAvailability(store Store) *Availability {
	return &Availability{store: store}
}

// CheckAvailability reports whether the exact (date, time) pair is free.
// A store failure surfaces as an error, never as "free".
func (a *Availability) CheckAvailability(ctx context.Context, date, timeOfDay string) (bool, error) {
	n, err := a.store.CountAtSlot(ctx, date, timeOfDay)
	if err != nil {
		return false, fmt.Errorf("check availability %s %s: %w", date, timeOfDay, err)
	}
	return n == 0, nil
}

// FindNextAvailableSlot returns the earliest free working-hours slot on the
// given date. ok is false when the date is fully booked; a store failure is
// reported separately so callers can tell the two apart.
func (a *Availability) FindNextAvailableSlot(ctx context.Context, date string) (slot string, ok bool, err error) {
	booked, err := a.store.TimesForDate(ctx, date)
	if err != nil {
		return "", false, fmt.Errorf("find next slot %s: %w", date, err)
	}

	taken := make(map[string]struct{}, len(booked))
	for _, t := range booked {
		taken[t] = struct{}{}
	}

	for _, t := range WorkingHours() {
		if _, busy := taken[t]; !busy {
			return t, true, nil
		}
	}
	return "", false, nil
}
