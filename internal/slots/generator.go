// Package slots builds the grid of bookable instants shown to clients.
package slots

import (
	"fmt"
	"time"

	"lifecoach/backend/internal/domain"
)

type Rules struct {
	HorizonDays int
	OpenHour    int
	CloseHour   int
	Step        time.Duration
	Location    *time.Location
}

func DefaultRules() Rules {
	return Rules{
		HorizonDays: 14,
		OpenHour:    9,
		CloseHour:   18,
		Step:        30 * time.Minute,
		Location:    time.UTC,
	}
}

func (r Rules) normalized() Rules {
	d := DefaultRules()
	if r.HorizonDays <= 0 {
		r.HorizonDays = d.HorizonDays
	}
	if r.CloseHour <= r.OpenHour || r.OpenHour < 0 || r.CloseHour > 24 {
		r.OpenHour, r.CloseHour = d.OpenHour, d.CloseHour
	}
	if r.Step <= 0 {
		r.Step = d.Step
	}
	if r.Location == nil {
		r.Location = d.Location
	}
	return r
}

// Generate returns one bucket per weekday in the horizon starting the day
// after now. A slot is available when it starts after now and does not
// overlap an active appointment. The result depends only on its inputs.
func Generate(now time.Time, booked []domain.Appointment, rules Rules) []domain.DaySlots {
	rules = rules.normalized()
	local := now.In(rules.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, rules.Location)

	active := make([]domain.Appointment, 0, len(booked))
	for _, a := range booked {
		if a.Status.Active() {
			active = append(active, a)
		}
	}

	days := make([]domain.DaySlots, 0, rules.HorizonDays)
	for i := 1; i <= rules.HorizonDays; i++ {
		day := today.AddDate(0, 0, i)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		open := time.Date(day.Year(), day.Month(), day.Day(), rules.OpenHour, 0, 0, 0, rules.Location)
		closeAt := time.Date(day.Year(), day.Month(), day.Day(), rules.CloseHour, 0, 0, 0, rules.Location)

		bucket := domain.DaySlots{
			Date: day.Format(time.DateOnly),
			Day:  day,
		}
		for start := open; start.Before(closeAt); start = start.Add(rules.Step) {
			end := start.Add(rules.Step)
			bucket.Slots = append(bucket.Slots, domain.TimeSlot{
				ID:        SlotID(start),
				Start:     start,
				Available: start.After(now) && !overlapsAny(active, start, end),
			})
		}
		days = append(days, bucket)
	}
	return days
}

// SlotID derives a stable id from the slot's local date, hour and minute.
func SlotID(start time.Time) string {
	return fmt.Sprintf("slot-%s-%d-%d", start.Format(time.DateOnly), start.Hour(), start.Minute())
}

// Find looks a slot up by id across the grid.
func Find(days []domain.DaySlots, slotID string) (domain.TimeSlot, bool) {
	for _, d := range days {
		for _, s := range d.Slots {
			if s.ID == slotID {
				return s, true
			}
		}
	}
	return domain.TimeSlot{}, false
}

// FindDay returns the bucket for a YYYY-MM-DD date.
func FindDay(days []domain.DaySlots, date string) (domain.DaySlots, bool) {
	for _, d := range days {
		if d.Date == date {
			return d, true
		}
	}
	return domain.DaySlots{}, false
}

func overlapsAny(active []domain.Appointment, start, end time.Time) bool {
	for _, a := range active {
		if a.Overlaps(start, end) {
			return true
		}
	}
	return false
}
