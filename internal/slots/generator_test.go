package slots

import (
	"reflect"
	"testing"
	"time"

	"lifecoach/backend/internal/domain"
)

// Wednesday.
var now = time.Date(2025, 7, 9, 8, 15, 0, 0, time.UTC)

func TestGenerate_GridShape(t *testing.T) {
	days := Generate(now, nil, DefaultRules())

	// Jul 10..23 holds 14 calendar days, 4 of them weekend days.
	if len(days) != 10 {
		t.Fatalf("len(days) = %d, want 10", len(days))
	}
	if days[0].Date != "2025-07-10" {
		t.Fatalf("first day = %s, want 2025-07-10", days[0].Date)
	}
	if last := days[len(days)-1].Date; last != "2025-07-23" {
		t.Fatalf("last day = %s, want 2025-07-23", last)
	}

	for _, d := range days {
		if wd := d.Day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("weekend day %s included", d.Date)
		}
		if len(d.Slots) != 18 {
			t.Fatalf("day %s has %d slots, want 18", d.Date, len(d.Slots))
		}
		first := d.Slots[0].Start
		if first.Hour() != 9 || first.Minute() != 0 {
			t.Fatalf("first slot = %v, want 09:00", first)
		}
		last := d.Slots[len(d.Slots)-1].Start
		if last.Hour() != 17 || last.Minute() != 30 {
			t.Fatalf("last slot = %v, want 17:30", last)
		}
		for i := 1; i < len(d.Slots); i++ {
			if gap := d.Slots[i].Start.Sub(d.Slots[i-1].Start); gap != 30*time.Minute {
				t.Fatalf("gap = %v, want 30m", gap)
			}
		}
	}
}

func TestGenerate_HorizonAlwaysFourteenCalendarDays(t *testing.T) {
	for offset := 0; offset < 7; offset++ {
		n := now.AddDate(0, 0, offset)
		days := Generate(n, nil, DefaultRules())
		horizonEnd := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 14)
		for _, d := range days {
			if !d.Day.After(n) || d.Day.After(horizonEnd) {
				t.Fatalf("now=%s: day %s outside horizon", n.Format(time.DateOnly), d.Date)
			}
		}
		if len(days) != 10 {
			t.Fatalf("now=%s: len(days) = %d, want 10", n.Format(time.DateOnly), len(days))
		}
	}
}

func TestGenerate_BookedSlotsUnavailable(t *testing.T) {
	booked := []domain.Appointment{
		{
			StartTime: time.Date(2025, 7, 10, 10, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2025, 7, 10, 11, 0, 0, 0, time.UTC),
			Status:    domain.AppointmentConfirmed,
		},
		{
			StartTime: time.Date(2025, 7, 10, 14, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2025, 7, 10, 14, 30, 0, 0, time.UTC),
			Status:    domain.AppointmentCancelled,
		},
	}

	days := Generate(now, booked, DefaultRules())

	tests := []struct {
		id   string
		want bool
	}{
		{id: "slot-2025-07-10-9-30", want: true},
		{id: "slot-2025-07-10-10-0", want: false},
		{id: "slot-2025-07-10-10-30", want: false},
		{id: "slot-2025-07-10-11-0", want: true},
		{id: "slot-2025-07-10-14-0", want: true},
	}
	for _, tt := range tests {
		s, ok := Find(days, tt.id)
		if !ok {
			t.Fatalf("slot %s not found", tt.id)
		}
		if s.Available != tt.want {
			t.Fatalf("slot %s available = %v, want %v", tt.id, s.Available, tt.want)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	booked := []domain.Appointment{{
		StartTime: time.Date(2025, 7, 11, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 7, 11, 9, 30, 0, 0, time.UTC),
		Status:    domain.AppointmentPending,
	}}
	a := Generate(now, booked, DefaultRules())
	b := Generate(now, booked, DefaultRules())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Generate is not deterministic")
	}
}

func TestGenerate_Location(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	rules := DefaultRules()
	rules.Location = loc

	days := Generate(now, nil, rules)
	first := days[0].Slots[0].Start
	if first.Location() != loc || first.Hour() != 9 {
		t.Fatalf("first slot = %v, want 09:00 in %s", first, loc)
	}
}
