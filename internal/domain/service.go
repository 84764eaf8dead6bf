package domain

import "time"

type ServiceType string

const (
	ServiceSession      ServiceType = "session"
	ServiceSubscription ServiceType = "subscription"
)

// Service is an offering from the business catalog. Appointments copy its
// title and description at booking time.
type Service struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Price           float64     `json:"price"`
	Currency        string      `json:"currency"`
	DurationMinutes int         `json:"duration"`
	Category        string      `json:"category"`
	Features        []string    `json:"features"`
	Type            ServiceType `json:"type"`
	Active          bool        `json:"isActive"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// TimeSlot is a bookable instant. Slots are computed per request and never stored.
type TimeSlot struct {
	ID        string    `json:"id"`
	Start     time.Time `json:"time"`
	Available bool      `json:"available"`
}

type DaySlots struct {
	Date  string     `json:"date"`
	Day   time.Time  `json:"day"`
	Slots []TimeSlot `json:"slots"`
}
