package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// EventStatus is the lifecycle of a workshop or concert
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
)

// IsValid checks the status against the known set
func (s EventStatus) IsValid() bool {
	switch s {
	case EventStatusDraft, EventStatusPublished, EventStatusCancelled:
		return true
	}
	return false
}

// DeliveryMethod says how a workshop is attended
type DeliveryMethod string

const (
	DeliveryOnline   DeliveryMethod = "online"
	DeliveryInPerson DeliveryMethod = "in_person"
	DeliveryHybrid   DeliveryMethod = "hybrid"
)

func (d DeliveryMethod) IsValid() bool {
	switch d {
	case DeliveryOnline, DeliveryInPerson, DeliveryHybrid:
		return true
	}
	return false
}

// Venue is a physical location
type Venue struct {
	Name     string `json:"name,omitempty"`
	Address  string `json:"address,omitempty"`
	Postcode string `json:"postcode,omitempty"`
	MapURL   string `json:"map_url,omitempty"`
}

// DefaultMaxParticipants applies when a workshop is created without a limit
const DefaultMaxParticipants = 20

// Workshop is a single-seat-per-user event sold to registered users
type Workshop struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Slug             string         `json:"slug"`
	Description      string         `json:"description"`
	ShortDescription string         `json:"short_description"`
	Date             time.Time      `json:"date"`
	StartTime        ClockTime      `json:"start_time"`
	EndTime          ClockTime      `json:"end_time"`
	Delivery         DeliveryMethod `json:"delivery_method"`
	Venue            Venue          `json:"venue"`
	MeetingURL       string         `json:"meeting_url,omitempty"`
	MeetingPassword  string         `json:"meeting_password,omitempty"`
	Prerequisites    string         `json:"prerequisites,omitempty"`
	MaterialsNeeded  string         `json:"materials_needed,omitempty"`
	Price            Pence          `json:"price"`
	MaxParticipants  int            `json:"max_participants"`
	// CurrentRegistrations caches the count of paid and attended registrations
	CurrentRegistrations int         `json:"current_registrations"`
	LegacyBookings       int         `json:"legacy_bookings"`
	HideAvailability     bool        `json:"hide_availability"`
	Status               EventStatus `json:"status"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// Validate checks the fields staff can set
func (w *Workshop) Validate() error {
	var problems []string
	if strings.TrimSpace(w.Title) == "" {
		problems = append(problems, "title is required")
	}
	if w.Date.IsZero() {
		problems = append(problems, "date is required")
	}
	if !w.Delivery.IsValid() {
		problems = append(problems, "delivery method must be online, in_person or hybrid")
	}
	if !w.Status.IsValid() {
		problems = append(problems, "status must be draft, published or cancelled")
	}
	if w.Price < 0 {
		problems = append(problems, "price cannot be negative")
	}
	if w.MaxParticipants <= 0 {
		problems = append(problems, "max participants must be positive")
	}
	if w.LegacyBookings < 0 {
		problems = append(problems, "legacy bookings cannot be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(problems, "; "))
	}
	return nil
}

// DurationHours is end minus start, crossing midnight when end < start, to the nearest half hour.
func (w *Workshop) DurationHours() float64 {
	minutes := int(w.EndTime) - int(w.StartTime)
	if minutes < 0 {
		minutes += 24 * 60
	}
	return math.Round(float64(minutes)/30) / 2
}

// TotalBookings counts online registrations plus bookings taken before the system existed
func (w *Workshop) TotalBookings() int {
	return w.CurrentRegistrations + w.LegacyBookings
}

func (w *Workshop) IsFull() bool {
	return w.TotalBookings() >= w.MaxParticipants
}

func (w *Workshop) PlacesRemaining() int {
	return max(0, w.MaxParticipants-w.TotalBookings())
}

func (w *Workshop) IsOnline() bool {
	return w.Delivery == DeliveryOnline || w.Delivery == DeliveryHybrid
}

func (w *Workshop) IsInPerson() bool {
	return w.Delivery == DeliveryInPerson || w.Delivery == DeliveryHybrid
}

// StartsAt is the London instant the workshop begins
func (w *Workshop) StartsAt() time.Time {
	return w.StartTime.On(w.Date)
}

// IsPast reports whether the workshop date is before today's date
func (w *Workshop) IsPast(now time.Time) bool {
	return w.Date.Before(CivilDate(now))
}

// Availability builds the capacity view given other buyers' live holds
func (w *Workshop) Availability(held int) Availability {
	capacity := w.MaxParticipants
	return Availability{Capacity: &capacity, Confirmed: w.TotalBookings(), Held: held}
}

// ScheduleLine is the human description used on checkout pages and emails
func (w *Workshop) ScheduleLine() string {
	return fmt.Sprintf("%s, %s–%s", w.Date.Format("Monday 2 January 2006"), w.StartTime, w.EndTime)
}
