package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/polyphonica/booking/internal/domain"
)

const dateLayout = "2006-01-02"

// ParseDate reads a YYYY-MM-DD calendar date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q, want YYYY-MM-DD", s)
	}
	return domain.Date(t.Year(), t.Month(), t.Day()), nil
}

func parsePrice(field, s string) (domain.Pence, error) {
	p, err := domain.ParsePounds(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return p, nil
}

// WorkshopRequest creates or replaces a workshop. Prices are in pounds.
type WorkshopRequest struct {
	Title            string                `json:"title" binding:"required"`
	Slug             string                `json:"slug"`
	Description      string                `json:"description"`
	ShortDescription string                `json:"short_description"`
	Date             string                `json:"date" binding:"required"`
	StartTime        string                `json:"start_time" binding:"required"`
	EndTime          string                `json:"end_time" binding:"required"`
	Delivery         domain.DeliveryMethod `json:"delivery_method"`
	Venue            domain.Venue          `json:"venue"`
	MeetingURL       string                `json:"meeting_url"`
	MeetingPassword  string                `json:"meeting_password"`
	Prerequisites    string                `json:"prerequisites"`
	MaterialsNeeded  string                `json:"materials_needed"`
	Price            string                `json:"price" binding:"required"`
	MaxParticipants  int                   `json:"max_participants"`
	LegacyBookings   int                   `json:"legacy_bookings"`
	HideAvailability bool                  `json:"hide_availability"`
	Status           domain.EventStatus    `json:"status"`
}

func (r *WorkshopRequest) ToDomain() (*domain.Workshop, error) {
	date, err := ParseDate(r.Date)
	if err != nil {
		return nil, err
	}
	start, err := domain.ParseClockTime(r.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseClockTime(r.EndTime)
	if err != nil {
		return nil, err
	}
	price, err := parsePrice("price", r.Price)
	if err != nil {
		return nil, err
	}
	return &domain.Workshop{
		Title:            r.Title,
		Slug:             r.Slug,
		Description:      r.Description,
		ShortDescription: r.ShortDescription,
		Date:             date,
		StartTime:        start,
		EndTime:          end,
		Delivery:         r.Delivery,
		Venue:            r.Venue,
		MeetingURL:       r.MeetingURL,
		MeetingPassword:  r.MeetingPassword,
		Prerequisites:    r.Prerequisites,
		MaterialsNeeded:  r.MaterialsNeeded,
		Price:            price,
		MaxParticipants:  r.MaxParticipants,
		LegacyBookings:   r.LegacyBookings,
		HideAvailability: r.HideAvailability,
		Status:           r.Status,
	}, nil
}

// ConcertRequest creates or replaces a concert. Prices are in pounds.
type ConcertRequest struct {
	Title             string              `json:"title" binding:"required"`
	Slug              string              `json:"slug"`
	Description       string              `json:"description"`
	Date              string              `json:"date" binding:"required"`
	Time              string              `json:"time" binding:"required"`
	DoorsOpen         string              `json:"doors_open"`
	Venue             domain.Venue        `json:"venue"`
	ProgrammeID       string              `json:"programme_id"`
	TicketSource      domain.TicketSource `json:"ticket_source"`
	ExternalTicketURL string              `json:"external_ticket_url"`
	FullPrice         string              `json:"full_price"`
	DiscountPrice     string              `json:"discount_price"`
	DiscountLabel     string              `json:"discount_label"`
	Capacity          *int                `json:"capacity"`
	Status            domain.EventStatus  `json:"status"`
}

func (r *ConcertRequest) ToDomain() (*domain.Concert, error) {
	date, err := ParseDate(r.Date)
	if err != nil {
		return nil, err
	}
	at, err := domain.ParseClockTime(r.Time)
	if err != nil {
		return nil, err
	}

	c := &domain.Concert{
		Title:             r.Title,
		Slug:              r.Slug,
		Description:       r.Description,
		Date:              date,
		Time:              at,
		Venue:             r.Venue,
		TicketSource:      r.TicketSource,
		ExternalTicketURL: r.ExternalTicketURL,
		DiscountLabel:     r.DiscountLabel,
		Capacity:          r.Capacity,
		Status:            r.Status,
	}
	if c.TicketSource == "" {
		c.TicketSource = domain.TicketSourceInternal
	}
	if r.DoorsOpen != "" {
		doors, err := domain.ParseClockTime(r.DoorsOpen)
		if err != nil {
			return nil, err
		}
		c.DoorsOpen = &doors
	}
	if r.ProgrammeID != "" {
		id := r.ProgrammeID
		c.ProgrammeID = &id
	}
	if r.FullPrice != "" {
		if c.FullPrice, err = parsePrice("full_price", r.FullPrice); err != nil {
			return nil, err
		}
	}
	if r.DiscountPrice != "" {
		discount, err := parsePrice("discount_price", r.DiscountPrice)
		if err != nil {
			return nil, err
		}
		c.DiscountPrice = &discount
	}
	return c, nil
}

// WorkshopResponse adds the derived fields pages show
type WorkshopResponse struct {
	*domain.Workshop
	DurationHours   float64 `json:"duration_hours"`
	TotalBookings   int     `json:"total_bookings"`
	IsFull          bool    `json:"is_full"`
	PlacesRemaining int     `json:"places_remaining"`
	IsOnline        bool    `json:"is_online"`
	IsInPerson      bool    `json:"is_in_person"`
	PriceDisplay    string  `json:"price_display"`
}

func FromWorkshop(w *domain.Workshop) *WorkshopResponse {
	return &WorkshopResponse{
		Workshop:        w,
		DurationHours:   w.DurationHours(),
		TotalBookings:   w.TotalBookings(),
		IsFull:          w.IsFull(),
		PlacesRemaining: w.PlacesRemaining(),
		IsOnline:        w.IsOnline(),
		IsInPerson:      w.IsInPerson(),
		PriceDisplay:    w.Price.String(),
	}
}

func FromWorkshops(ws []*domain.Workshop) []*WorkshopResponse {
	out := make([]*WorkshopResponse, len(ws))
	for i, w := range ws {
		out[i] = FromWorkshop(w)
	}
	return out
}

type ConcertResponse struct {
	*domain.Concert
	IsSoldOut        bool   `json:"is_sold_out"`
	TicketsRemaining *int   `json:"tickets_remaining"`
	SellsOnline      bool   `json:"sells_online"`
	DiscountLabel    string `json:"discount_label"`
}

func FromConcert(c *domain.Concert) *ConcertResponse {
	return &ConcertResponse{
		Concert:          c,
		IsSoldOut:        c.IsSoldOut(),
		TicketsRemaining: c.TicketsRemaining(),
		SellsOnline:      c.SellsOnline(),
		DiscountLabel:    c.DiscountLabelOrDefault(),
	}
}

func FromConcerts(cs []*domain.Concert) []*ConcertResponse {
	out := make([]*ConcertResponse, len(cs))
	for i, c := range cs {
		out[i] = FromConcert(c)
	}
	return out
}
