package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketSource says where a concert's tickets are sold
type TicketSource string

const (
	TicketSourceInternal TicketSource = "internal"
	TicketSourceExternal TicketSource = "external"
	TicketSourceDoor     TicketSource = "door"
	TicketSourceNone     TicketSource = "none"
)

func (s TicketSource) IsValid() bool {
	switch s {
	case TicketSourceInternal, TicketSourceExternal, TicketSourceDoor, TicketSourceNone:
		return true
	}
	return false
}

// TicketType is the price tier of a concert order
type TicketType string

const (
	TicketFull     TicketType = "full"
	TicketDiscount TicketType = "discount"
)

// DefaultDiscountLabel names the discount tier when staff leave it blank
const DefaultDiscountLabel = "Concession"

// Concert is an event sold to guests by quantity
type Concert struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	Slug              string       `json:"slug"`
	Description       string       `json:"description"`
	Date              time.Time    `json:"date"`
	Time              ClockTime    `json:"time"`
	DoorsOpen         *ClockTime   `json:"doors_open,omitempty"`
	Venue             Venue        `json:"venue"`
	ProgrammeID       *string      `json:"programme_id,omitempty"`
	TicketSource      TicketSource `json:"ticket_source"`
	ExternalTicketURL string       `json:"external_ticket_url,omitempty"`
	FullPrice         Pence        `json:"full_price"`
	DiscountPrice     *Pence       `json:"discount_price,omitempty"`
	DiscountLabel     string       `json:"discount_label"`
	// Capacity nil means unlimited
	Capacity *int `json:"capacity"`
	// TicketsSold caches the sum of paid order quantities
	TicketsSold int         `json:"tickets_sold"`
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Validate checks the fields staff can set
func (c *Concert) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Title) == "" {
		problems = append(problems, "title is required")
	}
	if c.Date.IsZero() {
		problems = append(problems, "date is required")
	}
	if !c.TicketSource.IsValid() {
		problems = append(problems, "ticket source must be internal, external, door or none")
	}
	if !c.Status.IsValid() {
		problems = append(problems, "status must be draft, published or cancelled")
	}
	if c.FullPrice < 0 || (c.DiscountPrice != nil && *c.DiscountPrice < 0) {
		problems = append(problems, "prices cannot be negative")
	}
	if c.Capacity != nil && *c.Capacity < 0 {
		problems = append(problems, "capacity cannot be negative")
	}
	if c.TicketSource == TicketSourceExternal && strings.TrimSpace(c.ExternalTicketURL) == "" {
		problems = append(problems, "external ticket URL is required for external ticket sales")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(problems, "; "))
	}
	return nil
}

// SellsOnline reports whether tickets go through this system's checkout
func (c *Concert) SellsOnline() bool {
	return c.TicketSource == TicketSourceInternal
}

func (c *Concert) limited() bool {
	return c.SellsOnline() && c.Capacity != nil
}

// IsSoldOut is only ever true for internally sold concerts with a capacity
func (c *Concert) IsSoldOut() bool {
	return c.limited() && c.TicketsSold >= *c.Capacity
}

// TicketsRemaining is nil unless tickets are sold internally against a capacity
func (c *Concert) TicketsRemaining() *int {
	if !c.limited() {
		return nil
	}
	n := max(0, *c.Capacity-c.TicketsSold)
	return &n
}

// HasDiscount reports whether a discount tier is on sale
func (c *Concert) HasDiscount() bool {
	return c.DiscountPrice != nil
}

// PriceFor returns the unit price of a ticket tier
func (c *Concert) PriceFor(t TicketType) (Pence, error) {
	switch t {
	case TicketFull:
		return c.FullPrice, nil
	case TicketDiscount:
		if c.DiscountPrice == nil {
			return 0, fmt.Errorf("%w: no %s price for this concert", ErrInvalidTicketType, strings.ToLower(c.DiscountLabelOrDefault()))
		}
		return *c.DiscountPrice, nil
	}
	return 0, ErrInvalidTicketType
}

// TierLabel is the buyer-facing name of a ticket tier
func (c *Concert) TierLabel(t TicketType) string {
	if t == TicketDiscount {
		return c.DiscountLabelOrDefault()
	}
	return "Full price"
}

func (c *Concert) DiscountLabelOrDefault() string {
	if strings.TrimSpace(c.DiscountLabel) == "" {
		return DefaultDiscountLabel
	}
	return c.DiscountLabel
}

// StartsAt is the London instant the concert begins
func (c *Concert) StartsAt() time.Time {
	return c.Time.On(c.Date)
}

func (c *Concert) IsPast(now time.Time) bool {
	return c.Date.Before(CivilDate(now))
}

// Availability builds the capacity view; capacity is unlimited unless sold internally with a limit
func (c *Concert) Availability(held int) Availability {
	a := Availability{Confirmed: c.TicketsSold, Held: held}
	if c.limited() {
		capacity := *c.Capacity
		a.Capacity = &capacity
	}
	return a
}
