package domain

import (
	"errors"
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func TestAvailability(t *testing.T) {
	tests := []struct {
		name          string
		a             Availability
		wantRemaining int
		wantLimited   bool
		wantSoldOut   bool
		admits        int
		wantAdmits    bool
	}{
		{"one place left", Availability{Capacity: intPtr(20), Confirmed: 19}, 1, true, false, 1, true},
		{"full", Availability{Capacity: intPtr(20), Confirmed: 20}, 0, true, true, 1, false},
		{"oversold clamps to zero", Availability{Capacity: intPtr(20), Confirmed: 22}, 0, true, true, 1, false},
		{"holds block admission", Availability{Capacity: intPtr(10), Confirmed: 8, Held: 2}, 2, true, false, 1, false},
		{"unlimited", Availability{Confirmed: 500, Held: 40}, 0, false, false, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remaining, limited := tt.a.Remaining()
			if remaining != tt.wantRemaining || limited != tt.wantLimited {
				t.Errorf("Expected Remaining() = %d,%v, got %d,%v", tt.wantRemaining, tt.wantLimited, remaining, limited)
			}
			if tt.a.SoldOut() != tt.wantSoldOut {
				t.Errorf("Expected SoldOut() = %v", tt.wantSoldOut)
			}
			if tt.a.Admits(tt.admits) != tt.wantAdmits {
				t.Errorf("Expected Admits(%d) = %v", tt.admits, tt.wantAdmits)
			}
		})
	}
}

func TestWorkshop_CapacityWithLegacyBookings(t *testing.T) {
	w := &Workshop{MaxParticipants: 20, CurrentRegistrations: 19}
	if w.IsFull() {
		t.Error("Expected workshop with 19 of 20 not to be full")
	}

	w.CurrentRegistrations = 20
	if !w.IsFull() || w.PlacesRemaining() != 0 {
		t.Error("Expected workshop at 20 of 20 to be full")
	}
	if w.Availability(0).Admits(1) {
		t.Error("Expected a full workshop to reject another registration")
	}

	w = &Workshop{MaxParticipants: 20, CurrentRegistrations: 15, LegacyBookings: 5}
	if w.TotalBookings() != 20 || !w.IsFull() {
		t.Errorf("Expected legacy bookings to count, total %d", w.TotalBookings())
	}
}

func TestWorkshop_DurationHours(t *testing.T) {
	tests := []struct {
		start, end string
		want       float64
	}{
		{"10:00", "13:00", 3},
		{"22:00", "01:30", 3.5},
		{"10:00", "11:20", 1.5},
		{"10:00", "11:10", 1},
	}
	for _, tt := range tests {
		start, _ := ParseClockTime(tt.start)
		end, _ := ParseClockTime(tt.end)
		w := &Workshop{StartTime: start, EndTime: end}
		if got := w.DurationHours(); got != tt.want {
			t.Errorf("Expected %s-%s to be %v hours, got %v", tt.start, tt.end, tt.want, got)
		}
	}
}

func TestWorkshop_Delivery(t *testing.T) {
	hybrid := &Workshop{Delivery: DeliveryHybrid}
	if !hybrid.IsOnline() || !hybrid.IsInPerson() {
		t.Error("Expected hybrid to be both online and in person")
	}
	online := &Workshop{Delivery: DeliveryOnline}
	if online.IsInPerson() {
		t.Error("Expected online workshop not to be in person")
	}
}

func TestConcert_SoldOut(t *testing.T) {
	tests := []struct {
		name          string
		concert       Concert
		wantSoldOut   bool
		wantRemaining *int
	}{
		{"internal at capacity", Concert{TicketSource: TicketSourceInternal, Capacity: intPtr(100), TicketsSold: 100}, true, intPtr(0)},
		{"internal with room", Concert{TicketSource: TicketSourceInternal, Capacity: intPtr(100), TicketsSold: 40}, false, intPtr(60)},
		{"internal unlimited", Concert{TicketSource: TicketSourceInternal, TicketsSold: 400}, false, nil},
		{"external ignores capacity", Concert{TicketSource: TicketSourceExternal, Capacity: intPtr(10), TicketsSold: 10}, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.concert.IsSoldOut() != tt.wantSoldOut {
				t.Errorf("Expected IsSoldOut() = %v", tt.wantSoldOut)
			}
			got := tt.concert.TicketsRemaining()
			switch {
			case tt.wantRemaining == nil && got != nil:
				t.Errorf("Expected nil remaining, got %d", *got)
			case tt.wantRemaining != nil && (got == nil || *got != *tt.wantRemaining):
				t.Errorf("Expected %d remaining, got %v", *tt.wantRemaining, got)
			}
		})
	}
}

func TestConcert_PriceFor(t *testing.T) {
	c := &Concert{FullPrice: 1500}
	if _, err := c.PriceFor(TicketDiscount); !errors.Is(err, ErrInvalidTicketType) {
		t.Errorf("Expected ErrInvalidTicketType without a discount price, got %v", err)
	}

	discount := Pence(1000)
	c.DiscountPrice = &discount
	got, err := c.PriceFor(TicketDiscount)
	if err != nil || got != 1000 {
		t.Errorf("Expected 1000, got %d (%v)", got, err)
	}
	if c.TierLabel(TicketDiscount) != DefaultDiscountLabel {
		t.Errorf("Expected default discount label, got %s", c.TierLabel(TicketDiscount))
	}
}

func TestNewConcertTicketOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c := &Concert{ID: "c1", FullPrice: 1500, TicketSource: TicketSourceInternal}
	buyer := Buyer{Email: "Guest@Example.com", Name: "Guest"}

	for _, qty := range []int{0, 11} {
		if _, err := NewConcertTicketOrder(c, buyer, TicketFull, qty, 0, now, 35*time.Minute); !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("Expected ErrInvalidQuantity for %d, got %v", qty, err)
		}
	}

	o, err := NewConcertTicketOrder(c, buyer, TicketFull, 3, 0, now, 35*time.Minute)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if o.TotalPrice != 4500 || o.UnitPrice != 1500 {
		t.Errorf("Expected 3 x 1500 = 4500, got %d x %d = %d", o.Quantity, o.UnitPrice, o.TotalPrice)
	}
	if o.Email != "guest@example.com" {
		t.Errorf("Expected lower-cased email, got %s", o.Email)
	}
	if !o.HoldLive(now.Add(34*time.Minute)) || o.HoldLive(now.Add(36*time.Minute)) {
		t.Error("Expected hold to last exactly the hold window")
	}

	if _, err := NewConcertTicketOrder(c, Buyer{Email: "x@example.com"}, TicketFull, 1, 0, now, time.Minute); !errors.Is(err, ErrNameRequired) {
		t.Errorf("Expected ErrNameRequired, got %v", err)
	}
}
