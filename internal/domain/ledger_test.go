package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		kind     EventKind
		from, to LedgerStatus
		want     bool
	}{
		{KindWorkshop, StatusPending, StatusPaid, true},
		{KindConcert, StatusPending, StatusPaid, true},
		{KindConcert, StatusPending, StatusCancelled, true},
		{KindConcert, StatusPaid, StatusRefunded, true},
		{KindWorkshop, StatusPaid, StatusCancelled, true},
		{KindWorkshop, StatusPaid, StatusAttended, true},
		{KindConcert, StatusPaid, StatusAttended, false},
		{KindWorkshop, StatusPending, StatusRefunded, false},
		{KindWorkshop, StatusPaid, StatusPaid, false},
		{KindWorkshop, StatusCancelled, StatusPaid, false},
		{KindConcert, StatusRefunded, StatusPaid, false},
		{KindWorkshop, StatusAttended, StatusRefunded, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.kind, tt.from, tt.to); got != tt.want {
			t.Errorf("Expected %s %s->%s to be %v, got %v", tt.kind, tt.from, tt.to, tt.want, got)
		}
	}
}

func TestLedgerStatus_Confirmed(t *testing.T) {
	for _, s := range []LedgerStatus{StatusPaid, StatusAttended} {
		if !s.Confirmed() {
			t.Errorf("Expected %s to be confirmed", s)
		}
	}
	for _, s := range []LedgerStatus{StatusPending, StatusCancelled, StatusRefunded} {
		if s.Confirmed() {
			t.Errorf("Expected %s not to be confirmed", s)
		}
	}
}

func TestTransition_Allows(t *testing.T) {
	tr := Transition{Kind: KindWorkshop, From: []LedgerStatus{StatusPending, StatusPaid}, To: StatusCancelled}
	if !tr.Allows(StatusPending) || !tr.Allows(StatusPaid) {
		t.Error("Expected pending and paid to be cancellable")
	}
	if tr.Allows(StatusRefunded) {
		t.Error("Expected refunded not to be cancellable")
	}
}

func TestParseEventKind(t *testing.T) {
	k, err := ParseEventKind(" Concert ")
	if err != nil || k != KindConcert {
		t.Errorf("Expected concert, got %q (%v)", k, err)
	}
	if _, err := ParseEventKind("gala"); !errors.Is(err, ErrUnknownEventKind) {
		t.Errorf("Expected ErrUnknownEventKind, got %v", err)
	}
}

func TestNewWorkshopRegistration(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	w := &Workshop{ID: "w1", Title: "Consort basics", Price: 4500, Date: Date(2025, 6, 20)}
	buyer := Buyer{UserID: "u1", Email: "player@example.com", Name: "Player One"}

	if _, err := NewWorkshopRegistration(w, buyer, RegistrationDetails{}, now, 35*time.Minute); !errors.Is(err, ErrTermsNotAccepted) {
		t.Errorf("Expected ErrTermsNotAccepted, got %v", err)
	}

	r, err := NewWorkshopRegistration(w, buyer, RegistrationDetails{TermsAccepted: true, Instruments: "tenor"}, now, 35*time.Minute)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if r.Status != StatusPending || r.AmountPaid != 4500 || r.TermsAcceptedAt == nil {
		t.Errorf("Expected pending registration at workshop price, got %+v", r)
	}

	r.Status = StatusRefunded
	r.CheckoutSessionID = "cs_old"
	if !r.Reusable() {
		t.Fatal("Expected refunded registration to be reusable")
	}
	r.Renew(w, RegistrationDetails{TermsAccepted: true}, now.Add(time.Hour), 35*time.Minute)
	if r.Status != StatusPending || r.CheckoutSessionID != "" {
		t.Errorf("Expected renewal to reset to a fresh pending hold, got %s %q", r.Status, r.CheckoutSessionID)
	}

	r.Status = StatusPaid
	if r.Reusable() {
		t.Error("Expected paid registration not to be reusable")
	}
}

func TestWorkshopRegistration_RefundEligible(t *testing.T) {
	w := &Workshop{Date: Date(2025, 6, 20)}
	r := &WorkshopRegistration{Status: StatusPaid}

	if !r.RefundEligible(w, time.Date(2025, 6, 13, 10, 0, 0, 0, time.UTC), 7) {
		t.Error("Expected cancellation exactly 7 days before to be refunded")
	}
	if r.RefundEligible(w, time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC), 7) {
		t.Error("Expected cancellation 6 days before not to be refunded")
	}

	r.Status = StatusPending
	if r.RefundEligible(w, time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), 7) {
		t.Error("Expected unpaid registration never to be refunded")
	}
}

func TestNewLedgerOutboxMessage(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	entry := LedgerEntry{Kind: KindConcert, ID: "o1", EventID: "c1", Status: StatusPaid, Quantity: 2, Amount: 3000}

	msg, err := NewLedgerOutboxMessage("polyphonica.ledger", entry, StatusPending, "", 42, at)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if msg.EventType != EventOrderPaid {
		t.Errorf("Expected %s, got %s", EventOrderPaid, msg.EventType)
	}
	if msg.PartitionKey != "c1" || msg.AggregateID != "o1" {
		t.Errorf("Expected partition by event and aggregate by row, got %s/%s", msg.PartitionKey, msg.AggregateID)
	}

	var ev LedgerEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("Payload is not JSON: %v", err)
	}
	if ev.From != StatusPending || ev.To != StatusPaid || ev.ConfirmedCount != 42 {
		t.Errorf("Unexpected payload %+v", ev)
	}

	msg.Status = OutboxStatusFailed
	msg.RetryCount = DefaultOutboxMaxRetries
	if msg.CanRetry() {
		t.Error("Expected exhausted message not to be retryable")
	}
}

func TestLedgerEventType(t *testing.T) {
	if got := LedgerEventType(KindWorkshop, StatusRefunded); got != EventRegistrationRefunded {
		t.Errorf("Expected %s, got %s", EventRegistrationRefunded, got)
	}
}
