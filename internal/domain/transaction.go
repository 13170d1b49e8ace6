package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FeeRecord is the processor's gross/fee/net breakdown for exactly one paid ledger row
type FeeRecord struct {
	ID                   string    `json:"id"`
	Kind                 EventKind `json:"kind"`
	LedgerID             string    `json:"ledger_id"`
	PaymentIntentID      string    `json:"payment_intent_id"`
	ChargeID             string    `json:"charge_id,omitempty"`
	BalanceTransactionID string    `json:"balance_transaction_id,omitempty"`
	Gross                Pence     `json:"gross"`
	Fee                  Pence     `json:"fee"`
	Net                  Pence     `json:"net"`
	TransactionDate      time.Time `json:"transaction_date"`
	SyncedAt             time.Time `json:"synced_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// NewFeeRecord derives net from gross and fee
func NewFeeRecord(kind EventKind, ledgerID, paymentIntentID string, gross, fee Pence, at time.Time) (*FeeRecord, error) {
	now := time.Now().UTC()
	r := &FeeRecord{
		ID:              uuid.New().String(),
		Kind:            kind,
		LedgerID:        ledgerID,
		PaymentIntentID: paymentIntentID,
		Gross:           gross,
		Fee:             fee,
		Net:             gross - fee,
		TransactionDate: at,
		SyncedAt:        now,
		UpdatedAt:       now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FeeRecord) Validate() error {
	if r.Kind != KindWorkshop && r.Kind != KindConcert {
		return fmt.Errorf("%w: %q", ErrUnknownEventKind, r.Kind)
	}
	if r.LedgerID == "" {
		return fmt.Errorf("%w: ledger row is required", ErrInvalidFeeRecord)
	}
	if r.Gross < 0 || r.Fee < 0 || r.Net < 0 {
		return fmt.Errorf("%w: amounts cannot be negative", ErrInvalidAmount)
	}
	if r.Net != r.Gross-r.Fee {
		return ErrInvalidFeeRecord
	}
	return nil
}

// IncomeRow is one fee record joined to its ledger row and event, as the report lists it
type IncomeRow struct {
	Date       time.Time `json:"date"`
	Kind       EventKind `json:"kind"`
	EventTitle string    `json:"event_title"`
	BuyerName  string    `json:"buyer_name"`
	BuyerEmail string    `json:"buyer_email"`
	Gross      Pence     `json:"gross"`
	Fee        Pence     `json:"fee"`
	Net        Pence     `json:"net"`
}

// Description reads "Workshop: Title (buyer)" or "Concert: Title (buyer)"
func (r IncomeRow) Description() string {
	buyer := r.BuyerName
	if buyer == "" {
		buyer = r.BuyerEmail
	}
	label := "Workshop"
	if r.Kind == KindConcert {
		label = "Concert"
	}
	return fmt.Sprintf("%s: %s (%s)", label, r.EventTitle, buyer)
}
