package domain

import "time"

// LegacyBooking is one validated row of a historical bookings export
type LegacyBooking struct {
	Row                  int       `json:"row"`
	Email                string    `json:"email"`
	Name                 string    `json:"name"`
	FirstName            string    `json:"first_name"`
	LastName             string    `json:"last_name"`
	Phone                string    `json:"phone,omitempty"`
	Gross                Pence     `json:"gross"`
	Fee                  Pence     `json:"fee"`
	PaymentIntentID      string    `json:"payment_intent_id"`
	ChargeID             string    `json:"charge_id,omitempty"`
	BalanceTransactionID string    `json:"balance_transaction_id,omitempty"`
	Date                 time.Time `json:"date"`
	// Skip is set when the buyer is already registered for the workshop
	Skip bool `json:"skip"`
}

// ImportOutcome counts what an import wrote
type ImportOutcome struct {
	UsersCreated         int `json:"users_created"`
	RegistrationsCreated int `json:"registrations_created"`
	FeeRecordsCreated    int `json:"fee_records_created"`
	LegacyBookingsLeft   int `json:"legacy_bookings_left"`
}
