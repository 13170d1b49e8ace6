package domain

import "errors"

// Domain errors
var (
	// Catalog errors
	ErrWorkshopNotFound  = errors.New("workshop not found")
	ErrConcertNotFound   = errors.New("concert not found")
	ErrSlugTaken         = errors.New("slug already in use")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrEventNotOpen      = errors.New("event is not open for booking")
	ErrEventInPast       = errors.New("event has already taken place")
	ErrNotSoldOnline     = errors.New("tickets for this concert are not sold online")
	ErrSoldOut           = errors.New("event is sold out")
	ErrInsufficientSpace = errors.New("not enough places remaining")

	// Ledger errors
	ErrRegistrationNotFound   = errors.New("registration not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrAlreadyRegistered      = errors.New("already registered for this workshop")
	ErrTermsNotAccepted       = errors.New("terms and conditions must be accepted")
	ErrStaffCannotRegister    = errors.New("staff accounts cannot register for workshops")
	ErrAuthenticationRequired = errors.New("sign in to register for workshops")
	ErrInvalidTicketType      = errors.New("invalid ticket type")
	ErrInvalidQuantity        = errors.New("invalid ticket quantity")
	ErrInvalidEmail           = errors.New("invalid email address")
	ErrNameRequired           = errors.New("buyer name is required")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidStatus          = errors.New("unknown booking status")
	ErrNotOwner               = errors.New("registration belongs to another user")
	ErrReconciliationNotFound = errors.New("no booking matches this checkout session")
	ErrPaymentNotCompleted    = errors.New("payment has not completed")
	ErrNoPaymentIntent        = errors.New("booking has no payment intent")

	// Payment processor errors
	ErrPaymentGateway   = errors.New("payment processor unavailable")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")

	// Finance errors
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDateRange   = errors.New("start date must not be after end date")
	ErrInvalidFeeRecord   = errors.New("fee record net must equal gross minus fee")
	ErrExpenseNotFound    = errors.New("expense not found")
	ErrInvalidCategory    = errors.New("invalid expense category")
	ErrExpenseLinkedTwice = errors.New("expense cannot be linked to both a workshop and a concert")
	ErrInvalidExpense     = errors.New("invalid expense")
	ErrUnknownEventKind   = errors.New("unknown event kind")

	// Import errors
	ErrImportEmpty   = errors.New("import file has no rows")
	ErrImportInvalid = errors.New("import file failed validation")
	ErrImportHeaders = errors.New("import file is missing required columns")

	// Repertoire errors
	ErrComposerNotFound     = errors.New("composer not found")
	ErrPieceNotFound        = errors.New("piece not found")
	ErrProgrammeNotFound    = errors.New("programme not found")
	ErrInvalidProgrammeItem = errors.New("invalid programme item")
	ErrDuplicateItemOrder   = errors.New("programme already has an item at this position")
	ErrInvalidRepertoire    = errors.New("invalid repertoire entry")

	ErrUserNotFound = errors.New("user not found")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkshopNotFound) ||
		errors.Is(err, ErrConcertNotFound) ||
		errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrExpenseNotFound) ||
		errors.Is(err, ErrComposerNotFound) ||
		errors.Is(err, ErrPieceNotFound) ||
		errors.Is(err, ErrProgrammeNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrTermsNotAccepted) ||
		errors.Is(err, ErrInvalidTicketType) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidFeeRecord) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrExpenseLinkedTwice) ||
		errors.Is(err, ErrInvalidExpense) ||
		errors.Is(err, ErrUnknownEventKind) ||
		errors.Is(err, ErrImportEmpty) ||
		errors.Is(err, ErrImportInvalid) ||
		errors.Is(err, ErrImportHeaders) ||
		errors.Is(err, ErrInvalidProgrammeItem) ||
		errors.Is(err, ErrInvalidRepertoire)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSlugTaken) ||
		errors.Is(err, ErrSoldOut) ||
		errors.Is(err, ErrInsufficientSpace) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateItemOrder) ||
		errors.Is(err, ErrEventInPast) ||
		errors.Is(err, ErrEventNotOpen)
}
