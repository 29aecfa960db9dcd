package types

// PaymentState is the lifecycle state of an order within an invoice.
type PaymentState string

const (
	PaymentStateInitial      PaymentState = "initial"
	PaymentStateDeclined     PaymentState = "declined"
	PaymentStateCaptured     PaymentState = "captured"
	PaymentStateExpired      PaymentState = "expired"
	PaymentStateRefundNeeded PaymentState = "refund_needed"
	PaymentStateRefunded     PaymentState = "refunded"
	PaymentStatePaidToSeller PaymentState = "paid_to_seller"
)

// FeeStatus is the collection state of a marketplace fee.
type FeeStatus string

const (
	FeeStatusNotPaid FeeStatus = "not_paid"
	FeeStatusPaid    FeeStatus = "paid"
	FeeStatusFail    FeeStatus = "fail"
)

// RateStatus marks whether an order exchange rate is the one currently
// applied. At most one active rate exists per order.
type RateStatus string

const (
	RateStatusActive  RateStatus = "active"
	RateStatusExpired RateStatus = "expired"
)

// EventEntryStatus is the processing state of a journal entry.
type EventEntryStatus string

const (
	EventStatusPending    EventEntryStatus = "pending"
	EventStatusInProgress EventEntryStatus = "in_progress"
	EventStatusCompleted  EventEntryStatus = "completed"
	EventStatusFailed     EventEntryStatus = "failed"
)

// PaymentIntentStatus mirrors the card gateway's intent states.
type PaymentIntentStatus string

const (
	PaymentIntentStatusRequiresSource        PaymentIntentStatus = "requires_source"
	PaymentIntentStatusRequiresConfirmation  PaymentIntentStatus = "requires_confirmation"
	PaymentIntentStatusRequiresSourceAction  PaymentIntentStatus = "requires_source_action"
	PaymentIntentStatusProcessing            PaymentIntentStatus = "processing"
	PaymentIntentStatusRequiresCapture       PaymentIntentStatus = "requires_capture"
	PaymentIntentStatusCanceled              PaymentIntentStatus = "canceled"
	PaymentIntentStatusSucceeded             PaymentIntentStatus = "succeeded"
)
