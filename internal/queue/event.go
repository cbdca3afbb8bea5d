// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the background consumers.
package queue

// Payment event kinds.
const (
	PaymentSucceeded = "payment.succeeded"
	PaymentCancelled = "payment.cancelled"
	PaymentRefunded  = "payment.refunded"
)

// PaymentEvent is published after a payment state change has been
// committed.  It carries enough for consumers to log, notify or feed
// analytics without querying the primary database.
type PaymentEvent struct {
	Kind              string   `json:"kind"`
	PaymentID         uint64   `json:"payment_id"`
	OrderID           uint64   `json:"order_id"`
	UserID            uint64   `json:"user_id"`
	Status            string   `json:"status"`
	Amount            string   `json:"amount"` // decimal string, e.g. "19.99"
	ExternalPaymentID string   `json:"external_payment_id"`
	Movies            []string `json:"movies,omitempty"`
	OccurredAt        string   `json:"occurred_at"` // RFC 3339, UTC
}
