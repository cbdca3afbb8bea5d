// Package payment talks to the external payment provider.  The rest of the
// application only sees the Gateway interface and the normalized Event.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrGatewayUnavailable means the provider could not be reached in time
	// or answered with a server-side failure.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrInvalidSignature means a webhook payload failed verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrAlreadyRefunded means the provider has refunded the payment before.
	ErrAlreadyRefunded = errors.New("payment already refunded")
)

// EventKind is the outcome a webhook reports for an order.
type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventCancelled EventKind = "cancelled"
	// EventIgnored covers provider events the application does not act on.
	EventIgnored EventKind = "ignored"
)

// Event is a verified webhook callback.
type Event struct {
	ID                string // provider event id, for logs
	Type              string // provider event type
	Kind              EventKind
	OrderID           uint64
	ExternalPaymentID string // idempotency key of the payment
	SessionID         string // checkout session the event belongs to
}

// LineItem is one priced entry of a payment intent.
type LineItem struct {
	Name  string
	Price decimal.Decimal
}

// IntentRequest describes the payment the user is about to make.
type IntentRequest struct {
	OrderID       uint64
	UserID        uint64
	CustomerEmail string
	Items         []LineItem
}

// Session is the provider-side checkout the client is redirected to.
type Session struct {
	ID  string `json:"session_id"`
	URL string `json:"payment_url"`
}

// Gateway is the payment provider.  Implementations must honor ctx
// deadlines and report transport or 5xx failures as ErrGatewayUnavailable.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Session, error)
	ParseEvent(payload []byte, signature string) (Event, error)
	Refund(ctx context.Context, externalPaymentID string) error
}
