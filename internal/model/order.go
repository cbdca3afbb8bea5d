package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses (orders.status).
const (
	OrderPending   = "PENDING"
	OrderPaid      = "PAID"
	OrderCancelled = "CANCELLED"
)

// Payment statuses (payments.status).
const (
	PaymentSuccessful = "SUCCESSFUL"
	PaymentCancelled  = "CANCELLED"
	PaymentRefunded   = "REFUNDED"
)

// CartItem is a movie sitting in a user's cart with its live price.
type CartItem struct {
	MovieID   uint64          `json:"movie_id"`
	MovieName string          `json:"movie_name"`
	Price     decimal.Decimal `json:"price"`      // movies.price at read time
	AddedAt   time.Time       `json:"added_at"`
}

// Order mirrors the `orders` table. Items are loaded alongside.
type Order struct {
	ID        uint64          `json:"id"`
	UserID    uint64          `json:"user_id"`
	Status    string          `json:"status"`
	Total     decimal.Decimal `json:"total_amount"` // orders.total_amount
	Items     []OrderItem     `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	// The one gateway checkout opened for the order, if any.
	CheckoutSessionID string `json:"checkout_session_id,omitempty"`
	CheckoutURL       string `json:"-"`
}

// MovieIDs returns the movie ids of the order items in order.
func (o Order) MovieIDs() []uint64 {
	ids := make([]uint64, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.MovieID)
	}
	return ids
}

// OrderItem is the checkout-time snapshot of one cart item. Price is
// copied from the movie when the order is created and never recomputed.
type OrderItem struct {
	ID        uint64          `json:"id"`
	OrderID   uint64          `json:"order_id"`
	MovieID   uint64          `json:"movie_id"`
	MovieName string          `json:"movie_name"`
	Price     decimal.Decimal `json:"price"`
}

// Payment mirrors the `payments` table. ExternalPaymentID is unique and
// is the idempotency key for gateway callbacks.
type Payment struct {
	ID                uint64          `json:"id"`
	UserID            uint64          `json:"user_id"`
	OrderID           uint64          `json:"order_id"`
	Status            string          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	ExternalPaymentID string          `json:"external_payment_id"`
	Items             []PaymentItem   `json:"items,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PaymentItem keeps the price the user actually paid for an order item.
type PaymentItem struct {
	ID             uint64          `json:"id"`
	PaymentID      uint64          `json:"payment_id"`
	OrderItemID    uint64          `json:"order_item_id"`
	PriceAtPayment decimal.Decimal `json:"price_at_payment"`
}

// Purchase grants a user access to a movie. Unique per (user, movie).
type Purchase struct {
	ID          uint64    `json:"id"`
	UserID      uint64    `json:"user_id"`
	MovieID     uint64    `json:"movie_id"`
	MovieName   string    `json:"movie_name"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// OrderFilter narrows the admin order listing. Zero values mean "any".
type OrderFilter struct {
	UserID   uint64
	Status   string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}
