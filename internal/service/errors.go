// Package service holds the account, order and payment workflows.  Every
// workflow runs in one repository transaction and reports failures with
// the sentinel errors below, which handlers map to HTTP statuses.
package service

import (
	"errors"

	"github.com/iliyamo/online-cinema/internal/payment"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInactiveAccount       = errors.New("account is not active")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrDuplicateToken        = errors.New("token already issued")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrAlreadyPurchased      = errors.New("movie already purchased")
	ErrOrderNotPending       = errors.New("order is not pending")
	ErrGatewayUnavailable    = payment.ErrGatewayUnavailable
	ErrInvalidSignature      = payment.ErrInvalidSignature

	ErrNotFound             = errors.New("not found")
	ErrAlreadyInCart        = errors.New("movie already in cart")
	ErrPendingOrderExists   = errors.New("movie already in a pending order")
	ErrPaymentNotRefundable = errors.New("payment is not refundable")
	ErrSamePassword         = errors.New("new password must differ from the current one")
	ErrEmailTaken           = errors.New("email already registered")
	ErrForbidden            = errors.New("forbidden")
)

// Ledger-internal failures.  Session workflows fold them into
// ErrInvalidOrExpiredToken so the client cannot tell them apart.
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenRevoked  = errors.New("token revoked")
)
