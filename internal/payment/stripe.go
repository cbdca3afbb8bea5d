package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/config"
)

// Stripe limits checkout session expiry to this window.
const (
	minSessionTTL = 30 * time.Minute
	maxSessionTTL = 24 * time.Hour
)

// StripeGateway implements Gateway with Stripe Checkout.  The order id is
// carried in the session metadata and comes back in the webhook.
type StripeGateway struct {
	sessions      session.Client
	refunds       refund.Client
	webhookSecret string
	currency      string
	timeout       time.Duration
	sessionTTL    time.Duration
	appURL        string
	logger        *zap.Logger
	now           func() time.Time
}

// NewStripeGateway builds a gateway from cfg.  appURL is used for the
// success and cancel redirects.
func NewStripeGateway(cfg config.PaymentConfig, appURL string, logger *zap.Logger) *StripeGateway {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.GatewayTimeout},
		MaxNetworkRetries: stripe.Int64(1),
		LeveledLogger:     logger.Sugar(),
	})
	return newStripeGateway(cfg, appURL, backend, logger)
}

func newStripeGateway(cfg config.PaymentConfig, appURL string, backend stripe.Backend, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{
		sessions:      session.Client{B: backend, Key: cfg.SecretKey},
		refunds:       refund.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		timeout:       cfg.GatewayTimeout,
		sessionTTL:    cfg.SessionTTL,
		appURL:        appURL,
		logger:        logger.With(zap.String("component", "stripe")),
		now:           time.Now,
	}
}

// CreateIntent opens a Checkout session for the order.
func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (Session, error) {
	if len(req.Items) == 0 {
		return Session{}, errors.New("payment intent without items")
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(it.Name),
				},
				UnitAmount: stripe.Int64(it.Price.Shift(2).Round(0).IntPart()),
			},
			Quantity: stripe.Int64(1),
		})
	}

	orderID := strconv.FormatUint(req.OrderID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         items,
		SuccessURL:        stripe.String(g.appURL + "/payments/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(g.appURL + "/payments/cancel?order_id=" + orderID),
		ClientReferenceID: stripe.String(orderID),
		ExpiresAt:         stripe.Int64(g.now().Add(clampTTL(g.sessionTTL)).Unix()),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata("order_id", orderID)
	params.AddMetadata("user_id", strconv.FormatUint(req.UserID, 10))
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		return Session{}, gatewayError("create checkout session", err)
	}
	g.logger.Info("checkout session created",
		zap.String("session_id", s.ID), zap.Uint64("order_id", req.OrderID))
	return Session{ID: s.ID, URL: s.URL}, nil
}

// Refund refunds the whole payment intent.
func (g *StripeGateway) Refund(ctx context.Context, externalPaymentID string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.RefundParams{PaymentIntent: stripe.String(externalPaymentID)}
	params.Context = ctx
	if _, err := g.refunds.New(params); err != nil {
		return gatewayError("refund", err)
	}
	return nil
}

// ParseEvent verifies the Stripe-Signature header and normalizes the
// checkout events the application cares about.
func (g *StripeGateway) ParseEvent(payload []byte, signature string) (Event, error) {
	if g.webhookSecret == "" || signature == "" {
		return Event{}, ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		g.logger.Warn("webhook verification failed", zap.Error(err))
		return Event{}, ErrInvalidSignature
	}

	out := Event{ID: ev.ID, Type: string(ev.Type), Kind: EventIgnored}
	var kind EventKind
	switch string(ev.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		kind = EventSucceeded
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		kind = EventCancelled
	default:
		return out, nil
	}
	if ev.Data == nil {
		return out, fmt.Errorf("event %s: missing data", ev.ID)
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return out, fmt.Errorf("event %s: decode session: %w", ev.ID, err)
	}
	if kind == EventSucceeded && cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		// completed but the money has not arrived; async_payment_* follows
		return out, nil
	}

	ref := cs.Metadata["order_id"]
	if ref == "" {
		ref = cs.ClientReferenceID
	}
	orderID, err := strconv.ParseUint(ref, 10, 64)
	if err != nil || orderID == 0 {
		return out, fmt.Errorf("event %s: session %s has no order reference", ev.ID, cs.ID)
	}

	out.Kind = kind
	out.OrderID = orderID
	out.ExternalPaymentID = cs.ID
	out.SessionID = cs.ID
	if kind == EventSucceeded && cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
		out.ExternalPaymentID = cs.PaymentIntent.ID
	}
	return out, nil
}

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func clampTTL(d time.Duration) time.Duration {
	switch {
	case d < minSessionTTL:
		return minSessionTTL
	case d > maxSessionTTL:
		return maxSessionTTL
	}
	return d
}

// gatewayError maps Stripe failures.  Transport errors, timeouts, rate
// limiting and 5xx answers become ErrGatewayUnavailable; other API errors
// are returned wrapped.
func gatewayError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			return fmt.Errorf("%w: %s: %v", ErrAlreadyRefunded, op, err)
		}
		if se.HTTPStatusCode == 0 || se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, op, err)
}
