package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/email"
	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/payment"
	"github.com/iliyamo/online-cinema/internal/queue"
	"github.com/iliyamo/online-cinema/internal/repository"
)

// EventPublisher emits committed payment changes to the broker.
type EventPublisher interface {
	PublishJSON(ctx context.Context, queue string, v any) error
}

// CallbackAction is what a webhook did to the order.
type CallbackAction string

const (
	ActionIgnored    CallbackAction = "ignored"
	ActionDuplicate  CallbackAction = "duplicate"
	ActionNotPending CallbackAction = "not_pending"
	ActionPaid       CallbackAction = "paid"
	ActionCancelled  CallbackAction = "cancelled"
	// ActionPaidLate is a success for an order that was cancelled in the
	// meantime.  The order is paid and the movies granted after all.
	ActionPaidLate CallbackAction = "paid_late"
	// ActionOverpaid is a second successful charge for a paid order.  It
	// is recorded and refunded.
	ActionOverpaid CallbackAction = "overpaid"
	// ActionStaleSession is a cancel for a checkout session the order no
	// longer uses.
	ActionStaleSession CallbackAction = "stale_session"
)

// CallbackResult reports the outcome of HandleCallback.
type CallbackResult struct {
	Action    CallbackAction `json:"action"`
	OrderID   uint64         `json:"order_id,omitempty"`
	PaymentID uint64         `json:"payment_id,omitempty"`
}

// PaymentsConfig configures the coordinator.
type PaymentsConfig struct {
	GatewayTimeout time.Duration
	EventQueue     string
}

// Payments drives an order through the payment gateway.  Webhook
// callbacks are idempotent: the unique external payment id decides
// whether a callback was already applied.
type Payments struct {
	store   Store
	gateway payment.Gateway
	mail    email.Sender
	events  EventPublisher
	cfg     PaymentsConfig
	logger  *zap.Logger
	now     func() time.Time
}

func NewPayments(store Store, gateway payment.Gateway, mail email.Sender, events EventPublisher, cfg PaymentsConfig, logger *zap.Logger) *Payments {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	return &Payments{
		store:   store,
		gateway: gateway,
		mail:    mail,
		events:  events,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "payments")),
		now:     time.Now,
	}
}

// Initiate opens a gateway checkout for a PENDING order of the user.  An
// order has at most one checkout session; asking again returns the one
// already opened.
func (p *Payments) Initiate(ctx context.Context, userID, orderID uint64) (payment.Session, error) {
	var (
		ord  model.Order
		user model.User
	)
	err := p.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		ord, err = ownedOrder(ctx, tx, userID, orderID, false)
		if err != nil {
			return err
		}
		if ord.Status != model.OrderPending {
			return ErrOrderNotPending
		}
		user, err = tx.UserByID(ctx, userID)
		return err
	})
	if err != nil {
		return payment.Session{}, err
	}
	if ord.CheckoutSessionID != "" {
		return payment.Session{ID: ord.CheckoutSessionID, URL: ord.CheckoutURL}, nil
	}

	req := payment.IntentRequest{OrderID: ord.ID, UserID: userID, CustomerEmail: user.Email}
	for _, it := range ord.Items {
		req.Items = append(req.Items, payment.LineItem{Name: it.MovieName, Price: it.Price})
	}

	var sess payment.Session
	err = p.callGateway(ctx, func(ctx context.Context) error {
		var err error
		sess, err = p.gateway.CreateIntent(ctx, req)
		return err
	})
	if err != nil {
		p.logger.Warn("create payment intent failed", zap.Uint64("order_id", ord.ID), zap.Error(err))
		return payment.Session{}, err
	}

	attached := false
	err = p.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		attached, err = tx.AttachCheckoutSession(ctx, ord.ID, sess.ID, sess.URL)
		if err != nil || attached {
			return err
		}
		ord, err = tx.OrderByID(ctx, ord.ID, false)
		return err
	})
	if err != nil {
		return payment.Session{}, err
	}
	if attached {
		return sess, nil
	}

	// a concurrent request attached its session first, or the order left
	// PENDING while ours was being created; ours expires unused
	p.logger.Warn("checkout session discarded", zap.Uint64("order_id", ord.ID),
		zap.String("session_id", sess.ID), zap.String("status", ord.Status))
	if ord.Status != model.OrderPending {
		return payment.Session{}, ErrOrderNotPending
	}
	return payment.Session{ID: ord.CheckoutSessionID, URL: ord.CheckoutURL}, nil
}

// callGateway bounds fn with the gateway timeout.  Deadline and transport
// failures come back as ErrGatewayUnavailable.
func (p *Payments) callGateway(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.GatewayTimeout)
	defer cancel()
	err := fn(ctx)
	switch {
	case err == nil, errors.Is(err, ErrGatewayUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return err
}

// decideCallback is the webhook state machine.  It depends only on the
// locked order, whether the external payment id is already recorded and
// the event itself.  Money that was taken is always recorded.
func decideCallback(ord model.Order, alreadyRecorded bool, ev payment.Event) CallbackAction {
	switch {
	case ev.Kind != payment.EventSucceeded && ev.Kind != payment.EventCancelled:
		return ActionIgnored
	case alreadyRecorded:
		return ActionDuplicate
	case ev.Kind == payment.EventSucceeded:
		switch ord.Status {
		case model.OrderPending:
			return ActionPaid
		case model.OrderCancelled:
			return ActionPaidLate
		default:
			return ActionOverpaid
		}
	case ord.Status != model.OrderPending:
		return ActionNotPending
	case ev.SessionID != "" && ord.CheckoutSessionID != "" && ev.SessionID != ord.CheckoutSessionID:
		return ActionStaleSession
	default:
		return ActionCancelled
	}
}

// errDuplicateCallback aborts the transaction when a concurrent callback
// inserted the same external payment id first.
var errDuplicateCallback = errors.New("duplicate callback")

// HandleCallback verifies a gateway webhook and applies it at most once.
func (p *Payments) HandleCallback(ctx context.Context, payload []byte, signature string) (CallbackResult, error) {
	ev, err := p.gateway.ParseEvent(payload, signature)
	if errors.Is(err, ErrInvalidSignature) {
		return CallbackResult{}, ErrInvalidSignature
	}
	if err != nil {
		// verified but unusable; acknowledging stops provider retries
		p.logger.Warn("webhook event unusable", zap.String("event_id", ev.ID), zap.String("type", ev.Type), zap.Error(err))
		return CallbackResult{Action: ActionIgnored}, nil
	}
	if ev.Kind == payment.EventIgnored {
		p.logger.Debug("webhook event ignored", zap.String("type", ev.Type))
		return CallbackResult{Action: ActionIgnored}, nil
	}

	var (
		res  = CallbackResult{OrderID: ev.OrderID}
		ord  model.Order
		pay  model.Payment
		user model.User
	)
	err = p.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		ord, err = tx.OrderByID(ctx, ev.OrderID, true)
		if errors.Is(err, repository.ErrNotFound) {
			res.Action = ActionIgnored
			return nil
		}
		if err != nil {
			return err
		}
		existing, err := tx.PaymentByExternalID(ctx, ev.ExternalPaymentID)
		recorded := err == nil
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if recorded {
			res.PaymentID = existing.ID
		}

		res.Action = decideCallback(ord, recorded, ev)
		switch res.Action {
		case ActionPaid, ActionPaidLate:
			pay, err = p.markPaid(ctx, tx, ord, ev.ExternalPaymentID)
		case ActionOverpaid:
			pay, err = createPayment(ctx, tx, model.Payment{
				UserID:            ord.UserID,
				OrderID:           ord.ID,
				Status:            model.PaymentSuccessful,
				Amount:            ord.Total,
				ExternalPaymentID: ev.ExternalPaymentID,
			})
		case ActionCancelled:
			pay, err = p.markCancelled(ctx, tx, ord, ev.ExternalPaymentID)
		default:
			return nil
		}
		if err != nil {
			return err
		}
		res.PaymentID = pay.ID
		user, err = tx.UserByID(ctx, ord.UserID)
		return err
	})
	if errors.Is(err, errDuplicateCallback) {
		res.Action = ActionDuplicate
		err = nil
	}
	if err != nil {
		return CallbackResult{}, err
	}

	log := p.logger.With(zap.String("event_id", ev.ID), zap.Uint64("order_id", ev.OrderID),
		zap.String("external_id", ev.ExternalPaymentID), zap.String("action", string(res.Action)))
	switch res.Action {
	case ActionPaid, ActionPaidLate:
		if res.Action == ActionPaidLate {
			log.Warn("payment succeeded for a cancelled order; order marked paid")
		} else {
			log.Info("payment succeeded")
		}
		p.publish(ctx, queue.PaymentSucceeded, pay, ord)
		p.notify(ctx, user.Email, pay, ord)
	case ActionOverpaid:
		log.Warn("second payment for a paid order; refunding", zap.Uint64("payment_id", pay.ID))
		if _, err := p.Refund(ctx, pay.ID); err != nil {
			// stays SUCCESSFUL so staff can refund it by hand
			log.Error("automatic refund failed", zap.Uint64("payment_id", pay.ID), zap.Error(err))
		}
	case ActionCancelled:
		log.Info("payment cancelled")
		p.publish(ctx, queue.PaymentCancelled, pay, ord)
	case ActionStaleSession:
		log.Info("cancel for a superseded checkout session")
	case ActionNotPending:
		log.Warn("callback for order that is no longer pending", zap.String("status", ord.Status))
	default:
		log.Info("callback was a no-op")
	}
	return res, nil
}

// markPaid records a successful payment with the prices frozen at
// checkout, marks the order PAID, grants purchases and clears the paid
// movies from the cart.
func (p *Payments) markPaid(ctx context.Context, tx repository.Tx, ord model.Order, externalID string) (model.Payment, error) {
	pay := model.Payment{
		UserID:            ord.UserID,
		OrderID:           ord.ID,
		Status:            model.PaymentSuccessful,
		Amount:            ord.Total,
		ExternalPaymentID: externalID,
	}
	for _, it := range ord.Items {
		pay.Items = append(pay.Items, model.PaymentItem{OrderItemID: it.ID, PriceAtPayment: it.Price})
	}
	pay, err := createPayment(ctx, tx, pay)
	if err != nil {
		return model.Payment{}, err
	}
	if err := tx.SetOrderStatus(ctx, ord.ID, model.OrderPaid); err != nil {
		return model.Payment{}, err
	}
	for _, it := range ord.Items {
		if _, err := tx.InsertPurchase(ctx, ord.UserID, it.MovieID); err != nil {
			return model.Payment{}, err
		}
	}
	if _, err := tx.RemoveCartItems(ctx, ord.UserID, ord.MovieIDs()); err != nil {
		return model.Payment{}, err
	}
	return pay, nil
}

// markCancelled records the abandoned payment and cancels the order.  The
// cart is left as it was.
func (p *Payments) markCancelled(ctx context.Context, tx repository.Tx, ord model.Order, externalID string) (model.Payment, error) {
	pay, err := createPayment(ctx, tx, model.Payment{
		UserID:            ord.UserID,
		OrderID:           ord.ID,
		Status:            model.PaymentCancelled,
		Amount:            ord.Total,
		ExternalPaymentID: externalID,
	})
	if err != nil {
		return model.Payment{}, err
	}
	if err := tx.SetOrderStatus(ctx, ord.ID, model.OrderCancelled); err != nil {
		return model.Payment{}, err
	}
	return pay, nil
}

// createPayment inserts pay.  Losing the unique external id to a
// concurrent delivery aborts the callback as a duplicate.
func createPayment(ctx context.Context, tx repository.Tx, pay model.Payment) (model.Payment, error) {
	pay, err := tx.CreatePayment(ctx, pay)
	if errors.Is(err, repository.ErrDuplicate) {
		return model.Payment{}, errDuplicateCallback
	}
	return pay, err
}

// Refund refunds a SUCCESSFUL payment through the gateway and marks it
// REFUNDED.  The order stays PAID.  When the gateway reports the payment
// as refunded already, the record is brought in line and the call fails
// with ErrPaymentNotRefundable.
func (p *Payments) Refund(ctx context.Context, paymentID uint64) (model.Payment, error) {
	var pay model.Payment
	err := p.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		pay, err = tx.PaymentByID(ctx, paymentID, false)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if pay.Status != model.PaymentSuccessful {
			return ErrPaymentNotRefundable
		}
		return nil
	})
	if err != nil {
		return model.Payment{}, err
	}

	err = p.callGateway(ctx, func(ctx context.Context) error {
		return p.gateway.Refund(ctx, pay.ExternalPaymentID)
	})
	already := errors.Is(err, payment.ErrAlreadyRefunded)
	if err != nil && !already {
		p.logger.Warn("gateway refund failed", zap.Uint64("payment_id", pay.ID), zap.Error(err))
		return model.Payment{}, err
	}

	var (
		ord     model.Order
		changed bool
	)
	err = p.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		changed, err = tx.UpdatePaymentStatus(ctx, pay.ID, model.PaymentSuccessful, model.PaymentRefunded)
		if err != nil {
			return err
		}
		if !changed {
			// a concurrent refund finished first
			cur, err := tx.PaymentByID(ctx, pay.ID, false)
			if err != nil {
				return err
			}
			if cur.Status != model.PaymentRefunded {
				return ErrPaymentNotRefundable
			}
		}
		ord, err = tx.OrderByID(ctx, pay.OrderID, false)
		return err
	})
	if err != nil {
		return model.Payment{}, err
	}
	pay.Status = model.PaymentRefunded
	if changed {
		p.logger.Info("payment refunded", zap.Uint64("payment_id", pay.ID), zap.Uint64("order_id", pay.OrderID))
		p.publish(ctx, queue.PaymentRefunded, pay, ord)
	}
	if already {
		p.logger.Warn("payment was already refunded at the gateway", zap.Uint64("payment_id", pay.ID))
		return model.Payment{}, ErrPaymentNotRefundable
	}
	return pay, nil
}

// Payments lists the user's payments.
func (p *Payments) Payments(ctx context.Context, userID uint64) ([]model.Payment, error) {
	var out []model.Payment
	err := p.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.PaymentsByUser(ctx, userID)
		return err
	})
	return out, err
}

// Purchases lists the movies the user owns.
func (p *Payments) Purchases(ctx context.Context, userID uint64) ([]model.Purchase, error) {
	var out []model.Purchase
	err := p.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.Purchases(ctx, userID)
		return err
	})
	return out, err
}

func (p *Payments) publish(ctx context.Context, kind string, pay model.Payment, ord model.Order) {
	if p.events == nil {
		return
	}
	ev := queue.PaymentEvent{
		Kind:              kind,
		PaymentID:         pay.ID,
		OrderID:           pay.OrderID,
		UserID:            pay.UserID,
		Status:            pay.Status,
		Amount:            pay.Amount.StringFixed(2),
		ExternalPaymentID: pay.ExternalPaymentID,
		Movies:            movieNames(ord),
		OccurredAt:        p.now().UTC().Format(time.RFC3339),
	}
	if err := p.events.PublishJSON(ctx, p.cfg.EventQueue, ev); err != nil {
		p.logger.Warn("publish payment event failed", zap.String("kind", kind), zap.Error(err))
	}
}

func (p *Payments) notify(ctx context.Context, to string, pay model.Payment, ord model.Order) {
	if p.mail == nil || to == "" {
		return
	}
	err := p.mail.Send(ctx, email.PaymentSuccess, to, map[string]any{
		"amount":   pay.Amount.StringFixed(2),
		"order_id": ord.ID,
		"movies":   movieNames(ord),
	})
	if err != nil {
		p.logger.Warn("send receipt failed", zap.Uint64("payment_id", pay.ID), zap.Error(err))
	}
}

func movieNames(ord model.Order) []string {
	names := make([]string, 0, len(ord.Items))
	for _, it := range ord.Items {
		names = append(names, it.MovieName)
	}
	return names
}
