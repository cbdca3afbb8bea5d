package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/service"
)

// maxWebhookBody caps the webhook payload read into memory.
const maxWebhookBody = 64 << 10

// SignatureHeader carries the gateway signature of a webhook payload.
const SignatureHeader = "Stripe-Signature"

// Billing is the payment coordinator; *service.Payments implements it.
type Billing interface {
	HandleCallback(ctx context.Context, payload []byte, signature string) (service.CallbackResult, error)
	Refund(ctx context.Context, paymentID uint64) (model.Payment, error)
	Payments(ctx context.Context, userID uint64) ([]model.Payment, error)
	Purchases(ctx context.Context, userID uint64) ([]model.Purchase, error)
}

type PaymentHandler struct {
	Billing Billing
}

func NewPaymentHandler(b Billing) *PaymentHandler { return &PaymentHandler{Billing: b} }

// Webhook receives gateway callbacks.  Replays of an applied callback
// answer 200 with action "duplicate" so the gateway stops retrying.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	if len(body) > maxWebhookBody {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "payload too large"})
	}
	sig := c.Request().Header.Get(SignatureHeader)
	if sig == "" {
		return respondError(c, service.ErrInvalidSignature)
	}

	res, err := h.Billing.HandleCallback(c.Request().Context(), body, sig)
	if err != nil {
		return respondError(c, err)
	}
	zap.L().Debug("webhook handled",
		zap.String("action", string(res.Action)), zap.Uint64("order_id", res.OrderID))
	return c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) List(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.Billing.Payments(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	if out == nil {
		out = []model.Payment{}
	}
	return c.JSON(http.StatusOK, out)
}

// Purchases lists the movies the user owns.
func (h *PaymentHandler) Purchases(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.Billing.Purchases(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	if out == nil {
		out = []model.Purchase{}
	}
	return c.JSON(http.StatusOK, out)
}

// Refund is a staff action; the order stays PAID.
func (h *PaymentHandler) Refund(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	pay, err := h.Billing.Refund(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pay)
}

// Success and Cancelled are the browser landing pages after the gateway
// redirect.  The order changes only when the webhook arrives.
func (h *PaymentHandler) Success(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"message":    "payment received, the order is updated once the gateway confirms it",
		"session_id": c.QueryParam("session_id"),
	})
}

func (h *PaymentHandler) Cancelled(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"message":  "payment was not completed",
		"order_id": c.QueryParam("order_id"),
	})
}
