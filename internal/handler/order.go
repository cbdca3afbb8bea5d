package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/payment"
	"github.com/iliyamo/online-cinema/internal/service"
)

// Shopping is the cart and order workflow; *service.Orders implements it.
type Shopping interface {
	Cart(ctx context.Context, userID uint64) (service.Cart, error)
	AddToCart(ctx context.Context, userID, movieID uint64) error
	RemoveFromCart(ctx context.Context, userID, movieID uint64) error
	ClearCart(ctx context.Context, userID uint64) error
	Checkout(ctx context.Context, userID uint64) (model.Order, error)
	Orders(ctx context.Context, userID uint64) ([]model.Order, error)
	Order(ctx context.Context, userID, orderID uint64) (model.Order, error)
	CancelOrder(ctx context.Context, userID, orderID uint64) (model.Order, error)
}

// PaymentStarter opens a gateway checkout for an order.
type PaymentStarter interface {
	Initiate(ctx context.Context, userID, orderID uint64) (payment.Session, error)
}

// OrderHandler serves /cart and /orders for the signed in user.
type OrderHandler struct {
	Shop     Shopping
	Payments PaymentStarter
}

func NewOrderHandler(shop Shopping, payments PaymentStarter) *OrderHandler {
	return &OrderHandler{Shop: shop, Payments: payments}
}

type cartItemReq struct {
	MovieID uint64 `json:"movie_id" validate:"required,gt=0"`
}

func (h *OrderHandler) Cart(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	cart, err := h.Shop.Cart(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	if cart.Items == nil {
		cart.Items = []model.CartItem{}
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *OrderHandler) AddToCart(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	var req cartItemReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Shop.AddToCart(ctx, uid, req.MovieID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"movie_id": req.MovieID})
}

func (h *OrderHandler) RemoveFromCart(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	movieID, err := idParam(c, "movie_id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Shop.RemoveFromCart(ctx, uid, movieID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *OrderHandler) ClearCart(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Shop.ClearCart(ctx, uid); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// PlaceOrder turns the cart into a PENDING order.  The cart is kept until
// the order is paid.
func (h *OrderHandler) PlaceOrder(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	ord, err := h.Shop.Checkout(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, ord)
}

func (h *OrderHandler) List(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	orders, err := h.Shop.Orders(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) Get(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	ord, err := h.Shop.Order(ctx, uid, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ord)
}

func (h *OrderHandler) Cancel(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	ord, err := h.Shop.CancelOrder(ctx, uid, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ord)
}

// Checkout starts payment of a PENDING order and returns the gateway
// redirect.  The gateway call carries its own deadline.
func (h *OrderHandler) Checkout(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	sess, err := h.Payments.Initiate(c.Request().Context(), uid, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"order_id":    id,
		"session_id":  sess.ID,
		"payment_url": sess.URL,
	})
}
