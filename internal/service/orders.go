package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/repository"
)

// Cart is the cart view returned to clients.
type Cart struct {
	Items []model.CartItem `json:"items"`
	Total decimal.Decimal  `json:"total"`
}

// OrderPage is one page of the staff order listing.
type OrderPage struct {
	Orders   []model.Order `json:"orders"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// Orders manages carts and turns them into orders.
type Orders struct {
	store  Store
	logger *zap.Logger
}

func NewOrders(store Store, logger *zap.Logger) *Orders {
	return &Orders{store: store, logger: logger.With(zap.String("component", "orders"))}
}

// Cart returns the user's cart with current prices.
func (o *Orders) Cart(ctx context.Context, userID uint64) (Cart, error) {
	var items []model.CartItem
	err := o.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		items, err = tx.CartItems(ctx, userID)
		return err
	})
	if err != nil {
		return Cart{}, err
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price)
	}
	return Cart{Items: items, Total: total}, nil
}

// AddToCart puts a movie in the cart.  Owned movies are refused.
func (o *Orders) AddToCart(ctx context.Context, userID, movieID uint64) error {
	return o.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.MovieByID(ctx, movieID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		owned, err := tx.PurchasedMovieIDs(ctx, userID, []uint64{movieID})
		if err != nil {
			return err
		}
		if len(owned) > 0 {
			return ErrAlreadyPurchased
		}
		if err := tx.CreateCart(ctx, userID); err != nil {
			return err
		}
		err = tx.AddCartItem(ctx, userID, movieID)
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrAlreadyInCart
		}
		return err
	})
}

// RemoveFromCart drops one movie from the cart.
func (o *Orders) RemoveFromCart(ctx context.Context, userID, movieID uint64) error {
	err := o.store.WithinTx(ctx, func(tx repository.Tx) error {
		return tx.RemoveCartItem(ctx, userID, movieID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// ClearCart empties the cart.
func (o *Orders) ClearCart(ctx context.Context, userID uint64) error {
	return o.store.WithinTx(ctx, func(tx repository.Tx) error {
		_, err := tx.ClearCart(ctx, userID)
		return err
	})
}

// Checkout snapshots the cart into a PENDING order.  The cart row is
// locked for the whole transaction so two checkouts of the same cart
// serialize.  The cart itself is left untouched; it is cleared when the
// payment succeeds.
func (o *Orders) Checkout(ctx context.Context, userID uint64) (model.Order, error) {
	var order model.Order
	err := o.store.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockCart(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEmptyCart
			}
			return err
		}
		items, err := tx.CartItems(ctx, userID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		ids := make([]uint64, len(items))
		for i, it := range items {
			ids[i] = it.MovieID
		}
		owned, err := tx.PurchasedMovieIDs(ctx, userID, ids)
		if err != nil {
			return err
		}
		if len(owned) > 0 {
			return ErrAlreadyPurchased
		}
		pending, err := tx.PendingOrderMovieIDs(ctx, userID)
		if err != nil {
			return err
		}
		if overlaps(ids, pending) {
			return ErrPendingOrderExists
		}

		draft := model.Order{UserID: userID, Status: model.OrderPending, Total: decimal.Zero}
		for _, it := range items {
			draft.Items = append(draft.Items, model.OrderItem{MovieID: it.MovieID, MovieName: it.MovieName, Price: it.Price})
			draft.Total = draft.Total.Add(it.Price)
		}
		order, err = tx.CreateOrder(ctx, draft)
		return err
	})
	if err != nil {
		return model.Order{}, err
	}
	o.logger.Info("order created",
		zap.Uint64("order_id", order.ID), zap.Uint64("user_id", userID), zap.String("total", order.Total.StringFixed(2)))
	return order, nil
}

// Orders lists the user's orders.
func (o *Orders) Orders(ctx context.Context, userID uint64) ([]model.Order, error) {
	var out []model.Order
	err := o.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.OrdersByUser(ctx, userID)
		return err
	})
	return out, err
}

// Order returns one of the user's orders.  Orders of other users are
// reported as not found.
func (o *Orders) Order(ctx context.Context, userID, orderID uint64) (model.Order, error) {
	var out model.Order
	err := o.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = ownedOrder(ctx, tx, userID, orderID, false)
		return err
	})
	return out, err
}

// CancelOrder cancels a PENDING order of the user.
func (o *Orders) CancelOrder(ctx context.Context, userID, orderID uint64) (model.Order, error) {
	var out model.Order
	err := o.store.WithinTx(ctx, func(tx repository.Tx) error {
		ord, err := ownedOrder(ctx, tx, userID, orderID, true)
		if err != nil {
			return err
		}
		if ord.Status != model.OrderPending {
			return ErrOrderNotPending
		}
		if err := tx.SetOrderStatus(ctx, ord.ID, model.OrderCancelled); err != nil {
			return err
		}
		ord.Status = model.OrderCancelled
		out = ord
		return nil
	})
	if err == nil {
		o.logger.Info("order cancelled", zap.Uint64("order_id", orderID), zap.Uint64("user_id", userID))
	}
	return out, err
}

// AllOrders is the staff listing with filters.
func (o *Orders) AllOrders(ctx context.Context, f model.OrderFilter) (OrderPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	page := OrderPage{Page: f.Page, PageSize: f.PageSize}
	err := o.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		page.Orders, page.Total, err = tx.Orders(ctx, f)
		return err
	})
	return page, err
}

func ownedOrder(ctx context.Context, tx repository.Tx, userID, orderID uint64, forUpdate bool) (model.Order, error) {
	ord, err := tx.OrderByID(ctx, orderID, forUpdate)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && ord.UserID != userID) {
		return model.Order{}, ErrNotFound
	}
	return ord, err
}

func overlaps(a, b []uint64) bool {
	set := make(map[uint64]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	for _, id := range a {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
